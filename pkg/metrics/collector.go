// Package metrics exposes hblink4's Prometheus metrics: repeater counts,
// packet/byte throughput, active streams, bridge routing, and talkgroup
// activity, all called from the single engine goroutine (SPEC_FULL.md §5).
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector wraps the Prometheus instruments hblink4 exports. The
// prometheus client types are themselves safe for concurrent use, so unlike
// the teacher's collector this carries no mutex of its own — callers are
// the engine goroutine only, in any case.
type Collector struct {
	totalRepeaters  prometheus.Counter
	activeRepeaters prometheus.Gauge

	packetsReceived *prometheus.CounterVec
	packetsSent     *prometheus.CounterVec
	bytesReceived   prometheus.Counter
	bytesSent       prometheus.Counter

	activeStreams prometheus.Gauge
	streamsTotal  *prometheus.CounterVec

	bridgeRoutesTotal *prometheus.CounterVec

	activeTalkgroups prometheus.Gauge

	activeStreamIDs    map[uint32]bool
	activeRepeaterIDs  map[uint32]bool
	activeTalkgroupSet map[string]bool
}

// NewCollector creates and registers hblink4's metric instruments against
// reg. Pass prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in production.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		totalRepeaters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hblink4", Name: "repeaters_connected_total",
			Help: "Total number of repeater connections accepted.",
		}),
		activeRepeaters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hblink4", Name: "repeaters_active",
			Help: "Number of currently connected repeaters.",
		}),
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hblink4", Name: "packets_received_total",
			Help: "Total packets received, by packet type.",
		}, []string{"type"}),
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hblink4", Name: "packets_sent_total",
			Help: "Total packets sent, by packet type.",
		}, []string{"type"}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hblink4", Name: "bytes_received_total",
			Help: "Total bytes received from repeaters and outbound links.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hblink4", Name: "bytes_sent_total",
			Help: "Total bytes forwarded to repeaters and outbound links.",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hblink4", Name: "streams_active",
			Help: "Number of currently active voice/data streams.",
		}),
		streamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hblink4", Name: "streams_total",
			Help: "Total streams ended, by end reason.",
		}, []string{"end_reason"}),
		bridgeRoutesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hblink4", Name: "bridge_routes_total",
			Help: "Total cross-system bridge fan-outs, by bridge name.",
		}, []string{"bridge"}),
		activeTalkgroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hblink4", Name: "talkgroups_active",
			Help: "Number of distinct (talkgroup, timeslot) pairs currently active.",
		}),
		activeStreamIDs:    make(map[uint32]bool),
		activeRepeaterIDs:  make(map[uint32]bool),
		activeTalkgroupSet: make(map[string]bool),
	}

	reg.MustRegister(
		c.totalRepeaters, c.activeRepeaters,
		c.packetsReceived, c.packetsSent, c.bytesReceived, c.bytesSent,
		c.activeStreams, c.streamsTotal,
		c.bridgeRoutesTotal, c.activeTalkgroups,
	)
	return c
}

// RepeaterConnected records a repeater reaching PhaseConnected.
func (c *Collector) RepeaterConnected(repeaterID uint32) {
	c.totalRepeaters.Inc()
	c.activeRepeaterIDs[repeaterID] = true
	c.activeRepeaters.Set(float64(len(c.activeRepeaterIDs)))
}

// RepeaterDisconnected records a repeater eviction or graceful close.
func (c *Collector) RepeaterDisconnected(repeaterID uint32) {
	delete(c.activeRepeaterIDs, repeaterID)
	c.activeRepeaters.Set(float64(len(c.activeRepeaterIDs)))
}

// PacketReceived records one received packet of the given wire type.
func (c *Collector) PacketReceived(packetType string) {
	c.packetsReceived.WithLabelValues(packetType).Inc()
}

// PacketSent records one sent packet of the given wire type.
func (c *Collector) PacketSent(packetType string) {
	c.packetsSent.WithLabelValues(packetType).Inc()
}

// BytesReceived adds to the received-bytes counter.
func (c *Collector) BytesReceived(n int) { c.bytesReceived.Add(float64(n)) }

// BytesSent adds to the sent-bytes counter.
func (c *Collector) BytesSent(n int) { c.bytesSent.Add(float64(n)) }

// StreamStarted records a stream beginning.
func (c *Collector) StreamStarted(streamID uint32) {
	c.activeStreamIDs[streamID] = true
	c.activeStreams.Set(float64(len(c.activeStreamIDs)))
}

// StreamEnded records a stream ending with the given reason.
func (c *Collector) StreamEnded(streamID uint32, endReason string) {
	delete(c.activeStreamIDs, streamID)
	c.activeStreams.Set(float64(len(c.activeStreamIDs)))
	c.streamsTotal.WithLabelValues(endReason).Inc()
}

// BridgeRouted records one cross-system fan-out performed by a bridge.
func (c *Collector) BridgeRouted(bridgeName string) {
	c.bridgeRoutesTotal.WithLabelValues(bridgeName).Inc()
}

// TalkgroupActive records a (tgid, timeslot) pair becoming active.
func (c *Collector) TalkgroupActive(tgid uint32, timeslot int) {
	c.activeTalkgroupSet[talkgroupKey(tgid, timeslot)] = true
	c.activeTalkgroups.Set(float64(len(c.activeTalkgroupSet)))
}

// TalkgroupInactive records a (tgid, timeslot) pair becoming inactive.
func (c *Collector) TalkgroupInactive(tgid uint32, timeslot int) {
	delete(c.activeTalkgroupSet, talkgroupKey(tgid, timeslot))
	c.activeTalkgroups.Set(float64(len(c.activeTalkgroupSet)))
}

func talkgroupKey(tgid uint32, timeslot int) string {
	return fmt.Sprintf("%d:%d", timeslot, tgid)
}
