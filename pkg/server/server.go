// Package server implements hblink4's Engine: the Protocol Endpoint,
// Connection Manager, Stream Engine, Routing Engine, and Conference Bridge
// dispatch of SPEC_FULL.md §4, all driven by the single cooperative
// goroutine mandated by §5. Every other package under pkg/ (repeater,
// stream, routing, usercache, bridge) is mutated exclusively from here;
// none of them carry locking because Engine never touches them from more
// than one goroutine.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/dbehnke/hblink4/pkg/access"
	"github.com/dbehnke/hblink4/pkg/bridge"
	"github.com/dbehnke/hblink4/pkg/events"
	"github.com/dbehnke/hblink4/pkg/logger"
	"github.com/dbehnke/hblink4/pkg/metrics"
	"github.com/dbehnke/hblink4/pkg/outbound"
	"github.com/dbehnke/hblink4/pkg/repeater"
	"github.com/dbehnke/hblink4/pkg/stream"
	"github.com/dbehnke/hblink4/pkg/usercache"
)

// Config is the Engine's runtime configuration, assembled by cmd/hblink4
// from pkg/config.Config.
type Config struct {
	BindIPv4    string
	PortIPv4    int
	BindIPv6    string
	PortIPv6    int
	DisableIPv6 bool

	PingTime       time.Duration
	MaxMissed      int
	StreamTimeout  time.Duration
	StreamHangTime time.Duration
	UserCacheTTL   time.Duration
}

// frame is one inbound datagram, normalized so the engine's select loop can
// dispatch it uniformly whether it arrived on a locally bound UDP socket or
// was relayed from an outbound link's shared socket.
type frame struct {
	data     []byte
	addr     *net.UDPAddr // nil for outbound-link frames
	family   int          // 4 or 6, meaningful only when addr != nil
	linkName string       // non-empty for outbound-link frames
}

// Engine owns every piece of mutable server state and the goroutine that
// mutates it. Nothing here is safe for concurrent use from outside Run's
// loop.
type Engine struct {
	cfg Config
	log *logger.Logger

	access    *access.Controller
	reserved  repeater.ReservationSet
	repeaters *repeater.Manager
	streams   *stream.Manager
	cache     *usercache.Cache
	bridges   *bridge.Router

	outboundMgr *outbound.Manager
	emitter     *events.Emitter
	metrics     *metrics.Collector

	conn4 *net.UDPConn
	conn6 *net.UDPConn

	inbound   chan frame
	outFrames chan outbound.Frame
}

// New builds an Engine. Every our_id among outboundConfigs is reserved
// against inbound logins, per §3's ID-reservation set — an outbound link
// presents as a repeater with that ID, so no inbound repeater may claim it.
func New(cfg Config, ctrl *access.Controller, outboundConfigs []outbound.Config, bridges *bridge.Router, emitter *events.Emitter, collector *metrics.Collector, log *logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.Default()
	}

	reserved := make(repeater.ReservationSet)
	for _, oc := range outboundConfigs {
		if oc.Enabled {
			reserved[oc.OurID] = true
		}
	}

	outFrames := make(chan outbound.Frame, 256)
	outboundMgr, err := outbound.NewManager(outboundConfigs, log, outFrames, emitter)
	if err != nil {
		return nil, fmt.Errorf("build outbound manager: %w", err)
	}

	return &Engine{
		cfg:         cfg,
		log:         log.WithComponent("server.engine"),
		access:      ctrl,
		reserved:    reserved,
		repeaters:   repeater.NewManager(),
		streams:     stream.NewManager(),
		cache:       usercache.New(cfg.UserCacheTTL),
		bridges:     bridges,
		outboundMgr: outboundMgr,
		emitter:     emitter,
		metrics:     collector,
		inbound:     make(chan frame, 1024),
		outFrames:   outFrames,
	}, nil
}

// Run binds the UDP listeners, starts every supporting goroutine, and
// drives the engine's single select loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	addr4 := &net.UDPAddr{IP: net.ParseIP(e.cfg.BindIPv4), Port: e.cfg.PortIPv4}
	conn4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		return fmt.Errorf("bind IPv4 %s: %w", addr4, err)
	}
	e.conn4 = conn4
	defer e.conn4.Close()
	e.log.Info("listening", logger.String("family", "ipv4"), logger.String("addr", conn4.LocalAddr().String()))

	if !e.cfg.DisableIPv6 {
		addr6 := &net.UDPAddr{IP: net.ParseIP(e.cfg.BindIPv6), Port: e.cfg.PortIPv6}
		conn6, err := net.ListenUDP("udp6", addr6)
		if err != nil {
			return fmt.Errorf("bind IPv6 %s: %w", addr6, err)
		}
		e.conn6 = conn6
		defer e.conn6.Close()
		e.log.Info("listening", logger.String("family", "ipv6"), logger.String("addr", conn6.LocalAddr().String()))
	}

	go e.readLoop(ctx, e.conn4, 4)
	if e.conn6 != nil {
		go e.readLoop(ctx, e.conn6, 6)
	}
	go e.outboundMgr.Run(ctx)
	go e.relayOutboundFrames(ctx)
	go e.emitter.Run(ctx)

	streamTicker := time.NewTicker(1 * time.Second)
	defer streamTicker.Stop()
	cacheTicker := time.NewTicker(60 * time.Second)
	defer cacheTicker.Stop()
	keepaliveTicker := time.NewTicker(e.cfg.PingTime)
	defer keepaliveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case f := <-e.inbound:
			e.handleFrame(f)
		case now := <-streamTicker.C:
			e.sweepStreams(now)
			e.sweepBridges(now)
		case now := <-cacheTicker.C:
			e.cache.Sweep(now)
		case now := <-keepaliveTicker.C:
			e.sweepKeepalives(now)
		}
	}
}

// readLoop does nothing but read datagrams off one bound socket and hand
// them to the engine loop — per §5, all protocol handling happens on the
// engine goroutine, never here.
func (e *Engine) readLoop(ctx context.Context, conn *net.UDPConn, family int) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			e.log.Error("udp read error", logger.Int("family", family), logger.Error(err))
			continue
		}

		data := append([]byte(nil), buf[:n]...)
		select {
		case e.inbound <- frame{data: data, addr: addr, family: family}:
		default:
			e.log.Warn("inbound queue full, dropping packet")
		}
	}
}

// relayOutboundFrames re-wraps DMRD frames surfaced by the outbound
// manager's own receive loop so they join the same dispatch path as
// ordinary repeater traffic.
func (e *Engine) relayOutboundFrames(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.outFrames:
			select {
			case e.inbound <- frame{data: f.Data, linkName: f.LinkName}:
			default:
				e.log.Warn("inbound queue full, dropping outbound-link packet")
			}
		}
	}
}

// shutdown drains engine-owned state on context cancellation per §5: every
// still-open stream is ended with reason timeout (its terminator will never
// arrive) and reported. Listeners and outbound links close themselves as
// their own goroutines unwind; the event emitter gets no special treatment
// beyond its own ctx-driven shutdown, per §4.7's best-effort contract.
func (e *Engine) shutdown() {
	now := time.Now()
	for _, s := range e.streams.All() {
		if s.Ended {
			continue
		}
		s.End(now, stream.EndTimeout)
		e.emitStreamEnd(s)
	}
	e.log.Info("engine shutting down")
}
