// Package events implements the Event Emitter of SPEC_FULL.md §4.7: a
// strictly ordered, length-prefixed JSON event stream to a single external
// dashboard consumer over a Unix socket or TCP. Delivery is reliable while
// connected and lossy on disconnect — a full send buffer drops the event
// rather than blocking the engine goroutine that produced it.
package events

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"time"

	"github.com/dbehnke/hblink4/pkg/logger"
)

// Kind identifies an event's shape, per spec.md §4.7's fixed list.
type Kind string

const (
	KindRepeaterConnected    Kind = "repeater_connected"
	KindRepeaterDetails      Kind = "repeater_details"
	KindRepeaterDisconnected Kind = "repeater_disconnected"
	KindStreamStart          Kind = "stream_start"
	KindStreamUpdate         Kind = "stream_update"
	KindStreamEnd            Kind = "stream_end"
	KindHangTimeExpired      Kind = "hang_time_expired"
	KindOutboundConnected    Kind = "outbound_connected"
	KindOutboundDisconnected Kind = "outbound_disconnected"
	KindOutboundError        Kind = "outbound_error"
)

// Envelope is the single JSON object emitted per event, combining the kind
// tag with the caller's payload so a single consumer can dispatch on one
// field without knowing every payload shape in advance.
type Envelope struct {
	Kind      Kind        `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// RepeaterConnectedData is the payload for KindRepeaterConnected.
type RepeaterConnectedData struct {
	RepeaterID uint32 `json:"repeater_id"`
	Address    string `json:"address"`
}

// RepeaterDetailsData is the payload for KindRepeaterDetails.
type RepeaterDetailsData struct {
	RepeaterID uint32 `json:"repeater_id"`
	Callsign   string `json:"callsign"`
	RXFreq     string `json:"rx_freq"`
	TXFreq     string `json:"tx_freq"`
	ColorCode  string `json:"color_code"`
	Location   string `json:"location"`
}

// RepeaterDisconnectedData is the payload for KindRepeaterDisconnected.
type RepeaterDisconnectedData struct {
	RepeaterID uint32 `json:"repeater_id"`
	Reason     string `json:"reason"`
}

// StreamData is the payload shared by stream_start, stream_update, and
// stream_end.
type StreamData struct {
	StreamID    uint32 `json:"stream_id"`
	RepeaterID  uint32 `json:"repeater_id"`
	Slot        int    `json:"slot"`
	RFSrc       uint32 `json:"rf_src"`
	DstID       uint32 `json:"dst_id"`
	CallType    int    `json:"call_type"`
	PacketCount int    `json:"packet_count,omitempty"`
	EndReason   string `json:"end_reason,omitempty"`
}

// HangTimeExpiredData is the payload for KindHangTimeExpired.
type HangTimeExpiredData struct {
	RepeaterID uint32 `json:"repeater_id"`
	Slot       int    `json:"slot"`
	DstID      uint32 `json:"dst_id"`
}

// OutboundLinkData is the payload shared by outbound_connected and
// outbound_disconnected.
type OutboundLinkData struct {
	LinkName string `json:"link_name"`
	Address  string `json:"address"`
}

// OutboundErrorData is the payload for KindOutboundError.
type OutboundErrorData struct {
	LinkName string `json:"link_name"`
	Error    string `json:"error"`
}

// Config selects the emitter's transport per spec.md §4.7 ("Unix domain
// socket (preferred local) or TCP").
type Config struct {
	Enabled bool
	Network string // "unix" or "tcp"
	Address string
}

const (
	reconnectInterval = 10 * time.Second
	dialTimeout       = 2 * time.Second
	sendQueueDepth    = 256
)

// Emitter owns the single outbound connection to the dashboard consumer and
// the goroutine that dials, reconnects, and drains the send queue. Emit is
// the only method safe to call from other goroutines (the engine loop);
// everything else runs on Emitter's own goroutine started by Run.
type Emitter struct {
	cfg   Config
	log   *logger.Logger
	queue chan []byte
}

// New builds an Emitter. When cfg.Enabled is false, Emit is a no-op and Run
// returns immediately.
func New(cfg Config, log *logger.Logger) *Emitter {
	return &Emitter{
		cfg:   cfg,
		log:   log.WithComponent("events"),
		queue: make(chan []byte, sendQueueDepth),
	}
}

// Emit encodes an event as a length-prefixed JSON frame and enqueues it
// non-blockingly; if the send queue is full (e.g. the consumer is
// disconnected), the event is dropped per spec.md §4.7's lossy-on-disconnect
// contract.
func (e *Emitter) Emit(kind Kind, now time.Time, data interface{}) {
	if !e.cfg.Enabled {
		return
	}
	frame, err := encodeFrame(Envelope{Kind: kind, Timestamp: now, Data: data})
	if err != nil {
		e.log.Error("failed to encode event", logger.String("kind", string(kind)), logger.Error(err))
		return
	}
	select {
	case e.queue <- frame:
	default:
		e.log.Warn("event dropped: send queue full", logger.String("kind", string(kind)))
	}
}

func encodeFrame(env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)
	return frame, nil
}

// Run drives connect/reconnect/drain until ctx is cancelled. It is a no-op
// when the emitter is disabled.
func (e *Emitter) Run(ctx context.Context) {
	if !e.cfg.Enabled {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := net.DialTimeout(e.cfg.Network, e.cfg.Address, dialTimeout)
		if err != nil {
			e.log.Warn("event consumer unreachable, retrying",
				logger.String("address", e.cfg.Address), logger.Error(err))
			if !sleepCtx(ctx, reconnectInterval) {
				return
			}
			continue
		}

		if !e.drain(ctx, conn) {
			conn.Close()
			return
		}
		conn.Close()
		if !sleepCtx(ctx, reconnectInterval) {
			return
		}
	}
}

// drain writes queued frames to conn until ctx is cancelled or a write
// fails (triggering reconnect). Returns false only when ctx was cancelled.
func (e *Emitter) drain(ctx context.Context, conn net.Conn) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case frame := <-e.queue:
			if _, err := conn.Write(frame); err != nil {
				e.log.Warn("event consumer write failed, reconnecting", logger.Error(err))
				return true
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ReadFrame reads one length-prefixed JSON frame from r, for use by a test
// consumer or the reference dashboard client.
func ReadFrame(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf)
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
