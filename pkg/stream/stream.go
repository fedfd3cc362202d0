// Package stream implements the Stream Engine: per-(repeater,slot) call
// lifecycle, contention detection, hang-time rules, and terminator/timeout
// handling (SPEC_FULL.md §4.4). A Stream is mutated exclusively by the
// engine goroutine (pkg/server), so it carries no locking — the same
// single-owner model as pkg/repeater.
package stream

import (
	"time"
)

// EndReason names why a Stream was ended.
type EndReason string

const (
	EndTerminator     EndReason = "terminator"
	EndFastTerminator EndReason = "fast_terminator"
	EndTimeout        EndReason = "timeout"
)

// FastTerminatorWindow is the staleness threshold used to tell a genuinely
// active stream from one whose terminator was lost (§9 Open Questions).
// Kept as a named constant rather than hardcoded inline; it is not read
// from the configuration file.
const FastTerminatorWindow = 200 * time.Millisecond

// Key identifies a stream slot: one per (repeater, timeslot).
type Key struct {
	RepeaterID uint32
	Slot       int
}

// Stream is the per-slot call state of SPEC_FULL.md §3.
type Stream struct {
	StreamID   uint32
	RepeaterID uint32
	Slot       int
	CallType   int // protocol.CallTypeGroup or protocol.CallTypePrivate
	RFSrc      uint32
	DstID      uint32

	StartTime      time.Time
	LastPacketTime time.Time
	PacketCount    int

	Ended     bool
	EndTime   time.Time
	EndReason EndReason

	// IsAssumed marks a TX-assumed stream: created when we forward the
	// first packet of someone else's call to this repeater, not when this
	// repeater is genuinely transmitting. Real RX supersedes it (§4.4/§4.5).
	IsAssumed bool

	// TargetRepeaters is the routing cache computed once at start-new.
	TargetRepeaters map[uint32]bool
	RoutingCached   bool
}

// New creates a Stream from the packet that started it.
func New(key Key, streamID uint32, callType int, rfSrc, dstID uint32, now time.Time) *Stream {
	return &Stream{
		StreamID:       streamID,
		RepeaterID:     key.RepeaterID,
		Slot:           key.Slot,
		CallType:       callType,
		RFSrc:          rfSrc,
		DstID:          dstID,
		StartTime:      now,
		LastPacketTime: now,
		PacketCount:    1,
	}
}

// IsActive reports whether the stream has received a packet within the
// fast-terminator staleness window as of now.
func (s *Stream) IsActive(now time.Time) bool {
	return !s.Ended && now.Sub(s.LastPacketTime) <= FastTerminatorWindow
}

// TimedOut reports whether a still-open stream has exceeded the
// stream_timeout with no further packets.
func (s *Stream) TimedOut(now time.Time, streamTimeout time.Duration) bool {
	return !s.Ended && now.Sub(s.LastPacketTime) > streamTimeout
}

// HangExpired reports whether an ended stream's hang-time window has
// elapsed. Exactly at hang_time is treated as expired (§9).
func (s *Stream) HangExpired(now time.Time, hangTime time.Duration) bool {
	return s.Ended && now.Sub(s.EndTime) >= hangTime
}

// InHangTime reports whether an ended stream is still within its hang-time
// window, making the hang-time rules of §4.4 applicable.
func (s *Stream) InHangTime(now time.Time, hangTime time.Duration) bool {
	return s.Ended && now.Sub(s.EndTime) < hangTime
}

// Touch records an additional packet on an already-active stream.
func (s *Stream) Touch(now time.Time) {
	s.LastPacketTime = now
	s.PacketCount++
}

// End closes the stream, recording the end reason and time. The slot is not
// cleared — hang-time rules apply until HangExpired is true.
func (s *Stream) End(now time.Time, reason EndReason) {
	s.Ended = true
	s.EndTime = now
	s.EndReason = reason
}

// Duration returns how long the call lasted, from first packet to end.
// For a stream still open it returns the duration so far.
func (s *Stream) Duration() time.Duration {
	if s.Ended {
		return s.EndTime.Sub(s.StartTime)
	}
	return s.LastPacketTime.Sub(s.StartTime)
}

// HangTimeRemaining returns how long of the hang-time window is left, for
// event reporting; zero if not currently in hang-time.
func (s *Stream) HangTimeRemaining(now time.Time, hangTime time.Duration) time.Duration {
	if !s.Ended {
		return 0
	}
	remaining := hangTime - now.Sub(s.EndTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HangTimeDecision is the outcome of applying the hang-time rules table
// of §4.4 to a new packet arriving while the slot's prior stream is within
// its hang-time window.
type HangTimeDecision int

const (
	// HangAllow means the old stream should be replaced by a fresh
	// start-new — same user continuing/switching TG, or a new user
	// joining the conversation.
	HangAllow HangTimeDecision = iota
	// HangDeny means the packet must be dropped — a different user on a
	// different destination during another user's hang-time window
	// (hijack prevention).
	HangDeny
)

// DecideHangTime applies the §4.4 hang-time rules table: a different
// rf_src combined with a different dst_id is denied; every other
// combination is allowed.
func DecideHangTime(oldRFSrc, newRFSrc, oldDstID, newDstID uint32) HangTimeDecision {
	if oldRFSrc != newRFSrc && oldDstID != newDstID {
		return HangDeny
	}
	return HangAllow
}
