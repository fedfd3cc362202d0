package stream

import "time"

// Decision is the outcome of dispatching one DMRD packet against the
// current per-slot stream state, per the decision tree of SPEC_FULL.md
// §4.4 "Dispatch per packet".
type Decision int

const (
	// DecisionForward: packet belongs to the slot's current stream;
	// already updated (LastPacketTime/PacketCount) by Dispatch. Forward it.
	DecisionForward Decision = iota
	// DecisionEndAndForward: packet is a terminator for the current
	// stream; the stream has been ended. Forward the terminator packet
	// itself before the slot's hang-time window begins.
	DecisionEndAndForward
	// DecisionRealRXWins: the slot held a TX-assumed stream and this
	// repeater has begun genuine RX. The assumed stream was cleared and
	// this repeater evicted from every other stream's target set
	// (EvictAssumedTarget does the eviction; the caller invokes it
	// separately). Caller should proceed to start a new stream.
	DecisionRealRXWins
	// DecisionContentionDrop: a different, still-active stream already
	// occupies the slot. Drop the packet.
	DecisionContentionDrop
	// DecisionFastTerminatorStartNew: the slot's existing stream is stale
	// (no terminator seen) but not yet ended; it has been end-stated with
	// reason fast_terminator. Caller should proceed to start a new stream.
	DecisionFastTerminatorStartNew
	// DecisionHangTimeAllow: the slot's stream is ended and within
	// hang-time, and the hang-time rules permit a fresh start-new.
	DecisionHangTimeAllow
	// DecisionHangTimeDeny: the slot's stream is ended and within
	// hang-time, and the hang-time rules deny this packet (hijack
	// prevention). Drop the packet.
	DecisionHangTimeDeny
	// DecisionStartNew: the slot has no stream at all. Caller should
	// start a new stream.
	DecisionStartNew
)

// Manager owns all active per-slot Streams. Exclusive to the engine
// goroutine; no locking (SPEC_FULL.md §5).
type Manager struct {
	streams map[Key]*Stream
}

// NewManager creates an empty stream Manager.
func NewManager() *Manager {
	return &Manager{streams: make(map[Key]*Stream)}
}

// Get returns the stream occupying a slot, or nil.
func (m *Manager) Get(key Key) *Stream {
	return m.streams[key]
}

// Start installs a new stream, replacing whatever previously occupied the
// slot (if anything).
func (m *Manager) Start(key Key, s *Stream) {
	m.streams[key] = s
}

// Clear removes whatever stream occupies a slot.
func (m *Manager) Clear(key Key) {
	delete(m.streams, key)
}

// All returns every tracked stream, across all slots. Order is unspecified.
func (m *Manager) All() []*Stream {
	out := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		out = append(out, s)
	}
	return out
}

// Dispatch applies the §4.4 "Dispatch per packet" decision tree to one
// inbound DMRD packet against the slot it targets. It mutates the existing
// stream in place where the decision calls for an update (Touch/End), but
// never creates the replacement stream itself — DecisionRealRXWins,
// DecisionFastTerminatorStartNew, DecisionHangTimeAllow, and
// DecisionStartNew all mean "caller must now start-new" (compute routing,
// call Start).
func (m *Manager) Dispatch(key Key, streamID uint32, rfSrc, dstID uint32, isTerminator bool, now time.Time) Decision {
	cur := m.streams[key]
	if cur == nil {
		return DecisionStartNew
	}

	if cur.StreamID == streamID {
		cur.Touch(now)
		if isTerminator {
			cur.End(now, EndTerminator)
			return DecisionEndAndForward
		}
		return DecisionForward
	}

	// Different stream_id occupies the slot.
	if cur.IsAssumed && !cur.Ended {
		m.Clear(key)
		return DecisionRealRXWins
	}
	if cur.IsActive(now) {
		return DecisionContentionDrop
	}
	if !cur.Ended {
		cur.End(now, EndFastTerminator)
		return DecisionFastTerminatorStartNew
	}

	// cur.Ended: hang-time rules.
	switch DecideHangTime(cur.RFSrc, rfSrc, cur.DstID, dstID) {
	case HangDeny:
		return DecisionHangTimeDeny
	default:
		return DecisionHangTimeAllow
	}
}

// EvictAssumedTarget removes repeaterID from the cached target set of
// every active stream except the one at exempt (the stream whose real-RX
// triggered the eviction). Implements the real-RX-wins displacement of
// §4.4/§4.5, O(R·S) with R active streams and S targets each.
func (m *Manager) EvictAssumedTarget(repeaterID uint32, exempt Key) {
	for key, s := range m.streams {
		if key == exempt {
			continue
		}
		if s.TargetRepeaters != nil {
			delete(s.TargetRepeaters, repeaterID)
		}
	}
}

// SweepTimeouts applies the §4.4 periodic timeout sweep to every tracked
// stream: open streams past stream_timeout are ended with reason timeout;
// ended streams past hang_time are cleared and reported for
// hang_time_expired. Returns the keys ended by timeout this sweep (still
// held in the map for hang-time) and the keys that were cleared.
func (m *Manager) SweepTimeouts(now time.Time, streamTimeout, hangTime time.Duration) (timedOut, expired []Key) {
	for key, s := range m.streams {
		if s.TimedOut(now, streamTimeout) {
			s.End(now, EndTimeout)
			timedOut = append(timedOut, key)
			continue
		}
		if s.HangExpired(now, hangTime) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(m.streams, key)
	}
	return timedOut, expired
}

// ExpiringSnapshot returns the streams that SweepTimeouts would clear this
// tick (hang-time elapsed), captured before the sweep removes them, so a
// caller can report their fields (e.g. DstID for a hang_time_expired event)
// after they're gone from the map. Must be called with the same now/hangTime
// immediately before SweepTimeouts for the two to agree.
func (m *Manager) ExpiringSnapshot(now time.Time, hangTime time.Duration) []*Stream {
	var out []*Stream
	for _, s := range m.streams {
		if s.HangExpired(now, hangTime) {
			out = append(out, s)
		}
	}
	return out
}
