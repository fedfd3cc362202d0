package bridge

import "time"

// seenInfo records which systems have already forwarded a given stream_id
// through the bridge, so a reflector-style fan-out never bounces a stream
// back to the system that originated it.
type seenInfo struct {
	systems   map[string]bool
	startTime time.Time
}

// StreamTracker is the bridge-specific loop guard of §4.9, distinct from
// the per-repeater stream-ID dedup of §4.4 step 3: a bridge can introduce
// fan-out across systems that the per-slot model alone wouldn't produce.
type StreamTracker struct {
	streams map[uint32]*seenInfo
}

// NewStreamTracker creates an empty tracker.
func NewStreamTracker() *StreamTracker {
	return &StreamTracker{streams: make(map[uint32]*seenInfo)}
}

// Track records that streamID has now been seen from system, returning true
// the first time a given (streamID, system) pair is seen (forward it) and
// false on any repeat (already relayed through this system, drop it).
func (st *StreamTracker) Track(streamID uint32, system string, now time.Time) bool {
	info, exists := st.streams[streamID]
	if !exists {
		info = &seenInfo{systems: make(map[string]bool), startTime: now}
		st.streams[streamID] = info
	}
	if info.systems[system] {
		return false
	}
	info.systems[system] = true
	return true
}

// IsActive reports whether streamID is still being tracked.
func (st *StreamTracker) IsActive(streamID uint32) bool {
	_, exists := st.streams[streamID]
	return exists
}

// End stops tracking streamID, called when the stream ends (terminator,
// fast terminator, timeout, or eviction of its repeater).
func (st *StreamTracker) End(streamID uint32) {
	delete(st.streams, streamID)
}

// Sweep purges streams first tracked more than maxAge ago, guarding against a
// stream whose terminator was lost leaking tracker entries forever.
func (st *StreamTracker) Sweep(now time.Time, maxAge time.Duration) {
	for streamID, info := range st.streams {
		if now.Sub(info.startTime) > maxAge {
			delete(st.streams, streamID)
		}
	}
}
