package bridge

import "time"

// Router holds every named conference bridge and the cross-system stream
// loop guard, and computes §4.9's fan-out targets by system name. It stays
// decoupled from pkg/repeater/pkg/outbound by returning plain system-name
// strings — the caller (the engine loop in pkg/server) resolves those names
// against whichever connected repeater or outbound link they identify and
// applies that target's own PermitsSlot policy before actually forwarding,
// the same pattern pkg/routing uses for its Target interface.
type Router struct {
	bridges       map[string]*RuleSet
	streamTracker *StreamTracker
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		bridges:       make(map[string]*RuleSet),
		streamTracker: NewStreamTracker(),
	}
}

// AddBridge registers a named bridge.
func (r *Router) AddBridge(rs *RuleSet) {
	r.bridges[rs.Name] = rs
}

// Bridge returns the named bridge, or nil.
func (r *Router) Bridge(name string) *RuleSet {
	return r.bridges[name]
}

// Bridges returns every registered bridge.
func (r *Router) Bridges() []*RuleSet {
	out := make([]*RuleSet, 0, len(r.bridges))
	for _, rs := range r.bridges {
		out = append(out, rs)
	}
	return out
}

// FanOut computes the additional systems a stream on (tgid, timeslot) from
// sourceSystem should be forwarded to, per §4.9: for every bridge where
// sourceSystem holds an active rule matching tgid/timeslot, union in every
// other active member of that bridge. streamID is consulted against the
// bridge-local StreamTracker first so a stream already relayed through
// sourceSystem by an earlier fan-out is never forwarded again (loop
// prevention distinct from the per-repeater dedup of §4.4).
func (r *Router) FanOut(streamID uint32, tgid uint32, timeslot int, sourceSystem string, now time.Time) []string {
	if !r.streamTracker.Track(streamID, sourceSystem, now) {
		return nil
	}

	targetSet := make(map[string]bool)
	for _, rs := range r.bridges {
		srcRule := rs.RuleForSystem(sourceSystem)
		if srcRule == nil || !srcRule.Matches(tgid, timeslot) {
			continue
		}
		rs.RefreshActivation(tgid, timeslot, now)
		for _, system := range rs.OtherActiveSystems(sourceSystem) {
			targetSet[system] = true
		}
	}

	if len(targetSet) == 0 {
		return nil
	}
	targets := make([]string, 0, len(targetSet))
	for system := range targetSet {
		targets = append(targets, system)
	}
	return targets
}

// EndStream releases the loop-guard entry for streamID, called when the
// stream ends (terminator, fast terminator, timeout, or eviction of its
// repeater).
func (r *Router) EndStream(streamID uint32) {
	r.streamTracker.End(streamID)
}

// ProcessActivation runs tgid activation across every bridge, returning a
// map of bridge name to the rules it activated.
func (r *Router) ProcessActivation(tgid uint32, now time.Time) map[string][]*Rule {
	result := make(map[string][]*Rule)
	for name, rs := range r.bridges {
		if activated := rs.ProcessActivation(tgid, now); len(activated) > 0 {
			result[name] = activated
		}
	}
	return result
}

// ProcessDeactivation runs tgid deactivation across every bridge, returning
// a map of bridge name to the rules it deactivated.
func (r *Router) ProcessDeactivation(tgid uint32) map[string][]*Rule {
	result := make(map[string][]*Rule)
	for name, rs := range r.bridges {
		if deactivated := rs.ProcessDeactivation(tgid); len(deactivated) > 0 {
			result[name] = deactivated
		}
	}
	return result
}

// SweepTimeouts auto-deactivates any rule whose TimeoutMinutes deadline has
// elapsed across every bridge, and sweeps stale stream-tracker entries.
// Intended to be called from the engine's existing periodic ticker.
func (r *Router) SweepTimeouts(now time.Time, streamMaxAge time.Duration) map[string][]*Rule {
	result := make(map[string][]*Rule)
	for name, rs := range r.bridges {
		if expired := rs.SweepTimeouts(now); len(expired) > 0 {
			result[name] = expired
		}
	}
	r.streamTracker.Sweep(now, streamMaxAge)
	return result
}
