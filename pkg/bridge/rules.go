// Package bridge implements the Conference Bridge supplement of
// SPEC_FULL.md §4.9: named rule sets that fan a stream out to additional
// systems (repeaters or outbound links) beyond the per-repeater routing
// targets already computed by pkg/routing. Like pkg/repeater and
// pkg/stream, every type here is mutated exclusively by the engine
// goroutine, so none of it carries locking.
package bridge

import "time"

// Rule is a single conference-bridge membership: the named system is
// forwarded traffic on (TGID, Timeslot) while Active.
type Rule struct {
	System   string
	TGID     uint32
	Timeslot int
	Active   bool

	On             []uint32
	Off            []uint32
	TimeoutMinutes int
	LastActivation time.Time
}

// Matches reports whether this active rule covers the given TGID/timeslot.
func (r *Rule) Matches(tgid uint32, timeslot int) bool {
	return r.Active && r.TGID == tgid && r.Timeslot == timeslot
}

// ShouldActivate reports whether tgid appears in this rule's On list.
func (r *Rule) ShouldActivate(tgid uint32) bool {
	return containsTGID(r.On, tgid)
}

// ShouldDeactivate reports whether tgid appears in this rule's Off list.
func (r *Rule) ShouldDeactivate(tgid uint32) bool {
	return containsTGID(r.Off, tgid)
}

func containsTGID(list []uint32, tgid uint32) bool {
	for _, id := range list {
		if id == tgid {
			return true
		}
	}
	return false
}

// TimedOut reports whether this rule's auto-deactivation deadline has
// passed. A TimeoutMinutes of 0 disables auto-deactivation.
func (r *Rule) TimedOut(now time.Time) bool {
	if r.TimeoutMinutes <= 0 || !r.Active {
		return false
	}
	return now.Sub(r.LastActivation) >= time.Duration(r.TimeoutMinutes)*time.Minute
}

// RuleSet is one named conference bridge: a group of rules, one per member
// system, sharing a TGID/timeslot namespace.
type RuleSet struct {
	Name  string
	Rules []*Rule
}

// NewRuleSet creates an empty named bridge.
func NewRuleSet(name string) *RuleSet {
	return &RuleSet{Name: name}
}

// AddRule appends a member rule to the bridge.
func (rs *RuleSet) AddRule(rule *Rule) {
	rs.Rules = append(rs.Rules, rule)
}

// RuleForSystem returns the member rule belonging to system, or nil.
func (rs *RuleSet) RuleForSystem(system string) *Rule {
	for _, rule := range rs.Rules {
		if rule.System == system {
			return rule
		}
	}
	return nil
}

// OtherActiveSystems returns every other active member's system name,
// excluding exclude (the source system), for fan-out per §4.9.
func (rs *RuleSet) OtherActiveSystems(exclude string) []string {
	var out []string
	for _, rule := range rs.Rules {
		if rule.System == exclude || !rule.Active {
			continue
		}
		out = append(out, rule.System)
	}
	return out
}

// ProcessActivation activates every rule in the set whose On list contains
// tgid, stamping LastActivation, and returns the rules that were activated.
func (rs *RuleSet) ProcessActivation(tgid uint32, now time.Time) []*Rule {
	var activated []*Rule
	for _, rule := range rs.Rules {
		if rule.ShouldActivate(tgid) {
			rule.Active = true
			rule.LastActivation = now
			activated = append(activated, rule)
		}
	}
	return activated
}

// ProcessDeactivation deactivates every rule in the set whose Off list
// contains tgid, and returns the rules that were deactivated.
func (rs *RuleSet) ProcessDeactivation(tgid uint32) []*Rule {
	var deactivated []*Rule
	for _, rule := range rs.Rules {
		if rule.ShouldDeactivate(tgid) {
			rule.Active = false
			deactivated = append(deactivated, rule)
		}
	}
	return deactivated
}

// RefreshActivation re-stamps LastActivation on every active rule matching
// tgid/timeslot, so a sustained transmission keeps the timeout from firing
// mid-stream.
func (rs *RuleSet) RefreshActivation(tgid uint32, timeslot int, now time.Time) {
	for _, rule := range rs.Rules {
		if rule.Matches(tgid, timeslot) {
			rule.LastActivation = now
		}
	}
}

// SweepTimeouts deactivates every rule whose TimeoutMinutes deadline has
// passed and returns them, replacing the teacher's per-rule time.AfterFunc
// timers (which would mutate Rule.Active from a goroutine other than the
// engine loop) with a sweep driven by the engine's own ticker.
func (rs *RuleSet) SweepTimeouts(now time.Time) []*Rule {
	var expired []*Rule
	for _, rule := range rs.Rules {
		if rule.TimedOut(now) {
			rule.Active = false
			expired = append(expired, rule)
		}
	}
	return expired
}
