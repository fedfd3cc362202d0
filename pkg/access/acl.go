// Package access implements the Access Controller: pattern-based matching
// of a candidate repeater identity to either a blacklist rejection or a
// configuration pattern carrying its passphrase and per-slot talkgroup
// policy.
package access

import (
	"errors"
	"fmt"
	"path"

	"github.com/dbehnke/hblink4/pkg/protocol"
)

// ErrNoPatternMatch is returned when no blacklist entry, pattern, or default
// matches a candidate repeater.
var ErrNoPatternMatch = errors.New("no matching pattern or default configured")

// BlacklistMatchError reports that a candidate matched a blacklist pattern.
type BlacklistMatchError struct {
	PatternName string
	Reason      string
}

func (e *BlacklistMatchError) Error() string {
	return fmt.Sprintf("blacklisted by pattern %q: %s", e.PatternName, e.Reason)
}

// IDRange is an inclusive range of repeater IDs.
type IDRange struct {
	Start uint32
	End   uint32
}

// Match is a pattern's match rule. Exactly one of IDs, IDRanges, or
// Callsigns may be set, per the tagged-variant schema of §4.3.
type Match struct {
	IDs       []uint32
	IDRanges  []IDRange
	Callsigns []string // glob patterns, '*' wildcard
}

// Matches reports whether the candidate repeater ID/callsign satisfies
// exactly the one variant this Match carries.
func (m Match) Matches(repeaterID uint32, callsign string) bool {
	switch {
	case len(m.IDs) > 0:
		for _, id := range m.IDs {
			if id == repeaterID {
				return true
			}
		}
		return false
	case len(m.IDRanges) > 0:
		for _, r := range m.IDRanges {
			if repeaterID >= r.Start && repeaterID <= r.End {
				return true
			}
		}
		return false
	case len(m.Callsigns) > 0:
		for _, glob := range m.Callsigns {
			if ok, _ := path.Match(glob, callsign); ok {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// BlacklistPattern rejects a candidate outright, before any configuration
// pattern is considered.
type BlacklistPattern struct {
	Name        string
	Description string
	Match       Match
	Reason      string
}

// RepeaterPolicy is the resolved configuration for an accepted repeater:
// its passphrase and per-slot talkgroup policy.
type RepeaterPolicy struct {
	Enabled         bool
	Passphrase      string
	Slot1Talkgroups protocol.TalkgroupSet
	Slot2Talkgroups protocol.TalkgroupSet
}

// RepeaterPattern maps a Match to a RepeaterPolicy.
type RepeaterPattern struct {
	Name        string
	Description string
	Match       Match
	Config      RepeaterPolicy
}

// Controller is the Access Controller: blacklist evaluated first, then
// patterns in declared order, then an optional default.
type Controller struct {
	Blacklist []BlacklistPattern
	Patterns  []RepeaterPattern
	Default   *RepeaterPolicy
}

// Resolve maps a candidate repeater identity to its policy, or to an error
// describing why it was rejected. Blacklist evaluation always happens
// first; a blacklist match short-circuits pattern evaluation entirely.
func (c *Controller) Resolve(repeaterID uint32, callsign string) (*RepeaterPolicy, error) {
	for _, bl := range c.Blacklist {
		if bl.Match.Matches(repeaterID, callsign) {
			return nil, &BlacklistMatchError{PatternName: bl.Name, Reason: bl.Reason}
		}
	}

	for _, p := range c.Patterns {
		if p.Match.Matches(repeaterID, callsign) {
			cfg := p.Config
			return &cfg, nil
		}
	}

	if c.Default != nil {
		cfg := *c.Default
		return &cfg, nil
	}

	return nil, ErrNoPatternMatch
}

// ResolveName is Resolve plus the matched pattern's name — "default" when
// only the default policy applied — for identifying a repeater's bridge
// "system" (SPEC_FULL.md §4.9 Glossary).
func (c *Controller) ResolveName(repeaterID uint32, callsign string) (string, *RepeaterPolicy, error) {
	for _, bl := range c.Blacklist {
		if bl.Match.Matches(repeaterID, callsign) {
			return "", nil, &BlacklistMatchError{PatternName: bl.Name, Reason: bl.Reason}
		}
	}

	for _, p := range c.Patterns {
		if p.Match.Matches(repeaterID, callsign) {
			cfg := p.Config
			return p.Name, &cfg, nil
		}
	}

	if c.Default != nil {
		cfg := *c.Default
		return "default", &cfg, nil
	}

	return "", nil, ErrNoPatternMatch
}
