package access

import (
	"errors"
	"testing"

	"github.com/dbehnke/hblink4/pkg/protocol"
)

func TestMatch_IDs(t *testing.T) {
	m := Match{IDs: []uint32{312000, 312001}}
	if !m.Matches(312000, "W1ABC") {
		t.Error("expected 312000 to match")
	}
	if m.Matches(312002, "W1ABC") {
		t.Error("expected 312002 not to match")
	}
}

func TestMatch_IDRanges(t *testing.T) {
	m := Match{IDRanges: []IDRange{{Start: 312000, End: 312099}}}
	if !m.Matches(312050, "") {
		t.Error("expected 312050 to be in range")
	}
	if m.Matches(312100, "") {
		t.Error("expected 312100 to be outside range")
	}
}

func TestMatch_CallsignGlob(t *testing.T) {
	m := Match{Callsigns: []string{"W1*"}}
	if !m.Matches(0, "W1ABC") {
		t.Error("expected W1ABC to match W1*")
	}
	if m.Matches(0, "K2XYZ") {
		t.Error("expected K2XYZ not to match W1*")
	}
}

func TestController_Resolve_Blacklist(t *testing.T) {
	c := &Controller{
		Blacklist: []BlacklistPattern{
			{Name: "banned", Match: Match{IDs: []uint32{999999}}, Reason: "known bad actor"},
		},
		Patterns: []RepeaterPattern{
			{Name: "any", Match: Match{IDRanges: []IDRange{{Start: 0, End: 999999999}}},
				Config: RepeaterPolicy{Enabled: true}},
		},
	}

	_, err := c.Resolve(999999, "X1BAD")
	var blErr *BlacklistMatchError
	if !errors.As(err, &blErr) {
		t.Fatalf("expected BlacklistMatchError, got %v", err)
	}
	if blErr.PatternName != "banned" {
		t.Errorf("expected pattern name 'banned', got %q", blErr.PatternName)
	}
}

func TestController_Resolve_BlacklistBeforePatterns(t *testing.T) {
	c := &Controller{
		Blacklist: []BlacklistPattern{
			{Name: "banned", Match: Match{IDs: []uint32{312000}}, Reason: "test"},
		},
		Patterns: []RepeaterPattern{
			{Name: "catch-all", Match: Match{IDRanges: []IDRange{{Start: 0, End: 999999999}}},
				Config: RepeaterPolicy{Enabled: true}},
		},
	}

	_, err := c.Resolve(312000, "")
	if err == nil {
		t.Fatal("expected blacklist to win over a matching pattern")
	}
}

func TestController_Resolve_FirstPatternWins(t *testing.T) {
	c := &Controller{
		Patterns: []RepeaterPattern{
			{Name: "first", Match: Match{IDRanges: []IDRange{{Start: 0, End: 999999999}}},
				Config: RepeaterPolicy{Passphrase: "first"}},
			{Name: "second", Match: Match{IDs: []uint32{312000}},
				Config: RepeaterPolicy{Passphrase: "second"}},
		},
	}

	policy, err := c.Resolve(312000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy.Passphrase != "first" {
		t.Errorf("expected first matching pattern to win, got passphrase %q", policy.Passphrase)
	}
}

func TestController_Resolve_Default(t *testing.T) {
	c := &Controller{
		Default: &RepeaterPolicy{
			Enabled:         true,
			Passphrase:      "fallback",
			Slot1Talkgroups: protocol.AllowAllSet(),
			Slot2Talkgroups: protocol.AllowAllSet(),
		},
	}

	policy, err := c.Resolve(555555, "ANY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy.Passphrase != "fallback" {
		t.Errorf("expected default passphrase, got %q", policy.Passphrase)
	}
}

func TestController_Resolve_NoMatch(t *testing.T) {
	c := &Controller{}
	_, err := c.Resolve(123, "X")
	if !errors.Is(err, ErrNoPatternMatch) {
		t.Fatalf("expected ErrNoPatternMatch, got %v", err)
	}
}

func TestController_ResolveName(t *testing.T) {
	c := &Controller{
		Patterns: []RepeaterPattern{
			{Name: "locals", Match: Match{IDRanges: []IDRange{{Start: 0, End: 999999999}}},
				Config: RepeaterPolicy{Passphrase: "secret"}},
		},
		Default: &RepeaterPolicy{Passphrase: "fallback"},
	}

	name, policy, err := c.ResolveName(312000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "locals" || policy.Passphrase != "secret" {
		t.Errorf("expected pattern name 'locals', got %q (policy %+v)", name, policy)
	}

	name, _, err = c.ResolveName(1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "locals" {
		t.Errorf("expected the catch-all pattern name 'locals', got %q", name)
	}
}

func TestController_ResolveName_Default(t *testing.T) {
	c := &Controller{Default: &RepeaterPolicy{Passphrase: "fallback"}}

	name, policy, err := c.ResolveName(1, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "default" || policy.Passphrase != "fallback" {
		t.Errorf("expected name 'default', got %q", name)
	}
}
