package bridge

import (
	"testing"
	"time"
)

func TestRouter_New(t *testing.T) {
	router := NewRouter()
	if router == nil {
		t.Fatal("NewRouter returned nil")
	}
}

func TestRouter_AddBridge_And_Bridge(t *testing.T) {
	router := NewRouter()
	router.AddBridge(NewRuleSet("NATIONWIDE"))
	router.AddBridge(NewRuleSet("REGIONAL"))

	if router.Bridge("NATIONWIDE") == nil {
		t.Fatal("expected to find NATIONWIDE")
	}
	if router.Bridge("NONEXISTENT") != nil {
		t.Error("expected nil for an unregistered bridge")
	}
	if len(router.Bridges()) != 2 {
		t.Errorf("expected 2 bridges, got %d", len(router.Bridges()))
	}
}

func TestRouter_FanOut(t *testing.T) {
	router := NewRouter()
	bridge := NewRuleSet("NATIONWIDE")
	bridge.AddRule(&Rule{System: "SYSTEM1", TGID: 3100, Timeslot: 1, Active: true})
	bridge.AddRule(&Rule{System: "SYSTEM2", TGID: 3100, Timeslot: 1, Active: true})
	router.AddBridge(bridge)

	targets := router.FanOut(12345, 3100, 1, "SYSTEM1", time.Now())
	if len(targets) != 1 || targets[0] != "SYSTEM2" {
		t.Errorf("expected [SYSTEM2], got %v", targets)
	}
}

func TestRouter_FanOut_SourceNotAMember(t *testing.T) {
	router := NewRouter()
	bridge := NewRuleSet("NATIONWIDE")
	bridge.AddRule(&Rule{System: "SYSTEM1", TGID: 3100, Timeslot: 1, Active: true})
	bridge.AddRule(&Rule{System: "SYSTEM2", TGID: 3100, Timeslot: 1, Active: true})
	router.AddBridge(bridge)

	// SYSTEM3 holds no rule in this bridge at all, so its traffic never
	// activates the bridge regardless of TGID/timeslot.
	targets := router.FanOut(12345, 3100, 1, "SYSTEM3", time.Now())
	if len(targets) != 0 {
		t.Errorf("expected no fan-out for a non-member source, got %v", targets)
	}
}

func TestRouter_FanOut_SourceRuleInactive(t *testing.T) {
	router := NewRouter()
	bridge := NewRuleSet("NATIONWIDE")
	bridge.AddRule(&Rule{System: "SYSTEM1", TGID: 3100, Timeslot: 1, Active: false})
	bridge.AddRule(&Rule{System: "SYSTEM2", TGID: 3100, Timeslot: 1, Active: true})
	router.AddBridge(bridge)

	targets := router.FanOut(12345, 3100, 1, "SYSTEM1", time.Now())
	if len(targets) != 0 {
		t.Errorf("expected no fan-out when the source's own rule is inactive, got %v", targets)
	}
}

func TestRouter_FanOut_NoMatchingTGID(t *testing.T) {
	router := NewRouter()
	bridge := NewRuleSet("NATIONWIDE")
	bridge.AddRule(&Rule{System: "SYSTEM1", TGID: 3100, Timeslot: 1, Active: true})
	bridge.AddRule(&Rule{System: "SYSTEM2", TGID: 3100, Timeslot: 1, Active: true})
	router.AddBridge(bridge)

	targets := router.FanOut(12345, 9999, 1, "SYSTEM1", time.Now())
	if len(targets) != 0 {
		t.Errorf("expected 0 targets for a non-matching TGID, got %v", targets)
	}
}

func TestRouter_FanOut_DuplicateStreamFromSameSystemDropped(t *testing.T) {
	router := NewRouter()
	bridge := NewRuleSet("NATIONWIDE")
	bridge.AddRule(&Rule{System: "SYSTEM1", TGID: 3100, Timeslot: 1, Active: true})
	bridge.AddRule(&Rule{System: "SYSTEM2", TGID: 3100, Timeslot: 1, Active: true})
	router.AddBridge(bridge)

	now := time.Now()
	targets := router.FanOut(12345, 3100, 1, "SYSTEM1", now)
	if len(targets) != 1 {
		t.Fatalf("expected 1 target on first fan-out, got %d", len(targets))
	}
	targets = router.FanOut(12345, 3100, 1, "SYSTEM1", now)
	if len(targets) != 0 {
		t.Errorf("expected 0 targets on a duplicate from the same system, got %d", len(targets))
	}
}

func TestRouter_EndStream_AllowsReTracking(t *testing.T) {
	router := NewRouter()
	bridge := NewRuleSet("NATIONWIDE")
	bridge.AddRule(&Rule{System: "SYSTEM1", TGID: 3100, Timeslot: 1, Active: true})
	bridge.AddRule(&Rule{System: "SYSTEM2", TGID: 3100, Timeslot: 1, Active: true})
	router.AddBridge(bridge)

	now := time.Now()
	router.FanOut(12345, 3100, 1, "SYSTEM1", now)
	router.EndStream(12345)

	targets := router.FanOut(12345, 3100, 1, "SYSTEM1", now)
	if len(targets) != 1 {
		t.Errorf("expected fan-out to work again after EndStream, got %d targets", len(targets))
	}
}

func TestRouter_ProcessActivation(t *testing.T) {
	router := NewRouter()
	bridge := NewRuleSet("NATIONWIDE")
	rule := &Rule{System: "SYSTEM1", TGID: 3100, Timeslot: 1, On: []uint32{3100}}
	bridge.AddRule(rule)
	router.AddBridge(bridge)

	activated := router.ProcessActivation(3100, time.Now())
	if len(activated) == 0 {
		t.Fatal("expected at least one bridge to report activation")
	}
	if !rule.Active {
		t.Error("expected rule to be activated")
	}
}

func TestRouter_ProcessDeactivation(t *testing.T) {
	router := NewRouter()
	bridge := NewRuleSet("NATIONWIDE")
	rule := &Rule{System: "SYSTEM1", TGID: 3100, Timeslot: 1, Active: true, Off: []uint32{3101}}
	bridge.AddRule(rule)
	router.AddBridge(bridge)

	deactivated := router.ProcessDeactivation(3101)
	if len(deactivated) == 0 {
		t.Fatal("expected at least one bridge to report deactivation")
	}
	if rule.Active {
		t.Error("expected rule to be deactivated")
	}
}

func TestRouter_SweepTimeouts(t *testing.T) {
	router := NewRouter()
	bridge := NewRuleSet("NATIONWIDE")
	start := time.Now()
	rule := &Rule{System: "SYSTEM1", TGID: 3100, Timeslot: 1, Active: true, TimeoutMinutes: 1, LastActivation: start}
	bridge.AddRule(rule)
	router.AddBridge(bridge)

	router.FanOut(999, 3100, 1, "SYSTEM1", start)
	expired := router.SweepTimeouts(start.Add(2*time.Minute), time.Minute)

	if len(expired) != 1 {
		t.Fatalf("expected 1 bridge to report an expired rule, got %d", len(expired))
	}
	if rule.Active {
		t.Error("expected rule to be deactivated by the sweep")
	}
}
