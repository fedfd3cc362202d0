package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_UsesDefaults_WhenNoFile(t *testing.T) {
	viper.Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Global.PingTime != 5.0 {
		t.Errorf("expected Global.PingTime default 5.0, got %v", cfg.Global.PingTime)
	}
	if cfg.Global.MaxMissed != 3 {
		t.Errorf("expected Global.MaxMissed default 3, got %d", cfg.Global.MaxMissed)
	}
	if cfg.Global.StreamTimeout != 2.0 {
		t.Errorf("expected Global.StreamTimeout default 2.0, got %v", cfg.Global.StreamTimeout)
	}
	if cfg.Global.StreamHangTime != 10.0 {
		t.Errorf("expected Global.StreamHangTime default 10.0, got %v", cfg.Global.StreamHangTime)
	}
	if cfg.Global.UserCache.Timeout != 600 {
		t.Errorf("expected UserCache.Timeout default 600, got %d", cfg.Global.UserCache.Timeout)
	}
	if cfg.Logging.Level == "" {
		t.Error("expected Logging.Level to be set (default info)")
	}
	if cfg.Metrics.Port != 9100 {
		t.Errorf("expected Metrics.Port default 9100, got %d", cfg.Metrics.Port)
	}
}

func TestValidate_Errors(t *testing.T) {
	validGlobal := GlobalConfig{
		PingTime: 5, MaxMissed: 3, StreamTimeout: 2, StreamHangTime: 10,
		UserCache: UserCacheConfig{Timeout: 60},
	}

	t.Run("invalid global ping_time", func(t *testing.T) {
		cfg := &Config{Global: GlobalConfig{PingTime: 0, MaxMissed: 1}}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for non-positive global.ping_time")
		}
	})

	t.Run("user_cache timeout below minimum", func(t *testing.T) {
		cfg := &Config{Global: GlobalConfig{
			PingTime: 1, MaxMissed: 1, StreamTimeout: 1, StreamHangTime: 1,
			UserCache: UserCacheConfig{Timeout: 10},
		}}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for user_cache.timeout below 60")
		}
	})

	t.Run("invalid metrics port when enabled", func(t *testing.T) {
		cfg := &Config{Global: validGlobal, Metrics: MetricsConfig{Enabled: true, Port: 70000}}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for invalid metrics.port out of range")
		}
	})

	t.Run("blacklist pattern with no match variant", func(t *testing.T) {
		cfg := &Config{
			Global:    validGlobal,
			Blacklist: BlacklistConfig{Patterns: []BlacklistPatternConfig{{Name: "bad"}}},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for blacklist pattern with no match variant")
		}
	})

	t.Run("repeater pattern with multiple match variants", func(t *testing.T) {
		cfg := &Config{
			Global: validGlobal,
			RepeaterConfigurations: RepeaterConfigurations{
				Patterns: []RepeaterPatternConfig{{
					Name: "ambiguous",
					Match: MatchConfig{
						IDs:       []uint32{1},
						Callsigns: []string{"W*"},
					},
				}},
			},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for pattern with more than one match variant")
		}
	})

	t.Run("enabled outbound connection missing address", func(t *testing.T) {
		cfg := &Config{
			Global:              validGlobal,
			OutboundConnections: []OutboundConnection{{Enabled: true, Name: "UPLINK", Port: 62031, OurID: 312000}},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for enabled outbound connection without address")
		}
	})

	t.Run("bridge rule bad timeslot", func(t *testing.T) {
		cfg := &Config{
			Global: validGlobal,
			Bridges: map[string][]BridgeRule{
				"NATIONWIDE": {{System: "SYS1", TGID: 3100, Timeslot: 3}},
			},
		}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for bridge rule timeslot outside 1/2")
		}
	})
}

func TestBuildAccessController(t *testing.T) {
	cfg := &Config{
		Blacklist: BlacklistConfig{Patterns: []BlacklistPatternConfig{
			{Name: "banned", Match: MatchConfig{IDs: []uint32{999}}, Reason: "abuse"},
		}},
		RepeaterConfigurations: RepeaterConfigurations{
			Patterns: []RepeaterPatternConfig{
				{Name: "locals", Match: MatchConfig{IDRanges: []IDRangeConfig{{Start: 3120000, End: 3129999}}},
					Config: RepeaterPolicyConfig{Enabled: true, Passphrase: "secret", Slot1Talkgroups: []uint32{3100}}},
			},
			Default: &RepeaterPolicyConfig{Enabled: true, Passphrase: "default-pass"},
		},
	}

	ctrl, err := cfg.BuildAccessController()
	if err != nil {
		t.Fatalf("BuildAccessController returned error: %v", err)
	}

	if _, err := ctrl.Resolve(999, "W1ABC"); err == nil {
		t.Error("expected blacklisted repeater to be rejected")
	}

	policy, err := ctrl.Resolve(3125000, "W1ABC")
	if err != nil {
		t.Fatalf("expected pattern match, got error: %v", err)
	}
	if policy.Passphrase != "secret" {
		t.Errorf("expected passphrase from pattern, got %q", policy.Passphrase)
	}
	if !policy.Slot1Talkgroups.Permits(3100) {
		t.Error("expected slot1 talkgroup 3100 to be permitted")
	}
	if policy.Slot1Talkgroups.Permits(9999) {
		t.Error("expected slot1 talkgroup 9999 to be denied")
	}

	defaultPolicy, err := ctrl.Resolve(5000000, "W2XYZ")
	if err != nil {
		t.Fatalf("expected default policy, got error: %v", err)
	}
	if defaultPolicy.Passphrase != "default-pass" {
		t.Errorf("expected default passphrase, got %q", defaultPolicy.Passphrase)
	}
	if !defaultPolicy.Slot1Talkgroups.Permits(123456) {
		t.Error("expected unconfigured slot talkgroups to default to allow-all")
	}
}

func TestBuildAccessController_RejectsAmbiguousMatch(t *testing.T) {
	cfg := &Config{
		Blacklist: BlacklistConfig{Patterns: []BlacklistPatternConfig{
			{Name: "bad", Match: MatchConfig{IDs: []uint32{1}, Callsigns: []string{"W*"}}},
		}},
	}
	if _, err := cfg.BuildAccessController(); err == nil {
		t.Fatal("expected error for a pattern declaring two match variants")
	}
}

func TestBuildOutboundConfigs(t *testing.T) {
	cfg := &Config{
		Global: GlobalConfig{PingTime: 5, MaxMissed: 3},
		OutboundConnections: []OutboundConnection{
			{Enabled: true, Name: "UPLINK1", Address: "master.example.org", Port: 62031, OurID: 312000, Password: "secret"},
		},
	}

	links := cfg.BuildOutboundConfigs()
	if len(links) != 1 {
		t.Fatalf("expected 1 outbound link, got %d", len(links))
	}
	if links[0].Name != "UPLINK1" || links[0].PingTime != 5 || links[0].MaxMissed != 3 {
		t.Errorf("outbound config not populated as expected: %+v", links[0])
	}
}

func TestBuildBridgeRouter(t *testing.T) {
	cfg := &Config{
		Bridges: map[string][]BridgeRule{
			"NATIONWIDE": {
				{System: "SYS1", TGID: 3100, Timeslot: 1, Active: true},
				{System: "SYS2", TGID: 3100, Timeslot: 1, Active: true},
			},
		},
	}

	router := cfg.BuildBridgeRouter()
	rs := router.Bridge("NATIONWIDE")
	if rs == nil {
		t.Fatal("expected NATIONWIDE bridge to be registered")
	}
	if len(rs.Rules) != 2 {
		t.Errorf("expected 2 rules, got %d", len(rs.Rules))
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug", Format: "console", MaxSize: 50}}
	lc := cfg.LoggerConfig()
	if lc.Level != "debug" || lc.Format != "console" || lc.MaxSize != 50 {
		t.Errorf("LoggerConfig not mapped as expected: %+v", lc)
	}
}
