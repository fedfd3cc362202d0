package config

import "fmt"

// validate checks cross-field invariants the mapstructure decode alone
// cannot enforce.
func validate(cfg *Config) error {
	if cfg.Global.PingTime <= 0 {
		return fmt.Errorf("global.ping_time must be positive")
	}
	if cfg.Global.MaxMissed <= 0 {
		return fmt.Errorf("global.max_missed must be positive")
	}
	if cfg.Global.StreamTimeout <= 0 {
		return fmt.Errorf("global.stream_timeout must be positive")
	}
	if cfg.Global.StreamHangTime <= 0 {
		return fmt.Errorf("global.stream_hang_time must be positive")
	}
	if cfg.Global.UserCache.Timeout < 60 {
		return fmt.Errorf("global.user_cache.timeout must be at least 60 seconds")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be between 1 and 65535")
		}
	}

	for _, bp := range cfg.Blacklist.Patterns {
		if bp.Match.variantCount() != 1 {
			return fmt.Errorf("blacklist pattern %q: match must have exactly one of ids, id_ranges, callsigns", bp.Name)
		}
	}

	for _, rp := range cfg.RepeaterConfigurations.Patterns {
		if rp.Match.variantCount() != 1 {
			return fmt.Errorf("repeater pattern %q: match must have exactly one of ids, id_ranges, callsigns", rp.Name)
		}
	}

	for i, oc := range cfg.OutboundConnections {
		if !oc.Enabled {
			continue
		}
		if oc.Name == "" {
			return fmt.Errorf("outbound_connections[%d]: name is required", i)
		}
		if oc.Address == "" {
			return fmt.Errorf("outbound_connections[%d]: address is required", i)
		}
		if oc.Port <= 0 || oc.Port > 65535 {
			return fmt.Errorf("outbound_connections[%d]: port must be between 1 and 65535", i)
		}
		if oc.OurID == 0 {
			return fmt.Errorf("outbound_connections[%d]: our_id is required", i)
		}
	}

	for bridgeName, rules := range cfg.Bridges {
		for i, rule := range rules {
			if rule.System == "" {
				return fmt.Errorf("bridge %s rule %d: system is required", bridgeName, i)
			}
			if rule.TGID == 0 {
				return fmt.Errorf("bridge %s rule %d: tgid must be positive", bridgeName, i)
			}
			if rule.Timeslot != 1 && rule.Timeslot != 2 {
				return fmt.Errorf("bridge %s rule %d: timeslot must be 1 or 2", bridgeName, i)
			}
		}
	}

	return nil
}
