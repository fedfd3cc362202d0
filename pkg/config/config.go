// Package config loads hblink4's YAML configuration via viper and converts
// it into the types the rest of the server consumes directly: an
// access.Controller, a list of outbound.Config links, a bridge.Router, and
// a logger.Config.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/dbehnke/hblink4/pkg/access"
	"github.com/dbehnke/hblink4/pkg/bridge"
	"github.com/dbehnke/hblink4/pkg/logger"
	"github.com/dbehnke/hblink4/pkg/outbound"
	"github.com/dbehnke/hblink4/pkg/protocol"
)

// Config is the top-level configuration document (§6).
type Config struct {
	Global                 GlobalConfig            `mapstructure:"global"`
	Blacklist              BlacklistConfig         `mapstructure:"blacklist"`
	RepeaterConfigurations RepeaterConfigurations  `mapstructure:"repeater_configurations"`
	OutboundConnections    []OutboundConnection    `mapstructure:"outbound_connections"`
	Bridges                map[string][]BridgeRule `mapstructure:"bridges"`
	Metrics                MetricsConfig           `mapstructure:"metrics"`
	Logging                LoggingConfig           `mapstructure:"logging"`
}

// DashboardConfig is the `global.dashboard` transport object consumed by
// pkg/events.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Network string `mapstructure:"network"` // "unix" or "tcp"
	Address string `mapstructure:"address"`
}

// UserCacheConfig holds the subscriber last-seen cache's sweep timeout.
type UserCacheConfig struct {
	Timeout int `mapstructure:"timeout"` // seconds, must be >= 60
}

// GlobalConfig holds the server's network and timing configuration.
type GlobalConfig struct {
	BindIPv4       string          `mapstructure:"bind_ipv4"`
	PortIPv4       int             `mapstructure:"port_ipv4"`
	BindIPv6       string          `mapstructure:"bind_ipv6"`
	PortIPv6       int             `mapstructure:"port_ipv6"`
	DisableIPv6    bool            `mapstructure:"disable_ipv6"`
	PingTime       float64         `mapstructure:"ping_time"`
	MaxMissed      int             `mapstructure:"max_missed"`
	StreamTimeout  float64         `mapstructure:"stream_timeout"`
	StreamHangTime float64         `mapstructure:"stream_hang_time"`
	UserCache      UserCacheConfig `mapstructure:"user_cache"`
	Dashboard      DashboardConfig `mapstructure:"dashboard"`
}

// IDRangeConfig is an inclusive (start, end) repeater-ID range.
type IDRangeConfig struct {
	Start uint32 `mapstructure:"start"`
	End   uint32 `mapstructure:"end"`
}

// MatchConfig mirrors access.Match for decoding: exactly one of IDs,
// IDRanges, or Callsigns should be populated per §4.3.
type MatchConfig struct {
	IDs       []uint32        `mapstructure:"ids"`
	IDRanges  []IDRangeConfig `mapstructure:"id_ranges"`
	Callsigns []string        `mapstructure:"callsigns"`
}

func (m MatchConfig) variantCount() int {
	n := 0
	if len(m.IDs) > 0 {
		n++
	}
	if len(m.IDRanges) > 0 {
		n++
	}
	if len(m.Callsigns) > 0 {
		n++
	}
	return n
}

func (m MatchConfig) toAccessMatch() access.Match {
	ranges := make([]access.IDRange, len(m.IDRanges))
	for i, r := range m.IDRanges {
		ranges[i] = access.IDRange{Start: r.Start, End: r.End}
	}
	return access.Match{IDs: m.IDs, IDRanges: ranges, Callsigns: m.Callsigns}
}

// BlacklistPatternConfig is one `blacklist.patterns[]` entry.
type BlacklistPatternConfig struct {
	Name        string      `mapstructure:"name"`
	Description string      `mapstructure:"description"`
	Match       MatchConfig `mapstructure:"match"`
	Reason      string      `mapstructure:"reason"`
}

// BlacklistConfig is the `blacklist` section.
type BlacklistConfig struct {
	Patterns []BlacklistPatternConfig `mapstructure:"patterns"`
}

// RepeaterPolicyConfig is a pattern's `config:` block. A nil or empty
// talkgroup list means allow-all, matching the "…" elision in §6 — an
// operator who wants deny-all must say so with the access.Controller's
// resolved policy, not through an empty config list.
type RepeaterPolicyConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Passphrase      string   `mapstructure:"passphrase"`
	Slot1Talkgroups []uint32 `mapstructure:"slot1_talkgroups"`
	Slot2Talkgroups []uint32 `mapstructure:"slot2_talkgroups"`
}

func talkgroupSet(ids []uint32) protocol.TalkgroupSet {
	if len(ids) == 0 {
		return protocol.AllowAllSet()
	}
	return protocol.NewTalkgroupSet(ids...)
}

func (p RepeaterPolicyConfig) toAccessPolicy() access.RepeaterPolicy {
	return access.RepeaterPolicy{
		Enabled:         p.Enabled,
		Passphrase:      p.Passphrase,
		Slot1Talkgroups: talkgroupSet(p.Slot1Talkgroups),
		Slot2Talkgroups: talkgroupSet(p.Slot2Talkgroups),
	}
}

// RepeaterPatternConfig is one `repeater_configurations.patterns[]` entry.
type RepeaterPatternConfig struct {
	Name        string               `mapstructure:"name"`
	Description string               `mapstructure:"description"`
	Match       MatchConfig          `mapstructure:"match"`
	Config      RepeaterPolicyConfig `mapstructure:"config"`
}

// RepeaterConfigurations is the `repeater_configurations` section.
type RepeaterConfigurations struct {
	Patterns []RepeaterPatternConfig `mapstructure:"patterns"`
	Default  *RepeaterPolicyConfig   `mapstructure:"default"`
}

// OutboundConnection is one `outbound_connections[]` entry (§4.6).
type OutboundConnection struct {
	Enabled     bool   `mapstructure:"enabled"`
	Name        string `mapstructure:"name"`
	Address     string `mapstructure:"address"`
	Port        int    `mapstructure:"port"`
	OurID       uint32 `mapstructure:"our_id"`
	Password    string `mapstructure:"password"`
	Options     string `mapstructure:"options"`
	Callsign    string `mapstructure:"callsign"`
	RXFrequency string `mapstructure:"rx_frequency"`
	TXFrequency string `mapstructure:"tx_frequency"`
	Power       string `mapstructure:"power"`
	ColorCode   string `mapstructure:"color_code"`
	Latitude    string `mapstructure:"latitude"`
	Longitude   string `mapstructure:"longitude"`
	Height      string `mapstructure:"height"`
	Location    string `mapstructure:"location"`
	Description string `mapstructure:"description"`
	URL         string `mapstructure:"url"`
}

func (o OutboundConnection) toOutboundConfig(pingTime float64, maxMissed int) outbound.Config {
	return outbound.Config{
		Name:        o.Name,
		Enabled:     o.Enabled,
		Address:     o.Address,
		Port:        o.Port,
		OurID:       o.OurID,
		Password:    o.Password,
		Options:     o.Options,
		Callsign:    o.Callsign,
		RXFrequency: o.RXFrequency,
		TXFrequency: o.TXFrequency,
		Power:       o.Power,
		ColorCode:   o.ColorCode,
		Latitude:    o.Latitude,
		Longitude:   o.Longitude,
		Height:      o.Height,
		Location:    o.Location,
		Description: o.Description,
		URL:         o.URL,
		PingTime:    pingTime,
		MaxMissed:   maxMissed,
	}
}

// BridgeRule is one rule inside a named `bridges` entry (SPEC_FULL.md §6,
// mirroring classic HBlink's rules.yaml).
type BridgeRule struct {
	System   string   `mapstructure:"system"`
	TGID     uint32   `mapstructure:"tgid"`
	Timeslot int      `mapstructure:"timeslot"`
	Active   bool     `mapstructure:"active"`
	On       []uint32 `mapstructure:"on"`
	Off      []uint32 `mapstructure:"off"`
	Timeout  int      `mapstructure:"timeout"` // minutes, 0 disables auto-deactivation
}

func (r BridgeRule) toBridgeRule() *bridge.Rule {
	return &bridge.Rule{
		System:         r.System,
		TGID:           r.TGID,
		Timeslot:       r.Timeslot,
		Active:         r.Active,
		On:             r.On,
		Off:            r.Off,
		TimeoutMinutes: r.Timeout,
	}
}

// MetricsConfig is the `metrics` section (SPEC_FULL.md ambient stack).
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
	Port    int    `mapstructure:"port"`
}

// LoggingConfig is the `logging` section (SPEC_FULL.md ambient stack).
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Load reads configFile (or the default search path, if empty) via viper,
// applies defaults, and validates the result.
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/hblink4")
	}

	viper.SetEnvPrefix("HBLINK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no config file is fine, defaults apply
		} else if os.IsNotExist(err) {
			// explicitly named file missing is also fine
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("global.bind_ipv4", "0.0.0.0")
	viper.SetDefault("global.port_ipv4", 62031)
	viper.SetDefault("global.bind_ipv6", "::")
	viper.SetDefault("global.port_ipv6", 62031)
	viper.SetDefault("global.disable_ipv6", true)
	viper.SetDefault("global.ping_time", 5.0)
	viper.SetDefault("global.max_missed", 3)
	viper.SetDefault("global.stream_timeout", 2.0)
	viper.SetDefault("global.stream_hang_time", 10.0)
	viper.SetDefault("global.user_cache.timeout", 600)
	viper.SetDefault("global.dashboard.enabled", false)
	viper.SetDefault("global.dashboard.network", "unix")
	viper.SetDefault("global.dashboard.address", "/tmp/hblink4-events.sock")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 7)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.bind", "0.0.0.0")
	viper.SetDefault("metrics.port", 9100)
}

// BuildAccessController converts the blacklist/repeater_configurations
// sections into the access.Controller the repeater-admission path queries.
func (c *Config) BuildAccessController() (*access.Controller, error) {
	ctrl := &access.Controller{}

	for _, bp := range c.Blacklist.Patterns {
		if bp.Match.variantCount() != 1 {
			return nil, fmt.Errorf("blacklist pattern %q: match must have exactly one of ids, id_ranges, callsigns", bp.Name)
		}
		ctrl.Blacklist = append(ctrl.Blacklist, access.BlacklistPattern{
			Name:        bp.Name,
			Description: bp.Description,
			Match:       bp.Match.toAccessMatch(),
			Reason:      bp.Reason,
		})
	}

	for _, rp := range c.RepeaterConfigurations.Patterns {
		if rp.Match.variantCount() != 1 {
			return nil, fmt.Errorf("repeater pattern %q: match must have exactly one of ids, id_ranges, callsigns", rp.Name)
		}
		ctrl.Patterns = append(ctrl.Patterns, access.RepeaterPattern{
			Name:        rp.Name,
			Description: rp.Description,
			Match:       rp.Match.toAccessMatch(),
			Config:      rp.Config.toAccessPolicy(),
		})
	}

	if d := c.RepeaterConfigurations.Default; d != nil {
		policy := d.toAccessPolicy()
		ctrl.Default = &policy
	}

	return ctrl, nil
}

// BuildOutboundConfigs converts `outbound_connections[]` into outbound.Config
// values, inheriting the keepalive timing from `global`.
func (c *Config) BuildOutboundConfigs() []outbound.Config {
	out := make([]outbound.Config, 0, len(c.OutboundConnections))
	for _, oc := range c.OutboundConnections {
		out = append(out, oc.toOutboundConfig(c.Global.PingTime, c.Global.MaxMissed))
	}
	return out
}

// BuildBridgeRouter converts the `bridges` section into a populated
// bridge.Router.
func (c *Config) BuildBridgeRouter() *bridge.Router {
	router := bridge.NewRouter()
	for name, rules := range c.Bridges {
		rs := bridge.NewRuleSet(name)
		for _, r := range rules {
			rs.AddRule(r.toBridgeRule())
		}
		router.AddBridge(rs)
	}
	return router
}

// LoggerConfig converts the `logging` section into logger.Config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}
