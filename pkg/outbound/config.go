package outbound

import "github.com/dbehnke/hblink4/pkg/protocol"

// Config describes one outbound link: hblink4 presenting as a repeater to
// a remote HomeBrew master (SPEC_FULL.md §4.6, §6 outbound_connections[]).
type Config struct {
	Name    string
	Enabled bool

	Address string
	Port    int

	OurID    uint32
	Password string
	Options  string // raw RPTO payload, optional ("" to skip RPTO)

	Callsign      string
	RXFrequency   string
	TXFrequency   string
	Power         string
	ColorCode     string
	Latitude      string
	Longitude     string
	Height        string
	Location      string
	Description   string
	URL           string
	SoftwareID    string
	PackageID     string

	PingTime  float64 // seconds
	MaxMissed int
}

// Slot1Talkgroups and Slot2Talkgroups are parsed once from Options at
// Link creation time and cached on the Link itself, since pkg/routing
// needs them on every group-call target computation.
func parsePolicy(options string) (ts1, ts2 protocol.TalkgroupSet) {
	if options == "" {
		return protocol.AllowAllSet(), protocol.AllowAllSet()
	}
	ts1, ts2, err := protocol.ParseRPTOPayload(options)
	if err != nil {
		return protocol.DenyAll(), protocol.DenyAll()
	}
	return ts1, ts2
}
