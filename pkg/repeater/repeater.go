// Package repeater implements the Connection Manager's per-repeater state:
// the login/config/connected phase progression, keepalive tracking, and
// resolved per-slot talkgroup policy. A Repeater is mutated exclusively by
// the engine goroutine (pkg/server), so none of its fields are guarded by a
// mutex — see SPEC_FULL.md §5.
package repeater

import (
	"net"
	"time"

	"github.com/dbehnke/hblink4/pkg/protocol"
)

// Phase is a repeater's position in the Connection Manager state machine.
type Phase int

const (
	PhaseLogin Phase = iota
	PhaseConfig
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseLogin:
		return "login"
	case PhaseConfig:
		return "config"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Repeater is the Repeater State of SPEC_FULL.md §3.
type Repeater struct {
	ID    uint32
	Addr  *net.UDPAddr
	Phase Phase

	Salt           []byte
	LastPing       time.Time
	KeepaliveCount int
	Missed         int

	// Passphrase is the expected RPTK hash input, resolved by the Access
	// Controller at RPTL time and consulted once during auth; it plays no
	// further role once the repeater reaches PhaseConfig.
	Passphrase string

	// ConfiguredSlot{1,2} are the ceiling set by the Access Controller;
	// Slot{1,2} are the live, possibly-narrowed-by-RPTO effective policy.
	ConfiguredSlot1 protocol.TalkgroupSet
	ConfiguredSlot2 protocol.TalkgroupSet
	Slot1           protocol.TalkgroupSet
	Slot2           protocol.TalkgroupSet
	OptionsReceived bool

	Callsign    string
	RXFreq      string
	TXFreq      string
	TXPower     string
	ColorCode   string
	Latitude    string
	Longitude   string
	Height      string
	Location    string
	Description string
	Slots       string
	URL         string
	SoftwareID  string
	PackageID   string

	// PatternName is the Access Controller pattern (or "default") that
	// resolved this repeater's policy — its identity as a bridge "system"
	// (SPEC_FULL.md §4.9 Glossary).
	PatternName string

	ConnectedAt time.Time
}

// New creates a Repeater immediately after RPTL acceptance, in PhaseLogin.
func New(id uint32, addr *net.UDPAddr, salt []byte) *Repeater {
	return &Repeater{
		ID:    id,
		Addr:  addr,
		Phase: PhaseLogin,
		Salt:  salt,
	}
}

// ApplyPolicy sets the configured (and, until any RPTO narrows it, live)
// per-slot talkgroup policy, as resolved by the Access Controller.
func (r *Repeater) ApplyPolicy(slot1, slot2 protocol.TalkgroupSet) {
	r.ConfiguredSlot1 = slot1
	r.ConfiguredSlot2 = slot2
	r.Slot1 = slot1
	r.Slot2 = slot2
}

// ApplyConfig records an RPTC packet's metadata.
func (r *Repeater) ApplyConfig(c *protocol.RPTCPacket) {
	r.Callsign = c.Callsign
	r.RXFreq = c.RXFreq
	r.TXFreq = c.TXFreq
	r.TXPower = c.TXPower
	r.ColorCode = c.ColorCode
	r.Latitude = c.Latitude
	r.Longitude = c.Longitude
	r.Height = c.Height
	r.Location = c.Location
	r.Description = c.Description
	r.Slots = c.Slots
	r.URL = c.URL
	r.SoftwareID = c.SoftwareID
	r.PackageID = c.PackageID
}

// ApplyOptions intersects a repeater-requested RPTO policy with the
// configured ceiling and updates the live per-slot policy.
func (r *Repeater) ApplyOptions(ts1, ts2 protocol.TalkgroupSet) {
	r.Slot1 = ts1.Intersect(r.ConfiguredSlot1)
	r.Slot2 = ts2.Intersect(r.ConfiguredSlot2)
	r.OptionsReceived = true
}

// SetPatternName records the Access Controller pattern name that resolved
// this repeater's policy, for bridge system-name resolution (§4.9).
func (r *Repeater) SetPatternName(name string) {
	r.PatternName = name
}

// TargetID implements pkg/routing.Target.
func (r *Repeater) TargetID() uint32 {
	return r.ID
}

// PermitsSlot reports whether tgid is allowed on the given timeslot by this
// repeater's live policy.
func (r *Repeater) PermitsSlot(slot int, tgid uint32) bool {
	switch slot {
	case protocol.Timeslot1:
		return r.Slot1.Permits(tgid)
	case protocol.Timeslot2:
		return r.Slot2.Permits(tgid)
	default:
		return false
	}
}

// MarkPing resets the keepalive counters on a successful RPTP.
func (r *Repeater) MarkPing(now time.Time) {
	r.LastPing = now
	r.Missed = 0
	r.KeepaliveCount++
}

// MarkConnected transitions to PhaseConnected and records the connect time.
func (r *Repeater) MarkConnected(now time.Time) {
	r.Phase = PhaseConnected
	r.ConnectedAt = now
	r.LastPing = now
}
