// Package outbound implements the Outbound Link Client of SPEC_FULL.md
// §4.6: hblink4 presenting as a repeater to a remote HomeBrew master,
// sharing a single UDP socket across every configured link the way the
// spec's reverse-index requirement implies.
package outbound

import (
	"fmt"
	"net"
	"time"

	"github.com/dbehnke/hblink4/pkg/logger"
	"github.com/dbehnke/hblink4/pkg/protocol"
)

// State is a Link's position in the outbound handshake state machine.
type State int

const (
	StateDisconnected State = iota
	StateLoginSent
	StateAuthenticated
	StateConfigSent
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateLoginSent:
		return "login_sent"
	case StateAuthenticated:
		return "authenticated"
	case StateConfigSent:
		return "config_sent"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Frame is a decoded inbound datagram from a link's remote master, tagged
// so the engine can fold it into the same dispatch path as a packet from
// an ordinary repeater.
type Frame struct {
	LinkName string
	Data     []byte
}

// Link is one outbound connection's state machine. It owns no socket of
// its own — Manager multiplexes all links over a single net.UDPConn and
// routes received datagrams to the matching Link by source address.
type Link struct {
	Config Config
	Addr   *net.UDPAddr

	state    State
	salt     []byte
	lastPong time.Time
	missed   int

	Slot1Talkgroups protocol.TalkgroupSet
	Slot2Talkgroups protocol.TalkgroupSet

	// inbox carries handshake-relevant control datagrams (MSTCL, RPTACK,
	// MSTNAK) from Manager's single receive loop to the goroutine driving
	// this link's synchronous handshake. DMRD and MSTPONG never go through
	// it — those are handled directly by the receive loop.
	inbox chan []byte

	log *logger.Logger
}

// NewLink resolves a Config's address and prepares a Link in
// StateDisconnected. Name collisions and DNS failures are the caller's
// (Manager's) concern to log and retry.
func NewLink(cfg Config, log *logger.Logger) (*Link, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Address, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Name, err)
	}
	ts1, ts2 := parsePolicy(cfg.Options)
	return &Link{
		Config:          cfg,
		Addr:            addr,
		state:           StateDisconnected,
		Slot1Talkgroups: ts1,
		Slot2Talkgroups: ts2,
		inbox:           make(chan []byte, 4),
		log:             log.WithComponent("outbound.link." + cfg.Name),
	}, nil
}

// awaitFrame blocks for one handshake-relevant datagram routed to this
// link's inbox by Manager's receive loop, or returns an error on timeout.
func (l *Link) awaitFrame(timeout time.Duration) ([]byte, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case data := <-l.inbox:
		return data, nil
	case <-t.C:
		return nil, fmt.Errorf("timed out waiting for reply from %s", l.Addr)
	}
}

// TargetID implements pkg/routing.Target: a link presents to the routing
// engine as the configured our_id.
func (l *Link) TargetID() uint32 {
	return l.Config.OurID
}

// PermitsSlot implements pkg/routing.Target.
func (l *Link) PermitsSlot(slot int, tgid uint32) bool {
	switch slot {
	case protocol.Timeslot1:
		return l.Slot1Talkgroups.Permits(tgid)
	case protocol.Timeslot2:
		return l.Slot2Talkgroups.Permits(tgid)
	default:
		return false
	}
}

// State returns the link's current handshake/connection state.
func (l *Link) State() State {
	return l.state
}

// Connected reports whether the handshake has completed.
func (l *Link) Connected() bool {
	return l.state == StateConnected
}

// BeginLogin returns the RPTL datagram that starts (or restarts) the
// handshake and resets state to StateLoginSent.
func (l *Link) BeginLogin() ([]byte, error) {
	l.state = StateLoginSent
	rptl := &protocol.RPTLPacket{RepeaterID: l.Config.OurID}
	return rptl.Encode()
}

// HandleMSTCL processes the server's login challenge and returns the RPTK
// response. Only valid from StateLoginSent.
func (l *Link) HandleMSTCL(pkt *protocol.MSTCLPacket) ([]byte, error) {
	l.salt = pkt.Salt
	hash := protocol.ComputeAuthHash(l.salt, l.Config.Password)
	l.state = StateAuthenticated
	rptk := &protocol.RPTKPacket{RepeaterID: l.Config.OurID, Hash: hash}
	return rptk.Encode()
}

// BuildRPTC returns the 302-byte RPTC configuration datagram for this
// link's presented identity, and advances state to StateConfigSent.
func (l *Link) BuildRPTC() ([]byte, error) {
	l.state = StateConfigSent
	rptc := &protocol.RPTCPacket{
		RepeaterID:  l.Config.OurID,
		Callsign:    l.Config.Callsign,
		RXFreq:      l.Config.RXFrequency,
		TXFreq:      l.Config.TXFrequency,
		TXPower:     l.Config.Power,
		ColorCode:   l.Config.ColorCode,
		Latitude:    l.Config.Latitude,
		Longitude:   l.Config.Longitude,
		Height:      l.Config.Height,
		Location:    l.Config.Location,
		Description: l.Config.Description,
		URL:         l.Config.URL,
		SoftwareID:  l.Config.SoftwareID,
		PackageID:   l.Config.PackageID,
	}
	return rptc.Encode()
}

// BuildRPTO returns the RPTO options datagram, or nil if this link has no
// options configured.
func (l *Link) BuildRPTO() []byte {
	if l.Config.Options == "" {
		return nil
	}
	pkt := &protocol.RPTOPacket{RepeaterID: l.Config.OurID, Options: l.Config.Options}
	data, err := pkt.Encode()
	if err != nil {
		return nil
	}
	return data
}

// HandleFinalACK marks the handshake complete after the RPTC (or trailing
// RPTO) has been acknowledged.
func (l *Link) HandleFinalACK(now time.Time) {
	l.state = StateConnected
	l.lastPong = now
	l.missed = 0
}

// BuildPing returns an RPTPING datagram.
func (l *Link) BuildPing() ([]byte, error) {
	pkt := &protocol.RPTPINGPacket{RepeaterID: l.Config.OurID}
	return pkt.Encode()
}

// HandlePong records a received MSTPONG, resetting the missed counter.
func (l *Link) HandlePong(now time.Time) {
	l.lastPong = now
	l.missed = 0
}

// CheckKeepalive increments the missed counter if a ping has gone
// unanswered for longer than ping_time, and reports whether max_missed has
// now been reached (the link should be torn down and reconnection begun).
func (l *Link) CheckKeepalive(now time.Time) bool {
	pingInterval := time.Duration(l.Config.PingTime * float64(time.Second))
	if now.Sub(l.lastPong) <= pingInterval {
		return false
	}
	l.missed++
	return l.missed >= l.Config.MaxMissed
}

// BuildClose returns the graceful RPTCL datagram sent on shutdown.
func (l *Link) BuildClose() ([]byte, error) {
	pkt := &protocol.RPTCLPacket{RepeaterID: l.Config.OurID}
	return pkt.Encode()
}

// Disconnect resets the link to StateDisconnected ahead of a reconnect
// attempt.
func (l *Link) Disconnect() {
	l.state = StateDisconnected
	l.salt = nil
	l.missed = 0
}
