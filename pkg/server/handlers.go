package server

import (
	"crypto/rand"
	"errors"
	"net"
	"time"

	"github.com/dbehnke/hblink4/pkg/access"
	"github.com/dbehnke/hblink4/pkg/events"
	"github.com/dbehnke/hblink4/pkg/logger"
	"github.com/dbehnke/hblink4/pkg/protocol"
	"github.com/dbehnke/hblink4/pkg/repeater"
	"github.com/dbehnke/hblink4/pkg/stream"
)

// handleFrame is the single dispatch point for every frame the engine loop
// receives, whether from a bound UDP socket or relayed from an outbound
// link's own receive loop.
func (e *Engine) handleFrame(f frame) {
	if f.linkName != "" {
		e.handleOutboundDMRD(f)
		return
	}

	switch protocol.ClassifyPrefix(f.data) {
	case protocol.PacketTypeRPTL:
		e.handleRPTL(f.data, f.addr, f.family)
	case protocol.PacketTypeRPTK:
		e.handleRPTK(f.data, f.addr, f.family)
	case protocol.PacketTypeRPTC:
		e.handleRPTC(f.data, f.addr, f.family)
	case protocol.PacketTypeRPTO:
		e.handleRPTO(f.data, f.addr, f.family)
	case protocol.PacketTypeRPTPING:
		e.handleRPTPING(f.data, f.addr, f.family)
	case protocol.PacketTypeRPTCL:
		e.handleRPTCL(f.data, f.addr)
	case protocol.PacketTypeDMRD:
		e.handleInboundDMRD(f.data, f.addr, f.family)
	default:
		e.log.Debug("dropping unrecognized packet", logger.String("addr", f.addr.String()))
	}
}

// handleRPTL processes a login request: §4.1/§4.2 reservation check, access
// controller lookup (callsign unknown at this point — resolved again at
// RPTC with the real callsign), salt generation, and the MSTCL challenge.
func (e *Engine) handleRPTL(data []byte, addr *net.UDPAddr, family int) {
	pkt, err := protocol.ParseRPTL(data)
	if err != nil {
		e.log.Debug("malformed RPTL", logger.Error(err))
		return
	}

	if e.reserved.IsReserved(pkt.RepeaterID) {
		e.log.Warn("login rejected: ID reserved for an outbound link", logger.Uint32("repeater_id", pkt.RepeaterID))
		e.sendMSTNAK(pkt.RepeaterID, addr, family)
		return
	}

	policy, err := e.access.Resolve(pkt.RepeaterID, "")
	if err != nil {
		e.logAccessRejection(pkt.RepeaterID, err)
		e.sendMSTNAK(pkt.RepeaterID, addr, family)
		return
	}

	salt, err := randomSalt()
	if err != nil {
		e.log.Error("failed to generate login salt", logger.Error(err))
		e.sendMSTNAK(pkt.RepeaterID, addr, family)
		return
	}

	r := repeater.New(pkt.RepeaterID, addr, salt)
	r.Passphrase = policy.Passphrase
	r.ApplyPolicy(policy.Slot1Talkgroups, policy.Slot2Talkgroups)
	e.repeaters.Add(r)

	challenge := &protocol.MSTCLPacket{RepeaterID: r.ID, Salt: salt}
	e.sendPacket(challenge.Encode, addr, family, protocol.PacketTypeMSTCL)
}

// handleRPTK verifies the RPTK auth hash against the salt issued at RPTL.
func (e *Engine) handleRPTK(data []byte, addr *net.UDPAddr, family int) {
	pkt, err := protocol.ParseRPTK(data)
	if err != nil {
		e.log.Debug("malformed RPTK", logger.Error(err))
		return
	}

	r := e.repeaters.GetByAddr(addr)
	if r == nil || r.ID != pkt.RepeaterID || r.Phase != repeater.PhaseLogin {
		e.sendMSTNAK(pkt.RepeaterID, addr, family)
		return
	}

	if !protocol.VerifyAuthHash(r.Salt, r.Passphrase, pkt.Hash) {
		e.log.Warn("auth hash mismatch", logger.Uint32("repeater_id", r.ID))
		e.repeaters.Remove(r.ID)
		e.sendMSTNAK(r.ID, addr, family)
		return
	}

	r.Phase = repeater.PhaseConfig
	ack := &protocol.RPTACKPacket{RepeaterID: r.ID}
	e.sendPacket(ack.Encode, addr, family, protocol.PacketTypeRPTACK)
}

// handleRPTC applies the repeater's configuration, re-resolves the access
// controller now that the real callsign is known, and transitions to
// PhaseConnected.
func (e *Engine) handleRPTC(data []byte, addr *net.UDPAddr, family int) {
	pkt, err := protocol.ParseRPTC(data)
	if err != nil {
		e.log.Debug("malformed RPTC", logger.Error(err))
		return
	}

	r := e.repeaters.GetByAddr(addr)
	if r == nil || r.ID != pkt.RepeaterID || r.Phase != repeater.PhaseConfig {
		e.sendMSTNAK(pkt.RepeaterID, addr, family)
		return
	}
	r.ApplyConfig(pkt)

	name, policy, err := e.access.ResolveName(r.ID, r.Callsign)
	if err != nil {
		e.logAccessRejection(r.ID, err)
		e.repeaters.Remove(r.ID)
		e.sendMSTNAK(r.ID, addr, family)
		return
	}
	r.ApplyPolicy(policy.Slot1Talkgroups, policy.Slot2Talkgroups)
	r.SetPatternName(name)

	now := time.Now()
	r.MarkConnected(now)

	if e.metrics != nil {
		e.metrics.RepeaterConnected(r.ID)
	}
	e.emitter.Emit(events.KindRepeaterConnected, now, events.RepeaterConnectedData{
		RepeaterID: r.ID, Address: addr.String(),
	})
	e.emitter.Emit(events.KindRepeaterDetails, now, events.RepeaterDetailsData{
		RepeaterID: r.ID, Callsign: r.Callsign, RXFreq: r.RXFreq, TXFreq: r.TXFreq,
		ColorCode: r.ColorCode, Location: r.Location,
	})

	ack := &protocol.RPTACKPacket{RepeaterID: r.ID}
	e.sendPacket(ack.Encode, addr, family, protocol.PacketTypeRPTACK)
}

// handleRPTO narrows a connected repeater's live per-slot policy to the
// repeater-requested talkgroup set, intersected with its configured ceiling.
func (e *Engine) handleRPTO(data []byte, addr *net.UDPAddr, family int) {
	pkt, err := protocol.ParseRPTO(data)
	if err != nil {
		e.log.Debug("malformed RPTO", logger.Error(err))
		return
	}

	r := e.repeaters.GetByAddr(addr)
	if r == nil || r.ID != pkt.RepeaterID || r.Phase != repeater.PhaseConnected {
		e.sendMSTNAK(pkt.RepeaterID, addr, family)
		return
	}

	ts1, ts2, err := protocol.ParseRPTOPayload(pkt.Options)
	if err != nil {
		e.log.Warn("malformed RPTO options", logger.Uint32("repeater_id", r.ID), logger.Error(err))
		e.sendMSTNAK(r.ID, addr, family)
		return
	}
	r.ApplyOptions(ts1, ts2)

	ack := &protocol.RPTACKPacket{RepeaterID: r.ID}
	e.sendPacket(ack.Encode, addr, family, protocol.PacketTypeRPTACK)
}

// handleRPTPING answers a connected repeater's keepalive with MSTPONG.
func (e *Engine) handleRPTPING(data []byte, addr *net.UDPAddr, family int) {
	pkt, err := protocol.ParseRPTPING(data)
	if err != nil {
		e.log.Debug("malformed RPTPING", logger.Error(err))
		return
	}

	r := e.repeaters.GetByAddr(addr)
	if r == nil || r.ID != pkt.RepeaterID || r.Phase != repeater.PhaseConnected {
		e.sendMSTNAK(pkt.RepeaterID, addr, family)
		return
	}
	r.MarkPing(time.Now())

	pong := &protocol.MSTPONGPacket{RepeaterID: r.ID}
	e.sendPacket(pong.Encode, addr, family, protocol.PacketTypeMSTPONG)
}

// handleRPTCL handles a graceful disconnect request.
func (e *Engine) handleRPTCL(data []byte, addr *net.UDPAddr) {
	pkt, err := protocol.ParseRPTCL(data)
	if err != nil {
		e.log.Debug("malformed RPTCL", logger.Error(err))
		return
	}

	r := e.repeaters.GetByAddr(addr)
	if r == nil || r.ID != pkt.RepeaterID {
		return
	}
	e.evictRepeater(r, "graceful_close")
}

// evictRepeater removes a repeater from the Connection Manager, ending any
// streams still occupying its slots and reporting the disconnect.
func (e *Engine) evictRepeater(r *repeater.Repeater, reason string) {
	now := time.Now()
	for _, slot := range [2]int{protocol.Timeslot1, protocol.Timeslot2} {
		key := stream.Key{RepeaterID: r.ID, Slot: slot}
		if s := e.streams.Get(key); s != nil && !s.Ended {
			s.End(now, stream.EndTimeout)
			e.emitStreamEnd(s)
			e.bridges.EndStream(s.StreamID)
		}
	}
	e.repeaters.Remove(r.ID)

	if e.metrics != nil {
		e.metrics.RepeaterDisconnected(r.ID)
	}
	e.emitter.Emit(events.KindRepeaterDisconnected, now, events.RepeaterDisconnectedData{
		RepeaterID: r.ID, Reason: reason,
	})
}

func (e *Engine) sendMSTNAK(repeaterID uint32, addr *net.UDPAddr, family int) {
	nak := &protocol.MSTNAKPacket{RepeaterID: repeaterID}
	e.sendPacket(nak.Encode, addr, family, protocol.PacketTypeMSTNAK)
}

// sendPacket encodes a reply and writes it to addr over the socket matching
// family.
func (e *Engine) sendPacket(encode func() ([]byte, error), addr *net.UDPAddr, family int, label string) {
	data, err := encode()
	if err != nil {
		e.log.Error("failed to encode reply", logger.String("type", label), logger.Error(err))
		return
	}
	e.writeUDP(data, addr, family, label)
}

func (e *Engine) writeUDP(data []byte, addr *net.UDPAddr, family int, label string) {
	conn := e.conn4
	if family == 6 {
		conn = e.conn6
	}
	if conn == nil {
		e.log.Error("no listener for family", logger.Int("family", family))
		return
	}
	if _, err := conn.WriteToUDP(data, addr); err != nil {
		e.log.Error("udp write failed", logger.String("type", label), logger.Error(err))
		return
	}
	if e.metrics != nil {
		e.metrics.PacketSent(label)
		e.metrics.BytesSent(len(data))
	}
}

// logAccessRejection distinguishes a blacklist hit from a plain no-match so
// operators can tell a deliberate ban from a missing pattern/default.
func (e *Engine) logAccessRejection(repeaterID uint32, err error) {
	var blErr *access.BlacklistMatchError
	if errors.As(err, &blErr) {
		e.log.Warn("login rejected by blacklist",
			logger.Uint32("repeater_id", repeaterID),
			logger.String("pattern", blErr.PatternName),
			logger.String("reason", blErr.Reason))
		return
	}
	e.log.Warn("login rejected: no matching access pattern", logger.Uint32("repeater_id", repeaterID))
}

func randomSalt() ([]byte, error) {
	salt := make([]byte, protocol.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}
