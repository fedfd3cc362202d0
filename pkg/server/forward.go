package server

import (
	"net"
	"time"

	"github.com/dbehnke/hblink4/pkg/events"
	"github.com/dbehnke/hblink4/pkg/logger"
	"github.com/dbehnke/hblink4/pkg/outbound"
	"github.com/dbehnke/hblink4/pkg/protocol"
	"github.com/dbehnke/hblink4/pkg/repeater"
	"github.com/dbehnke/hblink4/pkg/routing"
	"github.com/dbehnke/hblink4/pkg/stream"
)

// handleInboundDMRD processes a DMRD datagram received on one of our bound
// UDP sockets, from an already-connected repeater.
func (e *Engine) handleInboundDMRD(data []byte, addr *net.UDPAddr, family int) {
	r := e.repeaters.GetByAddr(addr)
	if r == nil || r.Phase != repeater.PhaseConnected {
		e.log.Debug("DMRD from unknown or unconnected repeater", logger.String("addr", addr.String()))
		return
	}
	e.dispatchDMRD(data, r, r.PatternName)
}

// handleOutboundDMRD processes a DMRD frame relayed from an outbound link's
// own receive loop.
func (e *Engine) handleOutboundDMRD(f frame) {
	link := e.outboundMgr.Get(f.linkName)
	if link == nil || !link.Connected() {
		return
	}
	e.dispatchDMRD(f.data, link, f.linkName)
}

// dispatchDMRD applies §4.4's per-packet decision tree to one DMRD frame
// from src (a connected repeater or an outbound link) and acts on the
// resulting Decision per §4.4/§4.5.
func (e *Engine) dispatchDMRD(data []byte, src routing.Target, srcSystem string) {
	pkt, err := protocol.ParseDMRD(data)
	if err != nil {
		e.log.Debug("malformed DMRD", logger.Error(err))
		return
	}

	if e.metrics != nil {
		e.metrics.PacketReceived(protocol.PacketTypeDMRD)
		e.metrics.BytesReceived(len(data))
	}

	now := time.Now()
	key := stream.Key{RepeaterID: src.TargetID(), Slot: pkt.Timeslot}
	old := e.streams.Get(key)

	decision := e.streams.Dispatch(key, pkt.StreamID, pkt.SourceID, pkt.DestinationID, pkt.IsTerminator(), now)

	switch decision {
	case stream.DecisionForward:
		e.forward(e.streams.Get(key), data, srcSystem, now)

	case stream.DecisionEndAndForward:
		s := e.streams.Get(key)
		e.forward(s, data, srcSystem, now)
		e.emitStreamEnd(s)
		e.bridges.EndStream(s.StreamID)

	case stream.DecisionRealRXWins:
		e.streams.EvictAssumedTarget(src.TargetID(), key)
		e.startNewStream(key, pkt, data, src, srcSystem, now)

	case stream.DecisionContentionDrop:
		e.log.Debug("contention: dropping packet for occupied slot",
			logger.Uint32("repeater_id", key.RepeaterID), logger.Int("slot", key.Slot))

	case stream.DecisionFastTerminatorStartNew:
		if old != nil {
			e.emitStreamEnd(old)
			e.bridges.EndStream(old.StreamID)
		}
		e.startNewStream(key, pkt, data, src, srcSystem, now)

	case stream.DecisionHangTimeAllow:
		e.startNewStream(key, pkt, data, src, srcSystem, now)

	case stream.DecisionHangTimeDeny:
		e.log.Debug("hang-time hijack attempt denied",
			logger.Uint32("repeater_id", key.RepeaterID), logger.Int("slot", key.Slot))

	case stream.DecisionStartNew:
		e.startNewStream(key, pkt, data, src, srcSystem, now)
	}
}

// startNewStream applies the inbound policy check, computes routing
// targets, installs the new Stream, and forwards the packet that started
// it, per §4.4/§4.5.
func (e *Engine) startNewStream(key stream.Key, pkt *protocol.DMRDPacket, raw []byte, src routing.Target, srcSystem string, now time.Time) {
	if !src.PermitsSlot(pkt.Timeslot, pkt.DestinationID) {
		e.log.Debug("inbound policy denied",
			logger.Uint32("repeater_id", key.RepeaterID), logger.Int("slot", key.Slot),
			logger.Uint32("tgid", pkt.DestinationID))
		return
	}

	var targets map[uint32]bool
	if pkt.CallType == protocol.CallTypeGroup {
		targets = routing.ComputeGroupTargets(e.routingTargets(), e.streams, src.TargetID(), pkt.Timeslot, pkt.DestinationID)
	} else {
		targets = routing.ComputePrivateTargets(e.cache, e.lookupTarget, pkt.DestinationID, pkt.Timeslot, now)
	}

	s := stream.New(key, pkt.StreamID, pkt.CallType, pkt.SourceID, pkt.DestinationID, now)
	s.TargetRepeaters = targets
	s.RoutingCached = true
	e.streams.Start(key, s)

	if pkt.CallType == protocol.CallTypeGroup {
		e.cache.Update(pkt.SourceID, src.TargetID(), pkt.Timeslot, now)
		if e.metrics != nil {
			e.metrics.TalkgroupActive(pkt.DestinationID, pkt.Timeslot)
		}
	}

	if e.metrics != nil {
		e.metrics.StreamStarted(pkt.StreamID)
	}
	e.emitter.Emit(events.KindStreamStart, now, events.StreamData{
		StreamID: s.StreamID, RepeaterID: s.RepeaterID, Slot: s.Slot,
		RFSrc: s.RFSrc, DstID: s.DstID, CallType: s.CallType,
	})

	e.bridges.ProcessActivation(pkt.DestinationID, now)

	e.forward(s, raw, srcSystem, now)
}

// forward writes raw (with its repeater_id bytes rewritten per target) to
// every cached target of s, then runs bridge fan-out from srcSystem and
// forwards to whatever other systems it names.
func (e *Engine) forward(s *stream.Stream, raw []byte, srcSystem string, now time.Time) {
	if s == nil {
		return
	}

	for targetID := range s.TargetRepeaters {
		target := e.lookupTarget(targetID)
		if target == nil {
			continue
		}
		out := protocol.RewriteRepeaterID(raw, targetID)
		e.sendToTarget(target, out)
		e.touchAssumedStream(targetID, s, now)
	}

	if srcSystem == "" {
		return
	}
	for _, sysName := range e.bridges.FanOut(s.StreamID, s.DstID, s.Slot, srcSystem, now) {
		target := e.lookupSystem(sysName)
		if target == nil || !target.PermitsSlot(s.Slot, s.DstID) {
			continue
		}
		out := protocol.RewriteRepeaterID(raw, target.TargetID())
		e.sendToTarget(target, out)
		e.touchAssumedStream(target.TargetID(), s, now)
		if e.metrics != nil {
			e.metrics.BridgeRouted(sysName)
		}
	}
}

// touchAssumedStream marks (or refreshes) the TX-assumed stream a forwarded
// packet creates on its target's slot — the contention/hang-time marker a
// forwarded call leaves behind on every repeater it reaches (§4.4/§4.5).
func (e *Engine) touchAssumedStream(targetID uint32, s *stream.Stream, now time.Time) {
	tkey := stream.Key{RepeaterID: targetID, Slot: s.Slot}
	if existing := e.streams.Get(tkey); existing != nil {
		if existing.StreamID == s.StreamID {
			existing.Touch(now)
		}
		return
	}
	assumed := stream.New(tkey, s.StreamID, s.CallType, s.RFSrc, s.DstID, now)
	assumed.IsAssumed = true
	e.streams.Start(tkey, assumed)
}

func (e *Engine) emitStreamEnd(s *stream.Stream) {
	if e.metrics != nil {
		e.metrics.StreamEnded(s.StreamID, string(s.EndReason))
		if s.CallType == protocol.CallTypeGroup {
			e.metrics.TalkgroupInactive(s.DstID, s.Slot)
		}
	}
	e.emitter.Emit(events.KindStreamEnd, s.EndTime, events.StreamData{
		StreamID: s.StreamID, RepeaterID: s.RepeaterID, Slot: s.Slot,
		RFSrc: s.RFSrc, DstID: s.DstID, CallType: s.CallType,
		PacketCount: s.PacketCount, EndReason: string(s.EndReason),
	})
}

// routingTargets returns every connected repeater and outbound link as a
// routing.Target, for group-call target computation.
func (e *Engine) routingTargets() []routing.Target {
	repeaters := e.repeaters.All()
	links := e.outboundMgr.Links()
	out := make([]routing.Target, 0, len(repeaters)+len(links))
	for _, r := range repeaters {
		if r.Phase == repeater.PhaseConnected {
			out = append(out, r)
		}
	}
	for _, l := range links {
		if l.Connected() {
			out = append(out, l)
		}
	}
	return out
}

// lookupTarget resolves a repeater_id to a live routing.Target, checking
// connected repeaters before outbound links.
func (e *Engine) lookupTarget(id uint32) routing.Target {
	if r := e.repeaters.Get(id); r != nil && r.Phase == repeater.PhaseConnected {
		return r
	}
	for _, l := range e.outboundMgr.Links() {
		if l.TargetID() == id && l.Connected() {
			return l
		}
	}
	return nil
}

// lookupSystem resolves a bridge rule's system name to a live routing
// target: an outbound link with that name, or a connected repeater whose
// resolved access-controller pattern matches it. When more than one
// connected repeater shares a pattern name, the first one found wins —
// bridge membership is designed around one system per pattern, mirroring
// classic HBlink's rules.yaml convention of one system per peer connection
// (see DESIGN.md).
func (e *Engine) lookupSystem(name string) routing.Target {
	if link := e.outboundMgr.Get(name); link != nil && link.Connected() {
		return link
	}
	for _, r := range e.repeaters.All() {
		if r.Phase == repeater.PhaseConnected && r.PatternName == name {
			return r
		}
	}
	return nil
}

// sendToTarget writes data to target's transport: the matching local
// socket for a repeater, or the outbound manager's shared socket for a
// link.
func (e *Engine) sendToTarget(target routing.Target, data []byte) {
	switch t := target.(type) {
	case *repeater.Repeater:
		family := 4
		if t.Addr.IP.To4() == nil {
			family = 6
		}
		e.writeUDP(data, t.Addr, family, protocol.PacketTypeDMRD)
	case *outbound.Link:
		if err := e.outboundMgr.Send(t.Config.Name, data); err != nil {
			e.log.Debug("failed to forward to outbound link",
				logger.String("link", t.Config.Name), logger.Error(err))
			return
		}
		if e.metrics != nil {
			e.metrics.PacketSent(protocol.PacketTypeDMRD)
			e.metrics.BytesSent(len(data))
		}
	}
}
