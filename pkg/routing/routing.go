// Package routing implements the Routing Engine of SPEC_FULL.md §4.5:
// per-stream target-repeater computation for group and private calls. The
// real-RX-wins displacement of a TX-assumed stream lives in
// pkg/stream.Manager.EvictAssumedTarget.
package routing

import (
	"time"

	"github.com/dbehnke/hblink4/pkg/stream"
	"github.com/dbehnke/hblink4/pkg/usercache"
)

// Target is anything group/private traffic can be forwarded to: a
// connected repeater or an outbound link presenting as one. Routing
// depends only on this interface, not on pkg/repeater or pkg/outbound
// directly, so either can supply targets without an import cycle.
type Target interface {
	TargetID() uint32
	PermitsSlot(slot int, tgid uint32) bool
}

// ComputeGroupTargets implements §4.5's group-call target computation:
// every target except the source that permits tgid on slot and whose slot
// is unoccupied or occupied only by a displaceable TX-assumed stream.
func ComputeGroupTargets(targets []Target, streams *stream.Manager, srcID uint32, slot int, tgid uint32) map[uint32]bool {
	result := make(map[uint32]bool)
	for _, t := range targets {
		if t.TargetID() == srcID {
			continue
		}
		if !t.PermitsSlot(slot, tgid) {
			continue
		}
		key := stream.Key{RepeaterID: t.TargetID(), Slot: slot}
		if occupant := streams.Get(key); occupant != nil && !occupant.IsAssumed {
			continue
		}
		result[t.TargetID()] = true
	}
	return result
}

// ComputePrivateTargets implements §4.5's private-call target computation:
// the single repeater last seen carrying dst_id, or no target if the user
// is unknown, stale, or the target is gone. The policy check uses srcSlot
// — the slot the forwarded packet actually carries in its control byte,
// per §4.5's Symmetry rule — not the destination's last-heard slot from
// the user cache, since forwarding never rewrites that bit (only the
// repeater_id bytes are rewritten; see pkg/protocol.RewriteRepeaterID).
func ComputePrivateTargets(cache *usercache.Cache, lookup func(id uint32) Target, dstID uint32, srcSlot int, now time.Time) map[uint32]bool {
	entry, ok := cache.Lookup(dstID, now)
	if !ok {
		return nil
	}
	target := lookup(entry.RepeaterID)
	if target == nil {
		return nil
	}
	if !target.PermitsSlot(srcSlot, dstID) {
		return nil
	}
	return map[uint32]bool{entry.RepeaterID: true}
}
