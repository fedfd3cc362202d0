package server

import (
	"time"

	"github.com/dbehnke/hblink4/pkg/events"
	"github.com/dbehnke/hblink4/pkg/logger"
)

// bridgeStreamTrackerMaxAge bounds how long a bridge's cross-system
// loop-guard entry is retained for a stream_id that never saw its
// terminator and so was never explicitly released via EndStream — well
// past any plausible stream_hang_time so a genuinely abandoned entry
// doesn't linger indefinitely.
const bridgeStreamTrackerMaxAge = 5 * time.Minute

// sweepStreams runs the periodic stream_timeout_sweep tick (§5): snapshots
// streams about to be hang-time-expired (so their fields can still be
// reported once SweepTimeouts removes them), applies the sweep, then
// reports both timed-out and hang-expired streams.
func (e *Engine) sweepStreams(now time.Time) {
	expiring := e.streams.ExpiringSnapshot(now, e.cfg.StreamHangTime)
	timedOut, _ := e.streams.SweepTimeouts(now, e.cfg.StreamTimeout, e.cfg.StreamHangTime)

	for _, key := range timedOut {
		s := e.streams.Get(key)
		if s == nil {
			continue
		}
		e.emitStreamEnd(s)
		e.bridges.EndStream(s.StreamID)
	}

	for _, s := range expiring {
		if e.metrics != nil {
			e.metrics.TalkgroupInactive(s.DstID, s.Slot)
		}
		e.emitter.Emit(events.KindHangTimeExpired, now, events.HangTimeExpiredData{
			RepeaterID: s.RepeaterID, Slot: s.Slot, DstID: s.DstID,
		})
	}
}

// sweepBridges runs bridge rule-timeout deactivation and loop-guard aging,
// sharing the same 1-second tick as sweepStreams (§5).
func (e *Engine) sweepBridges(now time.Time) {
	deactivated := e.bridges.SweepTimeouts(now, bridgeStreamTrackerMaxAge)
	for name, rules := range deactivated {
		e.log.Debug("bridge rules auto-deactivated on timeout",
			logger.String("bridge", name), logger.Int("count", len(rules)))
	}
}

// sweepKeepalives runs the keepalive_sweep tick (§5): every repeater whose
// ping has gone silent past max_missed intervals is evicted.
func (e *Engine) sweepKeepalives(now time.Time) {
	evicted := e.repeaters.SweepKeepalives(e.cfg.PingTime, e.cfg.MaxMissed, now)
	for _, id := range evicted {
		r := e.repeaters.Get(id)
		if r == nil {
			continue
		}
		e.log.Warn("evicting repeater: keepalive lost", logger.Uint32("repeater_id", id))
		e.evictRepeater(r, "keepalive_lost")
	}
}
