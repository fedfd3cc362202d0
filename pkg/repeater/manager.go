package repeater

import (
	"net"
	"time"
)

// Manager owns the set of connected repeaters, keyed by repeater ID. It is
// exclusive to the engine goroutine, so no locking is required (SPEC_FULL.md
// §5) — this supersedes the teacher's RWMutex-guarded PeerManager.
type Manager struct {
	byID   map[uint32]*Repeater
	byAddr map[string]*Repeater
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		byID:   make(map[uint32]*Repeater),
		byAddr: make(map[string]*Repeater),
	}
}

// Add registers a new repeater, indexed by both ID and source address.
func (m *Manager) Add(r *Repeater) {
	m.byID[r.ID] = r
	if r.Addr != nil {
		m.byAddr[r.Addr.String()] = r
	}
}

// Get returns the repeater with the given ID, or nil.
func (m *Manager) Get(id uint32) *Repeater {
	return m.byID[id]
}

// GetByAddr returns the repeater whose last-known source address matches
// addr, or nil.
func (m *Manager) GetByAddr(addr *net.UDPAddr) *Repeater {
	return m.byAddr[addr.String()]
}

// Remove evicts a repeater by ID.
func (m *Manager) Remove(id uint32) {
	if r, ok := m.byID[id]; ok {
		if r.Addr != nil {
			delete(m.byAddr, r.Addr.String())
		}
		delete(m.byID, id)
	}
}

// All returns every connected repeater. Order is unspecified.
func (m *Manager) All() []*Repeater {
	out := make([]*Repeater, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, r)
	}
	return out
}

// Count returns the number of tracked repeaters.
func (m *Manager) Count() int {
	return len(m.byID)
}

// IsReserved reports whether id is claimed by an outbound link and must be
// rejected for inbound logins (the ID-reservation set of §3).
type ReservationSet map[uint32]bool

func (s ReservationSet) IsReserved(id uint32) bool {
	return s[id]
}

// SweepKeepalives increments the missed-ping counter for every connected
// repeater whose last ping is older than the configured interval, and
// returns the IDs that have now reached maxMissed and must be evicted.
// Called once per keepalive_sweep tick (§5).
func (m *Manager) SweepKeepalives(pingInterval time.Duration, maxMissed int, now time.Time) []uint32 {
	var evict []uint32
	for id, r := range m.byID {
		if r.Phase != PhaseConnected {
			continue
		}
		expected := pingInterval * time.Duration(r.Missed+1)
		if now.Sub(r.LastPing) > expected {
			r.Missed++
			if r.Missed >= maxMissed {
				evict = append(evict, id)
			}
		}
	}
	return evict
}
