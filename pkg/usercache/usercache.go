// Package usercache implements the User Cache of SPEC_FULL.md §4.8: a
// last-heard map from 24-bit DMR subscriber ID to the repeater/slot it was
// last heard on, authoritative for private-call routing. Exclusive to the
// engine goroutine; no locking.
package usercache

import "time"

// Entry is the last-known location of a subscriber.
type Entry struct {
	RepeaterID uint32
	Slot       int
	LastSeen   time.Time
}

// Cache is the subscriber-ID -> Entry last-heard table.
type Cache struct {
	entries map[uint32]Entry
	ttl     time.Duration
}

// New creates a Cache with the given entry TTL. Per §6's configuration
// schema, ttl must be at least 60 seconds; callers are expected to enforce
// that at config-validation time (pkg/config), not here.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[uint32]Entry),
		ttl:     ttl,
	}
}

// Update records that a subscriber was just heard on a given repeater/slot.
// Called on every accepted stream_start (§4.4).
func (c *Cache) Update(subscriberID uint32, repeaterID uint32, slot int, now time.Time) {
	c.entries[subscriberID] = Entry{RepeaterID: repeaterID, Slot: slot, LastSeen: now}
}

// Lookup returns the last-known location of a subscriber and whether the
// entry exists and is still fresh as of now. A stale (TTL-expired) entry
// that hasn't yet been swept still returns ok=false, so routing never
// forwards a private call to a user who has likely moved or dropped.
func (c *Cache) Lookup(subscriberID uint32, now time.Time) (Entry, bool) {
	e, found := c.entries[subscriberID]
	if !found {
		return Entry{}, false
	}
	if now.Sub(e.LastSeen) > c.ttl {
		return Entry{}, false
	}
	return e, true
}

// Sweep purges entries older than the configured TTL. Called once per
// minute (§5).
func (c *Cache) Sweep(now time.Time) int {
	purged := 0
	for id, e := range c.entries {
		if now.Sub(e.LastSeen) > c.ttl {
			delete(c.entries, id)
			purged++
		}
	}
	return purged
}

// Count returns the number of tracked subscribers, stale entries included
// until the next sweep.
func (c *Cache) Count() int {
	return len(c.entries)
}
