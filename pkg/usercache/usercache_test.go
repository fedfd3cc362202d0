package usercache

import (
	"testing"
	"time"
)

func TestUpdateAndLookup(t *testing.T) {
	c := New(600 * time.Second)
	now := time.Now()

	c.Update(3121234, 312000, 1, now)

	e, ok := c.Lookup(3121234, now.Add(1*time.Second))
	if !ok {
		t.Fatal("expected entry to be found")
	}
	if e.RepeaterID != 312000 || e.Slot != 1 {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestLookup_NotFound(t *testing.T) {
	c := New(600 * time.Second)
	if _, ok := c.Lookup(1, time.Now()); ok {
		t.Error("expected lookup of unknown subscriber to fail")
	}
}

func TestLookup_ExpiredEntryNotReturned(t *testing.T) {
	c := New(60 * time.Second)
	now := time.Now()
	c.Update(1, 312000, 1, now)

	if _, ok := c.Lookup(1, now.Add(61*time.Second)); ok {
		t.Error("expected a stale entry past TTL to be rejected by Lookup")
	}
}

func TestSweep_PurgesStaleEntries(t *testing.T) {
	c := New(60 * time.Second)
	now := time.Now()
	c.Update(1, 312000, 1, now.Add(-90*time.Second))
	c.Update(2, 312001, 2, now)

	purged := c.Sweep(now)
	if purged != 1 {
		t.Errorf("expected 1 purged entry, got %d", purged)
	}
	if c.Count() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", c.Count())
	}
	if _, ok := c.Lookup(2, now); !ok {
		t.Error("expected the fresh entry to survive the sweep")
	}
}

func TestUpdate_OverwritesPriorEntry(t *testing.T) {
	c := New(600 * time.Second)
	now := time.Now()
	c.Update(1, 312000, 1, now)
	c.Update(1, 312001, 2, now.Add(time.Second))

	e, _ := c.Lookup(1, now.Add(time.Second))
	if e.RepeaterID != 312001 || e.Slot != 2 {
		t.Errorf("expected updated entry, got %+v", e)
	}
}
