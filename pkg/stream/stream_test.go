package stream

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	now := time.Now()
	s := New(Key{RepeaterID: 312000, Slot: 1}, 42, 0, 100, 200, now)

	if s.PacketCount != 1 {
		t.Errorf("expected PacketCount 1, got %d", s.PacketCount)
	}
	if !s.StartTime.Equal(now) || !s.LastPacketTime.Equal(now) {
		t.Error("expected StartTime and LastPacketTime to equal now")
	}
}

func TestIsActive(t *testing.T) {
	now := time.Now()
	s := New(Key{}, 1, 0, 0, 0, now)

	if !s.IsActive(now.Add(100 * time.Millisecond)) {
		t.Error("expected stream to be active within the fast-terminator window")
	}
	if s.IsActive(now.Add(201 * time.Millisecond)) {
		t.Error("expected stream to be stale past the fast-terminator window")
	}
}

func TestTimedOut(t *testing.T) {
	now := time.Now()
	s := New(Key{}, 1, 0, 0, 0, now)

	if s.TimedOut(now.Add(1*time.Second), 2*time.Second) {
		t.Error("should not be timed out within stream_timeout")
	}
	if !s.TimedOut(now.Add(3*time.Second), 2*time.Second) {
		t.Error("should be timed out past stream_timeout")
	}
	s.End(now, EndTerminator)
	if s.TimedOut(now.Add(10*time.Second), 2*time.Second) {
		t.Error("an already-ended stream cannot time out again")
	}
}

func TestHangExpired_ExactBoundaryIsExpired(t *testing.T) {
	now := time.Now()
	s := New(Key{}, 1, 0, 0, 0, now)
	s.End(now, EndTerminator)

	if !s.HangExpired(now.Add(10*time.Second), 10*time.Second) {
		t.Error("hang time exactly at the boundary must be treated as expired")
	}
	if s.HangExpired(now.Add(9999*time.Millisecond), 10*time.Second) {
		t.Error("hang time just under the boundary must not be expired")
	}
}

func TestInHangTime(t *testing.T) {
	now := time.Now()
	s := New(Key{}, 1, 0, 0, 0, now)

	if s.InHangTime(now, 10*time.Second) {
		t.Error("a stream that hasn't ended is never in hang-time")
	}
	s.End(now, EndTerminator)
	if !s.InHangTime(now.Add(5*time.Second), 10*time.Second) {
		t.Error("expected to be in hang-time 5s after ending with a 10s window")
	}
	if s.InHangTime(now.Add(10*time.Second), 10*time.Second) {
		t.Error("exactly at the hang-time boundary is expired, not still in hang-time")
	}
}

func TestDuration(t *testing.T) {
	now := time.Now()
	s := New(Key{}, 1, 0, 0, 0, now)
	s.Touch(now.Add(2 * time.Second))

	if s.Duration() != 2*time.Second {
		t.Errorf("expected duration 2s for an open stream, got %v", s.Duration())
	}

	s.End(now.Add(5*time.Second), EndTerminator)
	if s.Duration() != 5*time.Second {
		t.Errorf("expected duration 5s after ending, got %v", s.Duration())
	}
}

func TestDecideHangTime(t *testing.T) {
	cases := []struct {
		name                       string
		oldSrc, newSrc, oldDst, newDst uint32
		want                       HangTimeDecision
	}{
		{"same user same TG", 100, 100, 200, 200, HangAllow},
		{"same user different TG", 100, 100, 200, 201, HangAllow},
		{"different user same TG", 100, 101, 200, 200, HangAllow},
		{"different user different TG", 100, 101, 200, 201, HangDeny},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DecideHangTime(c.oldSrc, c.newSrc, c.oldDst, c.newDst)
			if got != c.want {
				t.Errorf("DecideHangTime() = %v, want %v", got, c.want)
			}
		})
	}
}
