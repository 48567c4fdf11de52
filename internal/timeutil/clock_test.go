package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(500 * time.Millisecond):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_SleepRecords(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	clock.Sleep(5 * time.Millisecond)
	clock.Sleep(7 * time.Millisecond)

	got := clock.Sleeps()
	if len(got) != 2 || got[0] != 5*time.Millisecond || got[1] != 7*time.Millisecond {
		t.Errorf("Sleeps() = %v", got)
	}
	if !clock.Now().Equal(time.Unix(0, 0)) {
		t.Error("Sleep must not advance the mock clock")
	}
}

func TestMockClock_TickerFiresOnAdvance(t *testing.T) {
	start := time.Unix(100, 0)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(time.Second)

	select {
	case <-ticker.C():
		t.Fatal("ticker fired before Advance")
	default:
	}

	clock.Advance(time.Second)
	select {
	case tick := <-ticker.C():
		if !tick.Equal(start.Add(time.Second)) {
			t.Errorf("tick = %v, want %v", tick, start.Add(time.Second))
		}
	default:
		t.Fatal("ticker did not fire after Advance")
	}

	ticker.Stop()
	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}
