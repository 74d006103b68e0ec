package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_AfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(2*time.Second, func() { fired++ })

	c.Advance(time.Second)
	if fired != 0 {
		t.Fatalf("fired after 1s: got %d, want 0", fired)
	}

	c.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired after 2s: got %d, want 1", fired)
	}

	c.Advance(time.Hour)
	if fired != 1 {
		t.Errorf("one-shot timer fired again: got %d", fired)
	}
	if got := c.Now(); !got.Equal(epoch.Add(time.Hour + 2*time.Second)) {
		t.Errorf("Now() = %v", got)
	}
}

func TestFakeClock_StopPreventsCallback(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() on pending timer returned false")
	}
	if timer.Stop() {
		t.Error("second Stop() returned true")
	}

	c.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestFakeClock_Ticker(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Hour)
	defer ticker.Stop()

	c.Advance(time.Hour)
	select {
	case tick := <-ticker.C:
		if !tick.Equal(epoch.Add(time.Hour)) {
			t.Errorf("tick = %v", tick)
		}
	default:
		t.Fatal("expected a tick after one interval")
	}

	c.Advance(30 * time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("unexpected tick before the second interval")
	default:
	}
}

func TestNowMillis(t *testing.T) {
	c := Fake(time.UnixMilli(1700000000123))
	if got := NowMillis(c); got != 1700000000123 {
		t.Errorf("NowMillis() = %d", got)
	}
}
