package clock

import (
	"testing"
	"time"
)

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	c.Sleep(30 * time.Second)
	c.Sleep(-time.Second)
	c.Advance(time.Minute)

	if got, want := c.Now(), start.Add(90*time.Second); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
	if got := c.Slept(); got != 30*time.Second {
		t.Errorf("Slept() = %v, want 30s", got)
	}
}

func TestRealNowMoves(t *testing.T) {
	c := Real()
	before := c.Now()
	c.Sleep(time.Millisecond)
	if !c.Now().After(before) {
		t.Error("real clock did not advance across Sleep")
	}
}
