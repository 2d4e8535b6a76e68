package resource

import (
	"testing"
	"time"
)

func TestAbsentTrackerSuppression(t *testing.T) {
	tracker := NewAbsentTracker(10 * time.Minute)
	now := time.Date(2016, time.July, 12, 0, 0, 0, 0, time.UTC)

	if tracker.Suppressed("a", now) {
		t.Error("unmarked identifier should not be suppressed")
	}

	tracker.Mark("a", now)
	if !tracker.Suppressed("a", now.Add(5*time.Minute)) {
		t.Error("identifier should be suppressed within the cool-down window")
	}
	if tracker.Suppressed("a", now.Add(10*time.Minute)) {
		t.Error("identifier should not be suppressed after cool-down expiry")
	}
	if tracker.Len() != 0 {
		t.Errorf("expired mark should be pruned, Len() = %d", tracker.Len())
	}
}

func TestAbsentTrackerClear(t *testing.T) {
	tracker := NewAbsentTracker(10 * time.Minute)
	now := time.Now()

	tracker.Mark("a", now)
	tracker.Clear("a")
	if tracker.Suppressed("a", now) {
		t.Error("cleared identifier should not be suppressed")
	}
}

func TestAbsentTrackerMarkedAt(t *testing.T) {
	tracker := NewAbsentTracker(time.Minute)
	now := time.Now()

	if _, ok := tracker.MarkedAt("a"); ok {
		t.Error("MarkedAt on unmarked identifier should report absence")
	}
	tracker.Mark("a", now)
	markedAt, ok := tracker.MarkedAt("a")
	if !ok || !markedAt.Equal(now) {
		t.Errorf("MarkedAt = %v, %v; want %v, true", markedAt, ok, now)
	}
}
