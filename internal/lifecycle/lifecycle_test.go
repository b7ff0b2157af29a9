package lifecycle

import (
	"testing"
	"time"

	"fundsync/platform/logger"
)

func TestCutoff(t *testing.T) {
	m := New(nil, logger.New("test"), 7)
	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	got := m.Cutoff(today)
	want := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Cutoff = %v, want %v", got, want)
	}
}

func TestCutoffHonorsGracePeriod(t *testing.T) {
	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		grace    int
		lastSeen time.Time
		stale    bool
	}{
		{7, today.AddDate(0, 0, -8), true},
		{7, today.AddDate(0, 0, -7), false},
		{7, today.AddDate(0, 0, -1), false},
		{3, today.AddDate(0, 0, -4), true},
	}
	for _, tc := range cases {
		m := New(nil, logger.New("test"), tc.grace)
		stale := tc.lastSeen.Before(m.Cutoff(today))
		if stale != tc.stale {
			t.Errorf("grace=%d lastSeen=%s: stale=%v, want %v",
				tc.grace, tc.lastSeen.Format("2006-01-02"), stale, tc.stale)
		}
	}
}

func TestDefaultGraceApplied(t *testing.T) {
	m := New(nil, logger.New("test"), 0)
	if m.graceDays != DefaultGraceDays {
		t.Errorf("graceDays = %d, want default %d", m.graceDays, DefaultGraceDays)
	}
}
