package session

import (
	"testing"
	"time"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0:00"},
		{1, "0:01"},
		{59, "0:59"},
		{60, "1:00"},
		{299, "4:59"},
		{300, "5:00"},
		{240, "4:00"},
		{600, "10:00"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3661, "1:01:01"},
		{7325, "2:02:05"},
		{36000, "10:00:00"},
		{-5, "0:00"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.seconds); got != tt.want {
			t.Errorf("FormatRemaining(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestClassifyRemaining(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		limited   bool
		want      TimeTier
	}{
		{"plenty of time", time.Hour, true, TierNone},
		{"exactly fifteen minutes", 15 * time.Minute, true, TierNone},
		{"just under fifteen", 15*time.Minute - time.Second, true, TierLow},
		{"ten minutes", 10 * time.Minute, true, TierLow},
		{"exactly five minutes", 5 * time.Minute, true, TierLow},
		{"just under five", 5*time.Minute - time.Second, true, TierCritical},
		{"one second", time.Second, true, TierCritical},
		{"zero", 0, true, TierCritical},
		{"unlimited never warns", time.Minute, false, TierNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyRemaining(tt.remaining, tt.limited); got != tt.want {
				t.Errorf("ClassifyRemaining(%v, %v) = %s, want %s", tt.remaining, tt.limited, got, tt.want)
			}
		})
	}
}
