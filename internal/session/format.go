package session

import (
	"fmt"
	"time"
)

// UnlimitedDisplay is the remaining-time readout for practice mode, which
// has no deadline to count down from.
const UnlimitedDisplay = "--:--"

// FormatRemaining renders whole seconds as M:SS under one hour and H:MM:SS
// from one hour up, seconds (and minutes in the hour form) zero-padded.
// Negative inputs render as 0:00; remaining time is never shown negative.
func FormatRemaining(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// TimeTier classifies how much countdown is left, for warning styling.
// The thresholds are absolute regardless of the exam's total limit.
type TimeTier string

const (
	TierNone     TimeTier = "none"
	TierLow      TimeTier = "low"      // under 15 minutes
	TierCritical TimeTier = "critical" // under 5 minutes
)

const (
	lowTimeThreshold      = 15 * time.Minute
	criticalTimeThreshold = 5 * time.Minute
)

// ClassifyRemaining derives the warning tier from the remaining countdown.
// It is a pure classification re-evaluated on every tick, not a one-shot
// crossing event, so the tier holds continuously while the condition does.
// Unlimited (practice) sessions never warn.
func ClassifyRemaining(remaining time.Duration, limited bool) TimeTier {
	switch {
	case !limited:
		return TierNone
	case remaining < criticalTimeThreshold:
		return TierCritical
	case remaining < lowTimeThreshold:
		return TierLow
	default:
		return TierNone
	}
}
