package service

import (
	"fmt"
	"time"
)

// Countdown is the timer state of an in-progress attempt at one instant.
type Countdown struct {
	RemainingSeconds int       `json:"remaining_seconds"`
	Minutes          int       `json:"minutes"`
	Seconds          int       `json:"seconds"`
	Display          string    `json:"display"`
	Urgent           bool      `json:"urgent"`
	Deadline         time.Time `json:"deadline"`
	Expired          bool      `json:"-"`
}

// NewCountdown computes the remaining time. Remaining seconds are truncated
// toward zero, and any value <= 0 means the attempt has expired.
func NewCountdown(start, now time.Time, duration, urgentBelow time.Duration) Countdown {
	remaining := int((duration - now.Sub(start)).Seconds())

	cd := Countdown{
		Deadline: start.Add(duration),
		Expired:  remaining <= 0,
	}
	if remaining < 0 {
		remaining = 0
	}
	cd.RemainingSeconds = remaining
	cd.Minutes, cd.Seconds = remaining/60, remaining%60
	cd.Display = fmt.Sprintf("%02d:%02d", cd.Minutes, cd.Seconds)
	cd.Urgent = remaining < int(urgentBelow.Seconds())
	return cd
}

// NextNotice decides whether the urgent advisory should fire. Boundaries are
// whole minutes strictly inside the urgent window. A boundary fires the first
// time remaining <= boundary is observed and never again; lastBoundary is the
// previously notified boundary (0 = none).
func NextNotice(remaining int, urgentBelow time.Duration, lastBoundary int) (boundary int, fire bool) {
	if remaining <= 0 {
		return lastBoundary, false
	}
	boundary = ((remaining + 59) / 60) * 60
	if boundary >= int(urgentBelow.Seconds()) {
		return lastBoundary, false
	}
	if lastBoundary != 0 && boundary >= lastBoundary {
		return lastBoundary, false
	}
	return boundary, true
}

// NoticeMessage is the advisory text for a notified boundary.
func NoticeMessage(boundary int) string {
	return fmt.Sprintf("Warning: Only %d minutes remaining!", boundary/60)
}
