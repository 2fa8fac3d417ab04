// Package progress derives the moment-to-moment state of a running fast.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidArgument is returned for a missing start time or a non-positive
// target.
var ErrInvalidArgument = errors.New("invalid argument")

type Remaining struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

type Progress struct {
	ElapsedSeconds  int64      `json:"elapsed_seconds"`
	ProgressPercent float64    `json:"progress_percent"`
	CurrentPhase    Phase      `json:"current_phase"`
	NextPhase       *Phase     `json:"next_phase,omitempty"`
	TimeToNextPhase *Remaining `json:"time_to_next_phase,omitempty"`
}

// ElapsedHours returns the elapsed time in whole hours.
func (p Progress) ElapsedHours() int {
	return int(p.ElapsedSeconds / 3600)
}

// Compute uses the default phase table.
func Compute(start time.Time, targetHours float64, now time.Time) (Progress, error) {
	return defaultPhases.Compute(start, targetHours, now)
}

// Compute derives elapsed time, percent towards targetHours and the current
// and next phase. A now earlier than start counts as zero elapsed.
func (t Table) Compute(start time.Time, targetHours float64, now time.Time) (Progress, error) {
	if start.IsZero() {
		return Progress{}, fmt.Errorf("%w: start time is required", ErrInvalidArgument)
	}
	if targetHours <= 0 {
		return Progress{}, fmt.Errorf("%w: target hours must be positive, got %v", ErrInvalidArgument, targetHours)
	}
	if len(t) == 0 {
		return Progress{}, fmt.Errorf("%w: empty phase table", ErrInvalidArgument)
	}

	elapsed := max(now.Sub(start), 0)

	percent := elapsed.Hours() / targetHours * 100
	if percent > 100 {
		percent = 100
	}

	p := Progress{
		ElapsedSeconds:  int64(elapsed / time.Second),
		ProgressPercent: percent,
		CurrentPhase:    t[0],
	}

	for i := range t {
		if elapsed >= t[i].threshold() {
			p.CurrentPhase = t[i]
			continue
		}

		next := t[i]
		left := next.threshold() - elapsed
		p.NextPhase = &next
		p.TimeToNextPhase = &Remaining{
			Hours:   int(left / time.Hour),
			Minutes: int(left % time.Hour / time.Minute),
		}
		break
	}

	return p, nil
}
