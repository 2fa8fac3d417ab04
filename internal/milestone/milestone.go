// Package milestone decides which one-time celebration events a running fast
// should fire.
package milestone

import (
	"fmt"
	"sort"

	"waterFastAPI/internal/progress"
)

type Kind string

const (
	KindMilestone   Kind = "milestone"
	KindGoalReached Kind = "goal_reached"
)

// DefaultThresholds are the elapsed-hour marks celebrated during a fast.
var DefaultThresholds = []int{6, 12, 16, 18, 24, 36, 48, 72}

type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Event struct {
	Kind           Kind    `json:"kind"`
	ThresholdHours int     `json:"threshold_hours,omitempty"`
	TargetHours    float64 `json:"target_hours,omitempty"`
	Payload        Payload `json:"payload"`
}

// Evaluator holds the fired state for a single fast. It is not safe for
// concurrent use; each fast gets its own.
type Evaluator struct {
	thresholds  []int
	target      float64
	fired       map[int]bool
	goalReached bool
}

// New returns an evaluator for a fast with the given target. With no
// thresholds, DefaultThresholds is used.
func New(targetHours float64, thresholds ...int) *Evaluator {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	ts := append([]int(nil), thresholds...)
	sort.Ints(ts)

	return &Evaluator{
		thresholds: ts,
		target:     targetHours,
		fired:      make(map[int]bool, len(ts)),
	}
}

// Evaluate returns the events newly crossed at elapsedHours, milestones in
// ascending order followed by the goal event. Each fires at most once until
// Reset.
func (e *Evaluator) Evaluate(elapsedHours int) []Event {
	var events []Event

	for _, th := range e.thresholds {
		if th > elapsedHours {
			break
		}
		if e.fired[th] {
			continue
		}
		e.fired[th] = true
		events = append(events, Event{
			Kind:           KindMilestone,
			ThresholdHours: th,
			Payload:        milestonePayload(th),
		})
	}

	if !e.goalReached && e.target > 0 && float64(elapsedHours) >= e.target {
		e.goalReached = true
		events = append(events, Event{
			Kind:        KindGoalReached,
			TargetHours: e.target,
			Payload: Payload{
				Title: "Goal reached",
				Body:  fmt.Sprintf("You hit your %s hour goal. Well done!", formatHours(e.target)),
			},
		})
	}

	return events
}

// Prime marks everything already passed at elapsedHours as fired without
// emitting it.
func (e *Evaluator) Prime(elapsedHours int) {
	for _, th := range e.thresholds {
		if th <= elapsedHours {
			e.fired[th] = true
		}
	}
	if e.target > 0 && float64(elapsedHours) >= e.target {
		e.goalReached = true
	}
}

// Reset clears all fired state for a new fast.
func (e *Evaluator) Reset(targetHours float64) {
	e.target = targetHours
	e.goalReached = false
	clear(e.fired)
}

// Target returns the goal the evaluator is tracking.
func (e *Evaluator) Target() float64 {
	return e.target
}

// Fired returns the thresholds fired so far, ascending.
func (e *Evaluator) Fired() []int {
	out := make([]int, 0, len(e.fired))
	for _, th := range e.thresholds {
		if e.fired[th] {
			out = append(out, th)
		}
	}
	return out
}

// GoalReached reports whether the goal event has fired.
func (e *Evaluator) GoalReached() bool {
	return e.goalReached
}

var phases = progress.DefaultPhases()

func milestonePayload(th int) Payload {
	if p, ok := phases.Lookup(float64(th)); ok {
		return Payload{
			Title: fmt.Sprintf("%dh: %s", th, p.Title),
			Body:  p.Description,
		}
	}
	return Payload{
		Title: fmt.Sprintf("%d hours fasted", th),
		Body:  fmt.Sprintf("You've been fasting for %d hours. Keep drinking water!", th),
	}
}

func formatHours(h float64) string {
	if h == float64(int(h)) {
		return fmt.Sprintf("%d", int(h))
	}
	return fmt.Sprintf("%.1f", h)
}
