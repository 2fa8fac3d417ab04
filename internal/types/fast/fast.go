package fast

import (
	"time"
)

type Status string

const (
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusCompleted    Status = "completed"
	StatusStoppedEarly Status = "stopped_early"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusStoppedEarly:
		return true
	}
	return false
}

// Terminal reports whether a fast in this status has ended.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusStoppedEarly
}

// Open reports whether a fast in this status is still running or paused.
func (s Status) Open() bool {
	return s == StatusActive || s == StatusPaused
}

type WaterIntakeEntry struct {
	AmountMl  int       `json:"amount_ml" db:"amount_ml" firestore:"amountMl"`
	Timestamp time.Time `json:"timestamp" db:"logged_at" firestore:"timestamp"`
}

// Record is one fasting session. The store assigns ID.
type Record struct {
	ID                   string             `json:"id" db:"id" firestore:"-"`
	UserID               string             `json:"user_id" db:"user_id" firestore:"userId"`
	StartTime            time.Time          `json:"start_time" db:"start_time" firestore:"startTime"`
	EndTime              *time.Time         `json:"end_time,omitempty" db:"end_time" firestore:"endTime"`
	PausedAt             *time.Time         `json:"paused_at,omitempty" db:"paused_at" firestore:"pausedAt"`
	PlannedDurationHours float64            `json:"planned_duration_hours" db:"planned_duration_hours" firestore:"plannedDurationHours"`
	ActualDurationHours  *float64           `json:"actual_duration_hours,omitempty" db:"actual_duration_hours" firestore:"actualDurationHours"`
	Status               Status             `json:"status" db:"status" firestore:"status"`
	WaterIntakeEntries   []WaterIntakeEntry `json:"water_intake_entries" firestore:"waterIntakeEntries"`
	CreatedAt            time.Time          `json:"created_at" db:"created_at" firestore:"createdAt"`
	UpdatedAt            time.Time          `json:"updated_at" db:"updated_at" firestore:"updatedAt"`
}

// ActualHours returns the recorded actual duration, falling back to
// EndTime-StartTime. ok is false when neither is available.
func (r *Record) ActualHours() (hours float64, ok bool) {
	if r.ActualDurationHours != nil {
		return *r.ActualDurationHours, true
	}
	if r.EndTime == nil || r.StartTime.IsZero() {
		return 0, false
	}
	return r.EndTime.Sub(r.StartTime).Hours(), true
}

// TotalWaterMl sums all logged water entries.
func (r *Record) TotalWaterMl() int {
	total := 0
	for _, e := range r.WaterIntakeEntries {
		total += e.AmountMl
	}
	return total
}

// Consistent checks the status/endTime invariants of a stored record.
func (r *Record) Consistent() bool {
	if !r.Status.Valid() || r.StartTime.IsZero() {
		return false
	}
	if r.Status.Terminal() {
		return r.EndTime != nil && !r.EndTime.Before(r.StartTime)
	}
	return r.EndTime == nil
}

// Clone returns a deep copy so callers can hand out snapshots.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.EndTime != nil {
		t := *r.EndTime
		c.EndTime = &t
	}
	if r.PausedAt != nil {
		t := *r.PausedAt
		c.PausedAt = &t
	}
	if r.ActualDurationHours != nil {
		h := *r.ActualDurationHours
		c.ActualDurationHours = &h
	}
	c.WaterIntakeEntries = append([]WaterIntakeEntry(nil), r.WaterIntakeEntries...)
	return &c
}
