package streak

import (
	"sort"
	"time"

	"waterFastAPI/internal/types/fast"
)

type Streak struct {
	CurrentStreak   int        `json:"current_streak"`
	LongestStreak   int        `json:"longest_streak"`
	LastFastDate    *time.Time `json:"last_fast_date"`
	StreakStartDate *time.Time `json:"streak_start_date"`
}

// Compute derives streak statistics from completed fasts.
//
// A streak is a run of consecutive calendar days, in loc, on which at least one
// fast was completed. The current streak only counts if the latest such day is
// today or yesterday relative to now. Records that are not completed, or that
// are missing an end time, are skipped. A nil loc means UTC.
//
// The result does not depend on the order of records.
func Compute(records []fast.Record, now time.Time, loc *time.Location) Streak {
	if loc == nil {
		loc = time.UTC
	}

	var last *fast.Record
	seen := make(map[time.Time]struct{})
	for i := range records {
		r := &records[i]
		if r.Status != fast.StatusCompleted || r.EndTime == nil {
			continue
		}
		seen[dayOf(*r.EndTime, loc)] = struct{}{}

		if last == nil || r.EndTime.After(*last.EndTime) ||
			(r.EndTime.Equal(*last.EndTime) && r.ID < last.ID) {
			last = r
		}
	}

	if len(seen) == 0 {
		return Streak{}
	}

	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	today := dayOf(now, loc)
	yesterday := today.AddDate(0, 0, -1)

	var (
		current int
		start   *time.Time
	)
	if days[0].Equal(today) || days[0].Equal(yesterday) {
		current = 1
		s := days[0]
		for i := 1; i < len(days); i++ {
			if !days[i].Equal(days[i-1].AddDate(0, 0, -1)) {
				break
			}
			current++
			s = days[i]
		}
		start = &s
		*start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
	}

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i].Equal(days[i-1].AddDate(0, 0, -1)) {
			run++
			longest = max(longest, run)
		} else {
			run = 1
		}
	}
	longest = max(longest, current)

	lastDate := *last.EndTime

	return Streak{
		CurrentStreak:   current,
		LongestStreak:   longest,
		LastFastDate:    &lastDate,
		StreakStartDate: start,
	}
}

// dayOf returns the calendar day of t in loc as a UTC midnight key. Keys are
// kept in UTC so that day arithmetic is not skewed where local midnight is
// skipped or repeated by a DST change.
func dayOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
