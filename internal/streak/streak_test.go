package streak

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterFastAPI/internal/types/fast"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// completedOn builds completed records ending at noon UTC on each date.
func completedOn(dates ...string) []fast.Record {
	out := make([]fast.Record, 0, len(dates))
	for i, d := range dates {
		end := day(d).Add(12 * time.Hour)
		out = append(out, fast.Record{
			ID:                   fmt.Sprintf("fast-%02d", i),
			StartTime:            end.Add(-16 * time.Hour),
			EndTime:              &end,
			PlannedDurationHours: 16,
			Status:               fast.StatusCompleted,
		})
	}
	return out
}

func TestCompute_Empty(t *testing.T) {
	got := Compute(nil, day("2024-01-03"), time.UTC)
	assert.Equal(t, Streak{}, got)
	assert.Nil(t, got.LastFastDate)
	assert.Nil(t, got.StreakStartDate)
}

func TestCompute_ThreeConsecutiveDaysEndingToday(t *testing.T) {
	records := completedOn("2024-01-01", "2024-01-02", "2024-01-03")

	got := Compute(records, day("2024-01-03").Add(20*time.Hour), time.UTC)

	assert.Equal(t, 3, got.CurrentStreak)
	assert.Equal(t, 3, got.LongestStreak)
	require.NotNil(t, got.StreakStartDate)
	assert.Equal(t, day("2024-01-01"), *got.StreakStartDate)
	require.NotNil(t, got.LastFastDate)
	assert.Equal(t, day("2024-01-03").Add(12*time.Hour), *got.LastFastDate)
}

func TestCompute_GapBreaksCurrentStreak(t *testing.T) {
	records := completedOn("2024-01-01", "2024-01-02", "2024-01-03")

	got := Compute(records, day("2024-01-05"), time.UTC)

	assert.Equal(t, 0, got.CurrentStreak)
	assert.Equal(t, 3, got.LongestStreak)
	assert.Nil(t, got.StreakStartDate)
	assert.NotNil(t, got.LastFastDate)
}

func TestCompute_YesterdayKeepsStreakAlive(t *testing.T) {
	records := completedOn("2024-01-01", "2024-01-02")

	got := Compute(records, day("2024-01-03").Add(23*time.Hour), time.UTC)

	assert.Equal(t, 2, got.CurrentStreak)
	require.NotNil(t, got.StreakStartDate)
	assert.Equal(t, day("2024-01-01"), *got.StreakStartDate)
}

func TestCompute_TwoRuns(t *testing.T) {
	records := completedOn(
		"2024-01-01", "2024-01-02",
		"2024-01-10", "2024-01-11", "2024-01-12", "2024-01-13",
	)

	got := Compute(records, day("2024-01-13"), time.UTC)

	assert.Equal(t, 4, got.CurrentStreak)
	assert.Equal(t, 4, got.LongestStreak)
	require.NotNil(t, got.StreakStartDate)
	assert.Equal(t, day("2024-01-10"), *got.StreakStartDate)
}

func TestCompute_LongestOlderThanCurrent(t *testing.T) {
	records := completedOn(
		"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05",
		"2024-01-19", "2024-01-20",
	)

	got := Compute(records, day("2024-01-20"), time.UTC)

	assert.Equal(t, 2, got.CurrentStreak)
	assert.Equal(t, 5, got.LongestStreak)
}

func TestCompute_SameDayCollapses(t *testing.T) {
	records := completedOn("2024-01-02", "2024-01-02", "2024-01-03")

	got := Compute(records, day("2024-01-03"), time.UTC)

	assert.Equal(t, 2, got.CurrentStreak)
	assert.Equal(t, 2, got.LongestStreak)
}

func TestCompute_IgnoresNonCompletedAndMalformed(t *testing.T) {
	records := completedOn("2024-01-02", "2024-01-03")

	end := day("2024-01-01").Add(12 * time.Hour)
	records = append(records,
		fast.Record{ID: "stopped", Status: fast.StatusStoppedEarly, StartTime: end.Add(-time.Hour), EndTime: &end},
		fast.Record{ID: "active", Status: fast.StatusActive, StartTime: end},
		fast.Record{ID: "broken", Status: fast.StatusCompleted, StartTime: end},
	)

	got := Compute(records, day("2024-01-03"), time.UTC)

	assert.Equal(t, 2, got.CurrentStreak)
	assert.Equal(t, 2, got.LongestStreak)
	require.NotNil(t, got.StreakStartDate)
	assert.Equal(t, day("2024-01-02"), *got.StreakStartDate)
}

func TestCompute_OrderIndependent(t *testing.T) {
	records := completedOn(
		"2024-01-01", "2024-01-02", "2024-01-04", "2024-01-05",
		"2024-01-06", "2024-01-06", "2024-01-09",
	)
	now := day("2024-01-09")
	want := Compute(records, now, time.UTC)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]fast.Record(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Compute(shuffled, now, time.UTC)
		assert.Equal(t, want, got)
		assert.GreaterOrEqual(t, got.LongestStreak, got.CurrentStreak)
	}
}

func TestCompute_LastFastDateTieBreak(t *testing.T) {
	end := day("2024-01-03").Add(8 * time.Hour)
	records := []fast.Record{
		{ID: "b", Status: fast.StatusCompleted, StartTime: end.Add(-time.Hour), EndTime: &end},
		{ID: "a", Status: fast.StatusCompleted, StartTime: end.Add(-2 * time.Hour), EndTime: &end},
	}

	got := Compute(records, day("2024-01-03"), time.UTC)

	require.NotNil(t, got.LastFastDate)
	assert.True(t, got.LastFastDate.Equal(end))
}

func TestCompute_LocalCalendarDay(t *testing.T) {
	// 23:30 in New York on Jan 2 is already Jan 3 in UTC.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	endA := time.Date(2024, 1, 1, 23, 30, 0, 0, ny)
	endB := time.Date(2024, 1, 2, 23, 30, 0, 0, ny)
	records := []fast.Record{
		{ID: "a", Status: fast.StatusCompleted, StartTime: endA.Add(-16 * time.Hour), EndTime: &endA},
		{ID: "b", Status: fast.StatusCompleted, StartTime: endB.Add(-16 * time.Hour), EndTime: &endB},
	}
	now := time.Date(2024, 1, 3, 9, 0, 0, 0, ny)

	local := Compute(records, now, ny)
	assert.Equal(t, 2, local.CurrentStreak)
	require.NotNil(t, local.StreakStartDate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, ny), *local.StreakStartDate)

	utc := Compute(records, now, time.UTC)
	assert.Equal(t, 2, utc.CurrentStreak)
	require.NotNil(t, utc.StreakStartDate)
	assert.Equal(t, day("2024-01-02"), *utc.StreakStartDate)
}

func TestCompute_MidnightDSTTransition(t *testing.T) {
	// Chile springs forward at local midnight, so Sep 8 2024 has no 00:00.
	scl, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	var records []fast.Record
	for i, d := range []int{7, 8, 9} {
		end := time.Date(2024, 9, d, 12, 0, 0, 0, scl)
		records = append(records, fast.Record{
			ID:        fmt.Sprintf("fast-%d", i),
			Status:    fast.StatusCompleted,
			StartTime: end.Add(-16 * time.Hour),
			EndTime:   &end,
		})
	}
	now := time.Date(2024, 9, 9, 18, 0, 0, 0, scl)

	got := Compute(records, now, scl)
	assert.Equal(t, 3, got.CurrentStreak)
	assert.Equal(t, 3, got.LongestStreak)
	require.NotNil(t, got.StreakStartDate)
	assert.True(t, got.StreakStartDate.Equal(time.Date(2024, 9, 7, 0, 0, 0, 0, scl)))
}
