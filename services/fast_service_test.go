package services

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterFastAPI/internal/clock"
	"waterFastAPI/internal/store"
	"waterFastAPI/internal/store/memory"
	"waterFastAPI/internal/streak"
	"waterFastAPI/internal/types/fast"
)

var t0 = time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)

func newFastService(t *testing.T) (*FastService, *memory.Store, *clock.Fixed) {
	t.Helper()
	c := clock.NewFixed(t0)
	st := memory.New(c)
	return NewFastService(st, c, time.UTC, "waterfast://streak"), st, c
}

func TestStart_Validation(t *testing.T) {
	svc, _, _ := newFastService(t)
	ctx := context.Background()

	for _, hours := range []float64{0, -1, MaxPlannedHours + 1} {
		_, err := svc.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: hours})
		assert.ErrorIs(t, err, ErrInvalidRequest, "hours=%v", hours)
	}
}

func TestStart_OnlyOneOpenFast(t *testing.T) {
	svc, _, _ := newFastService(t)
	ctx := context.Background()

	rec, err := svc.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	require.NoError(t, err)
	assert.Equal(t, fast.StatusActive, rec.Status)
	assert.Equal(t, t0, rec.StartTime)

	_, err = svc.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestPauseResume_ExcludesPausedTime(t *testing.T) {
	svc, _, c := newFastService(t)
	ctx := context.Background()

	rec, err := svc.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	require.NoError(t, err)

	c.Advance(2 * time.Hour)
	rec, err = svc.Pause(ctx, "u1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, fast.StatusPaused, rec.Status)

	_, err = svc.Pause(ctx, "u1", rec.ID)
	assert.ErrorIs(t, err, store.ErrConflict)

	c.Advance(3 * time.Hour)
	cur, err := svc.Current(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, int64(2*3600), cur.Progress.ElapsedSeconds, "paused progress is frozen")

	rec, err = svc.Resume(ctx, "u1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, fast.StatusActive, rec.Status)
	assert.Nil(t, rec.PausedAt)
	assert.Equal(t, t0.Add(3*time.Hour), rec.StartTime)

	c.Advance(time.Hour)
	cur, err = svc.Current(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3*3600), cur.Progress.ElapsedSeconds)

	_, err = svc.Resume(ctx, "u1", rec.ID)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestEnd_PicksStatusFromPlannedDuration(t *testing.T) {
	svc, _, c := newFastService(t)
	ctx := context.Background()

	rec, err := svc.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	require.NoError(t, err)
	c.Advance(10 * time.Hour)

	rec, err = svc.End(ctx, "u1", rec.ID, "")
	require.NoError(t, err)
	assert.Equal(t, fast.StatusStoppedEarly, rec.Status)
	require.NotNil(t, rec.EndTime)
	assert.Equal(t, t0.Add(10*time.Hour), *rec.EndTime)
	require.NotNil(t, rec.ActualDurationHours)
	assert.InDelta(t, 10, *rec.ActualDurationHours, 1e-9)

	_, err = svc.End(ctx, "u1", rec.ID, fast.StatusCompleted)
	assert.ErrorIs(t, err, store.ErrConflict)

	rec, err = svc.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	require.NoError(t, err)
	c.Advance(17 * time.Hour)
	rec, err = svc.End(ctx, "u1", rec.ID, "")
	require.NoError(t, err)
	assert.Equal(t, fast.StatusCompleted, rec.Status)
}

func TestEnd_PausedFastEndsAtPause(t *testing.T) {
	svc, _, c := newFastService(t)
	ctx := context.Background()

	rec, err := svc.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	require.NoError(t, err)
	c.Advance(5 * time.Hour)
	_, err = svc.Pause(ctx, "u1", rec.ID)
	require.NoError(t, err)
	c.Advance(5 * time.Hour)

	rec, err = svc.End(ctx, "u1", rec.ID, fast.StatusStoppedEarly)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(5*time.Hour), *rec.EndTime)
	assert.Nil(t, rec.PausedAt)
	assert.True(t, rec.Consistent())
}

func TestEnd_RejectsNonTerminalStatus(t *testing.T) {
	svc, _, _ := newFastService(t)
	_, err := svc.End(context.Background(), "u1", "x", fast.StatusPaused)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAddWater(t *testing.T) {
	svc, _, c := newFastService(t)
	ctx := context.Background()

	rec, err := svc.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	require.NoError(t, err)

	_, err = svc.AddWater(ctx, "u1", rec.ID, fast.AddWaterRequest{AmountMl: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	c.Advance(time.Hour)
	rec, err = svc.AddWater(ctx, "u1", rec.ID, fast.AddWaterRequest{AmountMl: 350})
	require.NoError(t, err)

	want := []fast.WaterIntakeEntry{{AmountMl: 350, Timestamp: t0.Add(time.Hour)}}
	if diff := cmp.Diff(want, rec.WaterIntakeEntries); diff != "" {
		t.Errorf("water entries mismatch (-want +got):\n%s", diff)
	}

	_, err = svc.End(ctx, "u1", rec.ID, fast.StatusStoppedEarly)
	require.NoError(t, err)
	_, err = svc.AddWater(ctx, "u1", rec.ID, fast.AddWaterRequest{AmountMl: 100})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestCorrectDuration_DownwardOnly(t *testing.T) {
	svc, _, c := newFastService(t)
	ctx := context.Background()

	rec, err := svc.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	require.NoError(t, err)

	_, err = svc.CorrectDuration(ctx, "u1", rec.ID, fast.CorrectDurationRequest{ActualDurationHours: 1})
	assert.ErrorIs(t, err, store.ErrConflict, "open fasts cannot be corrected")

	c.Advance(20 * time.Hour)
	_, err = svc.End(ctx, "u1", rec.ID, fast.StatusCompleted)
	require.NoError(t, err)

	_, err = svc.CorrectDuration(ctx, "u1", rec.ID, fast.CorrectDurationRequest{ActualDurationHours: 21})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	rec, err = svc.CorrectDuration(ctx, "u1", rec.ID, fast.CorrectDurationRequest{ActualDurationHours: 17.5})
	require.NoError(t, err)
	assert.InDelta(t, 17.5, *rec.ActualDurationHours, 1e-9)
	assert.Equal(t, t0.Add(17*time.Hour+30*time.Minute), *rec.EndTime)
}

func TestCurrent_NoneIsNil(t *testing.T) {
	svc, _, _ := newFastService(t)
	cur, err := svc.Current(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestHistory_LimitsAndEmpty(t *testing.T) {
	svc, _, c := newFastService(t)
	ctx := context.Background()

	hist, err := svc.History(ctx, "u1", 0)
	require.NoError(t, err)
	assert.NotNil(t, hist)
	assert.Empty(t, hist)

	for i := 0; i < 3; i++ {
		rec, err := svc.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 12})
		require.NoError(t, err)
		c.Advance(13 * time.Hour)
		_, err = svc.End(ctx, "u1", rec.ID, "")
		require.NoError(t, err)
		c.Advance(11 * time.Hour)
	}

	hist, err = svc.History(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
	assert.True(t, hist[0].StartTime.After(hist[1].StartTime))
}

func TestStreak_ThreeDaysRunning(t *testing.T) {
	svc, _, c := newFastService(t)
	ctx := context.Background()

	// one completed fast ending on each of three consecutive days
	for i := 0; i < 3; i++ {
		rec, err := svc.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 16})
		require.NoError(t, err)
		c.Advance(16 * time.Hour)
		_, err = svc.End(ctx, "u1", rec.ID, "")
		require.NoError(t, err)
		c.Advance(8 * time.Hour)
	}

	st, err := svc.Streak(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, st.CurrentStreak)
	assert.Equal(t, 3, st.LongestStreak)

	share, err := svc.ShareStreak(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, "waterfast://streak/3", share.URL)
	assert.Contains(t, share.Message, "3 days")

	png, err := base64.StdEncoding.DecodeString(share.QrCodeBase64)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestShareMessage(t *testing.T) {
	assert.Contains(t, shareMessage(streakOf(0, 1)), "1 day.")
	assert.Equal(t, "Day 1 of my fasting streak!", shareMessage(streakOf(1, 4)))
}

func TestPhases_ReturnsCopy(t *testing.T) {
	svc, _, _ := newFastService(t)
	p := svc.Phases()
	p[0].Title = "changed"
	assert.NotEqual(t, "changed", svc.Phases()[0].Title)
}

func streakOf(current, longest int) streak.Streak {
	return streak.Streak{CurrentStreak: current, LongestStreak: longest}
}

// interleavedStore runs between once, after the next Get and before the
// following Save, to model a concurrent request landing in that window.
type interleavedStore struct {
	store.Store
	between func()
}

func (s *interleavedStore) Get(ctx context.Context, userID, id string) (*fast.Record, error) {
	rec, err := s.Store.Get(ctx, userID, id)
	if fn := s.between; fn != nil {
		s.between = nil
		fn()
	}
	return rec, err
}

func TestPause_LosesRaceWithEnd(t *testing.T) {
	c := clock.NewFixed(t0)
	mem := memory.New(c)
	plain := NewFastService(mem, c, time.UTC, "waterfast://streak")
	ctx := context.Background()

	rec, err := plain.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	require.NoError(t, err)
	c.Advance(17 * time.Hour)

	racing := &interleavedStore{Store: mem}
	racing.between = func() {
		_, endErr := plain.End(ctx, "u1", rec.ID, "")
		require.NoError(t, endErr)
	}
	svc := NewFastService(racing, c, time.UTC, "waterfast://streak")

	_, err = svc.Pause(ctx, "u1", rec.ID)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := mem.Get(ctx, "u1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, fast.StatusCompleted, got.Status)
	assert.NotNil(t, got.EndTime)
	assert.Nil(t, got.PausedAt)

	cur, err := mem.Current(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, cur)

	st, err := plain.Streak(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStreak)
}

func TestResume_LosesRaceWithEnd(t *testing.T) {
	c := clock.NewFixed(t0)
	mem := memory.New(c)
	plain := NewFastService(mem, c, time.UTC, "waterfast://streak")
	ctx := context.Background()

	rec, err := plain.Start(ctx, "u1", fast.StartFastRequest{PlannedDurationHours: 16})
	require.NoError(t, err)
	c.Advance(2 * time.Hour)
	_, err = plain.Pause(ctx, "u1", rec.ID)
	require.NoError(t, err)

	racing := &interleavedStore{Store: mem}
	racing.between = func() {
		_, endErr := plain.End(ctx, "u1", rec.ID, fast.StatusStoppedEarly)
		require.NoError(t, endErr)
	}
	svc := NewFastService(racing, c, time.UTC, "waterfast://streak")

	_, err = svc.Resume(ctx, "u1", rec.ID)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := mem.Get(ctx, "u1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, fast.StatusStoppedEarly, got.Status)
}
