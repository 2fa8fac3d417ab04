package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"

	"waterFastAPI/internal/clock"
	"waterFastAPI/internal/logger"
	"waterFastAPI/internal/progress"
	"waterFastAPI/internal/store"
	"waterFastAPI/internal/streak"
	"waterFastAPI/internal/types/fast"
)

// ErrInvalidRequest marks input that failed validation.
var ErrInvalidRequest = errors.New("invalid request")

const (
	MaxPlannedHours   = 30 * 24
	MaxWaterMl        = 5000
	DefaultHistoryLen = 20
	MaxHistoryLen     = 100
)

type FastService struct {
	store        store.Store
	clock        clock.Clock
	phases       progress.Table
	loc          *time.Location
	shareBaseURL string
}

func NewFastService(st store.Store, c clock.Clock, loc *time.Location, shareBaseURL string) *FastService {
	if loc == nil {
		loc = time.UTC
	}
	return &FastService{
		store:        st,
		clock:        c,
		phases:       progress.DefaultPhases(),
		loc:          loc,
		shareBaseURL: shareBaseURL,
	}
}

// CurrentFast is the open fast together with its live progress.
type CurrentFast struct {
	Fast     *fast.Record      `json:"fast"`
	Progress progress.Progress `json:"progress"`
}

type StreakShare struct {
	Streak       streak.Streak `json:"streak"`
	Message      string        `json:"message"`
	URL          string        `json:"url"`
	QrCodeBase64 string        `json:"qr_code_base64"`
}

func (s *FastService) Start(ctx context.Context, userID string, req fast.StartFastRequest) (*fast.Record, error) {
	if req.PlannedDurationHours <= 0 || req.PlannedDurationHours > MaxPlannedHours {
		return nil, fmt.Errorf("%w: planned_duration_hours must be in (0, %d]", ErrInvalidRequest, MaxPlannedHours)
	}

	rec := &fast.Record{
		UserID:               userID,
		StartTime:            s.clock.Now(),
		PlannedDurationHours: req.PlannedDurationHours,
		Status:               fast.StatusActive,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	fastsStarted.Inc()
	logger.Debug("fast started", "user", userID, "fast", rec.ID, "planned_hours", rec.PlannedDurationHours)
	return rec, nil
}

func (s *FastService) Pause(ctx context.Context, userID, fastID string) (*fast.Record, error) {
	rec, err := s.store.Get(ctx, userID, fastID)
	if err != nil {
		return nil, err
	}
	if rec.Status != fast.StatusActive {
		return nil, fmt.Errorf("cannot pause a %s fast: %w", rec.Status, store.ErrConflict)
	}

	now := s.clock.Now()
	rec.Status = fast.StatusPaused
	rec.PausedAt = &now
	if err := s.store.Save(ctx, rec, fast.StatusActive); err != nil {
		return nil, err
	}
	return rec, nil
}

// Resume reactivates a paused fast. The start time moves forward by the
// length of the pause, so elapsed time never counts paused time.
func (s *FastService) Resume(ctx context.Context, userID, fastID string) (*fast.Record, error) {
	rec, err := s.store.Get(ctx, userID, fastID)
	if err != nil {
		return nil, err
	}
	if rec.Status != fast.StatusPaused || rec.PausedAt == nil {
		return nil, fmt.Errorf("cannot resume a %s fast: %w", rec.Status, store.ErrConflict)
	}

	if paused := s.clock.Now().Sub(*rec.PausedAt); paused > 0 {
		rec.StartTime = rec.StartTime.Add(paused)
	}
	rec.Status = fast.StatusActive
	rec.PausedAt = nil
	if err := s.store.Save(ctx, rec, fast.StatusPaused); err != nil {
		return nil, err
	}
	return rec, nil
}

// End closes an open fast. An empty status picks completed when the planned
// duration was reached and stopped_early otherwise.
func (s *FastService) End(ctx context.Context, userID, fastID string, status fast.Status) (*fast.Record, error) {
	if status != "" && !status.Terminal() {
		return nil, fmt.Errorf("%w: status must be completed or stopped_early", ErrInvalidRequest)
	}

	rec, err := s.store.Get(ctx, userID, fastID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Open() {
		return nil, fmt.Errorf("fast already %s: %w", rec.Status, store.ErrConflict)
	}

	now := s.clock.Now()
	elapsed := max(s.effectiveNow(rec, now).Sub(rec.StartTime), 0)
	hours := elapsed.Hours()

	if status == "" {
		status = fast.StatusStoppedEarly
		if hours >= rec.PlannedDurationHours {
			status = fast.StatusCompleted
		}
	}

	end := rec.StartTime.Add(elapsed)
	read := rec.Status
	rec.Status = status
	rec.EndTime = &end
	rec.PausedAt = nil
	rec.ActualDurationHours = &hours
	if err := s.store.Save(ctx, rec, read); err != nil {
		return nil, err
	}

	fastsEnded.WithLabelValues(string(status)).Inc()
	logger.Debug("fast ended", "user", userID, "fast", rec.ID, "status", status, "hours", hours)
	return rec, nil
}

func (s *FastService) AddWater(ctx context.Context, userID, fastID string, req fast.AddWaterRequest) (*fast.Record, error) {
	if req.AmountMl <= 0 || req.AmountMl > MaxWaterMl {
		return nil, fmt.Errorf("%w: amount_ml must be in (0, %d]", ErrInvalidRequest, MaxWaterMl)
	}

	entry := fast.WaterIntakeEntry{AmountMl: req.AmountMl, Timestamp: s.clock.Now()}
	if err := s.store.AppendWater(ctx, userID, fastID, entry); err != nil {
		return nil, err
	}
	waterLogged.Add(float64(req.AmountMl))

	return s.store.Get(ctx, userID, fastID)
}

// CorrectDuration shortens the recorded length of an ended fast, moving its
// end time back to match. It never lengthens a fast.
func (s *FastService) CorrectDuration(ctx context.Context, userID, fastID string, req fast.CorrectDurationRequest) (*fast.Record, error) {
	if req.ActualDurationHours <= 0 {
		return nil, fmt.Errorf("%w: actual_duration_hours must be positive", ErrInvalidRequest)
	}

	rec, err := s.store.Get(ctx, userID, fastID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Terminal() {
		return nil, fmt.Errorf("fast is still %s: %w", rec.Status, store.ErrConflict)
	}
	current, ok := rec.ActualHours()
	if !ok {
		return nil, fmt.Errorf("fast %s has no duration: %w", fastID, store.ErrConflict)
	}
	if req.ActualDurationHours > current {
		return nil, fmt.Errorf("%w: duration can only be shortened (current %.2fh)", ErrInvalidRequest, current)
	}

	hours := req.ActualDurationHours
	end := rec.StartTime.Add(time.Duration(hours * float64(time.Hour)))
	rec.ActualDurationHours = &hours
	rec.EndTime = &end
	if err := s.store.Save(ctx, rec, rec.Status); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *FastService) Delete(ctx context.Context, userID, fastID string) error {
	return s.store.Delete(ctx, userID, fastID)
}

// Current returns the open fast with its progress, or nil when there is none.
func (s *FastService) Current(ctx context.Context, userID string) (*CurrentFast, error) {
	rec, err := s.store.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	p, err := s.Progress(rec, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &CurrentFast{Fast: rec, Progress: p}, nil
}

// Progress computes progress for rec at now. A paused fast is frozen at the
// moment it was paused.
func (s *FastService) Progress(rec *fast.Record, now time.Time) (progress.Progress, error) {
	return s.phases.Compute(rec.StartTime, rec.PlannedDurationHours, s.effectiveNow(rec, now))
}

func (s *FastService) effectiveNow(rec *fast.Record, now time.Time) time.Time {
	if rec.Status == fast.StatusPaused && rec.PausedAt != nil {
		return *rec.PausedAt
	}
	return now
}

func (s *FastService) History(ctx context.Context, userID string, limit int) ([]fast.Record, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLen
	case limit > MaxHistoryLen:
		limit = MaxHistoryLen
	}

	recs, err := s.store.ListHistory(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []fast.Record{}
	}
	return recs, nil
}

// Streak computes the user's streak with days bucketed in loc, or in the
// configured zone when loc is nil.
func (s *FastService) Streak(ctx context.Context, userID string, loc *time.Location) (streak.Streak, error) {
	if loc == nil {
		loc = s.loc
	}
	recs, err := s.store.ListCompleted(ctx, userID)
	if err != nil {
		return streak.Streak{}, err
	}
	return streak.Compute(recs, s.clock.Now(), loc), nil
}

func (s *FastService) ShareStreak(ctx context.Context, userID string, loc *time.Location) (*StreakShare, error) {
	st, err := s.Streak(ctx, userID, loc)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%d", s.shareBaseURL, st.CurrentStreak)
	pngBytes, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR png: %w", err)
	}

	return &StreakShare{
		Streak:       st,
		Message:      shareMessage(st),
		URL:          url,
		QrCodeBase64: base64.StdEncoding.EncodeToString(pngBytes),
	}, nil
}

func shareMessage(st streak.Streak) string {
	switch st.CurrentStreak {
	case 0:
		return fmt.Sprintf("Starting fresh. My longest fasting streak so far is %s.", days(st.LongestStreak))
	case 1:
		return "Day 1 of my fasting streak!"
	default:
		return fmt.Sprintf("I've completed a fast %s in a row!", days(st.CurrentStreak))
	}
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

func (s *FastService) Phases() []progress.Phase {
	return append([]progress.Phase(nil), s.phases...)
}
