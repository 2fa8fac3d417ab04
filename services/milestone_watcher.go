package services

import (
	"context"
	"sync"
	"time"

	"waterFastAPI/internal/clock"
	"waterFastAPI/internal/logger"
	"waterFastAPI/internal/milestone"
	"waterFastAPI/internal/notification"
	"waterFastAPI/internal/store"
	"waterFastAPI/internal/types/fast"
)

// PushDispatcher queues a push for delivery.
type PushDispatcher interface {
	Dispatch(ctx context.Context, push *notification.Push) bool
}

type trackedFast struct {
	eval        *milestone.Evaluator
	lastElapsed int
}

// MilestoneWatcher periodically evaluates milestones for every open fast
// and pushes newly crossed ones. A fast is primed the first time it is seen,
// so restarts never repeat a milestone. Paused fasts stay tracked with their
// progress frozen at the pause, which flushes anything crossed just before it.
type MilestoneWatcher struct {
	store      store.Store
	fasts      *FastService
	dispatcher PushDispatcher
	clock      clock.Clock
	interval   time.Duration

	mu      sync.Mutex
	tracked map[string]*trackedFast

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMilestoneWatcher(st store.Store, fasts *FastService, dispatcher PushDispatcher, c clock.Clock, interval time.Duration) *MilestoneWatcher {
	return &MilestoneWatcher{
		store:      st,
		fasts:      fasts,
		dispatcher: dispatcher,
		clock:      c,
		interval:   interval,
		tracked:    make(map[string]*trackedFast),
		stopChan:   make(chan struct{}),
	}
}

func (w *MilestoneWatcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.runTick()
		for {
			select {
			case <-ticker.C:
				w.runTick()
			case <-w.stopChan:
				return
			}
		}
	}()
}

func (w *MilestoneWatcher) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	if err := w.Tick(ctx); err != nil {
		logger.Warn("milestone tick failed", "err", err)
	}
}

// Tick evaluates all open fasts once and dispatches the resulting events.
func (w *MilestoneWatcher) Tick(ctx context.Context) error {
	open, err := w.store.ListOpen(ctx)
	if err != nil {
		return err
	}

	now := w.clock.Now()
	seen := make(map[string]bool, len(open))

	for i := range open {
		rec := &open[i]
		seen[rec.ID] = true

		p, err := w.fasts.Progress(rec, now)
		if err != nil {
			logger.Warn("skipping fast with invalid progress", "fast", rec.ID, "err", err)
			continue
		}
		for _, ev := range w.evaluate(rec, p.ElapsedHours()) {
			milestonesFired.WithLabelValues(string(ev.Kind)).Inc()
			w.dispatcher.Dispatch(ctx, pushFor(rec, ev))
		}
	}

	w.mu.Lock()
	for id := range w.tracked {
		if !seen[id] {
			delete(w.tracked, id)
		}
	}
	w.mu.Unlock()

	return nil
}

func (w *MilestoneWatcher) evaluate(rec *fast.Record, elapsed int) []milestone.Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, ok := w.tracked[rec.ID]
	if !ok {
		t = &trackedFast{eval: milestone.New(rec.PlannedDurationHours)}
		t.eval.Prime(elapsed)
		t.lastElapsed = elapsed
		w.tracked[rec.ID] = t
		return nil
	}

	if elapsed < t.lastElapsed || t.eval.Target() != rec.PlannedDurationHours {
		t.eval.Reset(rec.PlannedDurationHours)
		t.eval.Prime(elapsed)
		t.lastElapsed = elapsed
		return nil
	}

	t.lastElapsed = elapsed
	return t.eval.Evaluate(elapsed)
}

// Tracked reports how many fasts currently have an evaluator.
func (w *MilestoneWatcher) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

func (w *MilestoneWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}

func pushFor(rec *fast.Record, ev milestone.Event) *notification.Push {
	push := &notification.Push{
		UserID: rec.UserID,
		Title:  ev.Payload.Title,
		Body:   ev.Payload.Body,
		Data:   map[string]any{"fast_id": rec.ID},
	}
	switch ev.Kind {
	case milestone.KindGoalReached:
		push.Type = notification.TypeGoalReached
		push.Data["target_hours"] = ev.TargetHours
	default:
		push.Type = notification.TypeMilestone
		push.Data["threshold_hours"] = ev.ThresholdHours
	}
	return push
}
