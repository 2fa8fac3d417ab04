// Package memory is an in-process Store used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"waterFastAPI/internal/clock"
	"waterFastAPI/internal/notification"
	"waterFastAPI/internal/store"
	"waterFastAPI/internal/types/fast"
)

type Store struct {
	mu      sync.RWMutex
	clock   clock.Clock
	fasts   map[string]*fast.Record
	devices map[string]map[string]notification.DeviceToken
	bc      *store.Broadcaster
}

var _ store.Store = (*Store)(nil)

func New(c clock.Clock) *Store {
	if c == nil {
		c = clock.System{}
	}
	return &Store{
		clock:   c,
		fasts:   make(map[string]*fast.Record),
		devices: make(map[string]map[string]notification.DeviceToken),
		bc:      store.NewBroadcaster(),
	}
}

func (s *Store) Get(ctx context.Context, userID, id string) (*fast.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.fasts[id]
	if !ok || rec.UserID != userID {
		return nil, fmt.Errorf("fast %s: %w", id, store.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *Store) Create(ctx context.Context, rec *fast.Record) error {
	s.mu.Lock()
	if s.openLocked(rec.UserID) != nil {
		s.mu.Unlock()
		return fmt.Errorf("user %s already has an open fast: %w", rec.UserID, store.ErrConflict)
	}

	now := s.clock.Now()
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.fasts[rec.ID] = rec.Clone()
	s.mu.Unlock()

	s.publish(rec.UserID)
	return nil
}

func (s *Store) Save(ctx context.Context, rec *fast.Record, expected fast.Status) error {
	s.mu.Lock()
	cur, ok := s.fasts[rec.ID]
	if !ok || cur.UserID != rec.UserID {
		s.mu.Unlock()
		return fmt.Errorf("fast %s: %w", rec.ID, store.ErrNotFound)
	}
	if cur.Status != expected {
		s.mu.Unlock()
		return fmt.Errorf("fast %s is %s, not %s: %w", rec.ID, cur.Status, expected, store.ErrConflict)
	}

	updated := rec.Clone()
	updated.CreatedAt = cur.CreatedAt
	updated.WaterIntakeEntries = cur.WaterIntakeEntries
	updated.UpdatedAt = s.clock.Now()
	s.fasts[rec.ID] = updated
	rec.UpdatedAt = updated.UpdatedAt
	s.mu.Unlock()

	s.publish(rec.UserID)
	return nil
}

func (s *Store) AppendWater(ctx context.Context, userID, fastID string, entry fast.WaterIntakeEntry) error {
	s.mu.Lock()
	rec, ok := s.fasts[fastID]
	if !ok || rec.UserID != userID {
		s.mu.Unlock()
		return fmt.Errorf("fast %s: %w", fastID, store.ErrNotFound)
	}
	if !rec.Status.Open() {
		s.mu.Unlock()
		return fmt.Errorf("fast %s is %s: %w", fastID, rec.Status, store.ErrConflict)
	}
	rec.WaterIntakeEntries = append(rec.WaterIntakeEntries, entry)
	rec.UpdatedAt = s.clock.Now()
	s.mu.Unlock()

	s.publish(userID)
	return nil
}

func (s *Store) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	rec, ok := s.fasts[id]
	if !ok || rec.UserID != userID {
		s.mu.Unlock()
		return fmt.Errorf("fast %s: %w", id, store.ErrNotFound)
	}
	delete(s.fasts, id)
	s.mu.Unlock()

	s.publish(userID)
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	for id, rec := range s.fasts {
		if rec.UserID == userID {
			delete(s.fasts, id)
		}
	}
	delete(s.devices, userID)
	s.mu.Unlock()

	s.publish(userID)
	return nil
}

func (s *Store) ListCompleted(ctx context.Context, userID string) ([]fast.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []fast.Record
	for _, rec := range s.fasts {
		if rec.UserID == userID && rec.Status == fast.StatusCompleted {
			out = append(out, *rec.Clone())
		}
	}
	return out, nil
}

func (s *Store) Current(ctx context.Context, userID string) (*fast.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openLocked(userID).Clone(), nil
}

func (s *Store) Subscribe(ctx context.Context, userID string) (<-chan *fast.Record, error) {
	cur, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.bc.Add(ctx, userID, cur), nil
}

func (s *Store) ListOpen(ctx context.Context) ([]fast.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []fast.Record
	for _, rec := range s.fasts {
		if rec.Status.Open() {
			out = append(out, *rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListHistory(ctx context.Context, userID string, limit int) ([]fast.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []fast.Record
	for _, rec := range s.fasts {
		if rec.UserID == userID && rec.Status.Terminal() {
			out = append(out, *rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RegisterDevice(ctx context.Context, userID string, token notification.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devices[userID] == nil {
		s.devices[userID] = make(map[string]notification.DeviceToken)
	}
	if prev, ok := s.devices[userID][token.Token]; ok {
		token.AddedAt = prev.AddedAt
	}
	s.devices[userID][token.Token] = token
	return nil
}

func (s *Store) DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]notification.DeviceToken, 0, len(s.devices[userID]))
	for _, t := range s.devices[userID] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

// openLocked returns the user's open fast. Callers hold s.mu.
func (s *Store) openLocked(userID string) *fast.Record {
	for _, rec := range s.fasts {
		if rec.UserID == userID && rec.Status.Open() {
			return rec
		}
	}
	return nil
}

func (s *Store) publish(userID string) {
	if !s.bc.Watching(userID) {
		return
	}
	s.mu.RLock()
	cur := s.openLocked(userID).Clone()
	s.mu.RUnlock()
	s.bc.Publish(userID, cur)
}
