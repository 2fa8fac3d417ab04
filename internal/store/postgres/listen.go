package postgres

import (
	"context"
	"errors"
	"fmt"

	"waterFastAPI/internal/logger"
	"waterFastAPI/internal/store"
)

// Listen starts a goroutine that holds one pooled connection on
// LISTEN fast_changes and republishes the current fast of every notified
// user that has subscribers. It reconnects with backoff until Close.
func (s *Store) Listen() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ctx.Err() == nil {
			err := store.Retry(ctx, store.RetryPolicy{Attempts: 1 << 30, Backoff: store.DefaultRetry.Backoff}, s.listenOnce)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("fast change listener stopped", "err", err)
			}
		}
	}()
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	logger.Debug("listening for fast changes", "channel", changeChannel)

	// Anything missed while reconnecting is resent to current watchers.
	for _, userID := range s.bc.Users() {
		s.refresh(ctx, userID)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("fast change listener lost connection", "err", err)
			return err
		}
		s.refresh(ctx, n.Payload)
	}
}

func (s *Store) refresh(ctx context.Context, userID string) {
	if !s.bc.Watching(userID) {
		return
	}
	cur, err := s.Current(ctx, userID)
	if err != nil {
		logger.Warn("failed to refresh current fast", "user", userID, "err", err)
		return
	}
	s.bc.Publish(userID, cur)
}
