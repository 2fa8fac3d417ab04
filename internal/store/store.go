// Package store defines the record source used by the fasting service and
// the helpers shared by its backends.
package store

import (
	"context"
	"errors"

	"waterFastAPI/internal/notification"
	"waterFastAPI/internal/types/fast"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Source is the read side the core computations depend on.
type Source interface {
	// ListCompleted returns every completed fast of a user, in no particular
	// order.
	ListCompleted(ctx context.Context, userID string) ([]fast.Record, error)

	// Current returns the user's active or paused fast, or nil.
	Current(ctx context.Context, userID string) (*fast.Record, error)

	// Subscribe delivers the user's current fast (or nil) once immediately and
	// again after every change. The channel is closed when ctx is done.
	Subscribe(ctx context.Context, userID string) (<-chan *fast.Record, error)
}

// Store is the full persistence surface.
type Store interface {
	Source

	Get(ctx context.Context, userID, id string) (*fast.Record, error)

	// Create inserts rec and sets its ID. It fails with ErrConflict if the user
	// already has an open fast.
	Create(ctx context.Context, rec *fast.Record) error

	// Save replaces the mutable fields of an existing record: status, times,
	// durations. It only applies while the stored status is still expected
	// and fails with ErrConflict otherwise.
	Save(ctx context.Context, rec *fast.Record, expected fast.Status) error

	// AppendWater adds an entry to an open fast. It fails with ErrConflict if
	// the fast has already ended.
	AppendWater(ctx context.Context, userID, fastID string, entry fast.WaterIntakeEntry) error

	Delete(ctx context.Context, userID, id string) error
	DeleteUser(ctx context.Context, userID string) error

	// ListOpen returns the active and paused fasts of all users.
	ListOpen(ctx context.Context) ([]fast.Record, error)

	// ListHistory returns ended fasts, newest first.
	ListHistory(ctx context.Context, userID string, limit int) ([]fast.Record, error)

	RegisterDevice(ctx context.Context, userID string, token notification.DeviceToken) error
	DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error)

	Ping(ctx context.Context) error
	Close() error
}
