// Package postgres stores fasts in PostgreSQL through a pgx pool and turns
// LISTEN/NOTIFY into live subscriptions.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"waterFastAPI/internal/notification"
	"waterFastAPI/internal/store"
	"waterFastAPI/internal/types/fast"
)

const (
	changeChannel   = "fast_changes"
	uniqueViolation = "23505"
	invalidText     = "22P02"
)

type Store struct {
	db *pgxpool.Pool
	bc *store.Broadcaster

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ store.Store = (*Store)(nil)

// Open connects, migrates and starts the change listener.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.Listen()
	return s, nil
}

// New wraps an existing pool. Call Listen to enable live subscriptions.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, bc: store.NewBroadcaster()}
}

const fastColumns = `id::text, user_id, start_time, end_time, paused_at,
	planned_duration_hours, actual_duration_hours, status, created_at, updated_at`

func scanFast(row pgx.Row) (*fast.Record, error) {
	rec := &fast.Record{}
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.StartTime,
		&rec.EndTime,
		&rec.PausedAt,
		&rec.PlannedDurationHours,
		&rec.ActualDurationHours,
		&rec.Status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) queryFasts(ctx context.Context, query string, args ...any) ([]fast.Record, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fast.Record
	for rows.Next() {
		rec, err := scanFast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachWater(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachWater loads the intake entries of recs with a single query.
func (s *Store) attachWater(ctx context.Context, recs []fast.Record) error {
	if len(recs) == 0 {
		return nil
	}
	ids := make([]string, len(recs))
	index := make(map[string]int, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
		index[r.ID] = i
	}

	rows, err := s.db.Query(ctx, `
		SELECT fast_id::text, amount_ml, logged_at
		FROM water_intake
		WHERE fast_id = ANY($1::uuid[])
		ORDER BY logged_at, id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load water intake: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var e fast.WaterIntakeEntry
		if err := rows.Scan(&id, &e.AmountMl, &e.Timestamp); err != nil {
			return err
		}
		if i, ok := index[id]; ok {
			recs[i].WaterIntakeEntries = append(recs[i].WaterIntakeEntries, e)
		}
	}
	return rows.Err()
}

func (s *Store) one(ctx context.Context, query string, args ...any) (*fast.Record, error) {
	recs, err := s.queryFasts(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// pgCode returns the SQLSTATE of err, or "".
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (s *Store) Get(ctx context.Context, userID, id string) (*fast.Record, error) {
	rec, err := s.one(ctx, `SELECT `+fastColumns+` FROM fasts WHERE id = $1::uuid AND user_id = $2`, id, userID)
	if pgCode(err) == invalidText {
		return nil, fmt.Errorf("fast %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fast: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("fast %s: %w", id, store.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) Create(ctx context.Context, rec *fast.Record) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO fasts (user_id, start_time, end_time, paused_at, planned_duration_hours, actual_duration_hours, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text, created_at, updated_at`,
		rec.UserID, rec.StartTime, rec.EndTime, rec.PausedAt,
		rec.PlannedDurationHours, rec.ActualDurationHours, rec.Status,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return fmt.Errorf("user %s already has an open fast: %w", rec.UserID, store.ErrConflict)
		}
		return fmt.Errorf("failed to create fast: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, rec *fast.Record, expected fast.Status) error {
	err := s.db.QueryRow(ctx, `
		UPDATE fasts
		SET start_time = $3, end_time = $4, paused_at = $5, planned_duration_hours = $6,
			actual_duration_hours = $7, status = $8, updated_at = NOW()
		WHERE id = $1::uuid AND user_id = $2 AND status = $9
		RETURNING updated_at`,
		rec.ID, rec.UserID, rec.StartTime, rec.EndTime, rec.PausedAt,
		rec.PlannedDurationHours, rec.ActualDurationHours, rec.Status, expected,
	).Scan(&rec.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either the fast is gone or its status moved on since it was read.
		if _, getErr := s.Get(ctx, rec.UserID, rec.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("fast %s is no longer %s: %w", rec.ID, expected, store.ErrConflict)
	case pgCode(err) == invalidText:
		return fmt.Errorf("fast %s: %w", rec.ID, store.ErrNotFound)
	case pgCode(err) == uniqueViolation:
		return fmt.Errorf("user %s already has an open fast: %w", rec.UserID, store.ErrConflict)
	default:
		return fmt.Errorf("failed to save fast: %w", err)
	}
}

func (s *Store) AppendWater(ctx context.Context, userID, fastID string, entry fast.WaterIntakeEntry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status fast.Status
	err = tx.QueryRow(ctx, `SELECT status FROM fasts WHERE id = $1::uuid AND user_id = $2 FOR UPDATE`, fastID, userID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == invalidText {
			return fmt.Errorf("fast %s: %w", fastID, store.ErrNotFound)
		}
		return fmt.Errorf("failed to lock fast: %w", err)
	}
	if !status.Open() {
		return fmt.Errorf("fast %s is %s: %w", fastID, status, store.ErrConflict)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO water_intake (fast_id, amount_ml, logged_at) VALUES ($1::uuid, $2, $3)`,
		fastID, entry.AmountMl, entry.Timestamp); err != nil {
		return fmt.Errorf("failed to insert water intake: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE fasts SET updated_at = NOW() WHERE id = $1::uuid`, fastID); err != nil {
		return fmt.Errorf("failed to touch fast: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM fasts WHERE id = $1::uuid AND user_id = $2`, id, userID)
	if pgCode(err) == invalidText {
		return fmt.Errorf("fast %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete fast: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fast %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM fasts WHERE user_id = $1`, userID)
	batch.Queue(`DELETE FROM device_tokens WHERE user_id = $1`, userID)
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to delete user data: %w", err)
	}
	return nil
}

func (s *Store) ListCompleted(ctx context.Context, userID string) ([]fast.Record, error) {
	var out []fast.Record
	err := store.Retry(ctx, store.DefaultRetry, func(ctx context.Context) error {
		var err error
		out, err = s.queryFasts(ctx, `SELECT `+fastColumns+` FROM fasts WHERE user_id = $1 AND status = 'completed'`, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list completed fasts: %w", err)
	}
	return out, nil
}

func (s *Store) Current(ctx context.Context, userID string) (*fast.Record, error) {
	var rec *fast.Record
	err := store.Retry(ctx, store.DefaultRetry, func(ctx context.Context) error {
		var err error
		rec, err = s.one(ctx, `SELECT `+fastColumns+` FROM fasts WHERE user_id = $1 AND status IN ('active', 'paused')`, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get current fast: %w", err)
	}
	return rec, nil
}

func (s *Store) Subscribe(ctx context.Context, userID string) (<-chan *fast.Record, error) {
	cur, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.bc.Add(ctx, userID, cur), nil
}

func (s *Store) ListOpen(ctx context.Context) ([]fast.Record, error) {
	out, err := s.queryFasts(ctx, `SELECT `+fastColumns+` FROM fasts WHERE status IN ('active', 'paused') ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open fasts: %w", err)
	}
	return out, nil
}

func (s *Store) ListHistory(ctx context.Context, userID string, limit int) ([]fast.Record, error) {
	query := `SELECT ` + fastColumns + ` FROM fasts
		WHERE user_id = $1 AND status IN ('completed', 'stopped_early')
		ORDER BY start_time DESC, id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	out, err := s.queryFasts(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fast history: %w", err)
	}
	return out, nil
}

func (s *Store) RegisterDevice(ctx context.Context, userID string, token notification.DeviceToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO device_tokens (user_id, token, platform, added_at, last_used)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, token)
		DO UPDATE SET platform = EXCLUDED.platform, last_used = EXCLUDED.last_used`,
		userID, token.Token, token.Platform, token.AddedAt, token.LastUsed)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *Store) DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT token, platform, added_at, last_used
		FROM device_tokens WHERE user_id = $1 ORDER BY token`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get device tokens: %w", err)
	}
	defer rows.Close()

	var out []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform, &t.AddedAt, &t.LastUsed); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.db.Close()
	return nil
}
