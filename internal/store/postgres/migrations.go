package postgres

import (
	"context"
	"fmt"
)

// migrations run in order on every start and must stay idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS fasts (
		id                     UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id                TEXT NOT NULL,
		start_time             TIMESTAMPTZ NOT NULL,
		end_time               TIMESTAMPTZ,
		paused_at              TIMESTAMPTZ,
		planned_duration_hours DOUBLE PRECISION NOT NULL CHECK (planned_duration_hours > 0),
		actual_duration_hours  DOUBLE PRECISION,
		status                 TEXT NOT NULL CHECK (status IN ('active', 'paused', 'completed', 'stopped_early')),
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK ((status IN ('completed', 'stopped_early')) = (end_time IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fasts_user_status ON fasts (user_id, status)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_fasts_one_open
		ON fasts (user_id) WHERE status IN ('active', 'paused')`,

	`CREATE TABLE IF NOT EXISTS water_intake (
		id        BIGSERIAL PRIMARY KEY,
		fast_id   UUID NOT NULL REFERENCES fasts(id) ON DELETE CASCADE,
		amount_ml INTEGER NOT NULL CHECK (amount_ml > 0),
		logged_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_water_intake_fast ON water_intake (fast_id, logged_at)`,

	`CREATE TABLE IF NOT EXISTS device_tokens (
		user_id   TEXT NOT NULL,
		token     TEXT NOT NULL,
		platform  TEXT NOT NULL,
		added_at  TIMESTAMPTZ NOT NULL,
		last_used TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, token)
	)`,

	`CREATE OR REPLACE FUNCTION notify_fast_change() RETURNS trigger AS $$
	DECLARE
		uid TEXT;
	BEGIN
		IF TG_TABLE_NAME = 'water_intake' THEN
			SELECT user_id INTO uid FROM fasts WHERE id = NEW.fast_id;
		ELSIF TG_OP = 'DELETE' THEN
			uid := OLD.user_id;
		ELSE
			uid := NEW.user_id;
		END IF;
		IF uid IS NOT NULL THEN
			PERFORM pg_notify('` + changeChannel + `', uid);
		END IF;
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS fasts_notify ON fasts`,
	`CREATE TRIGGER fasts_notify AFTER INSERT OR UPDATE OR DELETE ON fasts
		FOR EACH ROW EXECUTE FUNCTION notify_fast_change()`,
	`DROP TRIGGER IF EXISTS water_intake_notify ON water_intake`,
	`CREATE TRIGGER water_intake_notify AFTER INSERT ON water_intake
		FOR EACH ROW EXECUTE FUNCTION notify_fast_change()`,
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
