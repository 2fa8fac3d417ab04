// Package firestore keeps fasts in Cloud Firestore, sharing the Firebase app
// used for push delivery.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"waterFastAPI/internal/clock"
	"waterFastAPI/internal/logger"
	"waterFastAPI/internal/notification"
	"waterFastAPI/internal/store"
	"waterFastAPI/internal/types/fast"
)

const (
	fastsCollection  = "fasts"
	openCollection   = "openFasts"
	usersCollection  = "users"
	tokensCollection = "deviceTokens"
)

var openStatuses = []any{string(fast.StatusActive), string(fast.StatusPaused)}
var endedStatuses = []any{string(fast.StatusCompleted), string(fast.StatusStoppedEarly)}

// openMarker pins the single open fast of a user so creation can be
// checked inside a transaction.
type openMarker struct {
	FastID string `firestore:"fastId"`
}

type Store struct {
	client *firestore.Client
	clock  clock.Clock
}

var _ store.Store = (*Store)(nil)

func Open(ctx context.Context, app *firebase.App, c clock.Clock) (*Store, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Firestore client: %w", err)
	}
	return New(client, c), nil
}

func New(client *firestore.Client, c clock.Clock) *Store {
	if c == nil {
		c = clock.System{}
	}
	return &Store{client: client, clock: c}
}

func (s *Store) fasts() *firestore.CollectionRef { return s.client.Collection(fastsCollection) }

func (s *Store) openRef(userID string) *firestore.DocumentRef {
	return s.client.Collection(openCollection).Doc(userID)
}

func (s *Store) tokens(userID string) *firestore.CollectionRef {
	return s.client.Collection(usersCollection).Doc(userID).Collection(tokensCollection)
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func decode(doc *firestore.DocumentSnapshot) (*fast.Record, error) {
	rec := &fast.Record{}
	if err := doc.DataTo(rec); err != nil {
		return nil, fmt.Errorf("failed to decode fast %s: %w", doc.Ref.ID, err)
	}
	rec.ID = doc.Ref.ID
	return rec, nil
}

func collect(iter *firestore.DocumentIterator) ([]fast.Record, error) {
	defer iter.Stop()

	var out []fast.Record
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		rec, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, userID, id string) (*fast.Record, error) {
	doc, err := s.fasts().Doc(id).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("fast %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get fast: %w", err)
	}
	rec, err := decode(doc)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, fmt.Errorf("fast %s: %w", id, store.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) Create(ctx context.Context, rec *fast.Record) error {
	ref := s.fasts().NewDoc()
	now := s.clock.Now()

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(s.openRef(rec.UserID))
		switch {
		case err == nil:
			return store.ErrConflict
		case !notFound(err):
			return err
		}

		doc := rec.Clone()
		doc.CreatedAt = now
		doc.UpdatedAt = now
		if err := tx.Create(ref, doc); err != nil {
			return err
		}
		if rec.Status.Open() {
			return tx.Set(s.openRef(rec.UserID), openMarker{FastID: ref.ID})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("user %s already has an open fast: %w", rec.UserID, store.ErrConflict)
		}
		return fmt.Errorf("failed to create fast: %w", err)
	}

	rec.ID = ref.ID
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (s *Store) Save(ctx context.Context, rec *fast.Record, expected fast.Status) error {
	ref := s.fasts().Doc(rec.ID)
	now := s.clock.Now()

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if notFound(err) {
				return store.ErrNotFound
			}
			return err
		}
		cur, err := decode(doc)
		if err != nil {
			return err
		}
		if cur.UserID != rec.UserID {
			return store.ErrNotFound
		}
		if cur.Status != expected {
			return fmt.Errorf("fast %s is %s, not %s: %w", rec.ID, cur.Status, expected, store.ErrConflict)
		}

		err = tx.Update(ref, []firestore.Update{
			{Path: "startTime", Value: rec.StartTime},
			{Path: "endTime", Value: rec.EndTime},
			{Path: "pausedAt", Value: rec.PausedAt},
			{Path: "plannedDurationHours", Value: rec.PlannedDurationHours},
			{Path: "actualDurationHours", Value: rec.ActualDurationHours},
			{Path: "status", Value: string(rec.Status)},
			{Path: "updatedAt", Value: now},
		})
		if err != nil {
			return err
		}
		if cur.Status.Open() && !rec.Status.Open() {
			return tx.Delete(s.openRef(rec.UserID))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("fast %s: %w", rec.ID, store.ErrNotFound)
		}
		if errors.Is(err, store.ErrConflict) {
			return err
		}
		return fmt.Errorf("failed to save fast: %w", err)
	}

	rec.UpdatedAt = now
	return nil
}

func (s *Store) AppendWater(ctx context.Context, userID, fastID string, entry fast.WaterIntakeEntry) error {
	ref := s.fasts().Doc(fastID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if notFound(err) {
				return store.ErrNotFound
			}
			return err
		}
		cur, err := decode(doc)
		if err != nil {
			return err
		}
		if cur.UserID != userID {
			return store.ErrNotFound
		}
		if !cur.Status.Open() {
			return store.ErrConflict
		}

		// The whole array is rewritten: ArrayUnion would drop a second
		// identical entry.
		return tx.Update(ref, []firestore.Update{
			{Path: "waterIntakeEntries", Value: append(cur.WaterIntakeEntries, entry)},
			{Path: "updatedAt", Value: s.clock.Now()},
		})
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConflict):
		return fmt.Errorf("fast %s: %w", fastID, err)
	default:
		return fmt.Errorf("failed to add water intake: %w", err)
	}
}

func (s *Store) Delete(ctx context.Context, userID, id string) error {
	ref := s.fasts().Doc(id)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if notFound(err) {
				return store.ErrNotFound
			}
			return err
		}
		cur, err := decode(doc)
		if err != nil {
			return err
		}
		if cur.UserID != userID {
			return store.ErrNotFound
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		if cur.Status.Open() {
			return tx.Delete(s.openRef(userID))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("fast %s: %w", id, store.ErrNotFound)
		}
		return fmt.Errorf("failed to delete fast: %w", err)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	bw := s.client.BulkWriter(ctx)

	refs, err := s.fasts().Where("userId", "==", userID).Documents(ctx).GetAll()
	if err != nil {
		bw.End()
		return fmt.Errorf("failed to list user fasts: %w", err)
	}
	for _, doc := range refs {
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return fmt.Errorf("failed to queue delete: %w", err)
		}
	}

	toks, err := s.tokens(userID).Documents(ctx).GetAll()
	if err != nil {
		bw.End()
		return fmt.Errorf("failed to list device tokens: %w", err)
	}
	for _, doc := range toks {
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return fmt.Errorf("failed to queue delete: %w", err)
		}
	}
	if _, err := bw.Delete(s.openRef(userID)); err != nil {
		bw.End()
		return fmt.Errorf("failed to queue delete: %w", err)
	}

	bw.End()
	return nil
}

func (s *Store) ListCompleted(ctx context.Context, userID string) ([]fast.Record, error) {
	var out []fast.Record
	err := store.Retry(ctx, store.DefaultRetry, func(ctx context.Context) error {
		var err error
		out, err = collect(s.fasts().
			Where("userId", "==", userID).
			Where("status", "==", string(fast.StatusCompleted)).
			Documents(ctx))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list completed fasts: %w", err)
	}
	return out, nil
}

func (s *Store) currentQuery(userID string) firestore.Query {
	return s.fasts().Where("userId", "==", userID).Where("status", "in", openStatuses).Limit(1)
}

func (s *Store) Current(ctx context.Context, userID string) (*fast.Record, error) {
	var recs []fast.Record
	err := store.Retry(ctx, store.DefaultRetry, func(ctx context.Context) error {
		var err error
		recs, err = collect(s.currentQuery(userID).Documents(ctx))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get current fast: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// Subscribe follows a snapshot listener on the user's open fast.
func (s *Store) Subscribe(ctx context.Context, userID string) (<-chan *fast.Record, error) {
	it := s.currentQuery(userID).Snapshots(ctx)
	out := make(chan *fast.Record, 1)

	go func() {
		defer close(out)
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					logger.Warn("fast snapshot listener stopped", "user", userID, "err", err)
				}
				return
			}

			recs, err := collect(snap.Documents)
			if err != nil {
				logger.Warn("failed to decode fast snapshot", "user", userID, "err", err)
				continue
			}
			var cur *fast.Record
			if len(recs) > 0 {
				cur = &recs[0]
			}

			select {
			case <-out:
			default:
			}
			out <- cur
		}
	}()

	return out, nil
}

func (s *Store) ListOpen(ctx context.Context) ([]fast.Record, error) {
	out, err := collect(s.fasts().Where("status", "in", openStatuses).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list open fasts: %w", err)
	}
	return out, nil
}

func (s *Store) ListHistory(ctx context.Context, userID string, limit int) ([]fast.Record, error) {
	q := s.fasts().
		Where("userId", "==", userID).
		Where("status", "in", endedStatuses).
		OrderBy("startTime", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	out, err := collect(q.Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list fast history: %w", err)
	}
	return out, nil
}

func (s *Store) RegisterDevice(ctx context.Context, userID string, token notification.DeviceToken) error {
	ref := s.tokens(userID).Doc(token.Token)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err == nil {
			var prev notification.DeviceToken
			if err := doc.DataTo(&prev); err == nil && !prev.AddedAt.IsZero() {
				token.AddedAt = prev.AddedAt
			}
		} else if !notFound(err) {
			return err
		}
		return tx.Set(ref, token)
	})
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *Store) DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error) {
	iter := s.tokens(userID).Documents(ctx)
	defer iter.Stop()

	var out []notification.DeviceToken
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get device tokens: %w", err)
		}
		var t notification.DeviceToken
		if err := doc.DataTo(&t); err != nil {
			return nil, fmt.Errorf("failed to decode device token: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.fasts().Limit(1).Documents(ctx).GetAll()
	return err
}

func (s *Store) Close() error {
	return s.client.Close()
}
