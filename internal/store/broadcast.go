package store

import (
	"context"
	"sync"

	"waterFastAPI/internal/types/fast"
)

// Broadcaster fans current-fast updates out to per-user subscribers. Each
// subscriber holds at most one pending value; a newer value replaces an
// unread older one.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan *fast.Record]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[chan *fast.Record]struct{})}
}

// Add registers a subscriber seeded with initial. The channel is removed and
// closed when ctx is done.
func (b *Broadcaster) Add(ctx context.Context, userID string, initial *fast.Record) <-chan *fast.Record {
	ch := make(chan *fast.Record, 1)
	ch <- initial.Clone()

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan *fast.Record]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()

		b.mu.Lock()
		delete(b.subs[userID], ch)
		if len(b.subs[userID]) == 0 {
			delete(b.subs, userID)
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish sends rec to every subscriber of userID without blocking.
func (b *Broadcaster) Publish(userID string, rec *fast.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[userID] {
		select {
		case <-ch:
		default:
		}
		ch <- rec.Clone()
	}
}

// Watching reports whether anyone is subscribed to userID.
func (b *Broadcaster) Watching(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID]) > 0
}

// Users returns the ids with at least one subscriber.
func (b *Broadcaster) Users() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.subs))
	for id := range b.subs {
		out = append(out, id)
	}
	return out
}
