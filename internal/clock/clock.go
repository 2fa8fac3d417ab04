// Package clock provides injectable time sources.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed returns T until it is moved with Set or Advance.
type Fixed struct {
	mu sync.Mutex
	T  time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{T: t}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.T
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.T = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.T = f.T.Add(d)
	f.mu.Unlock()
}

// Monotonic wraps a Clock and never returns a time earlier than one it has
// already returned, so progress does not regress if the system clock is
// set backwards.
type Monotonic struct {
	mu   sync.Mutex
	src  Clock
	last time.Time
}

func NewMonotonic(src Clock) *Monotonic {
	return &Monotonic{src: src}
}

func (m *Monotonic) Now() time.Time {
	now := m.src.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Before(m.last) {
		return m.last
	}
	m.last = now
	return now
}
