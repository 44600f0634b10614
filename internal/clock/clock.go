// Package clock provides injectable wall-clock and ID generation so the
// scoring engine is deterministic under test.
package clock

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time.Now.
type Clock interface {
	Now() time.Time
}

// IDGen abstracts UUID generation.
type IDGen interface {
	NewID() string
}

// System is the production clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// UUID generates random version-4 UUIDs.
type UUID struct{}

func (UUID) NewID() string { return uuid.NewString() }

// Fixed is a test clock that returns a settable instant and can be advanced.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed creates a Fixed clock starting at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t.UTC()}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// Set pins the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t.UTC()
	f.mu.Unlock()
}

// Sequential is a test ID generator producing v5-style deterministic IDs
// from an incrementing counter.
type Sequential struct {
	mu sync.Mutex
	n  uint64
}

func (s *Sequential) NewID() string {
	s.mu.Lock()
	s.n++
	n := s.n
	s.mu.Unlock()
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte{
		byte(n >> 56), byte(n >> 48), byte(n >> 40), byte(n >> 32),
		byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n),
	}).String()
}
