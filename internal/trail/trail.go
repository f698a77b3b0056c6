// Package trail derives the path traced by the device from successive fixes.
package trail

import (
	"fmt"
	"sync"

	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

// Update is delivered to observers after every accepted Extend.
type Update struct {
	Point   telemetry.Position
	Length  int
	Dropped int // points evicted by the cap during this extend
}

// Observer receives updates synchronously
type Observer func(Update)

// Tracker keeps an append-only sequence of positions. With a non-zero cap the
// oldest points are evicted once the cap is reached.
type Tracker struct {
	maxPoints int

	mu      sync.RWMutex
	points  []telemetry.Position
	current telemetry.Position
	set     bool

	obsMu     sync.RWMutex
	observers []subscription
	nextObsID int
}

type subscription struct {
	id int
	fn Observer
}

// New creates a tracker. maxPoints <= 0 means unbounded.
func New(maxPoints int) *Tracker {
	if maxPoints < 0 {
		maxPoints = 0
	}
	return &Tracker{maxPoints: maxPoints}
}

// MaxPoints returns the configured cap, 0 when unbounded
func (t *Tracker) MaxPoints() int { return t.maxPoints }

// Extend appends the sample's coordinates. Samples without a valid fix are
// rejected with an error matching telemetry.ErrInvalidSample.
func (t *Tracker) Extend(s telemetry.Sample) error {
	pos, err := telemetry.ValidatePosition(s)
	if err != nil {
		return fmt.Errorf("trail: %w", err)
	}

	t.mu.Lock()
	t.points = append(t.points, pos)
	dropped := 0
	if t.maxPoints > 0 && len(t.points) > t.maxPoints {
		dropped = len(t.points) - t.maxPoints
		// copy to let the evicted prefix be collected
		kept := make([]telemetry.Position, t.maxPoints, t.maxPoints+1)
		copy(kept, t.points[dropped:])
		t.points = kept
	}
	t.current = pos
	t.set = true
	upd := Update{Point: pos, Length: len(t.points), Dropped: dropped}
	t.mu.Unlock()

	t.obsMu.RLock()
	observers := append([]subscription(nil), t.observers...)
	t.obsMu.RUnlock()
	for _, sub := range observers {
		sub.fn(upd)
	}
	return nil
}

// Current returns the latest accepted position. ok is false until the first
// accepted fix: callers must render that as "unset", not as (0,0).
func (t *Tracker) Current() (pos telemetry.Position, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current, t.set
}

// Path returns a copy of the trail, oldest first
func (t *Tracker) Path() []telemetry.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]telemetry.Position, len(t.points))
	copy(out, t.points)
	return out
}

// Len returns the number of points in the trail
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}

// Subscribe registers an observer for accepted extends and returns a
// function that removes it.
func (t *Tracker) Subscribe(o Observer) (unsubscribe func()) {
	t.obsMu.Lock()
	id := t.nextObsID
	t.nextObsID++
	t.observers = append(t.observers, subscription{id: id, fn: o})
	t.obsMu.Unlock()

	return func() {
		t.obsMu.Lock()
		defer t.obsMu.Unlock()
		for i, sub := range t.observers {
			if sub.id == id {
				t.observers = append(t.observers[:i:i], t.observers[i+1:]...)
				return
			}
		}
	}
}
