// Package buffer keeps a bounded, arrival-ordered history of samples for one stream.
package buffer

import (
	"fmt"
	"sync"

	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

// Op identifies the mutation that produced an Update
type Op string

const (
	OpAppend  Op = "append"
	OpReplace Op = "replace"
)

// Update is delivered to observers after every successful mutation.
// Snapshot is the buffer content right after the mutation; it is a copy.
type Update struct {
	Stream   string
	Op       Op
	Latest   telemetry.Sample
	Snapshot []telemetry.Sample
}

// Observer receives updates synchronously, in the goroutine that mutated the buffer
type Observer func(Update)

// Buffer is a FIFO ring of the N most recent samples. Insertion order reflects
// arrival order, not timestamp order.
type Buffer struct {
	name     string
	capacity int
	required []string

	mu   sync.RWMutex
	ring []telemetry.Sample
	head int // index of the oldest sample
	size int

	obsMu     sync.RWMutex
	observers []subscription
	nextObsID int
}

type subscription struct {
	id int
	fn Observer
}

// New creates a buffer for the named stream. Samples missing any of the
// required fields are rejected.
func New(name string, capacity int, required ...string) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("buffer %s: capacity must be positive, got %d", name, capacity)
	}
	return &Buffer{
		name:     name,
		capacity: capacity,
		required: append([]string(nil), required...),
		ring:     make([]telemetry.Sample, capacity),
	}, nil
}

// Name returns the stream name
func (b *Buffer) Name() string { return b.name }

// Capacity returns N
func (b *Buffer) Capacity() int { return b.capacity }

// Len returns the number of stored samples
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Append adds a sample at the end, evicting the oldest one when full.
// An invalid sample leaves the buffer untouched and returns an error
// matching telemetry.ErrInvalidSample.
func (b *Buffer) Append(s telemetry.Sample) error {
	if err := telemetry.Validate(s, b.required...); err != nil {
		return fmt.Errorf("buffer %s: %w", b.name, err)
	}
	s = s.Clone()

	b.mu.Lock()
	tail := (b.head + b.size) % b.capacity
	b.ring[tail] = s
	if b.size == b.capacity {
		b.head = (b.head + 1) % b.capacity
	} else {
		b.size++
	}
	upd := b.updateLocked(OpAppend, s)
	b.mu.Unlock()

	b.notify(upd)
	return nil
}

// ReplaceAll swaps the content for a full snapshot, keeping the snapshot's
// order. When the snapshot is longer than the capacity only its last N entries
// are kept. One invalid entry rejects the whole snapshot.
func (b *Buffer) ReplaceAll(samples []telemetry.Sample) error {
	for i, s := range samples {
		if err := telemetry.Validate(s, b.required...); err != nil {
			return fmt.Errorf("buffer %s: snapshot entry %d: %w", b.name, i, err)
		}
	}

	if len(samples) > b.capacity {
		samples = samples[len(samples)-b.capacity:]
	}

	b.mu.Lock()
	ring := make([]telemetry.Sample, b.capacity)
	for i, s := range samples {
		ring[i] = s.Clone()
	}
	b.ring = ring
	b.head = 0
	b.size = len(samples)

	var latest telemetry.Sample
	if b.size > 0 {
		latest = ring[b.size-1]
	}
	upd := b.updateLocked(OpReplace, latest)
	b.mu.Unlock()

	b.notify(upd)
	return nil
}

// Snapshot returns the content oldest-first. The result is a deep copy.
func (b *Buffer) Snapshot() []telemetry.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// Latest returns the most recently stored sample
func (b *Buffer) Latest() (telemetry.Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return telemetry.Sample{}, false
	}
	return b.ring[(b.head+b.size-1)%b.capacity].Clone(), true
}

// Subscribe registers an observer and returns a function that removes it.
func (b *Buffer) Subscribe(o Observer) (unsubscribe func()) {
	b.obsMu.Lock()
	id := b.nextObsID
	b.nextObsID++
	b.observers = append(b.observers, subscription{id: id, fn: o})
	b.obsMu.Unlock()

	return func() {
		b.obsMu.Lock()
		defer b.obsMu.Unlock()
		for i, sub := range b.observers {
			if sub.id == id {
				b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
				return
			}
		}
	}
}

func (b *Buffer) snapshotLocked() []telemetry.Sample {
	out := make([]telemetry.Sample, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.ring[(b.head+i)%b.capacity].Clone()
	}
	return out
}

func (b *Buffer) updateLocked(op Op, latest telemetry.Sample) *Update {
	b.obsMu.RLock()
	n := len(b.observers)
	b.obsMu.RUnlock()
	if n == 0 {
		return nil
	}
	return &Update{
		Stream:   b.name,
		Op:       op,
		Latest:   latest.Clone(),
		Snapshot: b.snapshotLocked(),
	}
}

func (b *Buffer) notify(upd *Update) {
	if upd == nil {
		return
	}

	// copy under lock: an observer may unsubscribe from inside its callback
	b.obsMu.RLock()
	observers := make([]subscription, len(b.observers))
	copy(observers, b.observers)
	b.obsMu.RUnlock()

	for _, sub := range observers {
		sub.fn(*upd)
	}
}
