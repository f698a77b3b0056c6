package view

import (
	"fmt"
	"sync"

	"github.com/pv/telemetry-viewer-go/internal/telemetry"
	"github.com/pv/telemetry-viewer-go/internal/trail"
)

// MapBinder moves the marker and extends the trail polyline on every accepted
// fix. While inactive, all trail points are queued (bounded by the trail cap)
// and only the newest marker position is kept.
type MapBinder struct {
	sink      MapSink
	maxQueued int

	mu      sync.Mutex
	active  bool
	pending []telemetry.Position

	unsubscribe func()
}

// BindMap subscribes a map sink to the trail tracker
func BindMap(src *trail.Tracker, sink MapSink) *MapBinder {
	b := &MapBinder{sink: sink, maxQueued: src.MaxPoints()}
	b.unsubscribe = src.Subscribe(b.onUpdate)
	return b
}

func (b *MapBinder) onUpdate(u trail.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		b.pending = append(b.pending, u.Point)
		if b.maxQueued > 0 && len(b.pending) > b.maxQueued {
			b.pending = b.pending[len(b.pending)-b.maxQueued:]
		}
		return
	}

	b.sink.SetMarker(u.Point)
	b.sink.AppendTrailPoint(u.Point)
	if u.Dropped > 0 {
		if tt, ok := b.sink.(TrailTrimmer); ok {
			tt.TrimTrail(u.Dropped)
		}
	}
}

func (b *MapBinder) Activate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active {
		return nil
	}
	if err := initSink(b.sink); err != nil {
		return fmt.Errorf("map: init sink: %w", err)
	}
	b.active = true

	for _, p := range b.pending {
		b.sink.AppendTrailPoint(p)
	}
	if n := len(b.pending); n > 0 {
		b.sink.SetMarker(b.pending[n-1])
	}
	b.pending = nil
	return nil
}

func (b *MapBinder) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *MapBinder) Close() { b.unsubscribe() }
