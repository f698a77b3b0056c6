package view

import (
	"fmt"
	"sync"

	"github.com/pv/telemetry-viewer-go/internal/buffer"
	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

// SeriesBinder renders one field of a buffer as a chart series. Each accepted
// append or replace produces exactly one SetSeries call.
type SeriesBinder struct {
	series string
	field  string
	sink   ChartSink

	mu      sync.Mutex
	active  bool
	pending []Point // latest-wins while inactive
	queued  bool

	unsubscribe func()
}

// BindSeries subscribes a chart series to a buffer field. The binder starts
// inactive: updates are queued until Activate.
func BindSeries(src *buffer.Buffer, field, series string, sink ChartSink) *SeriesBinder {
	if series == "" {
		series = field
	}
	b := &SeriesBinder{series: series, field: field, sink: sink}
	b.unsubscribe = src.Subscribe(b.onUpdate)
	return b
}

// Points converts a snapshot into series points, skipping samples without the field.
func Points(samples []telemetry.Sample, field string) []Point {
	out := make([]Point, 0, len(samples))
	for _, s := range samples {
		if v, ok := s.Fields[field]; ok {
			out = append(out, Point{Time: s.Timestamp, Value: v})
		}
	}
	return out
}

func (b *SeriesBinder) onUpdate(u buffer.Update) {
	points := Points(u.Snapshot, b.field)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		b.pending = points
		b.queued = true
		return
	}
	b.sink.SetSeries(b.series, points)
}

func (b *SeriesBinder) Activate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active {
		return nil
	}
	if err := initSink(b.sink); err != nil {
		return fmt.Errorf("series %s: init sink: %w", b.series, err)
	}
	b.active = true
	if b.queued {
		b.sink.SetSeries(b.series, b.pending)
		b.pending = nil
		b.queued = false
	}
	return nil
}

func (b *SeriesBinder) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *SeriesBinder) Close() { b.unsubscribe() }
