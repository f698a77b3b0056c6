// Package view binds engine-owned data sources to visual sinks.
//
// A binder subscribes to one source (a buffer or the trail) and pushes every
// accepted mutation into its sink synchronously, in the goroutine that
// produced the data. Binders never mutate what they are given.
package view

import (
	"time"

	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

// Point is one chart point
type Point struct {
	Time  time.Time `json:"t"`
	Value float64   `json:"v"`
}

// Record is the content of a numeric panel. Loading marks the state before
// the first accepted sample; Fields is empty then.
type Record struct {
	Loading   bool               `json:"loading"`
	Stream    string             `json:"stream,omitempty"`
	Timestamp time.Time          `json:"timestamp,omitempty"`
	Fields    map[string]float64 `json:"fields,omitempty"`
}

// ChartSink draws named series
type ChartSink interface {
	SetSeries(name string, points []Point)
}

// MapSink moves the marker and grows the trail polyline.
// SetMarker is never called before the first real fix.
type MapSink interface {
	SetMarker(pos telemetry.Position)
	AppendTrailPoint(pos telemetry.Position)
}

// TrailTrimmer is implemented by map sinks that want to mirror trail cap
// evictions by dropping their n oldest points.
type TrailTrimmer interface {
	TrimTrail(n int)
}

// PanelSink shows the current reading
type PanelSink interface {
	SetFields(record Record)
}

// Initializer is implemented by sinks that need setup before the first update
type Initializer interface {
	Init() error
}

// Binder is the common lifecycle of all binders
type Binder interface {
	// Activate initializes the sink if needed and flushes queued updates
	Activate() error
	// Active reports whether updates go straight to the sink
	Active() bool
	// Close detaches the binder from its source
	Close()
}

func initSink(sink any) error {
	if in, ok := sink.(Initializer); ok {
		return in.Init()
	}
	return nil
}
