package view

import (
	"fmt"
	"sync"

	"github.com/pv/telemetry-viewer-go/internal/buffer"
)

// PanelBinder shows the newest sample of a buffer as one record, so a panel
// never mixes fields of different samples.
type PanelBinder struct {
	stream string
	sink   PanelSink

	mu      sync.Mutex
	active  bool
	pending *Record

	unsubscribe func()
}

// BindPanel subscribes a panel to a buffer. Until the first sample the panel
// receives a Loading record on activation.
func BindPanel(src *buffer.Buffer, sink PanelSink) *PanelBinder {
	b := &PanelBinder{stream: src.Name(), sink: sink}
	b.unsubscribe = src.Subscribe(b.onUpdate)
	return b
}

func (b *PanelBinder) onUpdate(u buffer.Update) {
	rec := Record{Loading: true, Stream: b.stream}
	if len(u.Snapshot) > 0 {
		latest := u.Latest
		rec = Record{Stream: b.stream, Timestamp: latest.Timestamp, Fields: latest.Fields}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		b.pending = &rec
		return
	}
	b.sink.SetFields(rec)
}

func (b *PanelBinder) Activate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active {
		return nil
	}
	if err := initSink(b.sink); err != nil {
		return fmt.Errorf("panel %s: init sink: %w", b.stream, err)
	}
	b.active = true

	rec := Record{Loading: true, Stream: b.stream}
	if b.pending != nil {
		rec = *b.pending
		b.pending = nil
	}
	b.sink.SetFields(rec)
	return nil
}

func (b *PanelBinder) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *PanelBinder) Close() { b.unsubscribe() }
