package storage

import (
	"sync"
	"time"

	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

type memoryStorage struct {
	mu   sync.RWMutex
	data map[string][]Entry // key: stream
}

func NewMemoryStorage() Storage {
	return &memoryStorage{
		data: make(map[string][]Entry),
	}
}

func (m *memoryStorage) Save(stream string, s telemetry.Sample, receivedAt time.Time) error {
	s = s.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[stream] = append(m.data[stream], Entry{
		Stream:     stream,
		Kind:       s.Kind,
		Timestamp:  s.Timestamp,
		ReceivedAt: receivedAt,
		Fields:     s.Fields,
	})

	return nil
}

func (m *memoryStorage) GetHistory(stream string, from, to time.Time) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []Entry
	for _, e := range m.data[stream] {
		if (e.ReceivedAt.Equal(from) || e.ReceivedAt.After(from)) &&
			(e.ReceivedAt.Equal(to) || e.ReceivedAt.Before(to)) {
			filtered = append(filtered, cloneEntry(e))
		}
	}

	return filtered, nil
}

func (m *memoryStorage) GetLatest(stream string, count int) ([]Entry, error) {
	if count <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.data[stream]
	if count < len(entries) {
		entries = entries[len(entries)-count:]
	}

	result := make([]Entry, len(entries))
	for i, e := range entries {
		result[i] = cloneEntry(e)
	}
	return result, nil
}

func (m *memoryStorage) Cleanup(olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entries := range m.data {
		var filtered []Entry
		for _, e := range entries {
			if !e.ReceivedAt.Before(olderThan) {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(m.data, key)
		} else {
			m.data[key] = filtered
		}
	}

	return nil
}

func (m *memoryStorage) Close() error {
	return nil
}

func cloneEntry(e Entry) Entry {
	s := e.Sample().Clone()
	e.Fields = s.Fields
	return e
}
