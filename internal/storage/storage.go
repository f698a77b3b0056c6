package storage

import (
	"time"

	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

// Entry принятый сэмпл в журнале сессии
type Entry struct {
	Stream     string             `json:"stream"`
	Kind       telemetry.Kind     `json:"kind"`
	Timestamp  time.Time          `json:"timestamp"`
	ReceivedAt time.Time          `json:"receivedAt"`
	Fields     map[string]float64 `json:"fields"`
}

// Sample возвращает сэмпл записи
func (e Entry) Sample() telemetry.Sample {
	return telemetry.Sample{Kind: e.Kind, Timestamp: e.Timestamp, Fields: e.Fields}
}

// Storage журнал принятых сэмплов. Живёт в пределах одной сессии:
// реализации очищают данные при открытии.
type Storage interface {
	// Save сохраняет сэмпл потока
	Save(stream string, s telemetry.Sample, receivedAt time.Time) error

	// GetHistory возвращает записи потока, принятые в указанный период
	GetHistory(stream string, from, to time.Time) ([]Entry, error)

	// GetLatest возвращает последние N записей в порядке поступления
	GetLatest(stream string, count int) ([]Entry, error)

	// Cleanup удаляет записи, принятые раньше указанного времени
	Cleanup(olderThan time.Time) error

	// Close закрывает хранилище
	Close() error
}
