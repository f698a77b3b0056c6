package poller

import (
	"context"
	"time"

	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

// FetchFunc выполняет один запрос к endpoint и возвращает тело ответа
type FetchFunc func(ctx context.Context) ([]byte, error)

// ParseFunc преобразует тело ответа в сэмплы в порядке их следования
type ParseFunc func(body []byte) ([]telemetry.Sample, error)

// Consumer получает каждый сэмпл инкрементального ответа
type Consumer interface {
	Append(s telemetry.Sample) error
}

// SnapshotConsumer получает ответ целиком как полный снимок истории
type SnapshotConsumer interface {
	ReplaceAll(samples []telemetry.Sample) error
}

// ConsumerFunc адаптер функции к Consumer
type ConsumerFunc func(s telemetry.Sample) error

func (f ConsumerFunc) Append(s telemetry.Sample) error { return f(s) }

// SnapshotConsumerFunc адаптер функции к SnapshotConsumer
type SnapshotConsumerFunc func(samples []telemetry.Sample) error

func (f SnapshotConsumerFunc) ReplaceAll(samples []telemetry.Sample) error { return f(samples) }

// Metrics приёмник метрик опроса
type Metrics interface {
	ObservePoll(poller, result string, d time.Duration)
	IncSkipped(poller string)
	IncRejected(poller string)
}

// Dispatcher выполняет доставку одного ответа потребителям. Позволяет
// владельцу сериализовать доставку от нескольких poller'ов.
type Dispatcher func(deliver func())

// Результаты опроса для метрик
const (
	ResultSuccess   = "success"
	ResultNetwork   = "network_error"
	ResultMalformed = "malformed"
)

type noopMetrics struct{}

func (noopMetrics) ObservePoll(string, string, time.Duration) {}
func (noopMetrics) IncSkipped(string)                         {}
func (noopMetrics) IncRejected(string)                        {}
