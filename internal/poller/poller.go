package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pv/telemetry-viewer-go/internal/logger"
	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

// Config параметры одного цикла опроса
type Config struct {
	Name     string
	Endpoint string
	Interval time.Duration
	// Timeout таймаут одного запроса; по умолчанию равен Interval
	Timeout time.Duration
	Fetch   FetchFunc
	Parse   ParseFunc
	// Snapshot: ответ доставляется через ReplaceAll, а не поэлементно
	Snapshot bool
}

// Option настройка Poller
type Option func(*Poller)

// WithLogger задаёт логгер
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithMetrics задаёт приёмник метрик
func WithMetrics(m Metrics) Option {
	return func(p *Poller) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithDispatcher задаёт сериализатор доставки
func WithDispatcher(d Dispatcher) Option {
	return func(p *Poller) {
		if d != nil {
			p.dispatch = d
		}
	}
}

// Poller опрашивает один endpoint с фиксированным интервалом. В полёте
// находится не больше одного запроса: тик, пришедший во время запроса,
// пропускается.
type Poller struct {
	cfg      Config
	logger   *slog.Logger
	metrics  Metrics
	dispatch Dispatcher

	mu                sync.RWMutex
	consumers         []Consumer
	snapshotConsumers []SnapshotConsumer
	state             ConnectionState

	// deliverMu защищает stopped: после Stop доставка не выполняется
	deliverMu sync.Mutex
	stopped   bool

	inFlight atomic.Bool
	started  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New создаёт poller
func New(cfg Config, opts ...Option) (*Poller, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("poller: name is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poller %s: interval must be positive", cfg.Name)
	}
	if cfg.Fetch == nil || cfg.Parse == nil {
		return nil, fmt.Errorf("poller %s: fetch and parse are required", cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Poller{
		cfg:      cfg,
		metrics:  noopMetrics{},
		dispatch: func(deliver func()) { deliver() },
		ctx:      ctx,
		cancel:   cancel,
		state: ConnectionState{
			Name:     cfg.Name,
			Endpoint: cfg.Endpoint,
			Interval: cfg.Interval.String(),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.For(nil, "poller")
	}
	p.logger = p.logger.With("poller", cfg.Name)

	return p, nil
}

// Name возвращает имя poller'а
func (p *Poller) Name() string { return p.cfg.Name }

// Register добавляет потребителя поэлементной доставки
func (p *Poller) Register(c Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumers = append(p.consumers, c)
}

// RegisterSnapshot добавляет потребителя снимков
func (p *Poller) RegisterSnapshot(c SnapshotConsumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshotConsumers = append(p.snapshotConsumers, c)
}

// State возвращает копию состояния связи
func (p *Poller) State() ConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Start запускает polling. Первый опрос выполняется сразу.
func (p *Poller) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go p.pollLoop()
	p.logger.Info("Poller started", "endpoint", p.cfg.Endpoint, "interval", p.cfg.Interval, "timeout", p.cfg.Timeout)
}

// Stop останавливает polling и прерывает запрос в полёте. После возврата
// потребители больше не вызываются. Нельзя вызывать из потребителя.
func (p *Poller) Stop() {
	p.deliverMu.Lock()
	already := p.stopped
	p.stopped = true
	p.deliverMu.Unlock()

	p.cancel()
	p.wg.Wait()

	if !already {
		p.logger.Info("Poller stopped")
	}
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick запускает запрос, если предыдущий уже завершён
func (p *Poller) tick() {
	if p.ctx.Err() != nil {
		return
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		p.mu.Lock()
		p.state.Skipped++
		p.mu.Unlock()
		p.metrics.IncSkipped(p.cfg.Name)
		p.logger.Debug("tick skipped, request still in flight")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		p.pollOnce()
	}()
}

// pollOnce выполняет один запрос и доставляет результат
func (p *Poller) pollOnce() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	samples, err := p.fetchAndParse(ctx)
	elapsed := time.Since(start)

	// Остановлены во время запроса: ничего не фиксируем
	if p.ctx.Err() != nil {
		return
	}

	now := time.Now()
	p.mu.Lock()
	p.state.Requests++
	if err != nil {
		p.state.recordFailure(now, err)
	} else {
		p.state.recordSuccess(now)
	}
	failures := p.state.ConsecutiveFailures
	p.mu.Unlock()

	if err != nil {
		result := ResultNetwork
		if errors.Is(err, telemetry.ErrMalformedResponse) {
			result = ResultMalformed
		}
		p.metrics.ObservePoll(p.cfg.Name, result, elapsed)
		p.logger.Warn("Poll failed", "endpoint", p.cfg.Endpoint, "consecutive_failures", failures, "error", err)
		return
	}

	p.metrics.ObservePoll(p.cfg.Name, ResultSuccess, elapsed)
	p.logger.Debug("poll result", "samples", len(samples), "elapsed", elapsed)

	p.dispatch(func() { p.deliver(samples) })
}

func (p *Poller) fetchAndParse(ctx context.Context) ([]telemetry.Sample, error) {
	body, err := p.cfg.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, telemetry.ErrNetwork) {
			err = fmt.Errorf("%w: %w", telemetry.ErrNetwork, err)
		}
		return nil, err
	}

	samples, err := p.cfg.Parse(body)
	if err != nil {
		if !errors.Is(err, telemetry.ErrMalformedResponse) {
			err = fmt.Errorf("%w: %w", telemetry.ErrMalformedResponse, err)
		}
		return nil, err
	}
	return samples, nil
}

func (p *Poller) deliver(samples []telemetry.Sample) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	if p.stopped {
		return
	}

	p.mu.RLock()
	consumers := append([]Consumer(nil), p.consumers...)
	snapshotConsumers := append([]SnapshotConsumer(nil), p.snapshotConsumers...)
	p.mu.RUnlock()

	if p.cfg.Snapshot {
		for _, c := range snapshotConsumers {
			if err := c.ReplaceAll(samples); err != nil {
				p.reject(err)
			}
		}
		return
	}

	for _, s := range samples {
		for _, c := range consumers {
			if err := c.Append(s); err != nil {
				p.reject(err)
			}
		}
	}
}

func (p *Poller) reject(err error) {
	p.metrics.IncRejected(p.cfg.Name)
	p.logger.Warn("Sample rejected", "error", err)
}
