// Package engine wires pollers, buffers, the trail and view binders into one
// live-state synchronization engine for a single device.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pv/telemetry-viewer-go/internal/buffer"
	"github.com/pv/telemetry-viewer-go/internal/config"
	"github.com/pv/telemetry-viewer-go/internal/device"
	"github.com/pv/telemetry-viewer-go/internal/logger"
	"github.com/pv/telemetry-viewer-go/internal/poller"
	"github.com/pv/telemetry-viewer-go/internal/storage"
	"github.com/pv/telemetry-viewer-go/internal/telemetry"
	"github.com/pv/telemetry-viewer-go/internal/trail"
	"github.com/pv/telemetry-viewer-go/internal/view"
)

// Имена потоков (буферов)
const (
	StreamLocation        = "location"
	StreamPosition        = "position"
	StreamSensor          = "sensor"
	StreamLocationHistory = "location_history"
	StreamSensorHistory   = "sensor_history"
	StreamGPSHistory      = "gps_history"
)

// live потоки пишутся в журнал; исторические снимки нет
var liveStreams = []string{StreamLocation, StreamPosition, StreamSensor}

const journalCleanupInterval = time.Minute

// Gauges принимает размеры буферов и трека
type Gauges interface {
	SetBufferLen(stream string, n int)
	SetTrailLen(n int)
}

// Option настройка Engine
type Option func(*Engine)

// WithLogger задаёт базовый логгер
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.base = l }
}

// WithMetrics задаёт метрики опроса и размеров
func WithMetrics(m interface {
	poller.Metrics
	Gauges
}) Option {
	return func(e *Engine) {
		e.pollMetrics = m
		e.gauges = m
	}
}

// WithJournal включает журнал принятых сэмплов. ttl <= 0 отключает очистку.
func WithJournal(s storage.Storage, ttl time.Duration) Option {
	return func(e *Engine) {
		e.journal = s
		e.journalTTL = ttl
	}
}

// Engine владеет буферами и треком; pollers пишут в них, binders читают
type Engine struct {
	cfg    *config.Config
	client *device.Client
	base   *slog.Logger
	logger *slog.Logger

	pollMetrics poller.Metrics
	gauges      Gauges
	journal     storage.Storage
	journalTTL  time.Duration

	// mu сериализует применение ответов и согласованное чтение состояния
	mu      sync.Mutex
	buffers map[string]*buffer.Buffer
	trail   *trail.Tracker
	pollers []*poller.Poller

	bindMu  sync.Mutex
	binders []view.Binder
	started bool

	unsubscribe []func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New создаёт движок по конфигурации. Pollers создаются, но не запускаются.
func New(cfg *config.Config, client *device.Client, opts ...Option) (*Engine, error) {
	if cfg == nil || client == nil {
		return nil, fmt.Errorf("engine: config and client are required")
	}

	e := &Engine{
		cfg:     cfg,
		client:  client,
		buffers: make(map[string]*buffer.Buffer),
		trail:   trail.New(cfg.TrailCap),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logger.For(e.base, "engine")

	required := map[string][]string{
		StreamLocation:        {telemetry.FieldLatitude, telemetry.FieldLongitude},
		StreamPosition:        {telemetry.FieldLatitude, telemetry.FieldLongitude},
		StreamSensor:          nil,
		StreamLocationHistory: {telemetry.FieldLatitude, telemetry.FieldLongitude},
		StreamSensorHistory:   nil,
		StreamGPSHistory:      {telemetry.FieldLatitude, telemetry.FieldLongitude},
	}
	for name, fields := range required {
		b, err := buffer.New(name, cfg.HistoryLimit, fields...)
		if err != nil {
			return nil, err
		}
		e.buffers[name] = b
	}

	e.observe()

	for _, pc := range cfg.Pollers {
		p, err := e.newPoller(pc)
		if err != nil {
			return nil, err
		}
		e.pollers = append(e.pollers, p)
	}

	return e, nil
}

func (e *Engine) newPoller(pc config.PollerConfig) (*poller.Poller, error) {
	limit := e.cfg.HistoryLimit
	c := e.client

	pcfg := poller.Config{
		Name:     pc.Name,
		Endpoint: pc.Endpoint,
		Interval: pc.Interval,
		Timeout:  pc.Timeout,
	}

	var target string
	switch pc.Endpoint {
	case config.EndpointLocation:
		pcfg.Fetch, pcfg.Parse = c.FetchLocation, device.ParseLocation
	case config.EndpointData:
		pcfg.Fetch, pcfg.Parse = c.FetchData, device.ParseData
	case config.EndpointLocationHistory:
		pcfg.Fetch = func(ctx context.Context) ([]byte, error) { return c.FetchLocationHistory(ctx, limit) }
		pcfg.Parse = device.ParseLocationHistory
		target = StreamLocationHistory
	case config.EndpointSensorHistory:
		pcfg.Fetch = func(ctx context.Context) ([]byte, error) { return c.FetchSensorHistory(ctx, limit) }
		pcfg.Parse = device.ParseSensorHistory
		target = StreamSensorHistory
	case config.EndpointGPSHistory:
		pcfg.Fetch = func(ctx context.Context) ([]byte, error) { return c.FetchGPSHistory(ctx, limit) }
		pcfg.Parse = device.ParseGPSHistory
		target = StreamGPSHistory
	default:
		return nil, fmt.Errorf("engine: poller %s: unknown endpoint %q", pc.Name, pc.Endpoint)
	}
	pcfg.Snapshot = target != ""

	p, err := poller.New(pcfg,
		poller.WithLogger(logger.For(e.base, "poller")),
		poller.WithMetrics(e.pollMetrics),
		poller.WithDispatcher(e.dispatch),
	)
	if err != nil {
		return nil, err
	}

	if pcfg.Snapshot {
		p.RegisterSnapshot(e.buffers[target])
	} else {
		p.Register(poller.ConsumerFunc(e.route))
	}
	return p, nil
}

// dispatch применяет один ответ целиком под блокировкой движка
func (e *Engine) dispatch(deliver func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	deliver()
}

// route раскладывает живой сэмпл по буферу его вида; фиксы позиции
// дополнительно продлевают трек
func (e *Engine) route(s telemetry.Sample) error {
	switch s.Kind {
	case telemetry.KindLocation, telemetry.KindPosition:
		if _, err := telemetry.ValidatePosition(s); err != nil {
			return err
		}
		if err := e.buffers[string(s.Kind)].Append(s); err != nil {
			return err
		}
		return e.trail.Extend(s)
	case telemetry.KindSensor:
		return e.buffers[StreamSensor].Append(s)
	default:
		return fmt.Errorf("%w: unknown kind %q", telemetry.ErrInvalidSample, s.Kind)
	}
}

// observe подписывает журнал и метрики на буферы и трек
func (e *Engine) observe() {
	if e.journal != nil {
		for _, stream := range liveStreams {
			e.unsubscribe = append(e.unsubscribe, e.buffers[stream].Subscribe(func(u buffer.Update) {
				if u.Op != buffer.OpAppend {
					return
				}
				if err := e.journal.Save(stream, u.Latest, time.Now()); err != nil {
					e.logger.Warn("Failed to save sample", "stream", stream, "error", err)
				}
			}))
		}
	}

	if e.gauges != nil {
		for stream, b := range e.buffers {
			e.unsubscribe = append(e.unsubscribe, b.Subscribe(func(u buffer.Update) {
				e.gauges.SetBufferLen(stream, len(u.Snapshot))
			}))
		}
		e.unsubscribe = append(e.unsubscribe, e.trail.Subscribe(func(u trail.Update) {
			e.gauges.SetTrailLen(u.Length)
		}))
	}
}

// BindChart рисует поле field потока stream как серию series
func (e *Engine) BindChart(stream, field, series string, sink view.ChartSink) (*view.SeriesBinder, error) {
	b, ok := e.buffers[stream]
	if !ok {
		return nil, fmt.Errorf("engine: unknown stream %q", stream)
	}
	sb := view.BindSeries(b, field, series, sink)
	return sb, e.addBinder(sb)
}

// BindPanel показывает последний сэмпл потока stream
func (e *Engine) BindPanel(stream string, sink view.PanelSink) (*view.PanelBinder, error) {
	b, ok := e.buffers[stream]
	if !ok {
		return nil, fmt.Errorf("engine: unknown stream %q", stream)
	}
	pb := view.BindPanel(b, sink)
	return pb, e.addBinder(pb)
}

// BindMap ведёт маркер и трек на карте
func (e *Engine) BindMap(sink view.MapSink) (*view.MapBinder, error) {
	mb := view.BindMap(e.trail, sink)
	return mb, e.addBinder(mb)
}

// addBinder регистрирует binder; после Start он активируется сразу
func (e *Engine) addBinder(b view.Binder) error {
	e.bindMu.Lock()
	e.binders = append(e.binders, b)
	started := e.started
	e.bindMu.Unlock()

	if !started {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return b.Activate()
}

// Start активирует binders, затем запускает pollers. Ошибки инициализации
// sinks возвращаются, но опрос стартует: неактивный binder копит обновления
// до повторного Activate.
func (e *Engine) Start(ctx context.Context) error {
	e.bindMu.Lock()
	if e.started {
		e.bindMu.Unlock()
		return nil
	}
	e.started = true
	binders := append([]view.Binder(nil), e.binders...)
	e.bindMu.Unlock()

	var errs []error
	e.mu.Lock()
	for _, b := range binders {
		if err := b.Activate(); err != nil {
			e.logger.Error("Failed to activate view", "error", err)
			errs = append(errs, err)
		}
	}
	e.mu.Unlock()

	ctx, e.cancel = context.WithCancel(ctx)
	if e.journal != nil && e.journalTTL > 0 {
		e.wg.Add(1)
		go e.cleanupLoop(ctx)
	}

	for _, p := range e.pollers {
		p.Start()
	}
	e.logger.Info("Engine started", "pollers", len(e.pollers), "device", e.client.DeviceID())

	return errors.Join(errs...)
}

// Stop останавливает все pollers. После возврата ни один буфер не меняется.
func (e *Engine) Stop() {
	for _, p := range e.pollers {
		p.Stop()
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	e.bindMu.Lock()
	for _, b := range e.binders {
		b.Close()
	}
	e.binders = nil
	e.bindMu.Unlock()

	for _, unsub := range e.unsubscribe {
		unsub()
	}
	e.unsubscribe = nil
	e.logger.Info("Engine stopped")
}

func (e *Engine) cleanupLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(journalCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.journal.Cleanup(time.Now().Add(-e.journalTTL)); err != nil {
				e.logger.Warn("Journal cleanup failed", "error", err)
			}
		}
	}
}

// Buffer возвращает буфер потока
func (e *Engine) Buffer(stream string) (*buffer.Buffer, bool) {
	b, ok := e.buffers[stream]
	return b, ok
}

// Streams возвращает имена всех потоков по алфавиту
func (e *Engine) Streams() []string {
	names := make([]string, 0, len(e.buffers))
	for name := range e.buffers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) Trail() *trail.Tracker { return e.trail }

// Journal возвращает журнал или nil
func (e *Engine) Journal() storage.Storage { return e.journal }

// States возвращает состояние соединения каждого poller'а
func (e *Engine) States() []poller.ConnectionState {
	out := make([]poller.ConnectionState, 0, len(e.pollers))
	for _, p := range e.pollers {
		out = append(out, p.State())
	}
	return out
}

// Snapshot согласованный срез состояния движка
type Snapshot struct {
	Current *telemetry.Position         `json:"current,omitempty"`
	Path    []telemetry.Position        `json:"path"`
	Latest  map[string]telemetry.Sample `json:"latest"`
	Lengths map[string]int              `json:"lengths"`
	Pollers []poller.ConnectionState    `json:"pollers"`
}

// Snapshot читает состояние между применениями ответов: половина ответа
// в него не попадает
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Path:    e.trail.Path(),
		Latest:  make(map[string]telemetry.Sample),
		Lengths: make(map[string]int, len(e.buffers)),
		Pollers: e.States(),
	}
	if pos, ok := e.trail.Current(); ok {
		snap.Current = &pos
	}
	for name, b := range e.buffers {
		snap.Lengths[name] = b.Len()
		if s, ok := b.Latest(); ok {
			snap.Latest[name] = s
		}
	}
	return snap
}
