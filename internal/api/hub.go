package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pv/telemetry-viewer-go/internal/logger"
	"github.com/pv/telemetry-viewer-go/internal/telemetry"
	"github.com/pv/telemetry-viewer-go/internal/view"
)

// Типы событий WebSocket
const (
	EventSeries     = "series"
	EventMarker     = "marker"
	EventTrail      = "trail"
	EventTrailPoint = "trail_point"
	EventTrailTrim  = "trail_trim"
	EventPanel      = "panel"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
)

var errHubClosed = errors.New("hub closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event сообщение для браузера
type Event struct {
	Type      string    `json:"type"`
	Name      string    `json:"name,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// PanelData запись панели с цветами порогов
type PanelData struct {
	view.Record
	Colors map[string]string `json:"colors,omitempty"`
}

type wsClient struct {
	events chan Event
}

// Hub раздаёт обновления графиков, карты и панелей WebSocket клиентам.
// Hub сам является sink'ом для всех binder'ов и хранит последнее состояние,
// чтобы новый клиент сразу получил полную картину.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
	ready   bool

	series map[string][]view.Point
	panels map[string]PanelData
	marker *telemetry.Position
	trail  []telemetry.Position
}

func NewHub() *Hub {
	return &Hub{
		logger:  logger.For(nil, "hub"),
		clients: make(map[*wsClient]struct{}),
		series:  make(map[string][]view.Point),
		panels:  make(map[string]PanelData),
	}
}

// Init вызывается binder'ом перед первым обновлением
func (h *Hub) Init() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errHubClosed
	}
	h.ready = true
	return nil
}

// Ready true после первого успешного Init
func (h *Hub) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

func (h *Hub) SetSeries(name string, points []view.Point) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.series[name] = points
	h.broadcastLocked(Event{Type: EventSeries, Name: name, Data: points})
}

func (h *Hub) SetMarker(pos telemetry.Position) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.marker = &pos
	h.broadcastLocked(Event{Type: EventMarker, Data: pos})
}

func (h *Hub) AppendTrailPoint(pos telemetry.Position) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trail = append(h.trail, pos)
	h.broadcastLocked(Event{Type: EventTrailPoint, Data: pos})
}

// TrimTrail убирает n самых старых точек трека
func (h *Hub) TrimTrail(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > len(h.trail) {
		n = len(h.trail)
	}
	h.trail = append([]telemetry.Position(nil), h.trail[n:]...)
	h.broadcastLocked(Event{Type: EventTrailTrim, Data: n})
}

func (h *Hub) SetFields(rec view.Record) {
	data := PanelData{Record: rec, Colors: PanelColors(rec.Fields)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.panels[rec.Stream] = data
	h.broadcastLocked(Event{Type: EventPanel, Name: rec.Stream, Data: data})
}

// broadcastLocked не блокируется: медленный клиент теряет события
func (h *Hub) broadcastLocked(ev Event) {
	ev.Timestamp = time.Now()
	for c := range h.clients {
		select {
		case c.events <- ev:
		default:
			h.logger.Debug("client buffer full, event dropped", "type", ev.Type)
		}
	}
}

// replayLocked события, восстанавливающие текущее состояние
func (h *Hub) replayLocked() []Event {
	now := time.Now()
	var out []Event
	for name, points := range h.series {
		out = append(out, Event{Type: EventSeries, Name: name, Data: points, Timestamp: now})
	}
	if len(h.trail) > 0 {
		out = append(out, Event{Type: EventTrail, Data: append([]telemetry.Position(nil), h.trail...), Timestamp: now})
	}
	if h.marker != nil {
		out = append(out, Event{Type: EventMarker, Data: *h.marker, Timestamp: now})
	}
	for stream, data := range h.panels {
		out = append(out, Event{Type: EventPanel, Name: stream, Data: data, Timestamp: now})
	}
	return out
}

// AddClient регистрирует клиента; текущее состояние уже лежит в его очереди
func (h *Hub) AddClient() *wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := h.replayLocked()
	c := &wsClient{events: make(chan Event, clientBuffer+len(replay))}
	for _, ev := range replay {
		c.events <- ev
	}
	if h.closed {
		close(c.events)
		return c
	}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) RemoveClient(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.events)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close отключает всех клиентов; последующий Init вернёт ошибку
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.events)
	}
	h.clients = make(map[*wsClient]struct{})
}

// ServeWS GET /api/ws
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := h.AddClient()
	defer h.RemoveClient(client)
	h.logger.Debug("client connected", "remote", r.RemoteAddr)

	// Читаем только для обработки close/pong
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-client.events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("write failed", "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
