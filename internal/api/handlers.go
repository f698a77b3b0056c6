package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pv/telemetry-viewer-go/internal/engine"
	"github.com/pv/telemetry-viewer-go/internal/logger"
	"github.com/pv/telemetry-viewer-go/internal/poller"
	"github.com/pv/telemetry-viewer-go/internal/storage"
	"github.com/pv/telemetry-viewer-go/internal/view"
)

const defaultJournalCount = 100

type Handlers struct {
	engine   *engine.Engine
	deviceID string
}

func NewHandlers(e *engine.Engine, deviceID string) *Handlers {
	return &Handlers{
		engine:   e,
		deviceID: deviceID,
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// StateResponse текущее состояние с цветами панели
type StateResponse struct {
	engine.Snapshot
	DeviceID string            `json:"deviceId"`
	Colors   map[string]string `json:"colors,omitempty"`
}

// GetState возвращает текущее показание, трек и размеры буферов
// GET /api/state
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	resp := StateResponse{DeviceID: h.deviceID, Snapshot: snap}
	if latest, ok := snap.Latest[engine.StreamLocation]; ok {
		resp.Colors = PanelColors(latest.Fields)
	}
	h.writeJSON(w, resp)
}

// GetHistory возвращает содержимое буфера потока, от старых к новым.
// С параметром field отдаёт точки графика.
// GET /api/history/{stream}?field=temperature
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	stream := r.PathValue("stream")
	b, ok := h.engine.Buffer(stream)
	if !ok {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown stream %q", stream))
		return
	}

	samples := b.Snapshot()
	if field := r.URL.Query().Get("field"); field != "" {
		h.writeJSON(w, view.Points(samples, field))
		return
	}
	h.writeJSON(w, samples)
}

// PollerStatus состояние poller'а с человекочитаемым возрастом событий
type PollerStatus struct {
	poller.ConnectionState
	Connected   bool   `json:"connected"`
	LastSuccess string `json:"lastSuccess,omitempty"`
	LastFailure string `json:"lastFailure,omitempty"`
}

// GetStatus возвращает состояние связи каждого poller'а
// GET /api/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	states := h.engine.States()
	out := make([]PollerStatus, 0, len(states))
	for _, s := range states {
		ps := PollerStatus{ConnectionState: s, Connected: s.Connected()}
		if s.LastSuccessAt != nil {
			ps.LastSuccess = humanize.Time(*s.LastSuccessAt)
		}
		if s.LastErrorAt != nil {
			ps.LastFailure = humanize.Time(*s.LastErrorAt)
		}
		out = append(out, ps)
	}

	h.writeJSON(w, map[string]interface{}{
		"deviceId": h.deviceID,
		"pollers":  out,
	})
}

// GetJournal возвращает записи журнала потока
// GET /api/journal/{stream}?count=100
// GET /api/journal/{stream}?from=...&to=... (RFC3339)
func (h *Handlers) GetJournal(w http.ResponseWriter, r *http.Request) {
	journal := h.engine.Journal()
	if journal == nil {
		h.writeError(w, http.StatusNotFound, "journal is disabled")
		return
	}
	stream := r.PathValue("stream")
	if _, ok := h.engine.Buffer(stream); !ok {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown stream %q", stream))
		return
	}

	q := r.URL.Query()
	if q.Get("from") != "" || q.Get("to") != "" {
		from, to, err := parseRange(q.Get("from"), q.Get("to"))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		entries, err := journal.GetHistory(stream, from, to)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.writeJSON(w, nonNil(entries))
		return
	}

	count := defaultJournalCount
	if countStr := q.Get("count"); countStr != "" {
		if c, err := strconv.Atoi(countStr); err == nil && c > 0 {
			count = c
		}
	}

	entries, err := journal.GetLatest(stream, count)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, nonNil(entries))
}

// Export выгружает журнал всех потоков
// GET /api/export?format=csv|json
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	journal := h.engine.Journal()
	if journal == nil {
		h.writeError(w, http.StatusNotFound, "journal is disabled")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		h.writeError(w, http.StatusBadRequest, "format must be csv or json")
		return
	}

	var entries []storage.Entry
	to := time.Now()
	for _, stream := range h.engine.Streams() {
		part, err := journal.GetHistory(stream, time.Time{}, to)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, part...)
	}

	filename := fmt.Sprintf("telemetry-%s-%s.%s", h.deviceID, to.UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	var err error
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		err = storage.ExportCSV(w, entries)
	} else {
		w.Header().Set("Content-Type", "application/json")
		err = storage.ExportJSON(w, entries)
	}
	if err != nil {
		// заголовки уже отправлены, остаётся только лог
		logger.Warn("Export failed", "format", format, "error", err)
	}
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from := time.Now().Add(-time.Hour)
	to := time.Now()

	if fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return from, to, fmt.Errorf("invalid from: %w", err)
		}
		from = t
	}
	if toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return from, to, fmt.Errorf("invalid to: %w", err)
		}
		to = t
	}
	return from, to, nil
}

func nonNil(entries []storage.Entry) []storage.Entry {
	if entries == nil {
		return []storage.Entry{}
	}
	return entries
}
