package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pv/telemetry-viewer-go/internal/config"
	"github.com/pv/telemetry-viewer-go/internal/device"
	"github.com/pv/telemetry-viewer-go/internal/engine"
	"github.com/pv/telemetry-viewer-go/internal/metrics"
	"github.com/pv/telemetry-viewer-go/internal/poller"
	"github.com/pv/telemetry-viewer-go/internal/storage"
	"github.com/pv/telemetry-viewer-go/internal/telemetry"
	"github.com/pv/telemetry-viewer-go/internal/view"
)

func setupTestEngine(t *testing.T, baseURL string, withJournal bool, pollers ...config.PollerConfig) *engine.Engine {
	t.Helper()
	cfg := &config.Config{DeviceID: "TTGO-01", HistoryLimit: 10, Pollers: pollers}

	var opts []engine.Option
	if withJournal {
		journal := storage.NewMemoryStorage()
		t.Cleanup(func() { journal.Close() })
		opts = append(opts, engine.WithJournal(journal, time.Hour))
	}

	e, err := engine.New(cfg, device.NewClient(baseURL, "TTGO-01"), opts...)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return e
}

func setupTestServer(t *testing.T, e *engine.Engine) http.Handler {
	t.Helper()
	return NewServer(NewHandlers(e, "TTGO-01"), NewHub(), nil)
}

func sensorSample(i int) telemetry.Sample {
	return telemetry.Sample{
		Kind:      telemetry.KindSensor,
		Timestamp: time.Date(2024, 5, 1, 12, 0, i, 0, time.UTC),
		Fields:    map[string]float64{telemetry.FieldTemperature: 20 + float64(i)},
	}
}

func appendSample(t *testing.T, e *engine.Engine, stream string, s telemetry.Sample) {
	t.Helper()
	b, ok := e.Buffer(stream)
	if !ok {
		t.Fatalf("no buffer %s", stream)
	}
	if err := b.Append(s); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetStateBeforeFirstFix(t *testing.T) {
	e := setupTestEngine(t, "http://127.0.0.1:1", false)
	w := get(t, setupTestServer(t, e), "/api/state")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if _, ok := response["current"]; ok {
		t.Error("current must be absent before the first fix")
	}
	if response["deviceId"] != "TTGO-01" {
		t.Errorf("expected deviceId TTGO-01, got %v", response["deviceId"])
	}
}

func TestGetStateColors(t *testing.T) {
	e := setupTestEngine(t, "http://127.0.0.1:1", false)
	appendSample(t, e, engine.StreamLocation, telemetry.Sample{
		Kind:      telemetry.KindLocation,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Fields: map[string]float64{
			telemetry.FieldLatitude:       55.75,
			telemetry.FieldLongitude:      37.61,
			telemetry.FieldBatteryVoltage: 3.9,
			telemetry.FieldSignalStrength: 50,
		},
	})

	w := get(t, setupTestServer(t, e), "/api/state")

	var response StateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Lengths[engine.StreamLocation] != 1 {
		t.Errorf("expected location length 1, got %v", response.Lengths)
	}
	if got := response.Colors[telemetry.FieldBatteryVoltage]; got != LevelColor(LevelGood) {
		t.Errorf("battery color = %s, want %s", got, LevelColor(LevelGood))
	}
	if got := response.Colors[telemetry.FieldSignalStrength]; got != LevelColor(LevelWarn) {
		t.Errorf("signal color = %s, want %s", got, LevelColor(LevelWarn))
	}
}

func TestGetHistory(t *testing.T) {
	e := setupTestEngine(t, "http://127.0.0.1:1", false)
	for i := 1; i <= 3; i++ {
		appendSample(t, e, engine.StreamSensor, sensorSample(i))
	}
	srv := setupTestServer(t, e)

	w := get(t, srv, "/api/history/sensor")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var samples []telemetry.Sample
	if err := json.Unmarshal(w.Body.Bytes(), &samples); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(samples) != 3 || samples[0].Fields[telemetry.FieldTemperature] != 21 {
		t.Errorf("unexpected history %v", samples)
	}

	w = get(t, srv, "/api/history/sensor?field=temperature")
	var points []view.Point
	if err := json.Unmarshal(w.Body.Bytes(), &points); err != nil {
		t.Fatalf("failed to parse points: %v", err)
	}
	if len(points) != 3 || points[2].Value != 23 {
		t.Errorf("unexpected points %v", points)
	}

	w = get(t, srv, "/api/history/weather")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestGetJournal(t *testing.T) {
	e := setupTestEngine(t, "http://127.0.0.1:1", true)
	for i := 1; i <= 3; i++ {
		appendSample(t, e, engine.StreamSensor, sensorSample(i))
	}
	srv := setupTestServer(t, e)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCount  int
	}{
		{"default count", "/api/journal/sensor", http.StatusOK, 3},
		{"limited count", "/api/journal/sensor?count=2", http.StatusOK, 2},
		{"invalid count falls back", "/api/journal/sensor?count=abc", http.StatusOK, 3},
		{"empty stream", "/api/journal/position", http.StatusOK, 0},
		{"range", "/api/journal/sensor?from=2000-01-01T00:00:00Z", http.StatusOK, 3},
		{"bad range", "/api/journal/sensor?from=yesterday", http.StatusBadRequest, 0},
		{"unknown stream", "/api/journal/weather", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, srv, tt.target)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var entries []storage.Entry
			if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if len(entries) != tt.wantCount {
				t.Errorf("expected %d entries, got %d", tt.wantCount, len(entries))
			}
		})
	}
}

func TestJournalDisabled(t *testing.T) {
	e := setupTestEngine(t, "http://127.0.0.1:1", false)
	srv := setupTestServer(t, e)

	for _, target := range []string{"/api/journal/sensor", "/api/export"} {
		if w := get(t, srv, target); w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", target, w.Code)
		}
	}
}

func TestExport(t *testing.T) {
	e := setupTestEngine(t, "http://127.0.0.1:1", true)
	appendSample(t, e, engine.StreamSensor, sensorSample(1))
	appendSample(t, e, engine.StreamSensor, sensorSample(2))
	srv := setupTestServer(t, e)

	w := get(t, srv, "/api/export?format=csv")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %s", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "telemetry-TTGO-01-") {
		t.Errorf("unexpected Content-Disposition %q", w.Header().Get("Content-Disposition"))
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "received_at,stream") {
		t.Errorf("unexpected csv:\n%s", w.Body.String())
	}

	w = get(t, srv, "/api/export")
	var exported struct {
		Count   int             `json:"count"`
		Entries []storage.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &exported); err != nil {
		t.Fatalf("failed to parse export: %v", err)
	}
	if exported.Count != 2 || exported.Entries[0].Stream != engine.StreamSensor {
		t.Errorf("unexpected export %+v", exported)
	}

	if w := get(t, srv, "/api/export?format=xml"); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestGetStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"latitude":10,"longitude":20,"timestamp":"2024-05-01T12:00:00"}`))
	}))
	defer upstream.Close()

	e := setupTestEngine(t, upstream.URL, false,
		config.PollerConfig{Name: "location", Endpoint: config.EndpointLocation, Interval: time.Hour})

	e.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for e.States()[0].Requests == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	e.Stop()

	w := get(t, setupTestServer(t, e), "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var response struct {
		DeviceID string         `json:"deviceId"`
		Pollers  []PollerStatus `json:"pollers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(response.Pollers) != 1 {
		t.Fatalf("expected 1 poller, got %d", len(response.Pollers))
	}
	ps := response.Pollers[0]
	if !ps.Connected || ps.LastSuccess == "" || ps.LastFailure != "" {
		t.Errorf("unexpected status %+v", ps)
	}
	if ps.Name != "location" || ps.Requests != 1 {
		t.Errorf("unexpected connection state %+v", ps.ConnectionState)
	}
}

func TestGetStatusBeforeFirstPoll(t *testing.T) {
	e := setupTestEngine(t, "http://127.0.0.1:1", false,
		config.PollerConfig{Name: "location", Endpoint: config.EndpointLocation, Interval: time.Hour})

	w := get(t, setupTestServer(t, e), "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, key := range []string{"0001-01-01", "lastSuccess", "lastFailure", "lastErrorAt"} {
		if strings.Contains(body, key) {
			t.Errorf("status before first poll must not contain %q: %s", key, body)
		}
	}
	if !strings.Contains(body, `"connected":false`) {
		t.Errorf("expected disconnected poller: %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := setupTestEngine(t, "http://127.0.0.1:1", false)
	collector := metrics.New()
	collector.ObservePoll("location", poller.ResultSuccess, 10*time.Millisecond)

	srv := NewServer(NewHandlers(e, "TTGO-01"), NewHub(), collector.Registry())
	w := get(t, srv, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `telemetry_polls_total{poller="location",result="success"} 1`) {
		t.Errorf("metrics output missing poll counter:\n%s", w.Body.String())
	}

	if w := get(t, setupTestServer(t, e), "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without registry, got %d", w.Code)
	}
}
