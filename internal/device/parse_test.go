package device

import (
	"errors"
	"testing"
	"time"

	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

func TestParseLocation(t *testing.T) {
	body := []byte(`{"id": 7, "latitude": 10.0, "longitude": 20.0,
		"timestamp": "2024-05-01T10:00:00.250000",
		"battery_voltage": 3.82, "signal_strength": 71, "temperature": 24.5}`)

	samples, err := ParseLocation(body)
	if err != nil {
		t.Fatalf("ParseLocation failed: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}

	s := samples[0]
	if s.Kind != telemetry.KindLocation {
		t.Errorf("kind = %q", s.Kind)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 250_000_000, time.UTC)
	if !s.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", s.Timestamp, want)
	}
	checks := map[string]float64{
		telemetry.FieldLatitude:       10,
		telemetry.FieldLongitude:      20,
		telemetry.FieldBatteryVoltage: 3.82,
		telemetry.FieldSignalStrength: 71,
		telemetry.FieldTemperature:    24.5,
	}
	for name, v := range checks {
		if got, ok := s.Value(name); !ok || got != v {
			t.Errorf("%s = %v (present=%v), want %v", name, got, ok, v)
		}
	}
}

func TestParseLocationOptionalFieldsAbsent(t *testing.T) {
	samples, err := ParseLocation([]byte(`{"latitude": 1, "longitude": 2, "timestamp": "2024-05-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("ParseLocation failed: %v", err)
	}
	if len(samples[0].Fields) != 2 {
		t.Errorf("expected only coordinates, got %v", samples[0].Fields)
	}
	if _, ok := samples[0].Value(telemetry.FieldBatteryVoltage); ok {
		t.Error("absent battery_voltage must not be defaulted")
	}
}

func TestParseMalformed(t *testing.T) {
	parsers := map[string]func([]byte) ([]telemetry.Sample, error){
		"location":         ParseLocation,
		"location_history": ParseLocationHistory,
		"data":             ParseData,
		"sensor_history":   ParseSensorHistory,
		"gps_history":      ParseGPSHistory,
	}
	bodies := []string{``, `not json`, `{"latitude": "north", "sensor_data": 5}`, `[{"latitude": 1, "timestamp": "yesterday"}]`}

	for name, parse := range parsers {
		for _, body := range bodies {
			_, err := parse([]byte(body))
			if err == nil {
				t.Errorf("%s(%q): expected error", name, body)
				continue
			}
			if !errors.Is(err, telemetry.ErrMalformedResponse) {
				t.Errorf("%s(%q): expected ErrMalformedResponse, got %v", name, body, err)
			}
		}
	}
}

func TestParseLocationHistoryKeepsOrder(t *testing.T) {
	body := []byte(`[
		{"latitude": 3, "longitude": 0, "timestamp": "2024-05-01T10:00:03"},
		{"latitude": 1, "longitude": 0, "timestamp": "2024-05-01T10:00:01"},
		{"latitude": 2, "longitude": 0, "timestamp": "2024-05-01T10:00:02"}
	]`)

	samples, err := ParseLocationHistory(body)
	if err != nil {
		t.Fatalf("ParseLocationHistory failed: %v", err)
	}
	for i, want := range []float64{3, 1, 2} {
		if got := samples[i].Fields[telemetry.FieldLatitude]; got != want {
			t.Errorf("samples[%d].latitude = %v, want %v", i, got, want)
		}
	}
}

func TestParseData(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := nowFunc
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = orig }()

	tests := []struct {
		name      string
		body      string
		wantKinds []telemetry.Kind
	}{
		{
			name: "both blocks",
			body: `{"sensor_data": {"timestamp": "2024-05-01T10:00:00", "temperature": 21.5,
				"acceleration": {"x": 0.1, "y": 0.2, "z": 9.8}},
				"gps_data": {"latitude": 10, "longitude": 20, "altitude": 120}}`,
			wantKinds: []telemetry.Kind{telemetry.KindSensor, telemetry.KindPosition},
		},
		{
			name:      "sensor only",
			body:      `{"sensor_data": {"timestamp": "2024-05-01T10:00:00", "temperature": 21.5, "acceleration": {"x": 0, "y": 0, "z": 0}}, "gps_data": null}`,
			wantKinds: []telemetry.Kind{telemetry.KindSensor},
		},
		{
			name:      "gps only",
			body:      `{"gps_data": {"latitude": 10, "longitude": 20}}`,
			wantKinds: []telemetry.Kind{telemetry.KindPosition},
		},
		{
			name:      "neither",
			body:      `{"sensor_data": null, "gps_data": null}`,
			wantKinds: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, err := ParseData([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseData failed: %v", err)
			}
			if len(samples) != len(tt.wantKinds) {
				t.Fatalf("expected %d samples, got %d", len(tt.wantKinds), len(samples))
			}
			for i, k := range tt.wantKinds {
				if samples[i].Kind != k {
					t.Errorf("samples[%d].Kind = %q, want %q", i, samples[i].Kind, k)
				}
			}
		})
	}

	samples, _ := ParseData([]byte(`{"sensor_data": {"timestamp": "2024-05-01T10:00:00", "temperature": 21.5,
		"acceleration": {"x": 0.1, "y": 0.2, "z": 9.8}}, "gps_data": {"latitude": 10, "longitude": 20, "altitude": 120}}`))
	if v := samples[0].Fields[telemetry.FieldAccelZ]; v != 9.8 {
		t.Errorf("acceleration.z = %v", v)
	}
	if v := samples[1].Fields[telemetry.FieldAltitude]; v != 120 {
		t.Errorf("altitude = %v", v)
	}
	// У gps_data нет timestamp: используется время получения
	if !samples[1].Timestamp.Equal(fixed) {
		t.Errorf("gps timestamp = %v, want %v", samples[1].Timestamp, fixed)
	}
}

func TestParseDataBlocksAreIndependent(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind telemetry.Kind
	}{
		{
			name: "bad sensor timestamp keeps gps",
			body: `{"sensor_data": {"timestamp": "not-a-time", "temperature": 21.5},
				"gps_data": {"latitude": 10, "longitude": 20}}`,
			wantKind: telemetry.KindPosition,
		},
		{
			name: "bad gps block keeps sensor",
			body: `{"sensor_data": {"timestamp": "2024-05-01T10:00:00", "temperature": 21.5},
				"gps_data": {"latitude": "north", "longitude": 20}}`,
			wantKind: telemetry.KindSensor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, err := ParseData([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseData failed: %v", err)
			}
			if len(samples) != 1 || samples[0].Kind != tt.wantKind {
				t.Fatalf("expected one %s sample, got %+v", tt.wantKind, samples)
			}
		})
	}

	samples, _ := ParseData([]byte(`{"sensor_data": {"timestamp": "not-a-time"}, "gps_data": {"latitude": 10, "longitude": 20}}`))
	if len(samples) == 1 && samples[0].Fields[telemetry.FieldLatitude] != 10 {
		t.Errorf("unexpected gps fields %v", samples[0].Fields)
	}

	// Все присутствующие блоки испорчены: ответ целиком malformed
	_, err := ParseData([]byte(`{"sensor_data": {"timestamp": "not-a-time"}, "gps_data": {"latitude": "north"}}`))
	if !errors.Is(err, telemetry.ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestParseSensorAndGPSHistory(t *testing.T) {
	sensors, err := ParseSensorHistory([]byte(`[
		{"timestamp": "2024-05-01T10:00:02", "temperature": 22, "acceleration": {"x": 1, "y": 2, "z": 3}},
		{"timestamp": "2024-05-01T10:00:01", "temperature": 21, "acceleration": {"x": 1, "y": 2, "z": 3}}
	]`))
	if err != nil {
		t.Fatalf("ParseSensorHistory failed: %v", err)
	}
	if len(sensors) != 2 || sensors[0].Fields[telemetry.FieldTemperature] != 22 {
		t.Errorf("unexpected sensors: %+v", sensors)
	}

	fixes, err := ParseGPSHistory([]byte(`[{"timestamp": "2024-05-01T10:00:02", "latitude": 1, "longitude": 2, "altitude": null}]`))
	if err != nil {
		t.Fatalf("ParseGPSHistory failed: %v", err)
	}
	if len(fixes) != 1 || fixes[0].Kind != telemetry.KindPosition {
		t.Errorf("unexpected fixes: %+v", fixes)
	}
	if _, ok := fixes[0].Value(telemetry.FieldAltitude); ok {
		t.Error("null altitude must be absent")
	}
}
