package device

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pv/telemetry-viewer-go/internal/logger"
	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

// nowFunc подменяется в тестах
var nowFunc = time.Now

// Форматы timestamp: RFC3339 и isoformat() без зоны (считается UTC)
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseLocation разбирает единичное текущее показание
func ParseLocation(body []byte) ([]telemetry.Sample, error) {
	var r LocationReading
	if err := decode(body, &r); err != nil {
		return nil, err
	}
	s, err := r.sample()
	if err != nil {
		return nil, err
	}
	return []telemetry.Sample{s}, nil
}

// ParseLocationHistory разбирает снимок истории. Порядок элементов
// сохраняется как есть: направление сортировки сервера не предполагается.
func ParseLocationHistory(body []byte) ([]telemetry.Sample, error) {
	var rs []LocationReading
	if err := decode(body, &rs); err != nil {
		return nil, err
	}
	out := make([]telemetry.Sample, 0, len(rs))
	for i := range rs {
		s, err := rs[i].sample()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseData разбирает комбинированный ответ. sensor_data и gps_data
// обрабатываются независимо: отсутствие или ошибка одного блока не мешает
// другому. Ошибка возвращается, только если не разобрался ни один из
// присутствующих блоков.
func ParseData(body []byte) ([]telemetry.Sample, error) {
	var r CombinedReading
	if err := decode(body, &r); err != nil {
		return nil, err
	}

	var (
		out     []telemetry.Sample
		errs    []error
		present int
	)
	if isPresent(r.SensorData) {
		present++
		var sr SensorReading
		s, err := decodeBlock(r.SensorData, &sr, sr.sample)
		if err != nil {
			errs = append(errs, fmt.Errorf("sensor_data: %w", err))
		} else {
			out = append(out, s)
		}
	}
	if isPresent(r.GPSData) {
		present++
		var gr GPSReading
		s, err := decodeBlock(r.GPSData, &gr, gr.sample)
		if err != nil {
			errs = append(errs, fmt.Errorf("gps_data: %w", err))
		} else {
			out = append(out, s)
		}
	}

	if len(errs) > 0 && len(errs) == present {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		logger.Warn("Combined reading partially malformed", "error", err)
	}
	return out, nil
}

func isPresent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// decodeBlock разбирает один блок комбинированного ответа
func decodeBlock(raw json.RawMessage, v any, sample func() (telemetry.Sample, error)) (telemetry.Sample, error) {
	if err := decode(raw, v); err != nil {
		return telemetry.Sample{}, err
	}
	return sample()
}

// ParseSensorHistory разбирает /api/sensor-data/history
func ParseSensorHistory(body []byte) ([]telemetry.Sample, error) {
	var rs []SensorReading
	if err := decode(body, &rs); err != nil {
		return nil, err
	}
	out := make([]telemetry.Sample, 0, len(rs))
	for i := range rs {
		s, err := rs[i].sample()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseGPSHistory разбирает /api/gps-data/history
func ParseGPSHistory(body []byte) ([]telemetry.Sample, error) {
	var rs []GPSReading
	if err := decode(body, &rs); err != nil {
		return nil, err
	}
	out := make([]telemetry.Sample, 0, len(rs))
	for i := range rs {
		s, err := rs[i].sample()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func decode(body []byte, v any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", telemetry.ErrMalformedResponse)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", telemetry.ErrMalformedResponse, err)
	}
	return nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return nowFunc().UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad timestamp %q", telemetry.ErrMalformedResponse, raw)
}

// setField записывает только присутствующие значения: отсутствие поля
// не подменяется нулём
func setField(fields map[string]float64, name string, v *float64) {
	if v != nil {
		fields[name] = *v
	}
}

func (r *LocationReading) sample() (telemetry.Sample, error) {
	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return telemetry.Sample{}, err
	}
	fields := make(map[string]float64, 5)
	setField(fields, telemetry.FieldLatitude, r.Latitude)
	setField(fields, telemetry.FieldLongitude, r.Longitude)
	setField(fields, telemetry.FieldBatteryVoltage, r.BatteryVoltage)
	setField(fields, telemetry.FieldSignalStrength, r.SignalStrength)
	setField(fields, telemetry.FieldTemperature, r.Temperature)

	return telemetry.Sample{Kind: telemetry.KindLocation, Timestamp: ts, Fields: fields}, nil
}

func (r *SensorReading) sample() (telemetry.Sample, error) {
	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return telemetry.Sample{}, err
	}
	fields := make(map[string]float64, 4)
	setField(fields, telemetry.FieldTemperature, r.Temperature)
	if r.Acceleration != nil {
		setField(fields, telemetry.FieldAccelX, r.Acceleration.X)
		setField(fields, telemetry.FieldAccelY, r.Acceleration.Y)
		setField(fields, telemetry.FieldAccelZ, r.Acceleration.Z)
	}

	return telemetry.Sample{Kind: telemetry.KindSensor, Timestamp: ts, Fields: fields}, nil
}

func (r *GPSReading) sample() (telemetry.Sample, error) {
	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return telemetry.Sample{}, err
	}
	fields := make(map[string]float64, 3)
	setField(fields, telemetry.FieldLatitude, r.Latitude)
	setField(fields, telemetry.FieldLongitude, r.Longitude)
	setField(fields, telemetry.FieldAltitude, r.Altitude)

	return telemetry.Sample{Kind: telemetry.KindPosition, Timestamp: ts, Fields: fields}, nil
}
