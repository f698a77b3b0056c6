// Package device talks to the telemetry REST API of a single device and
// converts its payloads into telemetry samples.
package device

import "encoding/json"

// LocationReading ответ /api/location/{id} и элемент истории
type LocationReading struct {
	ID             *int64   `json:"id,omitempty"`
	DeviceID       string   `json:"device_id,omitempty"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Timestamp      string   `json:"timestamp"`
	BatteryVoltage *float64 `json:"battery_voltage,omitempty"`
	SignalStrength *float64 `json:"signal_strength,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
}

// Acceleration ускорение по трём осям
type Acceleration struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// SensorReading блок sensor_data
type SensorReading struct {
	Timestamp    string        `json:"timestamp"`
	Temperature  *float64      `json:"temperature"`
	Acceleration *Acceleration `json:"acceleration"`
	DeviceID     string        `json:"device_id,omitempty"`
}

// GPSReading блок gps_data
type GPSReading struct {
	Timestamp string   `json:"timestamp,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	DeviceID  string   `json:"device_id,omitempty"`
}

// CombinedReading ответ /api/data: любой из блоков может отсутствовать.
// Блоки разбираются по отдельности, поэтому хранятся как есть.
type CombinedReading struct {
	SensorData json.RawMessage `json:"sensor_data"`
	GPSData    json.RawMessage `json:"gps_data"`
}
