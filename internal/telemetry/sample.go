// Package telemetry describes the readings produced by the tracked device.
package telemetry

import (
	"math"
	"time"
)

// Kind tags the stream a sample belongs to
type Kind string

const (
	// KindLocation is a full current reading: position plus battery, signal, temperature
	KindLocation Kind = "location"
	// KindPosition is a bare GPS fix
	KindPosition Kind = "position"
	// KindSensor is an environmental reading: temperature and acceleration
	KindSensor Kind = "sensor"
)

// Field names shared by the parsers, buffers and views.
const (
	FieldLatitude       = "latitude"
	FieldLongitude      = "longitude"
	FieldAltitude       = "altitude"
	FieldBatteryVoltage = "battery_voltage"
	FieldSignalStrength = "signal_strength"
	FieldTemperature    = "temperature"
	FieldAccelX         = "acceleration.x"
	FieldAccelY         = "acceleration.y"
	FieldAccelZ         = "acceleration.z"
)

// Sample is one tagged reading. Timestamps come from the device and are not
// assumed to be ordered.
type Sample struct {
	Kind      Kind               `json:"kind"`
	Timestamp time.Time          `json:"timestamp"`
	Fields    map[string]float64 `json:"fields"`
}

// Clone returns a deep copy so that callers can't reach shared field maps.
func (s Sample) Clone() Sample {
	out := Sample{Kind: s.Kind, Timestamp: s.Timestamp}
	if s.Fields != nil {
		out.Fields = make(map[string]float64, len(s.Fields))
		for k, v := range s.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// Value returns a field and whether it is present
func (s Sample) Value(name string) (float64, bool) {
	v, ok := s.Fields[name]
	return v, ok
}

// Position extracts latitude/longitude. ok is false when either is absent.
func (s Sample) Position() (Position, bool) {
	lat, okLat := s.Fields[FieldLatitude]
	lon, okLon := s.Fields[FieldLongitude]
	if !okLat || !okLon {
		return Position{}, false
	}
	return Position{Latitude: lat, Longitude: lon}, true
}

// Position is a geographic fix in decimal degrees
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Valid reports whether both coordinates are finite and within range.
func (p Position) Valid() bool {
	if !isFinite(p.Latitude) || !isFinite(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
