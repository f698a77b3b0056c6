package telemetry

// Validate checks that every required field is present and that all fields
// carry finite values.
func Validate(s Sample, required ...string) error {
	if len(s.Fields) == 0 {
		return invalid("", "no fields")
	}
	for _, name := range required {
		if _, ok := s.Fields[name]; !ok {
			return invalid(name, "missing")
		}
	}
	for name, v := range s.Fields {
		if !isFinite(v) {
			return invalid(name, "not finite")
		}
	}
	return nil
}

// ValidatePosition extracts and range-checks the coordinates of a sample.
func ValidatePosition(s Sample) (Position, error) {
	pos, ok := s.Position()
	if !ok {
		if _, has := s.Fields[FieldLatitude]; !has {
			return Position{}, invalid(FieldLatitude, "missing")
		}
		return Position{}, invalid(FieldLongitude, "missing")
	}
	if !isFinite(pos.Latitude) || pos.Latitude < -90 || pos.Latitude > 90 {
		return Position{}, invalid(FieldLatitude, "out of range")
	}
	if !isFinite(pos.Longitude) || pos.Longitude < -180 || pos.Longitude > 180 {
		return Position{}, invalid(FieldLongitude, "out of range")
	}
	return pos, nil
}
