package api

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

// Level оценка показания на панели
type Level string

const (
	LevelGood Level = "good"
	LevelWarn Level = "warn"
	LevelBad  Level = "bad"
)

var levelHue = map[Level]float64{
	LevelGood: 120,
	LevelWarn: 40,
	LevelBad:  0,
}

// threshold: значение выше good хорошее, выше warn допустимое
type threshold struct {
	good float64
	warn float64
}

var panelThresholds = map[string]threshold{
	telemetry.FieldBatteryVoltage: {good: 3.7, warn: 3.3},
	telemetry.FieldSignalStrength: {good: 70, warn: 40},
}

// FieldLevel оценивает поле панели. ok=false для полей без порогов.
func FieldLevel(field string, value float64) (level Level, ok bool) {
	th, ok := panelThresholds[field]
	if !ok {
		return "", false
	}
	switch {
	case value > th.good:
		return LevelGood, true
	case value > th.warn:
		return LevelWarn, true
	default:
		return LevelBad, true
	}
}

// LevelColor цвет уровня в виде #rrggbb
func LevelColor(level Level) string {
	return colorful.Hsv(levelHue[level], 1, 0.90).Hex()
}

// PanelColors раскрашивает поля записи, у которых есть пороги
func PanelColors(fields map[string]float64) map[string]string {
	var out map[string]string
	for name, v := range fields {
		level, ok := FieldLevel(name, v)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[name] = LevelColor(level)
	}
	return out
}
