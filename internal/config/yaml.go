package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Виды endpoint'ов телеметрии
const (
	EndpointLocation        = "location"
	EndpointLocationHistory = "location_history"
	EndpointData            = "data"
	EndpointSensorHistory   = "sensor_history"
	EndpointGPSHistory      = "gps_history"
)

var knownEndpoints = map[string]bool{
	EndpointLocation:        true,
	EndpointLocationHistory: true,
	EndpointData:            true,
	EndpointSensorHistory:   true,
	EndpointGPSHistory:      true,
}

// PollerConfig описание одного цикла опроса
type PollerConfig struct {
	Name     string        `yaml:"name"`
	Endpoint string        `yaml:"endpoint"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// PollersConfigFile представляет структуру YAML файла конфигурации
type PollersConfigFile struct {
	Pollers []PollerConfig `yaml:"pollers"`
}

// DefaultPollers текущее показание раз в секунду и история раз в 10 секунд
func DefaultPollers() []PollerConfig {
	return []PollerConfig{
		{Name: "location", Endpoint: EndpointLocation, Interval: time.Second},
		{Name: "history", Endpoint: EndpointLocationHistory, Interval: 10 * time.Second},
	}
}

// LoadPollersFromYAML загружает список poller'ов из YAML файла
func LoadPollersFromYAML(path string) ([]PollerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile PollersConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ValidatePollers(configFile.Pollers); err != nil {
		return nil, err
	}

	return configFile.Pollers, nil
}

// ValidatePollers проверяет endpoint, интервал и уникальность имён
func ValidatePollers(pollers []PollerConfig) error {
	seen := make(map[string]bool, len(pollers))
	for i, p := range pollers {
		if p.Name == "" {
			return fmt.Errorf("poller at index %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate poller name %q", p.Name)
		}
		seen[p.Name] = true

		if !knownEndpoints[p.Endpoint] {
			return fmt.Errorf("poller %q: unknown endpoint %q", p.Name, p.Endpoint)
		}
		if p.Interval <= 0 {
			return fmt.Errorf("poller %q: interval must be positive", p.Name)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("poller %q: timeout must not be negative", p.Name)
		}
	}
	return nil
}
