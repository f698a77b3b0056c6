package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPollersFromYAML(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantCount   int
		wantErr     bool
		checkPoller func(t *testing.T, pollers []PollerConfig)
	}{
		{
			name: "valid config with all fields",
			content: `pollers:
  - name: location
    endpoint: location
    interval: 1s
    timeout: 800ms
  - name: history
    endpoint: location_history
    interval: 10s
`,
			wantCount: 2,
			wantErr:   false,
			checkPoller: func(t *testing.T, pollers []PollerConfig) {
				if pollers[0].Interval != time.Second {
					t.Errorf("expected interval 1s, got %v", pollers[0].Interval)
				}
				if pollers[0].Timeout != 800*time.Millisecond {
					t.Errorf("expected timeout 800ms, got %v", pollers[0].Timeout)
				}
				if pollers[1].Endpoint != EndpointLocationHistory {
					t.Errorf("expected endpoint location_history, got %q", pollers[1].Endpoint)
				}
				if pollers[1].Timeout != 0 {
					t.Errorf("expected unset timeout, got %v", pollers[1].Timeout)
				}
			},
		},
		{
			name: "combined dashboard",
			content: `pollers:
  - name: data
    endpoint: data
    interval: 1s
  - name: sensors
    endpoint: sensor_history
    interval: 30s
  - name: gps
    endpoint: gps_history
    interval: 30s
`,
			wantCount: 3,
		},
		{
			name: "empty pollers list",
			content: `pollers: []
`,
			wantCount: 0,
			wantErr:   false,
		},
		{
			name: "unknown endpoint",
			content: `pollers:
  - name: x
    endpoint: weather
    interval: 1s
`,
			wantErr: true,
		},
		{
			name: "missing interval",
			content: `pollers:
  - name: x
    endpoint: location
`,
			wantErr: true,
		},
		{
			name: "duplicate names",
			content: `pollers:
  - name: x
    endpoint: location
    interval: 1s
  - name: x
    endpoint: data
    interval: 1s
`,
			wantErr: true,
		},
		{
			name: "missing name",
			content: `pollers:
  - endpoint: location
    interval: 1s
`,
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			content: `pollers: [invalid`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Создаем временный файл
			tmpDir := t.TempDir()
			tmpFile := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(tmpFile, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write temp file: %v", err)
			}

			pollers, err := LoadPollersFromYAML(tmpFile)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(pollers) != tt.wantCount {
				t.Errorf("expected %d pollers, got %d", tt.wantCount, len(pollers))
			}

			if tt.checkPoller != nil {
				tt.checkPoller(t, pollers)
			}
		})
	}
}

func TestLoadPollersFromYAML_FileNotFound(t *testing.T) {
	_, err := LoadPollersFromYAML("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestParseArgsDefaults(t *testing.T) {
	cfg, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs failed: %v", err)
	}

	if cfg.BaseURL != "http://localhost:5000" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.HistoryLimit != 100 {
		t.Errorf("HistoryLimit = %d", cfg.HistoryLimit)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("Storage = %q", cfg.Storage)
	}
	if len(cfg.Pollers) != 2 || cfg.Pollers[1].Interval != 10*time.Second {
		t.Errorf("Pollers = %+v", cfg.Pollers)
	}
}

func TestParseArgs(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "pollers.yaml")
	os.WriteFile(tmpFile, []byte("pollers:\n  - name: data\n    endpoint: data\n    interval: 2s\n"), 0644)

	cfg, err := ParseArgs([]string{
		"-device-id", "ESP32_001",
		"-storage", "sqlite",
		"-trail-cap", "-5",
		"-history-limit", "10",
		"-config", tmpFile,
	})
	if err != nil {
		t.Fatalf("ParseArgs failed: %v", err)
	}
	if cfg.DeviceID != "ESP32_001" || cfg.Storage != StorageSQLite || cfg.HistoryLimit != 10 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.TrailCap != 0 {
		t.Errorf("negative trail cap must be normalized, got %d", cfg.TrailCap)
	}
	if len(cfg.Pollers) != 1 || cfg.Pollers[0].Endpoint != EndpointData {
		t.Errorf("Pollers = %+v", cfg.Pollers)
	}

	if _, err := ParseArgs([]string{"-history-limit", "0"}); err == nil {
		t.Error("expected error for zero history limit")
	}
	if _, err := ParseArgs([]string{"-storage", "redis"}); err != nil {
		t.Errorf("unknown storage should fall back to memory, got %v", err)
	}
}
