package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageSQLite StorageType = "sqlite"
)

type Config struct {
	BaseURL      string
	DeviceID     string
	Port         int
	ConfigFile   string
	HistoryLimit int
	TrailCap     int
	Storage      StorageType
	SQLitePath   string
	HistoryTTL   time.Duration
	LogFormat    string
	LogLevel     string

	// Pollers из YAML либо значения по умолчанию
	Pollers []PollerConfig
}

// Parse разбирает флаги командной строки и YAML файл, если он указан
func Parse() (*Config, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs разбирает переданные аргументы
func ParseArgs(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("viewer", flag.ContinueOnError)

	fs.StringVar(&cfg.BaseURL, "base-url", "http://localhost:5000", "Telemetry REST API URL")
	fs.StringVar(&cfg.DeviceID, "device-id", "TTGO-01", "Tracked device identifier")
	fs.IntVar(&cfg.Port, "port", 8000, "Web server port")
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML file with poller definitions")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", 100, "History page size and buffer capacity")
	fs.IntVar(&cfg.TrailCap, "trail-cap", 0, "Maximum trail points (0 = unbounded)")

	var storageStr string
	fs.StringVar(&storageStr, "storage", "memory", "Journal storage: memory or sqlite")

	fs.StringVar(&cfg.SQLitePath, "sqlite-path", "./session.db", "SQLite journal path (reset on start)")
	fs.DurationVar(&cfg.HistoryTTL, "history-ttl", time.Hour, "Journal retention time")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Storage = StorageType(storageStr)
	if cfg.Storage != StorageMemory && cfg.Storage != StorageSQLite {
		cfg.Storage = StorageMemory
	}

	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("device-id must not be empty")
	}
	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("history-limit must be positive, got %d", cfg.HistoryLimit)
	}
	if cfg.TrailCap < 0 {
		cfg.TrailCap = 0
	}

	if cfg.ConfigFile != "" {
		pollers, err := LoadPollersFromYAML(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.Pollers = pollers
	} else {
		cfg.Pollers = DefaultPollers()
	}

	return cfg, nil
}
