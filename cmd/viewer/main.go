package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pv/telemetry-viewer-go/internal/api"
	"github.com/pv/telemetry-viewer-go/internal/config"
	"github.com/pv/telemetry-viewer-go/internal/device"
	"github.com/pv/telemetry-viewer-go/internal/engine"
	"github.com/pv/telemetry-viewer-go/internal/logger"
	"github.com/pv/telemetry-viewer-go/internal/metrics"
	"github.com/pv/telemetry-viewer-go/internal/storage"
	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger.Init(cfg.LogFormat, logger.ParseLevel(cfg.LogLevel))

	// Create device client
	client := device.NewClient(cfg.BaseURL, cfg.DeviceID)

	// Create journal storage
	var store storage.Storage
	switch cfg.Storage {
	case config.StorageSQLite:
		store, err = storage.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			logger.Error("Failed to create SQLite storage", "error", err)
			os.Exit(1)
		}
		logger.Info("Using SQLite journal", "path", cfg.SQLitePath)
	default:
		store = storage.NewMemoryStorage()
		logger.Info("Using in-memory journal")
	}
	defer store.Close()

	collector := metrics.New()

	eng, err := engine.New(cfg, client,
		engine.WithLogger(logger.Log),
		engine.WithMetrics(collector),
		engine.WithJournal(store, cfg.HistoryTTL),
	)
	if err != nil {
		logger.Error("Failed to create engine", "error", err)
		os.Exit(1)
	}

	// Browser views: the hub is the sink for every binder
	hub := api.NewHub()
	if err := bindViews(eng, hub); err != nil {
		logger.Error("Failed to bind views", "error", err)
		os.Exit(1)
	}

	handlers := api.NewHandlers(eng, cfg.DeviceID)
	server := api.NewServer(handlers, hub, collector.Registry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		logger.Warn("Some views failed to initialize", "error", err)
	}

	// Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server,
	}

	go func() {
		logger.Info("Starting server", "addr", "http://localhost"+addr,
			"base_url", cfg.BaseURL,
			"device", cfg.DeviceID,
			"pollers", len(cfg.Pollers),
			"history_limit", cfg.HistoryLimit,
			"trail_cap", cfg.TrailCap)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	eng.Stop()
	hub.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}

// bindViews подключает карту, панель и графики датчиков к hub
func bindViews(eng *engine.Engine, hub *api.Hub) error {
	if _, err := eng.BindMap(hub); err != nil {
		return err
	}
	for _, stream := range []string{engine.StreamLocation, engine.StreamSensor} {
		if _, err := eng.BindPanel(stream, hub); err != nil {
			return err
		}
	}

	charts := []struct {
		stream string
		field  string
		series string
	}{
		{engine.StreamSensor, telemetry.FieldTemperature, "temperature"},
		{engine.StreamSensor, telemetry.FieldAccelX, "acceleration.x"},
		{engine.StreamSensor, telemetry.FieldAccelY, "acceleration.y"},
		{engine.StreamSensor, telemetry.FieldAccelZ, "acceleration.z"},
		{engine.StreamLocation, telemetry.FieldBatteryVoltage, "battery_voltage"},
		{engine.StreamLocation, telemetry.FieldSignalStrength, "signal_strength"},
		{engine.StreamLocationHistory, telemetry.FieldTemperature, "history.temperature"},
		{engine.StreamSensorHistory, telemetry.FieldTemperature, "sensor_history.temperature"},
	}
	for _, c := range charts {
		if _, err := eng.BindChart(c.stream, c.field, c.series, hub); err != nil {
			return err
		}
	}
	return nil
}
