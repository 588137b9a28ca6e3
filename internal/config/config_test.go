package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, t.TempDir(), content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func loadStringErr(t *testing.T, content string) error {
	t.Helper()
	_, err := Load(writeConfig(t, t.TempDir(), content))
	return err
}

func TestLoad_Valid(t *testing.T) {
	cfg := loadFromString(t, `
server:
  addr: "0.0.0.0:8080"
  read_timeout: 5s
  cors:
    allowed_origins: ["http://localhost:3000"]
parking:
  max_spots: 12
  max_spots_per_row: 4
journal:
  path: /tmp/parking.db
stream:
  enabled: false
log:
  level: debug
  format: text
`)

	if cfg.Server.Addr != "0.0.0.0:8080" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("read_timeout: got %v", cfg.Server.ReadTimeout)
	}
	if len(cfg.Server.CORS.AllowedOrigins) != 1 || cfg.Server.CORS.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("allowed_origins: got %v", cfg.Server.CORS.AllowedOrigins)
	}
	if cfg.Parking.MaxSpots != 12 || cfg.Parking.MaxSpotsPerRow != 4 {
		t.Errorf("parking: got %+v", cfg.Parking)
	}
	if cfg.Journal.Path != "/tmp/parking.db" {
		t.Errorf("journal.path: got %q", cfg.Journal.Path)
	}
	if cfg.Stream.Enabled {
		t.Error("stream.enabled: expected false")
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log: got %+v", cfg.Log)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("default addr: got %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Parking.MaxSpots != 10 || cfg.Parking.MaxSpotsPerRow != 5 {
		t.Errorf("default parking: got %+v", cfg.Parking)
	}
	if cfg.Telemetry.Enabled {
		t.Error("telemetry should be disabled by default")
	}
	if cfg.Telemetry.ServiceName != DefaultServiceName {
		t.Errorf("default service_name: got %q", cfg.Telemetry.ServiceName)
	}
	if !cfg.Stream.Enabled {
		t.Error("stream should be enabled by default")
	}
	if cfg.Journal.Path != "" {
		t.Errorf("journal should be disabled by default, got %q", cfg.Journal.Path)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	cfg := loadFromString(t, "parking:\n  max_spots: 3\n")

	if cfg.Parking.MaxSpots != 3 {
		t.Errorf("max_spots: got %d", cfg.Parking.MaxSpots)
	}
	if cfg.Parking.MaxSpotsPerRow != 5 {
		t.Errorf("max_spots_per_row default lost: got %d", cfg.Parking.MaxSpotsPerRow)
	}
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("write_timeout default lost: got %v", cfg.Server.WriteTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "parking-from-env")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318/")

	cfg := loadFromString(t, `
telemetry:
  service_name: from-file
`)

	if cfg.Telemetry.ServiceName != "parking-from-env" {
		t.Errorf("service_name: got %q", cfg.Telemetry.ServiceName)
	}
	if cfg.Telemetry.OTLPEndpoint != "http://collector:4318" {
		t.Errorf("otlp_endpoint: got %q", cfg.Telemetry.OTLPEndpoint)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("setting the OTLP endpoint should enable export")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"zero max_spots", "parking:\n  max_spots: 0\n", "parking.max_spots"},
		{"negative per row", "parking:\n  max_spots_per_row: -1\n", "parking.max_spots_per_row"},
		{"empty addr", "server:\n  addr: \"\"\n", "server.addr"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
		{"bad yaml", "parking: [unclosed\n", "parse yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loadStringErr(t, tt.content)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatch_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "parking:\n  max_spots: 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		done <- Watch(ctx, path, logger, func(cfg *Config) { changes <- cfg })
	}()

	// Keep rewriting until the watcher is up and reports the change.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-changes:
			// A write can be observed before the new content lands.
			if cfg.Parking.MaxSpots != 20 {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch returned %v", err)
			}
			return
		case <-tick.C:
			writeConfig(t, dir, "parking:\n  max_spots: 20\n")
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestWatch_IgnoresInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "parking:\n  max_spots: 10\n")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	called := make(chan struct{}, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		time.Sleep(100 * time.Millisecond)
		tmp := path + ".tmp"
		if os.WriteFile(tmp, []byte("parking:\n  max_spots: -5\n"), 0o644) == nil {
			_ = os.Rename(tmp, path)
		}
	}()

	if err := Watch(ctx, path, logger, func(*Config) { called <- struct{}{} }); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	select {
	case <-called:
		t.Error("onChange should not be called for an invalid config")
	default:
	}
}
