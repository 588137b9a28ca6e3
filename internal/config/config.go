package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stack-queue-parking/internal/parking"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAddr           = "127.0.0.1:5000"
	DefaultReadTimeout    = 15 * time.Second
	DefaultWriteTimeout   = 15 * time.Second
	DefaultIdleTimeout    = 60 * time.Second
	DefaultServiceName    = "stack-queue-parking"
	DefaultOTLPEndpoint   = "http://localhost:4318"
	DefaultExportInterval = 5 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Parking   ParkingConfig   `yaml:"parking"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Journal   JournalConfig   `yaml:"journal"`
	Stream    StreamConfig    `yaml:"stream"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	// Addr is the host:port the HTTP API listens on.
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors"`
}

// CORSConfig lists the origins allowed to call the API. Empty means any.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ParkingConfig struct {
	// MaxSpots is the capacity of each section.
	MaxSpots int `yaml:"max_spots"`

	// MaxSpotsPerRow only affects rendering.
	MaxSpotsPerRow int `yaml:"max_spots_per_row"`
}

type TelemetryConfig struct {
	// Enabled turns on OTLP export. Spans and metrics are produced either way.
	Enabled        bool          `yaml:"enabled"`
	ServiceName    string        `yaml:"service_name"`
	OTLPEndpoint   string        `yaml:"otlp_endpoint"`
	ExportInterval time.Duration `yaml:"export_interval"`
}

type JournalConfig struct {
	// Path is the SQLite file recording every operation. Empty disables the
	// journal.
	Path string `yaml:"path"`
}

type StreamConfig struct {
	Enabled bool `yaml:"enabled"`

	// ResyncInterval rebroadcasts the current state so clients that dropped
	// an update converge.
	ResyncInterval time.Duration `yaml:"resync_interval"`
}

type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// Load reads and parses the YAML config file at path. An empty path yields
// the defaults. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         DefaultAddr,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
		},
		Parking: ParkingConfig{
			MaxSpots:       parking.DefaultMaxSpots,
			MaxSpotsPerRow: parking.DefaultSpotsPerRow,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    DefaultServiceName,
			OTLPEndpoint:   DefaultOTLPEndpoint,
			ExportInterval: DefaultExportInterval,
		},
		Stream: StreamConfig{
			Enabled:        true,
			ResyncInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// applyEnv lets the standard OpenTelemetry variables win over the file.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("OTEL_SERVICE_NAME"); ok && v != "" {
		cfg.Telemetry.ServiceName = v
	}
	if v, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); ok && v != "" {
		cfg.Telemetry.OTLPEndpoint = strings.TrimRight(v, "/")
		cfg.Telemetry.Enabled = true
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Server.ReadTimeout <= 0 || cfg.Server.WriteTimeout <= 0 || cfg.Server.IdleTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if cfg.Parking.MaxSpots <= 0 {
		return fmt.Errorf("parking.max_spots must be positive")
	}
	if cfg.Parking.MaxSpotsPerRow <= 0 {
		return fmt.Errorf("parking.max_spots_per_row must be positive")
	}
	if cfg.Telemetry.ServiceName == "" {
		return fmt.Errorf("telemetry.service_name is required")
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is enabled")
	}
	if cfg.Stream.ResyncInterval <= 0 {
		return fmt.Errorf("stream.resync_interval must be positive")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return nil
}
