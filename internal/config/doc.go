// Package config loads and watches the service configuration file.
//
// Load(path) starts from defaults (listen on 127.0.0.1:5000, ten spots per
// section, five per row, stream on, journal off), overlays the YAML file,
// applies the OTEL_SERVICE_NAME and OTEL_EXPORTER_OTLP_ENDPOINT environment
// variables and validates the result.
//
// Watch(ctx, path, logger, onChange) uses fsnotify on the file's directory so
// that both in-place writes and atomic renames trigger a reload.
package config
