package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stack-queue-parking/internal/client"
	"stack-queue-parking/internal/config"
	"stack-queue-parking/internal/journal"
	"stack-queue-parking/internal/logging"
	"stack-queue-parking/internal/parking"
	"stack-queue-parking/internal/server"
	"stack-queue-parking/internal/stream"
	"stack-queue-parking/internal/telemetry"
)

var (
	mode       = flag.String("mode", "cli", "Mode to run: cli, server, or both")
	configPath = flag.String("config", "", "Path to YAML config file")
	addr       = flag.String("addr", "", "HTTP listen address, overrides server.addr")
	remote     = flag.String("remote", "", "Base URL of a running server; the cli operates on it instead of a local lot")
)

type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *telemetry.Provider
	lot       *parking.InstrumentedLot
	journal   *journal.Journal
	hub       *stream.Hub
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.close()

	switch *mode {
	case "cli":
		err = a.runCLI(ctx)
	case "server":
		err = a.runServer(ctx)
	case "both":
		err = a.runBoth(ctx)
	default:
		a.logger.Error("invalid mode, must be cli, server, or both", "mode", *mode)
		err = errors.New("invalid mode")
	}
	if err != nil {
		a.close()
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	tp, err := telemetry.New(ctx, telemetry.Options{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		return nil, err
	}

	logOpts := logging.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Telemetry.ServiceName,
	}
	if cfg.Telemetry.Enabled {
		logOpts.LoggerProvider = tp.LoggerProvider()
	}
	// The interactive shell owns stdout.
	logger := logging.New(os.Stderr, logOpts)
	slog.SetDefault(logger)

	lot, err := parking.NewInstrumentedLot(parking.NewLot(cfg.Parking.MaxSpots, cfg.Parking.MaxSpotsPerRow), tp)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tp, lot: lot}

	if !servesLocalLot(*mode, *remote) {
		logger.Info("cli drives a remote server; journal and stream stay off", "url", *remote)
		return a, nil
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			a.close()
			return nil, err
		}
		a.journal = j
		lot.Observe(journal.Observer(j, logger))
		logger.Info("journal opened", "path", cfg.Journal.Path)
	}

	if cfg.Stream.Enabled {
		a.hub = stream.New(lot, cfg.Stream.ResyncInterval, logger,
			stream.WithAllowedOrigins(cfg.Server.CORS.AllowedOrigins))
		lot.Observe(a.hub.OnChange)
		go a.hub.Run(ctx)
	}

	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, logger, a.reload); err != nil {
				logger.Error("config watch stopped", "err", err)
			}
		}()
	}

	return a, nil
}

// servesLocalLot reports whether anything in this process operates on the
// local lot. A cli pointed at a remote server does not.
func servesLocalLot(mode, remote string) bool {
	return mode != "cli" || remote == ""
}

// reload applies the parts of a new config that can change at runtime.
func (a *app) reload(cfg *config.Config) {
	if err := a.lot.Resize(cfg.Parking.MaxSpots); err != nil {
		a.logger.Warn("config: capacity not changed", "max_spots", cfg.Parking.MaxSpots, "err", err)
	} else {
		a.logger.Info("config: capacity changed", "max_spots", cfg.Parking.MaxSpots)
	}
	a.lot.SetSpotsPerRow(cfg.Parking.MaxSpotsPerRow)
	if a.hub != nil {
		a.hub.Publish(a.lot.Snapshot())
	}
}

func (a *app) newServer() *server.Server {
	opts := server.Options{
		Addr:           a.cfg.Server.Addr,
		ReadTimeout:    a.cfg.Server.ReadTimeout,
		WriteTimeout:   a.cfg.Server.WriteTimeout,
		IdleTimeout:    a.cfg.Server.IdleTimeout,
		AllowedOrigins: a.cfg.Server.CORS.AllowedOrigins,
		ServiceName:    a.cfg.Telemetry.ServiceName,
		Logger:         a.logger,
	}
	if a.journal != nil {
		opts.History = a.journal
	}
	if a.hub != nil {
		opts.Stream = a.hub
	}
	return server.NewServer(a.lot, opts)
}

func (a *app) newShell() *parking.Shell {
	var op parking.Operator = a.lot
	if *remote != "" {
		op = client.New(*remote)
		a.logger.Info("cli operating on remote server", "url", *remote)
	}
	return parking.NewShell(op, os.Stdin, os.Stdout, a.telemetry.Tracer())
}

func (a *app) runCLI(ctx context.Context) error {
	err := a.newShell().Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("shell error", "err", err)
		return err
	}
	return nil
}

func (a *app) runServer(ctx context.Context) error {
	srv := a.newServer()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	select {
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", "err", err)
			return err
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	}

	return a.shutdownServer(srv)
}

func (a *app) runBoth(ctx context.Context) error {
	srv := a.newServer()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	cliDone := make(chan error, 1)
	go func() {
		cliDone <- a.newShell().Run(ctx)
	}()

	select {
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", "err", err)
			return err
		}
		return nil
	case err := <-cliDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("shell error", "err", err)
		}
		a.logger.Info("cli exited")
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	}

	return a.shutdownServer(srv)
}

func (a *app) shutdownServer(srv *server.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("server shutdown error", "err", err)
		return err
	}
	return nil
}

// close releases the journal and flushes telemetry. It is safe to call twice.
func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("journal close error", "err", err)
		}
		a.journal = nil
	}

	if a.telemetry == nil {
		return
	}
	a.logger.Info("shutting down telemetry")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Error("telemetry shutdown error", "err", err)
	}
	a.telemetry = nil
}
