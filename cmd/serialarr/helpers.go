package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"serialarr/internal/acquisition"
	"serialarr/internal/compile"
	"serialarr/internal/config"
	"serialarr/internal/database"
	"serialarr/internal/downloader"
	"serialarr/internal/fetch"
	"serialarr/internal/library"
	"serialarr/internal/notify"
	"serialarr/internal/source"
	"serialarr/internal/source/kemono"
)

// app bundles the wired services shared by the CLI commands
type app struct {
	cfg       *config.Config
	db        *database.DB
	sources   *source.Registry
	service   *acquisition.Service
	processor *downloader.Processor
}

// newApp loads configuration and wires up the full service graph
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(cfg.LogLevel)

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client := fetch.New(fetch.Options{
		DelaySeconds:   cfg.FetchDelaySeconds,
		TimeoutSeconds: cfg.FetchTimeoutSeconds,
		UserAgent:      cfg.UserAgent,
	})

	sources := source.NewRegistry(providerBuilders(), client)
	if err := sources.Reload(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load providers: %w", err)
	}

	resolver := library.NewPathResolver(cfg.LibraryPath, library.Formats{
		WorkFolder:   cfg.WorkFolderFormat,
		EpisodeFile:  cfg.EpisodeFileFormat,
		VolumeFolder: cfg.VolumeFolderFormat,
		CompiledName: cfg.CompiledNameFormat,
	})

	dispatcher := notify.NewDispatcher(db, notify.EmailSettings{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})

	service := acquisition.NewService(db, sources, dispatcher, resolver, cfg.LegacyDownloadPath)
	builder := compile.NewBuilder(db, resolver)
	processor := downloader.NewProcessor(db, sources, resolver, builder, dispatcher)

	return &app{
		cfg:       cfg,
		db:        db,
		sources:   sources,
		service:   service,
		processor: processor,
	}, nil
}

// Close releases the application's resources
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

// providerBuilders is the static provider table
func providerBuilders() []source.Builder {
	return []source.Builder{
		kemono.Builder(),
	}
}

// setupLogging configures structured logging based on the log level
func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
