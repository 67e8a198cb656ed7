package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/petems/mixtray/internal/app"
	"github.com/petems/mixtray/internal/audio"
	"github.com/petems/mixtray/internal/config"
	"github.com/petems/mixtray/internal/core"
	"github.com/petems/mixtray/internal/hotkey"
	"github.com/petems/mixtray/internal/logging"
	"github.com/petems/mixtray/internal/permissions"
	"github.com/petems/mixtray/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	// macOS delivers silence on the input stream until the microphone is approved
	if err := permissions.EnsureMicrophone(); err != nil {
		log.Fatal().Err(err).Msg("Microphone permission not granted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host, err := audio.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer host.Close()

	mixer, err := core.New(host, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize mixer")
	}

	quit := make(chan struct{})
	var quitOnce sync.Once
	requestQuit := func() {
		quitOnce.Do(func() { close(quit) })
	}

	application := app.New(app.Config{
		Master: mixer.Master(),
		Config: cfg,
		Logger: log,
	})

	// Hotkeys only matter outside AlwaysOn, so a failure is not fatal
	hkManager, err := hotkey.New()
	switch {
	case errors.Is(err, hotkey.ErrUnsupported):
		log.Warn().Msg("Global hotkeys unsupported on this platform")
	case err != nil:
		log.Error().Err(err).Msg("Failed to initialize hotkeys")
	default:
		defer hkManager.Close()
		if err := hkManager.Register(cfg.PlatformHotkey(), application.OnHotkey); err != nil {
			log.Error().Err(err).Str("hotkey", cfg.PlatformHotkey()).Msg("Failed to register hotkey")
		}
	}

	trayUI := tray.New(application, mixer, cfg, Version, Commit, log, requestQuit)

	log.Info().Str("version", Version).Msg("MixTray starting...")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := mixer.Run(ctx, quit); err != nil {
			log.Error().Err(err).Msg("Mixer stopped")
		}
		// take the tray down with the mixer
		cancel()
	}()

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		requestQuit()
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Tray error")
	}
	requestQuit()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
	defer stop()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Mixer did not stop in time")
	}
}
