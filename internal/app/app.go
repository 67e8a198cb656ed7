package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/petems/mixtray/internal/config"
	"github.com/rs/zerolog"
)

type Mode int

const (
	PushToTalk Mode = iota
	Toggle
	AlwaysOn
)

func (m Mode) String() string {
	switch m {
	case PushToTalk:
		return config.ModePushToTalk
	case Toggle:
		return config.ModeToggle
	default:
		return config.ModeAlwaysOn
	}
}

// ParseMode maps a config mode string to a Mode. Unknown values are
// AlwaysOn so that a bad config never silences the mixer.
func ParseMode(s string) Mode {
	switch s {
	case config.ModePushToTalk:
		return PushToTalk
	case config.ModeToggle:
		return Toggle
	default:
		return AlwaysOn
	}
}

// Fader is the part of the master levels the hotkey controls
type Fader interface {
	SetMuted(muted bool)
	Muted() bool
}

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetLive()
	SetMuted()
	SetError()
}

type Config struct {
	Master        Fader
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

type App struct {
	master Fader
	cfg    *config.Config
	log    zerolog.Logger
	status StatusUpdater

	mu   sync.Mutex
	live bool
}

// New applies the configured mode right away: AlwaysOn starts live, the
// hotkey modes start muted.
func New(cfg Config) *App {
	a := &App{
		master: cfg.Master,
		cfg:    cfg.Config,
		log:    cfg.Logger.With().Str("component", "app").Logger(),
		status: cfg.StatusUpdater,
	}

	a.mu.Lock()
	a.applyModeLocked()
	a.mu.Unlock()
	return a
}

// SetStatusUpdater attaches the tray once it exists
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
	a.reportLocked()
}

func (a *App) OnHotkey(pressed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.modeLocked() {
	case PushToTalk:
		if pressed {
			a.goLiveLocked()
		} else {
			a.muteLocked()
		}
	case Toggle:
		if !pressed {
			return
		}
		if a.live {
			a.muteLocked()
		} else {
			a.goLiveLocked()
		}
	case AlwaysOn:
		a.log.Debug().Bool("pressed", pressed).Msg("Hotkey ignored in AlwaysOn mode")
	}
}

func (a *App) modeLocked() Mode {
	return ParseMode(a.cfg.Mode)
}

func (a *App) applyModeLocked() {
	if a.modeLocked() == AlwaysOn {
		a.goLiveLocked()
	} else {
		a.muteLocked()
	}
}

func (a *App) goLiveLocked() {
	if a.live && !a.master.Muted() {
		return
	}
	a.log.Info().Msg("Master live")
	a.live = true
	a.master.SetMuted(false)
	a.reportLocked()
}

func (a *App) muteLocked() {
	if !a.live && a.master.Muted() {
		return
	}
	a.log.Info().Msg("Master muted")
	a.live = false
	a.master.SetMuted(true)
	a.reportLocked()
}

func (a *App) reportLocked() {
	if a.status == nil {
		return
	}
	if a.live {
		a.status.SetLive()
	} else {
		a.status.SetMuted()
	}
}

// ReportError flags a failure on the status indicator
func (a *App) ReportError(err error) {
	a.log.Error().Err(err).Msg("Mixer error")
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != nil {
		a.status.SetError()
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.live {
		a.muteLocked()
	}

	return nil
}

// Tray actions

func (a *App) SetMode(mode string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch mode {
	case config.ModePushToTalk, config.ModeToggle, config.ModeAlwaysOn:
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	a.cfg.Mode = mode
	a.applyModeLocked()
	return a.cfg.Save()
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modeLocked()
}

func (a *App) IsLive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}
