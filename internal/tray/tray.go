package tray

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/petems/mixtray/internal/app"
	"github.com/petems/mixtray/internal/config"
	"github.com/petems/mixtray/internal/logging"
	"github.com/petems/mixtray/internal/mixer"
	"github.com/rs/zerolog"
)

// Mixer is what the menu drives
type Mixer interface {
	Master() *mixer.Levels
	Channels() []*mixer.Channel
	Summary(ctx context.Context) string
	ResetOutput(ctx context.Context) error
}

type UI struct {
	app     *app.App
	mixer   Mixer
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger
	quit    func()

	// Menu items
	mMode *systray.MenuItem
}

type preset struct {
	label string
	value float32
}

var volumePresets = []preset{
	{"0 dB", dbToGain(0)},
	{"-3 dB", dbToGain(-3)},
	{"-6 dB", dbToGain(-6)},
	{"-12 dB", dbToGain(-12)},
	{"-24 dB", dbToGain(-24)},
	{"Off", 0},
}

var panPresets = []preset{
	{"Left", -1},
	{"Center", 0},
	{"Right", 1},
}

// Status update methods for the app to call
func (u *UI) SetLive() {
	u.updateStatus("live")
}

func (u *UI) SetMuted() {
	u.updateStatus("muted")
}

func (u *UI) SetError() {
	u.updateStatus("error")
}

// New builds the tray. quit is called once when the user picks Quit.
func New(application *app.App, m Mixer, cfg *config.Config, version, commit string, log zerolog.Logger, quit func()) *UI {
	return &UI{
		app:     application,
		mixer:   m,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log.With().Str("component", "tray").Logger(),
		quit:    quit,
	}
}

// Run blocks on the systray event loop; it must be called from the main goroutine
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	// reports the current state right away
	u.app.SetStatusUpdater(u)
	systray.SetTooltip("Live audio mixer")

	u.mMode = systray.AddMenuItem(modeTitle(u.app.Mode()), "Cycle talk mode")
	systray.AddSeparator()

	mMaster := systray.AddMenuItem("Master", "Master output level")
	u.buildVolumeMenu(mMaster, u.mixer.Master(), "master")

	for i, ch := range u.mixer.Channels() {
		name := u.channelName(i, ch)
		mCh := systray.AddMenuItem(name, "Channel levels")
		u.buildVolumeMenu(mCh, ch.Levels(), name)
		u.buildPanMenu(mCh, ch.Levels(), name)
	}

	systray.AddSeparator()
	mCopy := systray.AddMenuItem("Copy Routing", "Copy the routing table to the clipboard")
	mReset := systray.AddMenuItem("Reset Output", "Reopen the output device")

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About MixTray")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mCopy, mReset, mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mCopy, mReset, mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mMode.ClickedCh:
			u.cycleMode()
		case <-mCopy.ClickedCh:
			u.copyRouting()
		case <-mReset.ClickedCh:
			u.resetOutput()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			u.log.Info().Msg("Quit selected")
			if u.quit != nil {
				u.quit()
			}
			systray.Quit()
			return
		}
	}
}

func (u *UI) channelName(i int, ch *mixer.Channel) string {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	snap, err := ch.Describe(ctx)
	if err != nil || snap.Name == "" {
		return fmt.Sprintf("Channel %d", i+1)
	}
	return snap.Name
}

func (u *UI) buildVolumeMenu(parent *systray.MenuItem, levels *mixer.Levels, name string) {
	mVolume := parent.AddSubMenuItem("Volume", "")
	u.buildPresetMenu(mVolume, volumePresets, presetIndex(volumePresets, levels.Volume()), func(p preset) {
		levels.SetVolume(p.value)
		u.log.Info().Str("target", name).Str("volume", p.label).Msg("Changed volume")
	})
}

func (u *UI) buildPanMenu(parent *systray.MenuItem, levels *mixer.Levels, name string) {
	mPan := parent.AddSubMenuItem("Pan", "")
	u.buildPresetMenu(mPan, panPresets, presetIndex(panPresets, levels.Panning()), func(p preset) {
		levels.SetPanning(p.value)
		u.log.Info().Str("target", name).Str("pan", p.label).Msg("Changed pan")
	})
}

// buildPresetMenu adds one radio-style item per preset
func (u *UI) buildPresetMenu(parent *systray.MenuItem, presets []preset, selected int, apply func(preset)) {
	items := make([]*systray.MenuItem, len(presets))
	for i, p := range presets {
		items[i] = parent.AddSubMenuItem(p.label, "")
		if i == selected {
			items[i].Check()
		}
	}

	for i, p := range presets {
		go func(i int, p preset) {
			for {
				<-items[i].ClickedCh
				// Uncheck all other items
				for j, itm := range items {
					if j != i {
						itm.Uncheck()
					}
				}
				items[i].Check()
				apply(p)
			}
		}(i, p)
	}
}

func (u *UI) cycleMode() {
	oldMode := u.app.Mode()
	mode := nextMode(oldMode)
	if err := u.app.SetMode(mode.String()); err != nil {
		u.log.Error().Err(err).Msg("Failed to save mode")
	}
	u.mMode.SetTitle(modeTitle(mode))
	u.log.Info().Stringer("from", oldMode).Stringer("to", mode).Msg("Changed mode")
}

func (u *UI) copyRouting() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := clipboard.WriteAll(u.mixer.Summary(ctx)); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy routing")
		return
	}
	u.log.Info().Msg("Routing copied to clipboard")
}

func (u *UI) resetOutput() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := u.mixer.ResetOutput(ctx); err != nil {
		u.app.ReportError(fmt.Errorf("reset output: %w", err))
	}
}

func (u *UI) openLogs() {
	name, args := openerFor(runtime.GOOS)
	if err := exec.Command(name, append(args, logging.Path())...).Start(); err != nil {
		u.log.Error().Err(err).Str("path", logging.Path()).Msg("Failed to open logs")
	}
}

func (u *UI) showAbout() {
	u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("MixTray, a live audio mixer")
	systray.SetTooltip(fmt.Sprintf("MixTray %s (%s)", u.version, u.commit))
}

func (u *UI) onExit() {
	// Cleanup
}

// updateStatus sets the tray title with a fader emoji and status indicator
func (u *UI) updateStatus(status string) {
	emoji := emojiForStatus(status)
	systray.SetTitle(fmt.Sprintf("🎚 %s", emoji))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "live":
		return "🔴" // Red - on air
	case "muted":
		return "🟢" // Green - muted and safe
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢"
	}
}

func modeTitle(m app.Mode) string {
	switch m {
	case app.PushToTalk:
		return "Mode: Push-to-Talk"
	case app.Toggle:
		return "Mode: Toggle"
	default:
		return "Mode: Always On"
	}
}

func nextMode(m app.Mode) app.Mode {
	switch m {
	case app.PushToTalk:
		return app.Toggle
	case app.Toggle:
		return app.AlwaysOn
	default:
		return app.PushToTalk
	}
}

func dbToGain(db float64) float32 {
	return float32(math.Pow(10, db/20))
}

// presetIndex returns the preset closest to v within 0.01, or -1
func presetIndex(presets []preset, v float32) int {
	for i, p := range presets {
		if math.Abs(float64(p.value-v)) < 0.01 {
			return i
		}
	}
	return -1
}

func openerFor(goos string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", nil
	case "windows":
		return "cmd", []string{"/c", "start", ""}
	default:
		return "xdg-open", nil
	}
}
