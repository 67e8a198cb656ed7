package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/petems/mixtray/internal/routing"
	"gopkg.in/yaml.v3"
)

const (
	ModePushToTalk = "PushToTalk"
	ModeToggle     = "Toggle"
	ModeAlwaysOn   = "AlwaysOn"
)

type Config struct {
	LogLevel     string          `yaml:"log_level" json:"log_level"`
	Hotkey       string          `yaml:"hotkey" json:"hotkey"`
	HotkeyDarwin string          `yaml:"hotkey_darwin" json:"hotkey_darwin"`
	Mode         string          `yaml:"mode" json:"mode"` // "PushToTalk", "Toggle" or "AlwaysOn"
	Audio        AudioConfig     `yaml:"audio" json:"audio"`
	Master       MasterConfig    `yaml:"master" json:"master"`
	Channels     []ChannelConfig `yaml:"channels" json:"channels"`

	path string
}

type AudioConfig struct {
	InputDevice     string `yaml:"input_device" json:"input_device"`   // empty selects the default device
	OutputDevice    string `yaml:"output_device" json:"output_device"` // empty selects the default device
	SampleRate      int    `yaml:"sample_rate" json:"sample_rate"`
	FramesPerBuffer int    `yaml:"frames_per_buffer" json:"frames_per_buffer"`
	ChannelMailbox  int    `yaml:"channel_mailbox" json:"channel_mailbox"`
	ManagerMailbox  int    `yaml:"manager_mailbox" json:"manager_mailbox"`
	BusMailbox      int    `yaml:"bus_mailbox" json:"bus_mailbox"`
	SendTimeoutMS   int    `yaml:"send_timeout_ms" json:"send_timeout_ms"`
}

type MasterConfig struct {
	Volume float32 `yaml:"volume" json:"volume"`
}

type ChannelConfig struct {
	Name   string     `yaml:"name" json:"name"`
	Input  routing.IO `yaml:"input" json:"input"`
	Output routing.IO `yaml:"output" json:"output"`
	Volume float32    `yaml:"volume" json:"volume"`
	Pan    float32    `yaml:"pan" json:"pan"`
}

// channelDefaults fills what a file entry may leave out
func channelDefaults() ChannelConfig {
	return ChannelConfig{Volume: 1.0}
}

func (c *ChannelConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain ChannelConfig
	p := plain(channelDefaults())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = ChannelConfig(p)
	return nil
}

func (c *ChannelConfig) UnmarshalJSON(data []byte) error {
	type plain ChannelConfig
	p := plain(channelDefaults())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = ChannelConfig(p)
	return nil
}

// SendTimeout is the bounded wait for a full mailbox
func (a AudioConfig) SendTimeout() time.Duration {
	return time.Duration(a.SendTimeoutMS) * time.Millisecond
}

// Default returns the built-in configuration: one channel reading the first
// input and feeding the first two outputs.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		Hotkey:       "Alt+Space",
		HotkeyDarwin: "Ctrl+Space",
		Mode:         ModeAlwaysOn,
		Audio: AudioConfig{
			SampleRate:      48000,
			FramesPerBuffer: 16,
			ChannelMailbox:  16,
			ManagerMailbox:  128,
			BusMailbox:      1024,
			SendTimeoutMS:   10,
		},
		Master: MasterConfig{Volume: 1.0},
		Channels: []ChannelConfig{
			{
				Name:   "Channel 1",
				Input:  routing.MonoIO(0),
				Output: routing.StereoIO(0, 1),
				Volume: 1.0,
				Pan:    0.0,
			},
		},
	}
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	path := configPath("config.yaml")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		legacy := configPath("config.json")
		if _, err := os.Stat(legacy); err == nil {
			cfg, err := LoadFrom(legacy)
			if err != nil {
				return nil, err
			}
			cfg.path = path
			return cfg, nil
		}
	}
	return LoadFrom(path)
}

// LoadFrom reads path (YAML, or JSON for a .json file) over the defaults.
// A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	// channels from the file replace the default channel list
	cfg.Channels = nil
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = Default().Channels
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the mixer cannot run with
func (c *Config) Validate() error {
	switch c.Mode {
	case ModePushToTalk, ModeToggle, ModeAlwaysOn:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("frames_per_buffer must be positive, got %d", c.Audio.FramesPerBuffer)
	}
	for i, ch := range c.Channels {
		if ch.Pan < -1 || ch.Pan > 1 {
			return fmt.Errorf("channel %d: pan %v outside [-1, 1]", i, ch.Pan)
		}
	}
	return nil
}

// Save writes the config to disk as YAML
func (c *Config) Save() error {
	path := c.path
	if path == "" || filepath.Ext(path) == ".json" {
		path = configPath("config.yaml")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns where Save writes
func (c *Config) Path() string {
	if c.path == "" {
		return configPath("config.yaml")
	}
	return c.path
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (c *Config) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && c.HotkeyDarwin != "" {
		return c.HotkeyDarwin
	}
	return c.Hotkey
}

// configPath returns the platform-specific config file path
func configPath(name string) string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "mixtray", name)
}
