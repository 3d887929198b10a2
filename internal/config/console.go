package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Console holds the console client configuration.
type Console struct {
	ServerURL   string
	Profile     string // Profile slug or ID to attach to
	UserID      string
	LoginName   string
	DisplayName string
	DBPath      string

	PollInterval time.Duration

	MIDI MIDIConfig
	VU   VUConfig
}

// MIDIConfig controls the hardware output/input engine.
type MIDIConfig struct {
	OutputEnabled  bool
	OutputDevice   string
	InputDevice    string
	Channel        int // Global default MIDI channel (0-15)
	MomentaryDelay time.Duration
}

// VUConfig controls meter ballistics.
type VUConfig struct {
	DecayPerSecond     float64
	PeakHold           time.Duration
	PeakDecayPerSecond float64
	BroadcastInterval  time.Duration
}

// DefaultConsole returns the console defaults applied before any file
// overlay.
func DefaultConsole() Console {
	return Console{
		ServerURL:    "http://localhost:8455",
		DBPath:       "faderbank-console.db",
		PollInterval: 2 * time.Second,
		MIDI: MIDIConfig{
			OutputEnabled:  true,
			Channel:        0,
			MomentaryDelay: 150 * time.Millisecond,
		},
		VU: VUConfig{
			DecayPerSecond:     90,
			PeakHold:           time.Second,
			PeakDecayPerSecond: 200,
			BroadcastInterval:  250 * time.Millisecond,
		},
	}
}

// consoleFile maps the TOML keys of the console config file.
type consoleFile struct {
	ServerURL      string  `toml:"server_url"`
	Profile        string  `toml:"profile"`
	UserID         string  `toml:"user_id"`
	LoginName      string  `toml:"login_name"`
	DisplayName    string  `toml:"display_name"`
	DBPath         string  `toml:"db_path"`
	PollIntervalMS int     `toml:"poll_interval_ms"`
	MIDI           midiRaw `toml:"midi"`
	VU             vuRaw   `toml:"vu"`
}

type midiRaw struct {
	OutputEnabled    bool   `toml:"output_enabled"`
	OutputDevice     string `toml:"output_device"`
	InputDevice      string `toml:"input_device"`
	Channel          int    `toml:"channel"`
	MomentaryDelayMS int    `toml:"momentary_delay_ms"`
}

type vuRaw struct {
	DecayPerSecond      float64 `toml:"decay_per_second"`
	PeakHoldMS          int     `toml:"peak_hold_ms"`
	PeakDecayPerSecond  float64 `toml:"peak_decay_per_second"`
	BroadcastIntervalMS int     `toml:"broadcast_interval_ms"`
}

// LoadConsole reads a TOML config file and overlays it on the defaults.
// Only keys present in the file override the defaults.
func LoadConsole(path string) (Console, error) {
	cfg := DefaultConsole()

	var raw consoleFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Console{}, fmt.Errorf("load console config: %w", err)
	}

	if meta.IsDefined("server_url") {
		cfg.ServerURL = raw.ServerURL
	}
	if meta.IsDefined("profile") {
		cfg.Profile = raw.Profile
	}
	if meta.IsDefined("user_id") {
		cfg.UserID = raw.UserID
	}
	if meta.IsDefined("login_name") {
		cfg.LoginName = raw.LoginName
	}
	if meta.IsDefined("display_name") {
		cfg.DisplayName = raw.DisplayName
	}
	if meta.IsDefined("db_path") {
		cfg.DBPath = raw.DBPath
	}
	if meta.IsDefined("poll_interval_ms") {
		cfg.PollInterval = time.Duration(raw.PollIntervalMS) * time.Millisecond
	}
	if meta.IsDefined("midi", "output_enabled") {
		cfg.MIDI.OutputEnabled = raw.MIDI.OutputEnabled
	}
	if meta.IsDefined("midi", "output_device") {
		cfg.MIDI.OutputDevice = raw.MIDI.OutputDevice
	}
	if meta.IsDefined("midi", "input_device") {
		cfg.MIDI.InputDevice = raw.MIDI.InputDevice
	}
	if meta.IsDefined("midi", "channel") {
		cfg.MIDI.Channel = raw.MIDI.Channel
	}
	if meta.IsDefined("midi", "momentary_delay_ms") {
		cfg.MIDI.MomentaryDelay = time.Duration(raw.MIDI.MomentaryDelayMS) * time.Millisecond
	}
	if meta.IsDefined("vu", "decay_per_second") {
		cfg.VU.DecayPerSecond = raw.VU.DecayPerSecond
	}
	if meta.IsDefined("vu", "peak_hold_ms") {
		cfg.VU.PeakHold = time.Duration(raw.VU.PeakHoldMS) * time.Millisecond
	}
	if meta.IsDefined("vu", "peak_decay_per_second") {
		cfg.VU.PeakDecayPerSecond = raw.VU.PeakDecayPerSecond
	}
	if meta.IsDefined("vu", "broadcast_interval_ms") {
		cfg.VU.BroadcastInterval = time.Duration(raw.VU.BroadcastIntervalMS) * time.Millisecond
	}

	if cfg.UserID == "" {
		return Console{}, fmt.Errorf("load console config: user_id is required")
	}
	if cfg.Profile == "" {
		return Console{}, fmt.Errorf("load console config: profile is required")
	}
	if cfg.MIDI.Channel < 0 || cfg.MIDI.Channel > 15 {
		return Console{}, fmt.Errorf("load console config: midi channel %d not in [0, 15]", cfg.MIDI.Channel)
	}

	return cfg, nil
}
