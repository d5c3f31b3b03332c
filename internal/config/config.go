// Package config manages persistent user preferences for the spicy-kvm
// client. Settings are stored as JSON at os.UserConfigDir()/spicy-kvm/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all persistent user preferences.
type Config struct {
	// PeriodSize is the requested device period in samples, passed to
	// audioengine.Options.PeriodSize.
	PeriodSize int `json:"period_size"`
	// BufferLatencyMS is the extra configurable buffer latency, passed to
	// audioengine.Options.BufferLatencyMS.
	BufferLatencyMS int `json:"buffer_latency_ms"`

	// SinkName and SourceName optionally pin a specific playback sink /
	// capture source by name; empty means "use the default".
	SinkName   string `json:"sink_name"`
	SourceName string `json:"source_name"`

	// HotKey is the host-key combination (e.g. "RightCtrl+RightAlt") that
	// grabs input devices exclusively and forwards them to the guest.
	HotKey string `json:"hot_key"`

	// MonitorSwitchEnabled turns on the DDC-CI input-source switch when the
	// hot-key is pressed.
	MonitorSwitchEnabled bool `json:"monitor_switch_enabled"`
	// MonitorSwitchInput is the DDC-CI input-source code to select on the
	// physical monitor when switching to the guest (e.g. 0x0f for DP1).
	MonitorSwitchInput int `json:"monitor_switch_input"`

	// DiagnosticsAddr, if non-empty, is the address the local diagnostics
	// websocket server listens on (e.g. "127.0.0.1:9090"). Empty disables it.
	DiagnosticsAddr string `json:"diagnostics_addr"`

	// CaptureTapPath, if non-empty, enables the Opus-encoded diagnostic tap
	// of pulled playback frames, writing the encoded stream to this path.
	CaptureTapPath string `json:"capture_tap_path"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		PeriodSize:           256,
		BufferLatencyMS:      12,
		HotKey:               "RightCtrl+RightAlt",
		MonitorSwitchEnabled: false,
		MonitorSwitchInput:   0x0f,
		DiagnosticsAddr:      "127.0.0.1:9090",
	}
}

// Path returns the absolute path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "spicy-kvm", "config.json"), nil
}

// Load reads the config file and returns it. If the file is missing or
// unreadable, the default config is returned — never an error.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default()
	}
	return cfg
}

// Save writes cfg to disk, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
