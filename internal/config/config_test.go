package config_test

import (
	"testing"

	"github.com/pgaskin/spicy-kvm/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.PeriodSize != 256 {
		t.Errorf("expected period size 256, got %d", cfg.PeriodSize)
	}
	if cfg.BufferLatencyMS != 12 {
		t.Errorf("expected buffer latency 12ms, got %d", cfg.BufferLatencyMS)
	}
	if cfg.HotKey == "" {
		t.Error("expected a default hot-key combination")
	}
	if cfg.MonitorSwitchEnabled {
		t.Error("expected monitor switching disabled by default")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := config.Config{
		PeriodSize:           480,
		BufferLatencyMS:      20,
		SinkName:             "alsa_output.pci-0000_00_1f.3.analog-stereo",
		SourceName:           "alsa_input.pci-0000_00_1f.3.analog-stereo",
		HotKey:               "ScrollLock",
		MonitorSwitchEnabled: true,
		MonitorSwitchInput:   0x11,
		DiagnosticsAddr:      "127.0.0.1:9191",
	}

	if err := config.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := config.Load()
	if loaded != cfg {
		t.Errorf("loaded config %+v does not match saved %+v", loaded, cfg)
	}
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	loaded := config.Load()
	if loaded != config.Default() {
		t.Errorf("expected default config for missing file, got %+v", loaded)
	}
}
