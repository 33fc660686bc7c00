package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bongole/prmilter"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prmilterd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDaemonConfigExample(t *testing.T) {
	cfg, err := loadDaemonConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Network != "tcp" || cfg.Address != "127.0.0.1:8888" {
		t.Fatalf("unexpected listen address: %s %s", cfg.Network, cfg.Address)
	}
	if cfg.MetricsAddress != "127.0.0.1:9108" {
		t.Fatalf("unexpected metrics address: %q", cfg.MetricsAddress)
	}
	if cfg.LogLevel != zerolog.DebugLevel {
		t.Fatalf("unexpected log level: %v", cfg.LogLevel)
	}
	if cfg.Milter.MaxFrameSize != 262144 {
		t.Fatalf("unexpected max frame size: %d", cfg.Milter.MaxFrameSize)
	}
	if cfg.Milter.Actions != prmilter.OptChangeBody {
		t.Fatalf("unexpected actions: %#x", cfg.Milter.Actions)
	}
	if cfg.Milter.Protocol != prmilter.OptNoUnknown|prmilter.OptNoData {
		t.Fatalf("unexpected protocol: %#x", cfg.Milter.Protocol)
	}
	if !cfg.Milter.SkipUnhandled {
		t.Fatal("expected skip_unhandled")
	}
	if cfg.ReplacementBody != "hogehoge" {
		t.Fatalf("unexpected replacement body: %q", cfg.ReplacementBody)
	}
}

func TestLoadDaemonConfigKeepsDefaults(t *testing.T) {
	cfg, err := loadDaemonConfig(writeConfig(t, `address = "/run/prmilter.sock"
network = "unix"
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := prmilter.DefaultConfig()
	if cfg.Network != "unix" || cfg.Address != "/run/prmilter.sock" {
		t.Fatalf("unexpected listen address: %s %s", cfg.Network, cfg.Address)
	}
	if cfg.Milter.MaxFrameSize != def.MaxFrameSize {
		t.Fatalf("max frame size not defaulted: %d", cfg.Milter.MaxFrameSize)
	}
	if cfg.Milter.Actions != def.Actions || cfg.Milter.Protocol != def.Protocol {
		t.Fatalf("masks not defaulted: %#x %#x", cfg.Milter.Actions, cfg.Milter.Protocol)
	}
	if cfg.LogLevel != zerolog.InfoLevel {
		t.Fatalf("unexpected log level: %v", cfg.LogLevel)
	}
}

func TestLoadDaemonConfigRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"network": `network = "udp"`,
		"level":   `log_level = "loud"`,
		"unknown": `adress = "127.0.0.1:1"`,
		"empty":   `address = ""`,
		"syntax":  `address = `,
	} {
		if _, err := loadDaemonConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
