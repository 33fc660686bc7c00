package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/bongole/prmilter"
	"github.com/bongole/prmilter/internal/logging"
)

type fileConfig struct {
	Network           string `toml:"network"`
	Address           string `toml:"address"`
	MetricsAddress    string `toml:"metrics_address"`
	LogLevel          string `toml:"log_level"`
	MaxFrameSize      uint32 `toml:"max_frame_size"`
	Actions           uint32 `toml:"actions"`
	Protocol          uint32 `toml:"protocol"`
	SkipUnhandled     bool   `toml:"skip_unhandled"`
	StrictNegotiation bool   `toml:"strict_negotiation"`
	SilentAbort       bool   `toml:"silent_abort"`
	ReplacementBody   string `toml:"replacement_body"`
}

type daemonConfig struct {
	Network         string
	Address         string
	MetricsAddress  string
	LogLevel        zerolog.Level
	ReplacementBody string
	Milter          prmilter.Config
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Network:  "tcp",
		Address:  "127.0.0.1:8888",
		LogLevel: zerolog.InfoLevel,
		Milter:   prmilter.DefaultConfig(),
	}
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load prmilterd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return daemonConfig{}, fmt.Errorf("load prmilterd config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("network") {
		switch n := strings.TrimSpace(raw.Network); n {
		case "tcp", "tcp4", "tcp6", "unix":
			cfg.Network = n
		default:
			return daemonConfig{}, fmt.Errorf("parse network: unsupported %q", n)
		}
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}

	if meta.IsDefined("metrics_address") {
		cfg.MetricsAddress = strings.TrimSpace(raw.MetricsAddress)
	}

	if meta.IsDefined("log_level") {
		lvl, ok := logging.ParseLevel(raw.LogLevel)
		if !ok {
			return daemonConfig{}, fmt.Errorf("parse log_level: unknown level %q", raw.LogLevel)
		}
		cfg.LogLevel = lvl
	}

	if meta.IsDefined("max_frame_size") {
		cfg.Milter.MaxFrameSize = raw.MaxFrameSize
	}

	if meta.IsDefined("actions") {
		cfg.Milter.Actions = prmilter.OptAction(raw.Actions)
	}

	if meta.IsDefined("protocol") {
		cfg.Milter.Protocol = prmilter.OptProtocol(raw.Protocol)
	}

	if meta.IsDefined("skip_unhandled") {
		cfg.Milter.SkipUnhandled = raw.SkipUnhandled
	}

	if meta.IsDefined("strict_negotiation") {
		cfg.Milter.StrictNegotiation = raw.StrictNegotiation
	}

	if meta.IsDefined("silent_abort") {
		cfg.Milter.SilentAbort = raw.SilentAbort
	}

	if meta.IsDefined("replacement_body") {
		cfg.ReplacementBody = raw.ReplacementBody
	}

	if cfg.Address == "" {
		return daemonConfig{}, fmt.Errorf("load prmilterd config: empty address")
	}
	return cfg, nil
}
