package main

import (
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bongole/prmilter"
	"github.com/bongole/prmilter/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML configuration file")
	flag.Parse()

	cfg := defaultDaemonConfig()
	if *configPath != "" {
		var err error
		cfg, err = loadDaemonConfig(*configPath)
		if err != nil {
			log := logging.New("prmilterd", os.Stderr, logging.FromEnv(logging.DefaultConfig()))
			log.Fatal().Err(err).Msg("configuration")
		}
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	log := logging.New("prmilterd", os.Stderr, logging.FromEnv(logCfg))

	reg := prometheus.NewRegistry()
	cfg.Milter.Logger = log
	cfg.Milter.Metrics = prmilter.NewMetrics(reg)

	if cfg.MetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Info().Str("address", cfg.MetricsAddress).Msg("serving metrics")
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				log.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	if cfg.Network == "unix" {
		os.Remove(cfg.Address)
	}
	l, err := net.Listen(cfg.Network, cfg.Address)
	if err != nil {
		log.Fatal().Err(err).Msg("listen")
	}

	srv := &prmilter.Server{
		NewFilter: newBodyRewriter(log, cfg.ReplacementBody),
		Config:    &cfg.Milter,
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info().Stringer("signal", sig).Msg("shutting down")
		srv.Close()
	}()

	log.Info().Str("network", cfg.Network).Str("address", cfg.Address).Msg("milter listening")
	if err := srv.Serve(l); err != nil && !errors.Is(err, prmilter.ErrServerClosed) {
		log.Fatal().Err(err).Msg("serve")
	}
}
