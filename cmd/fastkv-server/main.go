// Command fastkv-server runs the fastkv TCP key/value server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"net/http"

	"fastkv/config"
	logpkg "fastkv/pkg/logger"
	"fastkv/server"
	"fastkv/stats"
)

var version = "0.1.0"

func main() {
	v := viper.New()
	root := &cobra.Command{
		Use:     "fastkv-server",
		Short:   "fastkv — single-node in-memory key/value server",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}
	config.BindFlags(root, v)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logpkg.Setup(logpkg.LevelFromName(cfg.LogLevel), cfg.LogSyslog)
	log.Infof("starting fastkv-server v%s on %s:%d", version, cfg.Host, cfg.Port)

	registry := prometheus.NewRegistry()
	st := stats.New(registry)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			log.Noticef("metrics listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	srv := server.New(cfg, st)
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	select {
	case sig := <-sigCh:
		log.Noticef("received %s, shutting down", sig)
		srv.Shutdown()
	case err := <-serveErr:
		if err != nil {
			log.Errorf("server loop exited: %v", err)
			return err
		}
	}

	log.Notice("fastkv-server stopped")
	return nil
}
