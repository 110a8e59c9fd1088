// Package config loads fastkv-server's configuration from flags,
// environment variables, and an optional config file, layered the way
// viper does: flags > env > file > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for the fastkv server.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	MaxConns int           `mapstructure:"max_conns"`
	Timeout  time.Duration `mapstructure:"timeout"`

	LogLevel  string `mapstructure:"log_level"`
	LogSyslog bool   `mapstructure:"log_syslog"`

	MetricsAddr string `mapstructure:"metrics_addr"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            6380,
		MaxConns:        10000,
		Timeout:         30 * time.Second,
		LogLevel:        "info",
		LogSyslog:       false,
		MetricsAddr:     "",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Load reads configuration from environment variables, an optional
// config file, and command-line flags already bound to v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()

	v.SetConfigName("fastkv")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fastkv/")
	v.AddConfigPath("$HOME/.fastkv")

	v.SetEnvPrefix("FASTKV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("max_conns", cfg.MaxConns)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_syslog", cfg.LogSyslog)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("max_conns must be at least 1")
	}

	validLevels := []string{"critical", "error", "warning", "notice", "info", "debug"}
	ok := false
	for _, l := range validLevels {
		if c.LogLevel == l {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.LogLevel, strings.Join(validLevels, ", "))
	}

	return nil
}

// String returns a one-line summary for startup logging.
func (c *Config) String() string {
	return fmt.Sprintf("fastkv config: %s:%d, max_conns=%d, log_level=%s",
		c.Host, c.Port, c.MaxConns, c.LogLevel)
}

// BindFlags registers the server's persistent flags on cmd and binds
// them into v so flags take priority over env/file/defaults.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.StringP("host", "H", "0.0.0.0", "Host to bind to")
	flags.IntP("port", "p", 6380, "Port to listen on")
	flags.Int("max-conns", 10000, "Maximum number of simultaneous connections (validated, not enforced by the server)")
	flags.Duration("timeout", 30*time.Second, "Idle connection timeout (not applied by the server)")
	flags.String("log-level", "info", "Log level (critical, error, warning, notice, info, debug)")
	flags.Bool("log-syslog", false, "Log to syslog instead of stderr")
	flags.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint (empty disables it)")
	flags.Duration("shutdown-timeout", 5*time.Second, "Grace period for in-flight connections during shutdown (not applied: shutdown closes connections at once)")

	v.BindPFlag("host", flags.Lookup("host"))
	v.BindPFlag("port", flags.Lookup("port"))
	v.BindPFlag("max_conns", flags.Lookup("max-conns"))
	v.BindPFlag("timeout", flags.Lookup("timeout"))
	v.BindPFlag("log_level", flags.Lookup("log-level"))
	v.BindPFlag("log_syslog", flags.Lookup("log-syslog"))
	v.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
	v.BindPFlag("shutdown_timeout", flags.Lookup("shutdown-timeout"))
}
