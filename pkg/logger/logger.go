// Package logger sets up the process-wide leveled logger. All packages
// log through the *logging.Logger returned by Setup; there is no
// separate per-package logger construction.
package logger

import (
	stdlog "log"
	"log/syslog"
	"os"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("fastkv")

var syslogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.6s} ▶ %{message}`,
)
var stderrFormat = logging.MustStringFormatter(
	`%{color}fastkv ▶ %{message}%{color:reset}`,
)

// Setup installs a backend (syslog when requested and reachable,
// stderr otherwise) and a level, returning the shared logger. The
// FASTKV_LOG_LEVEL environment variable overrides defaultLevel when set
// to a recognized name.
func Setup(defaultLevel logging.Level, trySyslog bool) *logging.Logger {
	var backend logging.Backend
	if trySyslog {
		b, err := logging.NewSyslogBackendPriority("fastkv", syslog.LOG_NOTICE)
		if err == nil {
			backend = b
			logging.SetFormatter(syslogFormat)
			if syslogBackend, ok := backend.(*logging.SyslogBackend); ok {
				stdlog.SetOutput(syslogBackend.Writer)
			}
		}
	}
	if backend == nil {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
		logging.SetFormatter(stderrFormat)
	}

	leveled := logging.AddModuleLevel(backend)
	switch os.Getenv("FASTKV_LOG_LEVEL") {
	case "CRITICAL":
		leveled.SetLevel(logging.CRITICAL, "fastkv")
	case "ERROR":
		leveled.SetLevel(logging.ERROR, "fastkv")
	case "WARNING":
		leveled.SetLevel(logging.WARNING, "fastkv")
	case "NOTICE":
		leveled.SetLevel(logging.NOTICE, "fastkv")
	case "INFO":
		leveled.SetLevel(logging.INFO, "fastkv")
	case "DEBUG":
		leveled.SetLevel(logging.DEBUG, "fastkv")
	default:
		leveled.SetLevel(defaultLevel, "fastkv")
	}

	logging.SetBackend(leveled)
	return log
}

// Log returns the shared logger. Safe to call before Setup; messages
// simply use logging's default backend until Setup runs.
func Log() *logging.Logger {
	return log
}

// LevelFromName maps a config-file/flag log level name to a
// logging.Level, defaulting to INFO for unrecognized names.
func LevelFromName(name string) logging.Level {
	switch name {
	case "critical":
		return logging.CRITICAL
	case "error":
		return logging.ERROR
	case "warning", "warn":
		return logging.WARNING
	case "notice":
		return logging.NOTICE
	case "debug":
		return logging.DEBUG
	default:
		return logging.INFO
	}
}
