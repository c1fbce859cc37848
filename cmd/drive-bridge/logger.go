package main

import (
	"log/slog"
	"os"

	"github.com/kstaniek/go-drive-bridge/internal/logging"
)

// setupLogger installs the process logger. Level strings are validated by
// appConfig.validate, so a parse failure here falls back to info.
func setupLogger(format, level string) *slog.Logger {
	lvl, _ := logging.ParseLevel(level)
	l := logging.New(format, lvl, os.Stderr).With("app", "drive-bridge")
	logging.Set(l)
	return l
}
