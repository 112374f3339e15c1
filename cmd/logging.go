package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"

	"github.com/parthshah1/carddraw/failure"
)

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "", "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// setupLogging installs a terminal log handler on stderr. Operator output
// goes to stdout.
func setupLogging(level string, verbose bool) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return failure.Config("configure logging", err)
	}
	if verbose && lvl > log.LevelDebug {
		lvl = log.LevelDebug
	}

	fd := os.Stderr.Fd()
	useColor := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, useColor)))
	return nil
}
