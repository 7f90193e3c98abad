package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harborlabs/stevedore"
	"github.com/harborlabs/stevedore/ssh"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run wires the frontend and returns the process exit code: 0 for a
// successful deployment, 1 for a failed one, 2 for configuration or
// usage trouble.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		if !errors.Is(err, ErrUsage) {
			fmt.Fprintln(stderr, err)
		}
		return exitConfig
	}
	if opts.version {
		fmt.Fprintln(stdout, "stevedore "+stevedore.VERSION)
		return exitOK
	}

	log := setupLogger(stderr, opts.logLevel, opts.logFormat)

	dep, conf, err := opts.deployment()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		return exitConfig
	}

	spec, err := stevedore.Load(opts.specPath)
	if err != nil {
		log.Error("loading deployment spec", "error", err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := stevedore.New(ssh.NewClient(conf),
		stevedore.WithLogger(log),
		stevedore.WithOutput(stdout),
	)
	if err := engine.Deploy(ctx, dep, spec); err != nil {
		var confErr *stevedore.ConfigError
		if errors.As(err, &confErr) {
			return exitConfig
		}
		return exitFailed
	}
	return exitOK
}

// setupLogger builds the run's logger from level and format names,
// unknown values falling back to info and text.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
