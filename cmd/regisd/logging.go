package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// logTargets holds the writers --stdout/--stderr redirect to, kept open
// for the lifetime of the process so setupLogger's handler can write to
// them directly.
type logTargets struct {
	stdout io.Writer
	stderr io.Writer
	close  func() error
}

// openLogTargets opens stdoutPath/stderrPath if given, falling back to
// the process's own os.Stdout/os.Stderr otherwise.
func openLogTargets(stdoutPath, stderrPath string) (logTargets, error) {
	var closers []io.Closer
	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	out := io.Writer(os.Stdout)
	if stdoutPath != "" {
		f, err := os.OpenFile(stdoutPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return logTargets{}, fmt.Errorf("open --stdout %s: %w", stdoutPath, err)
		}
		out = f
		closers = append(closers, f)
	}

	errOut := io.Writer(os.Stderr)
	if stderrPath != "" {
		f, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			_ = closeAll()
			return logTargets{}, fmt.Errorf("open --stderr %s: %w", stderrPath, err)
		}
		errOut = f
		closers = append(closers, f)
	}

	return logTargets{stdout: out, stderr: errOut, close: closeAll}, nil
}

// setupLogger builds the daemon's *slog.Logger: JSON in --daemon mode
// (structured logs are what a log-shipping agent expects from a
// backgrounded process), text otherwise, matching the teacher's
// daemon_event_loop.go style of one logger threaded through every
// constructor.
func setupLogger(targets logTargets, daemonMode, verbose, debug bool) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case debug:
		level = slog.LevelDebug
	case verbose:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if daemonMode {
		return slog.New(slog.NewJSONHandler(targets.stderr, opts))
	}
	return slog.New(slog.NewTextHandler(targets.stderr, opts))
}
