//go:build !js && !wasm

// Package tty provides utilities for TTY (terminal) detection.
// This package uses golang.org/x/term for TTY detection, which aligns with
// modern Go best practices and the spinner library's own terminal checks.
package tty

import (
	"os"

	"golang.org/x/term"
)

// IsStdoutTerminal returns true if stdout is connected to a terminal.
func IsStdoutTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsStderrTerminal returns true if stderr is connected to a terminal.
func IsStderrTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
