// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pdiddy/markitdown-ui/pkg/types"
)

// commandRunner runs name with args; tests replace it.
type commandRunner func(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error

func runCommand(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// MarkitdownBinary converts files with a markitdown executable installed on
// the host.
type MarkitdownBinary struct {
	path string
	run  commandRunner
}

// NewMarkitdownBinary resolves bin on PATH (or uses it as-is when it is a
// path) and returns a converter that invokes it.
func NewMarkitdownBinary(bin string) (*MarkitdownBinary, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("markitdown binary %q not found: %w", bin, err)
	}
	return &MarkitdownBinary{path: path, run: runCommand}, nil
}

// Name returns "markitdown" followed by the resolved binary path.
func (b *MarkitdownBinary) Name() string {
	return "markitdown(" + b.path + ")"
}

// Convert runs markitdown on path and returns its stdout.
func (b *MarkitdownBinary) Convert(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrFileSystem, err)
	}

	var stdout, stderr bytes.Buffer
	if err := b.run(ctx, b.path, []string{path}, &stdout, &stderr); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: conversion of %s timed out", types.ErrConversion, path)
		}
		if msg := lastLine(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: markitdown failed on %s: %s", types.ErrConversion, path, msg)
		}
		return "", fmt.Errorf("%w: markitdown failed on %s: %v", types.ErrConversion, path, err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", fmt.Errorf("%w: markitdown produced empty output for %s", types.ErrConversion, path)
	}
	return out, nil
}

// lastLine returns the final non-empty line of s, where Python tracebacks
// carry the exception message.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
