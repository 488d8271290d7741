// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logx holds the shared zerolog logger.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the shared logger used throughout the project.
var Log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

func init() {
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Configure sets the global level and output format. format "json" writes
// structured lines to w; anything else uses the human-readable console writer.
// DEBUG=true in the environment always wins over level.
func Configure(level, format string, w io.Writer) {
	SetLevel(level)
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(format, "json") {
		Log = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	Log = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
}

// SetLevel changes the global level. Unknown levels fall back to info.
func SetLevel(level string) {
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
