// Package logging configures the process-wide zerolog logger used by
// the CLI and the extraction pipeline.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes console logging and installs the returned logger
// as the zerolog global, so package-level advisory warnings from the
// core land in the same stream. Verbose enables debug-level output.
func Setup(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).
		With().
		Timestamp().
		Str("app", "arbortrace").
		Logger()

	log.Logger = logger
	return logger
}
