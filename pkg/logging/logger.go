// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs per-page flow and session transitions.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs completed sessions and synchronizations.
	LevelInfo LogLevel = "info"

	// LevelWarn logs retries, schema mismatches and page-limit stops.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed requests and sessions only.
	LevelError LogLevel = "error"
)

// Component names attached to every log line as the "component" field.
const (
	ComponentClient   = "apipager-client"
	ComponentAuth     = "token-provider"
	ComponentFetcher  = "paginated-fetcher"
	ComponentProfile  = "profile-store"
	ComponentRecords  = "record-log"
	ComponentUserSync = "user-sync"
	ComponentCLI      = "apipager-cli"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool `yaml:"pretty"`

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. Component loggers created
// with NewLogger afterwards inherit its output and level.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// parseLevel converts LogLevel to zerolog.Level, defaulting to info.
func parseLevel(level LogLevel) zerolog.Level {
	l, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger derived from the global one with the given
// component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug:
//   - Session transitions (idle, authenticating, fetching_page, done, failed)
//   - Per-page progress (page, total_pages, records_in_page)
//   - Dummy token use, profile and log store operations
//
// Info:
//   - Completed pagination sessions (pages, records, duration)
//   - Completed user synchronizations
//
// Warn:
//   - Retry attempts after transport failures
//   - Responses without a records list
//   - Page-limit stops and partial results
//
// Error:
//   - Failed login exchanges
//   - Aborted pagination sessions
//
// Credentials and tokens are never logged; use has_token style booleans.
//
// Context Fields:
//   - stage: auth or fetch
//   - endpoint: endpoint relative to the base URI
//   - status_code: HTTP status code
//   - attempt: retry attempt number
//   - page, total_pages, records: pagination progress
//   - user_id: local user being synchronized
