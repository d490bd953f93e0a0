package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// NewLogger creates a new hclog logger with standard settings
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}

	// A "json:" level prefix or PICEVAL_JSON_LOG=1 selects JSON output
	jsonFormat := os.Getenv("PICEVAL_JSON_LOG") == "1"
	if strings.HasPrefix(level, "json") {
		jsonFormat = true
		level = strings.TrimPrefix(strings.TrimPrefix(level, "json"), ":")
		if level == "" {
			level = "info"
		}
	}

	if !jsonFormat {
		output = NewPrefixWriter("🖼️  ", output)
	}

	opts := &hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z", // UTC ISO format
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	}

	return hclog.New(opts)
}

// GetLogLevel returns the configured log level from environment
func GetLogLevel() string {
	level := os.Getenv("PICEVAL_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	return level
}

// OrNull returns logger, or a discarding logger when it is nil.
func OrNull(logger hclog.Logger) hclog.Logger {
	if logger == nil {
		return hclog.NewNullLogger()
	}
	return logger
}
