package logging

import (
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config describes logger runtime configuration.
type Config struct {
	Level       string            `mapstructure:"level"`
	Format      string            `mapstructure:"format"`
	TimeFormat  string            `mapstructure:"time_format"`
	Caller      bool              `mapstructure:"caller"`
	PrettyPrint bool              `mapstructure:"pretty"`
	Output      string            `mapstructure:"output"`
	Fields      map[string]string `mapstructure:"fields"`

	// Writer overrides Output when set.
	Writer io.Writer `mapstructure:"-"`
}

// NewLogger constructs a zerolog logger from config. Static Fields are attached
// to every event in key order.
func NewLogger(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil && cfg.Level != "" {
		level = parsed
	}

	builder := zerolog.New(logWriter(cfg)).Level(level).With().Timestamp()
	if cfg.Caller {
		builder = builder.Caller()
	}

	keys := make([]string, 0, len(cfg.Fields))
	for k := range cfg.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		builder = builder.Str(k, cfg.Fields[k])
	}

	return builder.Logger()
}

// RedirectStdLog sends output from the standard library logger (used by some
// dependencies) through logger.
func RedirectStdLog(logger zerolog.Logger) {
	log.SetFlags(0)
	log.SetOutput(logger.With().Str("component", "stdlog").Logger())
}

func logWriter(cfg Config) io.Writer {
	out := cfg.Writer
	if out == nil {
		out = os.Stdout
		if strings.EqualFold(cfg.Output, "stderr") {
			out = os.Stderr
		}
	}
	if cfg.PrettyPrint || strings.EqualFold(cfg.Format, "console") {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: zerolog.TimeFieldFormat,
			NoColor:    out != os.Stdout && out != os.Stderr,
		}
	}
	return out
}
