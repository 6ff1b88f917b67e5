// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/factchecker/labdesk/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup points the global logger at stdout and, when configured, a rotated
// log file. The returned closer flushes the file.
func Setup(cfg config.LoggingConfig) io.Closer {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "text") {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	out, closer := writers(cfg, console)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer
}

func writers(cfg config.LoggingConfig, console io.Writer) (io.Writer, io.Closer) {
	if cfg.File == "" {
		return console, nopCloser{}
	}

	// Rotation
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     30,
		Compress:   true,
	}
	// The file always gets JSON, whatever the console format.
	return zerolog.MultiLevelWriter(console, rotator), rotator
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
