package logging

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger writing to the console and the log file. When
// the log file cannot be opened the logger falls back to the console alone.
func New(level zerolog.Level) zerolog.Logger {
	return newLogger(os.Stderr, LogPath(), level)
}

func newLogger(console io.Writer, logPath string, level zerolog.Level) zerolog.Logger {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}

	var fileErr error
	if fileErr = os.MkdirAll(filepath.Dir(logPath), 0755); fileErr == nil {
		var logFile *os.File
		logFile, fileErr = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if fileErr == nil {
			writers = append(writers, logFile)
		}
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("path", logPath).Msg("Logging to console only")
	}
	return logger
}

// LogPath returns platform-specific log file path
func LogPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Logs"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/state"
		}
	}

	return filepath.Join(base, "echoframe", "echoframe.log")
}
