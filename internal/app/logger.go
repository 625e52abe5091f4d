package app

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the run's logger from cfg. Records go to outW and, when a
// log file is configured, are teed into a size-rotated file whose closer is
// returned. It does not set the global logger.
func newLogger(cfg *Config, outW io.Writer) (*slog.Logger, io.Closer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	var closer io.Closer
	if cfg.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			LocalTime:  true,
		}
		closer = file
		outW = io.MultiWriter(outW, file)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(outW, handlerOpts)), closer
	}
	return slog.New(slog.NewTextHandler(outW, handlerOpts)), closer
}
