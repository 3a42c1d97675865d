package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"intellisurf/internal/config"
)

// Init 初始化全局日志
func Init(cfg *config.LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	timeFormat := time.RFC3339
	switch cfg.TimeFormat {
	case "Unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "UnixMs":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	case "RFC3339Nano":
		zerolog.TimeFieldFormat = time.RFC3339Nano
		timeFormat = time.RFC3339Nano
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	output, err := openOutput(cfg)
	if err != nil {
		return err
	}

	// Console 格式 (开发环境友好)
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: timeFormat,
		}
	}

	log.Logger = zerolog.New(output).With().
		Timestamp().
		Caller().
		Str("service", "intellisurf").
		Logger()

	return nil
}

func openOutput(cfg *config.LogConfig) (io.Writer, error) {
	switch cfg.Output {
	case "file":
		if cfg.FilePath == "" {
			return os.Stdout, nil
		}
		return os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	case "stderr":
		return os.Stderr, nil
	default:
		return os.Stdout, nil
	}
}

// Get 获取全局 logger
func Get() zerolog.Logger {
	return log.Logger
}
