package bootstrap

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigureLogging sets the global zerolog logger from cfg: console
// output to stdout when LogPath is unset, otherwise a rotating file
// writer. Safe to call again after a config reload (§ hot-reload).
func ConfigureLogging(cfg *ProcessConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer
	if cfg.LogPath == "" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	} else {
		w = &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogMaxBackups,
		}
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}
