package bootstrap

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// WatchLogLevel watches configPath for writes and re-applies its log
// settings on every change, so an operator editing logLevel in
// config.toml takes effect without a restart. Runs until ctx is
// canceled; a watcher setup failure is logged and the call returns,
// since hot-reload is a convenience, not a requirement for the process
// to run.
func WatchLogLevel(ctx context.Context, configPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error().Err(err).Msg("bootstrap: failed to start config watcher")
		return
	}

	if err := watcher.Add(configPath); err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("bootstrap: failed to watch config file")
		_ = watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, err := New(configPath)
				if err != nil {
					log.Error().Err(err).Msg("bootstrap: config reload failed, keeping previous settings")
					continue
				}
				ConfigureLogging(reloaded)
				log.Info().Str("level", reloaded.LogLevel).Msg("bootstrap: log settings reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("bootstrap: config watcher error")
			}
		}
	}()
}
