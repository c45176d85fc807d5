package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"codeberg.org/mutker/ipmifanctl/internal/config"
	"codeberg.org/mutker/ipmifanctl/internal/control"
	"codeberg.org/mutker/ipmifanctl/internal/logger"
	"codeberg.org/mutker/ipmifanctl/internal/pid"
)

const reloadDebounce = 500 * time.Millisecond

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Str("path", cfg.Path).Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to acquire PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	runtime := control.New()
	if err := runtime.Start(cfg); err != nil {
		_ = pid.Remove()
		logger.Fatal().Err(err).Msg("failed to start fan control")
	}

	watcher := watchConfig(cfg.Path)

	var events chan fsnotify.Event
	var watchErrs chan error
	if watcher != nil {
		defer watcher.Close()
		events = watcher.Events
		watchErrs = watcher.Errors
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Config file writes are debounced: editors and atomic-rename saves
	// produce bursts of events for a single change.
	var debounce *time.Timer
	var pendingReload <-chan time.Time

	for {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				reload(runtime)
				continue
			}
			logger.Info().Str("signal", sig.String()).Msg("Received termination signal")
			runtime.Shutdown()
			logger.Info().Msg("Exiting...")
			return

		case event := <-events:
			if event.Name != cfg.Path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
				pendingReload = debounce.C
			} else {
				debounce.Reset(reloadDebounce)
			}

		case <-pendingReload:
			debounce = nil
			pendingReload = nil
			reload(runtime)

		case err := <-watchErrs:
			logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// reload re-reads the config file and applies it; an invalid file keeps
// the current configuration running.
func reload(runtime *control.Runtime) {
	logger.Info().Str("path", cfg.Path).Msg("Reloading configuration")

	newCfg, err := config.LoadFile(cfg.Path)
	if err != nil {
		logger.Error().Err(err).Msg("Reload failed, keeping current configuration")
		return
	}

	if err := logger.SetLogLevel(newCfg.LogLevel); err != nil {
		logger.Error().Err(err).Msg("Reload failed, keeping current configuration")
		return
	}

	if err := runtime.Reload(newCfg); err != nil {
		logger.Error().Err(err).Msg("Failed to apply new configuration")
		return
	}

	cfg = newCfg
}

// watchConfig watches the config file's directory so that atomic renames
// over the file are still observed. A watch failure only disables hot
// reloading; SIGHUP still works.
func watchConfig(path string) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn().Err(err).Msg("Config watching disabled")
		return nil
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Config watching disabled")
		watcher.Close()
		return nil
	}

	return watcher
}
