package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadFunc receives a freshly loaded and validated config
type ReloadFunc func(cfg *Config) error

// AdjustFunc rewrites a freshly loaded config before it is validated,
// e.g. to reapply command line overrides
type AdjustFunc func(cfg *Config)

// Watcher reloads the config file when it changes
type Watcher struct {
	watcher  *fsnotify.Watcher
	loader   *Loader
	path     string
	debounce time.Duration
	onReload ReloadFunc
	adjust   AdjustFunc
	logger   zerolog.Logger

	done     chan struct{}
	timer    *time.Timer
	timerMu  sync.Mutex
	stopOnce sync.Once
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Loader   *Loader
	Debounce time.Duration
	OnReload ReloadFunc
	Logger   zerolog.Logger

	// AfterLoad runs on every reloaded config ahead of Validate
	AfterLoad AdjustFunc
}

// NewWatcher creates a watcher for the loader's config file
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Loader == nil || cfg.Loader.GetConfigPath() == "" {
		return nil, fmt.Errorf("watcher requires a config file path")
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 250 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	path, err := filepath.Abs(cfg.Loader.GetConfigPath())
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		loader:   cfg.Loader,
		path:     path,
		debounce: cfg.Debounce,
		onReload: cfg.OnReload,
		adjust:   cfg.AfterLoad,
		logger:   cfg.Logger.With().Str("component", "config-watcher").Logger(),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the directory holding the config file, so editors that
// replace the file by rename are still seen
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.path).Msg("Config watcher started")
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

// schedule coalesces bursts of events into one reload
func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
			w.reload()
		}
	})
}

// reload keeps the previous config when the new one is unusable
func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload config, keeping previous")
		return
	}
	if w.adjust != nil {
		w.adjust(cfg)
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error().Err(err).Msg("Reloaded config is invalid, keeping previous")
		return
	}
	if w.onReload == nil {
		return
	}
	if err := w.onReload(cfg); err != nil {
		w.logger.Error().Err(err).Msg("Failed to apply reloaded config")
		return
	}
	w.logger.Info().Msg("Config reloaded")
}
