package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Holder gives goroutine-safe access to the configuration and reloads it when
// the YAML file changes. Only the log level and the scheduler interval take
// effect without a restart; callers apply them from OnChange callbacks.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder loads the initial configuration from path (see LoadFile).
func NewHolder(path string) (*Holder, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if path != "" {
		if path, err = filepath.Abs(path); err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
	}

	return &Holder{
		config: cfg,
		path:   path,
		stopCh: make(chan struct{}),
	}, nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Path returns the watched file, empty when running from the environment only.
func (h *Holder) Path() string {
	return h.path
}

// Reload reads the configuration again. On error the old one is kept.
func (h *Holder) Reload() error {
	newCfg, err := LoadFile(h.path)
	if err != nil {
		log.Error().Err(err).Str("path", h.path).Msg("Config reload failed, keeping old config")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	callbacks := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	logChanges(oldCfg, newCfg)

	for _, fn := range callbacks {
		fn(newCfg)
	}

	log.Info().Str("path", h.path).Msg("Configuration reloaded")
	return nil
}

// OnChange registers a callback run after every successful reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFile reloads on writes to the config file. The directory is watched so
// editors that save by rename are picked up too.
func (h *Holder) WatchFile() error {
	if h.path == "" {
		return errors.New("no config file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = watcher

	go h.watchLoop()

	log.Info().Str("path", h.path).Msg("Watching config file for changes")
	return nil
}

// Stop ends the file watch.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	filename := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				log.Debug().Str("event", event.Op.String()).Str("file", event.Name).Msg("Config file changed")
				_ = h.Reload()
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func logChanges(old, new *Config) {
	if old.Logging.Level != new.Logging.Level {
		log.Info().Str("old", old.Logging.Level).Str("new", new.Logging.Level).Msg("Log level changed")
	}
	if old.Scheduler.Interval != new.Scheduler.Interval {
		log.Info().Dur("old", old.Scheduler.Interval).Dur("new", new.Scheduler.Interval).Msg("Scheduler interval changed")
	}
	if old.Database != new.Database || old.Server != new.Server {
		log.Warn().Msg("Server or database settings changed; restart to apply")
	}
}
