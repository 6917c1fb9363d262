// Package settings holds the profiler's own settings file: where configs and
// outputs live and which config to start with each host session.
package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Settings is the decoded settings file.
type Settings struct {
	// StartupConfig is run on every new or loaded host session when set.
	StartupConfig string `yaml:"startupConfig"`
	ConfigDir     string `yaml:"configDir"`
	OutputDir     string `yaml:"outputDir"`
	LogLevel      string `yaml:"logLevel"`
	LiveQueueSize int    `yaml:"liveQueueSize"`
}

// Default returns the settings used when the file is absent or broken.
func Default() Settings {
	return Settings{
		ConfigDir:     "configs",
		OutputDir:     "output",
		LogLevel:      "info",
		LiveQueueSize: 4096,
	}
}

// Level returns the parsed log level, info if unset.
func (s Settings) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Parse decodes a settings document on top of the defaults.
func Parse(data []byte) (Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("cannot parse settings: %w", err)
	}
	if s.LogLevel != "" {
		if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
			return Default(), fmt.Errorf("cannot parse settings: %w", err)
		}
	}
	if s.LiveQueueSize < 0 {
		return Default(), fmt.Errorf("cannot parse settings: negative liveQueueSize %d", s.LiveQueueSize)
	}
	return s, nil
}

// Store keeps the current settings and reloads them on request.
type Store struct {
	fs     afero.Fs
	path   string
	logger *logrus.Logger

	mu  sync.RWMutex
	cur Settings
}

// NewStore creates a store holding the defaults until Load is called.
func NewStore(fs afero.Fs, path string, logger *logrus.Logger) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Store{fs: fs, path: path, logger: logger, cur: Default()}
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Get returns the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Load reads the settings file. On failure the defaults are used and the
// error is returned for reporting.
func (s *Store) Load() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		err = fmt.Errorf("cannot read settings %q: %w", s.path, err)
		s.set(Default())
		return err
	}
	parsed, err := Parse(data)
	s.set(parsed)
	return err
}

func (s *Store) set(v Settings) {
	s.mu.Lock()
	s.cur = v
	s.mu.Unlock()
}

// Watch reloads the settings whenever the file changes until ctx is done.
// onChange, if set, is called after each reload.
func (s *Store) Watch(ctx context.Context, onChange func(Settings)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot watch settings: %w", err)
	}
	defer w.Close()

	// Editors replace files, so watch the directory rather than the file.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("cannot watch settings: %w", err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.Load(); err != nil {
				s.logger.WithField("error", err).Error("Failed to reload settings, defaults will be used")
			} else {
				s.logger.WithField("path", s.path).Info("Settings reloaded")
			}
			if onChange != nil {
				onChange(s.Get())
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.WithField("error", err).Warn("Settings watcher error")
		}
	}
}
