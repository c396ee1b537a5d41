// Package theme persists the light/dark preference and notices when another
// client instance changes it.
package theme

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

func (t Theme) Toggled() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

func parse(s string) Theme {
	if Theme(s) == Dark {
		return Dark
	}
	return Light
}

const preferencesFile = "preferences.yaml"

type preferences struct {
	Theme string `yaml:"theme"`
}

type Store struct {
	dir  string
	path string
	log  *zap.Logger

	mu      sync.Mutex
	current Theme
}

func NewStore(stateDir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:     stateDir,
		path:    filepath.Join(stateDir, preferencesFile),
		log:     logger.Named("theme"),
		current: Light,
	}
}

// Load reads the stored theme. No file means light.
func (s *Store) Load() (Theme, error) {
	t, err := s.read()
	if err != nil {
		return Light, err
	}
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
	return t, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Current() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Toggle flips the theme and persists the choice.
func (s *Store) Toggle() (Theme, error) {
	s.mu.Lock()
	next := s.current.Toggled()
	s.mu.Unlock()
	if err := s.Set(next); err != nil {
		return s.Current(), err
	}
	return next, nil
}

func (s *Store) Set(t Theme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := yaml.Marshal(preferences{Theme: string(t)})
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	s.current = t
	return nil
}

func (s *Store) read() (Theme, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Light, nil
	}
	if err != nil {
		return Light, fmt.Errorf("failed to read preferences: %w", err)
	}
	var prefs preferences
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return Light, fmt.Errorf("failed to parse preferences: %w", err)
	}
	return parse(prefs.Theme), nil
}

// Watch calls onChange whenever the preferences file is changed to a
// different theme, until ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func(Theme)) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// The file is replaced by rename, so watch the directory.
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != preferencesFile {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			t, err := s.read()
			if err != nil {
				s.log.Debug("Ignoring unreadable preferences", zap.Error(err))
				continue
			}
			s.mu.Lock()
			changed := t != s.current
			s.current = t
			s.mu.Unlock()
			if changed && onChange != nil {
				onChange(t)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("Preferences watcher error", zap.Error(err))
		}
	}
}
