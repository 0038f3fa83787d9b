package models

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSaveDir is where sessions are saved when nothing else is configured.
const DefaultSaveDir = ".saves"

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Store saves and loads sessions by name.
type Store interface {
	Save(s *Session) error
	Load(name string) (*Session, error)
	List() ([]string, error)
	Close() error
}

// DirStore keeps each session as a directory of YAML files.
type DirStore struct {
	Dir string
}

// NewDirStore returns a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	if dir == "" {
		dir = DefaultSaveDir
	}
	return &DirStore{Dir: dir}
}

// sessionFiles maps each file of a saved session to the part it holds.
func sessionFiles(s *Session) map[string]any {
	return map[string]any{
		"setting.yaml":   &s.Setting,
		"state.yaml":     &s.State,
		"history.yaml":   &s.History,
		"narrative.yaml": &s.Narrative,
	}
}

func (d *DirStore) Save(s *Session) error {
	if s.Name == "" {
		return fmt.Errorf("session name is required")
	}
	dir := filepath.Join(d.Dir, s.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	s.SavedAt = time.Now().UTC()

	for name, part := range sessionFiles(s) {
		data, err := yaml.Marshal(part)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func (d *DirStore) Load(name string) (*Session, error) {
	dir := filepath.Join(d.Dir, name)
	info, err := os.Stat(filepath.Join(dir, "setting.yaml"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	s := &Session{Name: name, SavedAt: info.ModTime().UTC()}
	for file, part := range sessionFiles(s) {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		if err := yaml.Unmarshal(data, part); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
	}
	return s, nil
}

func (d *DirStore) List() ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	sessions := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// setting.yaml marks a valid session
		if _, err := os.Stat(filepath.Join(d.Dir, entry.Name(), "setting.yaml")); err == nil {
			sessions = append(sessions, entry.Name())
		}
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (d *DirStore) Close() error { return nil }
