// Package store persists amux settings and per-project session state as
// JSON files: global settings in ~/.amux/settings.json, project settings and
// session snapshots under <project>/.amux/.
//
// Loads always return fully populated structs: defaults are applied at every
// nesting level, so callers never see a partial object.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// AmuxDir is the per-project state directory name.
const AmuxDir = ".amux"

// ModelSettings selects the models the orchestrator passes to the worker.
type ModelSettings struct {
	Main            string `json:"main,omitempty"`
	Weak            string `json:"weak,omitempty"`
	Architect       string `json:"architect,omitempty"`
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
	ThinkingTokens  string `json:"thinking_tokens,omitempty"`
}

// WorkerSettings configures how the worker process is launched.
type WorkerSettings struct {
	// Interpreter runs the connector module (module-style invocation).
	Interpreter string `json:"interpreter,omitempty"`
	// Module is the connector module name passed after -m.
	Module string `json:"module,omitempty"`
	// Options is free-text extra CLI options, tokenized shell-style.
	Options string `json:"options,omitempty"`
	// ModulePath is prepended to the module search path env var.
	ModulePath string `json:"module_path,omitempty"`
}

// Settings is the global user configuration.
type Settings struct {
	Worker     WorkerSettings `json:"worker"`
	Models     ModelSettings  `json:"models"`
	ServerAddr string         `json:"server_addr,omitempty"`
}

// ProjectSettings holds per-project overrides merged over the global settings.
type ProjectSettings struct {
	Env    map[string]string `json:"env,omitempty"`
	Models ModelSettings     `json:"models"`
	Worker WorkerSettings    `json:"worker"`
}

// Session is the persisted conversation snapshot for one project.
type Session struct {
	Messages []SessionMessage `json:"messages,omitempty"`
	Files    []SessionFile    `json:"files,omitempty"`
}

// SessionMessage is one persisted conversation entry.
type SessionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionFile is one persisted context-file entry.
type SessionFile struct {
	Path     string `json:"path"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// Store reads and writes amux state files.
type Store struct {
	home string // amux home directory, ~/.amux by default
	mu   sync.Mutex
}

// New returns a store rooted at home. Empty home resolves to ~/.amux.
func New(home string) (*Store, error) {
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("store: user home dir: %w", err)
		}
		home = filepath.Join(userHome, ".amux")
	}
	if err := os.MkdirAll(home, 0755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", home, err)
	}
	return &Store{home: home}, nil
}

// Home returns the amux home directory.
func (s *Store) Home() string { return s.home }

// RunDir returns the directory holding worker liveness markers.
func (s *Store) RunDir() string { return filepath.Join(s.home, "run") }

func (s *Store) settingsPath() string {
	return filepath.Join(s.home, "settings.json")
}

func projectDir(baseDir string) string {
	return filepath.Join(baseDir, AmuxDir)
}

// GetSettings loads the global settings, applying defaults at every level.
// A missing file yields pure defaults.
func (s *Store) GetSettings() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cfg Settings
	if err := readJSON(s.settingsPath(), &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	applySettingsDefaults(&cfg)
	return &cfg, nil
}

// SaveSettings writes the global settings.
func (s *Store) SaveSettings(cfg *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == nil {
		cfg = &Settings{}
	}
	applySettingsDefaults(cfg)
	return writeJSON(s.settingsPath(), cfg)
}

// GetProjectSettings loads project settings for baseDir, merged over the
// global settings so every field is populated.
func (s *Store) GetProjectSettings(baseDir string) (*ProjectSettings, error) {
	global, err := s.GetSettings()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ps ProjectSettings
	path := filepath.Join(projectDir(baseDir), "project.json")
	if err := readJSON(path, &ps); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	mergeProjectDefaults(&ps, global)
	return &ps, nil
}

// SaveProjectSettings persists the merged project settings for baseDir.
func (s *Store) SaveProjectSettings(baseDir string, ps *ProjectSettings) error {
	global, err := s.GetSettings()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ps == nil {
		ps = &ProjectSettings{}
	}
	mergeProjectDefaults(ps, global)

	dir := projectDir(baseDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}
	return writeJSON(filepath.Join(dir, "project.json"), ps)
}

// LoadSession reads the persisted conversation for baseDir. A missing file
// yields an empty session, nil error.
func (s *Store) LoadSession(baseDir string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sess Session
	path := filepath.Join(projectDir(baseDir), "session.json")
	if err := readJSON(path, &sess); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Session{}, nil
		}
		return nil, err
	}
	return &sess, nil
}

// SaveSession writes the conversation snapshot for baseDir.
func (s *Store) SaveSession(baseDir string, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess == nil {
		sess = &Session{}
	}
	dir := projectDir(baseDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}
	return writeJSON(filepath.Join(dir, "session.json"), sess)
}

func applySettingsDefaults(cfg *Settings) {
	if cfg.Worker.Interpreter == "" {
		cfg.Worker.Interpreter = "python3"
	}
	if cfg.Worker.Module == "" {
		cfg.Worker.Module = "amux_connector"
	}
	if cfg.Models.Main == "" {
		cfg.Models.Main = "gpt-4o"
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = "127.0.0.1:24337"
	}
}

func mergeProjectDefaults(ps *ProjectSettings, global *Settings) {
	if ps.Env == nil {
		ps.Env = make(map[string]string)
	}
	if ps.Models.Main == "" {
		ps.Models.Main = global.Models.Main
	}
	if ps.Models.Weak == "" {
		ps.Models.Weak = global.Models.Weak
	}
	if ps.Models.Architect == "" {
		ps.Models.Architect = global.Models.Architect
	}
	if ps.Models.ReasoningEffort == "" {
		ps.Models.ReasoningEffort = global.Models.ReasoningEffort
	}
	if ps.Models.ThinkingTokens == "" {
		ps.Models.ThinkingTokens = global.Models.ThinkingTokens
	}
	if ps.Worker.Interpreter == "" {
		ps.Worker.Interpreter = global.Worker.Interpreter
	}
	if ps.Worker.Module == "" {
		ps.Worker.Module = global.Worker.Module
	}
	if ps.Worker.Options == "" {
		ps.Worker.Options = global.Worker.Options
	}
	if ps.Worker.ModulePath == "" {
		ps.Worker.ModulePath = global.Worker.ModulePath
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
