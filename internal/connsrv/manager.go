// Package connsrv hosts the connector endpoint: a WebSocket server worker
// connectors dial into, plus the manager owning one Project per base
// directory.
package connsrv

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/agusx1211/amux/internal/project"
	"github.com/agusx1211/amux/internal/store"
)

// Manager owns the live projects, keyed by normalized base directory.
type Manager struct {
	st    *store.Store
	agent project.Agent

	mu       sync.Mutex
	projects map[string]*project.Project
}

// NewManager returns an empty manager backed by st.
func NewManager(st *store.Store, agent project.Agent) *Manager {
	return &Manager{
		st:       st,
		agent:    agent,
		projects: make(map[string]*project.Project),
	}
}

// Open returns the project for baseDir, creating it on first use. Paths
// normalizing to the same directory share one project.
func (m *Manager) Open(baseDir string) (*project.Project, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("connsrv: resolve %s: %w", baseDir, err)
	}
	abs = filepath.Clean(abs)

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.projects[abs]; ok {
		return p, nil
	}
	p, err := project.New(abs, m.st, m.agent)
	if err != nil {
		return nil, err
	}
	m.projects[abs] = p
	return p, nil
}

// Get returns the project for baseDir if it is open, else nil.
func (m *Manager) Get(baseDir string) *project.Project {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projects[filepath.Clean(abs)]
}

// Projects returns all open projects.
func (m *Manager) Projects() []*project.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*project.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out
}

// Close shuts down and forgets the project for baseDir.
func (m *Manager) Close(baseDir string) error {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("connsrv: resolve %s: %w", baseDir, err)
	}
	abs = filepath.Clean(abs)

	m.mu.Lock()
	p := m.projects[abs]
	delete(m.projects, abs)
	m.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Close()
}

// CloseAll shuts down every open project. The first error wins; shutdown
// still proceeds for the rest.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	projects := make([]*project.Project, 0, len(m.projects))
	for _, p := range m.projects {
		projects = append(projects, p)
	}
	m.projects = make(map[string]*project.Project)
	m.mu.Unlock()

	var firstErr error
	for _, p := range projects {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
