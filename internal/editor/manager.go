package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/reelkit/reelkit-agent/internal/logging"
	"github.com/reelkit/reelkit-agent/internal/project"
)

// Manager tracks open editing sessions, one per project.
type Manager struct {
	engine   EngineSession
	projects *project.Service
	logger   *slog.Logger

	mu   sync.Mutex
	open map[string]*Instance
}

func NewManager(eng EngineSession, projects *project.Service, logger *slog.Logger) *Manager {
	return &Manager{
		engine:   eng,
		projects: projects,
		logger:   logger,
		open:     make(map[string]*Instance),
	}
}

// Open returns the session for a project, starting one on first use. A new
// session pushes the stored configuration first so the engine and the
// preview agree before the first frame request.
func (m *Manager) Open(ctx context.Context, projectID string) (*Instance, error) {
	m.mu.Lock()
	if inst, ok := m.open[projectID]; ok {
		m.mu.Unlock()
		return inst, nil
	}
	m.mu.Unlock()

	p, err := m.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s not found", projectID)
	}

	if p.Config != nil {
		if err := m.engine.ApplyConfiguration(ctx, p.Path, p.Config); err != nil {
			m.logger.Warn("initial configuration push failed", "project_id", projectID, "error", err)
		}
	}

	inst := newInstance(p, m.engine, m.projects, logging.WithProjectID(m.logger, projectID))

	m.mu.Lock()
	if existing, ok := m.open[projectID]; ok {
		// A concurrent Open won the race; keep its session.
		m.mu.Unlock()
		inst.scheduler.Close()
		inst.estimates.Close()
		return existing, nil
	}
	m.open[projectID] = inst
	m.mu.Unlock()

	m.logger.Info("editor session opened", "project_id", projectID)
	return inst, nil
}

// Get returns an already-open session, or nil.
func (m *Manager) Get(projectID string) *Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[projectID]
}

// Close ends one project's session if it is open.
func (m *Manager) Close(projectID string) {
	m.mu.Lock()
	inst, ok := m.open[projectID]
	delete(m.open, projectID)
	m.mu.Unlock()
	if ok {
		inst.Close()
	}
}

// CloseAll ends every open session. Called at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := m.open
	m.open = make(map[string]*Instance)
	m.mu.Unlock()
	for _, inst := range open {
		inst.Close()
	}
}
