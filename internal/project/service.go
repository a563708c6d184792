package project

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/reelkit/reelkit-agent/internal/media"
)

type ProjectService interface {
	Register(ctx context.Context, path string) (*Project, error)
	Scan(ctx context.Context) (added, missing int, err error)
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	RemoveProject(ctx context.Context, id string) error
	UpdateConfiguration(ctx context.Context, id string, cfg *Configuration) (*Project, error)
	SetSharing(ctx context.Context, id string, sharing *SharingMeta) error
}

type Service struct {
	repo        Repository
	prober      media.Prober
	logger      *slog.Logger
	projectsDir string
}

func NewService(repo Repository, prober media.Prober, projectsDir string, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		prober:      prober,
		projectsDir: projectsDir,
		logger:      logger,
	}
}

// Register adds a recording bundle to the catalog. Registering an
// already-known path returns the existing project.
func (s *Service) Register(ctx context.Context, path string) (*Project, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory")
	}
	if !IsBundle(absPath) {
		return nil, fmt.Errorf("path is not a recording bundle")
	}

	existing, err := s.repo.GetProjectByPath(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	meta, err := LoadMeta(absPath)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadConfiguration(absPath)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := &Project{
		ID:         NewID(),
		Path:       absPath,
		PrettyName: meta.PrettyName,
		Platform:   meta.Platform,
		FPS:        meta.MaxFPS(),
		Config:     cfg,
		Meta:       meta,
		Status:     StatusDiscovered,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("project registered", "project_id", p.ID, "path", absPath)
	}

	s.probeProject(ctx, p)
	return p, nil
}

// probeProject fills in duration and dimensions from the display track.
// Probe failures leave the project discovered but usable; duration falls
// back to the timeline when one exists.
func (s *Service) probeProject(ctx context.Context, p *Project) {
	if s.prober == nil || p.Meta == nil {
		return
	}
	display := p.Meta.DisplayMeta()
	if display == nil {
		return
	}

	result, err := s.prober.Probe(ctx, p.Meta.ResolvePath(display.Path))
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("probe failed", "project_id", p.ID, "error", err)
		}
		return
	}

	p.DurationSecs = result.DurationSecs
	p.Width = result.Width
	p.Height = result.Height
	p.Status = StatusReady

	if err := s.repo.UpdateProjectProbe(ctx, p.ID, result.DurationSecs, p.FPS, result.Width, result.Height); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to persist probe result", "project_id", p.ID, "error", err)
		}
	}
}

// Scan walks the projects directory, registering new bundles and marking
// projects whose directory disappeared.
func (s *Service) Scan(ctx context.Context) (int, int, error) {
	entries, err := os.ReadDir(s.projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to read projects directory: %w", err)
	}

	onDisk := make(map[string]bool)
	added := 0
	for _, entry := range entries {
		if !entry.IsDir() || !IsBundle(entry.Name()) {
			continue
		}
		bundlePath := filepath.Join(s.projectsDir, entry.Name())
		absPath, err := filepath.Abs(bundlePath)
		if err != nil {
			continue
		}
		onDisk[absPath] = true

		existing, err := s.repo.GetProjectByPath(ctx, absPath)
		if err != nil {
			return added, 0, err
		}
		if existing != nil {
			if existing.Status == StatusMissing {
				s.repo.UpdateProjectStatus(ctx, existing.ID, StatusDiscovered)
				s.probeProject(ctx, existing)
			}
			continue
		}

		if _, err := s.Register(ctx, absPath); err != nil {
			if s.logger != nil {
				s.logger.Warn("failed to register bundle", "path", absPath, "error", err)
			}
			continue
		}
		added++
	}

	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return added, 0, err
	}

	missing := 0
	for _, p := range projects {
		if p.Status == StatusMissing {
			continue
		}
		if _, err := os.Stat(p.Path); os.IsNotExist(err) {
			if err := s.repo.UpdateProjectStatus(ctx, p.ID, StatusMissing); err == nil {
				missing++
				if s.logger != nil {
					s.logger.Warn("project missing from disk", "project_id", p.ID, "path", p.Path)
				}
			}
		}
	}

	return added, missing, nil
}

func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.repo.GetProject(ctx, id)
}

func (s *Service) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.repo.ListProjects(ctx)
}

func (s *Service) RemoveProject(ctx context.Context, id string) error {
	return s.repo.DeleteProject(ctx, id)
}

// UpdateConfiguration persists a new editor configuration and writes it
// through to the bundle's project-config.json so other tools see it.
func (s *Service) UpdateConfiguration(ctx context.Context, id string, cfg *Configuration) (*Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project not found")
	}

	cfg.Normalize()

	if err := s.repo.UpdateProjectConfig(ctx, id, cfg); err != nil {
		return nil, err
	}

	if err := SaveConfiguration(p.Path, cfg); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to write project-config.json", "project_id", id, "error", err)
		}
	}

	p.Config = cfg
	return p, nil
}

// SetSharing records a successful upload in the bundle meta, on disk and in
// the catalog row.
func (s *Service) SetSharing(ctx context.Context, id string, sharing *SharingMeta) error {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("project not found")
	}
	if p.Meta == nil {
		return fmt.Errorf("project has no recording meta")
	}

	p.Meta.Sharing = sharing
	if err := s.repo.UpdateProjectMeta(ctx, id, p.Meta); err != nil {
		return err
	}

	if err := SaveMeta(p.Path, p.Meta); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to write recording-meta.json", "project_id", id, "error", err)
		}
	}

	return nil
}
