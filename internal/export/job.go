package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/reelkit/reelkit-agent/internal/project"
)

// Renderer runs a full-quality export, writing the artifact at outputPath
// and reporting frame progress. Cancellation arrives through ctx and is
// observed at frame boundaries.
type Renderer interface {
	Export(ctx context.Context, projectPath string, settings *Settings, outputPath string, onProgress func(rendered, total int)) error
}

// ShareResult is a successful upload: the hosted video and its share URL.
type ShareResult struct {
	VideoID string
	URL     string
}

// Uploader streams a rendered artifact to the sharing backend.
type Uploader interface {
	Upload(ctx context.Context, p *project.Project, artifactPath, mode, organizationID string, onProgress func(fraction float64)) (*ShareResult, error)
}

// Gate decides whether the link destination is permitted before any render
// work begins.
type Gate interface {
	CheckEligibility(ctx context.Context, p *project.Project) (Eligibility, error)
}

// Sink delivers a rendered artifact (or share URL text) to a local
// destination.
type Sink interface {
	CopyToPath(ctx context.Context, src, dest string) error
	CopyToClipboard(ctx context.Context, path string) error
	CopyText(text string) error
}

// EligibilityError aborts a link export before it starts. The reason is one
// of the Reason* constants.
type EligibilityError struct {
	Reason string
}

func (e *EligibilityError) Error() string {
	return "upload not permitted: " + e.Reason
}

// Manager owns the single export job slot. All transitions run through it;
// a generation counter tied to each run keeps events from a superseded run
// from touching current state.
type Manager struct {
	repo         project.Repository
	projects     *project.Service
	renderer     Renderer
	uploader     Uploader
	gate         Gate
	sink         Sink
	artifactsDir string
	logger       *slog.Logger

	mu          sync.Mutex
	state       State
	generation  uint64
	cancelRun   context.CancelFunc
	lastPercent int

	onChange func(State)
}

func NewManager(repo project.Repository, projects *project.Service, renderer Renderer, uploader Uploader, gate Gate, sink Sink, artifactsDir string, logger *slog.Logger) *Manager {
	return &Manager{
		repo:         repo,
		projects:     projects,
		renderer:     renderer,
		uploader:     uploader,
		gate:         gate,
		sink:         sink,
		artifactsDir: artifactsDir,
		logger:       logger,
		state:        State{Phase: PhaseIdle},
	}
}

// SetOnChange registers a state listener. Must be called during wiring,
// before any job starts.
func (m *Manager) SetOnChange(fn func(State)) {
	m.onChange = fn
}

// State returns a snapshot of the current job state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CheckEligibility exposes the gate verdict without starting a job, for the
// export screen to disable the share option up front.
func (m *Manager) CheckEligibility(ctx context.Context, p *project.Project) (Eligibility, error) {
	return m.gate.CheckEligibility(ctx, p)
}

// Start begins an export run. It validates settings, gates the link
// destination, and claims the job slot; the render itself proceeds on a
// background goroutine. Returns the export record ID.
//
// Only one job may be active: Start while a run is in flight (or an
// undismissed Done is showing) returns ErrExportInProgress.
func (m *Manager) Start(ctx context.Context, p *project.Project, settings *Settings, savePath string) (string, error) {
	transparent := p.Config != nil && p.Config.Background.Source.IsTransparent()
	settings.Normalize(transparent)
	if err := settings.Validate(); err != nil {
		return "", &ValidationError{Reason: err.Error()}
	}

	// A file export with no chosen path means the user dismissed the save
	// dialog: abort before the job slot is touched.
	if settings.Destination == DestinationFile {
		if savePath == "" {
			return "", &ValidationError{Reason: "no save path chosen"}
		}
		// Save dialogs hand back a full path, but a caller may point at a
		// directory and let the agent pick the recording's default name.
		if info, err := os.Stat(savePath); err == nil && info.IsDir() {
			savePath = filepath.Join(savePath, DefaultFilename(p.PrettyName, settings))
		} else if err := ValidateOutputDir(filepath.Dir(savePath)); err != nil {
			return "", &ValidationError{Reason: err.Error()}
		}
	}

	// Entitlement runs before any render work so an ineligible upload
	// never wastes a full render pass.
	if settings.Destination == DestinationLink {
		elig, err := m.gate.CheckEligibility(ctx, p)
		if err != nil {
			return "", fmt.Errorf("eligibility check failed: %w", err)
		}
		if !elig.Allowed {
			return "", &EligibilityError{Reason: elig.Reason}
		}
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.state.Phase != PhaseIdle {
		m.mu.Unlock()
		return "", ErrExportInProgress
	}

	m.generation++
	gen := m.generation
	exportID := project.NewID()

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancelRun = cancel
	m.lastPercent = -1
	m.state = State{Phase: PhaseStarting, ExportID: exportID, ProjectID: p.ID}
	snapshot := m.state
	m.mu.Unlock()
	m.emit(snapshot)

	now := time.Now()
	record := &project.ExportRecord{
		ID:           exportID,
		ProjectID:    p.ID,
		Status:       project.ExportStatusStarting,
		Format:       settings.Format,
		Destination:  settings.Destination,
		SettingsJSON: string(settingsJSON),
		TotalFrames:  TotalFrames(p.EffectiveDuration(), settings.FPS),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.repo.CreateExport(ctx, record); err != nil {
		cancel()
		m.reset(gen, "")
		return "", err
	}

	m.logger.Info("export started",
		"export_id", exportID, "project_id", p.ID,
		"format", settings.Format, "destination", settings.Destination)

	go m.run(runCtx, gen, p, settings, savePath, exportID)
	return exportID, nil
}

// Cancel stops the active run and returns the slot to idle immediately,
// without waiting for the engine to acknowledge. Idempotent: cancelling an
// idle or finished job is a no-op, and the partial artifact is deleted at
// most once, by the unwinding run goroutine.
func (m *Manager) Cancel() {
	m.mu.Lock()
	switch m.state.Phase {
	case PhaseStarting, PhaseRendering, PhaseUploading:
	default:
		m.mu.Unlock()
		return
	}

	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
	m.generation++
	m.state = State{Phase: PhaseIdle}
	snapshot := m.state
	m.mu.Unlock()
	m.emit(snapshot)

	m.logger.Info("export cancelled by user")
}

// Dismiss clears a Done surface (or a lingering error) and frees the slot.
func (m *Manager) Dismiss() {
	m.mu.Lock()
	if m.state.Phase != PhaseDone && !(m.state.Phase == PhaseIdle && m.state.Error != "") {
		m.mu.Unlock()
		return
	}
	m.state = State{Phase: PhaseIdle}
	snapshot := m.state
	m.mu.Unlock()
	m.emit(snapshot)
}

func (m *Manager) run(ctx context.Context, gen uint64, p *project.Project, settings *Settings, savePath, exportID string) {
	artifact := filepath.Join(m.artifactsDir, exportID+"."+settings.FileExtension())

	err := m.execute(ctx, gen, p, settings, savePath, exportID, artifact)
	if err == nil {
		return
	}

	// Persistence after the run uses a fresh context: the run context is
	// already cancelled on this path.
	bg := context.Background()

	if IsCancelled(err) || errors.Is(err, context.Canceled) {
		if rmErr := os.Remove(artifact); rmErr != nil && !os.IsNotExist(rmErr) {
			m.logger.Warn("failed to remove partial artifact", "path", artifact, "error", rmErr)
		}
		if dbErr := m.repo.UpdateExportStatus(bg, exportID, project.ExportStatusCancelled, ""); dbErr != nil {
			m.logger.Warn("failed to persist cancelled export", "export_id", exportID, "error", dbErr)
		}
		m.logger.Info("export run stopped", "export_id", exportID)
		return
	}

	m.logger.Error("export failed", "export_id", exportID, "error", err)
	if dbErr := m.repo.UpdateExportStatus(bg, exportID, project.ExportStatusFailed, err.Error()); dbErr != nil {
		m.logger.Warn("failed to persist failed export", "export_id", exportID, "error", dbErr)
	}
	m.reset(gen, err.Error())
}

func (m *Manager) execute(ctx context.Context, gen uint64, p *project.Project, settings *Settings, savePath, exportID, artifact string) error {
	if settings.Destination == DestinationFile {
		if err := ValidateOutputDir(filepath.Dir(savePath)); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(m.artifactsDir, 0755); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	total := TotalFrames(p.EffectiveDuration(), settings.FPS)
	if !m.transition(gen, func(s *State) {
		s.Phase = PhaseRendering
		s.TotalFrames = total
	}) {
		return ErrCancelled
	}
	m.repo.UpdateExportStatus(context.Background(), exportID, project.ExportStatusRendering, "")

	err := m.renderer.Export(ctx, p.Path, settings, artifact, func(rendered, renderTotal int) {
		m.renderProgress(gen, exportID, rendered, renderTotal)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return ErrCancelled
		}
		return fmt.Errorf("render failed: %w", err)
	}
	if ctx.Err() != nil {
		return ErrCancelled
	}

	switch settings.Destination {
	case DestinationFile:
		if !m.transition(gen, func(s *State) { s.Phase = PhaseCopying }) {
			return ErrCancelled
		}
		if err := m.sink.CopyToPath(ctx, artifact, savePath); err != nil {
			return fmt.Errorf("failed to save to %s: %w", savePath, err)
		}
		m.repo.CompleteExport(context.Background(), exportID, savePath)
		m.transition(gen, func(s *State) {
			s.Phase = PhaseDone
			s.OutputPath = savePath
		})

	case DestinationClipboard:
		if !m.transition(gen, func(s *State) { s.Phase = PhaseCopying }) {
			return ErrCancelled
		}
		if err := m.sink.CopyToClipboard(ctx, artifact); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
		m.repo.CompleteExport(context.Background(), exportID, artifact)
		m.transition(gen, func(s *State) {
			s.Phase = PhaseDone
			s.OutputPath = artifact
		})

	case DestinationLink:
		if !m.transition(gen, func(s *State) {
			s.Phase = PhaseUploading
			s.UploadPercent = 0
		}) {
			return ErrCancelled
		}
		m.repo.UpdateExportStatus(context.Background(), exportID, project.ExportStatusUploading, "")

		mode := project.ShareModeInitial
		if p.Meta != nil && p.Meta.Sharing != nil {
			mode = project.ShareModeReupload
		}

		result, err := m.uploader.Upload(ctx, p, artifact, mode, settings.OrganizationID, func(fraction float64) {
			m.uploadProgress(gen, fraction)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ErrCancelled
			}
			return fmt.Errorf("upload failed: %w", err)
		}
		if ctx.Err() != nil {
			return ErrCancelled
		}

		bg := context.Background()
		link := &project.ShareLink{
			ID:        project.NewID(),
			ProjectID: p.ID,
			VideoID:   result.VideoID,
			URL:       result.URL,
			Mode:      mode,
			CreatedAt: time.Now(),
		}
		if err := m.repo.CreateShareLink(bg, link); err != nil {
			m.logger.Warn("failed to record share link", "export_id", exportID, "error", err)
		}
		if err := m.projects.SetSharing(bg, p.ID, &project.SharingMeta{ID: result.VideoID, Link: result.URL}); err != nil {
			m.logger.Warn("failed to update sharing meta", "project_id", p.ID, "error", err)
		}
		if err := m.sink.CopyText(result.URL); err != nil {
			m.logger.Warn("failed to copy share link to clipboard", "error", err)
		}
		m.repo.CompleteExport(bg, exportID, artifact)
		m.transition(gen, func(s *State) {
			s.Phase = PhaseDone
			s.ShareURL = result.URL
		})
	}

	m.logger.Info("export finished", "export_id", exportID, "destination", settings.Destination)
	return nil
}

// renderProgress applies an engine frame event. Events carry the generation
// of the run that produced them; anything stale is dropped.
func (m *Manager) renderProgress(gen uint64, exportID string, rendered, total int) {
	m.mu.Lock()
	if m.generation != gen || m.state.Phase != PhaseRendering {
		m.mu.Unlock()
		return
	}
	m.state.RenderedFrames = rendered
	if total > 0 {
		m.state.TotalFrames = total
	}
	percent := 0
	if m.state.TotalFrames > 0 {
		percent = rendered * 100 / m.state.TotalFrames
	}
	persist := percent != m.lastPercent
	if persist {
		m.lastPercent = percent
	}
	snapshot := m.state
	m.mu.Unlock()
	m.emit(snapshot)

	if persist {
		m.repo.UpdateExportProgress(context.Background(), exportID, rendered, snapshot.TotalFrames)
	}
}

func (m *Manager) uploadProgress(gen uint64, fraction float64) {
	percent := int(math.Round(fraction * 100))
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	m.mu.Lock()
	if m.generation != gen || m.state.Phase != PhaseUploading {
		m.mu.Unlock()
		return
	}
	m.state.UploadPercent = percent
	snapshot := m.state
	m.mu.Unlock()
	m.emit(snapshot)
}

// transition applies a mutation if the run is still current. Returns false
// when the run has been superseded, which callers treat as cancellation.
func (m *Manager) transition(gen uint64, mutate func(*State)) bool {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return false
	}
	mutate(&m.state)
	snapshot := m.state
	m.mu.Unlock()
	m.emit(snapshot)
	return true
}

// reset returns the slot to idle, keeping an error message for the UI when
// the run failed.
func (m *Manager) reset(gen uint64, errMsg string) {
	m.transition(gen, func(s *State) {
		*s = State{Phase: PhaseIdle, Error: errMsg}
	})
}

func (m *Manager) emit(s State) {
	if m.onChange != nil {
		m.onChange(s)
	}
}
