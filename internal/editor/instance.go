// Package editor manages per-project edit sessions. Each open project gets
// a render scheduler and an estimate cache bound to the engine, plus the
// playback and configuration plumbing between them.
package editor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/preview"
	"github.com/reelkit/reelkit-agent/internal/project"
)

// EngineSession is the slice of the engine an editing session drives.
type EngineSession interface {
	preview.FrameEmitter
	preview.PreviewGenerator
	SetPlaying(playing bool, fromTime float64)
	ApplyConfiguration(ctx context.Context, projectPath string, cfg *project.Configuration) error
}

// Instance is one open editing session.
type Instance struct {
	projectID   string
	projectPath string
	engine      EngineSession
	projects    *project.Service
	scheduler   *preview.Scheduler
	estimates   *preview.EstimateCache
	logger      *slog.Logger
}

func newInstance(p *project.Project, eng EngineSession, projects *project.Service, logger *slog.Logger) *Instance {
	base := export.Resolution{Width: p.Width, Height: p.Height}
	return &Instance{
		projectID:   p.ID,
		projectPath: p.Path,
		engine:      eng,
		projects:    projects,
		scheduler:   preview.NewScheduler(eng, p.FPS, base, logger),
		estimates:   preview.NewEstimateCache(eng, p.Path, logger),
		logger:      logger,
	}
}

func (i *Instance) ProjectID() string { return i.projectID }

// NotifyPreview feeds a new playhead position to the render scheduler.
func (i *Instance) NotifyPreview(time float64) {
	i.estimates.SetPlayhead(time)
	i.scheduler.Notify(time)
}

// SetPlayback starts or stops engine-driven playback. While playing, the
// engine renders frames itself and scrub input is discarded.
func (i *Instance) SetPlayback(playing bool, fromTime float64) {
	i.engine.SetPlaying(playing, fromTime)
	i.scheduler.SetSuppressed(playing)
	i.estimates.SetPlayhead(fromTime)
	if !playing {
		// Re-sync the preview to wherever playback stopped.
		i.scheduler.Notify(fromTime)
	}
}

// ApplyConfiguration pushes edited settings to the engine, waits for the
// ack, persists them, then re-renders the pending frame so the visible
// preview reflects the new configuration.
func (i *Instance) ApplyConfiguration(ctx context.Context, cfg *project.Configuration) error {
	if err := i.engine.ApplyConfiguration(ctx, i.projectPath, cfg); err != nil {
		return fmt.Errorf("push configuration: %w", err)
	}
	if _, err := i.projects.UpdateConfiguration(ctx, i.projectID, cfg); err != nil {
		return fmt.Errorf("persist configuration: %w", err)
	}
	i.scheduler.Refresh()
	return nil
}

// RequestEstimate looks up or schedules an export estimate for the settings
// tuple. Results land on the callback registered with SetOnEstimate.
func (i *Instance) RequestEstimate(fps, width, height int, bpp float64) *preview.EstimateEntry {
	return i.estimates.Request(fps, width, height, bpp)
}

func (i *Instance) SetOnEstimate(fn func(preview.EstimateKey, *preview.EstimateEntry)) {
	i.estimates.SetOnResult(fn)
}

// Close tears the session down and releases the estimate cache.
func (i *Instance) Close() {
	i.scheduler.Close()
	i.estimates.Close()
	i.logger.Info("editor session closed", "project_id", i.projectID)
}
