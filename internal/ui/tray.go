package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"
	"github.com/reelkit/reelkit-agent/internal/destination"
	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/project"
)

type Tray struct {
	exports *export.Manager
	repo    project.Repository
	watcher *project.Watcher
	sink    *destination.Local
	logger  *slog.Logger

	statusItem   *systray.MenuItem
	cancelItem   *systray.MenuItem
	copyLinkItem *systray.MenuItem
	pauseItem    *systray.MenuItem

	mu        sync.Mutex
	lastState export.State

	onQuit func()
}

type TrayConfig struct {
	Exports    *export.Manager
	Repository project.Repository
	Watcher    *project.Watcher
	Sink       *destination.Local
	Logger     *slog.Logger
	OnQuit     func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		exports: cfg.Exports,
		repo:    cfg.Repository,
		watcher: cfg.Watcher,
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		onQuit:  cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("ReelKit")
	systray.SetTooltip("ReelKit Agent")

	t.mu.Lock()

	t.statusItem = systray.AddMenuItem(statusTitle(t.lastState), "Current export status")
	t.statusItem.Disable()

	systray.AddSeparator()

	t.cancelItem = systray.AddMenuItem("Cancel Export", "Cancel the running export")
	if !cancellable(t.lastState) {
		t.cancelItem.Disable()
	}

	t.copyLinkItem = systray.AddMenuItem("Copy Last Share Link", "Copy the most recent share link")

	t.pauseItem = systray.AddMenuItem("Pause Watching", "Pause watching for new recordings")

	t.mu.Unlock()

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit ReelKit Agent")

	go func() {
		for {
			select {
			case <-t.cancelItem.ClickedCh:
				t.exports.Cancel()
			case <-t.copyLinkItem.ClickedCh:
				t.handleCopyLink()
			case <-t.pauseItem.ClickedCh:
				t.toggleWatching()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// HandleExportState is registered on the export manager during wiring; it
// may fire before onReady has built the menu, so the latest state is kept
// and replayed once the items exist.
func (t *Tray) HandleExportState(s export.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastState = s
	if t.statusItem == nil {
		return
	}

	t.statusItem.SetTitle(statusTitle(s))
	if cancellable(s) {
		t.cancelItem.Enable()
	} else {
		t.cancelItem.Disable()
	}
}

func (t *Tray) handleCopyLink() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	link, err := t.repo.LatestShareLink(ctx)
	if err != nil {
		t.logger.Error("failed to look up last share link", "error", err)
		return
	}
	if link == nil {
		t.logger.Info("no share links to copy yet")
		return
	}

	if err := t.sink.CopyText(link.URL); err != nil {
		t.logger.Error("failed to copy share link", "error", err)
		return
	}
	t.logger.Info("share link copied from tray", "url", link.URL)
}

func (t *Tray) toggleWatching() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.watcher == nil {
		return
	}

	if t.watcher.IsPaused() {
		t.watcher.Resume()
		t.pauseItem.SetTitle("Pause Watching")
	} else {
		t.watcher.Pause()
		t.pauseItem.SetTitle("Resume Watching")
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

func statusTitle(s export.State) string {
	switch s.Phase {
	case export.PhaseStarting:
		return "Export: Starting..."
	case export.PhaseRendering:
		if s.TotalFrames > 0 {
			return fmt.Sprintf("Export: Rendering %d/%d", s.RenderedFrames, s.TotalFrames)
		}
		return "Export: Rendering"
	case export.PhaseCopying:
		return "Export: Saving"
	case export.PhaseUploading:
		return fmt.Sprintf("Export: Uploading %d%%", s.UploadPercent)
	case export.PhaseDone:
		return "Export: Done"
	default:
		if s.Error != "" {
			return "Export: Failed"
		}
		return "Export: Idle"
	}
}

func cancellable(s export.State) bool {
	switch s.Phase {
	case export.PhaseStarting, export.PhaseRendering, export.PhaseUploading:
		return true
	}
	return false
}
