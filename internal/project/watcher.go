package project

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Watcher polls the projects directory so new recordings appear in the
// catalog without a manual scan.
type Watcher struct {
	service      *Service
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewWatcher(service *Service, logger *slog.Logger) *Watcher {
	return &Watcher{
		service:      service,
		logger:       logger,
		pollInterval: 5 * time.Second,
	}
}

func (w *Watcher) Start(ctx context.Context) {
	if w.running.Swap(true) {
		return
	}

	w.logger.Info("project watcher started")

	// Initial scan so existing recordings are visible immediately
	w.scan(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("project watcher stopping")
			w.running.Store(false)
			return
		case <-ticker.C:
			if !w.paused.Load() {
				w.scan(ctx)
			}
		}
	}
}

func (w *Watcher) Pause() {
	w.paused.Store(true)
	w.logger.Info("project watcher paused")
}

func (w *Watcher) Resume() {
	w.paused.Store(false)
	w.logger.Info("project watcher resumed")
}

func (w *Watcher) IsPaused() bool {
	return w.paused.Load()
}

func (w *Watcher) IsRunning() bool {
	return w.running.Load()
}

func (w *Watcher) scan(ctx context.Context) {
	added, missing, err := w.service.Scan(ctx)
	if err != nil {
		w.logger.Error("projects scan failed", "error", err)
		return
	}
	if added > 0 || missing > 0 {
		w.logger.Info("projects scan", "added", added, "missing", missing)
	}
}
