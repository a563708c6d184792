// Package stream serves export artifacts to the in-app player. Scrubbing a
// video needs byte-range support, so artifacts get a range-aware handler
// instead of a plain file response.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/reelkit/reelkit-agent/internal/logging"
	"github.com/reelkit/reelkit-agent/internal/project"
)

// ErrNoArtifact means the project has no completed export to play.
var ErrNoArtifact = errors.New("no export artifact for project")

type Streamer struct {
	repo   project.Repository
	logger *slog.Logger
}

func NewStreamer(repo project.Repository, logger *slog.Logger) *Streamer {
	return &Streamer{repo: repo, logger: logger}
}

// LatestArtifact resolves the newest completed export for a project.
// Records whose file has since been deleted are skipped.
func (s *Streamer) LatestArtifact(ctx context.Context, projectID string) (string, error) {
	exports, err := s.repo.ListExportsByProject(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("list exports: %w", err)
	}
	for _, e := range exports {
		if e.Status != project.ExportStatusComplete || e.OutputPath == "" {
			continue
		}
		if _, err := os.Stat(e.OutputPath); err != nil {
			s.logger.Debug("skipping vanished artifact", "export_id", e.ID, "path", logging.SanitizePath(e.OutputPath))
			continue
		}
		return e.OutputPath, nil
	}
	return "", ErrNoArtifact
}

// ServeArtifact streams a project's latest artifact, honoring Range
// requests so the player can seek.
func (s *Streamer) ServeArtifact(w http.ResponseWriter, r *http.Request, projectID string) error {
	path, err := s.LatestArtifact(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, ErrNoArtifact) {
			http.Error(w, "no artifact", http.StatusNotFound)
			return nil
		}
		return err
	}
	return s.serveFile(w, r, path)
}

func (s *Streamer) serveFile(w http.ResponseWriter, r *http.Request, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "artifact not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	size := stat.Size()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	rng, ok, err := parseByteRange(r.Header.Get("Range"), size)
	if errors.Is(err, errUnsatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	// A malformed Range header falls back to the whole artifact.
	if !ok {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
		w.WriteHeader(http.StatusOK)
		io.Copy(w, file)
		return nil
	}

	w.Header().Set("Content-Length", fmt.Sprintf("%d", rng.length()))
	w.Header().Set("Content-Range", rng.contentRange(size))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := file.Seek(rng.start, io.SeekStart); err != nil {
		return fmt.Errorf("seek artifact: %w", err)
	}
	io.CopyN(w, file, rng.length())
	return nil
}
