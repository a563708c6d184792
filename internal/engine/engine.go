// Package engine is the client for the external render engine process. The
// engine owns pixels: it composites preview frames, renders exports, and
// answers estimate probes. The agent talks to it over localhost HTTP, with a
// WebSocket session for progress events.
package engine

import (
	"context"
	"fmt"

	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/project"
)

// PreviewRequest asks the engine to composite a single frame at export
// quality and report how long it took.
type PreviewRequest struct {
	ProjectPath  string            `json:"project_path"`
	FrameTime    float64           `json:"frame_time"`
	FPS          int               `json:"fps"`
	Resolution   export.Resolution `json:"resolution_base"`
	BitsPerPixel float64           `json:"bits_per_pixel"`
}

// PreviewResult carries the probe frame and the engine's own estimate
// figures for the requested settings.
type PreviewResult struct {
	ImageBase64       string  `json:"image_base64"`
	FrameRenderTimeMs float64 `json:"frame_render_time_ms"`
	TotalFrames       int     `json:"total_frames"`
	EstimatedSizeMb   float64 `json:"estimated_size_mb"`
}

// Engine is everything the agent asks of the render process. Export matches
// the export package's Renderer contract; the fire-and-forget calls never
// block the caller.
type Engine interface {
	Ping(ctx context.Context) error
	EmitRenderFrame(frameNumber, fps uint32, base export.Resolution)
	SetPlaying(playing bool, fromTime float64)
	ApplyConfiguration(ctx context.Context, projectPath string, cfg *project.Configuration) error
	GeneratePreview(ctx context.Context, req PreviewRequest) (*PreviewResult, error)
	Export(ctx context.Context, projectPath string, settings *export.Settings, outputPath string, onProgress func(rendered, total int)) error
	StreamFrames(ctx context.Context, onFrame func(frame []byte)) error
}

// EngineError is a non-2xx response from the engine API.
type EngineError struct {
	StatusCode int
	Body       string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors. Client errors mean the request
// itself is wrong and will not succeed on retry.
func (e *EngineError) IsRetryable() bool {
	return e.StatusCode >= 500
}
