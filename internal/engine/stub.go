package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/project"
)

// Stub simulates the engine for headless development and tests: previews are
// computed from the estimate math with a placeholder thumbnail, and exports
// write a marker file while ticking progress at a configurable pace.
type Stub struct {
	logger *slog.Logger

	// FrameDelay is the simulated per-frame render cost.
	FrameDelay time.Duration
	// SimulatedDuration stands in for the project duration the stub cannot
	// probe.
	SimulatedDuration float64

	mu          sync.Mutex
	subscribers []chan []byte
}

func NewStub(logger *slog.Logger) *Stub {
	return &Stub{
		logger:            logger,
		FrameDelay:        time.Millisecond,
		SimulatedDuration: 3.0,
	}
}

func (s *Stub) Ping(ctx context.Context) error {
	return nil
}

// EmitRenderFrame synthesizes a placeholder frame and pushes it to every
// open frame stream, so the relay path works without a real engine.
func (s *Stub) EmitRenderFrame(frameNumber, fps uint32, base export.Resolution) {
	s.logger.Debug("engine stub: render frame", "frame", frameNumber, "fps", fps)
	frame := stubFrame(8, 8)
	s.mu.Lock()
	for _, ch := range s.subscribers {
		select {
		case ch <- frame:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Stub) SetPlaying(playing bool, fromTime float64) {
	s.logger.Debug("engine stub: playback", "playing", playing, "time", fromTime)
}

func (s *Stub) ApplyConfiguration(ctx context.Context, projectPath string, cfg *project.Configuration) error {
	s.logger.Debug("engine stub: configuration applied", "project", filepath.Base(projectPath))
	return nil
}

// GeneratePreview answers with the same figures the real engine would derive
// for these settings, plus a single-color placeholder frame encoded at the
// JPEG quality the bits-per-pixel level maps to.
func (s *Stub) GeneratePreview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settings := &export.Settings{
		Format:     export.FormatMp4,
		FPS:        req.FPS,
		Resolution: req.Resolution,
		CustomBPP:  &req.BitsPerPixel,
	}
	est := export.ComputeEstimate(settings, s.SimulatedDuration)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	shade := color.RGBA{R: 71, G: 133, B: 255, A: 255}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, shade)
		}
	}

	var buf bytes.Buffer
	quality := export.BppToJPEGQuality(req.BitsPerPixel)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode preview frame: %w", err)
	}

	return &PreviewResult{
		ImageBase64:       base64.StdEncoding.EncodeToString(buf.Bytes()),
		FrameRenderTimeMs: float64(s.FrameDelay.Microseconds()) / 1000.0,
		TotalFrames:       est.TotalFrames,
		EstimatedSizeMb:   est.EstimatedSizeMb,
	}, nil
}

// Export simulates a frame-by-frame render, observing cancellation at frame
// boundaries the way the real engine does.
func (s *Stub) Export(ctx context.Context, projectPath string, settings *export.Settings, outputPath string, onProgress func(rendered, total int)) error {
	total := export.TotalFrames(s.SimulatedDuration, settings.FPS)
	if total < 1 {
		total = 1
	}

	s.logger.Info("engine stub: export begins", "frames", total, "output", outputPath)

	for frame := 1; frame <= total; frame++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.FrameDelay):
		}
		if frame%10 == 0 || frame == total {
			onProgress(frame, total)
		}
	}

	marker := fmt.Sprintf("stub render of %s: %d frames at %dfps\n", filepath.Base(projectPath), total, settings.FPS)
	if err := os.WriteFile(outputPath, []byte(marker), 0644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

func (s *Stub) StreamFrames(ctx context.Context, onFrame func(frame []byte)) error {
	ch := make(chan []byte, 8)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		for i, sub := range s.subscribers {
			if sub == ch {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-ch:
			onFrame(frame)
		}
	}
}

// stubFrame builds a solid frame in the engine's wire format: BGRA pixel
// rows followed by a little-endian [stride, height, width] trailer.
func stubFrame(width, height int) []byte {
	stride := width * 4
	buf := make([]byte, stride*height+12)
	for i := 0; i < stride*height; i += 4 {
		buf[i] = 255   // B
		buf[i+1] = 133 // G
		buf[i+2] = 71  // R
		buf[i+3] = 255 // A
	}
	binary.LittleEndian.PutUint32(buf[stride*height:], uint32(stride))
	binary.LittleEndian.PutUint32(buf[stride*height+4:], uint32(height))
	binary.LittleEndian.PutUint32(buf[stride*height+8:], uint32(width))
	return buf
}
