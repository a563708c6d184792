package preview

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/reelkit/reelkit-agent/internal/engine"
	"github.com/reelkit/reelkit-agent/internal/export"
)

// PreviewGenerator is the engine's fast-preview endpoint.
type PreviewGenerator interface {
	GeneratePreview(ctx context.Context, req engine.PreviewRequest) (*engine.PreviewResult, error)
}

// EstimateKey identifies one render-affecting settings tuple.
type EstimateKey struct {
	FPS    int
	Width  int
	Height int
	BPP    float64
}

// EstimateEntry is a resolved estimate plus its probe thumbnail. FrameTime
// records the playhead the probe frame was rendered at, so a later request
// can tell whether the thumbnail still represents the current position.
type EstimateEntry struct {
	FrameRenderTimeMs float64
	TotalFrames       int
	EstimatedSizeMb   float64
	ImageJPEG         []byte
	FrameTime         float64
}

const (
	estimateDebounce  = 300 * time.Millisecond
	estimateRetryStep = 200 * time.Millisecond
	estimateRetries   = 2
)

// EstimateCache memoizes export estimates per settings tuple for one editor
// session. Lookups serve a cached entry immediately; a background fetch
// refreshes it only when the cached probe frame no longer matches the
// playhead. Fetch triggers are debounced so a run of control adjustments
// costs one engine round trip. Entries are never evicted while the session
// lives; Close releases them.
type EstimateCache struct {
	generator   PreviewGenerator
	projectPath string
	logger      *slog.Logger

	// Overridable before the first Request; tests shorten them.
	DebounceInterval time.Duration
	RetryStep        time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	entries    map[EstimateKey]*EstimateEntry
	debounced  func(func())
	currentKey EstimateKey
	hasCurrent bool
	playhead   float64
	onResult   func(EstimateKey, *EstimateEntry)
	closed     bool
}

func NewEstimateCache(generator PreviewGenerator, projectPath string, logger *slog.Logger) *EstimateCache {
	ctx, cancel := context.WithCancel(context.Background())
	return &EstimateCache{
		generator:        generator,
		projectPath:      projectPath,
		logger:           logger,
		DebounceInterval: estimateDebounce,
		RetryStep:        estimateRetryStep,
		ctx:              ctx,
		cancel:           cancel,
		entries:          make(map[EstimateKey]*EstimateEntry),
	}
}

// SetOnResult registers the delivery callback. Only results for the key most
// recently requested are delivered; superseded fetches still populate the
// cache silently.
func (c *EstimateCache) SetOnResult(fn func(EstimateKey, *EstimateEntry)) {
	c.mu.Lock()
	c.onResult = fn
	c.mu.Unlock()
}

// SetPlayhead records the representative frame time for future probes.
func (c *EstimateCache) SetPlayhead(t float64) {
	c.mu.Lock()
	c.playhead = t
	c.mu.Unlock()
}

// Request asks for an estimate for the given settings tuple. A cached entry
// for the exact key is returned (and delivered) immediately; a fetch is
// scheduled through the debounce window unless the cached entry already
// represents the current playhead.
func (c *EstimateCache) Request(fps, width, height int, bpp float64) *EstimateEntry {
	key := EstimateKey{FPS: fps, Width: width, Height: height, BPP: bpp}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.debounced == nil {
		c.debounced = debounce.New(c.DebounceInterval)
	}
	c.currentKey = key
	c.hasCurrent = true
	frameTime := c.playhead
	entry := c.entries[key]
	deliver := c.onResult
	c.mu.Unlock()

	if entry != nil {
		if deliver != nil {
			deliver(key, entry)
		}
		// The cached probe already shows the current playhead: nothing to
		// revalidate, the hit is final.
		if entry.FrameTime == frameTime {
			return entry
		}
	}

	c.mu.Lock()
	if !c.closed {
		c.debounced(func() {
			go c.fetch(key, frameTime)
		})
	}
	c.mu.Unlock()

	return entry
}

// Close cancels in-flight fetches and releases all cached thumbnails.
func (c *EstimateCache) Close() {
	c.cancel()
	c.mu.Lock()
	c.closed = true
	c.entries = nil
	c.mu.Unlock()
}

// fetch asks the engine for a probe frame, retrying transient failures with
// linearly increasing backoff. After the retries are exhausted the previous
// state stands and nothing is surfaced.
func (c *EstimateCache) fetch(key EstimateKey, frameTime float64) {
	req := engine.PreviewRequest{
		ProjectPath:  c.projectPath,
		FrameTime:    frameTime,
		FPS:          key.FPS,
		Resolution:   export.Resolution{Width: key.Width, Height: key.Height},
		BitsPerPixel: key.BPP,
	}

	var result *engine.PreviewResult
	var err error
	for attempt := 0; attempt <= estimateRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.RetryStep * time.Duration(attempt)):
			}
		}
		result, err = c.generator.GeneratePreview(c.ctx, req)
		if err == nil {
			break
		}
		if c.ctx.Err() != nil {
			return
		}
	}
	if err != nil {
		c.logger.Warn("preview estimate fetch failed", "fps", key.FPS, "width", key.Width, "height", key.Height, "error", err)
		return
	}

	image, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		c.logger.Warn("preview image from engine is not valid base64", "error", err)
		image = nil
	}

	entry := &EstimateEntry{
		FrameRenderTimeMs: result.FrameRenderTimeMs,
		TotalFrames:       result.TotalFrames,
		EstimatedSizeMb:   result.EstimatedSizeMb,
		ImageJPEG:         image,
		FrameTime:         frameTime,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.entries[key] = entry
	deliver := c.onResult
	current := c.hasCurrent && key == c.currentKey
	c.mu.Unlock()

	// A superseded key keeps its cache entry for later reuse but stays
	// silent: only the live key reaches the callback.
	if current && deliver != nil {
		deliver(key, entry)
	}
}
