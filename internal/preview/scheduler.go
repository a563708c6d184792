// Package preview drives the interactive edit preview: a rate-limited
// scheduler that turns playhead and configuration churn into engine frame
// requests, and a settings-keyed cache for export estimates and their probe
// thumbnails.
package preview

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/reelkit/reelkit-agent/internal/export"
)

// FrameEmitter is the one engine capability the scheduler uses.
type FrameEmitter interface {
	EmitRenderFrame(frameNumber, fps uint32, base export.Resolution)
}

// debounceSlack is added to the frame interval for the trailing edge, so the
// final flush lands just after the last throttle window.
const debounceSlack = 16 * time.Millisecond

// Scheduler bounds the rate of preview frame requests. Two timers share one
// pending time slot: a leading-edge throttle at the frame interval gives
// responsive updates during continuous input, and a trailing debounce at the
// interval plus slack guarantees the final settled time is always rendered.
// The debounce timer resets on every call; the throttle window does not.
type Scheduler struct {
	emitter FrameEmitter
	base    export.Resolution
	logger  *slog.Logger

	mu         sync.Mutex
	fps        uint32
	interval   time.Duration
	debounced  func(func())
	current    float64
	hasCurrent bool
	windowOpen bool
	suppressed bool
	closed     bool
}

func NewScheduler(emitter FrameEmitter, fps int, base export.Resolution, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		emitter: emitter,
		base:    base,
		logger:  logger,
	}
	s.setRateLocked(fps)
	return s
}

// Notify records a new desired preview time. It never emits synchronously:
// the first call in a throttle window emits asynchronously, later calls in
// the window only update the pending slot, and the trailing debounce emits
// the final value once input goes quiet.
func (s *Scheduler) Notify(time float64) {
	s.mu.Lock()
	if s.suppressed || s.closed {
		s.mu.Unlock()
		return
	}

	s.current = time
	s.hasCurrent = true

	// Trailing edge: reset on every call.
	s.debounced(s.flush)

	// Leading edge: at most one emission per window.
	if !s.windowOpen {
		s.windowOpen = true
		s.scheduleWindowClose()
		s.mu.Unlock()
		go s.emit(time)
		return
	}
	s.mu.Unlock()
}

// Refresh re-emits the current pending time. Called after an awaited engine
// configuration push resolves, so the visible frame reflects the new
// configuration rather than a stale one.
func (s *Scheduler) Refresh() {
	s.mu.Lock()
	if s.suppressed || s.closed || !s.hasCurrent {
		s.mu.Unlock()
		return
	}
	t := s.current
	s.windowOpen = true
	s.scheduleWindowClose()
	s.mu.Unlock()
	go s.emit(t)
}

// SetSuppressed toggles playback suppression. While playing, the engine
// drives frames itself and Notify input is discarded entirely.
func (s *Scheduler) SetSuppressed(suppressed bool) {
	s.mu.Lock()
	s.suppressed = suppressed
	s.mu.Unlock()
}

// SetRate rebuilds both timer windows for a new project frame rate.
func (s *Scheduler) SetRate(fps int) {
	s.mu.Lock()
	s.setRateLocked(fps)
	s.mu.Unlock()
}

// Close stops all future emissions. Already-scheduled timers fire into a
// closed scheduler and do nothing.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Scheduler) setRateLocked(fps int) {
	if fps <= 0 {
		fps = 30
	}
	s.fps = uint32(fps)
	s.interval = time.Second / time.Duration(fps)
	s.debounced = debounce.New(s.interval + debounceSlack)
}

func (s *Scheduler) scheduleWindowClose() {
	time.AfterFunc(s.interval, func() {
		s.mu.Lock()
		s.windowOpen = false
		s.mu.Unlock()
	})
}

// flush is the trailing-edge emission: the latest pending time wins.
func (s *Scheduler) flush() {
	s.mu.Lock()
	if s.suppressed || s.closed || !s.hasCurrent {
		s.mu.Unlock()
		return
	}
	t := s.current
	s.mu.Unlock()
	s.emit(t)
}

func (s *Scheduler) emit(t float64) {
	s.mu.Lock()
	if s.suppressed || s.closed {
		s.mu.Unlock()
		return
	}
	fps := s.fps
	s.mu.Unlock()

	if t < 0 {
		t = 0
	}
	frame := uint32(math.Round(t * float64(fps)))
	s.emitter.EmitRenderFrame(frame, fps, s.base)
}
