package preview

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/reelkit/reelkit-agent/internal/export"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type emission struct {
	frame uint32
	fps   uint32
}

type fakeEmitter struct {
	mu    sync.Mutex
	calls []emission
}

func (f *fakeEmitter) EmitRenderFrame(frameNumber, fps uint32, base export.Resolution) {
	f.mu.Lock()
	f.calls = append(f.calls, emission{frame: frameNumber, fps: fps})
	f.mu.Unlock()
}

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEmitter) last() (emission, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return emission{}, false
	}
	return f.calls[len(f.calls)-1], true
}

var testBase = export.Resolution{Width: 1920, Height: 1080}

// A burst faster than the throttle window must end with an emission for the
// final time, even though intermediate values are dropped.
func TestScheduler_BurstEndsWithFinalTime(t *testing.T) {
	emitter := &fakeEmitter{}
	s := NewScheduler(emitter, 50, testBase, testLogger())
	defer s.Close()

	for i := 0; i < 20; i++ {
		s.Notify(float64(i) * 0.1)
	}

	time.Sleep(150 * time.Millisecond)

	last, ok := emitter.last()
	if !ok {
		t.Fatal("no emissions after burst")
	}
	// Final notify was t=1.9 at 50fps.
	if last.frame != 95 {
		t.Errorf("last emitted frame = %d, want 95", last.frame)
	}
	if emitter.count() >= 20 {
		t.Errorf("emissions = %d, throttle dropped nothing", emitter.count())
	}
}

func TestScheduler_LeadingEdgeIsPrompt(t *testing.T) {
	emitter := &fakeEmitter{}
	s := NewScheduler(emitter, 50, testBase, testLogger())
	defer s.Close()

	s.Notify(1.0)

	// Well before the 36ms trailing debounce.
	time.Sleep(10 * time.Millisecond)
	if emitter.count() != 1 {
		t.Fatalf("emissions after 10ms = %d, want 1 (leading edge)", emitter.count())
	}
	last, _ := emitter.last()
	if last.frame != 50 {
		t.Errorf("leading edge frame = %d, want 50", last.frame)
	}
}

func TestScheduler_ContinuousInputIsRateBounded(t *testing.T) {
	emitter := &fakeEmitter{}
	s := NewScheduler(emitter, 50, testBase, testLogger())
	defer s.Close()

	// ~100ms of input at 2ms spacing: 50 notifies over five 20ms windows.
	final := 0.0
	for i := 0; i < 50; i++ {
		final = float64(i) * 0.02
		s.Notify(final)
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	count := emitter.count()
	if count < 2 {
		t.Errorf("emissions = %d, want several during continuous input", count)
	}
	if count > 15 {
		t.Errorf("emissions = %d, throttle did not bound the rate", count)
	}
	last, _ := emitter.last()
	want := uint32(final*50 + 0.5)
	if last.frame != want {
		t.Errorf("last frame = %d, want %d (final settled time)", last.frame, want)
	}
}

func TestScheduler_SuppressedDiscardsInput(t *testing.T) {
	emitter := &fakeEmitter{}
	s := NewScheduler(emitter, 50, testBase, testLogger())
	defer s.Close()

	s.SetSuppressed(true)
	for i := 0; i < 5; i++ {
		s.Notify(float64(i))
	}
	time.Sleep(100 * time.Millisecond)
	if emitter.count() != 0 {
		t.Fatalf("emissions while suppressed = %d, want 0", emitter.count())
	}

	s.SetSuppressed(false)
	s.Notify(2.0)
	time.Sleep(100 * time.Millisecond)
	if emitter.count() == 0 {
		t.Fatal("no emissions after suppression lifted")
	}
}

func TestScheduler_RefreshReemitsPendingTime(t *testing.T) {
	emitter := &fakeEmitter{}
	s := NewScheduler(emitter, 50, testBase, testLogger())
	defer s.Close()

	s.Notify(1.5)
	time.Sleep(100 * time.Millisecond)
	before := emitter.count()

	s.Refresh()
	time.Sleep(50 * time.Millisecond)

	if emitter.count() != before+1 {
		t.Fatalf("emissions after Refresh = %d, want %d", emitter.count(), before+1)
	}
	last, _ := emitter.last()
	if last.frame != 75 {
		t.Errorf("refreshed frame = %d, want 75", last.frame)
	}
}

func TestScheduler_RefreshBeforeAnyNotifyIsNoop(t *testing.T) {
	emitter := &fakeEmitter{}
	s := NewScheduler(emitter, 50, testBase, testLogger())
	defer s.Close()

	s.Refresh()
	time.Sleep(50 * time.Millisecond)
	if emitter.count() != 0 {
		t.Fatalf("emissions = %d, want 0", emitter.count())
	}
}

func TestScheduler_SetRateChangesEmittedRate(t *testing.T) {
	emitter := &fakeEmitter{}
	s := NewScheduler(emitter, 25, testBase, testLogger())
	defer s.Close()

	s.SetRate(60)
	s.Notify(1.0)
	time.Sleep(100 * time.Millisecond)

	last, ok := emitter.last()
	if !ok {
		t.Fatal("no emissions")
	}
	if last.fps != 60 {
		t.Errorf("emitted fps = %d, want 60", last.fps)
	}
	if last.frame != 60 {
		t.Errorf("frame = %d, want 60 (t=1.0 at 60fps)", last.frame)
	}
}

func TestScheduler_CloseStopsEmissions(t *testing.T) {
	emitter := &fakeEmitter{}
	s := NewScheduler(emitter, 50, testBase, testLogger())

	s.Close()
	s.Notify(1.0)
	time.Sleep(100 * time.Millisecond)
	if emitter.count() != 0 {
		t.Fatalf("emissions after Close = %d, want 0", emitter.count())
	}
}
