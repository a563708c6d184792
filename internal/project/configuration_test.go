package project

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfiguration(t *testing.T) {
	cfg := DefaultConfiguration()

	if cfg.Background.Source.Type != BackgroundColor {
		t.Errorf("default background type = %s, want %s", cfg.Background.Source.Type, BackgroundColor)
	}
	if len(cfg.Background.Source.Value) != 3 {
		t.Fatalf("default background value length = %d, want 3", len(cfg.Background.Source.Value))
	}
	if cfg.Camera.Position.X != CameraRight || cfg.Camera.Position.Y != CameraBottom {
		t.Errorf("default camera position = %s/%s, want right/bottom", cfg.Camera.Position.X, cfg.Camera.Position.Y)
	}
	if cfg.Camera.Size != CameraSizeDefault {
		t.Errorf("default camera size = %v, want %v", cfg.Camera.Size, CameraSizeDefault)
	}
	if cfg.Cursor.Type != CursorPointer {
		t.Errorf("default cursor type = %s, want %s", cfg.Cursor.Type, CursorPointer)
	}
	if cfg.Timeline != nil {
		t.Error("default configuration should have no timeline")
	}
}

func TestConfigurationNormalize(t *testing.T) {
	cfg := &Configuration{
		Camera: CameraConfiguration{Size: 5},
		Background: BackgroundConfiguration{
			Source: BackgroundSource{Type: BackgroundGradient, From: []int{0, 0, 0}, To: []int{255, 255, 255}},
		},
	}
	cfg.Normalize()

	if cfg.Camera.Size != CameraSizeMin {
		t.Errorf("camera size = %v, want clamped to %v", cfg.Camera.Size, CameraSizeMin)
	}
	if cfg.Background.Source.Angle != 90 {
		t.Errorf("gradient angle = %d, want default 90", cfg.Background.Source.Angle)
	}
	if cfg.Cursor.Type != CursorPointer {
		t.Errorf("cursor type = %s, want filled to %s", cfg.Cursor.Type, CursorPointer)
	}

	cfg.Camera.Size = 95
	cfg.Normalize()
	if cfg.Camera.Size != CameraSizeMax {
		t.Errorf("camera size = %v, want clamped to %v", cfg.Camera.Size, CameraSizeMax)
	}

	empty := &Configuration{}
	empty.Normalize()
	if empty.Camera.Size != CameraSizeDefault {
		t.Errorf("empty camera size = %v, want %v", empty.Camera.Size, CameraSizeDefault)
	}
	if empty.Background.Source.Type != BackgroundColor {
		t.Errorf("empty background type = %s, want %s", empty.Background.Source.Type, BackgroundColor)
	}
}

func TestBackgroundSourceJSON(t *testing.T) {
	raw := `{
		"aspectRatio": "wide",
		"background": {
			"source": {"type": "gradient", "from": [0, 0, 0], "to": [255, 255, 255], "angle": 45},
			"blur": 0.5,
			"padding": 10,
			"rounding": 8,
			"inset": 0
		},
		"camera": {"hide": false, "mirror": true, "position": {"x": "left", "y": "top"}, "rounding": 100, "shadow": 50, "size": 40},
		"audio": {"mute": true, "improve": false},
		"cursor": {"hideWhenIdle": true, "size": 120, "type": "circle"},
		"hotkeys": {"show": false},
		"timeline": {"segments": [{"timescale": 1, "start": 0, "end": 10}]}
	}`

	var cfg Configuration
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}

	if cfg.AspectRatio != AspectRatioWide {
		t.Errorf("aspectRatio = %s, want wide", cfg.AspectRatio)
	}
	if cfg.Background.Source.Type != BackgroundGradient {
		t.Errorf("background type = %s, want gradient", cfg.Background.Source.Type)
	}
	if cfg.Background.Source.Angle != 45 {
		t.Errorf("gradient angle = %d, want 45", cfg.Background.Source.Angle)
	}
	if !cfg.Camera.Mirror {
		t.Error("camera.mirror = false, want true")
	}
	if cfg.Camera.Position.X != CameraLeft {
		t.Errorf("camera position x = %s, want left", cfg.Camera.Position.X)
	}
	if !cfg.Cursor.HideWhenIdle {
		t.Error("cursor.hideWhenIdle = false, want true")
	}
	if cfg.Timeline == nil || len(cfg.Timeline.Segments) != 1 {
		t.Fatal("timeline segments not parsed")
	}
}

func TestBackgroundSourceIsTransparent(t *testing.T) {
	alpha128 := 128
	alpha255 := 255

	tests := []struct {
		name   string
		source BackgroundSource
		want   bool
	}{
		{"opaque color", BackgroundSource{Type: BackgroundColor, Value: []int{0, 0, 0}}, false},
		{"explicit opaque alpha", BackgroundSource{Type: BackgroundColor, Value: []int{0, 0, 0}, Alpha: &alpha255}, false},
		{"translucent color", BackgroundSource{Type: BackgroundColor, Value: []int{0, 0, 0}, Alpha: &alpha128}, true},
		{"image with path", BackgroundSource{Type: BackgroundImage, Path: "/bg.png"}, false},
		{"image without path", BackgroundSource{Type: BackgroundImage}, true},
		{"gradient", BackgroundSource{Type: BackgroundGradient}, false},
		{"wallpaper", BackgroundSource{Type: BackgroundWallpaper, ID: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.source.IsTransparent(); got != tt.want {
				t.Errorf("IsTransparent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimelineDuration(t *testing.T) {
	timeline := TimelineConfiguration{
		Segments: []TimelineSegment{
			{Timescale: 1, Start: 0, End: 10},
			{Timescale: 2, Start: 10, End: 20},
		},
	}

	// 10s at 1x plus 10s at 2x
	want := 15.0
	if got := timeline.Duration(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Duration() = %v, want %v", got, want)
	}
}

func TestTimelineRecordingTime(t *testing.T) {
	timeline := TimelineConfiguration{
		Segments: []TimelineSegment{
			{Timescale: 1, Start: 5, End: 15},
			{Timescale: 2, Start: 20, End: 30},
		},
	}

	// Inside the first segment
	got, ok := timeline.RecordingTime(3)
	if !ok || math.Abs(got-8) > 1e-9 {
		t.Errorf("RecordingTime(3) = %v, %v, want 8, true", got, ok)
	}

	// Inside the second segment: tick 12 is 2s past the first segment's 10s,
	// scaled by 2x from start 20
	got, ok = timeline.RecordingTime(12)
	if !ok || math.Abs(got-24) > 1e-9 {
		t.Errorf("RecordingTime(12) = %v, %v, want 24, true", got, ok)
	}

	// Past the end
	if _, ok := timeline.RecordingTime(100); ok {
		t.Error("RecordingTime(100) should report false")
	}
}

func TestTimelineSegmentZeroTimescale(t *testing.T) {
	s := TimelineSegment{Timescale: 0, Start: 0, End: 10}
	if got := s.Duration(); got != 0 {
		t.Errorf("Duration() with zero timescale = %v, want 0", got)
	}
}

func TestLoadConfiguration_MissingFileReturnsDefault(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := LoadConfiguration(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.Background.Source.Type != BackgroundColor {
		t.Errorf("missing config should yield default, got background type %s", cfg.Background.Source.Type)
	}
}

func TestLoadConfiguration_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	original := DefaultConfiguration()
	original.AspectRatio = AspectRatioSquare
	original.Camera.Size = 50
	if err := SaveConfiguration(tmpDir, original); err != nil {
		t.Fatalf("SaveConfiguration() error = %v", err)
	}

	loaded, err := LoadConfiguration(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if loaded.AspectRatio != AspectRatioSquare {
		t.Errorf("aspectRatio = %s, want square", loaded.AspectRatio)
	}
	if loaded.Camera.Size != 50 {
		t.Errorf("camera size = %v, want 50", loaded.Camera.Size)
	}
}

func TestLoadConfiguration_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFilename), []byte("{not json"), 0644); err != nil {
		t.Fatalf("write error = %v", err)
	}

	if _, err := LoadConfiguration(tmpDir); err == nil {
		t.Error("LoadConfiguration() should fail on invalid JSON")
	}
}
