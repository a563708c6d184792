package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFilename is the per-bundle editor configuration sidecar.
const ConfigFilename = "project-config.json"

const (
	AspectRatioWide     = "wide"
	AspectRatioVertical = "vertical"
	AspectRatioSquare   = "square"
	AspectRatioClassic  = "classic"
	AspectRatioTall     = "tall"
)

const (
	BackgroundWallpaper = "wallpaper"
	BackgroundImage     = "image"
	BackgroundColor     = "color"
	BackgroundGradient  = "gradient"
)

// BackgroundSource is a tagged union over the four background kinds. Only the
// fields belonging to Type are meaningful.
type BackgroundSource struct {
	Type  string `json:"type"`
	ID    int    `json:"id,omitempty"`    // wallpaper
	Path  string `json:"path,omitempty"`  // image
	Value []int  `json:"value,omitempty"` // color: [r, g, b]
	Alpha *int   `json:"alpha,omitempty"` // color: 0-255, nil means opaque
	From  []int  `json:"from,omitempty"`  // gradient
	To    []int  `json:"to,omitempty"`    // gradient
	Angle int    `json:"angle,omitempty"` // gradient, degrees
}

// IsTransparent reports whether rendering with this source produces frames
// with an alpha channel, which rules out MP4 output.
func (b BackgroundSource) IsTransparent() bool {
	if b.Type == BackgroundColor && b.Alpha != nil && *b.Alpha < 255 {
		return true
	}
	return b.Type == BackgroundImage && b.Path == ""
}

type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Crop struct {
	Position XY `json:"position"`
	Size     XY `json:"size"`
}

func (c Crop) AspectRatio() float64 {
	if c.Size.Y == 0 {
		return 0
	}
	return c.Size.X / c.Size.Y
}

type BackgroundConfiguration struct {
	Source   BackgroundSource `json:"source"`
	Blur     float64          `json:"blur"`
	Padding  float64          `json:"padding"`
	Rounding float64          `json:"rounding"`
	Inset    float64          `json:"inset"`
	Crop     *Crop            `json:"crop,omitempty"`
}

const (
	CameraLeft   = "left"
	CameraCenter = "center"
	CameraRight  = "right"
	CameraTop    = "top"
	CameraBottom = "bottom"
)

type CameraPosition struct {
	X string `json:"x"`
	Y string `json:"y"`
}

type CameraConfiguration struct {
	Hide     bool           `json:"hide"`
	Mirror   bool           `json:"mirror"`
	Position CameraPosition `json:"position"`
	Rounding float64        `json:"rounding"`
	Shadow   float64        `json:"shadow"`
	Size     float64        `json:"size"` // percent of frame height, 20-80
}

const (
	CameraSizeMin     = 20.0
	CameraSizeMax     = 80.0
	CameraSizeDefault = 30.0
)

type AudioConfiguration struct {
	Mute    bool `json:"mute"`
	Improve bool `json:"improve"`
}

const (
	CursorPointer = "pointer"
	CursorCircle  = "circle"
)

type CursorConfiguration struct {
	HideWhenIdle bool    `json:"hideWhenIdle"`
	Size         float64 `json:"size"`
	Type         string  `json:"type"`
}

type HotkeysConfiguration struct {
	Show bool `json:"show"`
}

type TimelineSegment struct {
	Timescale float64 `json:"timescale"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Duration returns the segment's contribution to playback time. A timescale
// above 1.0 speeds the segment up and shortens it.
func (s TimelineSegment) Duration() float64 {
	if s.Timescale == 0 {
		return 0
	}
	return (s.End - s.Start) / s.Timescale
}

type TimelineConfiguration struct {
	Segments []TimelineSegment `json:"segments"`
}

// Duration returns total edited playback time across all segments.
func (t TimelineConfiguration) Duration() float64 {
	var total float64
	for _, s := range t.Segments {
		total += s.Duration()
	}
	return total
}

// RecordingTime maps an edited playback time back to a source recording time,
// or returns false when the tick falls past the last segment.
func (t TimelineConfiguration) RecordingTime(tick float64) (float64, bool) {
	var accum float64
	for _, s := range t.Segments {
		d := s.Duration()
		if tick < accum+d {
			offset := tick - accum
			if offset > d {
				return 0, false
			}
			return s.Start + offset*s.Timescale, true
		}
		accum += d
	}
	return 0, false
}

// Configuration is the editor's per-project render configuration, persisted
// as project-config.json inside the bundle.
type Configuration struct {
	AspectRatio string                  `json:"aspectRatio,omitempty"`
	Background  BackgroundConfiguration `json:"background"`
	Camera      CameraConfiguration     `json:"camera"`
	Audio       AudioConfiguration      `json:"audio"`
	Cursor      CursorConfiguration     `json:"cursor"`
	Hotkeys     HotkeysConfiguration    `json:"hotkeys"`
	Timeline    *TimelineConfiguration  `json:"timeline,omitempty"`
}

// DefaultConfiguration returns the configuration a fresh recording starts
// with: solid color background, camera bottom-right at 30%.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		Background: BackgroundConfiguration{
			Source: BackgroundSource{
				Type:  BackgroundColor,
				Value: []int{71, 133, 255},
			},
		},
		Camera: CameraConfiguration{
			Position: CameraPosition{X: CameraRight, Y: CameraBottom},
			Size:     CameraSizeDefault,
		},
		Cursor: CursorConfiguration{
			Size: 100,
			Type: CursorPointer,
		},
	}
}

// Normalize clamps out-of-range values in place and fills omitted defaults.
func (c *Configuration) Normalize() {
	if c.Camera.Size == 0 {
		c.Camera.Size = CameraSizeDefault
	}
	if c.Camera.Size < CameraSizeMin {
		c.Camera.Size = CameraSizeMin
	}
	if c.Camera.Size > CameraSizeMax {
		c.Camera.Size = CameraSizeMax
	}
	if c.Background.Source.Type == "" {
		c.Background.Source = BackgroundSource{
			Type:  BackgroundColor,
			Value: []int{71, 133, 255},
		}
	}
	if c.Background.Source.Type == BackgroundGradient && c.Background.Source.Angle == 0 {
		c.Background.Source.Angle = 90
	}
	if c.Cursor.Type == "" {
		c.Cursor.Type = CursorPointer
	}
}

// LoadConfiguration reads project-config.json from a bundle directory.
// A missing file yields the default configuration, matching editor behavior
// for recordings that have never been opened.
func LoadConfiguration(bundlePath string) (*Configuration, error) {
	data, err := os.ReadFile(filepath.Join(bundlePath, ConfigFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfiguration(), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", ConfigFilename, err)
	}

	var cfg Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFilename, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// SaveConfiguration writes project-config.json back into the bundle.
func SaveConfiguration(bundlePath string, cfg *Configuration) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return os.WriteFile(filepath.Join(bundlePath, ConfigFilename), data, 0644)
}
