package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MetaFilename is the per-bundle recording metadata sidecar.
const MetaFilename = "recording-meta.json"

const defaultVideoFPS = 30

// VideoMeta describes one recorded video track. Path is relative to the
// bundle directory.
type VideoMeta struct {
	Path      string   `json:"path"`
	FPS       int      `json:"fps"`
	StartTime *float64 `json:"start_time,omitempty"`
}

// AudioMeta describes one recorded audio track.
type AudioMeta struct {
	Path      string   `json:"path"`
	StartTime *float64 `json:"start_time,omitempty"`
}

// SharingMeta records the cloud video a bundle was uploaded to.
type SharingMeta struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

const (
	UploadStateMultipart  = "MultipartUpload"
	UploadStateSinglePart = "SinglePartUpload"
	UploadStateFailed     = "Failed"
	UploadStateComplete   = "Complete"
)

// UploadState tracks an in-progress or finished upload of the bundle.
type UploadState struct {
	State string `json:"state"`
	CapID string `json:"cap_id,omitempty"`
	Error string `json:"error,omitempty"`
}

// RecordingSegment is one recorded take inside a multi-segment bundle.
type RecordingSegment struct {
	Display VideoMeta  `json:"display"`
	Camera  *VideoMeta `json:"camera,omitempty"`
	Mic     *AudioMeta `json:"mic,omitempty"`
	Cursor  string     `json:"cursor,omitempty"`
}

// RecordingMeta mirrors recording-meta.json. Older single-segment bundles
// carry display/camera/audio at the top level; newer ones carry a segments
// array. Exactly one of the two shapes is populated.
type RecordingMeta struct {
	Platform   string       `json:"platform,omitempty"`
	PrettyName string       `json:"pretty_name"`
	Sharing    *SharingMeta `json:"sharing,omitempty"`
	Upload     *UploadState `json:"upload,omitempty"`

	// Single-segment shape
	Display *VideoMeta `json:"display,omitempty"`
	Camera  *VideoMeta `json:"camera,omitempty"`
	Audio   *AudioMeta `json:"audio,omitempty"`

	// Multi-segment shape
	Segments []RecordingSegment `json:"segments,omitempty"`

	// Bundle directory the meta was loaded from. Not persisted.
	projectPath string
}

// ProjectPath returns the bundle directory this meta was loaded from.
func (m *RecordingMeta) ProjectPath() string {
	return m.projectPath
}

// ResolvePath turns a track path from the meta into an absolute path.
func (m *RecordingMeta) ResolvePath(relative string) string {
	return filepath.Join(m.projectPath, filepath.FromSlash(relative))
}

// DisplayMeta returns the primary display track, from whichever shape the
// bundle uses.
func (m *RecordingMeta) DisplayMeta() *VideoMeta {
	if m.Display != nil {
		return m.Display
	}
	if len(m.Segments) > 0 {
		return &m.Segments[0].Display
	}
	return nil
}

// CameraMeta returns the camera track of the first segment, if any.
func (m *RecordingMeta) CameraMeta() *VideoMeta {
	if m.Camera != nil {
		return m.Camera
	}
	if len(m.Segments) > 0 {
		return m.Segments[0].Camera
	}
	return nil
}

// HasAudio reports whether any segment recorded an audio track.
func (m *RecordingMeta) HasAudio() bool {
	if m.Audio != nil {
		return true
	}
	for _, s := range m.Segments {
		if s.Mic != nil {
			return true
		}
	}
	return false
}

// MaxFPS returns the highest display frame rate across segments. The export
// settings screen uses this as the project's native rate.
func (m *RecordingMeta) MaxFPS() int {
	max := 0
	if m.Display != nil && m.Display.FPS > max {
		max = m.Display.FPS
	}
	for _, s := range m.Segments {
		if s.Display.FPS > max {
			max = s.Display.FPS
		}
	}
	if max == 0 {
		return defaultVideoFPS
	}
	return max
}

// LoadMeta reads recording-meta.json from a bundle directory.
func LoadMeta(bundlePath string) (*RecordingMeta, error) {
	data, err := os.ReadFile(filepath.Join(bundlePath, MetaFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", MetaFilename, err)
	}

	var meta RecordingMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", MetaFilename, err)
	}
	meta.projectPath = bundlePath

	// Legacy bundles predate the fps field
	if meta.Display != nil && meta.Display.FPS == 0 {
		meta.Display.FPS = defaultVideoFPS
	}
	for i := range meta.Segments {
		if meta.Segments[i].Display.FPS == 0 {
			meta.Segments[i].Display.FPS = defaultVideoFPS
		}
	}

	return &meta, nil
}

// SaveMeta writes recording-meta.json back into the bundle.
func SaveMeta(bundlePath string, meta *RecordingMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}
	return os.WriteFile(filepath.Join(bundlePath, MetaFilename), data, 0644)
}
