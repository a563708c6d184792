// Package project manages the catalog of screen recording bundles: discovery
// on disk, persisted metadata, per-project export settings, and share links.
package project

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusDiscovered = "discovered"
	StatusReady      = "ready"
	StatusMissing    = "missing"
)

// Project is a recording bundle registered with the agent. Path points at
// the .cap directory; Config and Meta mirror the bundle's JSON sidecars.
type Project struct {
	ID           string         `json:"id"`
	Path         string         `json:"path"`
	PrettyName   string         `json:"pretty_name"`
	Platform     string         `json:"platform,omitempty"`
	DurationSecs float64        `json:"duration_secs"`
	FPS          int            `json:"fps"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Config       *Configuration `json:"config,omitempty"`
	Meta         *RecordingMeta `json:"meta,omitempty"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// EffectiveDuration returns edited playback length: the timeline duration
// when segments exist, otherwise the probed track duration.
func (p *Project) EffectiveDuration() float64 {
	if p.Config != nil && p.Config.Timeline != nil && len(p.Config.Timeline.Segments) > 0 {
		return p.Config.Timeline.Duration()
	}
	return p.DurationSecs
}

// ExportRecord is the persisted form of an export run. The in-memory state
// machine lives elsewhere; rows exist so history and interrupted runs survive
// restarts.
type ExportRecord struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	Status         string     `json:"status"`
	Format         string     `json:"format"`
	Destination    string     `json:"destination"`
	SettingsJSON   string     `json:"settings_json,omitempty"`
	OutputPath     string     `json:"output_path,omitempty"`
	Error          string     `json:"error,omitempty"`
	FramesRendered int        `json:"frames_rendered"`
	TotalFrames    int        `json:"total_frames"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

const (
	ExportStatusStarting  = "starting"
	ExportStatusRendering = "rendering"
	ExportStatusUploading = "uploading"
	ExportStatusComplete  = "complete"
	ExportStatusFailed    = "failed"
	ExportStatusCancelled = "cancelled"
)

// ShareLink records a successful upload of a project to the sharing backend.
type ShareLink struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	VideoID   string    `json:"video_id"`
	URL       string    `json:"url"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ShareModeInitial  = "initial"
	ShareModeReupload = "reupload"
)

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BundleExtension is the directory suffix that marks a recording bundle.
const BundleExtension = ".cap"

func NewID() string {
	return uuid.NewString()
}

// IsBundle reports whether a directory name looks like a recording bundle.
func IsBundle(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), BundleExtension)
}
