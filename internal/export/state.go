package export

import "errors"

const (
	PhaseIdle      = "idle"
	PhaseStarting  = "starting"
	PhaseRendering = "rendering"
	PhaseCopying   = "copying"
	PhaseUploading = "uploading"
	PhaseDone      = "done"
)

// State is a snapshot of the job state machine. Exactly one phase is set;
// the progress fields are meaningful only in the phase that owns them.
type State struct {
	Phase          string `json:"phase"`
	ExportID       string `json:"export_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	RenderedFrames int    `json:"rendered_frames,omitempty"`
	TotalFrames    int    `json:"total_frames,omitempty"`
	UploadPercent  int    `json:"upload_percent,omitempty"`
	OutputPath     string `json:"output_path,omitempty"`
	ShareURL       string `json:"share_url,omitempty"`
	// Error from the last run, populated only when Phase is idle after a
	// failure. Cancellation never sets it.
	Error string `json:"error,omitempty"`
}

// Active reports whether a run occupies the single job slot. Done still
// holds the slot until the user dismisses it.
func (s State) Active() bool {
	return s.Phase != PhaseIdle
}

// ErrCancelled is the sentinel for user-initiated cancellation; it is
// swallowed rather than surfaced.
var ErrCancelled = errors.New("export cancelled")

// ErrExportInProgress is returned when a start request arrives while the job slot is
// occupied.
var ErrExportInProgress = errors.New("an export is already in progress")

// IsCancelled distinguishes cooperative cancellation from real failures.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// ValidationError aborts a job before rendering begins; it is surfaced to
// the user but carries no engine failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Eligibility is the upload gate verdict for the link destination.
type Eligibility struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

const (
	ReasonNotAuthenticated = "not_authenticated"
	ReasonUpgradeRequired  = "upgrade_required"
)
