package api

import (
	"time"

	"github.com/reelkit/reelkit-agent/internal/cloud"
	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/project"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State         string       `json:"state"`
	Export        export.State `json:"export"`
	EngineOK      bool         `json:"engine_ok"`
	Authenticated bool         `json:"authenticated"`
	ProjectsCount int          `json:"projects_count"`
	FrameClients  int          `json:"frame_clients"`
}

type AuthTokenRequest struct {
	AccessToken string `json:"access_token"`
}

type RegisterProjectRequest struct {
	Path string `json:"path"`
}

type ProjectResponse struct {
	ID           string  `json:"id"`
	Path         string  `json:"path"`
	PrettyName   string  `json:"pretty_name"`
	DurationSecs float64 `json:"duration_secs"`
	FPS          int     `json:"fps"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Status       string  `json:"status"`
	SharedURL    string  `json:"shared_url,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

type ProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

type ScanResponse struct {
	Added   int `json:"added"`
	Missing int `json:"missing"`
}

type PreviewNotifyRequest struct {
	Time float64 `json:"time"`
}

type PlaybackRequest struct {
	Playing bool    `json:"playing"`
	Time    float64 `json:"time"`
}

type ExportStartRequest struct {
	Settings *export.Settings `json:"settings"`
	SavePath string           `json:"save_path,omitempty"`
}

type ExportStartResponse struct {
	ExportID string `json:"export_id"`
}

type ShareResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	VideoID   string `json:"video_id"`
	URL       string `json:"url"`
	Mode      string `json:"mode"`
	CreatedAt string `json:"created_at"`
}

type SharesResponse struct {
	Shares []ShareResponse `json:"shares"`
}

type OrganizationsResponse struct {
	Organizations []cloud.Organization `json:"organizations"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ProjectToResponse(p *project.Project) ProjectResponse {
	resp := ProjectResponse{
		ID:           p.ID,
		Path:         p.Path,
		PrettyName:   p.PrettyName,
		DurationSecs: p.EffectiveDuration(),
		FPS:          p.FPS,
		Width:        p.Width,
		Height:       p.Height,
		Status:       p.Status,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
	if p.Meta != nil && p.Meta.Sharing != nil {
		resp.SharedURL = p.Meta.Sharing.Link
	}
	return resp
}

func ShareToResponse(l *project.ShareLink) ShareResponse {
	return ShareResponse{
		ID:        l.ID,
		ProjectID: l.ProjectID,
		VideoID:   l.VideoID,
		URL:       l.URL,
		Mode:      l.Mode,
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
}
