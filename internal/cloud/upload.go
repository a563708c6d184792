package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/project"
)

// Uploader drives the three-step share flow: register a video record,
// stream the artifact to the presigned destination, finalize for a URL.
type Uploader struct {
	client Client
	logger *slog.Logger
}

func NewUploader(client Client, logger *slog.Logger) *Uploader {
	return &Uploader{client: client, logger: logger}
}

func (u *Uploader) Upload(ctx context.Context, p *project.Project, artifactPath, mode, organizationID string, onProgress func(fraction float64)) (*export.ShareResult, error) {
	req := CreateVideoRequest{
		Name:           p.PrettyName,
		DurationSecs:   p.EffectiveDuration(),
		Width:          p.Width,
		Height:         p.Height,
		OrganizationID: organizationID,
	}
	if mode == project.ShareModeReupload {
		if p.Meta == nil || p.Meta.Sharing == nil || p.Meta.Sharing.ID == "" {
			return nil, errors.New("reupload requested but project has no existing share")
		}
		req.VideoID = p.Meta.Sharing.ID
	}

	rec, err := u.client.CreateVideo(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create video record: %w", err)
	}

	if err := u.client.UploadArtifact(ctx, rec.UploadURL, artifactPath, onProgress); err != nil {
		return nil, fmt.Errorf("stream artifact: %w", err)
	}

	shareURL, err := u.client.CompleteVideo(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("finalize video: %w", err)
	}

	u.logger.Info("artifact uploaded", "video_id", rec.ID, "mode", mode)
	return &export.ShareResult{VideoID: rec.ID, URL: shareURL}, nil
}

// progressReader reports cumulative read progress as a 0..1 fraction.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	onProgress func(float64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.onProgress != nil && pr.total > 0 {
			pr.onProgress(float64(pr.read) / float64(pr.total))
		}
	}
	return n, err
}
