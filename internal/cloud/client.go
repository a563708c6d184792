package cloud

import (
	"context"
	"log/slog"
)

// Client is the sharing backend surface the agent consumes: video record
// lifecycle, artifact streaming, entitlement, and workspace listing.
type Client interface {
	CreateVideo(ctx context.Context, req CreateVideoRequest) (*VideoRecord, error)
	UploadArtifact(ctx context.Context, uploadURL, artifactPath string, onProgress func(float64)) error
	CompleteVideo(ctx context.Context, videoID string) (string, error)
	FetchPlan(ctx context.Context) (*Plan, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
}

// StubClient is a logged no-op backend for development without cloud access.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

func (c *StubClient) CreateVideo(ctx context.Context, req CreateVideoRequest) (*VideoRecord, error) {
	c.logger.Info("cloud stub: video record requested", "name", req.Name, "reupload", req.VideoID != "")
	id := req.VideoID
	if id == "" {
		id = "stub-video"
	}
	return &VideoRecord{ID: id}, nil
}

func (c *StubClient) UploadArtifact(ctx context.Context, uploadURL, artifactPath string, onProgress func(float64)) error {
	c.logger.Info("cloud stub: artifact upload requested", "path", artifactPath)
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

func (c *StubClient) CompleteVideo(ctx context.Context, videoID string) (string, error) {
	c.logger.Info("cloud stub: video finalize requested", "video_id", videoID)
	return "https://share.reelkit.dev/v/" + videoID, nil
}

func (c *StubClient) FetchPlan(ctx context.Context) (*Plan, error) {
	c.logger.Debug("cloud stub: plan check requested")
	return &Plan{Upgraded: false}, nil
}

func (c *StubClient) ListOrganizations(ctx context.Context) ([]Organization, error) {
	c.logger.Info("cloud stub: organization list requested")
	return nil, nil
}
