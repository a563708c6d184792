package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reelkit/reelkit-agent/internal/logging"
)

// UploadError represents a failed call to the sharing backend.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("cloud request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and network errors.
// Client errors (4xx) are considered permanent.
func (e *UploadError) IsRetryable() bool {
	return e.StatusCode >= 500
}

const (
	respBodyLimit    = 4096
	orgListBodyLimit = 65536
)

// CreateVideoRequest registers a video record before the artifact is
// streamed. Setting VideoID reuses an existing record (reupload).
type CreateVideoRequest struct {
	VideoID        string  `json:"video_id,omitempty"`
	Name           string  `json:"name"`
	DurationSecs   float64 `json:"duration_secs"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	OrganizationID string  `json:"organization_id,omitempty"`
}

// VideoRecord is the backend's answer to CreateVideoRequest: the record id
// and a presigned destination for the artifact bytes.
type VideoRecord struct {
	ID        string `json:"id"`
	UploadURL string `json:"upload_url"`
}

// HTTPClient talks to the ReelKit sharing backend. The access token is read
// from the credential store on every request, so sign-in and sign-out take
// effect without a restart.
type HTTPClient struct {
	baseURL    string
	creds      *CredentialStore
	httpClient *http.Client
	// Artifact streaming can run for many minutes; it is bounded by the
	// export context instead of a fixed client timeout.
	uploadClient *http.Client
	logger       *slog.Logger
}

func NewHTTPClient(baseURL string, creds *CredentialStore, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		uploadClient: &http.Client{},
		logger:       logger,
	}
}

func (c *HTTPClient) CreateVideo(ctx context.Context, req CreateVideoRequest) (*VideoRecord, error) {
	var rec VideoRecord
	if err := c.postJSON(ctx, "/api/desktop/video/create", req, &rec); err != nil {
		return nil, err
	}
	if rec.ID == "" || rec.UploadURL == "" {
		return nil, fmt.Errorf("backend returned incomplete video record")
	}
	c.logger.Info("video record ready", "video_id", rec.ID, "reupload", req.VideoID != "")
	return &rec, nil
}

// UploadArtifact streams the rendered file to the presigned destination.
// The URL carries its own authorization, so no bearer token is attached.
func (c *HTTPClient) UploadArtifact(ctx context.Context, uploadURL, artifactPath string, onProgress func(float64)) error {
	f, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	body := &progressReader{r: f, total: info.Size(), onProgress: onProgress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", artifactContentType(artifactPath))

	c.logger.Info("uploading artifact",
		"path", logging.SanitizePath(artifactPath),
		"bytes", info.Size(),
	)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, respBodyLimit))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UploadError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

// CompleteVideo finalizes the record after the artifact landed and returns
// the shareable URL.
func (c *HTTPClient) CompleteVideo(ctx context.Context, videoID string) (string, error) {
	var resp struct {
		ShareURL string `json:"share_url"`
	}
	if err := c.postJSON(ctx, "/api/desktop/video/"+videoID+"/complete", nil, &resp); err != nil {
		return "", err
	}
	if resp.ShareURL == "" {
		return "", fmt.Errorf("backend returned no share url")
	}
	return resp.ShareURL, nil
}

func (c *HTTPClient) FetchPlan(ctx context.Context) (*Plan, error) {
	var plan Plan
	if err := c.getJSON(ctx, "/api/desktop/plan", &plan, respBodyLimit); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, respBodyLimit)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any, limit int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out, limit)
}

func (c *HTTPClient) do(req *http.Request, out any, limit int64) error {
	token := c.creds.Token(req.Context())
	if token == "" {
		return ErrNoCredential
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-ReelKit-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, limit))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UploadError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func artifactContentType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".gif") {
		return "image/gif"
	}
	return "video/mp4"
}
