package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/project"
)

// Client talks to a running engine over its localhost API. Long operations
// (exports) are queued with a POST and followed over a WebSocket session;
// when the socket is unavailable the client falls back to status polling.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: uuid.NewString(),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.getJSON(ctx, "/health", nil)
}

// EmitRenderFrame requests one preview frame. Fire-and-forget: the frame
// itself comes back over the engine's frame socket, and a dropped request is
// repaired by the next scheduler tick.
func (c *Client) EmitRenderFrame(frameNumber, fps uint32, base export.Resolution) {
	payload := map[string]interface{}{
		"frame_number":    frameNumber,
		"fps":             fps,
		"resolution_base": base,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.postJSON(ctx, "/frame", payload, nil); err != nil {
			c.logger.Debug("render frame request failed", "frame", frameNumber, "error", err)
		}
	}()
}

// SetPlaying tells the engine to start or stop driving frames itself.
func (c *Client) SetPlaying(playing bool, fromTime float64) {
	payload := map[string]interface{}{
		"playing": playing,
		"time":    fromTime,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.postJSON(ctx, "/playback", payload, nil); err != nil {
			c.logger.Debug("playback request failed", "playing", playing, "error", err)
		}
	}()
}

// ApplyConfiguration pushes the edited project configuration and waits for
// the engine to acknowledge it, so the caller knows the next rendered frame
// reflects the change.
func (c *Client) ApplyConfiguration(ctx context.Context, projectPath string, cfg *project.Configuration) error {
	payload := map[string]interface{}{
		"project_path":  projectPath,
		"configuration": cfg,
	}
	if err := c.postJSON(ctx, "/configuration", payload, nil); err != nil {
		return fmt.Errorf("failed to apply configuration: %w", err)
	}
	return nil
}

func (c *Client) GeneratePreview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	var result PreviewResult
	if err := c.postJSON(ctx, "/preview", req, &result); err != nil {
		return nil, fmt.Errorf("preview generation failed: %w", err)
	}
	return &result, nil
}

type exportRequest struct {
	JobID       string           `json:"job_id"`
	ProjectPath string           `json:"project_path"`
	OutputPath  string           `json:"output_path"`
	Settings    *export.Settings `json:"settings"`
}

type exportStatus struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Rendered int    `json:"rendered"`
	Total    int    `json:"total"`
	Message  string `json:"message,omitempty"`
}

// Export queues a render job and follows it to completion. The engine writes
// the artifact to outputPath itself (both processes share a filesystem).
// Cancelling ctx notifies the engine best-effort and returns ctx.Err().
func (c *Client) Export(ctx context.Context, projectPath string, settings *export.Settings, outputPath string, onProgress func(rendered, total int)) error {
	jobID := uuid.NewString()

	// Connect the socket before queueing so no progress event is missed.
	conn, err := c.dialWS(ctx)
	if err != nil {
		c.logger.Warn("engine socket unavailable, will poll for progress", "error", err)
		conn = nil
	}
	if conn != nil {
		defer conn.Close()
	}

	req := exportRequest{
		JobID:       jobID,
		ProjectPath: projectPath,
		OutputPath:  outputPath,
		Settings:    settings,
	}
	if err := c.postJSON(ctx, "/export", req, nil); err != nil {
		return fmt.Errorf("failed to queue export: %w", err)
	}

	c.logger.Info("engine export queued", "job_id", jobID, "output", outputPath)

	if conn != nil {
		return c.waitSocket(ctx, conn, jobID, onProgress)
	}
	return c.waitPoll(ctx, jobID, onProgress)
}

// StreamFrames keeps a frame socket open and hands every binary frame
// message to onFrame. It returns when ctx is cancelled or the socket drops;
// the caller owns reconnection.
func (c *Client) StreamFrames(ctx context.Context, onFrame func(frame []byte)) error {
	conn, err := c.dialWS(ctx)
	if err != nil {
		return fmt.Errorf("dial frame socket: %w", err)
	}
	defer conn.Close()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("frame socket dropped: %w", err)
		}
		if messageType == websocket.BinaryMessage {
			onFrame(message)
		}
	}
}

func (c *Client) dialWS(ctx context.Context) (*websocket.Conn, error) {
	wsURL := strings.Replace(c.baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL+"/ws?clientId="+c.clientID, nil)
	return conn, err
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type exportEventData struct {
	JobID    string `json:"job_id"`
	Rendered int    `json:"rendered"`
	Total    int    `json:"total"`
	Message  string `json:"message,omitempty"`
}

func (c *Client) waitSocket(ctx context.Context, conn *websocket.Conn, jobID string, onProgress func(rendered, total int)) error {
	// ReadMessage has no context; close the socket to unblock it when the
	// caller cancels.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			c.cancelExport(jobID)
			conn.Close()
		case <-watchDone:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("engine socket dropped, polling for completion", "job_id", jobID, "error", err)
			return c.waitPoll(ctx, jobID, onProgress)
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		var data exportEventData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.JobID != jobID {
			continue
		}

		switch msg.Type {
		case "export_progress":
			onProgress(data.Rendered, data.Total)
		case "export_complete":
			return nil
		case "export_error":
			return fmt.Errorf("engine export failed: %s", data.Message)
		}
	}
}

func (c *Client) waitPoll(ctx context.Context, jobID string, onProgress func(rendered, total int)) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.cancelExport(jobID)
			return ctx.Err()
		case <-ticker.C:
			var st exportStatus
			if err := c.getJSON(ctx, "/export/"+jobID, &st); err != nil {
				// Transient: the next tick retries.
				continue
			}
			switch st.Status {
			case "complete":
				return nil
			case "failed":
				return fmt.Errorf("engine export failed: %s", st.Message)
			default:
				onProgress(st.Rendered, st.Total)
			}
		}
	}
}

// cancelExport tells the engine to stop a job. Best-effort: the agent has
// already moved on by the time this runs.
func (c *Client) cancelExport(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.postJSON(ctx, "/export/"+jobID+"/cancel", nil, nil); err != nil {
		c.logger.Debug("engine cancel notify failed", "job_id", jobID, "error", err)
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) error {
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

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 256*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &EngineError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode engine response: %w", err)
		}
	}
	return nil
}
