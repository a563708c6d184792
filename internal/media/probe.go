// Package media probes recorded video tracks via ffprobe.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xfrr/goffmpeg/transcoder"
)

// ProbeResult holds the track properties the agent cares about: duration for
// estimates, dimensions for render requests.
type ProbeResult struct {
	DurationSecs float64 `json:"duration_secs"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	CodecName    string  `json:"codec_name"`
	HasAudio     bool    `json:"has_audio"`
}

type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// FFmpegProber extracts track metadata using the ffprobe binary.
type FFmpegProber struct {
	logger *slog.Logger
}

func NewFFmpegProber(logger *slog.Logger) *FFmpegProber {
	return &FFmpegProber{logger: logger}
}

func (p *FFmpegProber) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(path, ""); err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", path, err)
	}

	metadata := trans.MediaFile().Metadata()

	result := &ProbeResult{}
	for _, stream := range metadata.Streams {
		switch stream.CodecType {
		case "video":
			if result.Width == 0 {
				result.Width = stream.Width
				result.Height = stream.Height
				result.CodecName = stream.CodecName
			}
		case "audio":
			result.HasAudio = true
		}
	}

	if result.Width == 0 || result.Height == 0 {
		return nil, fmt.Errorf("no video stream found in %s", path)
	}

	duration, err := parseDuration(metadata.Format.Duration)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("failed to parse track duration", "path", path, "error", err)
		}
	} else {
		result.DurationSecs = duration
	}

	if p.logger != nil {
		p.logger.Debug("probed track", "path", path,
			"width", result.Width, "height", result.Height,
			"duration_secs", result.DurationSecs)
	}

	return result, nil
}

// parseDuration converts ffprobe's duration string (seconds with fraction)
// into float seconds.
func parseDuration(durationStr string) (float64, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration in video metadata")
	}

	durationSeconds, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration '%s': %w", durationStr, err)
	}
	if durationSeconds < 0 {
		return 0, fmt.Errorf("negative duration '%s'", durationStr)
	}

	return durationSeconds, nil
}
