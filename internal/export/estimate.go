package export

import "math"

// Estimate predicts artifact size and render time for a settings tuple
// without touching the engine. The constants come from measured encoder
// behavior: H.264 frames past 30fps compress to roughly 60% of their naive
// cost, and the encoder lands near half the naive bitrate overall.
type Estimate struct {
	DurationSeconds      float64 `json:"duration_seconds"`
	TotalFrames          int     `json:"total_frames"`
	EstimatedTimeSeconds float64 `json:"estimated_time_seconds"`
	EstimatedSizeMb      float64 `json:"estimated_size_mb"`
}

func ComputeEstimate(s *Settings, durationSeconds float64) Estimate {
	totalPixels := float64(s.Resolution.Width * s.Resolution.Height)
	fps := float64(s.FPS)
	totalFrames := math.Ceil(durationSeconds * fps)

	var sizeMb, timeSeconds float64
	switch s.Format {
	case FormatGif:
		bytesPerFrame := totalPixels * 0.5
		gifEfficiency := 0.07
		sizeMb = (bytesPerFrame * gifEfficiency * totalFrames) / (1024.0 * 1024.0)

		var framesPerSec float64
		switch {
		case s.Resolution.Width <= 1280 && s.Resolution.Height <= 720:
			framesPerSec = 10.0
		case s.Resolution.Width <= 1920 && s.Resolution.Height <= 1080:
			framesPerSec = 5.0
		default:
			framesPerSec = 2.0
		}
		timeSeconds = totalFrames / framesPerSec

	default: // mp4
		effectiveFPS := math.Max(fps-30.0, 0)*0.6 + math.Min(fps, 30.0)
		videoBitrate := totalPixels * s.BitsPerPixel() * effectiveFPS
		audioBitrate := 192_000.0
		totalBitrate := videoBitrate + audioBitrate
		encoderEfficiency := 0.5
		sizeMb = (totalBitrate * encoderEfficiency * durationSeconds) / (8.0 * 1024.0 * 1024.0)

		effectiveRenderFPS := 290.0
		if s.Resolution.Width >= 3840 {
			effectiveRenderFPS = 175.0
		}
		timeSeconds = totalFrames / effectiveRenderFPS
	}

	return Estimate{
		DurationSeconds:      durationSeconds,
		TotalFrames:          int(totalFrames),
		EstimatedTimeSeconds: timeSeconds,
		EstimatedSizeMb:      sizeMb,
	}
}

// BppToJPEGQuality maps a bits-per-pixel level onto the JPEG quality scale
// used for preview thumbnails, so the preview degrades the way the final
// encode will.
func BppToJPEGQuality(bpp float64) int {
	q := (bpp-0.04)/(0.3-0.04)*(95.0-40.0) + 40.0
	if q < 40 {
		q = 40
	}
	if q > 95 {
		q = 95
	}
	return int(q)
}

// TotalFrames returns the frame count a full render will produce.
func TotalFrames(durationSeconds float64, fps int) int {
	return int(math.Ceil(durationSeconds * float64(fps)))
}
