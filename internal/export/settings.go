// Package export implements the export pipeline: settings validation, size
// and time estimates, and the single-flight job state machine that renders a
// project and delivers it to a file, the clipboard, or a share link.
package export

import (
	"fmt"
)

const (
	FormatMp4 = "mp4"
	FormatGif = "gif"
)

const (
	DestinationFile      = "file"
	DestinationClipboard = "clipboard"
	DestinationLink      = "link"
)

const (
	CompressionMaximum = "maximum"
	CompressionSocial  = "social"
	CompressionWeb     = "web"
	CompressionPotato  = "potato"
)

// compressionBPP maps quality presets to H.264 bits per pixel.
var compressionBPP = map[string]float64{
	CompressionMaximum: 0.3,
	CompressionSocial:  0.15,
	CompressionWeb:     0.08,
	CompressionPotato:  0.04,
}

// Allowed frame rates per format. GIF rates are low because every frame
// costs a full palette pass.
var (
	Mp4AllowedFPS = []int{15, 30, 60}
	GifAllowedFPS = []int{10, 15, 20, 25, 30}
)

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Settings is the user-editable export configuration, persisted per project.
type Settings struct {
	Format         string     `json:"format"`
	FPS            int        `json:"fps"`
	Resolution     Resolution `json:"resolution_base"`
	Compression    string     `json:"compression"`
	CustomBPP      *float64   `json:"custom_bpp,omitempty"`
	Destination    string     `json:"destination"`
	OrganizationID string     `json:"organization_id,omitempty"`
}

// DefaultSettings returns the settings a project starts with: full-rate MP4
// to a local file at web quality.
func DefaultSettings(width, height int) *Settings {
	if width == 0 || height == 0 {
		width, height = 1920, 1080
	}
	return &Settings{
		Format:      FormatMp4,
		FPS:         30,
		Resolution:  Resolution{Width: width, Height: height},
		Compression: CompressionWeb,
		Destination: DestinationFile,
	}
}

// BitsPerPixel resolves the effective compression level. A custom value
// overrides the preset.
func (s *Settings) BitsPerPixel() float64 {
	if s.CustomBPP != nil && *s.CustomBPP > 0 {
		return *s.CustomBPP
	}
	if bpp, ok := compressionBPP[s.Compression]; ok {
		return bpp
	}
	return compressionBPP[CompressionWeb]
}

// AllowedFPS returns the frame-rate set for the current format.
func (s *Settings) AllowedFPS() []int {
	if s.Format == FormatGif {
		return GifAllowedFPS
	}
	return Mp4AllowedFPS
}

// Normalize enforces the cross-field invariants in place. Order matters:
// link uploads must be MP4, so the share constraint wins over the
// transparency constraint, and fps is coerced last against the final format.
func (s *Settings) Normalize(transparentBackground bool) {
	if s.Format == "" {
		s.Format = FormatMp4
	}
	if s.Destination == "" {
		s.Destination = DestinationFile
	}
	if s.Compression == "" {
		s.Compression = CompressionWeb
	}

	// Share links are always MP4; the hosting backend does not serve GIFs.
	if s.Destination == DestinationLink && s.Format == FormatGif {
		s.Format = FormatMp4
	}

	// A transparent background cannot be encoded into MP4. Local
	// destinations fall back to GIF; link uploads keep MP4 and flatten.
	if transparentBackground && s.Format == FormatMp4 && s.Destination != DestinationLink {
		s.Format = FormatGif
	}

	if s.FPS <= 0 {
		s.FPS = 30
	}
	s.FPS = nearestFPS(s.FPS, s.AllowedFPS())

	if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 {
		s.Resolution = Resolution{Width: 1920, Height: 1080}
	}
	// H.264 needs even dimensions; odd values round up so a 1×1 request
	// stays positive rather than collapsing to zero.
	s.Resolution.Width += s.Resolution.Width % 2
	s.Resolution.Height += s.Resolution.Height % 2
}

// Validate reports the first invariant violation, if any. Callers should
// Normalize first; Validate exists to reject requests that bypass it.
func (s *Settings) Validate() error {
	switch s.Format {
	case FormatMp4, FormatGif:
	default:
		return fmt.Errorf("invalid format %q", s.Format)
	}

	switch s.Destination {
	case DestinationFile, DestinationClipboard, DestinationLink:
	default:
		return fmt.Errorf("invalid destination %q", s.Destination)
	}

	if s.Format == FormatGif && s.Destination == DestinationLink {
		return fmt.Errorf("gif format cannot be shared as a link")
	}

	if !containsInt(s.AllowedFPS(), s.FPS) {
		return fmt.Errorf("fps %d not allowed for %s", s.FPS, s.Format)
	}

	if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 {
		return fmt.Errorf("resolution must be positive")
	}

	if s.CustomBPP != nil && (*s.CustomBPP <= 0 || *s.CustomBPP > 1) {
		return fmt.Errorf("custom bits per pixel out of range")
	}

	return nil
}

// FileExtension returns the artifact extension for the format.
func (s *Settings) FileExtension() string {
	if s.Format == FormatGif {
		return "gif"
	}
	return "mp4"
}

// nearestFPS snaps a rate to the closest allowed value, preferring the
// higher one on ties.
func nearestFPS(fps int, allowed []int) int {
	best := allowed[0]
	bestDist := -1
	for _, a := range allowed {
		dist := a - fps
		if dist < 0 {
			dist = -dist
		}
		if bestDist == -1 || dist < bestDist || (dist == bestDist && a > best) {
			best = a
			bestDist = dist
		}
	}
	return best
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
