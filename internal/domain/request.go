package domain

import (
	"fmt"
	"strings"
)

// OutputKind is the kind of artifact a request asks for
type OutputKind string

const (
	OutputAudio OutputKind = "audio"
	OutputVideo OutputKind = "video"
)

// ParseOutputKind validates a format name from a request body
func ParseOutputKind(s string) (OutputKind, error) {
	switch OutputKind(strings.ToLower(strings.TrimSpace(s))) {
	case OutputAudio:
		return OutputAudio, nil
	case OutputVideo:
		return OutputVideo, nil
	default:
		return "", fmt.Errorf("invalid format %q: must be audio or video", s)
	}
}

// Extension returns the artifact file extension for the kind
func (k OutputKind) Extension() string {
	if k == OutputAudio {
		return "mp3"
	}
	return "mp4"
}

// ContentType returns the MIME type served for the kind
func (k OutputKind) ContentType() string {
	if k == OutputAudio {
		return "audio/mpeg"
	}
	return "video/mp4"
}

// DownloadRequest is a validated request to produce an artifact
type DownloadRequest struct {
	SourceURL  string     `json:"url"`
	OutputKind OutputKind `json:"format"`
}

// Validate checks the request against the platform named by the endpoint
// and returns the classified platform.
func (r DownloadRequest) Validate(expected Platform) (Platform, error) {
	const op = "request.validate"

	if strings.TrimSpace(r.SourceURL) == "" {
		return PlatformUnsupported, BadRequest(op, "url is required")
	}
	if r.OutputKind != OutputAudio && r.OutputKind != OutputVideo {
		return PlatformUnsupported, BadRequest(op, "format must be audio or video")
	}
	if !expected.IsSupported() {
		return PlatformUnsupported, BadRequest(op, fmt.Sprintf("unsupported platform: %s", expected))
	}

	platform := ClassifyPlatform(r.SourceURL)
	if platform == PlatformUnsupported {
		return platform, BadRequest(op, "unsupported URL")
	}
	if platform != expected {
		return platform, BadRequest(op, fmt.Sprintf("URL is not a %s link", expected))
	}
	return platform, nil
}
