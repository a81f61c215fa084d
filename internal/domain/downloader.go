package domain

import "context"

// Resolver turns a page URL into direct media URL candidates
type Resolver interface {
	// Name identifies the provider in logs
	Name() string

	// Resolve returns zero or more candidates. relaxed asks for the most
	// permissive format selection the provider supports.
	Resolve(ctx context.Context, sourceURL string, kind OutputKind, relaxed bool) ([]string, error)
}

// ByteProgressFunc receives streaming progress. total is the announced
// content length and is always positive when called.
type ByteProgressFunc func(loaded, total int64)

// PercentProgressFunc receives conversion progress in [0, 100]
type PercentProgressFunc func(percent float64)

// StreamResult describes a completed transfer
type StreamResult struct {
	Bytes       int64
	ContentType string
}

// Streamer copies a direct media URL into a local file
type Streamer interface {
	Stream(ctx context.Context, directURL, destPath string, onProgress ByteProgressFunc) (StreamResult, error)
}

// AudioTarget describes the encoder settings for audio artifacts
type AudioTarget struct {
	Codec      string
	Bitrate    string
	SampleRate int
	Channels   int
}

// Transcoder converts a downloaded file into an audio artifact
type Transcoder interface {
	Convert(ctx context.Context, sourcePath, targetPath string, target AudioTarget, onProgress PercentProgressFunc) error
}

// WorkspaceManager allocates and removes per-job directories
type WorkspaceManager interface {
	Create() (*Workspace, error)

	// Destroy removes the workspace. It is idempotent and never fails;
	// problems are logged.
	Destroy(ws *Workspace)
}
