package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/internal/domain"
)

const streamBufferSize = 64 * 1024

// StatusError reports a non-2xx response from a media host
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

var errStalled = errors.New("no data received within timeout")

// HTTPStreamer downloads direct media URLs into local files
type HTTPStreamer struct {
	client       *http.Client
	userAgent    string
	stallTimeout time.Duration
	logger       *zap.Logger
	buffers      sync.Pool
}

// NewHTTPStreamer creates a streamer. stallTimeout aborts a transfer that
// receives no bytes for that long.
func NewHTTPStreamer(client *http.Client, userAgent string, stallTimeout time.Duration, logger *zap.Logger) *HTTPStreamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPStreamer{
		client:       client,
		userAgent:    userAgent,
		stallTimeout: stallTimeout,
		logger:       logger,
		buffers: sync.Pool{New: func() interface{} {
			buf := make([]byte, streamBufferSize)
			return &buf
		}},
	}
}

// Stream copies directURL into destPath. onProgress is only called when the
// server announces a content length. A partial file is left in place on
// failure; the caller's workspace owns it.
func (s *HTTPStreamer) Stream(ctx context.Context, directURL, destPath string, onProgress domain.ByteProgressFunc) (domain.StreamResult, error) {
	const op = "fetcher.stream"

	streamCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, directURL, nil)
	if err != nil {
		return domain.StreamResult{}, domain.NewError(domain.KindFetch, op, fmt.Errorf("invalid direct URL: %w", err))
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	var watchdog *time.Timer
	if s.stallTimeout > 0 {
		watchdog = time.AfterFunc(s.stallTimeout, func() { cancel(errStalled) })
		defer watchdog.Stop()
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.StreamResult{}, s.fail(ctx, streamCtx, op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.StreamResult{}, domain.NewError(domain.KindFetch, op, &StatusError{StatusCode: resp.StatusCode, URL: directURL})
	}

	file, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return domain.StreamResult{}, domain.NewError(domain.KindFetch, op, fmt.Errorf("failed to create %s: %w", destPath, err))
	}

	total := resp.ContentLength
	bufPtr := s.buffers.Get().(*[]byte)
	defer s.buffers.Put(bufPtr)
	buf := *bufPtr

	var loaded int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if watchdog != nil {
				watchdog.Reset(s.stallTimeout)
			}
			if _, err := file.Write(buf[:n]); err != nil {
				file.Close()
				return domain.StreamResult{}, domain.NewError(domain.KindFetch, op, fmt.Errorf("write failed: %w", err))
			}
			loaded += int64(n)
			if total > 0 && onProgress != nil {
				onProgress(loaded, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			file.Close()
			return domain.StreamResult{}, s.fail(ctx, streamCtx, op, fmt.Errorf("read failed after %d bytes: %w", loaded, readErr))
		}
	}

	if err := file.Close(); err != nil {
		return domain.StreamResult{}, domain.NewError(domain.KindFetch, op, fmt.Errorf("failed to flush %s: %w", destPath, err))
	}
	if loaded == 0 {
		return domain.StreamResult{}, domain.NewError(domain.KindFetch, op, errors.New("empty response body"))
	}
	if total > 0 && loaded < total {
		return domain.StreamResult{}, domain.NewError(domain.KindFetch, op, fmt.Errorf("short body: got %d of %d bytes", loaded, total))
	}

	s.logger.Debug("Stream finished",
		zap.String("dest", destPath),
		zap.Int64("bytes", loaded),
		zap.String("content_type", resp.Header.Get("Content-Type")))

	return domain.StreamResult{Bytes: loaded, ContentType: resp.Header.Get("Content-Type")}, nil
}

// fail distinguishes caller cancellation from stalls and network errors
func (s *HTTPStreamer) fail(parent, streamCtx context.Context, op string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w", op, parent.Err())
	}
	if errors.Is(context.Cause(streamCtx), errStalled) {
		return domain.NewError(domain.KindFetch, op, errStalled)
	}
	return domain.NewError(domain.KindFetch, op, err)
}
