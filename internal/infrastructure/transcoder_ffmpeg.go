package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/internal/domain"
)

const (
	progressTimePrefix = "out_time_us="
	stderrTailLines    = 8
)

// noStreamMarkers are ffmpeg messages that mean the input holds nothing the
// target can be built from, typically a video-only format selection
var noStreamMarkers = []string{
	"does not contain any stream",
	"matches no streams",
	"Output file is empty",
}

// FFmpegTranscoder converts media to audio with ffmpeg
type FFmpegTranscoder struct {
	config     *domain.TranscoderConfig
	processLog *ProcessLog
	logger     *zap.Logger
}

// NewFFmpegTranscoder creates a transcoder
func NewFFmpegTranscoder(config *domain.TranscoderConfig, processLog *ProcessLog, logger *zap.Logger) *FFmpegTranscoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpegTranscoder{config: config, processLog: processLog, logger: logger}
}

// BuildArgs builds the ffmpeg argument list. Progress goes to stderr as
// key=value lines.
func (t *FFmpegTranscoder) BuildArgs(sourcePath, targetPath string, target domain.AudioTarget) []string {
	return []string{
		"-hide_banner",
		"-y",
		"-i", sourcePath,
		"-vn",
		"-c:a", target.Codec,
		"-b:a", target.Bitrate,
		"-ar", strconv.Itoa(target.SampleRate),
		"-ac", strconv.Itoa(target.Channels),
		"-progress", "pipe:2",
		"-nostats",
		targetPath,
	}
}

// Convert transcodes sourcePath into targetPath. A partial target is
// removed on failure.
func (t *FFmpegTranscoder) Convert(ctx context.Context, sourcePath, targetPath string, target domain.AudioTarget, onProgress domain.PercentProgressFunc) error {
	const op = "transcoder.convert"

	duration, err := t.probeDuration(ctx, sourcePath)
	if err != nil {
		// conversion still works, only percent reporting is lost
		t.logger.Debug("Duration probe failed", zap.String("source", sourcePath), zap.Error(err))
	}

	args := t.BuildArgs(sourcePath, targetPath, target)
	record := t.processLog.Begin(jobIDFrom(ctx), t.config.FFmpegBinary, args)

	cmd := exec.CommandContext(ctx, t.config.FFmpegBinary, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		record.End(err, "ffmpeg pipe failed")
		return domain.NewError(domain.KindTranscode, op, fmt.Errorf("failed to attach stderr: %w", err))
	}

	if err := cmd.Start(); err != nil {
		record.End(err, "ffmpeg failed to start")
		return domain.NewError(domain.KindTranscode, op, fmt.Errorf("failed to start ffmpeg: %w", err))
	}

	tail := t.monitorProgress(stderr, duration, record, onProgress)
	err = cmd.Wait()

	if err != nil {
		os.Remove(targetPath)
		record.End(err, "ffmpeg failed")
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		detail := strings.Join(tail, " | ")
		if containsAny(detail, noStreamMarkers) {
			return domain.NewError(domain.KindTranscode, op, fmt.Errorf("ffmpeg: %w: %s", domain.ErrFormatUnavailable, detail))
		}
		return domain.NewError(domain.KindTranscode, op, fmt.Errorf("ffmpeg: %w: %s", err, detail))
	}

	info, statErr := os.Stat(targetPath)
	if statErr != nil || info.Size() == 0 {
		os.Remove(targetPath)
		record.End(errors.New("empty output"), "ffmpeg produced nothing")
		return domain.NewError(domain.KindTranscode, op, errors.New("ffmpeg produced an empty file"))
	}

	record.End(nil, fmt.Sprintf("wrote %d bytes", info.Size()))
	if onProgress != nil {
		onProgress(100)
	}
	return nil
}

// monitorProgress consumes ffmpeg's stderr, reporting percent from
// out_time_us and keeping the last non-progress lines for diagnostics
func (t *FFmpegTranscoder) monitorProgress(stderr io.Reader, duration float64, record *ProcessRecord, onProgress domain.PercentProgressFunc) []string {
	var tail []string
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if us, ok := parseProgressTime(line); ok {
			if duration > 0 && onProgress != nil {
				onProgress(progressPercent(us, duration))
			}
			continue
		}
		if isProgressKey(line) {
			continue
		}

		record.Line(line)
		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}
	}
	// keep the pipe drained if the scanner gave up on an oversized line
	_, _ = io.Copy(io.Discard, stderr)
	return tail
}

// probeDuration returns the media duration in seconds
func (t *FFmpegTranscoder) probeDuration(ctx context.Context, path string) (float64, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, t.config.FFprobeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("failed to run ffprobe: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", stdout.String(), err)
	}
	return duration, nil
}

func parseProgressTime(line string) (int64, bool) {
	if !strings.HasPrefix(line, progressTimePrefix) {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimPrefix(line, progressTimePrefix), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return us, true
}

func progressPercent(outTimeUS int64, duration float64) float64 {
	p := float64(outTimeUS) / 1e6 / duration * 100
	if p > 100 {
		p = 100
	}
	return p
}

// isProgressKey matches the other key=value lines of -progress output
func isProgressKey(line string) bool {
	idx := strings.IndexByte(line, '=')
	return idx > 0 && !strings.ContainsAny(line[:idx], " \t:")
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
