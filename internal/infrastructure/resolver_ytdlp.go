package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/internal/domain"
)

// formatUnavailableMarkers are yt-dlp messages that mean the selector, not
// the media, is the problem
var formatUnavailableMarkers = []string{
	"Requested format is not available",
	"requested format not available",
	"No video formats found",
}

// YTDLPResolver resolves page URLs to direct media URLs with `yt-dlp -g`
type YTDLPResolver struct {
	config     *domain.YouTubeConfig
	userAgent  string
	proxyAddr  string
	processLog *ProcessLog
	logger     *zap.Logger
}

// NewYTDLPResolver creates a yt-dlp backed resolver
func NewYTDLPResolver(config *domain.YouTubeConfig, userAgent, proxyAddr string, processLog *ProcessLog, logger *zap.Logger) *YTDLPResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YTDLPResolver{
		config:     config,
		userAgent:  userAgent,
		proxyAddr:  proxyAddr,
		processLog: processLog,
		logger:     logger,
	}
}

// Name returns the provider name
func (r *YTDLPResolver) Name() string {
	return "yt-dlp"
}

// FormatSelector returns the -f argument for kind
func (r *YTDLPResolver) FormatSelector(kind domain.OutputKind, relaxed bool) string {
	switch {
	case kind == domain.OutputAudio && relaxed:
		return r.config.RelaxedAudioFormat
	case kind == domain.OutputAudio:
		return r.config.AudioFormat
	case relaxed:
		return r.config.RelaxedVideoFormat
	default:
		return r.config.VideoFormat
	}
}

// BuildArgs builds the yt-dlp argument list
func (r *YTDLPResolver) BuildArgs(sourceURL string, kind domain.OutputKind, relaxed bool) []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--no-check-certificates",
		"-f", r.FormatSelector(kind, relaxed),
		"--get-url",
	}
	if r.userAgent != "" {
		args = append(args, "--user-agent", r.userAgent)
	}
	if r.proxyAddr != "" {
		args = append(args, "--proxy", "socks5://"+r.proxyAddr)
	}
	// "--" keeps a URL starting with "-" from being read as an option
	return append(args, "--", sourceURL)
}

// Resolve runs yt-dlp and returns the URLs it prints
func (r *YTDLPResolver) Resolve(ctx context.Context, sourceURL string, kind domain.OutputKind, relaxed bool) ([]string, error) {
	const op = "resolver.ytdlp"

	args := r.BuildArgs(sourceURL, kind, relaxed)
	record := r.processLog.Begin(jobIDFrom(ctx), r.config.YTDLPBinary, args)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.config.YTDLPBinary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	_, _ = record.Write(stderr.Bytes())

	if err != nil {
		record.End(err, "yt-dlp failed")
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		cause := fmt.Errorf("yt-dlp: %w: %s", err, lastLine(stderr.String()))
		if containsAny(stderr.String(), formatUnavailableMarkers) {
			cause = fmt.Errorf("yt-dlp: %w: %s", domain.ErrFormatUnavailable, lastLine(stderr.String()))
		}
		return nil, domain.NewError(domain.KindExtraction, op, cause)
	}

	urls := parseURLLines(stdout.String())
	if len(urls) == 0 {
		record.End(errors.New("no URLs in output"), "yt-dlp returned nothing")
		return nil, domain.NewError(domain.KindExtraction, op, errors.New("yt-dlp printed no media URLs"))
	}

	record.End(nil, fmt.Sprintf("resolved %d URL(s)", len(urls)))
	r.logger.Debug("Resolved media URLs",
		zap.String("provider", r.Name()),
		zap.String("url", sourceURL),
		zap.Int("candidates", len(urls)),
		zap.Bool("relaxed", relaxed))

	return urls, nil
}

func parseURLLines(output string) []string {
	var urls []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			urls = append(urls, line)
		}
	}
	return urls
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
