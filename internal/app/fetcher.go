package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/internal/domain"
)

// maxProviders caps the resolver chain at one primary plus one fallback
const maxProviders = 2

// resolutionMarkers rank direct URL candidates, best first
var resolutionMarkers = []string{"1080", "720"}

// Fetcher resolves page URLs per platform and streams the media
type Fetcher struct {
	resolvers map[domain.Platform][]domain.Resolver
	streamer  domain.Streamer
	logger    *zap.Logger
}

// NewFetcher creates a fetcher. resolvers lists providers per platform in
// the order they are tried.
func NewFetcher(resolvers map[domain.Platform][]domain.Resolver, streamer domain.Streamer, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{resolvers: resolvers, streamer: streamer, logger: logger}
}

// ResolveDirectURL returns one direct media URL for sourceURL. The primary
// provider is tried first and at most one fallback after it.
func (f *Fetcher) ResolveDirectURL(ctx context.Context, sourceURL string, platform domain.Platform, kind domain.OutputKind, relaxed bool) (string, error) {
	const op = "fetcher.resolve"

	providers := f.resolvers[platform]
	if len(providers) == 0 {
		return "", domain.NewError(domain.KindExtraction, op, fmt.Errorf("no resolver registered for %s", platform))
	}
	if len(providers) > maxProviders {
		providers = providers[:maxProviders]
	}

	var lastErr error
	for i, provider := range providers {
		candidates, err := provider.Resolve(ctx, sourceURL, kind, relaxed)
		if err == nil && len(candidates) == 0 {
			err = domain.NewError(domain.KindExtraction, op, fmt.Errorf("%s returned no candidates", provider.Name()))
		}
		if err == nil {
			selected := SelectCandidate(candidates)
			f.logger.Debug("Direct URL selected",
				zap.String("provider", provider.Name()),
				zap.Int("candidates", len(candidates)),
				zap.Bool("relaxed", relaxed))
			return selected, nil
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", op, ctx.Err())
		}

		lastErr = err
		f.logger.Warn("Resolver failed",
			zap.String("provider", provider.Name()),
			zap.String("platform", string(platform)),
			zap.Bool("fallback_available", i+1 < len(providers)),
			zap.Error(err))
	}

	if domain.KindOf(lastErr) == domain.KindExtraction {
		return "", lastErr
	}
	return "", domain.NewError(domain.KindExtraction, op, lastErr)
}

// Stream downloads directURL into destPath
func (f *Fetcher) Stream(ctx context.Context, directURL, destPath string, onProgress domain.ByteProgressFunc) (domain.StreamResult, error) {
	return f.streamer.Stream(ctx, directURL, destPath, onProgress)
}

// SelectCandidate prefers a candidate carrying a high resolution marker and
// falls back to the first one
func SelectCandidate(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	for _, marker := range resolutionMarkers {
		for _, c := range candidates {
			if strings.Contains(c, marker) {
				return c
			}
		}
	}
	return candidates[0]
}
