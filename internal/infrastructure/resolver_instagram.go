package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/internal/domain"
)

// instagramResponse is the payload of the resolution endpoint
type instagramResponse struct {
	URLList []string `json:"url_list"`
	Error   string   `json:"error,omitempty"`
}

// InstagramAPIResolver asks an HTTP resolution service for direct media
// URLs of an Instagram post. The service answers
// GET <endpoint>?url=<post URL> with {"url_list": [...]}.
type InstagramAPIResolver struct {
	endpoint  string
	client    *http.Client
	timeout   time.Duration
	userAgent string
	logger    *zap.Logger
}

// NewInstagramAPIResolver creates a resolver for the given endpoint
func NewInstagramAPIResolver(config *domain.InstagramConfig, client *http.Client, userAgent string, logger *zap.Logger) *InstagramAPIResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstagramAPIResolver{
		endpoint:  config.ResolverEndpoint,
		client:    client,
		timeout:   config.ResolverTimeout,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Name returns the provider name
func (r *InstagramAPIResolver) Name() string {
	return "instagram-api"
}

// Resolve returns the candidate list as reported by the service. An empty
// list is not an error here; the fetcher decides what to do with it.
// Output kind and relaxed selection do not apply to this provider.
func (r *InstagramAPIResolver) Resolve(ctx context.Context, sourceURL string, kind domain.OutputKind, relaxed bool) ([]string, error) {
	const op = "resolver.instagram"

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	reqURL, err := url.Parse(r.endpoint)
	if err != nil {
		return nil, domain.NewError(domain.KindExtraction, op, fmt.Errorf("invalid resolver endpoint: %w", err))
	}
	q := reqURL.Query()
	q.Set("url", sourceURL)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, domain.NewError(domain.KindExtraction, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return nil, domain.NewError(domain.KindExtraction, op, fmt.Errorf("resolver request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewError(domain.KindExtraction, op, fmt.Errorf("failed to read resolver response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewError(domain.KindExtraction, op, fmt.Errorf("resolver returned %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var payload instagramResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.NewError(domain.KindExtraction, op, fmt.Errorf("invalid resolver response: %w", err))
	}
	if payload.Error != "" {
		return nil, domain.NewError(domain.KindExtraction, op, fmt.Errorf("resolver error: %s", payload.Error))
	}

	r.logger.Debug("Resolved media URLs",
		zap.String("provider", r.Name()),
		zap.String("url", sourceURL),
		zap.Int("candidates", len(payload.URLList)))

	return payload.URLList, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
