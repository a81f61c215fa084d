package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/media-dl-go/internal/domain"
	"github.com/yourusername/media-dl-go/internal/infrastructure"
)

// fakeResolver returns canned candidates and records each call
type fakeResolver struct {
	name    string
	resolve func(relaxed bool) ([]string, error)

	mu      sync.Mutex
	relaxed []bool
}

func (r *fakeResolver) Name() string { return r.name }

func (r *fakeResolver) Resolve(ctx context.Context, sourceURL string, kind domain.OutputKind, relaxed bool) ([]string, error) {
	r.mu.Lock()
	r.relaxed = append(r.relaxed, relaxed)
	r.mu.Unlock()
	return r.resolve(relaxed)
}

func (r *fakeResolver) calls() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.relaxed...)
}

func staticResolver(name string, urls ...string) *fakeResolver {
	return &fakeResolver{name: name, resolve: func(bool) ([]string, error) { return urls, nil }}
}

// fakeStreamer writes content in four chunks and reports progress
type fakeStreamer struct {
	content     []byte
	contentType string
	block       bool
	started     chan struct{}
	urls        []string
	mu          sync.Mutex
}

func (s *fakeStreamer) Stream(ctx context.Context, directURL, destPath string, onProgress domain.ByteProgressFunc) (domain.StreamResult, error) {
	s.mu.Lock()
	s.urls = append(s.urls, directURL)
	s.mu.Unlock()

	if s.block {
		if s.started != nil {
			close(s.started)
		}
		<-ctx.Done()
		return domain.StreamResult{}, fmt.Errorf("stream: %w", ctx.Err())
	}

	f, err := os.Create(destPath)
	if err != nil {
		return domain.StreamResult{}, domain.NewError(domain.KindResource, "stream", err)
	}
	defer f.Close()

	total := int64(len(s.content))
	chunk := len(s.content)/4 + 1
	var loaded int64
	for start := 0; start < len(s.content); start += chunk {
		end := start + chunk
		if end > len(s.content) {
			end = len(s.content)
		}
		n, err := f.Write(s.content[start:end])
		if err != nil {
			return domain.StreamResult{}, err
		}
		loaded += int64(n)
		onProgress(loaded, total)
	}
	return domain.StreamResult{Bytes: loaded, ContentType: s.contentType}, nil
}

// fakeTranscoder writes a fixed payload to the target
type fakeTranscoder struct {
	err   error
	calls int32
}

func (t *fakeTranscoder) Convert(ctx context.Context, sourcePath, targetPath string, target domain.AudioTarget, onProgress domain.PercentProgressFunc) error {
	atomic.AddInt32(&t.calls, 1)
	if t.err != nil {
		return t.err
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return domain.NewError(domain.KindTranscode, "convert", err)
	}
	onProgress(40)
	onProgress(80)
	onProgress(100)
	return os.WriteFile(targetPath, []byte("ID3 converted"), 0644)
}

type testEnv struct {
	root         string
	config       *domain.Config
	workspaces   *infrastructure.WorkspaceManager
	registry     *ArtifactRegistry
	streamer     *fakeStreamer
	transcoder   *fakeTranscoder
	orchestrator *Orchestrator
}

func newTestEnv(t *testing.T, resolvers map[domain.Platform][]domain.Resolver) *testEnv {
	t.Helper()

	root := t.TempDir()
	config := domain.DefaultConfig()
	config.Download.RootDir = root
	config.Download.FilePrefix = "test"

	workspaces, err := infrastructure.NewWorkspaceManager(root, nil)
	require.NoError(t, err)
	registry, err := NewArtifactRegistry(workspaces, config.Artifacts.Retention, nil)
	require.NoError(t, err)

	streamer := &fakeStreamer{content: []byte(strings.Repeat("media", 200)), contentType: "video/mp4"}
	transcoder := &fakeTranscoder{}
	fetcher := NewFetcher(resolvers, streamer, nil)

	orchestrator, err := NewOrchestrator(fetcher, transcoder, workspaces, registry, config, nil, nil)
	require.NoError(t, err)

	return &testEnv{
		root:         root,
		config:       config,
		workspaces:   workspaces,
		registry:     registry,
		streamer:     streamer,
		transcoder:   transcoder,
		orchestrator: orchestrator,
	}
}

func (e *testEnv) workspaceCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(e.root)
	require.NoError(t, err)
	return len(entries)
}

func collect(h *JobHandle) []domain.ProgressEvent {
	var events []domain.ProgressEvent
	for ev := range h.Events() {
		events = append(events, ev)
	}
	return events
}

func percents(events []domain.ProgressEvent) []int {
	out := make([]int, len(events))
	for i, ev := range events {
		out[i] = ev.Percent
	}
	return out
}

func youtubeResolvers(r domain.Resolver) map[domain.Platform][]domain.Resolver {
	return map[domain.Platform][]domain.Resolver{domain.PlatformYouTube: {r}}
}

func TestOrchestrator_YouTubeVideo(t *testing.T) {
	env := newTestEnv(t, youtubeResolvers(staticResolver("yt", "https://cdn.example/v.mp4")))

	h, err := env.orchestrator.Submit(context.Background(), domain.DownloadRequest{
		SourceURL:  "https://www.youtube.com/watch?v=abc",
		OutputKind: domain.OutputVideo,
	}, domain.PlatformYouTube)
	require.NoError(t, err)

	events := collect(h)
	result, err := h.Wait()
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, domain.ProgressStarting, events[0].Status)
	last := events[len(events)-1]
	assert.Equal(t, domain.ProgressCompleted, last.Status)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, result.Artifact.FileName, last.FileName)
	assert.Equal(t, ArtifactPath+result.Token, last.DownloadURL)
	assert.True(t, strings.HasPrefix(last.FileName, "test-"))
	assert.True(t, strings.HasSuffix(last.FileName, ".mp4"))
	assert.IsNonDecreasing(t, percents(events))

	completed := 0
	for _, ev := range events {
		if ev.Status.IsTerminal() {
			completed++
		}
	}
	assert.Equal(t, 1, completed)

	job := h.Job()
	assert.Equal(t, []domain.JobState{
		domain.StateCreated,
		domain.StateValidating,
		domain.StateFetching,
		domain.StateFinalizing,
		domain.StateCompleted,
	}, job.History)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, int32(0), atomic.LoadInt32(&env.transcoder.calls))

	delivery, err := env.registry.TakeOnce(result.Token)
	require.NoError(t, err)
	body, err := io.ReadAll(delivery)
	require.NoError(t, err)
	assert.Equal(t, env.streamer.content, body)
	require.NoError(t, delivery.Close())

	_, err = env.registry.TakeOnce(result.Token)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.Equal(t, 0, env.workspaceCount(t))
}

func TestOrchestrator_PublicBaseURL(t *testing.T) {
	env := newTestEnv(t, youtubeResolvers(staticResolver("yt", "https://cdn.example/v.mp4")))
	env.config.Server.PublicBaseURL = "https://dl.example.com"

	h, err := env.orchestrator.Submit(context.Background(), domain.DownloadRequest{
		SourceURL:  "https://youtu.be/abc",
		OutputKind: domain.OutputVideo,
	}, domain.PlatformYouTube)
	require.NoError(t, err)

	result, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, "https://dl.example.com/api/download/artifact/"+result.Token, result.DownloadURL)
}

func TestOrchestrator_AudioConversion(t *testing.T) {
	env := newTestEnv(t, youtubeResolvers(staticResolver("yt", "https://cdn.example/a.m4a")))
	env.streamer.contentType = "audio/mp4"

	h, err := env.orchestrator.Submit(context.Background(), domain.DownloadRequest{
		SourceURL:  "https://www.youtube.com/watch?v=abc",
		OutputKind: domain.OutputAudio,
	}, domain.PlatformYouTube)
	require.NoError(t, err)

	events := collect(h)
	result, err := h.Wait()
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&env.transcoder.calls))
	assert.True(t, strings.HasSuffix(result.Artifact.FileName, ".mp3"))
	assert.Equal(t, "audio/mpeg", result.Artifact.ContentType)
	assert.Contains(t, h.Job().History, domain.StateConverting)
	assert.IsNonDecreasing(t, percents(events))

	var sawConverting bool
	for _, ev := range events {
		if ev.Status == domain.ProgressDownloading {
			assert.LessOrEqual(t, ev.Percent, 50)
		}
		if ev.Status == domain.ProgressConverting {
			sawConverting = true
			assert.GreaterOrEqual(t, ev.Percent, 50)
		}
	}
	assert.True(t, sawConverting)

	// only the converted file is left in the workspace
	entries, err := os.ReadDir(result.Artifact.Workspace.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, result.Artifact.FileName, entries[0].Name())
}

func TestOrchestrator_AudioAlreadyMP3(t *testing.T) {
	env := newTestEnv(t, youtubeResolvers(staticResolver("yt", "https://cdn.example/a.mp3")))
	env.streamer.contentType = "audio/mpeg"

	h, err := env.orchestrator.Submit(context.Background(), domain.DownloadRequest{
		SourceURL:  "https://www.youtube.com/watch?v=abc",
		OutputKind: domain.OutputAudio,
	}, domain.PlatformYouTube)
	require.NoError(t, err)

	result, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&env.transcoder.calls))
	assert.True(t, strings.HasSuffix(result.Artifact.FileName, ".mp3"))
	assert.NotContains(t, h.Job().History, domain.StateConverting)
}

func TestOrchestrator_InstagramNoCandidates(t *testing.T) {
	primary := staticResolver("instagram-api")
	fallback := staticResolver("yt-dlp")
	env := newTestEnv(t, map[domain.Platform][]domain.Resolver{
		domain.PlatformInstagram: {primary, fallback},
	})

	h, err := env.orchestrator.Submit(context.Background(), domain.DownloadRequest{
		SourceURL:  "https://www.instagram.com/reel/xyz/",
		OutputKind: domain.OutputAudio,
	}, domain.PlatformInstagram)
	require.NoError(t, err)

	events := collect(h)
	result, err := h.Wait()
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, domain.KindExtraction, domain.KindOf(err))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, domain.ProgressFailed, last.Status)
	assert.Equal(t, domain.DefaultMessage(domain.KindExtraction), last.Error)

	assert.Len(t, primary.calls(), 1)
	assert.Len(t, fallback.calls(), 1)
	assert.Equal(t, domain.StateFailed, h.Job().State)
	assert.Equal(t, 0, env.workspaceCount(t))
	assert.Equal(t, 0, env.registry.Len())
}

func TestOrchestrator_BadRequest(t *testing.T) {
	env := newTestEnv(t, youtubeResolvers(staticResolver("yt", "https://cdn.example/v.mp4")))

	tests := []struct {
		name     string
		req      domain.DownloadRequest
		expected domain.Platform
	}{
		{"unsupported url", domain.DownloadRequest{SourceURL: "https://example.com/video", OutputKind: domain.OutputVideo}, domain.PlatformYouTube},
		{"platform mismatch", domain.DownloadRequest{SourceURL: "https://www.instagram.com/p/1/", OutputKind: domain.OutputVideo}, domain.PlatformYouTube},
		{"missing url", domain.DownloadRequest{OutputKind: domain.OutputVideo}, domain.PlatformYouTube},
		{"bad format", domain.DownloadRequest{SourceURL: "https://youtu.be/abc", OutputKind: "gif"}, domain.PlatformYouTube},
		{"unknown platform", domain.DownloadRequest{SourceURL: "https://vimeo.com/1", OutputKind: domain.OutputVideo}, domain.PlatformUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := env.orchestrator.Submit(context.Background(), tt.req, tt.expected)
			assert.Nil(t, h)
			assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
		})
	}
	assert.Equal(t, 0, env.workspaceCount(t))
}

func TestOrchestrator_RelaxedRetryOnce(t *testing.T) {
	resolver := &fakeResolver{name: "yt", resolve: func(relaxed bool) ([]string, error) {
		if !relaxed {
			return nil, domain.NewError(domain.KindExtraction, "resolve", domain.ErrFormatUnavailable)
		}
		return []string{"https://cdn.example/v.mp4"}, nil
	}}
	env := newTestEnv(t, youtubeResolvers(resolver))

	h, err := env.orchestrator.Submit(context.Background(), domain.DownloadRequest{
		SourceURL:  "https://youtu.be/abc",
		OutputKind: domain.OutputVideo,
	}, domain.PlatformYouTube)
	require.NoError(t, err)

	_, err = h.Wait()
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, resolver.calls())
	assert.Equal(t, 2, h.Job().Attempts)
}

func TestOrchestrator_RelaxedRetryFailsOnce(t *testing.T) {
	resolver := &fakeResolver{name: "yt", resolve: func(relaxed bool) ([]string, error) {
		return nil, domain.NewError(domain.KindExtraction, "resolve", domain.ErrFormatUnavailable)
	}}
	env := newTestEnv(t, youtubeResolvers(resolver))

	h, err := env.orchestrator.Submit(context.Background(), domain.DownloadRequest{
		SourceURL:  "https://youtu.be/abc",
		OutputKind: domain.OutputVideo,
	}, domain.PlatformYouTube)
	require.NoError(t, err)

	_, err = h.Wait()
	require.Error(t, err)
	assert.Equal(t, []bool{false, true}, resolver.calls())
	assert.Equal(t, 0, env.workspaceCount(t))
}

func TestOrchestrator_TranscodeRetryRefetches(t *testing.T) {
	env := newTestEnv(t, youtubeResolvers(staticResolver("yt", "https://cdn.example/a.webm")))
	env.streamer.contentType = "audio/webm"
	env.transcoder.err = domain.NewError(domain.KindTranscode, "convert", domain.ErrFormatUnavailable)

	h, err := env.orchestrator.Submit(context.Background(), domain.DownloadRequest{
		SourceURL:  "https://youtu.be/abc",
		OutputKind: domain.OutputAudio,
	}, domain.PlatformYouTube)
	require.NoError(t, err)

	_, err = h.Wait()
	require.Error(t, err)
	assert.Equal(t, domain.KindTranscode, domain.KindOf(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&env.transcoder.calls))
	assert.Equal(t, 2, h.Job().Attempts)
	assert.Equal(t, 0, env.workspaceCount(t))
}

func TestOrchestrator_NoRetryForOtherErrors(t *testing.T) {
	resolver := &fakeResolver{name: "yt", resolve: func(bool) ([]string, error) {
		return nil, domain.NewError(domain.KindExtraction, "resolve", errors.New("private video"))
	}}
	env := newTestEnv(t, youtubeResolvers(resolver))

	h, err := env.orchestrator.Submit(context.Background(), domain.DownloadRequest{
		SourceURL:  "https://youtu.be/abc",
		OutputKind: domain.OutputVideo,
	}, domain.PlatformYouTube)
	require.NoError(t, err)

	_, err = h.Wait()
	require.Error(t, err)
	assert.Equal(t, []bool{false}, resolver.calls())
}

func TestOrchestrator_CancelCleansUp(t *testing.T) {
	env := newTestEnv(t, youtubeResolvers(staticResolver("yt", "https://cdn.example/v.mp4")))
	env.streamer.block = true
	env.streamer.started = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	h, err := env.orchestrator.Submit(ctx, domain.DownloadRequest{
		SourceURL:  "https://youtu.be/abc",
		OutputKind: domain.OutputVideo,
	}, domain.PlatformYouTube)
	require.NoError(t, err)

	select {
	case <-env.streamer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never started")
	}
	cancel()

	_, err = h.Wait()
	require.Error(t, err)
	assert.Equal(t, domain.KindCancelled, domain.KindOf(err))
	assert.Equal(t, domain.StateFailed, h.Job().State)
	assert.Equal(t, 0, env.workspaceCount(t))
	assert.Equal(t, 0, env.registry.Len())
}

func TestOrchestrator_ReapUnclaimed(t *testing.T) {
	env := newTestEnv(t, youtubeResolvers(staticResolver("yt", "https://cdn.example/v.mp4")))
	clock := time.Now()
	env.registry.now = func() time.Time { return clock }

	h, err := env.orchestrator.Submit(context.Background(), domain.DownloadRequest{
		SourceURL:  "https://youtu.be/abc",
		OutputKind: domain.OutputVideo,
	}, domain.PlatformYouTube)
	require.NoError(t, err)
	result, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, env.workspaceCount(t))

	clock = clock.Add(env.config.Artifacts.Retention + time.Second)
	assert.Equal(t, 1, env.registry.Reap())

	_, err = env.registry.TakeOnce(result.Token)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.Equal(t, 0, env.workspaceCount(t))
}

func TestOrchestrator_ConcurrentJobsIsolated(t *testing.T) {
	env := newTestEnv(t, youtubeResolvers(staticResolver("yt", "https://cdn.example/v.mp4")))

	const jobs = 6
	var wg sync.WaitGroup
	tokens := make(chan string, jobs)
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := env.orchestrator.Submit(context.Background(), domain.DownloadRequest{
				SourceURL:  "https://youtu.be/abc",
				OutputKind: domain.OutputVideo,
			}, domain.PlatformYouTube)
			if !assert.NoError(t, err) {
				return
			}
			result, err := h.Wait()
			if assert.NoError(t, err) {
				tokens <- result.Token
			}
		}()
	}
	wg.Wait()
	close(tokens)

	seen := make(map[string]bool)
	for token := range tokens {
		assert.False(t, seen[token])
		seen[token] = true
	}
	assert.Len(t, seen, jobs)
	assert.Equal(t, jobs, env.workspaceCount(t))
	assert.Equal(t, jobs, env.registry.Purge())
	assert.Equal(t, 0, env.workspaceCount(t))
}
