package app

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"strings"

	nanoid "github.com/jaevor/go-nanoid"
	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/internal/domain"
	"github.com/yourusername/media-dl-go/internal/infrastructure"
	"github.com/yourusername/media-dl-go/pkg/logger"
)

// ArtifactPath is the route prefix artifacts are served under
const ArtifactPath = "/api/download/artifact/"

const (
	fileIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	fileIDLength   = 16
	sourceFileName = "source.part"
	eventBuffer    = 16
)

// Result describes a completed job
type Result struct {
	Job         *domain.Job
	Artifact    *domain.Artifact
	Token       string
	DownloadURL string
}

// JobHandle follows one running job. Events is closed after the terminal
// event; Wait returns the outcome.
type JobHandle struct {
	job    *domain.Job
	events chan domain.ProgressEvent
	done   chan struct{}
	result *Result
	err    error
}

// Job returns the job. Its fields are stable once Done is closed.
func (h *JobHandle) Job() *domain.Job {
	return h.job
}

// Events returns the progress stream
func (h *JobHandle) Events() <-chan domain.ProgressEvent {
	return h.events
}

// Done is closed when the job reached a terminal state
func (h *JobHandle) Done() <-chan struct{} {
	return h.done
}

// Wait discards unread events and blocks until the job finishes
func (h *JobHandle) Wait() (*Result, error) {
	for range h.events {
	}
	<-h.done
	return h.result, h.err
}

// Orchestrator runs the fetch, convert and register pipeline per request
type Orchestrator struct {
	fetcher            *Fetcher
	transcoder         domain.Transcoder
	workspaces         domain.WorkspaceManager
	registry           *ArtifactRegistry
	config             *domain.Config
	logger             *zap.Logger
	multiLogger        *logger.MultiLogger
	platformSemaphores map[domain.Platform]chan struct{}
	newFileID          func() string
}

// NewOrchestrator creates an orchestrator. multiLogger may be nil.
func NewOrchestrator(
	fetcher *Fetcher,
	transcoder domain.Transcoder,
	workspaces domain.WorkspaceManager,
	registry *ArtifactRegistry,
	config *domain.Config,
	log *zap.Logger,
	multiLogger *logger.MultiLogger,
) (*Orchestrator, error) {
	gen, err := nanoid.CustomASCII(fileIDAlphabet, fileIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create file id generator: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	// Jobs of one platform share a limit so a burst on one site cannot
	// starve the other
	platformSemaphores := make(map[domain.Platform]chan struct{})
	for _, p := range domain.SupportedPlatforms() {
		platformSemaphores[p] = make(chan struct{}, config.Download.LimitFor(p))
	}

	return &Orchestrator{
		fetcher:            fetcher,
		transcoder:         transcoder,
		workspaces:         workspaces,
		registry:           registry,
		config:             config,
		logger:             log,
		multiLogger:        multiLogger,
		platformSemaphores: platformSemaphores,
		newFileID:          gen,
	}, nil
}

// Submit validates req against the platform named by the endpoint and
// starts the job. Validation failures return a bad request error and
// allocate nothing. The job stops when ctx is cancelled.
func (o *Orchestrator) Submit(ctx context.Context, req domain.DownloadRequest, expected domain.Platform) (*JobHandle, error) {
	job := domain.NewJob(req, expected)
	_ = job.Transition(domain.StateValidating)

	platform, err := req.Validate(expected)
	job.Platform = platform
	if err != nil {
		job.MarkFailed(err)
		o.logger.Info("Rejected download request",
			zap.String("id", job.ID),
			zap.String("url", req.SourceURL),
			zap.String("expected", string(expected)),
			zap.String("platform", string(platform)),
			zap.Error(err))
		return nil, err
	}

	o.logEvent("job_created",
		zap.String("id", job.ID),
		zap.String("url", req.SourceURL),
		zap.String("platform", string(platform)),
		zap.String("format", string(req.OutputKind)))

	h := &JobHandle{
		job:    job,
		events: make(chan domain.ProgressEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	go o.run(infrastructure.WithJobID(ctx, job.ID), h)
	return h, nil
}

// jobRun carries the per-job state shared by the pipeline steps
type jobRun struct {
	ctx     context.Context
	handle  *JobHandle
	tracker domain.ProgressTracker
}

func (r *jobRun) job() *domain.Job {
	return r.handle.job
}

// emit sends a progress event. Intermediate events are dropped when the
// consumer lags; starting and terminal events wait for the consumer or ctx.
func (r *jobRun) emit(ev domain.ProgressEvent) bool {
	if ev.Status == domain.ProgressDownloading || ev.Status == domain.ProgressConverting {
		select {
		case r.handle.events <- ev:
		default:
		}
		return true
	}
	select {
	case r.handle.events <- ev:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *jobRun) progress(status domain.ProgressStatus, percent int) {
	if ev, ok := r.tracker.Next(status, percent); ok {
		r.emit(ev)
	}
}

func (o *Orchestrator) run(ctx context.Context, h *JobHandle) {
	r := &jobRun{ctx: ctx, handle: h}

	defer func() {
		if p := recover(); p != nil {
			o.fail(r, domain.NewError(domain.KindInternal, "orchestrator.run", fmt.Errorf("panic: %v", p)))
		}
		close(h.events)
		close(h.done)
	}()

	result, err := o.execute(r)
	if err != nil {
		o.fail(r, err)
		return
	}

	ev, _ := r.tracker.Next(domain.ProgressCompleted, 100)
	ev.FileName = result.Artifact.FileName
	ev.DownloadURL = result.DownloadURL
	if !r.emit(ev) {
		// nobody is left to learn the token
		o.registry.Discard(result.Token)
		h.err = fmt.Errorf("orchestrator.deliver: %w", ctx.Err())
		o.logger.Info("Client left before completion was delivered", zap.String("id", h.job.ID))
		return
	}
	h.result = result

	o.logger.Info("Job completed",
		zap.String("id", h.job.ID),
		zap.String("file", result.Artifact.FileName),
		zap.Int64("size", result.Artifact.Size),
		zap.Int("attempts", h.job.Attempts))
	o.logEvent("job_completed",
		zap.String("id", h.job.ID),
		zap.String("file", result.Artifact.FileName),
		zap.Int64("size", result.Artifact.Size))
}

// execute runs the pipeline inside a workspace it owns until the artifact
// is registered
func (o *Orchestrator) execute(r *jobRun) (*Result, error) {
	job := r.job()

	sem := o.platformSemaphores[job.Platform]
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-r.ctx.Done():
		return nil, fmt.Errorf("orchestrator.acquire: %w", r.ctx.Err())
	}

	ws, err := o.workspaces.Create()
	if err != nil {
		return nil, err
	}
	handedOff := false
	defer func() {
		if !handedOff {
			o.workspaces.Destroy(ws)
		}
	}()

	if err := job.Transition(domain.StateFetching); err != nil {
		return nil, domain.NewError(domain.KindInternal, "orchestrator.execute", err)
	}
	r.progress(domain.ProgressStarting, 0)

	job.Attempts = 1
	artifact, err := o.produce(r, ws, false)
	if err != nil && errors.Is(err, domain.ErrFormatUnavailable) && r.ctx.Err() == nil {
		job.Attempts++
		o.logger.Warn("Format not available, retrying with relaxed selection",
			zap.String("id", job.ID),
			zap.Error(err))
		o.logEvent("job_retry", zap.String("id", job.ID), zap.String("reason", "format_unavailable"))
		artifact, err = o.produce(r, ws, true)
	}
	if err != nil {
		return nil, err
	}

	if err := job.Transition(domain.StateFinalizing); err != nil {
		return nil, domain.NewError(domain.KindInternal, "orchestrator.execute", err)
	}
	if err := r.ctx.Err(); err != nil {
		return nil, fmt.Errorf("orchestrator.finalize: %w", err)
	}

	token, err := o.registry.Register(artifact)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "orchestrator.register", err)
	}
	handedOff = true

	if err := job.Transition(domain.StateCompleted); err != nil {
		o.registry.Discard(token)
		return nil, domain.NewError(domain.KindInternal, "orchestrator.execute", err)
	}

	return &Result{
		Job:         job,
		Artifact:    artifact,
		Token:       token,
		DownloadURL: o.config.Server.PublicBaseURL + ArtifactPath + token,
	}, nil
}

// produce resolves, streams and, for audio, converts into ws. relaxed picks
// the permissive format selection.
func (o *Orchestrator) produce(r *jobRun, ws *domain.Workspace, relaxed bool) (*domain.Artifact, error) {
	job := r.job()
	kind := job.Request.OutputKind

	if job.State == domain.StateConverting {
		if err := job.Transition(domain.StateFetching); err != nil {
			return nil, domain.NewError(domain.KindInternal, "orchestrator.produce", err)
		}
	}

	directURL, err := o.fetcher.ResolveDirectURL(r.ctx, job.Request.SourceURL, job.Platform, kind, relaxed)
	if err != nil {
		return nil, err
	}

	// audio is converted afterwards, so the download fills the first half
	fetchHi := 100
	if kind == domain.OutputAudio {
		fetchHi = 50
	}

	sourcePath := ws.Path(sourceFileName)
	stream, err := o.fetcher.Stream(r.ctx, directURL, sourcePath, func(loaded, total int64) {
		r.progress(domain.ProgressDownloading, domain.ScalePercent(loaded, total, 0, fetchHi))
	})
	if err != nil {
		return nil, err
	}
	r.progress(domain.ProgressDownloading, fetchHi)

	fileName := fmt.Sprintf("%s-%s.%s", o.config.Download.FilePrefix, o.newFileID(), kind.Extension())
	targetPath := ws.Path(fileName)

	if kind == domain.OutputAudio && !isMP3(stream.ContentType, directURL) {
		if err := job.Transition(domain.StateConverting); err != nil {
			return nil, domain.NewError(domain.KindInternal, "orchestrator.produce", err)
		}
		r.progress(domain.ProgressConverting, 50)

		err := o.transcoder.Convert(r.ctx, sourcePath, targetPath, o.config.Transcoder.AudioTarget(), func(p float64) {
			r.progress(domain.ProgressConverting, 50+int(p/2))
		})
		if err != nil {
			os.Remove(targetPath)
			return nil, err
		}
		if err := os.Remove(sourcePath); err != nil {
			o.logger.Warn("Failed to remove source file", zap.String("id", job.ID), zap.Error(err))
		}
	} else if err := os.Rename(sourcePath, targetPath); err != nil {
		return nil, domain.NewError(domain.KindResource, "orchestrator.produce", err)
	}

	info, err := os.Stat(targetPath)
	if err != nil {
		return nil, domain.NewError(domain.KindFetch, "orchestrator.produce", fmt.Errorf("artifact missing after pipeline: %w", err))
	}

	return &domain.Artifact{
		FileName:    fileName,
		Path:        targetPath,
		ContentType: kind.ContentType(),
		Size:        info.Size(),
		Workspace:   ws,
		CreatedAt:   info.ModTime(),
	}, nil
}

// fail records the error, logs the diagnostic and emits the terminal event
// carrying only the public message
func (o *Orchestrator) fail(r *jobRun, err error) {
	job := r.job()
	job.MarkFailed(err)
	r.handle.err = err
	r.handle.result = nil

	kind := domain.KindOf(err)
	if kind == domain.KindCancelled {
		o.logger.Info("Job cancelled", zap.String("id", job.ID), zap.String("state", string(lastActiveState(job))))
	} else {
		o.logger.Error("Job failed",
			zap.String("id", job.ID),
			zap.String("url", job.Request.SourceURL),
			zap.String("kind", string(kind)),
			zap.String("state", string(lastActiveState(job))),
			zap.Error(err))
		if o.multiLogger != nil {
			o.multiLogger.LogAppError("Job failed", zap.String("id", job.ID), zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	o.logEvent("job_failed", zap.String("id", job.ID), zap.String("kind", string(kind)))

	ev, ok := r.tracker.Next(domain.ProgressFailed, r.tracker.Percent())
	if ok {
		ev.Error = domain.PublicMessage(err)
		r.emit(ev)
	}
}

func (o *Orchestrator) logEvent(event string, fields ...zap.Field) {
	if o.multiLogger != nil {
		o.multiLogger.LogJobEvent(event, fields...)
	}
}

// lastActiveState returns the state the job was in before it failed
func lastActiveState(job *domain.Job) domain.JobState {
	if n := len(job.History); n >= 2 && job.State == domain.StateFailed {
		return job.History[n-2]
	}
	return job.State
}

func isMP3(contentType, directURL string) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if mediaType == "audio/mpeg" || mediaType == "audio/mp3" {
			return true
		}
	}
	if u, err := url.Parse(directURL); err == nil {
		return strings.EqualFold(path.Ext(u.Path), ".mp3")
	}
	return false
}
