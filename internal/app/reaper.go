package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/internal/domain"
	"github.com/yourusername/media-dl-go/pkg/logger"
)

// Sweeper removes leftover workspaces older than a cutoff
type Sweeper interface {
	Sweep(cutoff time.Time) int
}

// Reaper periodically drops artifacts nobody retrieved in time
type Reaper struct {
	registry    *ArtifactRegistry
	sweeper     Sweeper
	config      *domain.ArtifactConfig
	multiLogger *logger.MultiLogger
	logger      *zap.Logger
	mu          sync.RWMutex
	running     bool
	cron        *cron.Cron
}

// NewReaper creates a new reaper. sweeper and multiLogger may be nil.
func NewReaper(
	registry *ArtifactRegistry,
	sweeper Sweeper,
	config *domain.ArtifactConfig,
	multiLogger *logger.MultiLogger,
	log *zap.Logger,
) *Reaper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{
		registry:    registry,
		sweeper:     sweeper,
		config:      config,
		multiLogger: multiLogger,
		logger:      log,
	}
}

// Start sweeps workspaces left by a previous process and schedules reaping
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reaper already running")
	}

	if r.sweeper != nil {
		if n := r.sweeper.Sweep(time.Now().Add(-r.config.Retention)); n > 0 {
			r.logger.Info("Removed stale workspaces", zap.Int("count", n))
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(r.config.ReapInterval, func() { r.RunOnce() }); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("invalid reap interval %q: %w", r.config.ReapInterval, err)
	}
	r.cron = c
	r.running = true
	r.mu.Unlock()

	c.Start()
	r.logEvent("reaper_started", zap.String("interval", r.config.ReapInterval))

	go func() {
		<-ctx.Done()
		_ = r.Stop()
	}()

	return nil
}

// Stop stops the schedule and waits for a running reap to finish
func (r *Reaper) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("reaper not running")
	}
	r.running = false
	c := r.cron
	r.mu.Unlock()

	<-c.Stop().Done()
	r.logEvent("reaper_stopped")
	return nil
}

// IsRunning returns whether the reaper is scheduled
func (r *Reaper) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// RunOnce reaps expired artifacts now and returns how many were removed
func (r *Reaper) RunOnce() int {
	n := r.registry.Reap()
	if n > 0 {
		r.logEvent("artifacts_reaped", zap.Int("count", n), zap.Int("remaining", r.registry.Len()))
	}
	return n
}

func (r *Reaper) logEvent(event string, fields ...zap.Field) {
	if r.multiLogger != nil {
		r.multiLogger.LogJobEvent(event, fields...)
	}
}
