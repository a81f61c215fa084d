package app

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/internal/domain"
)

const tokenLength = 21

type registryEntry struct {
	artifact  *domain.Artifact
	expiresAt time.Time
}

// ArtifactRegistry hands finished artifacts to exactly one retrieval
type ArtifactRegistry struct {
	mu         sync.Mutex
	entries    map[string]*registryEntry
	workspaces domain.WorkspaceManager
	retention  time.Duration
	logger     *zap.Logger
	newToken   func() string
	now        func() time.Time
}

// NewArtifactRegistry creates a registry. Artifacts not retrieved within
// retention are dropped by Reap.
func NewArtifactRegistry(workspaces domain.WorkspaceManager, retention time.Duration, logger *zap.Logger) (*ArtifactRegistry, error) {
	gen, err := nanoid.Standard(tokenLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create token generator: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactRegistry{
		entries:    make(map[string]*registryEntry),
		workspaces: workspaces,
		retention:  retention,
		logger:     logger,
		newToken:   gen,
		now:        time.Now,
	}, nil
}

// Register stores the artifact and returns its download token. The registry
// now owns the artifact's workspace.
func (r *ArtifactRegistry) Register(artifact *domain.Artifact) (string, error) {
	if artifact == nil || artifact.Path == "" {
		return "", errors.New("artifact has no path")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	token := r.newToken()
	for _, exists := r.entries[token]; exists; _, exists = r.entries[token] {
		token = r.newToken()
	}
	r.entries[token] = &registryEntry{
		artifact:  artifact,
		expiresAt: r.now().Add(r.retention),
	}
	return token, nil
}

// TakeOnce removes the token and opens its artifact. A token succeeds at most
// once; unknown, expired and consumed tokens fail with a not found error.
func (r *ArtifactRegistry) TakeOnce(token string) (*Delivery, error) {
	const op = "registry.take"

	r.mu.Lock()
	entry, ok := r.entries[token]
	if ok {
		delete(r.entries, token)
	}
	r.mu.Unlock()

	if !ok {
		return nil, domain.NotFound(op)
	}

	ws := entry.artifact.Workspace
	if r.now().After(entry.expiresAt) {
		r.workspaces.Destroy(ws)
		return nil, domain.NotFound(op)
	}

	file, err := os.Open(entry.artifact.Path)
	if err != nil {
		r.workspaces.Destroy(ws)
		r.logger.Warn("Registered artifact missing on disk",
			zap.String("file", entry.artifact.FileName),
			zap.Error(err))
		return nil, domain.NewError(domain.KindNotFound, op, err)
	}

	return &Delivery{
		Artifact: entry.artifact,
		file:     file,
		cleanup:  func() { r.workspaces.Destroy(ws) },
	}, nil
}

// Discard drops a token without delivering it
func (r *ArtifactRegistry) Discard(token string) bool {
	r.mu.Lock()
	entry, ok := r.entries[token]
	if ok {
		delete(r.entries, token)
	}
	r.mu.Unlock()

	if ok {
		r.workspaces.Destroy(entry.artifact.Workspace)
	}
	return ok
}

// Reap drops every artifact past its retention window and returns the count
func (r *ArtifactRegistry) Reap() int {
	now := r.now()
	var expired []*registryEntry

	r.mu.Lock()
	for token, entry := range r.entries {
		if now.After(entry.expiresAt) {
			expired = append(expired, entry)
			delete(r.entries, token)
		}
	}
	r.mu.Unlock()

	for _, entry := range expired {
		r.workspaces.Destroy(entry.artifact.Workspace)
		r.logger.Info("Reaped unclaimed artifact",
			zap.String("file", entry.artifact.FileName),
			zap.Time("expired_at", entry.expiresAt))
	}
	return len(expired)
}

// Purge drops every artifact regardless of age
func (r *ArtifactRegistry) Purge() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		r.workspaces.Destroy(entry.artifact.Workspace)
	}
	return len(entries)
}

// Len returns the number of artifacts waiting for retrieval
func (r *ArtifactRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Delivery is an opened artifact. Closing it removes the artifact's
// workspace; Close is safe to call more than once.
type Delivery struct {
	Artifact *domain.Artifact
	file     *os.File
	once     sync.Once
	cleanup  func()
}

// Read reads artifact bytes
func (d *Delivery) Read(p []byte) (int, error) {
	return d.file.Read(p)
}

// Size returns the artifact size in bytes
func (d *Delivery) Size() int64 {
	if info, err := d.file.Stat(); err == nil {
		return info.Size()
	}
	return d.Artifact.Size
}

// Close closes the file and destroys the workspace
func (d *Delivery) Close() error {
	var err error
	d.once.Do(func() {
		err = d.file.Close()
		d.cleanup()
	})
	return err
}
