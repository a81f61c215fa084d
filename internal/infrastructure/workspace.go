package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"go.uber.org/zap"

	"github.com/yourusername/media-dl-go/internal/domain"
)

const (
	workspacePrefix   = "ws-"
	workspaceAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	workspaceIDLength = 12
)

// WorkspaceManager creates per-job directories under a shared root
type WorkspaceManager struct {
	root   string
	logger *zap.Logger
	newID  func() string
}

// NewWorkspaceManager creates a workspace manager rooted at root
func NewWorkspaceManager(root string, logger *zap.Logger) (*WorkspaceManager, error) {
	gen, err := nanoid.CustomASCII(workspaceAlphabet, workspaceIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkspaceManager{root: root, logger: logger, newID: gen}, nil
}

// Root returns the download root directory
func (m *WorkspaceManager) Root() string {
	return m.root
}

// Create allocates a fresh directory. The name combines the creation time in
// nanoseconds with a random suffix so concurrent requests never collide.
func (m *WorkspaceManager) Create() (*domain.Workspace, error) {
	const op = "workspace.create"

	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, domain.NewError(domain.KindResource, op, fmt.Errorf("failed to create root %s: %w", m.root, err))
	}

	now := time.Now()
	id := fmt.Sprintf("%d-%s", now.UnixNano(), m.newID())
	dir := filepath.Join(m.root, workspacePrefix+id)

	// Mkdir, not MkdirAll: an existing directory must be an error
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, domain.NewError(domain.KindResource, op, fmt.Errorf("failed to create %s: %w", dir, err))
	}

	m.logger.Debug("Workspace created", zap.String("workspace", id), zap.String("dir", dir))
	return &domain.Workspace{ID: id, Dir: dir, CreatedAt: now}, nil
}

// Destroy removes the workspace recursively. Missing directories are not an
// error; other failures are logged and swallowed.
func (m *WorkspaceManager) Destroy(ws *domain.Workspace) {
	if ws == nil || ws.Dir == "" {
		return
	}
	if !m.owns(ws.Dir) {
		m.logger.Error("Refusing to remove directory outside download root",
			zap.String("dir", ws.Dir),
			zap.String("root", m.root))
		return
	}

	if err := os.RemoveAll(ws.Dir); err != nil {
		m.logger.Warn("Failed to remove workspace",
			zap.String("workspace", ws.ID),
			zap.String("dir", ws.Dir),
			zap.Error(err))
		return
	}
	m.logger.Debug("Workspace removed", zap.String("workspace", ws.ID))
}

// Sweep removes workspaces last modified before cutoff. It is meant for
// directories left behind by a previous process and returns how many were
// removed.
func (m *WorkspaceManager) Sweep(cutoff time.Time) int {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("Failed to scan download root", zap.String("root", m.root), zap.Error(err))
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		m.Destroy(&domain.Workspace{
			ID:  strings.TrimPrefix(entry.Name(), workspacePrefix),
			Dir: filepath.Join(m.root, entry.Name()),
		})
		removed++
	}

	if removed > 0 {
		m.logger.Info("Swept stale workspaces", zap.Int("count", removed))
	}
	return removed
}

func (m *WorkspaceManager) owns(dir string) bool {
	rel, err := filepath.Rel(m.root, dir)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}
