package domain

import (
	"path/filepath"
	"time"
)

// Workspace is a per-job temporary directory
type Workspace struct {
	ID        string    `json:"id"`
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"created_at"`
}

// Path joins name onto the workspace directory
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Artifact is the finished file produced by a job
type Artifact struct {
	FileName    string     `json:"fileName"`
	Path        string     `json:"-"`
	ContentType string     `json:"contentType"`
	Size        int64      `json:"size"`
	Workspace   *Workspace `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}
