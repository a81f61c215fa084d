package domain

// ProgressStatus is the phase reported in a progress event
type ProgressStatus string

const (
	ProgressStarting    ProgressStatus = "starting"
	ProgressDownloading ProgressStatus = "downloading"
	ProgressConverting  ProgressStatus = "converting"
	ProgressCompleted   ProgressStatus = "completed"
	ProgressFailed      ProgressStatus = "failed"
)

// IsTerminal reports whether no event may follow this status
func (s ProgressStatus) IsTerminal() bool {
	return s == ProgressCompleted || s == ProgressFailed
}

// ProgressEvent is one entry of a job's progress stream
type ProgressEvent struct {
	Percent     int            `json:"percent"`
	Status      ProgressStatus `json:"status"`
	FileName    string         `json:"fileName,omitempty"`
	DownloadURL string         `json:"downloadUrl,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// ProgressTracker produces a non-decreasing event sequence for one job.
// It is owned by a single goroutine.
type ProgressTracker struct {
	last     int
	status   ProgressStatus
	started  bool
	finished bool
}

// Next normalises a raw percent for status and reports whether the event is
// worth emitting. Percent is clamped to [0, 100] and never goes below the
// previous value. Repeated events with the same percent and status are
// dropped.
func (t *ProgressTracker) Next(status ProgressStatus, percent int) (ProgressEvent, bool) {
	if t.finished {
		return ProgressEvent{}, false
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent < t.last {
		percent = t.last
	}
	if status == ProgressCompleted {
		percent = 100
	}
	if t.started && percent == t.last && status == t.status {
		return ProgressEvent{}, false
	}

	t.started = true
	t.last = percent
	t.status = status
	t.finished = status.IsTerminal()
	return ProgressEvent{Percent: percent, Status: status}, true
}

// Percent returns the last emitted percent
func (t *ProgressTracker) Percent() int {
	return t.last
}

// ScalePercent maps a byte count to a percent inside [lo, hi].
// It returns lo when total is unknown.
func ScalePercent(loaded, total int64, lo, hi int) int {
	if total <= 0 {
		return lo
	}
	if loaded > total {
		loaded = total
	}
	return lo + int(float64(hi-lo)*float64(loaded)/float64(total))
}
