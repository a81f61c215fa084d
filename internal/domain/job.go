package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StateCreated    JobState = "created"
	StateValidating JobState = "validating"
	StateFetching   JobState = "fetching"
	StateConverting JobState = "converting"
	StateFinalizing JobState = "finalizing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

// IsTerminal checks if the state allows no further transitions
func (s JobState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

var allowedTransitions = map[JobState][]JobState{
	StateCreated:    {StateValidating},
	StateValidating: {StateFetching},
	StateFetching:   {StateConverting, StateFinalizing},
	StateConverting: {StateFinalizing, StateFetching}, // fetching again for the relaxed retry
	StateFinalizing: {StateCompleted},
}

// Job tracks one request through the pipeline
type Job struct {
	ID         string          `json:"id"`
	Request    DownloadRequest `json:"request"`
	Expected   Platform        `json:"expected_platform"`
	Platform   Platform        `json:"platform"`
	State      JobState        `json:"state"`
	History    []JobState      `json:"history"`
	Attempts   int             `json:"attempts"`
	Error      error           `json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// NewJob creates a job in the created state
func NewJob(req DownloadRequest, expected Platform) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New().String(),
		Request:   req,
		Expected:  expected,
		Platform:  PlatformUnsupported,
		State:     StateCreated,
		History:   []JobState{StateCreated},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the job to the next state.
// Failed is reachable from every non-terminal state.
func (j *Job) Transition(to JobState) error {
	if j.State.IsTerminal() {
		return fmt.Errorf("job %s already %s", j.ID, j.State)
	}
	if to != StateFailed && !canTransition(j.State, to) {
		return fmt.Errorf("invalid transition %s -> %s", j.State, to)
	}

	j.State = to
	j.History = append(j.History, to)
	j.UpdatedAt = time.Now()
	if to.IsTerminal() {
		now := j.UpdatedAt
		j.FinishedAt = &now
	}
	return nil
}

// MarkFailed moves the job to failed and records the cause
func (j *Job) MarkFailed(err error) {
	if j.State.IsTerminal() {
		return
	}
	j.Error = err
	_ = j.Transition(StateFailed)
}

func canTransition(from, to JobState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
