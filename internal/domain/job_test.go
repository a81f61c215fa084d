package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	req := DownloadRequest{SourceURL: "https://youtu.be/abc123", OutputKind: OutputVideo}

	job := NewJob(req, PlatformYouTube)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, req, job.Request)
	assert.Equal(t, PlatformYouTube, job.Expected)
	assert.Equal(t, StateCreated, job.State)
	assert.Equal(t, []JobState{StateCreated}, job.History)
	assert.Nil(t, job.FinishedAt)
}

func TestJob_TransitionHappyPath(t *testing.T) {
	job := NewJob(DownloadRequest{}, PlatformYouTube)

	for _, s := range []JobState{StateValidating, StateFetching, StateConverting, StateFinalizing, StateCompleted} {
		require.NoError(t, job.Transition(s))
	}

	assert.Equal(t, StateCompleted, job.State)
	assert.NotNil(t, job.FinishedAt)
	assert.Len(t, job.History, 6)
}

func TestJob_TransitionSkipsConverting(t *testing.T) {
	job := NewJob(DownloadRequest{}, PlatformYouTube)

	require.NoError(t, job.Transition(StateValidating))
	require.NoError(t, job.Transition(StateFetching))
	require.NoError(t, job.Transition(StateFinalizing))
	require.NoError(t, job.Transition(StateCompleted))
}

func TestJob_TransitionRefetchAfterConverting(t *testing.T) {
	job := NewJob(DownloadRequest{}, PlatformYouTube)

	for _, s := range []JobState{StateValidating, StateFetching, StateConverting, StateFetching, StateFinalizing} {
		require.NoError(t, job.Transition(s))
	}
	assert.Error(t, job.Transition(StateFetching))
}

func TestJob_TransitionInvalid(t *testing.T) {
	job := NewJob(DownloadRequest{}, PlatformYouTube)

	assert.Error(t, job.Transition(StateFetching))
	assert.Error(t, job.Transition(StateCompleted))
	assert.Equal(t, StateCreated, job.State)
}

func TestJob_MarkFailed(t *testing.T) {
	job := NewJob(DownloadRequest{}, PlatformYouTube)
	require.NoError(t, job.Transition(StateValidating))

	cause := errors.New("boom")
	job.MarkFailed(cause)

	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, cause, job.Error)
	assert.Error(t, job.Transition(StateFetching))

	// failing twice keeps the first cause
	job.MarkFailed(errors.New("again"))
	assert.Equal(t, cause, job.Error)
	assert.Equal(t, []JobState{StateCreated, StateValidating, StateFailed}, job.History)
}
