package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewMultiLogger_RequiresDir(t *testing.T) {
	_, err := NewMultiLogger(MultiLoggerConfig{Level: "info"})
	assert.Error(t, err)
}

func TestMultiLogger_WritesCategories(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	ml.LogJobEvent("job_completed", zap.String("id", "job-1"))
	ml.LogAppError("job_failed", zap.String("id", "job-2"))
	require.NoError(t, ml.Close())

	date := time.Now().Format("20060102")
	jobLog, err := os.ReadFile(filepath.Join(dir, "job-"+date+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(jobLog), `"msg":"job_completed"`)
	assert.Contains(t, string(jobLog), `"id":"job-1"`)

	errLog, err := os.ReadFile(filepath.Join(dir, "error-"+date+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(errLog), "job-2")
	assert.NotContains(t, string(errLog), "job-1")
}

func TestMultiLogger_RotatesDaily(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)
	defer ml.Close()

	tomorrow := time.Now().Add(24 * time.Hour)
	ml.now = func() time.Time { return tomorrow }

	ml.LogJobEvent("next_day")

	data, err := os.ReadFile(filepath.Join(dir, "job-"+tomorrow.Format("20060102")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "next_day")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "server.log")

	log, err := New(Config{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)
	log.Info("hello", zap.Int("n", 1))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestNewDefault(t *testing.T) {
	assert.NotNil(t, NewDefault())
}
