package infrastructure

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ProcessLog appends external tool invocations to a dated log file.
// Each invocation is buffered and flushed as one block so concurrent jobs
// do not interleave.
type ProcessLog struct {
	dir string
	mu  sync.Mutex
}

// NewProcessLog creates a process log writing under dir. An empty dir
// disables file output.
func NewProcessLog(dir string) *ProcessLog {
	return &ProcessLog{dir: dir}
}

// ProcessRecord collects the output of one invocation
type ProcessRecord struct {
	log   *ProcessLog
	buf   bytes.Buffer
	mu    sync.Mutex
	start time.Time
}

// Begin starts a record with a header naming the job and command line
func (l *ProcessLog) Begin(jobID, binary string, args []string) *ProcessRecord {
	r := &ProcessRecord{log: l, start: time.Now()}
	fmt.Fprintf(&r.buf, "\n=== [%s] Job: %s ===\n", r.start.Format("2006-01-02 15:04:05"), jobID)
	fmt.Fprintf(&r.buf, "$ %s\n", CommandLine(binary, args...))
	return r
}

// Write appends raw process output
func (r *ProcessRecord) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

// Line appends one line of process output
func (r *ProcessRecord) Line(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.WriteString(s)
	r.buf.WriteByte('\n')
}

// End writes the footer and flushes the record to today's file
func (r *ProcessRecord) End(err error, message string) {
	status := "SUCCESS"
	if err != nil {
		status = "FAILED"
		message = fmt.Sprintf("%s: %v", message, err)
	}

	r.mu.Lock()
	fmt.Fprintf(&r.buf, "[%s] %s (%s): %s\n", time.Now().Format("2006-01-02 15:04:05"),
		status, time.Since(r.start).Round(time.Millisecond), message)
	r.buf.WriteString("=== END ===\n")
	data := append([]byte(nil), r.buf.Bytes()...)
	r.mu.Unlock()

	r.log.flush(data)
}

func (l *ProcessLog) flush(data []byte) {
	if l == nil || l.dir == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return
	}
	path := filepath.Join(l.dir, "process-"+time.Now().Format("20060102")+".log")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.Write(data)
}

// CommandLine renders binary and args as a copy-pasteable shell line.
// Only used for logs; exec.Command never goes through a shell.
func CommandLine(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellQuote(binary))
	for _, a := range args {
		parts = append(parts, ShellQuote(a))
	}
	return strings.Join(parts, " ")
}

// ShellQuote wraps s in single quotes when it holds shell metacharacters
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\r'\"$`\\!*?[](){}|;<>&~#%") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
