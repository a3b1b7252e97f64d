// Package failurelog appends failed-job reports to a shared text file.
//
// Entries are written with one write call on an O_APPEND descriptor while
// holding both an in-process mutex and an advisory file lock, so concurrent
// workers and concurrent runs never interleave partial entries.
package failurelog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"audioconv/internal/services"
)

// FileName is the log name created in the run's working directory.
const FileName = "audio-conv.log"

// Entry describes one failed job.
type Entry struct {
	At      time.Time
	RunID   string
	RelPath string
	Err     error
}

// Log is safe for concurrent use.
type Log struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
	now  func() time.Time
}

// New returns a log writing to path. The file is created lazily on the first
// append.
func New(path string) *Log {
	return &Log{
		path: path,
		lock: flock.New(path + ".lock"),
		now:  time.Now,
	}
}

// InDir returns a log at FileName inside dir.
func InDir(dir string) *Log {
	return New(filepath.Join(dir, FileName))
}

// Path returns the log file location.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes one entry. Failures are marked ErrLog.
func (l *Log) Append(entry Entry) error {
	if l == nil {
		return services.Wrap(services.ErrLog, "failurelog", "append", "log not configured", nil)
	}
	if entry.At.IsZero() {
		entry.At = l.now()
	}
	payload := []byte(Format(entry))

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err != nil {
		return services.Wrap(services.ErrLog, "failurelog", "lock", l.lock.Path(), err)
	}
	defer func() {
		_ = l.lock.Unlock()
	}()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return services.Wrap(services.ErrLog, "failurelog", "open", l.path, err)
	}
	_, writeErr := file.Write(payload)
	closeErr := file.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		return services.Wrap(services.ErrLog, "failurelog", "write", l.path, err)
	}
	return nil
}

// Format renders an entry: a header line followed by the error chain, one
// cause per line, and a blank separator line.
func Format(entry Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", entry.At.UTC().Format(time.RFC3339))
	if entry.RunID != "" {
		fmt.Fprintf(&b, " run=%s", entry.RunID)
	}
	if kind := services.FailureKind(entry.Err); kind != "" {
		fmt.Fprintf(&b, " kind=%s", kind)
	}
	fmt.Fprintf(&b, " %s\n", entry.RelPath)
	chain := services.Chain(entry.Err)
	if len(chain) == 0 {
		chain = []string{"unknown error"}
	}
	for _, line := range chain {
		b.WriteString("    ")
		b.WriteString(sanitize(line))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// sanitize keeps multi-line tool output inside its entry.
func sanitize(line string) string {
	return strings.ReplaceAll(line, "\n", "\n      ")
}
