package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileRecorder allocates one audio file per capture under a directory. The
// client holding the microphone writes into the file between Begin and End;
// FileRecorder only tracks the target and the elapsed time.
type FileRecorder struct {
	dir string
	now func() time.Time

	mu      sync.Mutex
	path    string
	started time.Time
}

// NewFileRecorder creates a recorder writing under dir.
func NewFileRecorder(dir string) *FileRecorder {
	return &FileRecorder{dir: dir, now: time.Now}
}

// Begin creates a fresh, empty audio file and returns its file:// URI.
func (r *FileRecorder) Begin(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path != "" {
		return "", errors.New("recorder: already recording")
	}
	if err := os.MkdirAll(r.dir, 0700); err != nil {
		return "", fmt.Errorf("recorder: create audio dir: %w", err)
	}
	path := filepath.Join(r.dir, uuid.NewString()+".m4a")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("recorder: allocate target: %w", err)
	}
	_ = f.Close()

	r.path = path
	r.started = r.now()
	return "file://" + filepath.ToSlash(path), nil
}

// End releases the target and reports the recording duration.
func (r *FileRecorder) End(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path == "" {
		return 0, errors.New("recorder: not recording")
	}
	d := r.now().Sub(r.started)
	r.path = ""
	return d.Milliseconds(), nil
}
