// Package history keeps a bounded, most-recent-first journal of questions
// asked about contacts and the answers they got.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/logging"
	"github.com/HendryAvila/kith/internal/metrics"
)

const (
	// DefaultMaxEntries caps the journal.
	DefaultMaxEntries = 50
	// MaxAnswerRunes bounds the stored answer before the ellipsis.
	MaxAnswerRunes = 150

	ellipsis = "..."
)

// ErrEmptyQuestion rejects entries without a question.
var ErrEmptyQuestion = errors.New("history: question is required")

// Entry is one question/answer interaction.
type Entry struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	AnswerSummary string    `json:"answer_summary"`
	Timestamp     time.Time `json:"timestamp"`
	ContactID     string    `json:"contact_id,omitempty"`
	ContactName   string    `json:"contact_name,omitempty"`
}

// Journal is the persisted history. Entries are newest first.
type Journal struct {
	path    string
	max     int
	now     func() time.Time
	log     *logrus.Entry
	metrics *metrics.Metrics

	mu       sync.Mutex
	entries  []Entry
	hydrated bool
}

// Option customizes a Journal.
type Option func(*Journal)

// WithLogger sets the log entry.
func WithLogger(log *logrus.Entry) Option { return func(j *Journal) { j.log = log } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(j *Journal) { j.metrics = m } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(j *Journal) { j.now = now } }

// New creates a journal persisted at path. Nothing is read until Load.
func New(path string, maxEntries int, opts ...Option) *Journal {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	j := &Journal{
		path: path,
		max:  maxEntries,
		now:  time.Now,
		log:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Hydrated reports whether the journal has been loaded from disk. Until it
// is, an empty Entries result means "unknown", not "empty".
func (j *Journal) Hydrated() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.hydrated
}

// Entries returns a copy of the journal, newest first.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Load reads the journal file. A missing file loads as empty. The hydrated
// flag flips on the first successful load only.
func (j *Journal) Load() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.loadLocked()
}

func (j *Journal) loadLocked() error {
	data, err := os.ReadFile(j.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		j.entries = nil
	case err != nil:
		return fmt.Errorf("history: read %s: %w", j.path, err)
	default:
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("history: decode %s: %w", j.path, err)
		}
		if len(entries) > j.max {
			entries = entries[:j.max]
		}
		j.entries = entries
	}
	if !j.hydrated {
		j.hydrated = true
		j.log.WithField("entries", len(j.entries)).Debug("question history loaded")
	}
	j.metrics.History(len(j.entries))
	return nil
}

// Add records an interaction and returns the stored entry. The answer is
// truncated to MaxAnswerRunes with an ellipsis. The oldest entry is evicted
// once the journal is full. Nothing changes in memory when the save fails.
func (j *Journal) Add(question, answer, contactID, contactName string) (Entry, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Entry{}, ErrEmptyQuestion
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.ensureLoadedLocked(); err != nil {
		return Entry{}, err
	}

	e := Entry{
		ID:            uuid.NewString(),
		Question:      question,
		AnswerSummary: Truncate(answer, MaxAnswerRunes),
		Timestamp:     j.now().UTC(),
		ContactID:     strings.TrimSpace(contactID),
		ContactName:   strings.TrimSpace(contactName),
	}
	entries := make([]Entry, 0, len(j.entries)+1)
	entries = append(entries, e)
	entries = append(entries, j.entries...)
	if len(entries) > j.max {
		entries = entries[:j.max]
	}
	if err := j.saveLocked(entries); err != nil {
		return Entry{}, err
	}
	j.entries = entries
	return e, nil
}

// Remove deletes the entry with id. It reports whether anything was removed.
func (j *Journal) Remove(id string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.ensureLoadedLocked(); err != nil {
		return false, err
	}

	kept := j.entries[:0:0]
	for _, e := range j.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(j.entries) {
		return false, nil
	}
	if err := j.saveLocked(kept); err != nil {
		return false, err
	}
	j.entries = kept
	return true, nil
}

// Clear empties the journal.
func (j *Journal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.ensureLoadedLocked(); err != nil {
		return err
	}
	if err := j.saveLocked(nil); err != nil {
		return err
	}
	j.entries = nil
	return nil
}

// Save writes the entries array to disk.
func (j *Journal) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.saveLocked(j.entries)
}

// ensureLoadedLocked hydrates before the first mutation so a write never
// clobbers entries that are still only on disk.
func (j *Journal) ensureLoadedLocked() error {
	if j.hydrated {
		return nil
	}
	return j.loadLocked()
}

func (j *Journal) saveLocked(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("history: create directory: %w", err)
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("history: replace %s: %w", j.path, err)
	}
	j.metrics.History(len(entries))
	return nil
}

// Truncate shortens s to at most limit runes. A truncated result is cut
// back to trimmed text, never ends in a backslash and carries an ellipsis.
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)[:limit]
	cut := strings.TrimRightFunc(string(runes), func(r rune) bool {
		return unicode.IsSpace(r) || r == '\\'
	})
	return cut + ellipsis
}
