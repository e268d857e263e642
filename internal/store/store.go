// Package store implements kith's local-first persistence layer.
//
// Contacts own their notes, facts and hot topics; groups are an independent
// many-to-many collection. Everything lives in one SQLite database opened in
// WAL mode. Ids are generated client-side so every create succeeds offline.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is the wall clock used for created_at / updated_at.
var timeNow = time.Now

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DBFileName is the SQLite file created inside the data directory.
const DBFileName = "kith.db"

// ─── Errors ──────────────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidInput wraps validation failures (empty first name, unknown fact type...).
	ErrInvalidInput = errors.New("store: invalid input")
)

// PersistenceError wraps any failure of the underlying database. The
// operation named by Op must be treated as not having happened.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	DataDir        string
	DetailCacheTTL time.Duration
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the Local Store backed by SQLite.
type Store struct {
	db     *sql.DB
	cfg    Config
	hooks  storeHooks
	detail *DetailCache
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type sqlRowScanner struct {
	rows *sql.Rows
}

func (r sqlRowScanner) Next() bool             { return r.rows.Next() }
func (r sqlRowScanner) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRowScanner) Err() error             { return r.rows.Err() }
func (r sqlRowScanner) Close() error           { return r.rows.Close() }

// storeHooks lets tests fail individual statements, including the ones
// issued inside CommitCapture's transaction.
type storeHooks struct {
	exec    func(db execer, query string, args ...any) (sql.Result, error)
	queryIt func(db queryer, query string, args ...any) (rowScanner, error)
	beginTx func(db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func (s *Store) execHook(db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(db, query, args...)
	}
	return db.Exec(query, args...)
}

func (s *Store) queryItHook(db queryer, query string, args ...any) (rowScanner, error) {
	if s.hooks.queryIt != nil {
		return s.hooks.queryIt(db, query, args...)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRowScanner{rows: rows}, nil
}

func (s *Store) beginTxHook() (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(s.db)
	}
	return s.db.Begin()
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New opens (creating if needed) the database under cfg.DataDir and runs
// migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	if cfg.DetailCacheTTL <= 0 {
		cfg.DetailCacheTTL = 5 * time.Minute
	}

	db, err := openDB("sqlite", filepath.Join(cfg.DataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// foreign_keys is per connection; a single connection keeps it in force
	// and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg, detail: NewDetailCache(cfg.DetailCacheTTL)}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DetailCache returns the view cache sitting in front of ContactDetail.
func (s *Store) DetailCache() *DetailCache {
	return s.detail
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS contacts (
			id              TEXT PRIMARY KEY,
			first_name      TEXT NOT NULL CHECK (length(trim(first_name)) > 0),
			last_name       TEXT NOT NULL DEFAULT '',
			nickname        TEXT NOT NULL DEFAULT '',
			tags            TEXT NOT NULL DEFAULT '[]',
			last_contact_at TEXT,
			ai_summary      TEXT,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notes (
			id                TEXT PRIMARY KEY,
			contact_id        TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
			audio_uri         TEXT,
			audio_duration_ms INTEGER,
			transcription     TEXT,
			summary           TEXT,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notes_contact ON notes(contact_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS facts (
			id             TEXT PRIMARY KEY,
			contact_id     TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
			fact_type      TEXT NOT NULL,
			fact_key       TEXT NOT NULL,
			fact_value     TEXT NOT NULL,
			source_note_id TEXT REFERENCES notes(id) ON DELETE SET NULL,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_facts_contact ON facts(contact_id, created_at);

		CREATE TABLE IF NOT EXISTS hot_topics (
			id         TEXT PRIMARY KEY,
			contact_id TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
			title      TEXT NOT NULL,
			context    TEXT,
			resolved   INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_hot_topics_contact ON hot_topics(contact_id, created_at);

		CREATE TABLE IF NOT EXISTS contact_groups (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL CHECK (length(trim(name)) > 0),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS group_members (
			group_id   TEXT NOT NULL REFERENCES contact_groups(id) ON DELETE CASCADE,
			contact_id TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
			added_at   TEXT NOT NULL,
			PRIMARY KEY (group_id, contact_id)
		);
		CREATE INDEX IF NOT EXISTS idx_group_members_contact ON group_members(contact_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats holds aggregate counts across the store.
type Stats struct {
	Contacts   int `json:"contacts"`
	Summarized int `json:"summarized"`
	Notes      int `json:"notes"`
	Facts      int `json:"facts"`
	HotTopics  int `json:"hot_topics"`
	Groups     int `json:"groups"`
}

// Stats returns aggregate counts.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM contacts", &stats.Contacts},
		{"SELECT COUNT(*) FROM contacts WHERE ai_summary IS NOT NULL", &stats.Summarized},
		{"SELECT COUNT(*) FROM notes", &stats.Notes},
		{"SELECT COUNT(*) FROM facts", &stats.Facts},
		{"SELECT COUNT(*) FROM hot_topics", &stats.HotTopics},
		{"SELECT COUNT(*) FROM contact_groups", &stats.Groups},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dst); err != nil {
			return nil, persistErr("stats", err)
		}
	}
	return stats, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// FormatTime renders t in the store's sortable timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses a timestamp written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Now returns the current time formatted for storage.
func Now() string {
	return FormatTime(timeNow())
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// normalizeTags lower-cases, trims, dedupes and sorts tags.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func encodeTags(tags []string) (string, error) {
	b, err := json.Marshal(normalizeTags(tags))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	tags := []string{}
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}
