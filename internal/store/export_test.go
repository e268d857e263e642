package store

import (
	"database/sql"
	"strings"
	"time"
)

// DB exposes the internal *sql.DB for test helpers in store_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FailExecMatching makes every statement containing substr fail with err.
func (s *Store) FailExecMatching(substr string, err error) {
	s.hooks.exec = func(db execer, query string, args ...any) (sql.Result, error) {
		if strings.Contains(query, substr) {
			return nil, err
		}
		return db.Exec(query, args...)
	}
}

// BeforeQueryMatching runs fn once, right before the first query containing
// substr is executed.
func (s *Store) BeforeQueryMatching(substr string, fn func()) {
	fired := false
	s.hooks.queryIt = func(db queryer, query string, args ...any) (rowScanner, error) {
		if !fired && strings.Contains(query, substr) {
			fired = true
			fn()
		}
		rows, err := db.Query(query, args...)
		if err != nil {
			return nil, err
		}
		return sqlRowScanner{rows: rows}, nil
	}
}

// FailCommit makes transaction commits fail with err.
func (s *Store) FailCommit(err error) {
	s.hooks.commit = func(tx *sql.Tx) error {
		_ = tx.Rollback()
		return err
	}
}

// SetClock replaces the store clock and returns a restore func.
func SetClock(f func() time.Time) func() {
	prev := timeNow
	timeNow = f
	return func() { timeNow = prev }
}
