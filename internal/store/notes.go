package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ─── Notes ───────────────────────────────────────────────────────────────────

// Note is one captured voice note attached to a contact.
type Note struct {
	ID              string  `json:"id"`
	ContactID       string  `json:"contact_id"`
	AudioURI        *string `json:"audio_uri,omitempty"`
	AudioDurationMs *int64  `json:"audio_duration_ms,omitempty"`
	Transcription   *string `json:"transcription,omitempty"`
	Summary         *string `json:"summary,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// NoteParams holds the input for creating a note.
type NoteParams struct {
	ContactID       string `json:"contact_id"`
	AudioURI        string `json:"audio_uri,omitempty"`
	AudioDurationMs int64  `json:"audio_duration_ms,omitempty"`
	Transcription   string `json:"transcription,omitempty"`
	Summary         string `json:"summary,omitempty"`
}

// UpdateNoteParams holds partial update fields for a note. created_at and
// the owning contact never change.
type UpdateNoteParams struct {
	Transcription *string `json:"transcription,omitempty"`
	Summary       *string `json:"summary,omitempty"`
}

const noteColumns = `id, contact_id, audio_uri, audio_duration_ms, transcription, summary, created_at, updated_at`

func scanNote(scan func(dest ...any) error) (*Note, error) {
	var n Note
	if err := scan(&n.ID, &n.ContactID, &n.AudioURI, &n.AudioDurationMs,
		&n.Transcription, &n.Summary, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func nullableDuration(ms int64) *int64 {
	if ms <= 0 {
		return nil
	}
	return &ms
}

func insertNote(s *Store, db execer, p NoteParams) (string, error) {
	if strings.TrimSpace(p.ContactID) == "" {
		return "", invalid("contact_id is required")
	}
	id := uuid.NewString()
	now := Now()
	_, err := s.execHook(db,
		`INSERT INTO notes (id, contact_id, audio_uri, audio_duration_ms, transcription, summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.ContactID, nullableString(p.AudioURI), nullableDuration(p.AudioDurationMs),
		nullableString(strings.TrimSpace(p.Transcription)), nullableString(strings.TrimSpace(p.Summary)),
		now, now,
	)
	if isForeignKeyViolation(err) {
		return "", notFound("contact", p.ContactID)
	}
	return id, err
}

// CreateNote inserts a standalone note.
func (s *Store) CreateNote(p NoteParams) (*Note, error) {
	id, err := insertNote(s, s.db, p)
	if err != nil {
		return nil, persistErr("create note", err)
	}
	s.detail.Invalidate(p.ContactID)
	return s.GetNote(id)
}

// GetNote retrieves a note by id.
func (s *Store) GetNote(id string) (*Note, error) {
	n, err := scanNote(s.db.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("note", id)
	}
	if err != nil {
		return nil, persistErr("get note", err)
	}
	return n, nil
}

// ListNotesByContact returns a contact's notes, newest first. limit <= 0
// means no limit.
func (s *Store) ListNotesByContact(contactID string, limit int) ([]Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE contact_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{contactID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.queryItHook(s.db, query, args...)
	if err != nil {
		return nil, persistErr("list notes", err)
	}
	defer func() { _ = rows.Close() }()

	var results []Note
	for rows.Next() {
		n, err := scanNote(rows.Scan)
		if err != nil {
			return nil, persistErr("list notes", err)
		}
		results = append(results, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list notes", err)
	}
	return results, nil
}

// UpdateNote applies a partial update and refreshes updated_at.
func (s *Store) UpdateNote(id string, p UpdateNoteParams) (*Note, error) {
	n, err := s.GetNote(id)
	if err != nil {
		return nil, err
	}
	transcription := derefString(n.Transcription)
	summary := derefString(n.Summary)
	if p.Transcription != nil {
		transcription = strings.TrimSpace(*p.Transcription)
	}
	if p.Summary != nil {
		summary = strings.TrimSpace(*p.Summary)
	}

	if _, err := s.execHook(s.db,
		`UPDATE notes SET transcription = ?, summary = ?, updated_at = ? WHERE id = ?`,
		nullableString(transcription), nullableString(summary), Now(), id,
	); err != nil {
		return nil, persistErr("update note", err)
	}
	s.detail.Invalidate(n.ContactID)
	return s.GetNote(id)
}

// DeleteNote removes a note. Facts extracted from it are kept; their
// source_note_id becomes NULL.
func (s *Store) DeleteNote(id string) error {
	n, err := s.GetNote(id)
	if err != nil {
		return err
	}
	if _, err := s.execHook(s.db, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return persistErr("delete note", err)
	}
	s.detail.Invalidate(n.ContactID)
	return nil
}
