package store

import (
	"database/sql"
	"errors"
)

// ─── Capture Commit ──────────────────────────────────────────────────────────

// CaptureCommit reports the rows written by CommitCapture.
type CaptureCommit struct {
	Note        Note     `json:"note"`
	FactIDs     []string `json:"fact_ids"`
	HotTopicIDs []string `json:"hot_topic_ids"`
}

// CommitCapture writes a note together with the facts and hot topics
// extracted from it in a single transaction. Either every row is visible
// afterwards or none is; any failure is returned as a *PersistenceError
// (or ErrNotFound / ErrInvalidInput, which also leave the store untouched).
func (s *Store) CommitCapture(note NoteParams, facts []FactDraft, topics []HotTopicDraft) (*CaptureCommit, error) {
	const op = "commit capture"

	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM contacts WHERE id = ?`, note.ContactID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("contact", note.ContactID)
	}
	if err != nil {
		return nil, persistErr(op, err)
	}

	tx, err := s.beginTxHook()
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	noteID, err := insertNote(s, tx, note)
	if err != nil {
		return nil, persistErr(op, err)
	}

	result := &CaptureCommit{}
	for _, f := range facts {
		id, err := insertFact(s, tx, FactParams{
			ContactID:    note.ContactID,
			SourceNoteID: noteID,
			FactDraft:    f,
		})
		if err != nil {
			return nil, persistErr(op, err)
		}
		result.FactIDs = append(result.FactIDs, id)
	}
	for _, h := range topics {
		id, err := insertHotTopic(s, tx, HotTopicParams{ContactID: note.ContactID, HotTopicDraft: h})
		if err != nil {
			return nil, persistErr(op, err)
		}
		result.HotTopicIDs = append(result.HotTopicIDs, id)
	}

	if _, err := s.execHook(tx,
		`UPDATE contacts SET last_contact_at = ?, updated_at = ? WHERE id = ?`,
		Now(), Now(), note.ContactID,
	); err != nil {
		return nil, persistErr(op, err)
	}

	if err := s.commitHook(tx); err != nil {
		return nil, persistErr(op, err)
	}
	s.detail.Invalidate(note.ContactID)

	n, err := s.GetNote(noteID)
	if err != nil {
		return nil, err
	}
	result.Note = *n
	return result, nil
}
