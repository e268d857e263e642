package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ─── Facts ───────────────────────────────────────────────────────────────────

// FactType is the closed set of structured attributes a fact can carry.
type FactType string

// Fact type constants.
const (
	FactJob          FactType = "job"
	FactCompany      FactType = "company"
	FactCity         FactType = "city"
	FactRelationship FactType = "relationship"
	FactBirthday     FactType = "birthday"
	FactInterest     FactType = "interest"
	FactPhone        FactType = "phone"
	FactEmail        FactType = "email"
	FactCustom       FactType = "custom"
)

var validFactTypes = map[FactType]bool{
	FactJob: true, FactCompany: true, FactCity: true, FactRelationship: true,
	FactBirthday: true, FactInterest: true, FactPhone: true, FactEmail: true,
	FactCustom: true,
}

// FactTypeValues returns the enum values for MCP tool definitions.
func FactTypeValues() []string {
	return []string{
		string(FactJob), string(FactCompany), string(FactCity), string(FactRelationship),
		string(FactBirthday), string(FactInterest), string(FactPhone), string(FactEmail),
		string(FactCustom),
	}
}

// ParseFactType validates a fact type, case-insensitively.
func ParseFactType(s string) (FactType, error) {
	t := FactType(strings.ToLower(strings.TrimSpace(s)))
	if !validFactTypes[t] {
		return "", invalid("unknown fact type %q", s)
	}
	return t, nil
}

// Fact is one structured attribute about a contact. Only Value is mutable.
type Fact struct {
	ID           string   `json:"id"`
	ContactID    string   `json:"contact_id"`
	Type         FactType `json:"fact_type"`
	Key          string   `json:"fact_key"`
	Value        string   `json:"fact_value"`
	SourceNoteID *string  `json:"source_note_id,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// FactDraft is an extracted fact not yet attached to a contact.
type FactDraft struct {
	Type  FactType `json:"fact_type"`
	Key   string   `json:"fact_key"`
	Value string   `json:"fact_value"`
}

// FactParams holds the input for creating a fact.
type FactParams struct {
	ContactID    string
	SourceNoteID string
	FactDraft
}

const factColumns = `id, contact_id, fact_type, fact_key, fact_value, source_note_id, created_at, updated_at`

func scanFact(scan func(dest ...any) error) (*Fact, error) {
	var f Fact
	if err := scan(&f.ID, &f.ContactID, &f.Type, &f.Key, &f.Value,
		&f.SourceNoteID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func insertFact(s *Store, db execer, p FactParams) (string, error) {
	typ, err := ParseFactType(string(p.Type))
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(p.Key)
	value := strings.TrimSpace(p.Value)
	if key == "" || value == "" {
		return "", invalid("fact key and value are required")
	}

	id := uuid.NewString()
	now := Now()
	_, err = s.execHook(db,
		`INSERT INTO facts (id, contact_id, fact_type, fact_key, fact_value, source_note_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.ContactID, string(typ), key, value, nullableString(p.SourceNoteID), now, now,
	)
	if isForeignKeyViolation(err) {
		return "", notFound("contact or note", p.ContactID)
	}
	return id, err
}

// CreateFact inserts a fact for a contact.
func (s *Store) CreateFact(p FactParams) (*Fact, error) {
	id, err := insertFact(s, s.db, p)
	if err != nil {
		return nil, persistErr("create fact", err)
	}
	s.detail.Invalidate(p.ContactID)
	return s.GetFact(id)
}

// GetFact retrieves a fact by id.
func (s *Store) GetFact(id string) (*Fact, error) {
	f, err := scanFact(s.db.QueryRow(`SELECT `+factColumns+` FROM facts WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("fact", id)
	}
	if err != nil {
		return nil, persistErr("get fact", err)
	}
	return f, nil
}

// ListFactsByContact returns a contact's facts in creation order.
func (s *Store) ListFactsByContact(contactID string) ([]Fact, error) {
	rows, err := s.queryItHook(s.db,
		`SELECT `+factColumns+` FROM facts WHERE contact_id = ? ORDER BY created_at, rowid`, contactID)
	if err != nil {
		return nil, persistErr("list facts", err)
	}
	defer func() { _ = rows.Close() }()

	var results []Fact
	for rows.Next() {
		f, err := scanFact(rows.Scan)
		if err != nil {
			return nil, persistErr("list facts", err)
		}
		results = append(results, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list facts", err)
	}
	return results, nil
}

// UpdateFact changes a fact's value. Type, key and contact are immutable.
func (s *Store) UpdateFact(id, value string) (*Fact, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, invalid("fact value is required")
	}
	f, err := s.GetFact(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.execHook(s.db,
		`UPDATE facts SET fact_value = ?, updated_at = ? WHERE id = ?`, value, Now(), id,
	); err != nil {
		return nil, persistErr("update fact", err)
	}
	s.detail.Invalidate(f.ContactID)
	return s.GetFact(id)
}

// DeleteFact removes a fact.
func (s *Store) DeleteFact(id string) error {
	f, err := s.GetFact(id)
	if err != nil {
		return err
	}
	if _, err := s.execHook(s.db, `DELETE FROM facts WHERE id = ?`, id); err != nil {
		return persistErr("delete fact", err)
	}
	s.detail.Invalidate(f.ContactID)
	return nil
}

// ─── Hot Topics ──────────────────────────────────────────────────────────────

// HotTopic is a standing conversational thread with a contact.
type HotTopic struct {
	ID        string  `json:"id"`
	ContactID string  `json:"contact_id"`
	Title     string  `json:"title"`
	Context   *string `json:"context,omitempty"`
	Resolved  bool    `json:"resolved"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// HotTopicDraft is an extracted hot topic not yet attached to a contact.
type HotTopicDraft struct {
	Title   string `json:"title"`
	Context string `json:"context,omitempty"`
}

// HotTopicParams holds the input for creating a hot topic.
type HotTopicParams struct {
	ContactID string
	HotTopicDraft
}

// UpdateHotTopicParams holds partial update fields for a hot topic.
type UpdateHotTopicParams struct {
	Title    *string `json:"title,omitempty"`
	Context  *string `json:"context,omitempty"`
	Resolved *bool   `json:"resolved,omitempty"`
}

const hotTopicColumns = `id, contact_id, title, context, resolved, created_at, updated_at`

func scanHotTopic(scan func(dest ...any) error) (*HotTopic, error) {
	var h HotTopic
	if err := scan(&h.ID, &h.ContactID, &h.Title, &h.Context, &h.Resolved, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

func insertHotTopic(s *Store, db execer, p HotTopicParams) (string, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return "", invalid("hot topic title is required")
	}
	id := uuid.NewString()
	now := Now()
	_, err := s.execHook(db,
		`INSERT INTO hot_topics (id, contact_id, title, context, resolved, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id, p.ContactID, title, nullableString(strings.TrimSpace(p.Context)), now, now,
	)
	if isForeignKeyViolation(err) {
		return "", notFound("contact", p.ContactID)
	}
	return id, err
}

// CreateHotTopic inserts a hot topic for a contact.
func (s *Store) CreateHotTopic(p HotTopicParams) (*HotTopic, error) {
	id, err := insertHotTopic(s, s.db, p)
	if err != nil {
		return nil, persistErr("create hot topic", err)
	}
	s.detail.Invalidate(p.ContactID)
	return s.GetHotTopic(id)
}

// GetHotTopic retrieves a hot topic by id.
func (s *Store) GetHotTopic(id string) (*HotTopic, error) {
	h, err := scanHotTopic(s.db.QueryRow(`SELECT `+hotTopicColumns+` FROM hot_topics WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("hot topic", id)
	}
	if err != nil {
		return nil, persistErr("get hot topic", err)
	}
	return h, nil
}

// ListHotTopicsByContact returns a contact's hot topics in creation order.
func (s *Store) ListHotTopicsByContact(contactID string) ([]HotTopic, error) {
	rows, err := s.queryItHook(s.db,
		`SELECT `+hotTopicColumns+` FROM hot_topics WHERE contact_id = ? ORDER BY created_at, rowid`, contactID)
	if err != nil {
		return nil, persistErr("list hot topics", err)
	}
	defer func() { _ = rows.Close() }()

	var results []HotTopic
	for rows.Next() {
		h, err := scanHotTopic(rows.Scan)
		if err != nil {
			return nil, persistErr("list hot topics", err)
		}
		results = append(results, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list hot topics", err)
	}
	return results, nil
}

// UpdateHotTopic applies a partial update and refreshes updated_at.
func (s *Store) UpdateHotTopic(id string, p UpdateHotTopicParams) (*HotTopic, error) {
	h, err := s.GetHotTopic(id)
	if err != nil {
		return nil, err
	}
	title := h.Title
	ctxText := derefString(h.Context)
	resolved := h.Resolved
	if p.Title != nil {
		title = strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, invalid("hot topic title cannot be empty")
		}
	}
	if p.Context != nil {
		ctxText = strings.TrimSpace(*p.Context)
	}
	if p.Resolved != nil {
		resolved = *p.Resolved
	}

	if _, err := s.execHook(s.db,
		`UPDATE hot_topics SET title = ?, context = ?, resolved = ?, updated_at = ? WHERE id = ?`,
		title, nullableString(ctxText), resolved, Now(), id,
	); err != nil {
		return nil, persistErr("update hot topic", err)
	}
	s.detail.Invalidate(h.ContactID)
	return s.GetHotTopic(id)
}

// DeleteHotTopic removes a hot topic.
func (s *Store) DeleteHotTopic(id string) error {
	h, err := s.GetHotTopic(id)
	if err != nil {
		return err
	}
	if _, err := s.execHook(s.db, `DELETE FROM hot_topics WHERE id = ?`, id); err != nil {
		return persistErr("delete hot topic", err)
	}
	s.detail.Invalidate(h.ContactID)
	return nil
}
