package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Contact is a person record. It is the aggregation root for notes, facts
// and hot topics.
type Contact struct {
	ID            string   `json:"id"`
	FirstName     string   `json:"first_name"`
	LastName      string   `json:"last_name,omitempty"`
	Nickname      string   `json:"nickname,omitempty"`
	Tags          []string `json:"tags"`
	LastContactAt *string  `json:"last_contact_at,omitempty"`
	AISummary     *string  `json:"ai_summary,omitempty"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

// DisplayName is "First Last", falling back to the nickname in quotes when
// one is set.
func (c Contact) DisplayName() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if c.Nickname != "" {
		name += ` "` + c.Nickname + `"`
	}
	return name
}

// CreateContactParams holds the input for creating a contact.
type CreateContactParams struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name,omitempty"`
	Nickname  string   `json:"nickname,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// UpdateContactParams holds partial update fields for a contact.
type UpdateContactParams struct {
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	Nickname  *string   `json:"nickname,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
}

const contactColumns = `id, first_name, last_name, nickname, tags, last_contact_at, ai_summary, created_at, updated_at`

func scanContact(scan func(dest ...any) error) (*Contact, error) {
	var c Contact
	var tags string
	if err := scan(&c.ID, &c.FirstName, &c.LastName, &c.Nickname, &tags,
		&c.LastContactAt, &c.AISummary, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	decoded, err := decodeTags(tags)
	if err != nil {
		return nil, err
	}
	c.Tags = decoded
	return &c, nil
}

// CreateContact inserts a new contact with a fresh id.
func (s *Store) CreateContact(p CreateContactParams) (*Contact, error) {
	first := strings.TrimSpace(p.FirstName)
	if first == "" {
		return nil, invalid("first_name is required")
	}
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return nil, persistErr("create contact", err)
	}

	id := uuid.NewString()
	now := Now()
	if _, err := s.execHook(s.db,
		`INSERT INTO contacts (id, first_name, last_name, nickname, tags, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, first, strings.TrimSpace(p.LastName), strings.TrimSpace(p.Nickname), tags, now, now,
	); err != nil {
		return nil, persistErr("create contact", err)
	}
	return s.GetContact(id)
}

// GetContact retrieves a contact by id.
func (s *Store) GetContact(id string) (*Contact, error) {
	row := s.db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	c, err := scanContact(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("contact", id)
	}
	if err != nil {
		return nil, persistErr("get contact", err)
	}
	return c, nil
}

// ListContacts returns every contact ordered by name.
func (s *Store) ListContacts() ([]Contact, error) {
	return s.queryContacts("list contacts",
		`SELECT `+contactColumns+` FROM contacts
		 ORDER BY first_name COLLATE NOCASE, last_name COLLATE NOCASE, id`)
}

// StaleContacts returns contacts never touched or last touched before cutoff,
// oldest first.
func (s *Store) StaleContacts(cutoff time.Time) ([]Contact, error) {
	return s.queryContacts("stale contacts",
		`SELECT `+contactColumns+` FROM contacts
		 WHERE last_contact_at IS NULL OR last_contact_at < ?
		 ORDER BY COALESCE(last_contact_at, ''), first_name COLLATE NOCASE`,
		FormatTime(cutoff))
}

func (s *Store) queryContacts(op, query string, args ...any) ([]Contact, error) {
	rows, err := s.queryItHook(s.db, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer func() { _ = rows.Close() }()

	var results []Contact
	for rows.Next() {
		c, err := scanContact(rows.Scan)
		if err != nil {
			return nil, persistErr(op, err)
		}
		results = append(results, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, err)
	}
	return results, nil
}

// UpdateContact applies a partial update and refreshes updated_at.
func (s *Store) UpdateContact(id string, p UpdateContactParams) (*Contact, error) {
	c, err := s.GetContact(id)
	if err != nil {
		return nil, err
	}

	if p.FirstName != nil {
		first := strings.TrimSpace(*p.FirstName)
		if first == "" {
			return nil, invalid("first_name cannot be empty")
		}
		c.FirstName = first
	}
	if p.LastName != nil {
		c.LastName = strings.TrimSpace(*p.LastName)
	}
	if p.Nickname != nil {
		c.Nickname = strings.TrimSpace(*p.Nickname)
	}
	if p.Tags != nil {
		c.Tags = *p.Tags
	}
	tags, err := encodeTags(c.Tags)
	if err != nil {
		return nil, persistErr("update contact", err)
	}

	if _, err := s.execHook(s.db,
		`UPDATE contacts
		 SET first_name = ?, last_name = ?, nickname = ?, tags = ?, updated_at = ?
		 WHERE id = ?`,
		c.FirstName, c.LastName, c.Nickname, tags, Now(), id,
	); err != nil {
		return nil, persistErr("update contact", err)
	}
	s.detail.Invalidate(id)
	return s.GetContact(id)
}

// DeleteContact removes a contact together with its notes, facts, hot
// topics and group memberships.
func (s *Store) DeleteContact(id string) error {
	res, err := s.execHook(s.db, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete contact", err)
	}
	s.detail.Invalidate(id)
	return persistErr("delete contact", requireAffected(res, "contact", id))
}

// TouchContact records an interaction with the contact at the given time.
func (s *Store) TouchContact(id string, at time.Time) error {
	res, err := s.execHook(s.db,
		`UPDATE contacts SET last_contact_at = ?, updated_at = ? WHERE id = ?`,
		FormatTime(at), Now(), id,
	)
	if err != nil {
		return persistErr("touch contact", err)
	}
	s.detail.Invalidate(id)
	return persistErr("touch contact", requireAffected(res, "contact", id))
}

// SetAISummary stores the summary produced by the summarization service.
// An empty summary clears it.
func (s *Store) SetAISummary(id, summary string) error {
	res, err := s.execHook(s.db,
		`UPDATE contacts SET ai_summary = ?, updated_at = ? WHERE id = ?`,
		nullableString(strings.TrimSpace(summary)), Now(), id,
	)
	if err != nil {
		return persistErr("set ai summary", err)
	}
	s.detail.Invalidate(id)
	return persistErr("set ai summary", requireAffected(res, "contact", id))
}
