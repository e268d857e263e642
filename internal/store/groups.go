package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ─── Groups ──────────────────────────────────────────────────────────────────

// Group is a named collection of contacts. Deleting a group never deletes
// its members.
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// CreateGroup inserts a new group.
func (s *Store) CreateGroup(name string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("group name is required")
	}
	id := uuid.NewString()
	now := Now()
	if _, err := s.execHook(s.db,
		`INSERT INTO contact_groups (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, name, now, now,
	); err != nil {
		return nil, persistErr("create group", err)
	}
	return s.GetGroup(id)
}

// GetGroup retrieves a group with its member count.
func (s *Store) GetGroup(id string) (*Group, error) {
	var g Group
	err := s.db.QueryRow(
		`SELECT g.id, g.name, COUNT(m.contact_id), g.created_at, g.updated_at
		 FROM contact_groups g
		 LEFT JOIN group_members m ON m.group_id = g.id
		 WHERE g.id = ?
		 GROUP BY g.id`, id,
	).Scan(&g.ID, &g.Name, &g.MemberCount, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("group", id)
	}
	if err != nil {
		return nil, persistErr("get group", err)
	}
	return &g, nil
}

// ListGroups returns every group ordered by name.
func (s *Store) ListGroups() ([]Group, error) {
	rows, err := s.queryItHook(s.db,
		`SELECT g.id, g.name, COUNT(m.contact_id), g.created_at, g.updated_at
		 FROM contact_groups g
		 LEFT JOIN group_members m ON m.group_id = g.id
		 GROUP BY g.id
		 ORDER BY g.name COLLATE NOCASE, g.id`)
	if err != nil {
		return nil, persistErr("list groups", err)
	}
	defer func() { _ = rows.Close() }()

	var results []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.MemberCount, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, persistErr("list groups", err)
		}
		results = append(results, g)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list groups", err)
	}
	return results, nil
}

// RenameGroup changes a group's name.
func (s *Store) RenameGroup(id, name string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("group name is required")
	}
	res, err := s.execHook(s.db,
		`UPDATE contact_groups SET name = ?, updated_at = ? WHERE id = ?`, name, Now(), id)
	if err != nil {
		return nil, persistErr("rename group", err)
	}
	if err := requireAffected(res, "group", id); err != nil {
		return nil, persistErr("rename group", err)
	}
	return s.GetGroup(id)
}

// DeleteGroup removes a group and its memberships.
func (s *Store) DeleteGroup(id string) error {
	res, err := s.execHook(s.db, `DELETE FROM contact_groups WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete group", err)
	}
	return persistErr("delete group", requireAffected(res, "group", id))
}

// AddGroupMember adds a contact to a group. Adding an existing member is a
// no-op.
func (s *Store) AddGroupMember(groupID, contactID string) error {
	_, err := s.execHook(s.db,
		`INSERT OR IGNORE INTO group_members (group_id, contact_id, added_at) VALUES (?, ?, ?)`,
		groupID, contactID, Now(),
	)
	if isForeignKeyViolation(err) {
		return notFound("group or contact", groupID+"/"+contactID)
	}
	if err != nil {
		return persistErr("add group member", err)
	}
	_, err = s.execHook(s.db, `UPDATE contact_groups SET updated_at = ? WHERE id = ?`, Now(), groupID)
	return persistErr("add group member", err)
}

// RemoveGroupMember removes a contact from a group.
func (s *Store) RemoveGroupMember(groupID, contactID string) error {
	res, err := s.execHook(s.db,
		`DELETE FROM group_members WHERE group_id = ? AND contact_id = ?`, groupID, contactID)
	if err != nil {
		return persistErr("remove group member", err)
	}
	if err := requireAffected(res, "group member", groupID+"/"+contactID); err != nil {
		return persistErr("remove group member", err)
	}
	_, err = s.execHook(s.db, `UPDATE contact_groups SET updated_at = ? WHERE id = ?`, Now(), groupID)
	return persistErr("remove group member", err)
}

// ListGroupMembers returns the contacts in a group ordered by name.
func (s *Store) ListGroupMembers(groupID string) ([]Contact, error) {
	if _, err := s.GetGroup(groupID); err != nil {
		return nil, err
	}
	return s.queryContacts("list group members",
		`SELECT c.id, c.first_name, c.last_name, c.nickname, c.tags, c.last_contact_at,
		        c.ai_summary, c.created_at, c.updated_at
		 FROM contacts c
		 JOIN group_members m ON m.contact_id = c.id
		 WHERE m.group_id = ?
		 ORDER BY c.first_name COLLATE NOCASE, c.last_name COLLATE NOCASE, c.id`, groupID)
}
