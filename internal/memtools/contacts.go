package memtools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/kith/internal/store"
)

// ─── contact_create ──────────────────────────────────────────────────────────

// ContactCreateTool handles the contact_create MCP tool.
type ContactCreateTool struct {
	store *store.Store
}

// NewContactCreateTool creates a ContactCreateTool with the given store.
func NewContactCreateTool(s *store.Store) *ContactCreateTool {
	return &ContactCreateTool{store: s}
}

// Definition returns the MCP tool definition for contact_create.
func (t *ContactCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("contact_create",
		mcp.WithDescription("Add a person to the relationship memory."),
		mcp.WithString("first_name",
			mcp.Required(),
			mcp.Description("First name"),
		),
		mcp.WithString("last_name",
			mcp.Description("Last name"),
		),
		mcp.WithString("nickname",
			mcp.Description("What you usually call them"),
		),
		mcp.WithArray("tags",
			mcp.WithStringItems(),
			mcp.Description("Free-form labels (e.g. 'work', 'climbing')"),
		),
	)
}

// Handle processes the contact_create tool call.
func (t *ContactCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	first := req.GetString("first_name", "")
	if strings.TrimSpace(first) == "" {
		return mcp.NewToolResultError("'first_name' is required"), nil
	}
	tags, _ := stringSlice(req, "tags")

	c, err := t.store.CreateContact(store.CreateContactParams{
		FirstName: first,
		LastName:  req.GetString("last_name", ""),
		Nickname:  req.GetString("nickname", ""),
		Tags:      tags,
	})
	if err != nil {
		return storeError("create contact", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Contact created: **%s** (id: `%s`)", c.DisplayName(), c.ID)), nil
}

// ─── contact_list ────────────────────────────────────────────────────────────

// ContactListTool handles the contact_list MCP tool.
type ContactListTool struct {
	store *store.Store
}

// NewContactListTool creates a ContactListTool with the given store.
func NewContactListTool(s *store.Store) *ContactListTool {
	return &ContactListTool{store: s}
}

// Definition returns the MCP tool definition for contact_list.
func (t *ContactListTool) Definition() mcp.Tool {
	return mcp.NewTool("contact_list",
		mcp.WithDescription(
			"List contacts ordered by name. Use 'stale_days' to list only people you have not "+
				"talked to in that many days (or ever).",
		),
		mcp.WithNumber("stale_days",
			mcp.Description("Only contacts not touched in this many days"),
		),
		mcp.WithString("tag",
			mcp.Description("Only contacts carrying this tag"),
		),
	)
}

// Handle processes the contact_list tool call.
func (t *ContactListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		contacts []store.Contact
		err      error
	)
	if days := intArg(req, "stale_days", 0); days > 0 {
		contacts, err = t.store.StaleContacts(time.Now().AddDate(0, 0, -days))
	} else {
		contacts, err = t.store.ListContacts()
	}
	if err != nil {
		return storeError("list contacts", err), nil
	}

	if tag := strings.ToLower(strings.TrimSpace(req.GetString("tag", ""))); tag != "" {
		filtered := contacts[:0]
		for _, c := range contacts {
			for _, ct := range c.Tags {
				if ct == tag {
					filtered = append(filtered, c)
					break
				}
			}
		}
		contacts = filtered
	}

	if len(contacts) == 0 {
		return mcp.NewToolResultText("No contacts found."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Contacts (%d)\n\n", len(contacts))
	for _, c := range contacts {
		writeContactLine(&b, c)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── contact_get ─────────────────────────────────────────────────────────────

// ContactGetTool handles the contact_get MCP tool.
type ContactGetTool struct {
	store *store.Store
}

// NewContactGetTool creates a ContactGetTool with the given store.
func NewContactGetTool(s *store.Store) *ContactGetTool {
	return &ContactGetTool{store: s}
}

// Definition returns the MCP tool definition for contact_get.
func (t *ContactGetTool) Definition() mcp.Tool {
	return mcp.NewTool("contact_get",
		mcp.WithDescription(
			"Show everything known about a contact: AI summary, facts, open hot topics and the most recent notes.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Contact id"),
		),
	)
}

// Handle processes the contact_get tool call.
func (t *ContactGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	d, err := t.store.ContactDetail(id)
	if err != nil {
		return storeError("get contact", err), nil
	}
	return mcp.NewToolResultText(FormatDetail(d)), nil
}

// FormatDetail renders a contact detail view as markdown.
func FormatDetail(d *store.ContactDetail) string {
	var b strings.Builder
	c := d.Contact
	fmt.Fprintf(&b, "# %s\n\n", c.DisplayName())
	fmt.Fprintf(&b, "**ID:** `%s`\n", c.ID)
	if len(c.Tags) > 0 {
		fmt.Fprintf(&b, "**Tags:** %s\n", strings.Join(c.Tags, ", "))
	}
	if c.LastContactAt != nil {
		fmt.Fprintf(&b, "**Last contact:** %s\n", shortDate(*c.LastContactAt))
	} else {
		b.WriteString("**Last contact:** never\n")
	}

	b.WriteString("\n## Summary\n\n")
	switch {
	case c.AISummary != nil:
		b.WriteString(*c.AISummary + "\n")
	case d.FactCount > 0 || d.HotTopicCount > 0:
		b.WriteString("_Summary is being generated._\n")
	default:
		b.WriteString("_Nothing to summarize yet._\n")
	}

	if len(d.Facts) > 0 {
		fmt.Fprintf(&b, "\n## Facts (%d)\n\n", d.FactCount)
		for _, f := range d.Facts {
			fmt.Fprintf(&b, "- %s / %s: **%s** `%s`\n", f.Type, f.Key, f.Value, f.ID)
		}
	}
	if len(d.HotTopics) > 0 {
		fmt.Fprintf(&b, "\n## Hot topics (%d)\n\n", d.HotTopicCount)
		for _, h := range d.HotTopics {
			mark := " "
			if h.Resolved {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s `%s`", mark, h.Title, h.ID)
			if h.Context != nil {
				fmt.Fprintf(&b, " — %s", *h.Context)
			}
			b.WriteString("\n")
		}
	}
	if len(d.RecentNotes) > 0 {
		fmt.Fprintf(&b, "\n## Recent notes (%d of %d)\n\n", len(d.RecentNotes), d.NoteCount)
		for _, n := range d.RecentNotes {
			fmt.Fprintf(&b, "- %s `%s`: %s\n", shortDate(n.CreatedAt), n.ID, notePreview(n))
		}
	}
	return b.String()
}

// ─── contact_update ──────────────────────────────────────────────────────────

// ContactUpdateTool handles the contact_update MCP tool.
type ContactUpdateTool struct {
	store *store.Store
}

// NewContactUpdateTool creates a ContactUpdateTool with the given store.
func NewContactUpdateTool(s *store.Store) *ContactUpdateTool {
	return &ContactUpdateTool{store: s}
}

// Definition returns the MCP tool definition for contact_update.
func (t *ContactUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("contact_update",
		mcp.WithDescription("Change a contact's name, nickname or tags. Only the fields you send are changed."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Contact id"),
		),
		mcp.WithString("first_name", mcp.Description("New first name")),
		mcp.WithString("last_name", mcp.Description("New last name")),
		mcp.WithString("nickname", mcp.Description("New nickname (empty string clears it)")),
		mcp.WithArray("tags",
			mcp.WithStringItems(),
			mcp.Description("Replacement tag list"),
		),
	)
}

// Handle processes the contact_update tool call.
func (t *ContactUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	p := store.UpdateContactParams{
		FirstName: optString(req, "first_name"),
		LastName:  optString(req, "last_name"),
		Nickname:  optString(req, "nickname"),
	}
	if tags, ok := stringSlice(req, "tags"); ok {
		p.Tags = &tags
	}

	c, err := t.store.UpdateContact(id, p)
	if err != nil {
		return storeError("update contact", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Contact updated: **%s** (id: `%s`)", c.DisplayName(), c.ID)), nil
}

// ─── contact_delete ──────────────────────────────────────────────────────────

// ContactDeleteTool handles the contact_delete MCP tool.
type ContactDeleteTool struct {
	store *store.Store
}

// NewContactDeleteTool creates a ContactDeleteTool with the given store.
func NewContactDeleteTool(s *store.Store) *ContactDeleteTool {
	return &ContactDeleteTool{store: s}
}

// Definition returns the MCP tool definition for contact_delete.
func (t *ContactDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("contact_delete",
		mcp.WithDescription(
			"Delete a contact together with all of their notes, facts, hot topics and group memberships. "+
				"This cannot be undone.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Contact id"),
		),
	)
}

// Handle processes the contact_delete tool call.
func (t *ContactDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	if err := t.store.DeleteContact(id); err != nil {
		return storeError("delete contact", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Contact `%s` deleted.", id)), nil
}

// ─── contact_touch ───────────────────────────────────────────────────────────

// ContactTouchTool handles the contact_touch MCP tool.
type ContactTouchTool struct {
	store *store.Store
}

// NewContactTouchTool creates a ContactTouchTool with the given store.
func NewContactTouchTool(s *store.Store) *ContactTouchTool {
	return &ContactTouchTool{store: s}
}

// Definition returns the MCP tool definition for contact_touch.
func (t *ContactTouchTool) Definition() mcp.Tool {
	return mcp.NewTool("contact_touch",
		mcp.WithDescription("Record that you were in touch with a contact (today, or on the given date)."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Contact id"),
		),
		mcp.WithString("date",
			mcp.Description("When, as YYYY-MM-DD (default: now)"),
		),
	)
}

// Handle processes the contact_touch tool call.
func (t *ContactTouchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	at := time.Now()
	if raw := strings.TrimSpace(req.GetString("date", "")); raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("'date' must be YYYY-MM-DD: %v", err)), nil
		}
		at = d
	}
	if err := t.store.TouchContact(id, at); err != nil {
		return storeError("touch contact", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Last contact for `%s` set to %s.", id, at.Format("2006-01-02"))), nil
}
