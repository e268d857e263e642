package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/kith/internal/store"
)

// ─── group_create ────────────────────────────────────────────────────────────

// GroupCreateTool handles the group_create MCP tool.
type GroupCreateTool struct {
	store *store.Store
}

// NewGroupCreateTool creates a GroupCreateTool with the given store.
func NewGroupCreateTool(s *store.Store) *GroupCreateTool {
	return &GroupCreateTool{store: s}
}

// Definition returns the MCP tool definition for group_create.
func (t *GroupCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("group_create",
		mcp.WithDescription("Create a named group of contacts (family, climbing crew, old team)."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Group name"),
		),
	)
}

// Handle processes the group_create tool call.
func (t *GroupCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := t.store.CreateGroup(req.GetString("name", ""))
	if err != nil {
		return storeError("create group", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Group created: **%s** (id: `%s`)", g.Name, g.ID)), nil
}

// ─── group_list ──────────────────────────────────────────────────────────────

// GroupListTool handles the group_list MCP tool.
type GroupListTool struct {
	store *store.Store
}

// NewGroupListTool creates a GroupListTool with the given store.
func NewGroupListTool(s *store.Store) *GroupListTool {
	return &GroupListTool{store: s}
}

// Definition returns the MCP tool definition for group_list.
func (t *GroupListTool) Definition() mcp.Tool {
	return mcp.NewTool("group_list",
		mcp.WithDescription("List groups, or the members of one group when 'id' is given."),
		mcp.WithString("id",
			mcp.Description("Group id whose members to list"),
		),
	)
}

// Handle processes the group_list tool call.
func (t *GroupListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder

	if id := req.GetString("id", ""); id != "" {
		g, err := t.store.GetGroup(id)
		if err != nil {
			return storeError("list group", err), nil
		}
		members, err := t.store.ListGroupMembers(id)
		if err != nil {
			return storeError("list group", err), nil
		}
		fmt.Fprintf(&b, "## %s (%d members)\n\n", g.Name, len(members))
		for _, c := range members {
			writeContactLine(&b, c)
		}
		return mcp.NewToolResultText(b.String()), nil
	}

	groups, err := t.store.ListGroups()
	if err != nil {
		return storeError("list groups", err), nil
	}
	if len(groups) == 0 {
		return mcp.NewToolResultText("No groups yet."), nil
	}
	fmt.Fprintf(&b, "## Groups (%d)\n\n", len(groups))
	for _, g := range groups {
		fmt.Fprintf(&b, "- **%s** `%s`: %d members\n", g.Name, g.ID, g.MemberCount)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── group_delete ────────────────────────────────────────────────────────────

// GroupDeleteTool handles the group_delete MCP tool.
type GroupDeleteTool struct {
	store *store.Store
}

// NewGroupDeleteTool creates a GroupDeleteTool with the given store.
func NewGroupDeleteTool(s *store.Store) *GroupDeleteTool {
	return &GroupDeleteTool{store: s}
}

// Definition returns the MCP tool definition for group_delete.
func (t *GroupDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("group_delete",
		mcp.WithDescription("Delete a group. Its members are not deleted."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Group id"),
		),
	)
}

// Handle processes the group_delete tool call.
func (t *GroupDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	if err := t.store.DeleteGroup(id); err != nil {
		return storeError("delete group", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Group `%s` deleted.", id)), nil
}

// ─── group_add_member / group_remove_member ─────────────────────────────────

// GroupMemberTool handles group_add_member and group_remove_member; remove
// selects which.
type GroupMemberTool struct {
	store  *store.Store
	remove bool
}

// NewGroupAddMemberTool creates the group_add_member tool.
func NewGroupAddMemberTool(s *store.Store) *GroupMemberTool {
	return &GroupMemberTool{store: s}
}

// NewGroupRemoveMemberTool creates the group_remove_member tool.
func NewGroupRemoveMemberTool(s *store.Store) *GroupMemberTool {
	return &GroupMemberTool{store: s, remove: true}
}

// Definition returns the MCP tool definition.
func (t *GroupMemberTool) Definition() mcp.Tool {
	name, desc := "group_add_member", "Add a contact to a group. Adding an existing member does nothing."
	if t.remove {
		name, desc = "group_remove_member", "Remove a contact from a group."
	}
	return mcp.NewTool(name,
		mcp.WithDescription(desc),
		mcp.WithString("group_id",
			mcp.Required(),
			mcp.Description("Group id"),
		),
		mcp.WithString("contact_id",
			mcp.Required(),
			mcp.Description("Contact id"),
		),
	)
}

// Handle processes the tool call.
func (t *GroupMemberTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groupID := req.GetString("group_id", "")
	contactID := req.GetString("contact_id", "")
	if groupID == "" || contactID == "" {
		return mcp.NewToolResultError("'group_id' and 'contact_id' are required"), nil
	}

	if t.remove {
		if err := t.store.RemoveGroupMember(groupID, contactID); err != nil {
			return storeError("remove group member", err), nil
		}
		return mcp.NewToolResultText("Removed from group."), nil
	}
	if err := t.store.AddGroupMember(groupID, contactID); err != nil {
		return storeError("add group member", err), nil
	}
	return mcp.NewToolResultText("Added to group."), nil
}
