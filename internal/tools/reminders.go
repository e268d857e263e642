package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/kith/internal/reminder"
	"github.com/HendryAvila/kith/internal/store"
)

const dateLayout = "2006-01-02"

// ─── reminder_schedule ───────────────────────────────────────────────────────

// ReminderScheduleTool handles the reminder_schedule MCP tool.
type ReminderScheduleTool struct {
	scheduler *reminder.Scheduler
	store     *store.Store
}

// NewReminderScheduleTool creates a ReminderScheduleTool.
func NewReminderScheduleTool(sc *reminder.Scheduler, s *store.Store) *ReminderScheduleTool {
	return &ReminderScheduleTool{scheduler: sc, store: s}
}

// Definition returns the MCP tool definition for reminder_schedule.
func (t *ReminderScheduleTool) Definition() mcp.Tool {
	return mcp.NewTool("reminder_schedule",
		mcp.WithDescription(
			"Get a reminder the evening before an event with a contact. "+
				"Events whose reminder time has already passed are not scheduled.",
		),
		mcp.WithString("date",
			mcp.Required(),
			mcp.Description("Event date as YYYY-MM-DD"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("What is happening (e.g. 'Ana's birthday dinner')"),
		),
		mcp.WithString("contact_id",
			mcp.Description("Contact the event is with"),
		),
		mcp.WithString("event_id",
			mcp.Description("Your own id for the event (default: generated)"),
		),
	)
}

// Handle processes the reminder_schedule tool call.
func (t *ReminderScheduleTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := strings.TrimSpace(req.GetString("title", ""))
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}
	date, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.GetString("date", "")), t.scheduler.Location())
	if err != nil {
		return mcp.NewToolResultError("'date' must be YYYY-MM-DD"), nil
	}

	ev := reminder.Event{
		ID:    req.GetString("event_id", ""),
		Date:  date,
		Title: title,
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if contactID := req.GetString("contact_id", ""); contactID != "" {
		c, err := t.store.GetContact(contactID)
		if err != nil {
			return errorResult("schedule reminder", err), nil
		}
		ev.ContactName = c.DisplayName()
	}

	h, ok, err := t.scheduler.Schedule(ctx, ev)
	if err != nil {
		if errors.Is(err, reminder.ErrInvalidEvent) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return errorResult("schedule reminder", err), nil
	}
	trigger := t.scheduler.TriggerFor(date).Format("Mon 2006-01-02 15:04")
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Not scheduled: the reminder time (%s) has already passed.", trigger)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Reminder set for %s (handle: `%s`, event: `%s`).", trigger, h, ev.ID)), nil
}

// ─── reminder_cancel ─────────────────────────────────────────────────────────

// ReminderCancelTool handles the reminder_cancel MCP tool.
type ReminderCancelTool struct {
	scheduler *reminder.Scheduler
}

// NewReminderCancelTool creates a ReminderCancelTool.
func NewReminderCancelTool(sc *reminder.Scheduler) *ReminderCancelTool {
	return &ReminderCancelTool{scheduler: sc}
}

// Definition returns the MCP tool definition for reminder_cancel.
func (t *ReminderCancelTool) Definition() mcp.Tool {
	return mcp.NewTool("reminder_cancel",
		mcp.WithDescription("Cancel a scheduled reminder. Cancelling twice is harmless."),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("Handle returned by reminder_schedule"),
		),
	)
}

// Handle processes the reminder_cancel tool call.
func (t *ReminderCancelTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h := req.GetString("handle", "")
	if h == "" {
		return mcp.NewToolResultError("'handle' is required"), nil
	}
	if err := t.scheduler.Cancel(ctx, reminder.Handle(h)); err != nil {
		return errorResult("cancel reminder", err), nil
	}
	return mcp.NewToolResultText("Reminder cancelled."), nil
}

// ─── reminder_list ───────────────────────────────────────────────────────────

// ReminderListTool handles the reminder_list MCP tool.
type ReminderListTool struct {
	notifier *reminder.LocalNotifier
}

// NewReminderListTool creates a ReminderListTool.
func NewReminderListTool(n *reminder.LocalNotifier) *ReminderListTool {
	return &ReminderListTool{notifier: n}
}

// Definition returns the MCP tool definition for reminder_list.
func (t *ReminderListTool) Definition() mcp.Tool {
	return mcp.NewTool("reminder_list",
		mcp.WithDescription("List reminders waiting to fire, soonest first."),
	)
}

// Handle processes the reminder_list tool call.
func (t *ReminderListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pending := t.notifier.Pending()
	if len(pending) == 0 {
		return mcp.NewToolResultText("No reminders scheduled."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Reminders (%d)\n\n", len(pending))
	for _, p := range pending {
		fmt.Fprintf(&b, "- %s: **%s** (%s) `%s`\n",
			p.At.Format("Mon 2006-01-02 15:04"), p.Notification.Title, p.Notification.Body, p.Handle)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── reminder_open ───────────────────────────────────────────────────────────

// ReminderOpenTool handles the reminder_open MCP tool.
type ReminderOpenTool struct {
	notifier *reminder.LocalNotifier
}

// NewReminderOpenTool creates a ReminderOpenTool.
func NewReminderOpenTool(n *reminder.LocalNotifier) *ReminderOpenTool {
	return &ReminderOpenTool{notifier: n}
}

// Definition returns the MCP tool definition for reminder_open.
func (t *ReminderOpenTool) Definition() mcp.Tool {
	return mcp.NewTool("reminder_open",
		mcp.WithDescription(
			"Open a reminder notification the user acted on. Returns the event it belongs to "+
				"so you can pull up the contact before the meeting.",
		),
		mcp.WithString("handle",
			mcp.Required(),
			mcp.Description("Handle from the reminder notification or reminder_list"),
		),
	)
}

// Handle processes the reminder_open tool call.
func (t *ReminderOpenTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h := strings.TrimSpace(req.GetString("handle", ""))
	if h == "" {
		return mcp.NewToolResultError("'handle' is required"), nil
	}
	n, err := t.notifier.Tap(reminder.Handle(h))
	if errors.Is(err, reminder.ErrUnknownHandle) {
		return mcp.NewToolResultError(fmt.Sprintf("No reminder with handle %q.", h)), nil
	}
	if err != nil {
		return errorResult("open reminder", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("**%s**: %s (event: `%s`)", n.Title, n.Body, n.EventID)), nil
}

// ─── follow_ups ──────────────────────────────────────────────────────────────

// FollowUpsTool handles the follow_ups MCP tool.
type FollowUpsTool struct {
	digest *reminder.Digest
}

// NewFollowUpsTool creates a FollowUpsTool.
func NewFollowUpsTool(d *reminder.Digest) *FollowUpsTool {
	return &FollowUpsTool{digest: d}
}

// Definition returns the MCP tool definition for follow_ups.
func (t *FollowUpsTool) Definition() mcp.Tool {
	return mcp.NewTool("follow_ups",
		mcp.WithDescription(
			"List the people you have not been in touch with for a while, as the periodic follow-up digest would.",
		),
	)
}

// Handle processes the follow_ups tool call.
func (t *FollowUpsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stale, err := t.digest.Stale()
	if err != nil {
		return errorResult("list follow-ups", err), nil
	}

	var b strings.Builder
	if len(stale) == 0 {
		b.WriteString("You are up to date with everyone.\n")
	} else {
		fmt.Fprintf(&b, "## Catch up with (%d)\n\n", len(stale))
		for _, c := range stale {
			last := "never"
			if c.LastContactAt != nil && len(*c.LastContactAt) >= 10 {
				last = (*c.LastContactAt)[:10]
			}
			fmt.Fprintf(&b, "- **%s** `%s`: last contact %s\n", c.DisplayName(), c.ID, last)
		}
	}
	fmt.Fprintf(&b, "\nNext digest: %s\n", t.digest.NextRun(time.Now()).Format("Mon 2006-01-02 15:04"))
	return mcp.NewToolResultText(b.String()), nil
}
