// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations
// and injects them into the tools/prompts/resources that depend on abstractions.
// No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/capture"
	"github.com/HendryAvila/kith/internal/config"
	"github.com/HendryAvila/kith/internal/enrich"
	"github.com/HendryAvila/kith/internal/history"
	"github.com/HendryAvila/kith/internal/logging"
	"github.com/HendryAvila/kith/internal/memtools"
	"github.com/HendryAvila/kith/internal/metrics"
	"github.com/HendryAvila/kith/internal/prompts"
	"github.com/HendryAvila/kith/internal/reminder"
	"github.com/HendryAvila/kith/internal/remote"
	"github.com/HendryAvila/kith/internal/resources"
	"github.com/HendryAvila/kith/internal/search"
	"github.com/HendryAvila/kith/internal/store"
	"github.com/HendryAvila/kith/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// tool is what every tool struct in tools and memtools provides.
type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
//
// The returned cleanup function stops background work (enrichment watches,
// the reminder scheduler, the metrics listener) and closes the database.
// It must be called on shutdown (typically via defer) and is always non-nil.
func New(cfg *config.Config, logger *logrus.Logger) (*server.MCPServer, func(), error) {
	log := logging.Component(logger, "server")
	m := metrics.New()
	bg, cancel := context.WithCancel(context.Background())

	var closers []func()
	cleanup := func() {
		cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Create shared dependencies ---

	st, err := store.New(store.Config{DataDir: cfg.DataDir})
	if err != nil {
		cancel()
		return nil, noop, fmt.Errorf("opening local store: %w", err)
	}
	closers = append(closers, func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Warn("store close")
		}
	})

	client := remote.New(cfg.Remote,
		remote.WithLogger(logging.Component(logger, "remote")),
		remote.WithUserAgent("kith/"+Version),
	)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"kith",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Enrichment ---

	pollLog := logging.Component(logger, "enrich")
	poller := enrich.NewPoller(
		enrich.NewSummaryFetcher(st, client, pollLog),
		enrich.Config{
			Interval:               cfg.Poller.Interval,
			MaxBackoff:             cfg.Poller.MaxBackoff,
			MaxConsecutiveFailures: cfg.Poller.MaxConsecutiveFailures,
		},
		enrich.WithLogger(pollLog),
		enrich.WithMetrics(m),
	)
	closers = append(closers, poller.StopAll)

	// --- Capture ---

	machine := capture.New(
		capture.NewFileRecorder(cfg.Capture.AudioDir),
		client, client, st,
		capture.WithLogger(logging.Component(logger, "capture")),
		capture.WithMetrics(m),
		capture.WithErrorResetAfter(cfg.Capture.ErrorResetAfter),
		capture.WithOnCommit(func(c *store.CaptureCommit) {
			if w, ok := poller.Get(c.Note.ContactID); ok {
				w.Invalidate()
				return
			}
			poller.Watch(bg, c.Note.ContactID, tools.LogUpdates(pollLog))
		}),
	)

	// --- Reminders ---

	loc, err := cfg.Reminders.Location()
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	remLog := logging.Component(logger, "reminder")
	deliver := func(h reminder.Handle, n reminder.Notification) {
		remLog.WithFields(logrus.Fields{"handle": h, "event_id": n.EventID}).Info(n.Title)
		s.SendNotificationToAllClients("notifications/kith/reminder", map[string]any{
			"handle":   string(h),
			"event_id": n.EventID,
			"title":    n.Title,
			"body":     n.Body,
		})
	}
	notifier, err := reminder.NewLocalNotifier(loc,
		reminder.WithDeliver(deliver),
		reminder.WithNotifierLogger(remLog),
		reminder.WithNotifierMetrics(m),
	)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	closers = append(closers, func() {
		if err := notifier.Close(); err != nil {
			remLog.WithError(err).Warn("reminder scheduler shutdown")
		}
	})
	scheduler := reminder.NewScheduler(notifier,
		reminder.Config{Hour: cfg.Reminders.Hour, Location: loc},
		reminder.WithLogger(remLog),
		reminder.WithMetrics(m),
	)
	go forwardTaps(bg, scheduler.Taps(), func(tap reminder.Tap) {
		remLog.WithFields(logrus.Fields{"handle": tap.Handle, "event_id": tap.EventID}).Info("reminder opened")
		s.SendNotificationToAllClients("notifications/kith/reminder_opened", map[string]any{
			"handle":   string(tap.Handle),
			"event_id": tap.EventID,
		})
	})

	digestCron := cfg.Reminders.FollowUpCron
	if digestCron == "" {
		digestCron = config.Default().Reminders.FollowUpCron
	}
	digest, err := reminder.NewDigest(st, digestCron, cfg.Reminders.StaleAfter, loc)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	digest.SetLogger(remLog)
	if cfg.Reminders.FollowUpCron != "" {
		if err := digest.Install(notifier, deliver); err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("installing follow-up digest: %w", err)
		}
	}

	// --- Search and history ---

	orchestrator := search.New(client, st,
		search.WithLogger(logging.Component(logger, "search")),
		search.WithMetrics(m),
	)

	histLog := logging.Component(logger, "history")
	journal := history.New(cfg.HistoryPath(), cfg.History.MaxEntries,
		history.WithLogger(histLog),
		history.WithMetrics(m),
	)
	// A corrupt file leaves the journal unhydrated; history_list reports it.
	if err := journal.Load(); err != nil {
		histLog.WithError(err).Warn("question history not loaded")
	}

	// --- Metrics ---

	if cfg.Metrics.Addr != "" {
		metricsLog := logging.Component(logger, "metrics")
		go func() {
			if err := m.Serve(bg, cfg.Metrics.Addr, metricsLog); err != nil {
				metricsLog.WithError(err).Warn("metrics endpoint stopped")
			}
		}()
	}

	// --- Register tools ---

	gateLog := logging.Component(logger, "access")
	gated := func(t tool) {
		s.AddTool(t.Definition(), tools.Gate(&cfg.Access, gateLog, t.Handle))
	}

	gated(tools.NewCaptureStartTool(machine))
	gated(tools.NewCaptureStopTool(machine))
	gated(tools.NewSearchTool(orchestrator, journal, logging.Component(logger, "search")))
	gated(tools.NewEnrichWatchTool(poller, pollLog))

	for _, t := range []tool{
		tools.NewCaptureResetTool(machine),
		tools.NewCaptureStatusTool(machine),
		tools.NewEnrichStatusTool(poller, st),
		tools.NewReminderScheduleTool(scheduler, st),
		tools.NewReminderCancelTool(scheduler),
		tools.NewReminderListTool(notifier),
		tools.NewReminderOpenTool(notifier),
		tools.NewFollowUpsTool(digest),
		tools.NewHistoryListTool(journal),
		tools.NewHistoryRemoveTool(journal),
		tools.NewHistoryClearTool(journal),
	} {
		s.AddTool(t.Definition(), t.Handle)
	}

	registerStoreTools(s, st)

	// --- Register prompts ---

	prepPrompt := prompts.NewPrepPrompt()
	s.AddPrompt(prepPrompt.Definition(), prepPrompt.Handle)

	catchUpPrompt := prompts.NewCatchUpPrompt()
	s.AddPrompt(catchUpPrompt.Definition(), catchUpPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(st, machine)
	s.AddResourceTemplate(resourceHandler.ContactTemplate(), resourceHandler.HandleContact)
	s.AddResource(resourceHandler.CaptureResource(), resourceHandler.HandleCapture)

	log.WithFields(logrus.Fields{
		"data_dir": cfg.DataDir,
		"remote":   cfg.Remote.BaseURL,
		"version":  Version,
	}).Info("kith server ready")

	return s, cleanup, nil
}

// registerStoreTools adds the contact, note, fact, hot topic and group
// CRUD tools. They only touch the local store and are never gated.
func registerStoreTools(s *server.MCPServer, st *store.Store) {
	for _, t := range []tool{
		memtools.NewContactCreateTool(st),
		memtools.NewContactListTool(st),
		memtools.NewContactGetTool(st),
		memtools.NewContactUpdateTool(st),
		memtools.NewContactDeleteTool(st),
		memtools.NewContactTouchTool(st),

		memtools.NewNoteListTool(st),
		memtools.NewNoteDeleteTool(st),

		memtools.NewFactAddTool(st),
		memtools.NewFactUpdateTool(st),
		memtools.NewFactDeleteTool(st),
		memtools.NewHotTopicAddTool(st),
		memtools.NewHotTopicUpdateTool(st),
		memtools.NewHotTopicDeleteTool(st),

		memtools.NewGroupCreateTool(st),
		memtools.NewGroupListTool(st),
		memtools.NewGroupDeleteTool(st),
		memtools.NewGroupAddMemberTool(st),
		memtools.NewGroupRemoveMemberTool(st),

		memtools.NewStatsTool(st),
	} {
		s.AddTool(t.Definition(), t.Handle)
	}
}

// forwardTaps hands reminder taps to handle until ctx is done. A tap means
// the user opened the notification for an event.
func forwardTaps(ctx context.Context, taps <-chan reminder.Tap, handle func(reminder.Tap)) {
	for {
		select {
		case <-ctx.Done():
			return
		case tap, ok := <-taps:
			if !ok {
				return
			}
			handle(tap)
		}
	}
}

func noop() {}

// serverInstructions returns the system instructions for the AI.
func serverInstructions() string {
	return `# kith: a memory for the people in your life

kith remembers what you learn about your contacts. The user records short voice
notes after talking to someone; kith transcribes them, extracts facts and hot
topics, stores everything locally and keeps an AI summary of each contact fresh.

## Voice capture
1. capture_start (optionally with contact_id) starts recording. Only one capture runs at a time.
2. capture_stop (with contact_id if none was given at start) transcribes, extracts and saves the note.
3. If a capture fails, call capture_reset before starting again. capture_status shows the current state.

After a successful capture the contact's AI summary is refreshed in the background.
Use enrich_watch with wait_seconds when the user wants the new summary right away,
and enrich_status to see which summaries are still pending.

## Contacts
- contact_create, contact_update, contact_delete, contact_touch (record that you were in touch)
- contact_list (filter by tag, or stale_days for people you have not talked to lately)
- contact_get shows facts, hot topics, recent notes and the AI summary
- fact_add / fact_update / fact_delete for durable facts (job, city, birthday...)
- hot_topic_add / hot_topic_update / hot_topic_delete for what is going on in their life right now
- note_list / note_delete for past voice notes
- group_* tools organise contacts; stats gives an overview

## Asking questions
search answers questions in plain language from facts, hot topics, summaries and notes.
Pass contact_ids to narrow it down. Answered questions are kept in history_list
(newest first, capped); history_remove and history_clear forget them.

## Reminders
reminder_schedule sets a reminder for the evening before an event. If that time has
already passed nothing is scheduled, and the tool says so. reminder_list and
reminder_cancel manage them. When the user acts on a reminder notification, call
reminder_open with its handle to find the event. follow_ups lists people the user has drifted away from;
the same list is delivered periodically as a digest.

## Resources
- kith://contacts/{id}: one contact's full detail as JSON
- kith://capture/status: the capture state as JSON

## Style
Be warm and brief. When briefing the user about someone, lead with open hot topics.
Never invent facts: if kith does not know something, say so and offer to record it.`
}
