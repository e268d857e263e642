package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/kith/internal/capture"
	"github.com/HendryAvila/kith/internal/config"
	"github.com/HendryAvila/kith/internal/enrich"
	"github.com/HendryAvila/kith/internal/history"
	"github.com/HendryAvila/kith/internal/logging"
	"github.com/HendryAvila/kith/internal/reminder"
	"github.com/HendryAvila/kith/internal/remote"
	"github.com/HendryAvila/kith/internal/search"
	"github.com/HendryAvila/kith/internal/store"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeReq(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

type handler interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

func call(t *testing.T, h handler, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	res, err := h.Handle(context.Background(), makeReq(h.Definition().Name, args))
	require.NoError(t, err, "tools report failures as results, not Go errors")
	require.NotNil(t, res)
	return res
}

func mustContact(t *testing.T, s *store.Store, first string) *store.Contact {
	t.Helper()
	c, err := s.CreateContact(store.CreateContactParams{FirstName: first})
	require.NoError(t, err)
	return c
}

type fakeRecorder struct{ n int }

func (r *fakeRecorder) Begin(context.Context) (string, error) {
	r.n++
	return fmt.Sprintf("file:///tmp/kith-test-%d.m4a", r.n), nil
}

func (r *fakeRecorder) End(context.Context) (int64, error) { return 4200, nil }

type fakeRemote struct {
	mu         sync.Mutex
	transcript string
	transErr   error
	results    []remote.Result
	rankErr    error
	ranked     []remote.RankRequest
}

func (f *fakeRemote) Transcribe(context.Context, string) (string, error) {
	return f.transcript, f.transErr
}

func (f *fakeRemote) Extract(context.Context, string, remote.ContactContext) (*remote.Extraction, error) {
	return &remote.Extraction{
		Summary:   "Caught up over coffee.",
		Facts:     []store.FactDraft{{Type: store.FactCity, Key: "city", Value: "Porto"}},
		HotTopics: []store.HotTopicDraft{{Title: "Moving house"}},
	}, nil
}

func (f *fakeRemote) Rank(_ context.Context, req remote.RankRequest) ([]remote.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranked = append(f.ranked, req)
	return f.results, f.rankErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func TestGate(t *testing.T) {
	next := func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ran"), nil
	}
	tests := []struct {
		name    string
		access  *config.AccessConfig
		allowed bool
	}{
		{"nil access", nil, true},
		{"empty allowlist", &config.AccessConfig{Identity: "ana@example.com"}, true},
		{"matching glob", &config.AccessConfig{Identity: "ana@example.com", AllowlistedIdentities: []string{"*@example.com"}}, true},
		{"no match", &config.AccessConfig{Identity: "ana@elsewhere.org", AllowlistedIdentities: []string{"*@example.com"}}, false},
		{"development override", &config.AccessConfig{Identity: "ana@elsewhere.org", AllowlistedIdentities: []string{"*@example.com"}, DevelopmentOverride: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.access != nil {
				cfg := config.Default()
				cfg.Access = *tt.access
				require.NoError(t, cfg.Validate())
				tt.access = &cfg.Access
			}
			res, err := Gate(tt.access, logging.Discard(), next)(context.Background(), makeReq("search", nil))
			require.NoError(t, err)
			assert.Equal(t, !tt.allowed, res.IsError)
			if tt.allowed {
				assert.Equal(t, "ran", resultText(res))
			}
		})
	}
}

func TestErrorResult(t *testing.T) {
	netErr := &remote.NetworkError{Op: "rank", Status: 503, Err: errors.New("unavailable")}
	res := errorResult("search", fmt.Errorf("search: rank: %w", netErr))
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "unreachable")

	res = errorResult("schedule reminder", fmt.Errorf("%w: contact abc", store.ErrNotFound))
	assert.Equal(t, "schedule reminder: not found: contact abc", resultText(res))
}

func TestStringSlice(t *testing.T) {
	tests := []struct {
		in   interface{}
		want []string
	}{
		{[]interface{}{"a", " b ", "", 3}, []string{"a", "b"}},
		{"a, b,,c", []string{"a", "b", "c"}},
		{nil, []string{}},
	}
	for _, tt := range tests {
		got := stringSlice(makeReq("x", map[string]interface{}{"ids": tt.in}), "ids")
		assert.Equal(t, tt.want, got)
	}
}

// ─── Capture ─────────────────────────────────────────────────────────────────

func TestCaptureTools_RecordAndSave(t *testing.T) {
	s := newTestStore(t)
	ana := mustContact(t, s, "Ana")
	rem := &fakeRemote{transcript: "Ana is moving to Porto next month."}

	var committed []string
	m := capture.New(&fakeRecorder{}, rem, rem, s, capture.WithOnCommit(func(c *store.CaptureCommit) {
		committed = append(committed, c.Note.ContactID)
	}))

	res := call(t, NewCaptureStartTool(m), map[string]interface{}{"contact_id": ana.ID})
	require.False(t, res.IsError, resultText(res))
	assert.Contains(t, resultText(res), "recording")

	res = call(t, NewCaptureStartTool(m), nil)
	assert.True(t, res.IsError, "second start while recording")

	res = call(t, NewCaptureStatusTool(m), nil)
	assert.Contains(t, resultText(res), ana.ID)

	res = call(t, NewCaptureStopTool(m), nil)
	require.False(t, res.IsError, resultText(res))
	text := resultText(res)
	assert.Contains(t, text, "Note saved")
	assert.Contains(t, text, "Caught up over coffee.")
	assert.Contains(t, text, "Facts extracted: 1")
	assert.Contains(t, text, "Hot topics extracted: 1")
	assert.Equal(t, []string{ana.ID}, committed)

	res = call(t, NewCaptureStopTool(m), nil)
	assert.True(t, res.IsError, "stop while idle")
}

func TestCaptureTools_TranscriptionFailureNeedsReset(t *testing.T) {
	s := newTestStore(t)
	ana := mustContact(t, s, "Ana")
	rem := &fakeRemote{transErr: errors.New("boom")}
	m := capture.New(&fakeRecorder{}, rem, rem, s)

	call(t, NewCaptureStartTool(m), map[string]interface{}{"contact_id": ana.ID})
	res := call(t, NewCaptureStopTool(m), nil)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "capture_reset")

	res = call(t, NewCaptureResetTool(m), nil)
	assert.False(t, res.IsError, resultText(res))
	assert.Equal(t, capture.StateIdle, m.Snapshot().State)
}

func TestCaptureStop_NoContact(t *testing.T) {
	s := newTestStore(t)
	rem := &fakeRemote{transcript: "someone said something"}
	m := capture.New(&fakeRecorder{}, rem, rem, s)

	call(t, NewCaptureStartTool(m), nil)
	res := call(t, NewCaptureStopTool(m), nil)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "no contact was selected")
}

// ─── Enrichment ──────────────────────────────────────────────────────────────

func TestEnrichWatch_NothingToEnrich(t *testing.T) {
	s := newTestStore(t)
	ana := mustContact(t, s, "Ana")
	p := enrich.NewPoller(enrich.NewSummaryFetcher(s, nil, logging.Discard()), enrich.Config{})
	t.Cleanup(p.StopAll)

	res := call(t, NewEnrichWatchTool(p, logging.Discard()), map[string]interface{}{
		"contact_id":   ana.ID,
		"wait_seconds": 5,
	})
	require.False(t, res.IsError, resultText(res))
	assert.Contains(t, resultText(res), string(enrich.OutcomeSatisfied))

	res = call(t, NewEnrichStatusTool(p, s), nil)
	assert.Equal(t, "No summaries pending.", resultText(res))
}

func TestEnrichWatch_RequiresContact(t *testing.T) {
	s := newTestStore(t)
	p := enrich.NewPoller(enrich.NewSummaryFetcher(s, nil, logging.Discard()), enrich.Config{})
	res := call(t, NewEnrichWatchTool(p, logging.Discard()), nil)
	assert.True(t, res.IsError)
}

// ─── Reminders ───────────────────────────────────────────────────────────────

func newTestScheduler(t *testing.T) (*reminder.Scheduler, *reminder.LocalNotifier) {
	t.Helper()
	n, err := reminder.NewLocalNotifier(time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return reminder.NewScheduler(n, reminder.Config{Hour: reminder.DefaultHour, Location: time.UTC}), n
}

func TestReminderTools_ScheduleListCancel(t *testing.T) {
	s := newTestStore(t)
	ana := mustContact(t, s, "Ana")
	sc, n := newTestScheduler(t)

	date := time.Now().UTC().AddDate(0, 0, 10).Format(dateLayout)
	res := call(t, NewReminderScheduleTool(sc, s), map[string]interface{}{
		"date":       date,
		"title":      "Birthday dinner",
		"contact_id": ana.ID,
	})
	require.False(t, res.IsError, resultText(res))
	assert.Contains(t, resultText(res), "Reminder set for")

	pending := n.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "Birthday dinner", pending[0].Notification.Title)
	assert.Contains(t, pending[0].Notification.Body, "Ana")

	res = call(t, NewReminderListTool(n), nil)
	assert.Contains(t, resultText(res), "Birthday dinner")
	assert.Contains(t, resultText(res), string(pending[0].Handle))

	res = call(t, NewReminderCancelTool(sc), map[string]interface{}{"handle": string(pending[0].Handle)})
	require.False(t, res.IsError, resultText(res))
	res = call(t, NewReminderCancelTool(sc), map[string]interface{}{"handle": string(pending[0].Handle)})
	assert.False(t, res.IsError, "cancel is idempotent")
	assert.Empty(t, n.Pending())

	res = call(t, NewReminderListTool(n), nil)
	assert.Equal(t, "No reminders scheduled.", resultText(res))
}

func TestReminderOpen_PublishesTap(t *testing.T) {
	s := newTestStore(t)
	sc, n := newTestScheduler(t)

	date := time.Now().UTC().AddDate(0, 0, 10).Format(dateLayout)
	res := call(t, NewReminderScheduleTool(sc, s), map[string]interface{}{
		"date":     date,
		"title":    "Coffee",
		"event_id": "ev-coffee",
	})
	require.False(t, res.IsError, resultText(res))
	pending := n.Pending()
	require.Len(t, pending, 1)

	res = call(t, NewReminderOpenTool(n), map[string]interface{}{"handle": string(pending[0].Handle)})
	require.False(t, res.IsError, resultText(res))
	assert.Contains(t, resultText(res), "Coffee")
	assert.Contains(t, resultText(res), "ev-coffee")

	select {
	case tap := <-sc.Taps():
		assert.Equal(t, "ev-coffee", tap.EventID)
		assert.Equal(t, pending[0].Handle, tap.Handle)
	case <-time.After(time.Second):
		t.Fatal("tap not published")
	}

	res = call(t, NewReminderOpenTool(n), map[string]interface{}{"handle": "nope"})
	assert.True(t, res.IsError)
	res = call(t, NewReminderOpenTool(n), map[string]interface{}{})
	assert.True(t, res.IsError)
}

func TestReminderSchedule_PastAndInvalid(t *testing.T) {
	s := newTestStore(t)
	sc, n := newTestScheduler(t)
	tool := NewReminderScheduleTool(sc, s)

	res := call(t, tool, map[string]interface{}{"date": "2020-01-01", "title": "Old news"})
	require.False(t, res.IsError, resultText(res))
	assert.Contains(t, resultText(res), "already passed")
	assert.Empty(t, n.Pending())

	res = call(t, tool, map[string]interface{}{"date": "next friday", "title": "Party"})
	assert.True(t, res.IsError)

	res = call(t, tool, map[string]interface{}{"date": "2099-01-01"})
	assert.True(t, res.IsError, "title is required")

	res = call(t, tool, map[string]interface{}{"date": "2099-01-01", "title": "Party", "contact_id": "missing"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "not found")
}

func TestFollowUps(t *testing.T) {
	s := newTestStore(t)
	ana := mustContact(t, s, "Ana")
	bo := mustContact(t, s, "Bo")
	require.NoError(t, s.TouchContact(bo.ID, time.Now()))

	d, err := reminder.NewDigest(s, "0 9 * * 1", 30*24*time.Hour, time.UTC)
	require.NoError(t, err)

	text := resultText(call(t, NewFollowUpsTool(d), nil))
	assert.Contains(t, text, "Catch up with (1)")
	assert.Contains(t, text, ana.ID)
	assert.NotContains(t, text, bo.ID)
	assert.Contains(t, text, "last contact never")
	assert.Contains(t, text, "Next digest: Mon")
}

// ─── Search and history ──────────────────────────────────────────────────────

func TestSearch_RecordsHistory(t *testing.T) {
	s := newTestStore(t)
	ana := mustContact(t, s, "Ana")
	_, err := s.CreateFact(store.FactParams{ContactID: ana.ID, FactDraft: store.FactDraft{Type: store.FactCity, Key: "city", Value: "Porto"}})
	require.NoError(t, err)

	rem := &fakeRemote{results: []remote.Result{
		{SourceID: "f1", SourceType: "fact", Snippet: "Ana lives in Porto", Score: 0.91},
		{SourceID: "n1", SourceType: "note", Snippet: "Moving next month", Score: 0.40},
	}}
	j := history.New(filepath.Join(t.TempDir(), "history.json"), 0)
	tool := NewSearchTool(search.New(rem, s), j, logging.Discard())

	res := call(t, tool, map[string]interface{}{
		"query":       "where does Ana live?",
		"contact_ids": []interface{}{ana.ID},
		"limit":       1,
	})
	require.False(t, res.IsError, resultText(res))
	text := resultText(res)
	assert.Contains(t, text, "1. Ana lives in Porto")
	assert.NotContains(t, text, "Moving next month")

	require.Len(t, rem.ranked, 1)
	assert.Len(t, rem.ranked[0].Facts, 1)

	entries := j.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "where does Ana live?", entries[0].Question)
	assert.Equal(t, "Ana lives in Porto", entries[0].AnswerSummary)
	assert.Equal(t, ana.ID, entries[0].ContactID)
	assert.Equal(t, "Ana", entries[0].ContactName)

	list := resultText(call(t, NewHistoryListTool(j), nil))
	assert.Contains(t, list, "where does Ana live?")
	assert.Contains(t, list, entries[0].ID)
	assert.Contains(t, list, "about Ana")

	res = call(t, NewHistoryRemoveTool(j), map[string]interface{}{"id": entries[0].ID})
	require.False(t, res.IsError, resultText(res))
	res = call(t, NewHistoryRemoveTool(j), map[string]interface{}{"id": entries[0].ID})
	assert.True(t, res.IsError)
	assert.Equal(t, "No questions asked yet.", resultText(call(t, NewHistoryListTool(j), nil)))
}

func TestSearch_NoResultsLeavesHistoryAlone(t *testing.T) {
	s := newTestStore(t)
	mustContact(t, s, "Ana")
	rem := &fakeRemote{}
	j := history.New(filepath.Join(t.TempDir(), "history.json"), 0)
	tool := NewSearchTool(search.New(rem, s), j, logging.Discard())

	res := call(t, tool, map[string]interface{}{"query": "anything?"})
	require.False(t, res.IsError)
	assert.Contains(t, resultText(res), "Nothing you have recorded")
	assert.Empty(t, j.Entries())
	assert.Empty(t, rem.ranked, "no evidence means no remote call")

	res = call(t, tool, map[string]interface{}{"query": "   "})
	assert.True(t, res.IsError)
}

func TestSearch_RemoteFailure(t *testing.T) {
	s := newTestStore(t)
	ana := mustContact(t, s, "Ana")
	_, err := s.CreateFact(store.FactParams{ContactID: ana.ID, FactDraft: store.FactDraft{Type: store.FactJob, Key: "role", Value: "Engineer"}})
	require.NoError(t, err)

	rem := &fakeRemote{rankErr: &remote.NetworkError{Op: "rank", Err: errors.New("dial tcp: refused")}}
	tool := NewSearchTool(search.New(rem, s), nil, logging.Discard())

	res := call(t, tool, map[string]interface{}{"query": "what does Ana do?"})
	assert.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(res), "search:"), resultText(res))
}

func TestHistoryClear(t *testing.T) {
	j := history.New(filepath.Join(t.TempDir(), "history.json"), 0)
	_, err := j.Add("who is Bo?", "A friend from school", "", "")
	require.NoError(t, err)

	res := call(t, NewHistoryClearTool(j), nil)
	require.False(t, res.IsError)
	assert.Empty(t, j.Entries())
}
