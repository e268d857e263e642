package capture

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/kith/internal/metrics"
	"github.com/HendryAvila/kith/internal/remote"
	"github.com/HendryAvila/kith/internal/store"
)

type fakeRecorder struct {
	mu     sync.Mutex
	n      int
	endErr error
}

func (r *fakeRecorder) Begin(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return "file:///tmp/capture-" + strings.Repeat("x", r.n) + ".m4a", nil
}

func (r *fakeRecorder) End(context.Context) (int64, error) { return 3200, r.endErr }

type transcribeFunc func(ctx context.Context, uri string) (string, error)

func (f transcribeFunc) Transcribe(ctx context.Context, uri string) (string, error) {
	return f(ctx, uri)
}

type extractFunc func(ctx context.Context, text string, cc remote.ContactContext) (*remote.Extraction, error)

func (f extractFunc) Extract(ctx context.Context, text string, cc remote.ContactContext) (*remote.Extraction, error) {
	return f(ctx, text, cc)
}

func okTranscriber(text string) Transcriber {
	return transcribeFunc(func(context.Context, string) (string, error) { return text, nil })
}

func okExtractor() Extractor {
	return extractFunc(func(_ context.Context, _ string, _ remote.ContactContext) (*remote.Extraction, error) {
		return &remote.Extraction{
			Summary:   "Talked about the new job.",
			Facts:     []store.FactDraft{{Type: store.FactCompany, Key: "employer", Value: "Acme"}},
			HotTopics: []store.HotTopicDraft{{Title: "First week at Acme"}},
		}, nil
	})
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newContact(t *testing.T, s *store.Store) string {
	t.Helper()
	c, err := s.CreateContact(store.CreateContactParams{FirstName: "Ana", LastName: "Ruiz"})
	require.NoError(t, err)
	return c.ID
}

func assertIdleClean(t *testing.T, snap Snapshot) {
	t.Helper()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.AudioURI)
	assert.Empty(t, snap.Transcription)
	assert.Nil(t, snap.Extraction)
	assert.Empty(t, snap.Reason)
	assert.Empty(t, snap.ContactID)
}

func TestTransitionsTable(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateRecording))
	assert.True(t, CanTransition(StateTranscribing, StateError))
	assert.True(t, CanTransition(StateError, StateIdle))
	assert.False(t, CanTransition(StateIdle, StateError))
	assert.False(t, CanTransition(StateRecording, StateRecording))
	assert.False(t, CanTransition(StateError, StateRecording))
	for _, s := range []State{StateRecording, StateTranscribing, StateExtracting} {
		assert.True(t, CanTransition(s, StateError), "error must be reachable from %s", s)
		assert.True(t, s.Active())
	}
}

func TestMachine_HappyPathCommits(t *testing.T) {
	st := newStore(t)
	contactID := newContact(t, st)

	var committed *store.CaptureCommit
	var gotContext remote.ContactContext
	ex := extractFunc(func(ctx context.Context, text string, cc remote.ContactContext) (*remote.Extraction, error) {
		gotContext = cc
		return okExtractor().Extract(ctx, text, cc)
	})
	m := New(&fakeRecorder{}, okTranscriber("Ana started at Acme"), ex, st,
		WithMetrics(metrics.New()),
		WithOnCommit(func(c *store.CaptureCommit) { committed = c }))

	snap, err := m.Start(context.Background(), contactID)
	require.NoError(t, err)
	assert.Equal(t, StateRecording, snap.State)
	assert.NotEmpty(t, snap.AudioURI)

	commit, err := m.Stop(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, commit)
	assert.Same(t, commit, committed)
	assert.Len(t, commit.FactIDs, 1)
	assert.Len(t, commit.HotTopicIDs, 1)
	assert.Equal(t, "Ana Ruiz", gotContext.DisplayName)

	after := m.Snapshot()
	assertIdleClean(t, after)
	assert.Same(t, commit, after.LastCommit)

	note, err := st.GetNote(commit.Note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana started at Acme", *note.Transcription)
	assert.Equal(t, int64(3200), *note.AudioDurationMs)
}

func TestMachine_StartWhileActiveRejected(t *testing.T) {
	st := newStore(t)
	contactID := newContact(t, st)

	release := make(chan struct{})
	entered := make(chan struct{})
	tr := transcribeFunc(func(context.Context, string) (string, error) {
		close(entered)
		<-release
		return "text", nil
	})
	m := New(&fakeRecorder{}, tr, okExtractor(), st)

	_, err := m.Start(context.Background(), contactID)
	require.NoError(t, err)

	_, err = m.Start(context.Background(), contactID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition, "second start while recording")

	done := make(chan error, 1)
	go func() {
		_, err := m.Stop(context.Background(), "")
		done <- err
	}()
	<-entered

	assert.Equal(t, StateTranscribing, m.Snapshot().State)
	_, err = m.Start(context.Background(), contactID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition, "start while transcribing")
	_, err = m.Stop(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition, "stop while transcribing")
	assert.ErrorIs(t, m.Reset(), ErrInvalidStateTransition, "reset outside error")

	close(release)
	require.NoError(t, <-done)
	assertIdleClean(t, m.Snapshot())
}

func TestMachine_StopWithoutStart(t *testing.T) {
	m := New(&fakeRecorder{}, okTranscriber("x"), okExtractor(), newStore(t))
	_, err := m.Stop(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assertIdleClean(t, m.Snapshot())
}

func TestMachine_FailuresLandInErrorWithReason(t *testing.T) {
	tests := []struct {
		name       string
		tr         Transcriber
		ex         Extractor
		contact    bool
		wantReason string
		check      func(t *testing.T, err error)
	}{
		{
			name: "transcription fails",
			tr: transcribeFunc(func(context.Context, string) (string, error) {
				return "", remote.ErrNetwork
			}),
			ex: okExtractor(), contact: true, wantReason: "transcription failed",
			check: func(t *testing.T, err error) {
				var te *TranscriptionError
				assert.ErrorAs(t, err, &te)
			},
		},
		{
			name: "empty transcript", tr: okTranscriber("   "),
			ex: okExtractor(), contact: true, wantReason: "empty transcript",
			check: func(t *testing.T, err error) {
				var te *TranscriptionError
				assert.ErrorAs(t, err, &te)
			},
		},
		{
			name: "extraction fails", tr: okTranscriber("hello"),
			ex: extractFunc(func(context.Context, string, remote.ContactContext) (*remote.Extraction, error) {
				return nil, errors.New("model overloaded")
			}),
			contact: true, wantReason: "model overloaded",
			check: func(t *testing.T, err error) {
				var ee *ExtractionError
				assert.ErrorAs(t, err, &ee)
			},
		},
		{
			name: "no contact", tr: okTranscriber("hello"), ex: okExtractor(),
			contact: false, wantReason: "no contact selected",
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrNoContact) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			contactID := ""
			if tt.contact {
				contactID = newContact(t, st)
			}
			m := New(&fakeRecorder{}, tt.tr, tt.ex, st)

			_, err := m.Start(context.Background(), contactID)
			require.NoError(t, err)
			_, err = m.Stop(context.Background(), "")
			require.Error(t, err)
			tt.check(t, err)

			snap := m.Snapshot()
			assert.Equal(t, StateError, snap.State)
			assert.Contains(t, snap.Reason, tt.wantReason)

			stats, _ := st.Stats()
			assert.Zero(t, stats.Notes, "nothing may be committed on failure")

			require.NoError(t, m.Reset())
			assertIdleClean(t, m.Snapshot())
		})
	}
}

func TestMachine_UnknownFactTypeStoredAsCustom(t *testing.T) {
	st := newStore(t)
	contactID := newContact(t, st)
	ex := extractFunc(func(context.Context, string, remote.ContactContext) (*remote.Extraction, error) {
		return &remote.Extraction{Facts: []store.FactDraft{
			{Type: "pet", Key: "dog", Value: "Toby"},
			{Type: "CITY", Key: "city", Value: "Lisbon"},
		}}, nil
	})
	m := New(&fakeRecorder{}, okTranscriber("Ana adopted Toby in Lisbon"), ex, st)

	_, err := m.Start(context.Background(), contactID)
	require.NoError(t, err)
	commit, err := m.Stop(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, commit.FactIDs, 2)

	facts, err := st.ListFactsByContact(contactID)
	require.NoError(t, err)
	types := map[string]store.FactType{}
	for _, f := range facts {
		types[f.Key] = f.Type
	}
	assert.Equal(t, store.FactCustom, types["dog"])
	assert.Equal(t, store.FactCity, types["city"])
}

func TestMachine_PersistenceErrorLandsInError(t *testing.T) {
	st := newStore(t)
	m := New(&fakeRecorder{}, okTranscriber("hello"), okExtractor(), st)

	_, err := m.Start(context.Background(), "ghost-contact")
	require.NoError(t, err)
	_, err = m.Stop(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrNotFound)

	snap := m.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.NotEmpty(t, snap.Reason)
}

func TestMachine_StopContactOverridesPreselection(t *testing.T) {
	st := newStore(t)
	contactID := newContact(t, st)
	m := New(&fakeRecorder{}, okTranscriber("hello"), okExtractor(), st)

	_, err := m.Start(context.Background(), "")
	require.NoError(t, err)
	commit, err := m.Stop(context.Background(), contactID)
	require.NoError(t, err)
	assert.Equal(t, contactID, commit.Note.ContactID)
}

func TestMachine_RecorderFailureOnStop(t *testing.T) {
	st := newStore(t)
	m := New(&fakeRecorder{endErr: errors.New("mic unplugged")}, okTranscriber("x"), okExtractor(), st)

	_, err := m.Start(context.Background(), newContact(t, st))
	require.NoError(t, err)
	_, err = m.Stop(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, StateError, m.Snapshot().State)
}

func TestMachine_ErrorAutoReset(t *testing.T) {
	st := newStore(t)
	failing := transcribeFunc(func(context.Context, string) (string, error) { return "", errors.New("offline") })
	m := New(&fakeRecorder{}, failing, okExtractor(), st, WithErrorResetAfter(20*time.Millisecond))

	_, err := m.Start(context.Background(), newContact(t, st))
	require.NoError(t, err)
	_, _ = m.Stop(context.Background(), "")
	require.Equal(t, StateError, m.Snapshot().State)

	assert.Eventually(t, func() bool { return m.Snapshot().State == StateIdle },
		time.Second, 5*time.Millisecond)
	assertIdleClean(t, m.Snapshot())
}

func TestMachine_SubscribeSeesTransitions(t *testing.T) {
	st := newStore(t)
	m := New(&fakeRecorder{}, okTranscriber("hello"), okExtractor(), st)
	ch, cancel := m.Subscribe()
	defer cancel()

	_, err := m.Start(context.Background(), newContact(t, st))
	require.NoError(t, err)
	_, err = m.Stop(context.Background(), "")
	require.NoError(t, err)

	var states []State
	for len(ch) > 0 {
		states = append(states, (<-ch).State)
	}
	assert.Equal(t, []State{StateRecording, StateTranscribing, StateExtracting, StateExtracting, StateIdle}, states)

	cancel()
	cancel()
}

func TestFileRecorder_AllocatesFreshTargets(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRecorder(dir)
	clock := time.Date(2025, 6, 8, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	uri1, err := r.Begin(context.Background())
	require.NoError(t, err)
	_, err = r.Begin(context.Background())
	assert.Error(t, err, "Begin twice without End")

	clock = clock.Add(4500 * time.Millisecond)
	ms, err := r.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4500), ms)

	uri2, err := r.Begin(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, uri1, uri2)

	_, err = os.Stat(strings.TrimPrefix(uri2, "file://"))
	assert.NoError(t, err)

	_, err = NewFileRecorder(dir).End(context.Background())
	assert.Error(t, err)
}
