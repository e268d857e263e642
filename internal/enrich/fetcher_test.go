package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/kith/internal/store"
)

type fakeSummaries struct {
	mu      sync.Mutex
	answers []string
	err     error
	calls   int
}

func (f *fakeSummaries) Summary(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.answers) == 0 {
		return "", nil
	}
	a := f.answers[0]
	f.answers = f.answers[1:]
	return a, nil
}

func newEnrichableContact(t *testing.T) (*store.Store, string) {
	t.Helper()
	s, err := store.New(store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c, err := s.CreateContact(store.CreateContactParams{FirstName: "Ana"})
	require.NoError(t, err)
	_, err = s.CreateFact(store.FactParams{ContactID: c.ID,
		FactDraft: store.FactDraft{Type: store.FactInterest, Key: "sport", Value: "climbing"}})
	require.NoError(t, err)
	return s, c.ID
}

func TestSummaryFetcher_StoresLandedSummary(t *testing.T) {
	s, id := newEnrichableContact(t)
	remote := &fakeSummaries{answers: []string{"", "Ana loves climbing."}}
	f := NewSummaryFetcher(s, remote, nil)

	d, err := f.Fetch(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, NeedsPolling(d))

	d, err = f.Fetch(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, d.Contact.AISummary)
	assert.Equal(t, "Ana loves climbing.", *d.Contact.AISummary)
	assert.False(t, NeedsPolling(d))

	stored, err := s.GetContact(id)
	require.NoError(t, err)
	require.NotNil(t, stored.AISummary)
}

func TestSummaryFetcher_SkipsRemoteWhenNothingToEnrich(t *testing.T) {
	s, err := store.New(store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	c, err := s.CreateContact(store.CreateContactParams{FirstName: "Bo"})
	require.NoError(t, err)

	remote := &fakeSummaries{}
	_, err = NewSummaryFetcher(s, remote, nil).Fetch(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Zero(t, remote.calls)
}

func TestSummaryFetcher_RemoteErrorIsFetchFailure(t *testing.T) {
	s, id := newEnrichableContact(t)
	f := NewSummaryFetcher(s, &fakeSummaries{err: errors.New("502 bad gateway")}, nil)

	_, err := f.Fetch(context.Background(), id)
	assert.ErrorContains(t, err, "502 bad gateway")
}

func TestSummaryFetcher_DrivesPollerToCompletion(t *testing.T) {
	s, id := newEnrichableContact(t)
	clock := newManualClock()
	p := NewPoller(NewSummaryFetcher(s, &fakeSummaries{answers: []string{"", "Climber."}}, nil),
		Config{After: clock.After})

	w := p.Watch(context.Background(), id, nil)
	clock.nextWait(t)
	clock.fire()

	r := waitDone(t, w)
	assert.Equal(t, OutcomeSatisfied, r.Outcome)
	require.NotNil(t, r.Detail.Contact.AISummary)
	assert.Equal(t, "Climber.", *r.Detail.Contact.AISummary)
}
