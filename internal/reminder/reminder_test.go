package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/kith/internal/metrics"
	"github.com/HendryAvila/kith/internal/store"
)

type recordingNotifier struct {
	mu        sync.Mutex
	scheduled map[Handle]time.Time
	last      Notification
	canceled  []Handle
	err       error
	taps      chan Tap
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{scheduled: make(map[Handle]time.Time), taps: make(chan Tap)}
}

func (r *recordingNotifier) Schedule(_ context.Context, at time.Time, n Notification) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	h := Handle("h-" + n.EventID)
	r.scheduled[h] = at
	r.last = n
	return h, nil
}

func (r *recordingNotifier) Cancel(_ context.Context, h Handle) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.scheduled[h]
	delete(r.scheduled, h)
	r.canceled = append(r.canceled, h)
	return ok, nil
}

func (r *recordingNotifier) Taps() <-chan Tap { return r.taps }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestTriggerFor_EveningBefore(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	tests := []struct {
		name string
		date time.Time
		want time.Time
	}{
		{"mid month", time.Date(2025, 6, 10, 0, 0, 0, 0, loc), time.Date(2025, 6, 9, 19, 0, 0, 0, loc)},
		{"first of month", time.Date(2025, 3, 1, 15, 30, 0, 0, loc), time.Date(2025, 2, 28, 19, 0, 0, 0, loc)},
		{"new year", time.Date(2026, 1, 1, 0, 0, 0, 0, loc), time.Date(2025, 12, 31, 19, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(TriggerFor(tt.date, DefaultHour, loc)), "got %s", TriggerFor(tt.date, DefaultHour, loc))
		})
	}
}

func TestSchedule_FutureTriggerRegisters(t *testing.T) {
	n := newRecordingNotifier()
	s := NewScheduler(n, Config{Hour: DefaultHour, Location: time.UTC},
		WithClock(fixedClock(time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC))))

	h, ok, err := s.Schedule(context.Background(), Event{
		ID: "ev1", Date: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), Title: "Ana's birthday", ContactName: "Ana Ruiz",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Handle("h-ev1"), h)
	assert.True(t, n.scheduled[h].Equal(time.Date(2025, 6, 9, 19, 0, 0, 0, time.UTC)))
	assert.Equal(t, "ev1", n.last.EventID)
	assert.Equal(t, "Ana's birthday", n.last.Title)
	assert.Equal(t, "Tomorrow with Ana Ruiz", n.last.Body)
}

func TestSchedule_PastTriggerSkipped(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
	}{
		{"trigger passed", time.Date(2025, 6, 8, 20, 0, 0, 0, time.UTC)},
		{"exactly at trigger", time.Date(2025, 6, 7, 19, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newRecordingNotifier()
			s := NewScheduler(n, Config{Hour: DefaultHour, Location: time.UTC}, WithClock(fixedClock(tt.now)))

			h, ok, err := s.Schedule(context.Background(), Event{ID: "ev1", Date: time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)})
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, h)
			assert.Empty(t, n.scheduled, "notifier must not be called")
		})
	}
}

func TestSchedule_InvalidEvent(t *testing.T) {
	s := NewScheduler(newRecordingNotifier(), Config{Hour: DefaultHour})
	_, _, err := s.Schedule(context.Background(), Event{ID: " ", Date: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, _, err = s.Schedule(context.Background(), Event{ID: "ev"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestSchedule_NotifierErrorPropagates(t *testing.T) {
	n := newRecordingNotifier()
	n.err = errors.New("permission denied")
	s := NewScheduler(n, Config{Hour: DefaultHour, Location: time.UTC},
		WithClock(fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))))

	_, ok, err := s.Schedule(context.Background(), Event{ID: "ev1", Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)})
	assert.False(t, ok)
	assert.ErrorContains(t, err, "permission denied")
}

func TestCancel_Idempotent(t *testing.T) {
	n := newRecordingNotifier()
	m := metrics.New()
	s := NewScheduler(n, Config{Hour: DefaultHour, Location: time.UTC}, WithMetrics(m),
		WithClock(fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))))
	h, ok, err := s.Schedule(context.Background(), Event{ID: "ev1", Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Cancel(context.Background(), h))
	require.NoError(t, s.Cancel(context.Background(), h))
	require.NoError(t, s.Cancel(context.Background(), "h-unknown"))
	require.NoError(t, s.Cancel(context.Background(), ""))
	assert.Len(t, n.canceled, 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemindersOutcome.WithLabelValues("canceled")),
		"only the cancel that withdrew a reminder is counted")
}

func TestLocalNotifier_FiresAndTaps(t *testing.T) {
	delivered := make(chan Notification, 1)
	l, err := NewLocalNotifier(time.UTC, WithDeliver(func(_ Handle, n Notification) { delivered <- n }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	h, err := l.Schedule(context.Background(), time.Now().Add(150*time.Millisecond),
		Notification{EventID: "ev1", Title: "Dinner"})
	require.NoError(t, err)
	assert.Len(t, l.Pending(), 1)

	select {
	case n := <-delivered:
		assert.Equal(t, "ev1", n.EventID)
	case <-time.After(3 * time.Second):
		t.Fatal("notification never fired")
	}
	assert.Empty(t, l.Pending())

	opened, err := l.Tap(h)
	require.NoError(t, err)
	assert.Equal(t, "Dinner", opened.Title)
	select {
	case tap := <-l.Taps():
		assert.Equal(t, "ev1", tap.EventID)
		assert.Equal(t, h, tap.Handle)
	case <-time.After(time.Second):
		t.Fatal("tap not delivered")
	}

	_, err = l.Tap("nope")
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestLocalNotifier_CancelBeforeFire(t *testing.T) {
	fired := make(chan struct{}, 1)
	l, err := NewLocalNotifier(time.UTC, WithDeliver(func(Handle, Notification) { fired <- struct{}{} }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	h, err := l.Schedule(context.Background(), time.Now().Add(200*time.Millisecond), Notification{EventID: "ev1"})
	require.NoError(t, err)
	removed, err := l.Cancel(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = l.Cancel(context.Background(), h)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Empty(t, l.Pending())

	select {
	case <-fired:
		t.Fatal("canceled notification fired")
	case <-time.After(500 * time.Millisecond):
	}
}

type staleFunc func(time.Time) ([]store.Contact, error)

func (f staleFunc) StaleContacts(cutoff time.Time) ([]store.Contact, error) { return f(cutoff) }

func TestDigest_Build(t *testing.T) {
	now := time.Date(2025, 6, 8, 9, 0, 0, 0, time.UTC)
	var gotCutoff time.Time
	contacts := []store.Contact{
		{FirstName: "Ana"}, {FirstName: "Bo"}, {FirstName: "Cy"},
		{FirstName: "Di"}, {FirstName: "Ed"}, {FirstName: "Flo"}, {FirstName: "Gus"},
	}
	d, err := NewDigest(staleFunc(func(c time.Time) ([]store.Contact, error) {
		gotCutoff = c
		return contacts, nil
	}), "0 9 * * 1", 30*24*time.Hour, time.UTC)
	require.NoError(t, err)
	d.now = fixedClock(now)

	n, ok, err := d.Build()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, gotCutoff.Equal(now.Add(-30*24*time.Hour)))
	assert.Equal(t, "7 contacts to catch up with", n.Title)
	assert.Equal(t, "Ana, Bo, Cy, Di, Ed and 2 more", n.Body)
}

func TestDigest_NobodyStale(t *testing.T) {
	d, err := NewDigest(staleFunc(func(time.Time) ([]store.Contact, error) { return nil, nil }),
		"0 9 * * 1", time.Hour, time.UTC)
	require.NoError(t, err)
	_, ok, err := d.Build()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDigest_RejectsBadCron(t *testing.T) {
	_, err := NewDigest(nil, "every monday", time.Hour, time.UTC)
	assert.Error(t, err)
}

func TestDigest_NextRun(t *testing.T) {
	d, err := NewDigest(nil, "0 9 * * 1", time.Hour, time.UTC)
	require.NoError(t, err)
	// 2025-06-08 is a Sunday.
	next := d.NextRun(time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC))
	assert.True(t, next.Equal(time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)), "got %s", next)
}

func TestDigest_WithStore(t *testing.T) {
	s, err := store.New(store.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	quiet, err := s.CreateContact(store.CreateContactParams{FirstName: "Quiet"})
	require.NoError(t, err)
	recent, err := s.CreateContact(store.CreateContactParams{FirstName: "Recent"})
	require.NoError(t, err)
	require.NoError(t, s.TouchContact(recent.ID, time.Now()))

	d, err := NewDigest(s, "0 9 * * *", 7*24*time.Hour, time.UTC)
	require.NoError(t, err)
	stale, err := d.Stale()
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, quiet.ID, stale[0].ID)
}
