// Package reminder schedules the evening-before notification for
// relationship events and the periodic follow-up digest.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/logging"
	"github.com/HendryAvila/kith/internal/metrics"
)

// DefaultHour is the local hour of the evening before an event at which the
// reminder fires.
const DefaultHour = 19

// ErrInvalidEvent rejects events without an id or a date.
var ErrInvalidEvent = errors.New("reminder: invalid event")

// Handle identifies a registered notification.
type Handle string

// Event is something happening with a contact on a calendar date.
type Event struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Title       string    `json:"title"`
	ContactName string    `json:"contact_name,omitempty"`
}

// Notification is what the user sees. EventID travels with it so a tap can
// route back to the event.
type Notification struct {
	EventID string `json:"event_id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

// Tap is delivered when the user opens a notification.
type Tap struct {
	Handle  Handle `json:"handle"`
	EventID string `json:"event_id"`
}

// Notifier is the platform notification facility.
type Notifier interface {
	Schedule(ctx context.Context, at time.Time, n Notification) (Handle, error)
	// Cancel is idempotent; unknown handles are not errors. It reports
	// whether a pending notification was withdrawn.
	Cancel(ctx context.Context, h Handle) (bool, error)
	Taps() <-chan Tap
}

// TriggerFor returns the reminder time for an event: the calendar day
// before date at hour:00:00 in loc. The calendar date is read in date's
// own location.
func TriggerFor(date time.Time, hour int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := date.Date()
	return time.Date(y, m, d-1, hour, 0, 0, 0, loc)
}

// Config tunes a Scheduler.
type Config struct {
	Hour     int
	Location *time.Location
}

// Scheduler turns events into notifier registrations.
type Scheduler struct {
	notifier Notifier
	hour     int
	loc      *time.Location
	now      func() time.Time
	log      *logrus.Entry
	metrics  *metrics.Metrics
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// WithLogger sets the log entry.
func WithLogger(log *logrus.Entry) Option { return func(s *Scheduler) { s.log = log } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// NewScheduler creates a scheduler.
func NewScheduler(n Notifier, cfg Config, opts ...Option) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Scheduler{
		notifier: n,
		hour:     cfg.Hour,
		loc:      cfg.Location,
		now:      time.Now,
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is where event dates and triggers are interpreted.
func (s *Scheduler) Location() *time.Location { return s.loc }

// TriggerFor applies the scheduler's hour and location.
func (s *Scheduler) TriggerFor(date time.Time) time.Time {
	return TriggerFor(date, s.hour, s.loc)
}

// Schedule registers the reminder for ev. When the trigger is not strictly
// in the future nothing is registered and ("", false, nil) is returned.
func (s *Scheduler) Schedule(ctx context.Context, ev Event) (Handle, bool, error) {
	if strings.TrimSpace(ev.ID) == "" || ev.Date.IsZero() {
		return "", false, ErrInvalidEvent
	}

	trigger := s.TriggerFor(ev.Date)
	log := s.log.WithFields(logrus.Fields{"event_id": ev.ID, "trigger": trigger.Format(time.RFC3339)})
	if !trigger.After(s.now()) {
		s.metrics.Reminder("skipped")
		log.Debug("reminder trigger already passed")
		return "", false, nil
	}

	h, err := s.notifier.Schedule(ctx, trigger, notificationFor(ev))
	if err != nil {
		return "", false, fmt.Errorf("reminder: schedule %s: %w", ev.ID, err)
	}
	s.metrics.Reminder("scheduled")
	log.WithField("handle", h).Info("reminder scheduled")
	return h, true, nil
}

// Cancel withdraws a registered reminder. Unknown handles are ignored.
func (s *Scheduler) Cancel(ctx context.Context, h Handle) error {
	if h == "" {
		return nil
	}
	removed, err := s.notifier.Cancel(ctx, h)
	if err != nil {
		return fmt.Errorf("reminder: cancel %s: %w", h, err)
	}
	if removed {
		s.metrics.Reminder("canceled")
		s.log.WithField("handle", h).Info("reminder canceled")
	}
	return nil
}

// Taps forwards the notifier's tap stream.
func (s *Scheduler) Taps() <-chan Tap { return s.notifier.Taps() }

func notificationFor(ev Event) Notification {
	title := strings.TrimSpace(ev.Title)
	if title == "" {
		title = "Upcoming event"
	}
	body := "Tomorrow"
	if name := strings.TrimSpace(ev.ContactName); name != "" {
		body = "Tomorrow with " + name
	}
	return Notification{EventID: ev.ID, Title: title, Body: body}
}
