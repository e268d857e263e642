package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/logging"
	"github.com/HendryAvila/kith/internal/metrics"
)

// ErrUnknownHandle is returned by Tap for handles the notifier never issued.
var ErrUnknownHandle = errors.New("reminder: unknown notification handle")

// LocalNotifier is an in-process Notifier on top of gocron one-time jobs.
// Fired notifications are handed to the deliver func; Tap reports the user
// opening one.
type LocalNotifier struct {
	sched   gocron.Scheduler
	deliver func(Handle, Notification)
	log     *logrus.Entry
	metrics *metrics.Metrics
	taps    chan Tap

	mu        sync.Mutex
	pending   map[Handle]pendingJob
	delivered map[Handle]Notification
}

type pendingJob struct {
	job          gocron.Job
	at           time.Time
	notification Notification
}

// Scheduled describes a notification waiting to fire.
type Scheduled struct {
	Handle       Handle       `json:"handle"`
	At           time.Time    `json:"at"`
	Notification Notification `json:"notification"`
}

// NotifierOption customizes a LocalNotifier.
type NotifierOption func(*LocalNotifier)

// WithDeliver replaces the default delivery, which logs the notification.
func WithDeliver(fn func(Handle, Notification)) NotifierOption {
	return func(l *LocalNotifier) { l.deliver = fn }
}

// WithNotifierLogger sets the log entry.
func WithNotifierLogger(log *logrus.Entry) NotifierOption {
	return func(l *LocalNotifier) { l.log = log }
}

// WithNotifierMetrics sets the metrics sink.
func WithNotifierMetrics(m *metrics.Metrics) NotifierOption {
	return func(l *LocalNotifier) { l.metrics = m }
}

// NewLocalNotifier starts a gocron scheduler in loc.
func NewLocalNotifier(loc *time.Location, opts ...NotifierOption) (*LocalNotifier, error) {
	if loc == nil {
		loc = time.Local
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("reminder: create scheduler: %w", err)
	}
	l := &LocalNotifier{
		sched:     sched,
		log:       logging.Discard(),
		taps:      make(chan Tap, 16),
		pending:   make(map[Handle]pendingJob),
		delivered: make(map[Handle]Notification),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.deliver == nil {
		l.deliver = func(h Handle, n Notification) {
			l.log.WithFields(logrus.Fields{"handle": h, "event_id": n.EventID, "body": n.Body}).Info(n.Title)
		}
	}
	sched.Start()
	return l, nil
}

// Schedule registers n to fire once at at.
func (l *LocalNotifier) Schedule(_ context.Context, at time.Time, n Notification) (Handle, error) {
	h := Handle(uuid.NewString())

	l.mu.Lock()
	defer l.mu.Unlock()

	job, err := l.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(l.fire, h),
		gocron.WithName(string(h)),
		gocron.WithTags(n.EventID),
	)
	if err != nil {
		return "", fmt.Errorf("reminder: register job: %w", err)
	}
	l.pending[h] = pendingJob{job: job, at: at, notification: n}
	return h, nil
}

// Cancel implements Notifier.
func (l *LocalNotifier) Cancel(_ context.Context, h Handle) (bool, error) {
	l.mu.Lock()
	p, ok := l.pending[h]
	delete(l.pending, h)
	l.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := l.sched.RemoveJob(p.job.ID()); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		return true, fmt.Errorf("reminder: remove job: %w", err)
	}
	return true, nil
}

// Taps implements Notifier.
func (l *LocalNotifier) Taps() <-chan Tap { return l.taps }

// Tap records the user opening a delivered (or still pending) notification
// and publishes it on the Taps channel.
func (l *LocalNotifier) Tap(h Handle) (Notification, error) {
	l.mu.Lock()
	n, ok := l.delivered[h]
	if !ok {
		var p pendingJob
		p, ok = l.pending[h]
		n = p.notification
	}
	l.mu.Unlock()
	if !ok {
		return Notification{}, ErrUnknownHandle
	}

	select {
	case l.taps <- Tap{Handle: h, EventID: n.EventID}:
	default:
		l.log.WithField("handle", h).Warn("tap dropped: no reader")
	}
	return n, nil
}

// Pending lists notifications waiting to fire, soonest first.
func (l *LocalNotifier) Pending() []Scheduled {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Scheduled, 0, len(l.pending))
	for h, p := range l.pending {
		out = append(out, Scheduled{Handle: h, At: p.at, Notification: p.notification})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Every runs task on a standard 5-field cron expression.
func (l *LocalNotifier) Every(expr string, name string, task func()) (gocron.Job, error) {
	job, err := l.sched.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(task),
		gocron.WithName(name),
	)
	if err != nil {
		return nil, fmt.Errorf("reminder: register %s: %w", name, err)
	}
	return job, nil
}

// Close stops the scheduler. Pending notifications are dropped.
func (l *LocalNotifier) Close() error {
	return l.sched.Shutdown()
}

func (l *LocalNotifier) fire(h Handle) {
	l.mu.Lock()
	p, ok := l.pending[h]
	if ok {
		delete(l.pending, h)
		l.delivered[h] = p.notification
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	l.metrics.Reminder("fired")
	l.deliver(h, p.notification)
}
