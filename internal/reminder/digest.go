package reminder

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/logging"
	"github.com/HendryAvila/kith/internal/store"
)

// digestEventID tags digest notifications; they belong to no single event.
const digestEventID = "follow-up-digest"

// maxDigestNames caps how many names are spelled out in the digest body.
const maxDigestNames = 5

// StaleLister finds contacts not talked to since cutoff.
type StaleLister interface {
	StaleContacts(cutoff time.Time) ([]store.Contact, error)
}

// Digest periodically nudges the user about contacts gone quiet.
type Digest struct {
	lister     StaleLister
	staleAfter time.Duration
	schedule   cron.Schedule
	expr       string
	loc        *time.Location
	now        func() time.Time
	log        *logrus.Entry
}

// NewDigest validates expr (standard 5-field cron) and builds the digest.
func NewDigest(lister StaleLister, expr string, staleAfter time.Duration, loc *time.Location) (*Digest, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("reminder: invalid follow-up cron %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Digest{
		lister:     lister,
		staleAfter: staleAfter,
		schedule:   sched,
		expr:       expr,
		loc:        loc,
		now:        time.Now,
		log:        logging.Discard(),
	}, nil
}

// SetLogger sets the log entry.
func (d *Digest) SetLogger(log *logrus.Entry) { d.log = log }

// NextRun is the next time the digest fires after from.
func (d *Digest) NextRun(from time.Time) time.Time {
	return d.schedule.Next(from.In(d.loc))
}

// Stale lists the contacts the digest would mention right now.
func (d *Digest) Stale() ([]store.Contact, error) {
	return d.lister.StaleContacts(d.now().Add(-d.staleAfter))
}

// Build composes the digest notification. ok is false when nobody is stale.
func (d *Digest) Build() (n Notification, ok bool, err error) {
	stale, err := d.Stale()
	if err != nil {
		return Notification{}, false, err
	}
	if len(stale) == 0 {
		return Notification{}, false, nil
	}

	names := make([]string, 0, maxDigestNames)
	for i, c := range stale {
		if i == maxDigestNames {
			break
		}
		names = append(names, c.DisplayName())
	}
	body := strings.Join(names, ", ")
	if extra := len(stale) - len(names); extra > 0 {
		body += fmt.Sprintf(" and %d more", extra)
	}

	title := "1 contact to catch up with"
	if len(stale) > 1 {
		title = fmt.Sprintf("%d contacts to catch up with", len(stale))
	}
	return Notification{EventID: digestEventID, Title: title, Body: body}, true, nil
}

// Install registers the digest on the notifier's scheduler. Each run
// delivers through deliver.
func (d *Digest) Install(l *LocalNotifier, deliver func(Handle, Notification)) error {
	_, err := l.Every(d.expr, "follow-up-digest", func() {
		n, ok, err := d.Build()
		if err != nil {
			d.log.WithError(err).Warn("follow-up digest failed")
			return
		}
		if !ok {
			d.log.Debug("follow-up digest: nobody to catch up with")
			return
		}
		deliver(Handle(digestEventID), n)
	})
	if err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{
		"cron":     d.expr,
		"next_run": d.NextRun(d.now()).Format(time.RFC3339),
	}).Info("follow-up digest installed")
	return nil
}
