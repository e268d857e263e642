// Package enrich observes asynchronous AI summarization by polling.
//
// Summarization jobs are fire-and-forget; the only way to learn that one
// landed is to re-read the contact. A Watch re-fetches the contact detail
// while it has enrichable data (facts or hot topics) and no summary yet.
// The condition is recomputed from every successful fetch, so a summary that
// lands between polls is picked up on the next one.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/logging"
	"github.com/HendryAvila/kith/internal/metrics"
	"github.com/HendryAvila/kith/internal/store"
)

// ErrPollingAbandoned ends a watch after too many consecutive fetch failures.
var ErrPollingAbandoned = errors.New("enrich: polling abandoned after repeated failures")

// NeedsPolling is the level-triggered continuation condition.
func NeedsPolling(d *store.ContactDetail) bool {
	if d == nil {
		return false
	}
	return (d.FactCount > 0 || d.HotTopicCount > 0) && d.Contact.AISummary == nil
}

// Fetcher reads the current detail view of a contact.
type Fetcher interface {
	Fetch(ctx context.Context, contactID string) (*store.ContactDetail, error)
}

// Config tunes the poller cadence.
type Config struct {
	Interval               time.Duration
	MaxBackoff             time.Duration
	MaxConsecutiveFailures int
	// After schedules the next fetch. Defaults to time.After; tests inject a
	// channel they control.
	After func(time.Duration) <-chan time.Time
}

// Update is delivered to the watcher after every fetch.
type Update struct {
	ContactID string               `json:"contact_id"`
	Detail    *store.ContactDetail `json:"detail,omitempty"`
	Err       error                `json:"-"`
	Polling   bool                 `json:"polling"`
	Failures  int                  `json:"consecutive_failures"`
}

// Outcome explains why a watch ended.
type Outcome string

// Watch outcomes.
const (
	OutcomeRunning   Outcome = "running"
	OutcomeSatisfied Outcome = "satisfied" // summary present or nothing to enrich
	OutcomeStopped   Outcome = "stopped"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeGone      Outcome = "contact_deleted"
)

// Result is the final (or current) state of a watch.
type Result struct {
	Outcome Outcome              `json:"outcome"`
	Detail  *store.ContactDetail `json:"detail,omitempty"`
	Err     error                `json:"-"`
	Fetches int                  `json:"fetches"`
}

// Poller runs one independent watch per contact.
type Poller struct {
	fetcher Fetcher
	cfg     Config
	log     *logrus.Entry
	metrics *metrics.Metrics

	mu      sync.Mutex
	watches map[string]*Watch
}

// Option customizes a Poller.
type Option func(*Poller)

// WithLogger sets the log entry.
func WithLogger(log *logrus.Entry) Option { return func(p *Poller) { p.log = log } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(p *Poller) { p.metrics = m } }

// NewPoller creates a poller. Zero config fields fall back to 1.5s
// interval, 30s max backoff and 8 failures.
func NewPoller(f Fetcher, cfg Config, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 1500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = 30 * time.Second
		if cfg.MaxBackoff < cfg.Interval {
			cfg.MaxBackoff = cfg.Interval
		}
	}
	if cfg.MaxConsecutiveFailures < 1 {
		cfg.MaxConsecutiveFailures = 8
	}
	if cfg.After == nil {
		cfg.After = time.After
	}
	p := &Poller{
		fetcher: f,
		cfg:     cfg,
		log:     logging.Discard(),
		watches: make(map[string]*Watch),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch starts polling contactID and returns its handle. If the contact is
// already watched the existing handle is returned and onUpdate is ignored.
// The watch ends when ctx is done, Stop is called, the condition clears or
// failures exceed the configured cap.
func (p *Poller) Watch(ctx context.Context, contactID string, onUpdate func(Update)) *Watch {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.watches[contactID]; ok {
		return w
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		contactID:  contactID,
		cancel:     cancel,
		invalidate: make(chan struct{}, 1),
		done:       make(chan struct{}),
		result:     Result{Outcome: OutcomeRunning},
	}
	p.watches[contactID] = w
	p.metrics.Watches(len(p.watches))

	go p.run(wctx, w, onUpdate)
	return w
}

// Get returns the live watch for a contact, if any.
func (p *Poller) Get(contactID string) (*Watch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.watches[contactID]
	return w, ok
}

// Active lists the contacts currently watched.
func (p *Poller) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.watches))
	for id := range p.watches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StopAll stops every watch and waits for them to finish.
func (p *Poller) StopAll() {
	p.mu.Lock()
	ws := make([]*Watch, 0, len(p.watches))
	for _, w := range p.watches {
		ws = append(ws, w)
	}
	p.mu.Unlock()

	for _, w := range ws {
		w.Stop()
	}
	for _, w := range ws {
		<-w.Done()
	}
}

// backoff returns the wait after the given number of consecutive failures:
// Interval for the first, doubling up to MaxBackoff.
func (p *Poller) backoff(failures int) time.Duration {
	d := p.cfg.Interval
	for i := 1; i < failures && d < p.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > p.cfg.MaxBackoff {
		d = p.cfg.MaxBackoff
	}
	return d
}

func (p *Poller) run(ctx context.Context, w *Watch, onUpdate func(Update)) {
	log := p.log.WithField("contact_id", w.contactID)
	defer func() {
		p.mu.Lock()
		delete(p.watches, w.contactID)
		p.metrics.Watches(len(p.watches))
		p.mu.Unlock()
		close(w.done)
	}()
	notify := func(u Update) {
		if onUpdate != nil {
			onUpdate(u)
		}
	}

	failures := 0
	for {
		// An in-flight fetch is never aborted by Stop; only the next one is
		// suppressed.
		detail, err := p.fetcher.Fetch(context.WithoutCancel(ctx), w.contactID)
		w.recordFetch()

		var wait time.Duration
		switch {
		case errors.Is(err, store.ErrNotFound):
			p.metrics.Poll(false)
			notify(Update{ContactID: w.contactID, Err: err})
			w.finish(Result{Outcome: OutcomeGone, Err: err})
			log.Info("watched contact no longer exists")
			return

		case err != nil:
			failures++
			p.metrics.Poll(false)
			notify(Update{ContactID: w.contactID, Err: err, Polling: true, Failures: failures})
			if failures >= p.cfg.MaxConsecutiveFailures {
				w.finish(Result{Outcome: OutcomeAbandoned, Err: fmt.Errorf("%w: %v", ErrPollingAbandoned, err)})
				log.WithError(err).WithField("failures", failures).Warn("enrichment polling abandoned")
				return
			}
			wait = p.backoff(failures)
			log.WithError(err).WithField("retry_in", wait.String()).Debug("enrichment fetch failed")

		default:
			failures = 0
			p.metrics.Poll(true)
			polling := NeedsPolling(detail)
			w.setDetail(detail)
			notify(Update{ContactID: w.contactID, Detail: detail, Polling: polling})
			if !polling {
				w.finish(Result{Outcome: OutcomeSatisfied, Detail: detail})
				log.WithField("summarized", detail.Contact.AISummary != nil).Debug("enrichment polling finished")
				return
			}
			wait = p.cfg.Interval
		}

		if ctx.Err() != nil {
			w.finish(Result{Outcome: OutcomeStopped, Detail: w.Result().Detail})
			return
		}
		select {
		case <-ctx.Done():
			w.finish(Result{Outcome: OutcomeStopped, Detail: w.Result().Detail})
			return
		case <-w.invalidate:
		case <-p.cfg.After(wait):
		}
	}
}

// ─── Watch ───────────────────────────────────────────────────────────────────

// Watch is the handle of one polling loop.
type Watch struct {
	contactID  string
	cancel     context.CancelFunc
	invalidate chan struct{}
	done       chan struct{}

	mu     sync.Mutex
	result Result
}

// ContactID is the watched contact.
func (w *Watch) ContactID() string { return w.contactID }

// Stop cancels the watch. It takes effect before the next scheduled fetch.
func (w *Watch) Stop() { w.cancel() }

// Invalidate requests an immediate out-of-band fetch. It does not change
// the continuation condition. Requests made while one is pending coalesce.
func (w *Watch) Invalidate() {
	select {
	case w.invalidate <- struct{}{}:
	default:
	}
}

// Done is closed when the watch ends.
func (w *Watch) Done() <-chan struct{} { return w.done }

// Result returns the outcome so far; Outcome is OutcomeRunning until Done
// is closed.
func (w *Watch) Result() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

func (w *Watch) recordFetch() {
	w.mu.Lock()
	w.result.Fetches++
	w.mu.Unlock()
}

func (w *Watch) setDetail(d *store.ContactDetail) {
	w.mu.Lock()
	w.result.Detail = d
	w.mu.Unlock()
}

func (w *Watch) finish(r Result) {
	w.mu.Lock()
	r.Fetches = w.result.Fetches
	if r.Detail == nil {
		r.Detail = w.result.Detail
	}
	w.result = r
	w.mu.Unlock()
}
