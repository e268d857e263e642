// Package search answers natural-language questions about contacts by
// sending locally gathered evidence to the remote ranker.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/logging"
	"github.com/HendryAvila/kith/internal/metrics"
	"github.com/HendryAvila/kith/internal/remote"
	"github.com/HendryAvila/kith/internal/store"
)

// Evidence is the local material a query is answered from.
type Evidence struct {
	Facts    []remote.EvidenceItem `json:"facts"`
	Memories []remote.EvidenceItem `json:"memories"`
	Notes    []remote.EvidenceItem `json:"notes"`
}

// Empty reports whether there is nothing to rank.
func (e Evidence) Empty() bool {
	return len(e.Facts) == 0 && len(e.Memories) == 0 && len(e.Notes) == 0
}

// Size is the total number of evidence items.
func (e Evidence) Size() int { return len(e.Facts) + len(e.Memories) + len(e.Notes) }

// Ranker is the remote semantic ranking service.
type Ranker interface {
	Rank(ctx context.Context, req remote.RankRequest) ([]remote.Result, error)
}

// Source is the slice of the Local Store evidence is gathered from.
type Source interface {
	ListContacts() ([]store.Contact, error)
	GetContact(id string) (*store.Contact, error)
	ListFactsByContact(contactID string) ([]store.Fact, error)
	ListHotTopicsByContact(contactID string) ([]store.HotTopic, error)
	ListNotesByContact(contactID string, limit int) ([]store.Note, error)
}

// Orchestrator gates and forwards search requests.
type Orchestrator struct {
	ranker  Ranker
	source  Source
	log     *logrus.Entry
	metrics *metrics.Metrics
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the log entry.
func WithLogger(log *logrus.Entry) Option { return func(o *Orchestrator) { o.log = log } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// New creates an orchestrator. source may be nil when evidence is always
// supplied by the caller.
func New(r Ranker, source Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{ranker: r, source: source, log: logging.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ContactName resolves a contact's display name, or "" when it is unknown.
func (o *Orchestrator) ContactName(id string) string {
	if o.source == nil || id == "" {
		return ""
	}
	c, err := o.source.GetContact(id)
	if err != nil {
		return ""
	}
	return c.DisplayName()
}

// Search ranks ev against query. A blank query or empty evidence yields an
// empty result without contacting the ranker. The ranker's list is returned
// as is.
func (o *Orchestrator) Search(ctx context.Context, query string, ev Evidence) ([]remote.Result, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		o.metrics.Search("empty_query", 0)
		return []remote.Result{}, nil
	}
	if ev.Empty() {
		o.metrics.Search("no_evidence", 0)
		return []remote.Result{}, nil
	}

	start := time.Now()
	results, err := o.ranker.Rank(ctx, remote.RankRequest{
		Query:    q,
		Facts:    ev.Facts,
		Memories: ev.Memories,
		Notes:    ev.Notes,
	})
	elapsed := time.Since(start)
	if err != nil {
		o.metrics.Search("error", elapsed)
		return nil, fmt.Errorf("search: rank: %w", err)
	}
	o.metrics.Search("ranked", elapsed)
	o.log.WithFields(logrus.Fields{
		"evidence": ev.Size(),
		"results":  len(results),
		"took_ms":  elapsed.Milliseconds(),
	}).Debug("search ranked")
	if results == nil {
		results = []remote.Result{}
	}
	return results, nil
}

// notesPerContact bounds how many notes each contact contributes.
const notesPerContact = 50

// EvidenceFor gathers evidence for the given contacts, or for everyone when
// contactIDs is empty. Facts feed Facts; hot topics and AI summaries feed
// Memories; notes with a transcription or summary feed Notes.
func (o *Orchestrator) EvidenceFor(ctx context.Context, contactIDs []string) (Evidence, error) {
	if o.source == nil {
		return Evidence{}, fmt.Errorf("search: no evidence source configured")
	}

	var contacts []store.Contact
	if len(contactIDs) == 0 {
		all, err := o.source.ListContacts()
		if err != nil {
			return Evidence{}, err
		}
		contacts = all
	} else {
		for _, id := range contactIDs {
			c, err := o.source.GetContact(id)
			if err != nil {
				return Evidence{}, err
			}
			contacts = append(contacts, *c)
		}
	}

	var ev Evidence
	for _, c := range contacts {
		if err := ctx.Err(); err != nil {
			return Evidence{}, err
		}
		name := c.DisplayName()

		facts, err := o.source.ListFactsByContact(c.ID)
		if err != nil {
			return Evidence{}, err
		}
		for _, f := range facts {
			ev.Facts = append(ev.Facts, remote.EvidenceItem{
				SourceID:  f.ID,
				ContactID: c.ID,
				Text:      fmt.Sprintf("%s: %s %s = %s", name, f.Type, f.Key, f.Value),
			})
		}

		if c.AISummary != nil && strings.TrimSpace(*c.AISummary) != "" {
			ev.Memories = append(ev.Memories, remote.EvidenceItem{
				SourceID:  "summary:" + c.ID,
				ContactID: c.ID,
				Text:      name + ": " + *c.AISummary,
			})
		}
		topics, err := o.source.ListHotTopicsByContact(c.ID)
		if err != nil {
			return Evidence{}, err
		}
		for _, h := range topics {
			text := name + ": " + h.Title
			if h.Context != nil && *h.Context != "" {
				text += " (" + *h.Context + ")"
			}
			ev.Memories = append(ev.Memories, remote.EvidenceItem{SourceID: h.ID, ContactID: c.ID, Text: text})
		}

		notes, err := o.source.ListNotesByContact(c.ID, notesPerContact)
		if err != nil {
			return Evidence{}, err
		}
		for _, n := range notes {
			text := noteText(n)
			if text == "" {
				continue
			}
			ev.Notes = append(ev.Notes, remote.EvidenceItem{SourceID: n.ID, ContactID: c.ID, Text: name + ": " + text})
		}
	}
	return ev, nil
}

func noteText(n store.Note) string {
	if n.Summary != nil && strings.TrimSpace(*n.Summary) != "" {
		return strings.TrimSpace(*n.Summary)
	}
	if n.Transcription != nil {
		return strings.TrimSpace(*n.Transcription)
	}
	return ""
}
