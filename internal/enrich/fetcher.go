package enrich

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/logging"
	"github.com/HendryAvila/kith/internal/store"
)

// DetailStore is the slice of the Local Store a SummaryFetcher needs.
type DetailStore interface {
	ContactDetail(id string) (*store.ContactDetail, error)
	SetAISummary(id, summary string) error
}

// SummarySource reads the summary produced by the remote summarization job.
// An empty string means the job has not finished yet.
type SummarySource interface {
	Summary(ctx context.Context, contactID string) (string, error)
}

// SummaryFetcher is the production Fetcher: it reads the local detail view
// and, while the contact still lacks a summary, asks the remote service for
// one and stores whatever has landed.
type SummaryFetcher struct {
	store  DetailStore
	remote SummarySource
	log    *logrus.Entry
}

// NewSummaryFetcher creates a fetcher. A nil remote reads only locally.
func NewSummaryFetcher(st DetailStore, remote SummarySource, log *logrus.Entry) *SummaryFetcher {
	if log == nil {
		log = logging.Discard()
	}
	return &SummaryFetcher{store: st, remote: remote, log: log}
}

// Fetch implements Fetcher.
func (f *SummaryFetcher) Fetch(ctx context.Context, contactID string) (*store.ContactDetail, error) {
	d, err := f.store.ContactDetail(contactID)
	if err != nil {
		return nil, err
	}
	if f.remote == nil || !NeedsPolling(d) {
		return d, nil
	}

	summary, err := f.remote.Summary(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("enrich: fetch summary: %w", err)
	}
	if summary == "" {
		return d, nil
	}
	if err := f.store.SetAISummary(contactID, summary); err != nil {
		return nil, err
	}
	f.log.WithField("contact_id", contactID).Info("ai summary stored")
	return f.store.ContactDetail(contactID)
}
