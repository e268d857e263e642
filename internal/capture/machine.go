// Package capture drives one voice note from recording through
// transcription and extraction into the Local Store.
//
// The Machine allows exactly one capture in flight. Every path out of an
// active state ends either idle with all capture fields cleared, or in
// StateError with a human-readable reason that Reset (or the auto-reset
// timer) clears.
package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/logging"
	"github.com/HendryAvila/kith/internal/metrics"
	"github.com/HendryAvila/kith/internal/remote"
	"github.com/HendryAvila/kith/internal/store"
)

// Recorder owns the audio capture hardware.
type Recorder interface {
	// Begin allocates a fresh capture target and starts recording into it.
	Begin(ctx context.Context) (audioURI string, err error)
	// End stops recording and releases the hardware.
	End(ctx context.Context) (durationMs int64, err error)
}

// Transcriber turns captured audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURI string) (string, error)
}

// Extractor mines a transcript for facts and hot topics.
type Extractor interface {
	Extract(ctx context.Context, text string, cc remote.ContactContext) (*remote.Extraction, error)
}

// Store is the slice of the Local Store the machine needs.
type Store interface {
	ContactDetail(id string) (*store.ContactDetail, error)
	CommitCapture(note store.NoteParams, facts []store.FactDraft, topics []store.HotTopicDraft) (*store.CaptureCommit, error)
}

// Snapshot is the externally observable state of the machine.
type Snapshot struct {
	State         State                `json:"state"`
	ContactID     string               `json:"contact_id,omitempty"`
	AudioURI      string               `json:"audio_uri,omitempty"`
	Transcription string               `json:"transcription,omitempty"`
	Extraction    *remote.Extraction   `json:"extraction,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	LastCommit    *store.CaptureCommit `json:"last_commit,omitempty"`
	ChangedAt     time.Time            `json:"changed_at"`
}

// Option customizes a Machine.
type Option func(*Machine)

// WithLogger sets the log entry.
func WithLogger(log *logrus.Entry) Option { return func(m *Machine) { m.log = log } }

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Machine) { m.metrics = mt } }

// WithErrorResetAfter makes the machine leave StateError on its own after d.
// Zero disables the timer.
func WithErrorResetAfter(d time.Duration) Option {
	return func(m *Machine) { m.errorResetAfter = d }
}

// WithOnCommit registers a callback run after every successful commit,
// outside the machine lock.
func WithOnCommit(fn func(*store.CaptureCommit)) Option {
	return func(m *Machine) { m.onCommit = fn }
}

// Machine is the capture state machine. The zero value is not usable; call
// New.
type Machine struct {
	recorder    Recorder
	transcriber Transcriber
	extractor   Extractor
	store       Store

	log             *logrus.Entry
	metrics         *metrics.Metrics
	errorResetAfter time.Duration
	onCommit        func(*store.CaptureCommit)
	now             func() time.Time

	mu            sync.Mutex
	state         State
	cycle         uint64
	contactID     string
	audioURI      string
	durationMs    int64
	transcription string
	extraction    *remote.Extraction
	reason        string
	lastCommit    *store.CaptureCommit
	changedAt     time.Time
	resetTimer    *time.Timer
	subscribers   map[chan Snapshot]struct{}
}

// New creates an idle machine.
func New(rec Recorder, tr Transcriber, ex Extractor, st Store, opts ...Option) *Machine {
	m := &Machine{
		recorder:    rec,
		transcriber: tr,
		extractor:   ex,
		store:       st,
		log:         logging.Discard(),
		now:         time.Now,
		state:       StateIdle,
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.changedAt = m.now()
	return m
}

// Snapshot returns the current observable state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		State:         m.state,
		ContactID:     m.contactID,
		AudioURI:      m.audioURI,
		Transcription: m.transcription,
		Extraction:    m.extraction,
		Reason:        m.reason,
		LastCommit:    m.lastCommit,
		ChangedAt:     m.changedAt,
	}
}

// Subscribe returns a channel receiving a Snapshot after every transition,
// and a func that unsubscribes and closes it. Slow subscribers miss
// intermediate snapshots rather than blocking the machine.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, ch)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Start begins a new capture, optionally preselecting the contact the note
// belongs to. It fails with ErrInvalidStateTransition unless the machine is
// idle.
func (m *Machine) Start(ctx context.Context, contactID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return m.snapshotLocked(), invalidTransition(m.state, StateRecording)
	}

	uri, err := m.recorder.Begin(ctx)
	if err != nil {
		return m.snapshotLocked(), err
	}

	m.cycle++
	m.clearLocked()
	m.lastCommit = nil
	m.contactID = strings.TrimSpace(contactID)
	m.audioURI = uri
	m.setLocked(StateRecording)
	m.log.WithFields(logrus.Fields{"contact_id": m.contactID, "audio_uri": uri}).Info("capture started")
	return m.snapshotLocked(), nil
}

// Stop ends the recording and runs transcription, extraction and the store
// commit. contactID overrides the preselected contact when non-empty. On
// success the machine is idle and clean and the commit is returned.
func (m *Machine) Stop(ctx context.Context, contactID string) (*store.CaptureCommit, error) {
	m.mu.Lock()
	if m.state != StateRecording {
		defer m.mu.Unlock()
		return nil, invalidTransition(m.state, StateTranscribing)
	}
	if id := strings.TrimSpace(contactID); id != "" {
		m.contactID = id
	}
	durationMs, err := m.recorder.End(ctx)
	if err != nil {
		m.failLocked("recorder: "+err.Error(), "recorder_error")
		m.mu.Unlock()
		return nil, err
	}
	m.durationMs = durationMs
	audioURI := m.audioURI
	m.setLocked(StateTranscribing)
	m.mu.Unlock()

	text, err := m.transcriber.Transcribe(ctx, audioURI)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty transcript")
	}
	if err != nil {
		te := &TranscriptionError{Err: err}
		m.fail(te.Error(), "transcription_error")
		return nil, te
	}

	m.mu.Lock()
	m.transcription = text
	m.setLocked(StateExtracting)
	contact := m.contactID
	m.mu.Unlock()

	ext, err := m.extractor.Extract(ctx, text, m.contactContext(contact))
	if err != nil {
		ee := &ExtractionError{Err: err}
		m.fail(ee.Error(), "extraction_error")
		return nil, ee
	}
	if ext == nil {
		ext = &remote.Extraction{}
	}

	m.mu.Lock()
	m.extraction = ext
	m.publishLocked()
	m.mu.Unlock()

	if contact == "" {
		m.fail(ErrNoContact.Error(), "no_contact")
		return nil, ErrNoContact
	}

	commit, err := m.store.CommitCapture(store.NoteParams{
		ContactID:       contact,
		AudioURI:        audioURI,
		AudioDurationMs: durationMs,
		Transcription:   text,
		Summary:         ext.Summary,
	}, m.normalizeFacts(ext.Facts), ext.HotTopics)
	if err != nil {
		m.fail(err.Error(), "persistence_error")
		return nil, err
	}

	m.mu.Lock()
	m.clearLocked()
	m.contactID = ""
	m.lastCommit = commit
	m.setLocked(StateIdle)
	m.mu.Unlock()

	m.metrics.Capture("committed")
	m.log.WithFields(logrus.Fields{
		"contact_id": contact,
		"note_id":    commit.Note.ID,
		"facts":      len(commit.FactIDs),
		"hot_topics": len(commit.HotTopicIDs),
	}).Info("capture committed")

	if m.onCommit != nil {
		m.onCommit(commit)
	}
	return commit, nil
}

// Reset leaves StateError, clearing every capture field and the
// preselected contact.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateError {
		return invalidTransition(m.state, StateIdle)
	}
	m.resetLocked()
	return nil
}

// normalizeFacts files facts of a type outside the closed set under
// FactCustom so one unexpected type does not sink the whole note.
func (m *Machine) normalizeFacts(facts []store.FactDraft) []store.FactDraft {
	out := make([]store.FactDraft, len(facts))
	for i, f := range facts {
		t, err := store.ParseFactType(string(f.Type))
		if err != nil {
			m.log.WithFields(logrus.Fields{"fact_type": f.Type, "key": f.Key}).Warn("unknown fact type stored as custom")
			t = store.FactCustom
		}
		f.Type = t
		out[i] = f
	}
	return out
}

// contactContext gathers what is known about the contact for the extractor.
func (m *Machine) contactContext(contactID string) remote.ContactContext {
	cc := remote.ContactContext{ContactID: contactID}
	if contactID == "" {
		return cc
	}
	d, err := m.store.ContactDetail(contactID)
	if err != nil {
		m.log.WithError(err).WithField("contact_id", contactID).Debug("contact context unavailable")
		return cc
	}
	cc.DisplayName = d.Contact.DisplayName()
	cc.KnownFacts = d.Facts
	return cc
}

func (m *Machine) fail(reason, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLocked(reason, outcome)
}

func (m *Machine) failLocked(reason, outcome string) {
	m.reason = reason
	m.setLocked(StateError)
	m.metrics.Capture(outcome)
	m.log.WithFields(logrus.Fields{"reason": reason, "contact_id": m.contactID}).Warn("capture failed")

	if m.errorResetAfter > 0 {
		cycle := m.cycle
		m.resetTimer = time.AfterFunc(m.errorResetAfter, func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.state == StateError && m.cycle == cycle {
				m.log.Info("capture error auto-reset")
				m.resetLocked()
			}
		})
	}
}

func (m *Machine) resetLocked() {
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
	m.clearLocked()
	m.contactID = ""
	m.setLocked(StateIdle)
	m.metrics.Capture("reset")
}

func (m *Machine) clearLocked() {
	m.audioURI = ""
	m.durationMs = 0
	m.transcription = ""
	m.extraction = nil
	m.reason = ""
}

func (m *Machine) setLocked(s State) {
	if !CanTransition(m.state, s) {
		// Guarded by every caller; reaching this is a bug in this package.
		panic("capture: illegal transition " + string(m.state) + " -> " + string(s))
	}
	m.log.WithFields(logrus.Fields{"from": m.state, "to": s}).Debug("transition")
	m.state = s
	m.changedAt = m.now()
	m.publishLocked()
}

func (m *Machine) publishLocked() {
	snap := m.snapshotLocked()
	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
