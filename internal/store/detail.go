package store

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// recentNotesInDetail bounds the notes embedded in a ContactDetail.
const recentNotesInDetail = 5

// ContactDetail is the per-contact view observed by the enrichment poller
// and rendered by the contact resource.
type ContactDetail struct {
	Contact       Contact    `json:"contact"`
	FactCount     int        `json:"fact_count"`
	HotTopicCount int        `json:"hot_topic_count"`
	NoteCount     int        `json:"note_count"`
	Facts         []Fact     `json:"facts"`
	HotTopics     []HotTopic `json:"hot_topics"`
	RecentNotes   []Note     `json:"recent_notes"`
}

// ContactDetail assembles the detail view, serving it from the view cache
// when possible.
func (s *Store) ContactDetail(id string) (*ContactDetail, error) {
	if d, ok := s.detail.get(id); ok {
		return d, nil
	}
	gen := s.detail.generation(id)

	c, err := s.GetContact(id)
	if err != nil {
		return nil, err
	}
	facts, err := s.ListFactsByContact(id)
	if err != nil {
		return nil, err
	}
	topics, err := s.ListHotTopicsByContact(id)
	if err != nil {
		return nil, err
	}
	notes, err := s.ListNotesByContact(id, recentNotesInDetail)
	if err != nil {
		return nil, err
	}
	var noteCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM notes WHERE contact_id = ?`, id).Scan(&noteCount); err != nil {
		return nil, persistErr("contact detail", err)
	}

	d := &ContactDetail{
		Contact:       *c,
		FactCount:     len(facts),
		HotTopicCount: len(topics),
		NoteCount:     noteCount,
		Facts:         facts,
		HotTopics:     topics,
		RecentNotes:   notes,
	}
	s.detail.put(id, gen, d)
	return d, nil
}

// ─── Detail Cache ────────────────────────────────────────────────────────────

// DetailCache is a disposable in-memory cache of ContactDetail views. It is
// invalidated by every store mutation touching the contact and can always be
// rebuilt from the database.
//
// Each contact carries a generation bumped by Invalidate. A view built while
// the generation moved is returned to its caller but never cached.
type DetailCache struct {
	c *cache.Cache

	mu    sync.Mutex
	epoch uint64
	gens  map[string]uint64
}

// NewDetailCache creates a cache whose entries expire after ttl.
func NewDetailCache(ttl time.Duration) *DetailCache {
	return &DetailCache{c: cache.New(ttl, 2*ttl), gens: make(map[string]uint64)}
}

type detailGen struct {
	epoch, gen uint64
}

func (d *DetailCache) generation(id string) detailGen {
	d.mu.Lock()
	defer d.mu.Unlock()
	return detailGen{epoch: d.epoch, gen: d.gens[id]}
}

func (d *DetailCache) get(id string) (*ContactDetail, bool) {
	v, ok := d.c.Get(id)
	if !ok {
		return nil, false
	}
	cp := *v.(*ContactDetail)
	return &cp, true
}

// put caches detail unless the contact was invalidated since gen was taken.
func (d *DetailCache) put(id string, gen detailGen, detail *ContactDetail) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.epoch != gen.epoch || d.gens[id] != gen.gen {
		return false
	}
	cp := *detail
	d.c.Set(id, &cp, cache.DefaultExpiration)
	return true
}

// Invalidate drops the cached view for a contact.
func (d *DetailCache) Invalidate(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gens[id]++
	d.c.Delete(id)
}

// Flush drops every cached view.
func (d *DetailCache) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.epoch++
	clear(d.gens)
	d.c.Flush()
}

// Len reports how many views are cached.
func (d *DetailCache) Len() int {
	return d.c.ItemCount()
}
