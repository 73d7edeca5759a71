package repository

import (
	"sort"
	"sync"

	"pronet-go/internal/models"
)

// RelationshipRepository is the single owner of per-counterparty relationship
// records. Every view the engine exposes is derived from it; no other
// component keeps its own list of counterparties.
type RelationshipRepository interface {
	// Upsert merges an incoming record with any existing one for the same
	// counterparty. While the existing record has an unsettled action, the
	// incoming data is queued and applied only after the action settles, so
	// a slow fetch can never clobber an optimistic transition.
	Upsert(rec *models.RelationshipRecord)
	// Remove hard-deletes the record. Used when a relationship returns to
	// none in contexts where no view should reference the counterparty.
	Remove(counterpartyID string)
	Get(counterpartyID string) (*models.RelationshipRecord, bool)
	// BeginAction tags the record as having an optimistic mutation in
	// flight. Returns false if another action is already unsettled.
	BeginAction(counterpartyID string, action models.ActionKind) bool
	// SettleAction clears the in-flight tag, applies mutate to the record
	// (nil mutate leaves it as-is), then applies any fetch data queued
	// while the action was unsettled.
	SettleAction(counterpartyID string, mutate func(*models.RelationshipRecord))
	// SettleAndRemove clears the in-flight tag and deletes the record,
	// discarding queued fetch data for it.
	SettleAndRemove(counterpartyID string)
	// ViewOf returns the records whose state matches the view's expected
	// state, newest LastSeenAt first.
	ViewOf(kind models.ViewKind) []*models.RelationshipRecord
	All() []*models.RelationshipRecord
	Len() int
}

type entry struct {
	rec *models.RelationshipRecord
	// queued holds the most recent fetch data that arrived while rec had an
	// action in flight. Only the latest arrival is kept.
	queued *models.RelationshipRecord
}

type memoryRelationshipRepository struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemoryRelationshipRepository creates an empty in-memory repository.
func NewMemoryRelationshipRepository() RelationshipRepository {
	return &memoryRelationshipRepository{entries: make(map[string]*entry)}
}

func (r *memoryRelationshipRepository) Upsert(rec *models.RelationshipRecord) {
	if rec == nil || rec.CounterpartyID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[rec.CounterpartyID]
	if !ok {
		r.entries[rec.CounterpartyID] = &entry{rec: rec.Clone()}
		return
	}
	if !e.rec.Settled() {
		// In-flight records win over fetch data until the action settles.
		e.queued = rec.Clone()
		return
	}
	e.rec = merge(e.rec, rec)
}

// merge combines an existing record with a newer arrival for the same
// counterparty. The most recently seen data wins, but display fields and the
// original creation time survive across sources.
func merge(existing, incoming *models.RelationshipRecord) *models.RelationshipRecord {
	out := incoming.Clone()
	out.Profile = incoming.Profile.Merge(existing.Profile)
	if !existing.CreatedAt.IsZero() && (out.CreatedAt.IsZero() || existing.CreatedAt.Before(out.CreatedAt)) {
		out.CreatedAt = existing.CreatedAt
	}
	if out.LastSeenAt.Before(existing.LastSeenAt) {
		out.LastSeenAt = existing.LastSeenAt
	}
	return out
}

func (r *memoryRelationshipRepository) Remove(counterpartyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, counterpartyID)
}

func (r *memoryRelationshipRepository) Get(counterpartyID string) (*models.RelationshipRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[counterpartyID]
	if !ok {
		return nil, false
	}
	return e.rec.Clone(), true
}

func (r *memoryRelationshipRepository) BeginAction(counterpartyID string, action models.ActionKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[counterpartyID]
	if !ok {
		return false
	}
	if !e.rec.Settled() {
		return false
	}
	e.rec.InFlight = action
	return true
}

func (r *memoryRelationshipRepository) SettleAction(counterpartyID string, mutate func(*models.RelationshipRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[counterpartyID]
	if !ok {
		return
	}
	e.rec.InFlight = ""
	if mutate != nil {
		mutate(e.rec)
	}
	if e.queued != nil {
		e.rec = merge(e.rec, e.queued)
		e.queued = nil
	}
}

func (r *memoryRelationshipRepository) SettleAndRemove(counterpartyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, counterpartyID)
}

func (r *memoryRelationshipRepository) ViewOf(kind models.ViewKind) []*models.RelationshipRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := kind.ExpectedState()
	var out []*models.RelationshipRecord
	for _, e := range r.entries {
		if e.rec.State != want {
			continue
		}
		if kind == models.ViewRecommendations {
			// Recommendations only ever show complete profiles that came in
			// through the recommendations fetch.
			if e.rec.OriginView != models.ViewRecommendations || !e.rec.Profile.Complete() {
				continue
			}
		}
		out = append(out, e.rec.Clone())
	}
	sortNewestFirst(out)
	return out
}

func (r *memoryRelationshipRepository) All() []*models.RelationshipRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.RelationshipRecord, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.rec.Clone())
	}
	sortNewestFirst(out)
	return out
}

func (r *memoryRelationshipRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func sortNewestFirst(recs []*models.RelationshipRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].LastSeenAt.Equal(recs[j].LastSeenAt) {
			return recs[i].CounterpartyID < recs[j].CounterpartyID
		}
		return recs[i].LastSeenAt.After(recs[j].LastSeenAt)
	})
}
