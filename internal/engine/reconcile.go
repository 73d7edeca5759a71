package engine

import (
	"log"
	"time"

	"github.com/google/uuid"

	"pronet-go/internal/models"
	"pronet-go/internal/remote"
)

// RefreshAll issues all four fetches. Results arrive asynchronously and are
// merged in arrival order.
func (e *Engine) RefreshAll() {
	for _, kind := range models.AllViewKinds {
		e.RefreshView(kind)
	}
}

// RefreshView issues the fetch backing one view. A newer refresh of the
// same view supersedes any still in flight; the stale result is discarded
// on arrival. The fetch runs on the engine's own lifetime, so the caller
// (an HTTP handler, typically) may return immediately.
func (e *Engine) RefreshView(kind models.ViewKind) {
	e.post(func() { e.startFetch(kind) })
}

// startFetch runs on the task loop. It stamps the fetch with a generation
// tag and launches the remote call off-loop.
func (e *Engine) startFetch(kind models.ViewKind) {
	gen := uuid.NewString()
	e.viewGen[kind] = gen

	switch kind {
	case models.ViewConnections:
		query := e.currentQuery()
		go e.fetchConnections(gen, query)
	case models.ViewInvitations:
		go e.fetchInvitations(gen)
	case models.ViewSent:
		go e.fetchSentRequests(gen)
	case models.ViewRecommendations:
		go e.fetchRecommendations(gen)
	}
}

func (e *Engine) fetchConnections(gen, query string) {
	page, err := e.client.ListConnections(e.runCtx, 1, e.cfg.ConnectionsPageSize, query)
	e.post(func() {
		if e.viewGen[models.ViewConnections] != gen {
			log.Printf("engine: discarding stale connections fetch (query %q)", query)
			return
		}
		if err != nil {
			e.setViewError(models.ViewConnections, err)
			return
		}
		e.mergeConnections(page)
		e.setViewRefreshed(models.ViewConnections, page.Total, page.Page, page.TotalPages)
		e.afterMerge(models.ViewConnections)
		e.maybeGlobalSearch()
	})
}

func (e *Engine) fetchInvitations(gen string) {
	notifs, err := e.client.ListInvitations(e.runCtx)
	e.post(func() {
		if e.viewGen[models.ViewInvitations] != gen {
			log.Printf("engine: discarding stale invitations fetch")
			return
		}
		if err != nil {
			e.setViewError(models.ViewInvitations, err)
			return
		}
		kept := e.mergeInvitations(notifs)
		e.setViewRefreshed(models.ViewInvitations, kept, 1, 1)
		e.afterMerge(models.ViewInvitations)
	})
}

func (e *Engine) fetchSentRequests(gen string) {
	reqs, err := e.client.ListSentRequests(e.runCtx)
	e.post(func() {
		if e.viewGen[models.ViewSent] != gen {
			log.Printf("engine: discarding stale sent-requests fetch")
			return
		}
		if err != nil {
			e.setViewError(models.ViewSent, err)
			return
		}
		kept := e.mergeSentRequests(reqs)
		e.setViewRefreshed(models.ViewSent, kept, 1, 1)
		e.afterMerge(models.ViewSent)
	})
}

func (e *Engine) fetchRecommendations(gen string) {
	users, err := e.client.ListRecommendations(e.runCtx, 1, e.cfg.RecommendationsPageSize)
	e.post(func() {
		if e.viewGen[models.ViewRecommendations] != gen {
			log.Printf("engine: discarding stale recommendations fetch")
			return
		}
		if err != nil {
			e.setViewError(models.ViewRecommendations, err)
			return
		}
		kept := e.mergeRecommendations(users)
		e.setViewRefreshed(models.ViewRecommendations, kept, 1, 1)
		e.afterMerge(models.ViewRecommendations)
	})
}

// mergeConnections upserts every listed user as connected. Pending records
// for the same counterparty are superseded; the request was resolved
// elsewhere and the connection list is authoritative for that.
func (e *Engine) mergeConnections(page *remote.ConnectionsPage) {
	now := time.Now()
	for i, u := range page.Connections {
		e.repo.Upsert(&models.RelationshipRecord{
			CounterpartyID: u.ID,
			Profile:        profileOf(u),
			State:          models.RelationStateConnected,
			OriginView:     models.ViewConnections,
			CreatedAt:      now,
			// Staggered so newest-first ordering preserves the server's
			// list order.
			LastSeenAt: now.Add(-time.Duration(i) * time.Microsecond),
		})
	}
}

// mergeInvitations applies the pending-only double filter: the query asks
// the server for pending connect requests, and the merge re-checks both
// fields because the server-side filter is not trusted. Returns the number
// of surviving entries.
func (e *Engine) mergeInvitations(notifs []remote.Notification) int {
	now := time.Now()
	listed := make(map[string]bool, len(notifs))
	kept := 0
	for i, n := range notifs {
		if n.Type != remote.NotificationTypeConnectRequest || n.Status != remote.StatusPending {
			continue
		}
		if n.Sender.ID == "" {
			continue
		}
		listed[n.Sender.ID] = true
		kept++
		e.repo.Upsert(&models.RelationshipRecord{
			CounterpartyID: n.Sender.ID,
			Profile:        profileOf(n.Sender),
			State:          models.RelationStateIncomingPending,
			OriginView:     models.ViewInvitations,
			RequestID:      n.RequestID,
			NotificationID: n.ID,
			CreatedAt:      n.CreatedAt,
			LastSeenAt:     now.Add(-time.Duration(i) * time.Microsecond),
		})
	}
	e.demoteAbsent(models.ViewInvitations, listed, now)
	return kept
}

// mergeSentRequests trusts only the request's embedded payload status; the
// top-level list filter and the nested field have been observed to
// disagree after withdrawals.
func (e *Engine) mergeSentRequests(reqs []remote.SentRequest) int {
	now := time.Now()
	listed := make(map[string]bool, len(reqs))
	kept := 0
	for i, r := range reqs {
		if r.Payload.Status != remote.StatusPending {
			continue
		}
		if r.Recipient.ID == "" {
			continue
		}
		listed[r.Recipient.ID] = true
		kept++
		e.repo.Upsert(&models.RelationshipRecord{
			CounterpartyID: r.Recipient.ID,
			Profile:        profileOf(r.Recipient),
			State:          models.RelationStateOutgoingPending,
			OriginView:     models.ViewSent,
			RequestID:      r.ID,
			CreatedAt:      r.CreatedAt,
			LastSeenAt:     now.Add(-time.Duration(i) * time.Microsecond),
		})
	}
	e.demoteAbsent(models.ViewSent, listed, now)
	return kept
}

// demoteAbsent downgrades settled pending records that a fresh snapshot of
// their own view no longer lists. The record is kept (state none) rather
// than deleted, so a concurrent fetch for another view can still supersede
// it without the counterparty flashing through two views.
func (e *Engine) demoteAbsent(kind models.ViewKind, listed map[string]bool, now time.Time) {
	for _, rec := range e.repo.ViewOf(kind) {
		if listed[rec.CounterpartyID] || !rec.Settled() {
			continue
		}
		demoted := rec.Clone()
		demoted.State = models.RelationStateNone
		demoted.RequestID = ""
		demoted.NotificationID = ""
		demoted.LastSeenAt = now
		e.repo.Upsert(demoted)
	}
}

// mergeRecommendations filters candidates against the live repository: the
// current user, anyone connected or with an outstanding request, and
// incomplete profiles are all rejected. Returns the number kept.
func (e *Engine) mergeRecommendations(users []remote.RemoteUser) int {
	now := time.Now()
	kept := 0
	for i, u := range users {
		if u.ID == "" || u.ID == e.cfg.CurrentUserID {
			continue
		}
		if u.Name == "" || u.Email == "" {
			continue
		}
		if existing, ok := e.repo.Get(u.ID); ok && existing.State != models.RelationStateNone {
			// Connected, pending in either direction, or declined: the
			// counterparty already lives in another view (or was
			// dismissed) and must not be offered again.
			continue
		}
		kept++
		e.repo.Upsert(&models.RelationshipRecord{
			CounterpartyID: u.ID,
			Profile:        profileOf(u),
			State:          models.RelationStateNone,
			OriginView:     models.ViewRecommendations,
			CreatedAt:      now,
			LastSeenAt:     now.Add(-time.Duration(i) * time.Microsecond),
		})
	}
	return kept
}

// afterMerge runs on the task loop after any repository mutation from a
// fetch. The recommendations view is derived from the repository, so a
// counterparty that just became connected or pending disappears from it
// without a network round-trip; clients are told to re-read it.
func (e *Engine) afterMerge(kind models.ViewKind) {
	e.persistProfiles()
	if kind == models.ViewRecommendations {
		e.notifyChanged(kind)
		return
	}
	e.notifyChanged(kind, models.ViewRecommendations)
}

func (e *Engine) setViewError(kind models.ViewKind, err error) {
	log.Printf("engine: %s fetch failed: %v", kind, err)
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.statusLocked(kind)
	st.LastError = err.Error()
}

func (e *Engine) setViewRefreshed(kind models.ViewKind, total, page, totalPages int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.statusLocked(kind)
	st.LastError = ""
	st.LastRefreshedAt = time.Now()
	st.Total = total
	st.Page = page
	st.TotalPages = totalPages
}

func (e *Engine) statusLocked(kind models.ViewKind) *ViewStatus {
	st, ok := e.status[kind]
	if !ok {
		st = &ViewStatus{}
		e.status[kind] = st
	}
	return st
}

func profileOf(u remote.RemoteUser) models.DisplayProfile {
	return models.DisplayProfile{
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Headline:  u.Headline,
		Company:   u.Company,
		Email:     u.Email,
	}
}
