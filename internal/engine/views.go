package engine

import (
	"pronet-go/internal/models"
)

// View is what a view accessor hands to the UI: the records plus refresh
// metadata backing the failed-to-load/retry affordance.
type View struct {
	Kind    models.ViewKind              `json:"kind"`
	Records []*models.RelationshipRecord `json:"records"`
	Status  ViewStatus                   `json:"status"`
}

// Connections returns the connections view filtered by the active query.
func (e *Engine) Connections() View {
	return View{
		Kind:    models.ViewConnections,
		Records: e.filteredConnections(e.currentQuery()),
		Status:  e.ViewStatusOf(models.ViewConnections),
	}
}

// Invitations returns the incoming pending invitations, newest first.
func (e *Engine) Invitations() View {
	return View{
		Kind:    models.ViewInvitations,
		Records: e.repo.ViewOf(models.ViewInvitations),
		Status:  e.ViewStatusOf(models.ViewInvitations),
	}
}

// SentRequests returns the outgoing pending requests, newest first.
func (e *Engine) SentRequests() View {
	return View{
		Kind:    models.ViewSent,
		Records: e.repo.ViewOf(models.ViewSent),
		Status:  e.ViewStatusOf(models.ViewSent),
	}
}

// Recommendations returns the people-you-may-know view. It is derived from
// the live repository, so counterparties that became connected or pending
// since the last fetch are already gone.
func (e *Engine) Recommendations() View {
	return View{
		Kind:    models.ViewRecommendations,
		Records: e.repo.ViewOf(models.ViewRecommendations),
		Status:  e.ViewStatusOf(models.ViewRecommendations),
	}
}

// ViewOf returns the view for the given kind.
func (e *Engine) ViewOf(kind models.ViewKind) (View, bool) {
	switch kind {
	case models.ViewConnections:
		return e.Connections(), true
	case models.ViewInvitations:
		return e.Invitations(), true
	case models.ViewSent:
		return e.SentRequests(), true
	case models.ViewRecommendations:
		return e.Recommendations(), true
	}
	return View{}, false
}

// ViewStatusOf returns a copy of the refresh metadata for a view.
func (e *Engine) ViewStatusOf(kind models.ViewKind) ViewStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if st, ok := e.status[kind]; ok {
		return *st
	}
	return ViewStatus{}
}
