package engine

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"pronet-go/internal/models"
	"pronet-go/internal/remote"
)

// SetSearchQuery installs a new search query for the connections view.
// Query changes cancel the previous query's debounce timer; only the latest
// query's fetch is allowed to mutate the views.
func (e *Engine) SetSearchQuery(query string) error {
	query = strings.TrimSpace(query)
	return e.call(func() {
		e.mu.Lock()
		if e.searchQuery == query {
			e.mu.Unlock()
			return
		}
		e.searchQuery = query
		// Results for the abandoned query must never surface.
		e.globalQuery = ""
		e.globalResults = nil
		e.globalErr = nil
		e.mu.Unlock()

		// The abandoned query's connections fetch may still be in flight;
		// bump the generation now so its response is discarded even if it
		// lands before the new query's debounce expires.
		e.viewGen[models.ViewConnections] = uuid.NewString()

		if e.debounce != nil {
			e.debounce.Stop()
			e.debounce = nil
		}
		if query == "" {
			e.startFetch(models.ViewConnections)
			return
		}
		e.debounce = time.AfterFunc(e.cfg.DebounceWindow, func() {
			e.post(func() {
				// The query may have moved on while the timer ran.
				if e.currentQuery() != query {
					return
				}
				e.startFetch(models.ViewConnections)
			})
		})
	})
}

// SearchQuery returns the active query.
func (e *Engine) SearchQuery() string {
	return e.currentQuery()
}

func (e *Engine) currentQuery() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.searchQuery
}

// maybeGlobalSearch runs on the task loop after a connections merge. When
// an active query filters the connections view down to nothing and no
// global search has been issued for it yet, a site-wide user search is
// launched as a fallback.
func (e *Engine) maybeGlobalSearch() {
	query := e.currentQuery()
	if query == "" {
		return
	}
	if len(e.filteredConnections(query)) > 0 {
		return
	}
	e.mu.Lock()
	if e.globalQuery == query {
		e.mu.Unlock()
		return
	}
	e.globalQuery = query
	e.globalResults = nil
	e.globalErr = nil
	e.mu.Unlock()

	if !e.session.Valid() {
		// No crash and no partial list: global results stay suppressed
		// until a valid session shows up.
		log.Printf("engine: global search for %q suppressed: no valid session", query)
		e.mu.Lock()
		e.globalErr = ErrAuthRequired
		e.mu.Unlock()
		return
	}

	go func() {
		users, err := e.client.SearchUsersGlobally(e.runCtx, query, e.cfg.GlobalSearchLimit, 0)
		e.post(func() {
			if e.currentQuery() != query {
				log.Printf("engine: discarding stale global search for %q", query)
				return
			}
			e.mu.Lock()
			defer e.mu.Unlock()
			if err != nil {
				e.globalErr = fmt.Errorf("global search failed: %w", err)
				return
			}
			e.globalResults = users
			e.globalErr = nil
		})
	}()
}

// GlobalSearchResults returns the fallback search results for the active
// query, excluding anyone already connected or with an outstanding request
// so no one is offered a Connect action twice.
func (e *Engine) GlobalSearchResults() ([]remote.RemoteUser, error) {
	e.mu.RLock()
	results := e.globalResults
	err := e.globalErr
	e.mu.RUnlock()

	if err != nil {
		return nil, err
	}
	out := make([]remote.RemoteUser, 0, len(results))
	for _, u := range results {
		if rec, ok := e.repo.Get(u.ID); ok {
			if rec.State == models.RelationStateConnected || rec.State == models.RelationStateOutgoingPending {
				continue
			}
		}
		out = append(out, u)
	}
	return out, nil
}

// filteredConnections applies the active query to the local connections
// view (the remote fetch is also filtered server-side; this keeps the view
// honest between fetches).
func (e *Engine) filteredConnections(query string) []*models.RelationshipRecord {
	recs := e.repo.ViewOf(models.ViewConnections)
	if query == "" {
		return recs
	}
	needle := strings.ToLower(query)
	out := recs[:0]
	for _, rec := range recs {
		if profileMatches(rec.Profile, needle) {
			out = append(out, rec)
		}
	}
	return out
}

func profileMatches(p models.DisplayProfile, needle string) bool {
	for _, field := range []string{p.Name, p.Headline, p.Company, p.Email} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// globalProfileFor pulls display data for a counterparty out of the current
// global search results, for send commands targeting search hits.
func (e *Engine) globalProfileFor(counterpartyID string) models.DisplayProfile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, u := range e.globalResults {
		if u.ID == counterpartyID {
			return models.DisplayProfile{
				Name:      u.Name,
				AvatarURL: u.AvatarURL,
				Headline:  u.Headline,
				Company:   u.Company,
				Email:     u.Email,
			}
		}
	}
	return models.DisplayProfile{}
}
