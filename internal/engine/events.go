package engine

import (
	"log"

	"pronet-go/internal/models"
	"pronet-go/internal/remote"
)

// HandleEvent reacts to one asynchronous connection event with a targeted
// re-fetch. A full engine reset is never performed here; that would discard
// in-flight optimistic state for unrelated counterparties.
func (e *Engine) HandleEvent(ev remote.ConnectionEvent) {
	switch ev.Type {
	case remote.EventRequestReceived:
		log.Printf("engine: request-received event (counterparty %s), refreshing invitations", ev.CounterpartyID)
		e.RefreshView(models.ViewInvitations)
	case remote.EventRequestAccepted:
		log.Printf("engine: request-accepted event (counterparty %s), refreshing invitations and connections", ev.CounterpartyID)
		e.RefreshView(models.ViewInvitations)
		e.RefreshView(models.ViewConnections)
	case remote.EventRequestRejected:
		log.Printf("engine: request-rejected event (counterparty %s), refreshing invitations", ev.CounterpartyID)
		e.RefreshView(models.ViewInvitations)
	default:
		log.Printf("engine: ignoring unknown event type %q", ev.Type)
	}
}
