package websocket

import (
	"encoding/json"
	"log"

	"pronet-go/internal/models"
)

// ViewChangedMessage is pushed to UI clients whenever a view's contents may
// have changed. Clients respond by re-reading the view accessor; no view
// data travels over the socket.
type ViewChangedMessage struct {
	Type string          `json:"type"`
	View models.ViewKind `json:"view"`
}

// Hub maintains the set of connected UI clients and broadcasts view-change
// notifications to all of them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// ViewChanged implements engine.ViewNotifier. The send is non-blocking so
// the engine's task loop is never held up by a slow socket.
func (h *Hub) ViewChanged(kind models.ViewKind) {
	payload, err := json.Marshal(ViewChangedMessage{Type: "view_changed", View: kind})
	if err != nil {
		log.Printf("websocket: marshalling view change for %s: %v", kind, err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		log.Printf("websocket: broadcast channel full, dropping %s notification", kind)
	}
}

// Run dispatches registrations and broadcasts until the process exits.
func (h *Hub) Run() {
	log.Printf("websocket: hub started")
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("websocket: client registered (%d connected)", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("websocket: client unregistered (%d connected)", len(h.clients))
			}

		case payload := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Slow or dead client; drop it rather than stall.
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}
