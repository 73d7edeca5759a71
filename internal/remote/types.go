package remote

import "time"

// RemoteUser is the directory API's user shape as it appears across the
// list endpoints. Not every endpoint fills every field.
type RemoteUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Headline  string `json:"headline,omitempty"`
	Company   string `json:"company,omitempty"`
	Email     string `json:"email,omitempty"`
}

// ConnectionsPage is one page of the authenticated user's connections.
type ConnectionsPage struct {
	Connections []RemoteUser `json:"connections"`
	Total       int          `json:"total"`
	Page        int          `json:"page"`
	TotalPages  int          `json:"totalPages"`
}

// Notification is an incoming connect-request notification. The invitations
// fetch asks the server for pending connect requests only, but Status is
// re-checked client-side because the server-side filter is not trusted.
type Notification struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	RequestID string     `json:"requestId"`
	Sender    RemoteUser `json:"sender"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NotificationTypeConnectRequest is the only notification type the engine
// subscribes to on the invitations endpoint.
const NotificationTypeConnectRequest = "connect_request"

// StatusPending is the remote wire value for an unresolved request.
const StatusPending = "pending"

// RequestPayload carries the request's own status. This nested field, not
// any top-level list filter, is authoritative for whether a sent request is
// still open (the two have been observed to disagree after withdrawals).
type RequestPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SentRequest is one outgoing connection request as listed by the server.
type SentRequest struct {
	ID        string         `json:"id"`
	Recipient RemoteUser     `json:"recipient"`
	Payload   RequestPayload `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ActionResult is the outcome of a relationship-mutating call.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// EventType enumerates the real-time connection events.
type EventType string

const (
	EventRequestReceived EventType = "received"
	EventRequestAccepted EventType = "accepted"
	EventRequestRejected EventType = "rejected"
)

// ConnectionEvent is one asynchronous notification of a remote state
// change. Delivery carries no ordering guarantee relative to in-flight
// fetches, and events may be redelivered; DeliveryID is used for dedup.
type ConnectionEvent struct {
	Type           EventType `json:"type"`
	CounterpartyID string    `json:"counterpartyId,omitempty"`
	DeliveryID     string    `json:"deliveryId"`
	Timestamp      time.Time `json:"timestamp"`
}
