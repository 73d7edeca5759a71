package models

import "time"

// RelationState describes the directional relationship between the current
// user and one counterparty.
type RelationState string

const (
	RelationStateNone            RelationState = "none"
	RelationStateOutgoingPending RelationState = "outgoing_pending"
	RelationStateIncomingPending RelationState = "incoming_pending"
	RelationStateConnected       RelationState = "connected"
	RelationStateDeclined        RelationState = "declined"
)

// ViewKind identifies one of the four derived views the engine exposes.
type ViewKind string

const (
	ViewConnections     ViewKind = "connections"
	ViewInvitations     ViewKind = "invitations"
	ViewSent            ViewKind = "sent"
	ViewRecommendations ViewKind = "recommendation"
)

// AllViewKinds lists the views in refresh order.
var AllViewKinds = []ViewKind{ViewConnections, ViewInvitations, ViewSent, ViewRecommendations}

// ExpectedState returns the relation state a record must have to appear in
// the given view.
func (k ViewKind) ExpectedState() RelationState {
	switch k {
	case ViewConnections:
		return RelationStateConnected
	case ViewInvitations:
		return RelationStateIncomingPending
	case ViewSent:
		return RelationStateOutgoingPending
	default:
		return RelationStateNone
	}
}

// ActionKind tags an optimistic mutation that is in flight for a record.
type ActionKind string

const (
	ActionSending     ActionKind = "sending"
	ActionAccepting   ActionKind = "accepting"
	ActionRejecting   ActionKind = "rejecting"
	ActionWithdrawing ActionKind = "withdrawing"
	ActionRemoving    ActionKind = "removing"
)

// DisplayProfile holds the denormalized display fields for a counterparty.
// Depending on which fetch supplied the record, some fields may be empty.
type DisplayProfile struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Headline  string `json:"headline,omitempty"`
	Company   string `json:"company,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Complete reports whether the profile has enough data to be shown as a
// recommendation (non-empty name and a contact identifier).
func (p DisplayProfile) Complete() bool {
	return p.Name != "" && p.Email != ""
}

// Merge fills empty fields from another profile without overwriting
// populated ones. Different fetch sources supply different subsets.
func (p DisplayProfile) Merge(other DisplayProfile) DisplayProfile {
	if p.Name == "" {
		p.Name = other.Name
	}
	if p.AvatarURL == "" {
		p.AvatarURL = other.AvatarURL
	}
	if p.Headline == "" {
		p.Headline = other.Headline
	}
	if p.Company == "" {
		p.Company = other.Company
	}
	if p.Email == "" {
		p.Email = other.Email
	}
	return p
}

// RelationshipRecord is the single record kept per counterparty. At most one
// record exists for a counterparty at any time; the views are derived from
// the record's state.
type RelationshipRecord struct {
	CounterpartyID string         `json:"counterpartyId"`
	Profile        DisplayProfile `json:"profile"`
	State          RelationState  `json:"state"`
	OriginView     ViewKind       `json:"originView"`

	// RequestID identifies the pending request to act on (accept, reject,
	// withdraw). Empty for records with no pending action path.
	RequestID      string `json:"requestId,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`

	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`

	// InFlight is non-empty while an optimistic mutation is unsettled.
	InFlight ActionKind `json:"inFlight,omitempty"`
}

// Settled reports whether no optimistic action is pending on the record.
func (r *RelationshipRecord) Settled() bool {
	return r.InFlight == ""
}

// Clone returns a copy safe to hand out to readers.
func (r *RelationshipRecord) Clone() *RelationshipRecord {
	c := *r
	return &c
}
