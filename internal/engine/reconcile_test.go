package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pronet-go/internal/models"
	"pronet-go/internal/remote"
)

func TestReconcileConnectionsThenRecommendations(t *testing.T) {
	client := newFakeClient()
	client.setConnections("", user("u1", "Alice", "a@x.com"))
	client.recommendations = []remote.RemoteUser{
		{ID: "u1"}, // already connected, and incomplete anyway
		user("u2", "Bob", "b@x.com"),
	}
	eng := newTestEngine(t, client)

	eng.RefreshView(models.ViewConnections)
	require.Eventually(t, func() bool {
		return len(eng.Connections().Records) == 1
	}, time.Second, 5*time.Millisecond)
	rec := eng.Connections().Records[0]
	assert.Equal(t, "u1", rec.CounterpartyID)
	assert.Equal(t, models.RelationStateConnected, rec.State)

	eng.RefreshView(models.ViewRecommendations)
	require.Eventually(t, func() bool {
		return len(eng.Recommendations().Records) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"u2"}, viewIDs(eng.Recommendations()))
}

func TestReconcileInvitationsDefensivePendingFilter(t *testing.T) {
	client := newFakeClient()
	now := time.Now()
	client.invitations = []remote.Notification{
		{ID: "n1", Type: remote.NotificationTypeConnectRequest, Status: remote.StatusPending, RequestID: "r1", Sender: user("u1", "Alice", "a@x.com"), CreatedAt: now},
		// The server was asked for pending only but returned these anyway.
		{ID: "n2", Type: remote.NotificationTypeConnectRequest, Status: "accepted", RequestID: "r2", Sender: user("u2", "Bob", "b@x.com"), CreatedAt: now},
		{ID: "n3", Type: "job_alert", Status: remote.StatusPending, RequestID: "r3", Sender: user("u3", "Eve", "e@x.com"), CreatedAt: now},
	}
	eng := newTestEngine(t, client)

	eng.RefreshView(models.ViewInvitations)
	require.Eventually(t, func() bool {
		return len(eng.Invitations().Records) > 0
	}, time.Second, 5*time.Millisecond)

	view := eng.Invitations()
	require.Equal(t, []string{"u1"}, viewIDs(view))
	assert.Equal(t, "r1", view.Records[0].RequestID)
	assert.Equal(t, "n1", view.Records[0].NotificationID)
	assert.Equal(t, models.RelationStateIncomingPending, view.Records[0].State)
}

func TestReconcileSentRequests_NestedStatusDisagreement(t *testing.T) {
	// The list endpoint is filtered by a top-level status parameter, but
	// the embedded payload status is authoritative: a withdrawn request
	// that the server still lists must not survive the merge.
	client := newFakeClient()
	now := time.Now()
	client.sent = []remote.SentRequest{
		{ID: "r1", Recipient: user("u1", "Alice", "a@x.com"), Payload: remote.RequestPayload{Status: remote.StatusPending}, CreatedAt: now},
		{ID: "r2", Recipient: user("u2", "Bob", "b@x.com"), Payload: remote.RequestPayload{Status: "withdrawn"}, CreatedAt: now},
	}
	eng := newTestEngine(t, client)

	eng.RefreshView(models.ViewSent)
	require.Eventually(t, func() bool {
		return len(eng.SentRequests().Records) > 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"u1"}, viewIDs(eng.SentRequests()))
	_, known := eng.repo.Get("u2")
	assert.False(t, known, "a request rejected by the payload filter never creates a record")
}

func TestReconcileDemotesPendingRecordsMissingFromSnapshot(t *testing.T) {
	client := newFakeClient()
	now := time.Now()
	client.invitations = []remote.Notification{
		{ID: "n1", Type: remote.NotificationTypeConnectRequest, Status: remote.StatusPending, RequestID: "r1", Sender: user("u1", "Alice", "a@x.com"), CreatedAt: now},
		{ID: "n2", Type: remote.NotificationTypeConnectRequest, Status: remote.StatusPending, RequestID: "r2", Sender: user("u2", "Bob", "b@x.com"), CreatedAt: now},
	}
	eng := newTestEngine(t, client)

	eng.RefreshView(models.ViewInvitations)
	require.Eventually(t, func() bool {
		return len(eng.Invitations().Records) == 2
	}, time.Second, 5*time.Millisecond)

	// u2's invitation was resolved elsewhere; the next snapshot omits it.
	client.mu.Lock()
	client.invitations = client.invitations[:1]
	client.mu.Unlock()

	eng.RefreshView(models.ViewInvitations)
	require.Eventually(t, func() bool {
		return len(eng.Invitations().Records) == 1
	}, time.Second, 5*time.Millisecond)

	// The record is kept, demoted, not deleted.
	rec, ok := eng.repo.Get("u2")
	require.True(t, ok)
	assert.Equal(t, models.RelationStateNone, rec.State)
	assert.Empty(t, rec.RequestID)
}

func TestFetchFailureKeepsPreviousDataAndFlagsView(t *testing.T) {
	client := newFakeClient()
	client.setConnections("", user("u1", "Alice", "a@x.com"))
	eng := newTestEngine(t, client)

	eng.RefreshView(models.ViewConnections)
	require.Eventually(t, func() bool {
		return len(eng.Connections().Records) == 1
	}, time.Second, 5*time.Millisecond)

	client.mu.Lock()
	client.connectionsErr = errors.New("backend down")
	client.mu.Unlock()

	eng.RefreshView(models.ViewConnections)
	require.Eventually(t, func() bool {
		return eng.ViewStatusOf(models.ViewConnections).LastError != ""
	}, time.Second, 5*time.Millisecond)

	view := eng.Connections()
	assert.Equal(t, []string{"u1"}, viewIDs(view), "stale data is kept for the failed refresh cycle")
	assert.Contains(t, view.Status.LastError, "backend down")

	// Other views are unaffected.
	assert.Empty(t, eng.ViewStatusOf(models.ViewInvitations).LastError)
}

func TestConnectionsFetchSupersedesPendingRecord(t *testing.T) {
	client := newFakeClient()
	now := time.Now()
	client.invitations = []remote.Notification{
		{ID: "n1", Type: remote.NotificationTypeConnectRequest, Status: remote.StatusPending, RequestID: "r1", Sender: user("u4", "Dana", "d@x.com"), CreatedAt: now},
	}
	eng := newTestEngine(t, client)

	eng.RefreshView(models.ViewInvitations)
	require.Eventually(t, func() bool {
		return len(eng.Invitations().Records) == 1
	}, time.Second, 5*time.Millisecond)

	// u4 accepted elsewhere: the event listener refetches invitations and
	// connections; afterwards u4 is connected and out of invitations.
	client.mu.Lock()
	client.invitations = nil
	client.mu.Unlock()
	client.setConnections("", user("u4", "Dana", "d@x.com"))

	eng.HandleEvent(remote.ConnectionEvent{Type: remote.EventRequestAccepted, CounterpartyID: "u4", DeliveryID: "d1"})

	require.Eventually(t, func() bool {
		rec, ok := eng.repo.Get("u4")
		return ok && rec.State == models.RelationStateConnected && len(eng.Invitations().Records) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRecommendationsSkipIncompleteAndKnownCounterparties(t *testing.T) {
	client := newFakeClient()
	now := time.Now()
	client.sent = []remote.SentRequest{
		{ID: "r1", Recipient: user("u1", "Alice", "a@x.com"), Payload: remote.RequestPayload{Status: remote.StatusPending}, CreatedAt: now},
	}
	client.recommendations = []remote.RemoteUser{
		user("me", "Self", "me@x.com"),  // current user
		user("u1", "Alice", "a@x.com"), // outgoing pending
		{ID: "u5", Name: "No Email"},   // incomplete profile
		user("u6", "Frank", "f@x.com"),
	}
	eng := newTestEngine(t, client)

	eng.RefreshView(models.ViewSent)
	require.Eventually(t, func() bool {
		return len(eng.SentRequests().Records) == 1
	}, time.Second, 5*time.Millisecond)

	eng.RefreshView(models.ViewRecommendations)
	require.Eventually(t, func() bool {
		return len(eng.Recommendations().Records) > 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"u6"}, viewIDs(eng.Recommendations()))
}
