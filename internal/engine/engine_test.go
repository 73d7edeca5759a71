package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"pronet-go/internal/auth"
	"pronet-go/internal/config"
	"pronet-go/internal/remote"
	"pronet-go/internal/repository"
)

// fakeDirectoryClient is an in-memory stand-in for the directory API.
// Connections pages are keyed by search query so tests can model
// server-side filtering; a per-query block channel lets a test hold a
// response in flight.
type fakeDirectoryClient struct {
	mu sync.Mutex

	connections      map[string]*remote.ConnectionsPage
	connectionsErr   error
	blockConnections map[string]chan struct{}
	connectionCalls  int

	invitations    []remote.Notification
	invitationsErr error

	sent    []remote.SentRequest
	sentErr error

	recommendations    []remote.RemoteUser
	recommendationsErr error

	searchResults []remote.RemoteUser
	searchErr     error
	searchCalls   int

	sendErr     error
	acceptErr   error
	rejectErr   error
	withdrawErr error
	removeErr   error
}

func newFakeClient() *fakeDirectoryClient {
	return &fakeDirectoryClient{
		connections:      make(map[string]*remote.ConnectionsPage),
		blockConnections: make(map[string]chan struct{}),
	}
}

func (f *fakeDirectoryClient) setConnections(query string, users ...remote.RemoteUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connections[query] = &remote.ConnectionsPage{
		Connections: users,
		Total:       len(users),
		Page:        1,
		TotalPages:  1,
	}
}

func (f *fakeDirectoryClient) ListConnections(ctx context.Context, page, limit int, search string) (*remote.ConnectionsPage, error) {
	f.mu.Lock()
	block := f.blockConnections[search]
	err := f.connectionsErr
	f.connectionCalls++
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if page, ok := f.connections[search]; ok {
		return page, nil
	}
	return &remote.ConnectionsPage{Page: 1, TotalPages: 1}, nil
}

func (f *fakeDirectoryClient) ListInvitations(ctx context.Context) ([]remote.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invitations, f.invitationsErr
}

func (f *fakeDirectoryClient) ListSentRequests(ctx context.Context) ([]remote.SentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent, f.sentErr
}

func (f *fakeDirectoryClient) ListRecommendations(ctx context.Context, page, limit int) ([]remote.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recommendations, f.recommendationsErr
}

func (f *fakeDirectoryClient) SearchUsersGlobally(ctx context.Context, query string, limit, offset int) ([]remote.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	return f.searchResults, f.searchErr
}

func (f *fakeDirectoryClient) SendConnectionRequest(ctx context.Context, counterpartyID string) (*remote.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &remote.ActionResult{Success: true}, nil
}

func (f *fakeDirectoryClient) AcceptConnectionRequest(ctx context.Context, counterpartyID string) (*remote.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	return &remote.ActionResult{Success: true}, nil
}

func (f *fakeDirectoryClient) RejectConnectionRequest(ctx context.Context, counterpartyID string) (*remote.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectErr != nil {
		return nil, f.rejectErr
	}
	return &remote.ActionResult{Success: true}, nil
}

func (f *fakeDirectoryClient) WithdrawConnectionRequest(ctx context.Context, counterpartyID string) (*remote.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.withdrawErr != nil {
		return nil, f.withdrawErr
	}
	return &remote.ActionResult{Success: true}, nil
}

func (f *fakeDirectoryClient) RemoveConnection(ctx context.Context, counterpartyID string) (*remote.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return nil, f.removeErr
	}
	return &remote.ActionResult{Success: true}, nil
}

func testSession(t *testing.T) *auth.Session {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "me",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return auth.NewSession(signed)
}

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		CurrentUserID:           "me",
		SettleDelay:             time.Millisecond,
		DebounceWindow:          5 * time.Millisecond,
		ConnectionsPageSize:     20,
		RecommendationsPageSize: 10,
		GlobalSearchLimit:       25,
	}
}

// newTestEngine starts an engine with a running task loop and short timing
// windows.
func newTestEngine(t *testing.T, client remote.DirectoryClient) *Engine {
	t.Helper()
	return newTestEngineCfg(t, client, testConfig())
}

func newTestEngineCfg(t *testing.T, client remote.DirectoryClient, cfg config.EngineConfig) *Engine {
	t.Helper()
	repo := repository.NewMemoryRelationshipRepository()
	eng := New(cfg, repo, client, testSession(t), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()
	t.Cleanup(cancel)
	return eng
}

// drain waits for all previously posted tasks to execute.
func (e *Engine) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, e.call(func() {}))
}

func viewIDs(v View) []string {
	ids := make([]string, 0, len(v.Records))
	for _, rec := range v.Records {
		ids = append(ids, rec.CounterpartyID)
	}
	return ids
}

func user(id, name, email string) remote.RemoteUser {
	return remote.RemoteUser{ID: id, Name: name, Email: email}
}
