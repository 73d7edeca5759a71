package apiserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pronet-go/internal/auth"
	"pronet-go/internal/config"
	"pronet-go/internal/engine"
	"pronet-go/internal/models"
	"pronet-go/internal/remote"
	"pronet-go/internal/repository"
)

// stubDirectoryClient answers every call successfully, honoring context
// cancellation the way a real HTTP client would.
type stubDirectoryClient struct {
	connections []remote.RemoteUser
	sendDelay   time.Duration
}

func (s *stubDirectoryClient) ListConnections(ctx context.Context, page, limit int, search string) (*remote.ConnectionsPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &remote.ConnectionsPage{
		Connections: s.connections,
		Total:       len(s.connections),
		Page:        1,
		TotalPages:  1,
	}, nil
}

func (s *stubDirectoryClient) ListInvitations(ctx context.Context) ([]remote.Notification, error) {
	return nil, ctx.Err()
}

func (s *stubDirectoryClient) ListSentRequests(ctx context.Context) ([]remote.SentRequest, error) {
	return nil, ctx.Err()
}

func (s *stubDirectoryClient) ListRecommendations(ctx context.Context, page, limit int) ([]remote.RemoteUser, error) {
	return nil, ctx.Err()
}

func (s *stubDirectoryClient) SearchUsersGlobally(ctx context.Context, query string, limit, offset int) ([]remote.RemoteUser, error) {
	return nil, ctx.Err()
}

func (s *stubDirectoryClient) action(ctx context.Context, delay time.Duration) (*remote.ActionResult, error) {
	select {
	case <-time.After(delay):
		return &remote.ActionResult{Success: true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *stubDirectoryClient) SendConnectionRequest(ctx context.Context, counterpartyID string) (*remote.ActionResult, error) {
	return s.action(ctx, s.sendDelay)
}

func (s *stubDirectoryClient) AcceptConnectionRequest(ctx context.Context, counterpartyID string) (*remote.ActionResult, error) {
	return s.action(ctx, 0)
}

func (s *stubDirectoryClient) RejectConnectionRequest(ctx context.Context, counterpartyID string) (*remote.ActionResult, error) {
	return s.action(ctx, 0)
}

func (s *stubDirectoryClient) WithdrawConnectionRequest(ctx context.Context, counterpartyID string) (*remote.ActionResult, error) {
	return s.action(ctx, 0)
}

func (s *stubDirectoryClient) RemoveConnection(ctx context.Context, counterpartyID string) (*remote.ActionResult, error) {
	return s.action(ctx, 0)
}

func newHandlerFixture(t *testing.T, client remote.DirectoryClient) (*EngineHandler, repository.RelationshipRepository) {
	t.Helper()
	cfg := config.EngineConfig{
		CurrentUserID:           "me",
		SettleDelay:             time.Millisecond,
		DebounceWindow:          time.Millisecond,
		ConnectionsPageSize:     20,
		RecommendationsPageSize: 10,
		GlobalSearchLimit:       25,
	}
	repo := repository.NewMemoryRelationshipRepository()
	eng := engine.New(cfg, repo, client, auth.NewSession(""), engine.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()
	t.Cleanup(cancel)
	return NewEngineHandler(eng), repo
}

func TestDispatchCommandSurvivesRequestCancellation(t *testing.T) {
	// The handler writes 202 and returns, which cancels the request
	// context; the command's remote call and settle must not be aborted by
	// that.
	client := &stubDirectoryClient{sendDelay: 30 * time.Millisecond}
	h, repo := newHandlerFixture(t, client)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	body := strings.NewReader(`{"command":"send","counterpartyId":"u3"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", body).WithContext(reqCtx)
	w := httptest.NewRecorder()

	h.DispatchCommandHandler(w, req)
	cancelReq()
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		rec, ok := repo.Get("u3")
		return ok && rec.Settled() && rec.State == models.RelationStateOutgoingPending
	}, time.Second, 5*time.Millisecond, "the command settles despite the dead request context")
}

func TestRefreshViewSurvivesRequestCancellation(t *testing.T) {
	client := &stubDirectoryClient{connections: []remote.RemoteUser{
		{ID: "u1", Name: "Alice", Email: "a@x.com"},
	}}
	h, repo := newHandlerFixture(t, client)

	r := mux.NewRouter()
	r.HandleFunc("/views/{kind}/refresh", h.RefreshViewHandler).Methods(http.MethodPost)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/views/connections/refresh", nil).WithContext(reqCtx)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	cancelReq()
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		rec, ok := repo.Get("u1")
		return ok && rec.State == models.RelationStateConnected
	}, time.Second, 5*time.Millisecond)
}

func TestDispatchCommandRejectsBadInput(t *testing.T) {
	h, _ := newHandlerFixture(t, &stubDirectoryClient{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands",
		strings.NewReader(`{"command":"poke","counterpartyId":"u1"}`))
	w := httptest.NewRecorder()
	h.DispatchCommandHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/commands",
		strings.NewReader(`{"command":"send"}`))
	w = httptest.NewRecorder()
	h.DispatchCommandHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSMiddlewareCredentialsGating(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	w := httptest.NewRecorder()
	NewCORSMiddleware(cfg)(inner).ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))

	cfg.AllowCredentials = true
	w = httptest.NewRecorder()
	NewCORSMiddleware(cfg)(inner).ServeHTTP(w, req)
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
