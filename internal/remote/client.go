package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pronet-go/internal/auth"
	"pronet-go/internal/config"
)

var (
	ErrUnauthorized = errors.New("directory API rejected the session")
	ErrRemote       = errors.New("directory API call failed")
)

// DirectoryClient is the engine's view of the surrounding application's
// backend. All calls are simple request/response; the engine treats them as
// best-effort external collaborators.
type DirectoryClient interface {
	ListConnections(ctx context.Context, page, limit int, search string) (*ConnectionsPage, error)
	ListInvitations(ctx context.Context) ([]Notification, error)
	ListSentRequests(ctx context.Context) ([]SentRequest, error)
	ListRecommendations(ctx context.Context, page, limit int) ([]RemoteUser, error)
	SearchUsersGlobally(ctx context.Context, query string, limit, offset int) ([]RemoteUser, error)

	SendConnectionRequest(ctx context.Context, counterpartyID string) (*ActionResult, error)
	AcceptConnectionRequest(ctx context.Context, counterpartyID string) (*ActionResult, error)
	RejectConnectionRequest(ctx context.Context, counterpartyID string) (*ActionResult, error)
	WithdrawConnectionRequest(ctx context.Context, counterpartyID string) (*ActionResult, error)
	RemoveConnection(ctx context.Context, counterpartyID string) (*ActionResult, error)
}

type httpDirectoryClient struct {
	baseURL string
	http    *http.Client
	session *auth.Session
}

// NewHTTPDirectoryClient creates a DirectoryClient speaking JSON over HTTP
// to the configured backend, authenticating with the session's bearer token.
func NewHTTPDirectoryClient(cfg config.RemoteConfig, session *auth.Session) DirectoryClient {
	return &httpDirectoryClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		session: session,
	}
}

func (c *httpDirectoryClient) ListConnections(ctx context.Context, page, limit int, search string) (*ConnectionsPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if search != "" {
		q.Set("search", search)
	}
	var out ConnectionsPage
	if err := c.doJSON(ctx, http.MethodGet, "/connections?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpDirectoryClient) ListInvitations(ctx context.Context) ([]Notification, error) {
	q := url.Values{}
	q.Set("type", NotificationTypeConnectRequest)
	q.Set("status", StatusPending)
	var out []Notification
	if err := c.doJSON(ctx, http.MethodGet, "/notifications?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpDirectoryClient) ListSentRequests(ctx context.Context) ([]SentRequest, error) {
	var out []SentRequest
	if err := c.doJSON(ctx, http.MethodGet, "/connections/requests/sent", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpDirectoryClient) ListRecommendations(ctx context.Context, page, limit int) ([]RemoteUser, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out []RemoteUser
	if err := c.doJSON(ctx, http.MethodGet, "/users/recommendations?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpDirectoryClient) SearchUsersGlobally(ctx context.Context, query string, limit, offset int) ([]RemoteUser, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var out []RemoteUser
	if err := c.doJSON(ctx, http.MethodGet, "/users/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *httpDirectoryClient) SendConnectionRequest(ctx context.Context, counterpartyID string) (*ActionResult, error) {
	return c.action(ctx, http.MethodPost, "/connections/requests", map[string]string{"recipientId": counterpartyID})
}

func (c *httpDirectoryClient) AcceptConnectionRequest(ctx context.Context, counterpartyID string) (*ActionResult, error) {
	return c.action(ctx, http.MethodPost, "/connections/requests/"+url.PathEscape(counterpartyID)+"/accept", nil)
}

func (c *httpDirectoryClient) RejectConnectionRequest(ctx context.Context, counterpartyID string) (*ActionResult, error) {
	return c.action(ctx, http.MethodPost, "/connections/requests/"+url.PathEscape(counterpartyID)+"/reject", nil)
}

func (c *httpDirectoryClient) WithdrawConnectionRequest(ctx context.Context, counterpartyID string) (*ActionResult, error) {
	return c.action(ctx, http.MethodDelete, "/connections/requests/"+url.PathEscape(counterpartyID), nil)
}

func (c *httpDirectoryClient) RemoveConnection(ctx context.Context, counterpartyID string) (*ActionResult, error) {
	return c.action(ctx, http.MethodDelete, "/connections/"+url.PathEscape(counterpartyID), nil)
}

func (c *httpDirectoryClient) action(ctx context.Context, method, path string, body interface{}) (*ActionResult, error) {
	// The success flag is optional in action responses; a 2xx with the flag
	// omitted is a success.
	var payload struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, method, path, body, &payload); err != nil {
		return nil, err
	}
	out := ActionResult{Success: true, Message: payload.Message}
	if payload.Success != nil {
		out.Success = *payload.Success
	}
	return &out, nil
}

func (c *httpDirectoryClient) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body for %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.session.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRemote, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s returned %d", ErrUnauthorized, method, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg := readErrorMessage(resp.Body)
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrRemote, method, path, resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrRemote, path, err)
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err != nil {
		return "unreadable error body"
	}
	if payload.Message != "" {
		return payload.Message
	}
	if payload.Error != "" {
		return payload.Error
	}
	return "no error message"
}
