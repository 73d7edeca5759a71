package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSession = errors.New("no valid session token")

// Session holds the bearer token the engine presents to the directory API.
// Token issuance and signature verification belong to the server; the engine
// only inspects the expiry claim so it can suppress calls that are certain
// to fail with an auth error (global search in particular).
type Session struct {
	mu    sync.RWMutex
	token string
}

// NewSession creates a session seeded with the given token. An empty token
// is allowed; the session is simply not valid until SetToken is called.
func NewSession(token string) *Session {
	return &Session{token: token}
}

// SetToken replaces the current bearer token.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Token returns the current bearer token, or ErrNoSession when the token is
// missing or expired.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", ErrNoSession
	}
	if err := checkExpiry(token); err != nil {
		return "", err
	}
	return token, nil
}

// Valid reports whether a usable token is present.
func (s *Session) Valid() bool {
	_, err := s.Token()
	return err == nil
}

// checkExpiry parses the token without verifying its signature and rejects
// it when the exp claim has passed. Signature verification is the server's
// job; an unverifiable-but-unexpired token is still worth sending.
func checkExpiry(token string) error {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: malformed token: %v", ErrNoSession, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("%w: unreadable exp claim: %v", ErrNoSession, err)
	}
	if exp != nil && exp.Before(time.Now()) {
		return fmt.Errorf("%w: token expired at %s", ErrNoSession, exp.Time.Format(time.RFC3339))
	}
	return nil
}
