// Package auth guards the data entry surface behind a shared password.
// Logging in yields an explicit Session; there is no process-wide flag.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"pilotage/internal/cache"
	"pilotage/internal/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found or expired")
)

// Session is an authenticated access granted by Gate.Login.
type Session struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether s is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Gate issues and checks sessions. Sessions live in memory only, so a
// restart logs everybody out.
type Gate struct {
	password []byte
	ttl      time.Duration
	sessions *cache.LRUCache[Session]
	now      func() time.Time
	logger   *log.Logger
}

const maxSessions = 1024

func NewGate(password string, ttl time.Duration, logger *log.Logger) *Gate {
	return &Gate{
		password: []byte(password),
		ttl:      ttl,
		sessions: cache.NewLRUCache[Session](maxSessions, ttl),
		now:      time.Now,
		logger:   log.OrDiscard(logger).WithComponent(log.ComponentAuth),
	}
}

// Sessions exposes the backing cache so it can be swept periodically.
func (g *Gate) Sessions() cache.Cleaner {
	return g.sessions
}

// Login returns a fresh session when password matches.
func (g *Gate) Login(password string) (Session, error) {
	given := []byte(strings.TrimSpace(password))
	if len(g.password) == 0 || subtle.ConstantTimeCompare(given, g.password) != 1 {
		g.logger.Warn("Rejected login", log.FieldOperation, log.OpLogin)
		return Session{}, ErrInvalidCredentials
	}
	now := g.now()
	s := Session{
		Token:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	g.sessions.SetWithTTL(s.Token, s, g.ttl)
	g.logger.Info("Session opened", log.FieldOperation, log.OpLogin)
	return s, nil
}

// Validate returns the live session for token.
func (g *Gate) Validate(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrSessionNotFound
	}
	s, ok := g.sessions.Get(token)
	if !ok || s.Expired(g.now()) {
		if ok {
			g.sessions.Delete(token)
		}
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// Logout ends the session. Unknown tokens are ignored.
func (g *Gate) Logout(token string) {
	g.sessions.Delete(strings.TrimSpace(token))
	g.logger.Info("Session closed", log.FieldOperation, log.OpLogout)
}
