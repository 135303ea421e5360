/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package session issues and validates session tokens.
//
// A token is minted by a successful login and is valid until it expires or is evicted
// from the bounded token cache. Tokens are opaque random UUIDs.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/acronis/go-rpcgate/log"
	"github.com/acronis/go-rpcgate/lrucache"
)

var (
	// ErrInvalidToken is returned for a missing, unknown or expired token.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrBadCredentials is returned for an unknown user or a wrong password.
	ErrBadCredentials = errors.New("invalid username or password")
)

// Credentials verifies a username/password pair.
type Credentials interface {
	Verify(ctx context.Context, username, password string) error
}

// Session is what a token stands for.
type Session struct {
	Username string
	IssuedAt time.Time
}

// Manager logs users in and validates the tokens it has issued.
type Manager struct {
	creds  Credentials
	cache  *lrucache.LRUCache[string, Session]
	logger log.FieldLogger
	now    func() time.Time
}

// NewManager creates a new Manager. metrics may be nil.
func NewManager(cfg *Config, creds Credentials, metrics lrucache.MetricsCollector, logger log.FieldLogger) (*Manager, error) {
	cache, err := lrucache.New[string, Session](cfg.MaxEntries, metrics, lrucache.Options{DefaultTTL: cfg.TTL})
	if err != nil {
		return nil, errors.Wrap(err, "create session cache")
	}
	return &Manager{creds: creds, cache: cache, logger: logger, now: time.Now}, nil
}

// Login verifies the credentials and returns a new token.
func (m *Manager) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" {
		return "", errors.Wrap(ErrBadCredentials, "username is empty")
	}
	if err := m.creds.Verify(ctx, username, password); err != nil {
		return "", err
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "generate session token")
	}
	token := id.String()
	m.cache.Add(token, Session{Username: username, IssuedAt: m.now()})
	m.logger.Info("session opened", log.String("username", username))
	return token, nil
}

// Validate returns ErrInvalidToken unless the token was issued by this manager and is still alive.
func (m *Manager) Validate(_ context.Context, token string) error {
	if token == "" {
		return errors.Wrap(ErrInvalidToken, "token is missing")
	}
	if _, err := uuid.Parse(token); err != nil {
		return errors.Wrap(ErrInvalidToken, "malformed token")
	}
	if _, ok := m.cache.Get(token); !ok {
		return errors.Wrap(ErrInvalidToken, "unknown or expired token")
	}
	return nil
}

// Lookup returns the session behind a valid token.
func (m *Manager) Lookup(token string) (Session, bool) {
	return m.cache.Get(token)
}

// Logout invalidates the token. It reports whether the token was known.
func (m *Manager) Logout(token string) bool {
	return m.cache.Remove(token)
}

// Sweep drops expired tokens. It is run periodically by a service.PeriodicWorker.
func (m *Manager) Sweep(_ context.Context) error {
	if n := m.cache.SweepExpired(); n > 0 {
		m.logger.Debug("expired sessions swept", log.Int("count", n))
	}
	return nil
}
