/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/atomic"

	"github.com/acronis/go-rpcgate/txn"
)

var errTestInvalidToken = errors.New("invalid session token")

type fakeTx struct {
	commits   *atomic.Int32
	rollbacks *atomic.Int32
	commitErr error
}

func (tx *fakeTx) Commit() error {
	tx.commits.Inc()
	return tx.commitErr
}

func (tx *fakeTx) Rollback() error {
	tx.rollbacks.Inc()
	return nil
}

// fakeDB opens fakeTx transactions and counts how they end.
type fakeDB struct {
	opened    *atomic.Int32
	commits   *atomic.Int32
	rollbacks *atomic.Int32
	beginErr  error
	commitErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{opened: atomic.NewInt32(0), commits: atomic.NewInt32(0), rollbacks: atomic.NewInt32(0)}
}

func (db *fakeDB) Begin(context.Context) (txn.Tx, error) {
	if db.beginErr != nil {
		return nil, db.beginErr
	}
	db.opened.Inc()
	return &fakeTx{commits: db.commits, rollbacks: db.rollbacks, commitErr: db.commitErr}, nil
}

type fakeSessions struct {
	mu     sync.Mutex
	tokens map[string]bool
	issued int
}

func newFakeSessions(validTokens ...string) *fakeSessions {
	s := &fakeSessions{tokens: map[string]bool{}}
	for _, token := range validTokens {
		s.tokens[token] = true
	}
	return s
}

func (s *fakeSessions) Login(_ context.Context, username, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if username != "admin" || password != "secret" {
		return "", errors.New("invalid username or password")
	}
	s.issued++
	token := "token-" + username
	s.tokens[token] = true
	return token, nil
}

func (s *fakeSessions) Validate(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tokens[token] {
		return errTestInvalidToken
	}
	return nil
}

// recordingProvider returns a fixed outcome and counts its invocations.
type recordingProvider struct {
	outcome Outcome
	calls   *atomic.Int32
	onCall  func(call *Call)
}

func newRecordingProvider(outcome Outcome, onCall func(call *Call)) *recordingProvider {
	return &recordingProvider{outcome: outcome, calls: atomic.NewInt32(0), onCall: onCall}
}

func (p *recordingProvider) Attempt(_ context.Context, call *Call) Outcome {
	p.calls.Inc()
	if p.onCall != nil {
		p.onCall(call)
	}
	return p.outcome
}

func envelopeWithToken(class, method, token string) *Envelope {
	params := NewPayload()
	params.Set(FieldSessionToken, token)
	return NewEnvelope(class, method, params)
}

func dbInit(db *fakeDB) InitFunc {
	return func(context.Context) (txn.Provider, error) { return db, nil }
}
