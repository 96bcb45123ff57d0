// Package session keeps the authenticated session on the device so a
// restart while offline does not force a login against an unreachable
// authority.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"billease/pos/internal/domain"
	"billease/pos/internal/store"
)

var ErrNoSession = errors.New("no stored session")

type Session struct {
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
	SavedAt time.Time   `json:"saved_at"`
	Offline bool        `json:"offline,omitempty"`
}

type Manager struct {
	repo store.Store

	mu      sync.RWMutex
	current *Session
}

func NewManager(repo store.Store) *Manager {
	return &Manager{repo: repo}
}

// Load restores the persisted session at boot. ErrNoSession means the
// device has never logged in or was explicitly logged out.
func (m *Manager) Load(ctx context.Context) (Session, error) {
	raw, err := m.repo.GetMeta(ctx, store.MetaSession)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	if raw == "" {
		return Session{}, ErrNoSession
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return Session{}, fmt.Errorf("decode stored session: %w", err)
	}
	m.mu.Lock()
	m.current = &sess
	m.mu.Unlock()
	return sess, nil
}

func (m *Manager) Set(ctx context.Context, sess Session) error {
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	err = m.repo.Write(ctx, func(tx store.WriteTx) error {
		return tx.PutMeta(store.MetaSession, string(raw))
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = &sess
	m.mu.Unlock()
	return nil
}

func (m *Manager) Clear(ctx context.Context) error {
	err := m.repo.Write(ctx, func(tx store.WriteTx) error {
		return tx.PutMeta(store.MetaSession, "")
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	return nil
}

func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.Token == "" {
		return Session{}, false
	}
	return *m.current, true
}

// Expired reports whether the stored token's exp claim has passed. The
// device holds no signing secret, so the claim is read without verifying
// the signature; the authority re-verifies on every call anyway. A token
// that cannot be parsed counts as expired, a token without an exp claim
// never does.
func (m *Manager) Expired(now time.Time) bool {
	sess, ok := m.Current()
	if !ok {
		return true
	}
	return TokenExpired(sess.Token, now)
}

func TokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
