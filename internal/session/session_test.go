package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"billease/pos/internal/domain"
	"billease/pos/internal/store/memory"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "cashier1"}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("authority-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestSessionSurvivesRestart(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	first := NewManager(repo)
	sess := Session{
		Token: signedToken(t, time.Now().Add(8*time.Hour)),
		User:  domain.User{Username: "cashier1", Role: domain.RoleCashier, ShopID: 1},
	}
	if err := first.Set(ctx, sess); err != nil {
		t.Fatalf("set session: %v", err)
	}

	// A fresh manager over the same store stands in for a process restart.
	second := NewManager(repo)
	restored, err := second.Load(ctx)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if restored.Token != sess.Token || restored.User.Username != "cashier1" {
		t.Fatalf("restored = %+v", restored)
	}
	if restored.SavedAt.IsZero() {
		t.Fatalf("expected SavedAt to be stamped on set")
	}
}

func TestClearedSessionLoadsAsNoSession(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	mgr := NewManager(repo)

	if _, err := mgr.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession on fresh store", err)
	}

	if err := mgr.Set(ctx, Session{Token: "tok", User: domain.User{Username: "u"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := mgr.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := mgr.Current(); ok {
		t.Fatalf("current session survived clear")
	}
	if _, err := NewManager(repo).Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession after clear", err)
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	if TokenExpired(signedToken(t, now.Add(time.Hour)), now) {
		t.Fatalf("future token reported expired")
	}
	if !TokenExpired(signedToken(t, now.Add(-time.Minute)), now) {
		t.Fatalf("past token reported valid")
	}
	if TokenExpired(signedToken(t, time.Time{}), now) {
		t.Fatalf("token without exp claim reported expired")
	}
	if !TokenExpired("not-a-jwt", now) {
		t.Fatalf("garbage token reported valid")
	}
}

func TestExpiredUsesCurrentSession(t *testing.T) {
	repo := memory.New()
	mgr := NewManager(repo)
	ctx := context.Background()

	if !mgr.Expired(time.Now()) {
		t.Fatalf("no session should read as expired")
	}

	err := mgr.Set(ctx, Session{Token: signedToken(t, time.Now().Add(time.Hour)), User: domain.User{Username: "u"}})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if mgr.Expired(time.Now()) {
		t.Fatalf("live session reported expired")
	}
}
