package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"billease/pos/internal/domain"
	"billease/pos/internal/remote"
	"billease/pos/internal/service"
	"billease/pos/internal/session"
	"billease/pos/internal/store"
)

// LoginFlow authenticates against the remote authority. The http layer
// falls back to the locally stored credential when the authority is
// unreachable.
type LoginFlow interface {
	Login(ctx context.Context, username, password string) (domain.LoginResponse, error)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		token := strings.TrimSpace(authorization[len("Bearer "):])

		sess, ok := a.sessions.Current()
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(sess.Token)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.New("invalid or stale token"))
			return
		}
		// Offline sessions carry a locally minted opaque token with no
		// expiry; the authority re-checks the real one on reconnect.
		if !sess.Offline && session.TokenExpired(sess.Token, time.Now()) {
			writeError(w, http.StatusUnauthorized, errors.New("session expired"))
			return
		}

		if len(roles) > 0 && !isRoleAllowed(sess.User.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), sess.User)))
	}
}

func isRoleAllowed(role domain.Role, allowed []domain.Role) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.login.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		sess := session.Session{Token: resp.Token, User: resp.User}
		if err := a.sessions.Set(r.Context(), sess); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		a.bindLoginShop(resp.User)
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, remote.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, remote.ErrUnavailable):
		a.handleOfflineLogin(w, r, req)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

// handleOfflineLogin verifies against the locally stored bcrypt hash and
// mints an opaque session token valid only against this process.
func (a *API) handleOfflineLogin(w http.ResponseWriter, r *http.Request, req domain.LoginRequest) {
	user, err := a.service.VerifyLocalPassword(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
			return
		}
		writeError(w, statusFromError(err), err)
		return
	}

	sess := session.Session{Token: newLocalToken(), User: user, Offline: true}
	if err := a.sessions.Set(r.Context(), sess); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.bindLoginShop(user)
	writeJSON(w, http.StatusOK, domain.LoginResponse{
		Token:   sess.Token,
		User:    user,
		Offline: true,
	})
}

// bindLoginShop scopes mutations to the user's assigned shop. Admins have
// no assignment and pick a shop explicitly via /api/shops/select.
func (a *API) bindLoginShop(user domain.User) {
	if user.ShopID != 0 {
		a.service.BindShop(user.ShopID)
	} else if user.Role != domain.RoleAdmin {
		a.service.BindShop(0)
	}
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.sessions.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.service.BindShop(0)
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

func newLocalToken() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "local-" + strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return "local-" + hex.EncodeToString(buf)
}
