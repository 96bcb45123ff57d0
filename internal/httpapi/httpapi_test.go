package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"billease/pos/internal/domain"
	"billease/pos/internal/remote"
	"billease/pos/internal/service"
	"billease/pos/internal/session"
	"billease/pos/internal/store"
	"billease/pos/internal/store/memory"
)

type fakeLoginFlow struct {
	resp domain.LoginResponse
	err  error
}

func (f *fakeLoginFlow) Login(context.Context, string, string) (domain.LoginResponse, error) {
	return f.resp, f.err
}

type fakeEngine struct {
	nudged  int
	resyncs int
}

func (f *fakeEngine) Status(context.Context) domain.SyncStatusResponse {
	return domain.SyncStatusResponse{State: domain.SyncStateSynced}
}
func (f *fakeEngine) Nudge()                        { f.nudged++ }
func (f *fakeEngine) FullResync(context.Context) error { f.resyncs++; return nil }

func authorityToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "cashier1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(8 * time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("authority-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestAPI(t *testing.T, login LoginFlow) (*API, *fakeEngine, store.Store) {
	t.Helper()
	repo := memory.New()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	err = repo.Write(context.Background(), func(tx store.WriteTx) error {
		if err := tx.PutShop(domain.Shop{ID: 1, Name: "Main Street"}); err != nil {
			return err
		}
		if err := tx.PutProduct(domain.Product{ID: 1, ShopID: 1, NameEN: "Rice 1kg", Stock: 100}); err != nil {
			return err
		}
		return tx.PutUser(domain.User{
			Username:     "cashier1",
			Role:         domain.RoleCashier,
			ShopID:       1,
			PasswordHash: string(hash),
		})
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}

	svc := service.New(repo, nil, nil)
	engine := &fakeEngine{}
	api := New(svc, session.NewManager(repo), login, engine, "*")
	return api, engine, repo
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	api, _, _ := newTestAPI(t, &fakeLoginFlow{err: remote.ErrUnavailable})
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/products", "made-up-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for a stale token", rec.Code)
	}
}

func TestOnlineLoginStoresSessionAndBindsShop(t *testing.T) {
	token := authorityToken(t)
	flow := &fakeLoginFlow{resp: domain.LoginResponse{
		Token: token,
		User:  domain.User{Username: "cashier1", Role: domain.RoleCashier, ShopID: 1},
	}}
	api, _, _ := newTestAPI(t, flow)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/login", "", domain.LoginRequest{Username: "cashier1", Password: "secret123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body)
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Offline {
		t.Fatalf("online login flagged offline")
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/products", resp.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("products status = %d: %s", rec.Code, rec.Body)
	}
	if api.service.ShopID() != 1 {
		t.Fatalf("bound shop = %d, want the user's shop", api.service.ShopID())
	}
}

func TestOfflineLoginFallsBackToLocalCredential(t *testing.T) {
	api, _, _ := newTestAPI(t, &fakeLoginFlow{err: remote.ErrUnavailable})
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/login", "", domain.LoginRequest{Username: "cashier1", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/login", "", domain.LoginRequest{Username: "cashier1", Password: "secret123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("offline login status = %d: %s", rec.Code, rec.Body)
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if !resp.Offline {
		t.Fatalf("expected the offline flag on a fallback login")
	}
	if resp.Token == "" {
		t.Fatalf("expected a locally minted token")
	}
	if resp.User.PasswordHash != "" {
		t.Fatalf("password hash leaked in login response")
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/sales", resp.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sales status with offline token = %d", rec.Code)
	}
}

func TestRoleGatedRoutesRejectCashiers(t *testing.T) {
	api, _, _ := newTestAPI(t, &fakeLoginFlow{err: remote.ErrUnavailable})
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/login", "", domain.LoginRequest{Username: "cashier1", Password: "secret123"})
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/shops/select", resp.Token, map[string]any{"shop_id": 2})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for a cashier", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/sync/full", resp.Token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for a cashier resync", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/shops", resp.Token, map[string]any{"name": "Branch Two"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for cashier shop creation", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/users", resp.Token, map[string]any{"username": "x", "password": "y", "role": "cashier", "shop_id": 1})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for cashier user creation", rec.Code)
	}
}

func TestSaleFlowThroughAPI(t *testing.T) {
	api, engine, repo := newTestAPI(t, &fakeLoginFlow{err: remote.ErrUnavailable})
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/login", "", domain.LoginRequest{Username: "cashier1", Password: "secret123"})
	var login domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	sale := domain.Sale{
		Items: []domain.SaleItem{{ProductID: 1, Name: "Rice 1kg", Qty: 2, Price: 48}},
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/sales", login.Token, sale)
	if rec.Code != http.StatusCreated {
		t.Fatalf("finalize status = %d: %s", rec.Code, rec.Body)
	}

	product, err := repo.GetProduct(context.Background(), 1)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 98 {
		t.Fatalf("stock = %v, want 98 after the sale", product.Stock)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/sync/trigger", login.Token, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("trigger status = %d", rec.Code)
	}
	if engine.nudged == 0 {
		t.Fatalf("expected the trigger to nudge the engine")
	}
}

func TestInsufficientStockMapsToConflict(t *testing.T) {
	api, _, _ := newTestAPI(t, &fakeLoginFlow{err: remote.ErrUnavailable})
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/login", "", domain.LoginRequest{Username: "cashier1", Password: "secret123"})
	var login domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	order := domain.OrderCreateRequest{
		Kind:         domain.OrderKindSales,
		Counterparty: "Hotel Saravana",
		Items:        []domain.OrderItem{{ProductID: 1, Name: "Rice 1kg", Qty: 500, Price: 40}},
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/orders", login.Token, order)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order status = %d: %s", rec.Code, rec.Body)
	}
	var created domain.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode order: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/orders/"+created.ID+"/status", login.Token,
		map[string]any{"status": domain.OrderStatusFulfilled})
	if rec.Code != http.StatusConflict {
		t.Fatalf("fulfill status = %d, want 409", rec.Code)
	}
}
