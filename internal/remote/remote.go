// Package remote talks to the central authority. Every call maps onto one
// endpoint of the upstream API and returns domain types; transport and
// decoding failures come back wrapped in ErrUnavailable so callers can
// treat them uniformly as "the authority is unreachable".
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"billease/pos/internal/domain"
	"billease/pos/internal/outbox"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("session rejected by authority")
	ErrUnavailable        = errors.New("authority unreachable")
)

// PushRequest carries the outbox batch. BatchID lets the authority detect a
// retransmit of a batch whose acknowledgment was lost.
type PushRequest struct {
	BatchID string         `json:"batch_id"`
	ShopID  int64          `json:"shop_id,omitempty"`
	Events  []outbox.Entry `json:"events"`
}

type PushResponse struct {
	Accepted int `json:"accepted"`
}

// Snapshot is the authority's incremental update payload: every record
// changed at or after the requested watermark, plus the server clock to use
// as the next watermark.
type Snapshot struct {
	Products   []domain.Product  `json:"products"`
	Sales      []domain.Sale     `json:"sales"`
	Customers  []domain.Customer `json:"customers"`
	Shops      []domain.Shop     `json:"shops"`
	Users      []domain.User     `json:"users"`
	ServerTime time.Time         `json:"server_time"`
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a token and the authenticated user. A 401
// surfaces as ErrInvalidCredentials; the token is retained for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (domain.LoginResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var out domain.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", body, &out); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// Ping is the connectivity probe. Any HTTP response at all counts as
// reachable, including an auth rejection.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (c *Client) GetShops(ctx context.Context) ([]domain.Shop, error) {
	var out []domain.Shop
	return out, c.do(ctx, http.MethodGet, "/api/shops", nil, &out)
}

func (c *Client) GetUsers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	return out, c.do(ctx, http.MethodGet, "/api/users", nil, &out)
}

func (c *Client) GetProducts(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	return out, c.do(ctx, http.MethodGet, "/api/products", nil, &out)
}

func (c *Client) GetSales(ctx context.Context) ([]domain.Sale, error) {
	var out []domain.Sale
	return out, c.do(ctx, http.MethodGet, "/api/sales", nil, &out)
}

func (c *Client) GetCustomers(ctx context.Context) ([]domain.Customer, error) {
	var out []domain.Customer
	return out, c.do(ctx, http.MethodGet, "/api/customers", nil, &out)
}

// SyncPush replays the outbox batch. The events arrive in enqueue order and
// the authority applies them idempotently by entity id, so a retransmitted
// batch cannot double-apply.
func (c *Client) SyncPush(ctx context.Context, shopID int64, events []outbox.Entry) (PushResponse, error) {
	req := PushRequest{
		BatchID: uuid.NewString(),
		ShopID:  shopID,
		Events:  events,
	}
	var out PushResponse
	if err := c.do(ctx, http.MethodPost, "/api/sync/push", req, &out); err != nil {
		return PushResponse{}, err
	}
	return out, nil
}

// SyncUpdates fetches records changed since the watermark. A zero since
// asks for everything.
func (c *Client) SyncUpdates(ctx context.Context, since time.Time) (Snapshot, error) {
	path := "/api/sync/updates"
	if !since.IsZero() {
		path += "?since=" + since.UTC().Format(time.RFC3339Nano)
	}
	var out Snapshot
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Snapshot{}, err
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return ErrUnauthorized
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d on %s", ErrUnavailable, resp.StatusCode, path)
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("authority rejected %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUnavailable, path, err)
	}
	return nil
}
