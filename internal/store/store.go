package store

import (
	"context"
	"errors"
	"time"

	"billease/pos/internal/domain"
	"billease/pos/internal/outbox"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrTransactionFailed  = errors.New("storage transaction failed")
)

// Store is the local durable record store: one collection per entity type
// plus the outbox queue and a small meta collection (sync watermark, saved
// session). Reads see the most recent committed write; there is no cache in
// front of this interface.
//
// All mutation goes through Write, which applies the whole function
// atomically: either every Put/BulkPut/Clear/AppendOutbox inside it is
// durable when Write returns nil, or none is and the error wraps
// ErrTransactionFailed.
type Store interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, mobile string) (*domain.Customer, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListExpenses(ctx context.Context) ([]domain.Expense, error)
	ListOrders(ctx context.Context, kind domain.OrderKind) ([]domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListShops(ctx context.Context) ([]domain.Shop, error)
	GetShop(ctx context.Context, id int64) (*domain.Shop, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, username string) (*domain.User, error)

	ListOutbox(ctx context.Context) ([]outbox.Entry, error)
	CountOutbox(ctx context.Context) (int, error)

	GetMeta(ctx context.Context, key string) (string, error)

	Write(ctx context.Context, fn func(tx WriteTx) error) error

	Close() error
}

// WriteTx collects writes inside one atomic transaction. Implementations
// must not make any write observable before the enclosing Write commits.
type WriteTx interface {
	PutProduct(p domain.Product) error
	BulkPutProducts(ps []domain.Product) error
	ClearProducts() error
	PutCustomer(c domain.Customer) error
	BulkPutCustomers(cs []domain.Customer) error
	ClearCustomers() error
	PutSale(s domain.Sale) error
	BulkPutSales(ss []domain.Sale) error
	ClearSales() error
	PutExpense(e domain.Expense) error
	PutOrder(o domain.Order) error
	PutShop(s domain.Shop) error
	BulkPutShops(ss []domain.Shop) error
	ClearShops() error
	PutUser(u domain.User) error
	BulkPutUsers(us []domain.User) error
	ClearUsers() error

	// AppendOutbox assigns the next sequence number at commit time;
	// enqueue order within the transaction is preserved.
	AppendOutbox(e outbox.Entry) error
	// ClearOutbox removes every entry up to and including maxSeq. Entries
	// enqueued after the pushed batch was read stay queued.
	ClearOutbox(maxSeq int64) error

	PutMeta(key string, value string) error
}

// Meta keys shared by the sync engine and session layer.
const (
	MetaLastSync = "last_sync"
	MetaSession  = "session"
)

// ParseMetaTime decodes a meta timestamp written with FormatMetaTime.
// A missing or empty value is the zero time, not an error.
func ParseMetaTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func FormatMetaTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
