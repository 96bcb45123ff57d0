// Package sqlite implements store.Store on a single on-device SQLite file.
// WAL mode gives concurrent reads during writes; the connection pool is
// pinned to one writer so the busy handler never races itself.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"billease/pos/internal/domain"
	"billease/pos/internal/outbox"
	"billease/pos/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - initial collections + outbox + meta
const currentSchemaVersion = 1

type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path. Provisions collections on
// first use; any initialization failure wraps store.ErrStorageUnavailable.
// Safe to call repeatedly on the same path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", store.ErrStorageUnavailable, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connect %s: %v", store.ErrStorageUnavailable, path, err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY between our own transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	// Future migrations hook in here, keyed on user_version.
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return listRecords[domain.Product](ctx, s.db, "SELECT v FROM products ORDER BY k")
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getRecord[domain.Product](ctx, s.db, "SELECT v FROM products WHERE k = ?", id)
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return listRecords[domain.Customer](ctx, s.db, "SELECT v FROM customers ORDER BY k")
}

func (s *Store) GetCustomer(ctx context.Context, mobile string) (*domain.Customer, error) {
	return getRecord[domain.Customer](ctx, s.db, "SELECT v FROM customers WHERE k = ?", mobile)
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return listRecords[domain.Sale](ctx, s.db, "SELECT v FROM sales ORDER BY json_extract(v, '$.timestamp'), k")
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return getRecord[domain.Sale](ctx, s.db, "SELECT v FROM sales WHERE k = ?", id)
}

func (s *Store) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	return listRecords[domain.Expense](ctx, s.db, "SELECT v FROM expenses ORDER BY json_extract(v, '$.timestamp'), k")
}

func (s *Store) ListOrders(ctx context.Context, kind domain.OrderKind) ([]domain.Order, error) {
	if kind == "" {
		return listRecords[domain.Order](ctx, s.db, "SELECT v FROM orders ORDER BY json_extract(v, '$.order_date'), k")
	}
	return listRecords[domain.Order](ctx, s.db,
		"SELECT v FROM orders WHERE kind = ? ORDER BY json_extract(v, '$.order_date'), k", string(kind))
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getRecord[domain.Order](ctx, s.db, "SELECT v FROM orders WHERE k = ?", id)
}

func (s *Store) ListShops(ctx context.Context) ([]domain.Shop, error) {
	return listRecords[domain.Shop](ctx, s.db, "SELECT v FROM shops ORDER BY k")
}

func (s *Store) GetShop(ctx context.Context, id int64) (*domain.Shop, error) {
	return getRecord[domain.Shop](ctx, s.db, "SELECT v FROM shops WHERE k = ?", id)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	return listRecords[domain.User](ctx, s.db, "SELECT v FROM users ORDER BY k")
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.User, error) {
	return getRecord[domain.User](ctx, s.db, "SELECT v FROM users WHERE k = ?",
		strings.ToLower(strings.TrimSpace(username)))
}

func (s *Store) ListOutbox(ctx context.Context) ([]outbox.Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT seq, type, payload, created_at FROM outbox ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var entries []outbox.Entry
	for rows.Next() {
		var (
			e         outbox.Entry
			eventType string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&e.Seq, &eventType, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Type = outbox.EventType(eventType)
		e.Payload = json.RawMessage(payload)
		e.CreatedAt = store.ParseMetaTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CountOutbox(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outbox").Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}

func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT v FROM meta WHERE k = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return v, nil
}

// Write runs fn inside one SQL transaction. Nothing is observable before
// commit; any failure rolls the whole batch back and wraps
// store.ErrTransactionFailed.
func (s *Store) Write(ctx context.Context, fn func(tx store.WriteTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", store.ErrTransactionFailed, err)
	}
	defer sqlTx.Rollback() // No-op if committed.

	if err := fn(&writeTx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", store.ErrTransactionFailed, err)
	}
	return nil
}

type writeTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (w *writeTx) putJSON(table string, key any, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: marshal %s record: %v", store.ErrTransactionFailed, table, err)
	}
	_, err = w.tx.ExecContext(w.ctx,
		fmt.Sprintf("INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v", table),
		key, string(raw))
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", store.ErrTransactionFailed, table, err)
	}
	return nil
}

func (w *writeTx) clear(table string) error {
	if _, err := w.tx.ExecContext(w.ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("%w: clear %s: %v", store.ErrTransactionFailed, table, err)
	}
	return nil
}

func (w *writeTx) PutProduct(p domain.Product) error { return w.putJSON("products", p.ID, p) }

func (w *writeTx) BulkPutProducts(ps []domain.Product) error {
	for _, p := range ps {
		if err := w.PutProduct(p); err != nil {
			return err
		}
	}
	return nil
}

func (w *writeTx) ClearProducts() error { return w.clear("products") }

func (w *writeTx) PutCustomer(c domain.Customer) error { return w.putJSON("customers", c.Mobile, c) }

func (w *writeTx) BulkPutCustomers(cs []domain.Customer) error {
	for _, c := range cs {
		if err := w.PutCustomer(c); err != nil {
			return err
		}
	}
	return nil
}

func (w *writeTx) ClearCustomers() error { return w.clear("customers") }

func (w *writeTx) PutSale(sale domain.Sale) error { return w.putJSON("sales", sale.ID, sale) }

func (w *writeTx) BulkPutSales(ss []domain.Sale) error {
	for _, sale := range ss {
		if err := w.PutSale(sale); err != nil {
			return err
		}
	}
	return nil
}

func (w *writeTx) ClearSales() error { return w.clear("sales") }

func (w *writeTx) PutExpense(e domain.Expense) error { return w.putJSON("expenses", e.ID, e) }

func (w *writeTx) PutOrder(o domain.Order) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("%w: marshal order: %v", store.ErrTransactionFailed, err)
	}
	_, err = w.tx.ExecContext(w.ctx, `
		INSERT INTO orders (k, kind, v) VALUES (?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET kind = excluded.kind, v = excluded.v
	`, o.ID, string(o.Kind), string(raw))
	if err != nil {
		return fmt.Errorf("%w: put order: %v", store.ErrTransactionFailed, err)
	}
	return nil
}

func (w *writeTx) PutShop(sh domain.Shop) error { return w.putJSON("shops", sh.ID, sh) }

func (w *writeTx) BulkPutShops(ss []domain.Shop) error {
	for _, sh := range ss {
		if err := w.PutShop(sh); err != nil {
			return err
		}
	}
	return nil
}

func (w *writeTx) ClearShops() error { return w.clear("shops") }

func (w *writeTx) PutUser(u domain.User) error {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	return w.putJSON("users", u.Username, u)
}

func (w *writeTx) BulkPutUsers(us []domain.User) error {
	for _, u := range us {
		if err := w.PutUser(u); err != nil {
			return err
		}
	}
	return nil
}

func (w *writeTx) ClearUsers() error { return w.clear("users") }

func (w *writeTx) AppendOutbox(e outbox.Entry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := w.tx.ExecContext(w.ctx,
		"INSERT INTO outbox (type, payload, created_at) VALUES (?, ?, ?)",
		string(e.Type), string(e.Payload), store.FormatMetaTime(createdAt))
	if err != nil {
		return fmt.Errorf("%w: append outbox: %v", store.ErrTransactionFailed, err)
	}
	return nil
}

// ClearOutbox deletes delivered entries up to maxSeq. The AUTOINCREMENT
// sequence is not reset, so later entries keep strictly increasing keys
// across drains.
func (w *writeTx) ClearOutbox(maxSeq int64) error {
	_, err := w.tx.ExecContext(w.ctx, "DELETE FROM outbox WHERE seq <= ?", maxSeq)
	if err != nil {
		return fmt.Errorf("%w: clear outbox: %v", store.ErrTransactionFailed, err)
	}
	return nil
}

func (w *writeTx) PutMeta(key string, value string) error {
	_, err := w.tx.ExecContext(w.ctx,
		"INSERT INTO meta (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v",
		key, value)
	if err != nil {
		return fmt.Errorf("%w: put meta %s: %v", store.ErrTransactionFailed, key, err)
	}
	return nil
}

func listRecords[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var record T
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func getRecord[T any](ctx context.Context, db *sql.DB, query string, key any) (*T, error) {
	var raw string
	err := db.QueryRowContext(ctx, query, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	var record T
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &record, nil
}
