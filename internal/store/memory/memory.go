// Package memory implements store.Store on plain maps. It backs tests and
// the no-storage fallback mode; transactions are copy-on-commit so a failed
// Write leaves nothing behind, matching the durable implementation.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"billease/pos/internal/domain"
	"billease/pos/internal/outbox"
	"billease/pos/internal/store"
)

type state struct {
	products  map[int64]domain.Product
	customers map[string]domain.Customer
	sales     map[string]domain.Sale
	expenses  map[string]domain.Expense
	orders    map[string]domain.Order
	shops     map[int64]domain.Shop
	users     map[string]domain.User
	outbox    []outbox.Entry
	nextSeq   int64
	meta      map[string]string
}

type Store struct {
	mu sync.RWMutex
	st state
}

func New() *Store {
	return &Store{st: state{
		products:  make(map[int64]domain.Product),
		customers: make(map[string]domain.Customer),
		sales:     make(map[string]domain.Sale),
		expenses:  make(map[string]domain.Expense),
		orders:    make(map[string]domain.Order),
		shops:     make(map[int64]domain.Shop),
		users:     make(map[string]domain.User),
		nextSeq:   1,
		meta:      make(map[string]string),
	}}
}

func (s *Store) Close() error { return nil }

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.st.products))
	for _, p := range s.st.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpInt64(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyP := cloneProduct(p)
	return &copyP, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.st.customers))
	for _, c := range s.st.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Mobile, b.Mobile)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, mobile string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.st.customers[mobile]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyC := c
	return &copyC, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.st.sales))
	for _, sale := range s.st.sales {
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.Timestamp.Equal(b.Timestamp) {
			return cmpString(a.ID, b.ID)
		}
		if a.Timestamp.Before(b.Timestamp) {
			return -1
		}
		return 1
	})
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.st.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) ListExpenses(_ context.Context) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.st.expenses))
	for _, e := range s.st.expenses {
		expenses = append(expenses, e)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if a.Timestamp.Equal(b.Timestamp) {
			return cmpString(a.ID, b.ID)
		}
		if a.Timestamp.Before(b.Timestamp) {
			return -1
		}
		return 1
	})
	return expenses, nil
}

func (s *Store) ListOrders(_ context.Context, kind domain.OrderKind) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		if kind != "" && o.Kind != kind {
			continue
		}
		orders = append(orders, cloneOrder(o))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if a.OrderDate.Equal(b.OrderDate) {
			return cmpString(a.ID, b.ID)
		}
		if a.OrderDate.Before(b.OrderDate) {
			return -1
		}
		return 1
	})
	return orders, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyO := cloneOrder(o)
	return &copyO, nil
}

func (s *Store) ListShops(_ context.Context) ([]domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shops := make([]domain.Shop, 0, len(s.st.shops))
	for _, sh := range s.st.shops {
		shops = append(shops, sh)
	}
	slices.SortFunc(shops, func(a, b domain.Shop) int {
		return cmpInt64(a.ID, b.ID)
	})
	return shops, nil
}

func (s *Store) GetShop(_ context.Context, id int64) (*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.st.shops[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copySh := sh
	return &copySh, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.st.users))
	for _, u := range s.st.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.st.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyU := u
	return &copyU, nil
}

func (s *Store) ListOutbox(_ context.Context) ([]outbox.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]outbox.Entry, len(s.st.outbox))
	copy(entries, s.st.outbox)
	return entries, nil
}

func (s *Store) CountOutbox(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.outbox), nil
}

func (s *Store) GetMeta(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.st.meta[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

// Write stages every mutation against a deep copy of the current state and
// swaps it in only if fn succeeds. Outbox sequence numbers are assigned at
// append, in enqueue order.
func (s *Store) Write(_ context.Context, fn func(tx store.WriteTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := cloneState(s.st)
	if err := fn(&writeTx{st: &staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

type writeTx struct {
	st *state
}

func (tx *writeTx) PutProduct(p domain.Product) error {
	tx.st.products[p.ID] = cloneProduct(p)
	return nil
}

func (tx *writeTx) BulkPutProducts(ps []domain.Product) error {
	for _, p := range ps {
		tx.st.products[p.ID] = cloneProduct(p)
	}
	return nil
}

func (tx *writeTx) ClearProducts() error {
	tx.st.products = make(map[int64]domain.Product)
	return nil
}

func (tx *writeTx) PutCustomer(c domain.Customer) error {
	tx.st.customers[c.Mobile] = c
	return nil
}

func (tx *writeTx) BulkPutCustomers(cs []domain.Customer) error {
	for _, c := range cs {
		tx.st.customers[c.Mobile] = c
	}
	return nil
}

func (tx *writeTx) ClearCustomers() error {
	tx.st.customers = make(map[string]domain.Customer)
	return nil
}

func (tx *writeTx) PutSale(sale domain.Sale) error {
	tx.st.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (tx *writeTx) BulkPutSales(ss []domain.Sale) error {
	for _, sale := range ss {
		tx.st.sales[sale.ID] = cloneSale(sale)
	}
	return nil
}

func (tx *writeTx) ClearSales() error {
	tx.st.sales = make(map[string]domain.Sale)
	return nil
}

func (tx *writeTx) PutExpense(e domain.Expense) error {
	tx.st.expenses[e.ID] = e
	return nil
}

func (tx *writeTx) PutOrder(o domain.Order) error {
	tx.st.orders[o.ID] = cloneOrder(o)
	return nil
}

func (tx *writeTx) PutShop(sh domain.Shop) error {
	tx.st.shops[sh.ID] = sh
	return nil
}

func (tx *writeTx) BulkPutShops(ss []domain.Shop) error {
	for _, sh := range ss {
		tx.st.shops[sh.ID] = sh
	}
	return nil
}

func (tx *writeTx) ClearShops() error {
	tx.st.shops = make(map[int64]domain.Shop)
	return nil
}

func (tx *writeTx) PutUser(u domain.User) error {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	tx.st.users[u.Username] = u
	return nil
}

func (tx *writeTx) BulkPutUsers(us []domain.User) error {
	for _, u := range us {
		if err := tx.PutUser(u); err != nil {
			return err
		}
	}
	return nil
}

func (tx *writeTx) ClearUsers() error {
	tx.st.users = make(map[string]domain.User)
	return nil
}

func (tx *writeTx) AppendOutbox(e outbox.Entry) error {
	e.Seq = tx.st.nextSeq
	tx.st.nextSeq++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	tx.st.outbox = append(tx.st.outbox, e)
	return nil
}

func (tx *writeTx) ClearOutbox(maxSeq int64) error {
	kept := tx.st.outbox[:0]
	for _, e := range tx.st.outbox {
		if e.Seq > maxSeq {
			kept = append(kept, e)
		}
	}
	tx.st.outbox = kept
	return nil
}

func (tx *writeTx) PutMeta(key string, value string) error {
	tx.st.meta[key] = value
	return nil
}

func cloneState(src state) state {
	dup := state{
		products:  make(map[int64]domain.Product, len(src.products)),
		customers: make(map[string]domain.Customer, len(src.customers)),
		sales:     make(map[string]domain.Sale, len(src.sales)),
		expenses:  make(map[string]domain.Expense, len(src.expenses)),
		orders:    make(map[string]domain.Order, len(src.orders)),
		shops:     make(map[int64]domain.Shop, len(src.shops)),
		users:     make(map[string]domain.User, len(src.users)),
		outbox:    make([]outbox.Entry, len(src.outbox)),
		nextSeq:   src.nextSeq,
		meta:      make(map[string]string, len(src.meta)),
	}
	for id, p := range src.products {
		dup.products[id] = cloneProduct(p)
	}
	for mobile, c := range src.customers {
		dup.customers[mobile] = c
	}
	for id, sale := range src.sales {
		dup.sales[id] = cloneSale(sale)
	}
	for id, e := range src.expenses {
		dup.expenses[id] = e
	}
	for id, o := range src.orders {
		dup.orders[id] = cloneOrder(o)
	}
	for id, sh := range src.shops {
		dup.shops[id] = sh
	}
	for name, u := range src.users {
		dup.users[name] = u
	}
	copy(dup.outbox, src.outbox)
	for k, v := range src.meta {
		dup.meta[k] = v
	}
	return dup
}

func cloneProduct(p domain.Product) domain.Product { return p }

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	items := make([]domain.OrderItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func cmpInt64(a int64, b int64) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
