// Package sync drains the outbox to the remote authority and folds the
// authority's updates back into the local store. One goroutine owns the
// whole loop, so cycles never overlap and the outbox is pushed strictly in
// enqueue order.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"billease/pos/internal/domain"
	"billease/pos/internal/outbox"
	"billease/pos/internal/remote"
	"billease/pos/internal/store"
)

// Authority is the slice of the remote API the engine drives.
type Authority interface {
	SyncPush(ctx context.Context, shopID int64, events []outbox.Entry) (remote.PushResponse, error)
	SyncUpdates(ctx context.Context, since time.Time) (remote.Snapshot, error)
	GetProducts(ctx context.Context) ([]domain.Product, error)
	GetSales(ctx context.Context) ([]domain.Sale, error)
	GetCustomers(ctx context.Context) ([]domain.Customer, error)
	GetShops(ctx context.Context) ([]domain.Shop, error)
	GetUsers(ctx context.Context) ([]domain.User, error)
}

// Connectivity is what the engine needs from the monitor.
type Connectivity interface {
	Online() bool
	Subscribe() <-chan bool
}

type Engine struct {
	repo      store.Store
	authority Authority
	monitor   Connectivity

	interval time.Duration
	timeout  time.Duration

	// shopID resolves the currently bound shop at push time.
	shopID func() int64

	nudge chan struct{}

	// onApply runs after remote updates have been folded into the store.
	onApply func()

	mu        sync.RWMutex
	state     string
	lastSync  time.Time
	lastError string
}

func NewEngine(repo store.Store, authority Authority, monitor Connectivity, shopID func() int64, interval, timeout time.Duration) *Engine {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Engine{
		repo:      repo,
		authority: authority,
		monitor:   monitor,
		interval:  interval,
		timeout:   timeout,
		shopID:    shopID,
		nudge:     make(chan struct{}, 1),
		state:     domain.SyncStateOffline,
	}
}

// OnApply registers a callback invoked after a pull or full resync has
// committed. Used to drop read caches that front the replaced data.
func (e *Engine) OnApply(fn func()) {
	e.onApply = fn
}

func (e *Engine) applied() {
	if e.onApply != nil {
		e.onApply()
	}
}

// Nudge asks for a cycle soon. Safe to call from any goroutine; a pending
// nudge absorbs further ones.
func (e *Engine) Nudge() {
	select {
	case e.nudge <- struct{}{}:
	default:
	}
}

func (e *Engine) Status(ctx context.Context) domain.SyncStatusResponse {
	pending, err := e.repo.CountOutbox(ctx)
	if err != nil {
		log.Printf("[sync] WARN: count outbox: %v", err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.SyncStatusResponse{
		State:      e.state,
		Pending:    pending,
		LastSyncAt: e.lastSync,
		LastError:  e.lastError,
	}
}

func (e *Engine) setState(state, lastError string) {
	e.mu.Lock()
	e.state = state
	e.lastError = lastError
	if state == domain.SyncStateSynced {
		e.lastSync = time.Now().UTC()
	}
	e.mu.Unlock()
}

// Run drives the sync loop: an immediate cycle at boot, then one per
// interval, per nudge, and per offline-to-online transition. Cycles are
// serialized by construction.
func (e *Engine) Run(ctx context.Context) {
	transitions := e.monitor.Subscribe()
	e.Cycle(ctx)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Cycle(ctx)
		case <-e.nudge:
			e.Cycle(ctx)
		case online := <-transitions:
			if online {
				e.Cycle(ctx)
			} else {
				e.setState(domain.SyncStateOffline, "")
			}
		}
	}
}

// Cycle runs one push-then-pull pass. Offline short-circuits without
// touching the store. A failed push leaves the whole batch queued; the
// outbox is cleared only after the authority has accepted every entry.
// The pull runs even when the outbox is empty so edits made at the
// authority reach the device without waiting for local activity.
func (e *Engine) Cycle(ctx context.Context) {
	if !e.monitor.Online() {
		e.setState(domain.SyncStateOffline, "")
		return
	}
	e.setState(domain.SyncStateSyncing, "")

	cycleCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.push(cycleCtx); err != nil {
		e.fail("push", err)
		return
	}
	if err := e.pull(cycleCtx); err != nil {
		e.fail("pull", err)
		return
	}
	e.applied()
	e.setState(domain.SyncStateSynced, "")
}

func (e *Engine) fail(phase string, err error) {
	log.Printf("[sync] WARN: %s failed: %v", phase, err)
	if errors.Is(err, remote.ErrUnavailable) {
		e.setState(domain.SyncStateOffline, err.Error())
		return
	}
	e.setState(domain.SyncStateError, fmt.Sprintf("%s: %v", phase, err))
}

func (e *Engine) push(ctx context.Context) error {
	entries, err := e.repo.ListOutbox(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	if _, err := e.authority.SyncPush(ctx, e.shopID(), entries); err != nil {
		return err
	}

	maxSeq := entries[len(entries)-1].Seq
	err = e.repo.Write(ctx, func(tx store.WriteTx) error {
		return tx.ClearOutbox(maxSeq)
	})
	if err != nil {
		return err
	}
	log.Printf("[sync] pushed %d queued events", len(entries))
	return nil
}

func (e *Engine) pull(ctx context.Context) error {
	var since time.Time
	raw, err := e.repo.GetMeta(ctx, store.MetaLastSync)
	if err == nil {
		// A corrupt watermark decodes to zero and falls back to a full pull.
		since = store.ParseMetaTime(raw)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	snap, err := e.authority.SyncUpdates(ctx, since)
	if err != nil {
		return err
	}
	users, err := e.mergeUsers(ctx, snap.Users)
	if err != nil {
		return err
	}

	return e.repo.Write(ctx, func(tx store.WriteTx) error {
		for _, p := range snap.Products {
			if err := tx.PutProduct(p); err != nil {
				return err
			}
		}
		for _, sale := range snap.Sales {
			if err := tx.PutSale(sale); err != nil {
				return err
			}
		}
		for _, c := range snap.Customers {
			if err := tx.PutCustomer(c); err != nil {
				return err
			}
		}
		for _, sh := range snap.Shops {
			if err := tx.PutShop(sh); err != nil {
				return err
			}
		}
		for _, u := range users {
			if err := tx.PutUser(u); err != nil {
				return err
			}
		}
		watermark := snap.ServerTime
		if watermark.IsZero() {
			watermark = time.Now().UTC()
		}
		return tx.PutMeta(store.MetaLastSync, store.FormatMetaTime(watermark))
	})
}

// mergeUsers keeps a locally stored password hash when the authority sends
// the same user without one; the hash is what makes offline login work.
func (e *Engine) mergeUsers(ctx context.Context, incoming []domain.User) ([]domain.User, error) {
	if len(incoming) == 0 {
		return nil, nil
	}
	merged := make([]domain.User, 0, len(incoming))
	for _, u := range incoming {
		if u.PasswordHash == "" {
			existing, err := e.repo.GetUser(ctx, u.Username)
			if err == nil && existing.PasswordHash != "" {
				u.PasswordHash = existing.PasswordHash
			} else if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
		merged = append(merged, u)
	}
	return merged, nil
}

// FullResync replaces every synced collection with the authority's current
// state in one transaction. The outbox must be empty: queued local changes
// would be lost under the wholesale replace.
func (e *Engine) FullResync(ctx context.Context) error {
	pending, err := e.repo.CountOutbox(ctx)
	if err != nil {
		return err
	}
	if pending > 0 {
		if err := e.push(ctx); err != nil {
			return fmt.Errorf("drain outbox before resync: %w", err)
		}
	}

	resyncCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	products, err := e.authority.GetProducts(resyncCtx)
	if err != nil {
		return err
	}
	sales, err := e.authority.GetSales(resyncCtx)
	if err != nil {
		return err
	}
	customers, err := e.authority.GetCustomers(resyncCtx)
	if err != nil {
		return err
	}
	shops, err := e.authority.GetShops(resyncCtx)
	if err != nil {
		return err
	}
	users, err := e.authority.GetUsers(resyncCtx)
	if err != nil {
		return err
	}
	users, err = e.mergeUsers(resyncCtx, users)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = e.repo.Write(resyncCtx, func(tx store.WriteTx) error {
		if err := tx.ClearProducts(); err != nil {
			return err
		}
		if err := tx.BulkPutProducts(products); err != nil {
			return err
		}
		if err := tx.ClearSales(); err != nil {
			return err
		}
		if err := tx.BulkPutSales(sales); err != nil {
			return err
		}
		if err := tx.ClearCustomers(); err != nil {
			return err
		}
		if err := tx.BulkPutCustomers(customers); err != nil {
			return err
		}
		if err := tx.ClearShops(); err != nil {
			return err
		}
		if err := tx.BulkPutShops(shops); err != nil {
			return err
		}
		if err := tx.ClearUsers(); err != nil {
			return err
		}
		if err := tx.BulkPutUsers(users); err != nil {
			return err
		}
		return tx.PutMeta(store.MetaLastSync, store.FormatMetaTime(now))
	})
	if err != nil {
		return err
	}

	e.applied()
	e.setState(domain.SyncStateSynced, "")
	log.Printf("[sync] full resync complete: %d products, %d sales, %d customers", len(products), len(sales), len(customers))
	return nil
}
