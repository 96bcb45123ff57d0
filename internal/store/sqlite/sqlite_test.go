package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"billease/pos/internal/domain"
	"billease/pos/internal/outbox"
	"billease/pos/internal/store"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return db
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.db")
	ctx := context.Background()

	db := openTestStore(t, path)
	sale := domain.Sale{
		ID:        "sale-1",
		ShopID:    1,
		Timestamp: time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC),
		Items:     []domain.SaleItem{{ProductID: 1, Name: "Rice 1kg", Qty: 2, Price: 48}},
	}
	err := db.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutProduct(domain.Product{ID: 1, ShopID: 1, NameEN: "Rice 1kg", Stock: 98}); err != nil {
			return err
		}
		if err := tx.PutSale(sale); err != nil {
			return err
		}
		if err := tx.AppendOutbox(outbox.SaleFinalized(sale)); err != nil {
			return err
		}
		return tx.PutMeta(store.MetaLastSync, store.FormatMetaTime(sale.Timestamp))
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db = openTestStore(t, path)
	defer db.Close()

	product, err := db.GetProduct(ctx, 1)
	if err != nil {
		t.Fatalf("get product after reopen: %v", err)
	}
	if product.Stock != 98 {
		t.Fatalf("stock = %v, want 98", product.Stock)
	}

	got, err := db.GetSale(ctx, "sale-1")
	if err != nil {
		t.Fatalf("get sale after reopen: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].Name != "Rice 1kg" {
		t.Fatalf("sale items = %+v", got.Items)
	}

	entries, err := db.ListOutbox(ctx)
	if err != nil {
		t.Fatalf("list outbox after reopen: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != outbox.EventSaleFinalized {
		t.Fatalf("outbox after reopen = %+v", entries)
	}

	raw, err := db.GetMeta(ctx, store.MetaLastSync)
	if err != nil {
		t.Fatalf("get meta after reopen: %v", err)
	}
	if !store.ParseMetaTime(raw).Equal(sale.Timestamp) {
		t.Fatalf("watermark = %q", raw)
	}
}

func TestWriteRollsBackOnError(t *testing.T) {
	db := openTestStore(t, filepath.Join(t.TempDir(), "pos.db"))
	defer db.Close()
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutCustomer(domain.Customer{Mobile: "9000000001", Name: "Priya"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the inner error", err)
	}

	if _, err := db.GetCustomer(ctx, "9000000001"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("customer visible after rollback: %v", err)
	}
}

func TestOutboxSequencesSurviveClearAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.db")
	ctx := context.Background()

	db := openTestStore(t, path)
	err := db.Write(ctx, func(tx store.WriteTx) error {
		for i := 0; i < 3; i++ {
			if err := tx.AppendOutbox(outbox.ShopAdded(domain.Shop{ID: int64(i + 1), Name: "Shop"})); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := db.ListOutbox(ctx)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	maxSeq := entries[len(entries)-1].Seq

	err = db.Write(ctx, func(tx store.WriteTx) error { return tx.ClearOutbox(maxSeq) })
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db = openTestStore(t, path)
	defer db.Close()

	err = db.Write(ctx, func(tx store.WriteTx) error {
		return tx.AppendOutbox(outbox.ShopAdded(domain.Shop{ID: 9, Name: "Late Shop"}))
	})
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	entries, err = db.ListOutbox(ctx)
	if err != nil {
		t.Fatalf("list outbox after reopen: %v", err)
	}
	if len(entries) != 1 || entries[0].Seq <= maxSeq {
		t.Fatalf("seq %d not past cleared max %d", entries[0].Seq, maxSeq)
	}
}

func TestUpsertReplacesRecord(t *testing.T) {
	db := openTestStore(t, filepath.Join(t.TempDir(), "pos.db"))
	defer db.Close()
	ctx := context.Background()

	write := func(stock float64) {
		err := db.Write(ctx, func(tx store.WriteTx) error {
			return tx.PutProduct(domain.Product{ID: 1, ShopID: 1, NameEN: "Rice 1kg", Stock: stock})
		})
		if err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(100)
	write(97)

	products, err := db.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("products = %d, want the upsert to replace", len(products))
	}
	if products[0].Stock != 97 {
		t.Fatalf("stock = %v, want 97", products[0].Stock)
	}
}

func TestMissingRecordsMapToNotFound(t *testing.T) {
	db := openTestStore(t, filepath.Join(t.TempDir(), "pos.db"))
	defer db.Close()
	ctx := context.Background()

	if _, err := db.GetProduct(ctx, 404); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("product err = %v, want ErrNotFound", err)
	}
	if _, err := db.GetOrder(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("order err = %v, want ErrNotFound", err)
	}
	if _, err := db.GetMeta(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("meta err = %v, want ErrNotFound", err)
	}
}
