package memory

import (
	"context"
	"errors"
	"testing"

	"billease/pos/internal/domain"
	"billease/pos/internal/outbox"
	"billease/pos/internal/store"
)

func TestWriteIsAllOrNothing(t *testing.T) {
	repo := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutProduct(domain.Product{ID: 1, NameEN: "Rice"}); err != nil {
			return err
		}
		if err := tx.AppendOutbox(outbox.ProductUpserted(domain.Product{ID: 1, NameEN: "Rice"})); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the inner error", err)
	}

	if _, err := repo.GetProduct(ctx, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("product visible after failed write: %v", err)
	}
	if pending, _ := repo.CountOutbox(ctx); pending != 0 {
		t.Fatalf("outbox grew on failed write: %d", pending)
	}
}

func TestOutboxSequencesAreMonotonicAcrossClears(t *testing.T) {
	repo := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := repo.Write(ctx, func(tx store.WriteTx) error {
			return tx.AppendOutbox(outbox.ShopAdded(domain.Shop{ID: int64(i + 1), Name: "Shop"}))
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := repo.ListOutbox(ctx)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	firstMax := entries[len(entries)-1].Seq

	err = repo.Write(ctx, func(tx store.WriteTx) error { return tx.ClearOutbox(firstMax) })
	if err != nil {
		t.Fatalf("clear: %v", err)
	}

	err = repo.Write(ctx, func(tx store.WriteTx) error {
		return tx.AppendOutbox(outbox.ShopAdded(domain.Shop{ID: 9, Name: "Late Shop"}))
	})
	if err != nil {
		t.Fatalf("append after clear: %v", err)
	}

	entries, err = repo.ListOutbox(ctx)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Seq <= firstMax {
		t.Fatalf("seq %d not past the cleared batch max %d", entries[0].Seq, firstMax)
	}
}

func TestClearOutboxKeepsEntriesPastMaxSeq(t *testing.T) {
	repo := New()
	ctx := context.Background()

	err := repo.Write(ctx, func(tx store.WriteTx) error {
		for i := 0; i < 3; i++ {
			if err := tx.AppendOutbox(outbox.ShopAdded(domain.Shop{ID: int64(i + 1)})); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, _ := repo.ListOutbox(ctx)
	cutoff := entries[1].Seq

	err = repo.Write(ctx, func(tx store.WriteTx) error { return tx.ClearOutbox(cutoff) })
	if err != nil {
		t.Fatalf("clear: %v", err)
	}

	kept, _ := repo.ListOutbox(ctx)
	if len(kept) != 1 || kept[0].Seq != entries[2].Seq {
		t.Fatalf("kept = %+v, want only the entry past seq %d", kept, cutoff)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	repo := New()
	ctx := context.Background()

	err := repo.Write(ctx, func(tx store.WriteTx) error {
		return tx.PutSale(domain.Sale{ID: "sale-1", Items: []domain.SaleItem{{ProductID: 1, Qty: 2, Price: 10}}})
	})
	if err != nil {
		t.Fatalf("put sale: %v", err)
	}

	first, err := repo.GetSale(ctx, "sale-1")
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	first.Items[0].Qty = 99

	second, err := repo.GetSale(ctx, "sale-1")
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if second.Items[0].Qty != 2 {
		t.Fatalf("stored sale mutated through a read copy")
	}
}

func TestListOrdersFiltersByKind(t *testing.T) {
	repo := New()
	ctx := context.Background()

	err := repo.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutOrder(domain.Order{ID: "po-1", Kind: domain.OrderKindPurchase, Status: domain.OrderStatusPending}); err != nil {
			return err
		}
		return tx.PutOrder(domain.Order{ID: "so-1", Kind: domain.OrderKindSales, Status: domain.OrderStatusPending})
	})
	if err != nil {
		t.Fatalf("put orders: %v", err)
	}

	purchases, err := repo.ListOrders(ctx, domain.OrderKindPurchase)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(purchases) != 1 || purchases[0].ID != "po-1" {
		t.Fatalf("purchases = %+v", purchases)
	}
}
