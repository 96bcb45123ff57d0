package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"billease/pos/internal/domain"
)

func TestDecodeRoundTripsEveryEventType(t *testing.T) {
	sale := domain.Sale{ID: "sale-1", ShopID: 1, Items: []domain.SaleItem{{ProductID: 1, Qty: 2, Price: 48}}}
	product := domain.Product{ID: 1, ShopID: 1, NameEN: "Rice 1kg", Stock: 98}
	customer := domain.Customer{Mobile: "9876543210", Name: "Kumar", Balance: -75}
	expense := domain.Expense{ID: "exp-1", ShopID: 1, Description: "Diesel", Amount: 500}
	shop := domain.Shop{ID: 2, Name: "Branch Two"}
	order := domain.Order{ID: "po-1", Kind: domain.OrderKindPurchase, ShopID: 1, Status: domain.OrderStatusPending}

	entries := []Entry{
		SaleFinalized(sale),
		ProductUpserted(product),
		ProductsImported([]domain.Product{product}),
		CustomerUpserted(customer),
		ExpenseAdded(expense),
		ShopAdded(shop),
		OrderUpserted(order),
	}

	for _, e := range entries {
		decoded, err := Decode(e)
		if err != nil {
			t.Fatalf("decode %s: %v", e.Type, err)
		}
		if decoded == nil {
			t.Fatalf("decode %s returned nil", e.Type)
		}
	}

	got, err := Decode(entries[0])
	if err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	decodedSale, ok := got.(domain.Sale)
	if !ok {
		t.Fatalf("decoded sale has type %T", got)
	}
	if decodedSale.ID != "sale-1" || len(decodedSale.Items) != 1 {
		t.Fatalf("decoded sale = %+v", decodedSale)
	}
}

func TestUserAddedOmitsPasswordHash(t *testing.T) {
	e := UserAdded(domain.User{
		Username:     "cashier1",
		Role:         domain.RoleCashier,
		ShopID:       1,
		PasswordHash: "$2a$10$secret",
	})

	var raw map[string]any
	if err := json.Unmarshal(e.Payload, &raw); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if _, leaked := raw["password_hash"]; leaked {
		t.Fatalf("password hash leaked into outbox payload")
	}

	decoded, err := Decode(e)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	payload, ok := decoded.(UserAddedPayload)
	if !ok {
		t.Fatalf("decoded user has type %T", decoded)
	}
	if payload.Username != "cashier1" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	e := Entry{Seq: 1, Type: EventType("totally.unknown"), Payload: json.RawMessage(`{}`), CreatedAt: time.Now()}
	if _, err := Decode(e); err == nil {
		t.Fatalf("expected an error for an unknown event type")
	}
}
