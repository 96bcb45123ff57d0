// Package outbox defines the replayable mutation events queued for the
// remote authority. Event types form a closed set; each type carries one
// typed payload so the local producer and the remote replay contract cannot
// drift silently.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"billease/pos/internal/domain"
)

type EventType string

const (
	EventSaleFinalized    EventType = "sale.finalized"
	EventProductUpserted  EventType = "product.upserted"
	EventProductsImported EventType = "product.bulk_imported"
	EventCustomerUpserted EventType = "customer.upserted"
	EventExpenseAdded     EventType = "expense.added"
	EventShopAdded        EventType = "shop.added"
	EventUserAdded        EventType = "user.added"
	EventOrderUpserted    EventType = "order.upserted"
)

// Entry is one pending mutation. Seq is assigned by the store on append;
// insertion order is replay order. Entries are never edited in place.
type Entry struct {
	Seq       int64           `json:"seq"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// UserAddedPayload deliberately excludes the local password hash.
type UserAddedPayload struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	ShopID   int64       `json:"shop_id,omitempty"`
}

func SaleFinalized(sale domain.Sale) Entry       { return mustEntry(EventSaleFinalized, sale) }
func ProductUpserted(p domain.Product) Entry     { return mustEntry(EventProductUpserted, p) }
func ProductsImported(ps []domain.Product) Entry { return mustEntry(EventProductsImported, ps) }
func CustomerUpserted(c domain.Customer) Entry   { return mustEntry(EventCustomerUpserted, c) }
func ExpenseAdded(e domain.Expense) Entry        { return mustEntry(EventExpenseAdded, e) }
func ShopAdded(s domain.Shop) Entry              { return mustEntry(EventShopAdded, s) }
func OrderUpserted(o domain.Order) Entry         { return mustEntry(EventOrderUpserted, o) }

func UserAdded(u domain.User) Entry {
	return mustEntry(EventUserAdded, UserAddedPayload{
		Username: u.Username,
		Role:     u.Role,
		ShopID:   u.ShopID,
	})
}

func mustEntry(t EventType, payload any) Entry {
	raw, err := json.Marshal(payload)
	if err != nil {
		// Payloads are plain structs defined in this module; marshalling
		// cannot fail for them.
		panic(fmt.Sprintf("outbox: marshal %s payload: %v", t, err))
	}
	return Entry{Type: t, Payload: raw, CreatedAt: time.Now().UTC()}
}

// Decode returns the typed payload for an entry. Unknown event types are an
// error, never silently skipped: the set above is the whole contract.
func Decode(e Entry) (any, error) {
	switch e.Type {
	case EventSaleFinalized:
		return decodeAs[domain.Sale](e)
	case EventProductUpserted:
		return decodeAs[domain.Product](e)
	case EventProductsImported:
		return decodeAs[[]domain.Product](e)
	case EventCustomerUpserted:
		return decodeAs[domain.Customer](e)
	case EventExpenseAdded:
		return decodeAs[domain.Expense](e)
	case EventShopAdded:
		return decodeAs[domain.Shop](e)
	case EventUserAdded:
		return decodeAs[UserAddedPayload](e)
	case EventOrderUpserted:
		return decodeAs[domain.Order](e)
	default:
		return nil, fmt.Errorf("outbox: unknown event type %q", e.Type)
	}
}

func decodeAs[T any](e Entry) (T, error) {
	var v T
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return v, fmt.Errorf("outbox: decode %s payload: %w", e.Type, err)
	}
	return v, nil
}
