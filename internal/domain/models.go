package domain

import "time"

// Product is a catalog item scoped to a shop. Stock is a count that may be
// fractional (loose goods sold by weight).
type Product struct {
	ID            int64   `json:"id"`
	ShopID        int64   `json:"shop_id"`
	NameEN        string  `json:"name_en"`
	NameTA        string  `json:"name_ta,omitempty"`
	PriceBusiness float64 `json:"price_business"`
	PriceConsumer float64 `json:"price_consumer"`
	Stock         float64 `json:"stock"`
	Barcode       string  `json:"barcode,omitempty"`
	Category      string  `json:"category,omitempty"`
	Subcategory   string  `json:"subcategory,omitempty"`
}

// Customer is keyed by mobile number. Balance is the signed amount the
// customer owes; it is overwritten, never incremented, at each sale
// finalization.
type Customer struct {
	Mobile  string  `json:"mobile"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
}

type SaleItem struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Qty       float64 `json:"qty"`
	Price     float64 `json:"price"`
	IsReturn  bool    `json:"is_return"`
}

// Sale is immutable once finalized.
type Sale struct {
	ID              string     `json:"id"`
	ShopID          int64      `json:"shop_id"`
	Timestamp       time.Time  `json:"timestamp"`
	CustomerName    string     `json:"customer_name"`
	CustomerMobile  string     `json:"customer_mobile"`
	Items           []SaleItem `json:"items"`
	GrossTotal      float64    `json:"gross_total"`
	ReturnTotal     float64    `json:"return_total"`
	Subtotal        float64    `json:"subtotal"`
	TaxPercent      float64    `json:"tax_percent"`
	TaxAmount       float64    `json:"tax_amount"`
	GrandTotal      float64    `json:"grand_total"`
	PreviousBalance float64    `json:"previous_balance"`
	AmountPaid      float64    `json:"amount_paid"`
	TotalBalanceDue float64    `json:"total_balance_due"`
	LocaleMode      string     `json:"locale_mode,omitempty"`
}

type Expense struct {
	ID          string    `json:"id"`
	ShopID      int64     `json:"shop_id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
}

type OrderKind string

const (
	OrderKindPurchase OrderKind = "purchase"
	OrderKindSales    OrderKind = "sales"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusFulfilled OrderStatus = "Fulfilled"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

type OrderItem struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Qty       float64 `json:"qty"`
	Price     float64 `json:"price"`
}

// Order covers both purchase orders (counterparty = supplier) and sales
// orders (counterparty = customer). Status moves Pending -> Fulfilled or
// Pending -> Cancelled and never leaves a terminal state.
type Order struct {
	ID           string      `json:"id"`
	Kind         OrderKind   `json:"kind"`
	ShopID       int64       `json:"shop_id"`
	Counterparty string      `json:"counterparty"`
	OrderDate    time.Time   `json:"order_date"`
	Items        []OrderItem `json:"items"`
	Total        float64     `json:"total"`
	Status       OrderStatus `json:"status"`
}

type Shop struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

// User is the locally cached account record. PasswordHash is a bcrypt hash
// kept for offline login; it is persisted locally but must be stripped
// before a User leaves the process (outbox payloads and API responses).
type User struct {
	Username     string `json:"username"`
	Role         Role   `json:"role"`
	ShopID       int64  `json:"shop_id,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

// Sanitized returns a copy safe to hand across the process boundary.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

const (
	SyncStateOffline = "offline"
	SyncStateSyncing = "syncing"
	SyncStateSynced  = "synced"
	SyncStateError   = "error"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token   string `json:"token"`
	User    User   `json:"user"`
	Offline bool   `json:"offline,omitempty"`
}

type OrderCreateRequest struct {
	Kind         OrderKind   `json:"kind"`
	Counterparty string      `json:"counterparty"`
	OrderDate    time.Time   `json:"order_date"`
	Items        []OrderItem `json:"items"`
}

type OrderUpdateRequest struct {
	Counterparty *string     `json:"counterparty,omitempty"`
	OrderDate    *time.Time  `json:"order_date,omitempty"`
	Items        []OrderItem `json:"items,omitempty"`
}

type SyncStatusResponse struct {
	State      string    `json:"state"`
	Pending    int       `json:"pending"`
	LastSyncAt time.Time `json:"last_sync_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}
