package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"billease/pos/internal/cache"
	"billease/pos/internal/domain"
	"billease/pos/internal/outbox"
	"billease/pos/internal/store"
	"billease/pos/internal/xid"
)

var (
	ErrValidation            = errors.New("invalid input")
	ErrForbidden             = errors.New("forbidden")
	ErrNoShopSelected        = errors.New("no shop selected")
	ErrShopContextRequired   = errors.New("shop context required")
	ErrDuplicateCustomer     = errors.New("customer already exists")
	ErrDuplicateUsername     = errors.New("username already exists")
	ErrOrderNotEditable      = errors.New("order is not editable")
	ErrOrderAlreadyProcessed = errors.New("order already processed")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.User) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.User, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.User)
	return actor, ok
}

const (
	catalogCacheKey = "catalog:products"
	catalogCacheTTL = time.Minute
)

// Service is the domain mutation layer. Every operation applies its writes
// in one store transaction together with the mirror outbox events, so the
// local state and the replay queue cannot diverge.
type Service struct {
	repo    store.Store
	catalog cache.CatalogCache

	// writeMu serializes mutations. Each one reads current state before it
	// commits, and HTTP handlers run concurrently, so unguarded interleaving
	// would lose stock deltas and hand out duplicate ids.
	writeMu sync.Mutex

	mu     sync.RWMutex
	shopID int64

	// nudge pokes the sync engine after a successful mutation. Optional.
	nudge func()
}

func New(repo store.Store, catalog cache.CatalogCache, nudge func()) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	return &Service{repo: repo, catalog: catalog, nudge: nudge}
}

// BindShop sets the shop context mutations are scoped to: the acting user's
// assignment, or an admin's current selection. Zero clears the binding.
func (s *Service) BindShop(shopID int64) {
	s.mu.Lock()
	s.shopID = shopID
	s.mu.Unlock()
}

func (s *Service) ShopID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shopID
}

func (s *Service) nudgeSync() {
	if s.nudge != nil {
		s.nudge()
	}
}

// FinalizeSale persists a priced sale, applies the stock delta of every
// line item and overwrites the customer balance, all in one transaction.
// Aggregates are recomputed here so a mispriced payload cannot violate the
// grand-total invariant. The caller guards against double finalization of
// the same pending sale.
func (s *Service) FinalizeSale(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	shopID := s.ShopID()
	if shopID == 0 {
		return domain.Sale{}, ErrNoShopSelected
	}
	if len(sale.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: sale has no items", ErrValidation)
	}
	for _, item := range sale.Items {
		if item.Qty <= 0 || item.Price < 0 {
			return domain.Sale{}, fmt.Errorf("%w: bad line item for product %d", ErrValidation, item.ProductID)
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Timestamp.IsZero() {
		sale.Timestamp = time.Now().UTC()
	}
	sale.ShopID = shopID
	recomputeSaleTotals(&sale)

	updated := make([]domain.Product, 0, len(sale.Items))
	seen := make(map[int64]int, len(sale.Items))
	for _, item := range sale.Items {
		idx, ok := seen[item.ProductID]
		if !ok {
			product, err := s.repo.GetProduct(ctx, item.ProductID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.Sale{}, fmt.Errorf("%w: unknown product %d", ErrValidation, item.ProductID)
				}
				return domain.Sale{}, err
			}
			updated = append(updated, *product)
			idx = len(updated) - 1
			seen[item.ProductID] = idx
		}
		if item.IsReturn {
			updated[idx].Stock += item.Qty
		} else {
			// Stock never goes negative; an oversell bottoms out at zero.
			updated[idx].Stock = math.Max(0, updated[idx].Stock-item.Qty)
		}
	}

	var customer *domain.Customer
	if mobile := strings.TrimSpace(sale.CustomerMobile); mobile != "" {
		sale.CustomerMobile = mobile
		existing, err := s.repo.GetCustomer(ctx, mobile)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, err
		}
		c := domain.Customer{Mobile: mobile, Name: strings.TrimSpace(sale.CustomerName)}
		if existing != nil && c.Name == "" {
			c.Name = existing.Name
		}
		c.Balance = sale.TotalBalanceDue
		customer = &c
	}

	err := s.repo.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutSale(sale); err != nil {
			return err
		}
		if err := tx.AppendOutbox(outbox.SaleFinalized(sale)); err != nil {
			return err
		}
		for _, p := range updated {
			if err := tx.PutProduct(p); err != nil {
				return err
			}
			if err := tx.AppendOutbox(outbox.ProductUpserted(p)); err != nil {
				return err
			}
		}
		if customer != nil {
			if err := tx.PutCustomer(*customer); err != nil {
				return err
			}
			if err := tx.AppendOutbox(outbox.CustomerUpserted(*customer)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.InvalidateCatalog(ctx)
	s.nudgeSync()
	return sale, nil
}

func recomputeSaleTotals(sale *domain.Sale) {
	gross, returns := 0.0, 0.0
	for _, item := range sale.Items {
		line := item.Qty * item.Price
		if item.IsReturn {
			returns += line
		} else {
			gross += line
		}
	}
	sale.GrossTotal = round2(gross)
	sale.ReturnTotal = round2(returns)
	sale.Subtotal = round2(gross - returns)
	sale.TaxAmount = round2(sale.Subtotal * sale.TaxPercent / 100)
	sale.GrandTotal = math.Round(sale.Subtotal + sale.TaxAmount)
	sale.TotalBalanceDue = round2(sale.GrandTotal + sale.PreviousBalance - sale.AmountPaid)
}

// SaveProduct creates (ID zero) or updates a product. Creation needs a
// bound shop context and assigns the next free id.
func (s *Service) SaveProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	p.NameEN = strings.TrimSpace(p.NameEN)
	p.NameTA = strings.TrimSpace(p.NameTA)
	if p.NameEN == "" {
		return domain.Product{}, fmt.Errorf("%w: product name required", ErrValidation)
	}
	if p.PriceBusiness < 0 || p.PriceConsumer < 0 || p.Stock < 0 {
		return domain.Product{}, fmt.Errorf("%w: negative price or stock", ErrValidation)
	}

	if p.ID == 0 {
		shopID := s.ShopID()
		if shopID == 0 {
			return domain.Product{}, ErrShopContextRequired
		}
		p.ShopID = shopID
		id, err := s.nextProductID(ctx)
		if err != nil {
			return domain.Product{}, err
		}
		p.ID = id
	} else {
		existing, err := s.repo.GetProduct(ctx, p.ID)
		if err != nil {
			return domain.Product{}, err
		}
		if p.ShopID == 0 {
			p.ShopID = existing.ShopID
		}
	}

	err := s.repo.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutProduct(p); err != nil {
			return err
		}
		return tx.AppendOutbox(outbox.ProductUpserted(p))
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.InvalidateCatalog(ctx)
	s.nudgeSync()
	return p, nil
}

// Minimum columns per import row: english name, local name, business price,
// consumer price, stock. Barcode, category and subcategory are optional.
const importMinColumns = 5

// ImportProducts validates a tabular payload in full before any write, then
// stores the whole batch in one transaction with a single outbox event.
func (s *Service) ImportProducts(ctx context.Context, rows [][]string) ([]domain.Product, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	shopID := s.ShopID()
	if shopID == 0 {
		return nil, ErrShopContextRequired
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty import payload", ErrValidation)
	}

	nextID, err := s.nextProductID(ctx)
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(rows))
	for i, row := range rows {
		if len(row) < importMinColumns {
			return nil, fmt.Errorf("%w: row %d has %d columns, need %d", ErrValidation, i+1, len(row), importMinColumns)
		}
		name := strings.TrimSpace(row[0])
		if name == "" {
			return nil, fmt.Errorf("%w: row %d is missing a product name", ErrValidation, i+1)
		}
		priceBusiness, err := parseImportNumber(row[2])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d business price: %v", ErrValidation, i+1, err)
		}
		priceConsumer, err := parseImportNumber(row[3])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d consumer price: %v", ErrValidation, i+1, err)
		}
		stock, err := parseImportNumber(row[4])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d stock: %v", ErrValidation, i+1, err)
		}
		p := domain.Product{
			ID:            nextID,
			ShopID:        shopID,
			NameEN:        name,
			NameTA:        strings.TrimSpace(row[1]),
			PriceBusiness: priceBusiness,
			PriceConsumer: priceConsumer,
			Stock:         stock,
		}
		if len(row) > 5 {
			p.Barcode = strings.TrimSpace(row[5])
		}
		if len(row) > 6 {
			p.Category = strings.TrimSpace(row[6])
		}
		if len(row) > 7 {
			p.Subcategory = strings.TrimSpace(row[7])
		}
		products = append(products, p)
		nextID++
	}

	err = s.repo.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.BulkPutProducts(products); err != nil {
			return err
		}
		return tx.AppendOutbox(outbox.ProductsImported(products))
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateCatalog(ctx)
	s.nudgeSync()
	return products, nil
}

func parseImportNumber(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value: %q", raw)
	}
	return v, nil
}

func (s *Service) nextProductID(ctx context.Context) (int64, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return 0, err
	}
	var maxID int64
	for _, p := range products {
		if p.ID > maxID {
			maxID = p.ID
		}
	}
	return maxID + 1, nil
}

func (s *Service) AddCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	c.Mobile = strings.TrimSpace(c.Mobile)
	c.Name = strings.TrimSpace(c.Name)
	if c.Mobile == "" || c.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: mobile and name required", ErrValidation)
	}

	if _, err := s.repo.GetCustomer(ctx, c.Mobile); err == nil {
		return domain.Customer{}, ErrDuplicateCustomer
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Customer{}, err
	}

	err := s.repo.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutCustomer(c); err != nil {
			return err
		}
		return tx.AppendOutbox(outbox.CustomerUpserted(c))
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.nudgeSync()
	return c, nil
}

func (s *Service) AddExpense(ctx context.Context, description string, amount float64) (domain.Expense, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	description = strings.TrimSpace(description)
	if description == "" || amount <= 0 {
		return domain.Expense{}, fmt.Errorf("%w: description and positive amount required", ErrValidation)
	}

	expense := domain.Expense{
		ID:          xid.New("exp"),
		ShopID:      s.ShopID(),
		Timestamp:   time.Now().UTC(),
		Description: description,
		Amount:      round2(amount),
	}

	err := s.repo.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutExpense(expense); err != nil {
			return err
		}
		return tx.AppendOutbox(outbox.ExpenseAdded(expense))
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.nudgeSync()
	return expense, nil
}

func (s *Service) AddShop(ctx context.Context, name string) (domain.Shop, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Shop{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Shop{}, fmt.Errorf("%w: shop name required", ErrValidation)
	}

	shops, err := s.repo.ListShops(ctx)
	if err != nil {
		return domain.Shop{}, err
	}
	var maxID int64
	for _, sh := range shops {
		if sh.ID > maxID {
			maxID = sh.ID
		}
	}
	shop := domain.Shop{ID: maxID + 1, Name: name}

	err = s.repo.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutShop(shop); err != nil {
			return err
		}
		return tx.AppendOutbox(outbox.ShopAdded(shop))
	})
	if err != nil {
		return domain.Shop{}, err
	}

	s.nudgeSync()
	return shop, nil
}

func (s *Service) AddUser(ctx context.Context, username string, password string, role domain.Role, shopID int64) (domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.User{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.User{}, fmt.Errorf("%w: username and password required", ErrValidation)
	}
	switch role {
	case domain.RoleAdmin:
	case domain.RoleManager, domain.RoleCashier:
		if shopID == 0 {
			return domain.User{}, fmt.Errorf("%w: %s needs a shop affiliation", ErrValidation, role)
		}
	default:
		return domain.User{}, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	if _, err := s.repo.GetUser(ctx, username); err == nil {
		return domain.User{}, ErrDuplicateUsername
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		Username:     username,
		Role:         role,
		ShopID:       shopID,
		PasswordHash: string(hash),
	}

	err = s.repo.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutUser(user); err != nil {
			return err
		}
		return tx.AppendOutbox(outbox.UserAdded(user))
	})
	if err != nil {
		return domain.User{}, err
	}

	s.nudgeSync()
	return user.Sanitized(), nil
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	shopID := s.ShopID()
	if shopID == 0 {
		return domain.Order{}, ErrShopContextRequired
	}
	if req.Kind != domain.OrderKindPurchase && req.Kind != domain.OrderKindSales {
		return domain.Order{}, fmt.Errorf("%w: unknown order kind %q", ErrValidation, req.Kind)
	}
	req.Counterparty = strings.TrimSpace(req.Counterparty)
	if req.Counterparty == "" {
		return domain.Order{}, fmt.Errorf("%w: counterparty required", ErrValidation)
	}
	items, total, err := normalizeOrderItems(req.Items)
	if err != nil {
		return domain.Order{}, err
	}

	orderDate := req.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	prefix := "po"
	if req.Kind == domain.OrderKindSales {
		prefix = "so"
	}
	order := domain.Order{
		ID:           xid.New(prefix),
		Kind:         req.Kind,
		ShopID:       shopID,
		Counterparty: req.Counterparty,
		OrderDate:    orderDate,
		Items:        items,
		Total:        total,
		Status:       domain.OrderStatusPending,
	}

	err = s.repo.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutOrder(order); err != nil {
			return err
		}
		return tx.AppendOutbox(outbox.OrderUpserted(order))
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.nudgeSync()
	return order, nil
}

// UpdateOrder edits a still-pending order, replacing counterparty, date and
// items and recomputing the total. Terminal orders are frozen.
func (s *Service) UpdateOrder(ctx context.Context, orderID string, req domain.OrderUpdateRequest) (domain.Order, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, ErrOrderNotEditable
	}

	if req.Counterparty != nil {
		counterparty := strings.TrimSpace(*req.Counterparty)
		if counterparty == "" {
			return domain.Order{}, fmt.Errorf("%w: counterparty required", ErrValidation)
		}
		order.Counterparty = counterparty
	}
	if req.OrderDate != nil {
		order.OrderDate = *req.OrderDate
	}
	if req.Items != nil {
		items, total, err := normalizeOrderItems(req.Items)
		if err != nil {
			return domain.Order{}, err
		}
		order.Items = items
		order.Total = total
	}

	err = s.repo.Write(ctx, func(tx store.WriteTx) error {
		if err := tx.PutOrder(*order); err != nil {
			return err
		}
		return tx.AppendOutbox(outbox.OrderUpserted(*order))
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.nudgeSync()
	return *order, nil
}

// UpdateOrderStatus moves a pending order to Fulfilled or Cancelled.
// Fulfilling a sales order first checks stock for every line and aborts
// with no mutation at all if any line is short; fulfillment then applies
// the signed stock deltas and the status flip in one transaction.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, ErrOrderAlreadyProcessed
	}
	if status != domain.OrderStatusFulfilled && status != domain.OrderStatusCancelled {
		return domain.Order{}, fmt.Errorf("%w: invalid target status %q", ErrValidation, status)
	}

	var updated []domain.Product
	if status == domain.OrderStatusFulfilled {
		updated = make([]domain.Product, 0, len(order.Items))
		seen := make(map[int64]int, len(order.Items))
		for _, item := range order.Items {
			idx, ok := seen[item.ProductID]
			if !ok {
				product, err := s.repo.GetProduct(ctx, item.ProductID)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return domain.Order{}, fmt.Errorf("%w: unknown product %d", ErrValidation, item.ProductID)
					}
					return domain.Order{}, err
				}
				updated = append(updated, *product)
				idx = len(updated) - 1
				seen[item.ProductID] = idx
			}
			if order.Kind == domain.OrderKindSales {
				if updated[idx].Stock < item.Qty {
					return domain.Order{}, fmt.Errorf("%w: product %d has %.2f, order needs %.2f",
						store.ErrInsufficientStock, item.ProductID, updated[idx].Stock, item.Qty)
				}
				updated[idx].Stock -= item.Qty
			} else {
				updated[idx].Stock += item.Qty
			}
		}
	}

	order.Status = status
	err = s.repo.Write(ctx, func(tx store.WriteTx) error {
		if len(updated) > 0 {
			if err := tx.BulkPutProducts(updated); err != nil {
				return err
			}
			for _, p := range updated {
				if err := tx.AppendOutbox(outbox.ProductUpserted(p)); err != nil {
					return err
				}
			}
		}
		if err := tx.PutOrder(*order); err != nil {
			return err
		}
		return tx.AppendOutbox(outbox.OrderUpserted(*order))
	})
	if err != nil {
		return domain.Order{}, err
	}

	if len(updated) > 0 {
		s.InvalidateCatalog(ctx)
	}
	s.nudgeSync()
	return *order, nil
}

func normalizeOrderItems(items []domain.OrderItem) ([]domain.OrderItem, float64, error) {
	if len(items) == 0 {
		return nil, 0, fmt.Errorf("%w: order has no items", ErrValidation)
	}
	normalized := make([]domain.OrderItem, 0, len(items))
	total := 0.0
	for _, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Qty <= 0 || item.Price < 0 {
			return nil, 0, fmt.Errorf("%w: bad order line for product %d", ErrValidation, item.ProductID)
		}
		normalized = append(normalized, item)
		total += item.Qty * item.Price
	}
	return normalized, round2(total), nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, ok, err := s.catalog.Get(ctx, catalogCacheKey); err != nil {
		log.Printf("[service] WARN: catalog cache read: %v", err)
	} else if ok {
		return cached, nil
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.Set(ctx, catalogCacheKey, products, catalogCacheTTL); err != nil {
		log.Printf("[service] WARN: catalog cache write: %v", err)
	}
	return products, nil
}

// InvalidateCatalog drops the cached product listing. The sync engine calls
// this after folding in remote updates.
func (s *Service) InvalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx, catalogCacheKey); err != nil {
		log.Printf("[service] WARN: catalog cache invalidate: %v", err)
	}
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, mobile string) (*domain.Customer, error) {
	return s.repo.GetCustomer(ctx, strings.TrimSpace(mobile))
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx)
}

func (s *Service) ListOrders(ctx context.Context, kind domain.OrderKind) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, kind)
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) ListShops(ctx context.Context) ([]domain.Shop, error) {
	return s.repo.ListShops(ctx)
}

func (s *Service) GetShop(ctx context.Context, id int64) (*domain.Shop, error) {
	return s.repo.GetShop(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i] = users[i].Sanitized()
	}
	return users, nil
}

// VerifyLocalPassword backs offline login: it checks the candidate against
// the locally stored bcrypt hash. Users pulled from the remote authority
// carry no hash and cannot log in offline.
func (s *Service) VerifyLocalPassword(ctx context.Context, username string, password string) (domain.User, error) {
	user, err := s.repo.GetUser(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, store.ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Printf("[service] WARN: offline password check failed for %s", username)
		return domain.User{}, store.ErrNotFound
	}
	return user.Sanitized(), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
