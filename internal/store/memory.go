package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"checkout-service/internal/models"
)

// MemoryStore is an in-process implementation of the store contract.
// Row locks are per-key channels acquired in the same canonical order as the
// Postgres store; transactional writes are staged and applied in one critical
// section on commit.
type MemoryStore struct {
	mu          sync.Mutex
	lockTimeout time.Duration
	nextID      int64

	products map[int64]*models.Product
	cart     map[int64]*models.CartItem
	orders   map[int64]*models.Order
	items    map[int64][]models.OrderItem
	events   map[string]string
	rowLocks map[string]chan struct{}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		lockTimeout: lockTimeout,
		products:    make(map[int64]*models.Product),
		cart:        make(map[int64]*models.CartItem),
		orders:      make(map[int64]*models.Order),
		items:       make(map[int64][]models.OrderItem),
		events:      make(map[string]string),
		rowLocks:    make(map[string]chan struct{}),
	}
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func productKey(id int64) string  { return fmt.Sprintf("product:%d", id) }
func cartKey(userID int64) string { return fmt.Sprintf("cart:%d", userID) }

func (s *MemoryStore) rowLock(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.rowLocks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rowLocks[key] = ch
	}
	return ch
}

// lockRow blocks until key is free, the lock timeout elapses or ctx is done
func (s *MemoryStore) lockRow(ctx context.Context, key string) (func(), error) {
	ch := s.rowLock(key)
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, key, ctx.Err())
	}
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	if o.UserID != nil {
		uid := *o.UserID
		c.UserID = &uid
	}
	if o.IdempotencyKey != nil {
		key := *o.IdempotencyKey
		c.IdempotencyKey = &key
	}
	return &c
}

// GetProductByID retrieves a product by ID
func (s *MemoryStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	c := *p
	return &c, nil
}

// GetProducts retrieves all products
func (s *MemoryStore) GetProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateProduct inserts a catalog product
func (s *MemoryStore) CreateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	p.ID = s.id()
	p.CreatedAt, p.UpdatedAt = now, now
	c := *p
	s.products[p.ID] = &c
	return nil
}

// DeleteProduct removes a product, cascading cart rows and detaching order items
func (s *MemoryStore) DeleteProduct(ctx context.Context, id int64) error {
	unlock, err := s.lockRow(ctx, productKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	delete(s.products, id)

	for itemID, it := range s.cart {
		if it.ProductID == id {
			delete(s.cart, itemID)
		}
	}
	for orderID, items := range s.items {
		for i := range items {
			if items[i].ProductID != nil && *items[i].ProductID == id {
				items[i].ProductID = nil
			}
		}
		s.items[orderID] = items
	}
	return nil
}

// GetCartItem retrieves the user's row for a product
func (s *MemoryStore) GetCartItem(ctx context.Context, userID, productID int64) (*models.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.cart {
		if it.UserID == userID && it.ProductID == productID {
			c := *it
			return &c, nil
		}
	}
	return nil, fmt.Errorf("cart item for product %d: %w", productID, ErrNotFound)
}

func (s *MemoryStore) cartLine(it *models.CartItem) models.CartLine {
	line := models.CartLine{CartItem: *it}
	if p, ok := s.products[it.ProductID]; ok {
		line.ProductName = p.Name
		line.UnitPrice = p.Price
		line.ProductStock = p.Stock
	}
	return line
}

// GetCartLine retrieves one of the user's cart rows with its product snapshot
func (s *MemoryStore) GetCartLine(ctx context.Context, userID, itemID int64) (*models.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.cart[itemID]
	if !ok || it.UserID != userID {
		return nil, fmt.Errorf("cart item %d: %w", itemID, ErrNotFound)
	}
	line := s.cartLine(it)
	return &line, nil
}

// CreateCartItem inserts a new cart row
func (s *MemoryStore) CreateCartItem(ctx context.Context, item *models.CartItem) error {
	unlock, err := s.lockRow(ctx, cartKey(item.UserID))
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[item.ProductID]; !ok {
		return fmt.Errorf("product %d: %w", item.ProductID, ErrNotFound)
	}
	for _, it := range s.cart {
		if it.UserID == item.UserID && it.ProductID == item.ProductID {
			return fmt.Errorf("%w: cart_items_user_id_product_id_key", ErrDuplicateKey)
		}
	}

	item.ID = s.id()
	item.AddedAt = time.Now()
	c := *item
	s.cart[item.ID] = &c
	return nil
}

// UpdateCartItemQuantity sets the quantity of one cart row
func (s *MemoryStore) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	s.mu.Lock()
	it, ok := s.cart[itemID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cart item %d: %w", itemID, ErrNotFound)
	}

	unlock, err := s.lockRow(ctx, cartKey(it.UserID))
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok = s.cart[itemID]; !ok {
		return fmt.Errorf("cart item %d: %w", itemID, ErrNotFound)
	}
	it.Quantity = quantity
	return nil
}

// DeleteCartItem removes one of the user's cart rows
func (s *MemoryStore) DeleteCartItem(ctx context.Context, userID, itemID int64) error {
	unlock, err := s.lockRow(ctx, cartKey(userID))
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.cart[itemID]
	if !ok || it.UserID != userID {
		return fmt.Errorf("cart item %d: %w", itemID, ErrNotFound)
	}
	delete(s.cart, itemID)
	return nil
}

// ListCartLines lists the user's cart joined with current product data
func (s *MemoryStore) ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := []models.CartLine{}
	for _, it := range s.cart {
		if it.UserID == userID {
			lines = append(lines, s.cartLine(it))
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

// ClearCart deletes all of the user's cart rows
func (s *MemoryStore) ClearCart(ctx context.Context, userID int64) error {
	unlock, err := s.lockRow(ctx, cartKey(userID))
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearCartLocked(userID)
	return nil
}

func (s *MemoryStore) clearCartLocked(userID int64) {
	for id, it := range s.cart {
		if it.UserID == userID {
			delete(s.cart, id)
		}
	}
}

// GetOrderByID retrieves an order by ID
func (s *MemoryStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return copyOrder(o), nil
}

// GetOrderByIdempotencyKey returns nil, nil when the user has no order with the key
func (s *MemoryStore) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.OwnedBy(userID) && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return copyOrder(o), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) sortedOrders(keep func(*models.Order) bool) []models.Order {
	out := []models.Order{}
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *MemoryStore) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedOrders(func(o *models.Order) bool { return o.OwnedBy(userID) }), nil
}

// ListOrders retrieves all orders, newest first, optionally filtered by status
func (s *MemoryStore) ListOrders(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedOrders(func(o *models.Order) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, st := range statuses {
			if o.Status == st {
				return true
			}
		}
		return false
	}), nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *MemoryStore) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.OrderItem, 0, len(s.items[orderID]))
	for _, it := range s.items[orderID] {
		c := it
		if it.ProductID != nil {
			pid := *it.ProductID
			c.ProductID = &pid
		}
		out = append(out, c)
	}
	return out, nil
}

// SetConfirmCode stores the shipment confirmation token on an order
func (s *MemoryStore) SetConfirmCode(ctx context.Context, orderID int64, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	o.ConfirmCode = code
	o.UpdatedAt = time.Now()
	return nil
}

// CompareAndSetOrderStatus moves an order from one status to another
func (s *MemoryStore) CompareAndSetOrderStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return true, nil
}

// IsEventProcessed checks if an event has been processed
func (s *MemoryStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.events[eventID]
	return ok, nil
}

// MarkEventProcessed marks an event as processed
func (s *MemoryStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		s.events[eventID] = eventType
	}
	return nil
}

// WithTx runs fn with staged writes that are applied only if fn returns nil
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{s: s, stock: make(map[int64]int), saves: make(map[int64]models.Product)}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

type memTx struct {
	s        *MemoryStore
	unlocks  []func()
	held     map[string]bool
	stock    map[int64]int
	saves    map[int64]models.Product
	orders   []*models.Order
	items    []*models.OrderItem
	clears   []int64
	detaches []int64
}

func (t *memTx) lock(ctx context.Context, key string) error {
	if t.held == nil {
		t.held = make(map[string]bool)
	}
	if t.held[key] {
		return nil
	}
	unlock, err := t.s.lockRow(ctx, key)
	if err != nil {
		return err
	}
	t.held[key] = true
	t.unlocks = append(t.unlocks, unlock)
	return nil
}

func (t *memTx) release() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
}

func (t *memTx) LockCart(ctx context.Context, userID int64) ([]models.CartItem, error) {
	if err := t.lock(ctx, cartKey(userID)); err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	items := []models.CartItem{}
	for _, it := range t.s.cart {
		if it.UserID == userID {
			items = append(items, *it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (t *memTx) LockProductsForUpdate(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	ids = SortedUniqueIDs(ids)
	for _, id := range ids {
		if err := t.lock(ctx, productKey(id)); err != nil {
			return nil, fmt.Errorf("failed to lock products: %w", err)
		}
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	locked := make(map[int64]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			c := *p
			locked[id] = &c
		}
	}
	return locked, nil
}

func (t *memTx) UpdateStock(ctx context.Context, productID int64, stock int) error {
	t.s.mu.Lock()
	_, ok := t.s.products[productID]
	t.s.mu.Unlock()
	if !ok {
		return fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	t.stock[productID] = stock
	return nil
}

func (t *memTx) SaveProduct(ctx context.Context, p *models.Product) error {
	if !t.held[productKey(p.ID)] {
		return fmt.Errorf("product %d is not locked by this transaction", p.ID)
	}

	t.s.mu.Lock()
	_, ok := t.s.products[p.ID]
	t.s.mu.Unlock()
	if !ok {
		return fmt.Errorf("product %d: %w", p.ID, ErrNotFound)
	}

	p.UpdatedAt = time.Now()
	t.saves[p.ID] = *p
	return nil
}

func (t *memTx) CreateOrder(ctx context.Context, order *models.Order) error {
	t.s.mu.Lock()
	order.ID = t.s.id()
	t.s.mu.Unlock()

	now := time.Now()
	order.CreatedAt, order.UpdatedAt = now, now
	t.orders = append(t.orders, copyOrder(order))
	return nil
}

func (t *memTx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	t.s.mu.Lock()
	item.ID = t.s.id()
	t.s.mu.Unlock()

	c := *item
	t.items = append(t.items, &c)
	return nil
}

func (t *memTx) ClearCart(ctx context.Context, userID int64) error {
	if err := t.lock(ctx, cartKey(userID)); err != nil {
		return err
	}
	t.clears = append(t.clears, userID)
	return nil
}

func (t *memTx) DetachOrders(ctx context.Context, userID int64) error {
	t.detaches = append(t.detaches, userID)
	return nil
}

// commit validates constraints, then applies every staged write at once
func (t *memTx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range t.saves {
		if p.Stock < 0 {
			return fmt.Errorf("product %d: stock would become negative", id)
		}
		if _, ok := s.products[id]; !ok {
			return fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
	}
	for id, stock := range t.stock {
		if stock < 0 {
			return fmt.Errorf("product %d: stock would become negative", id)
		}
		if _, ok := s.products[id]; !ok {
			return fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
	}
	for _, o := range t.orders {
		if o.IdempotencyKey == nil {
			continue
		}
		if o.UserID == nil {
			continue
		}
		for _, existing := range s.orders {
			if existing.OwnedBy(*o.UserID) && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *o.IdempotencyKey {
				return fmt.Errorf("%w: idx_orders_user_idempotency_key", ErrDuplicateKey)
			}
		}
	}

	now := time.Now()
	for id, p := range t.saves {
		p.CreatedAt = s.products[id].CreatedAt
		c := p
		s.products[id] = &c
	}
	for id, stock := range t.stock {
		s.products[id].Stock = stock
		s.products[id].UpdatedAt = now
	}
	for _, o := range t.orders {
		s.orders[o.ID] = o
	}
	for _, it := range t.items {
		s.items[it.OrderID] = append(s.items[it.OrderID], *it)
	}
	for _, userID := range t.clears {
		s.clearCartLocked(userID)
	}
	for _, userID := range t.detaches {
		for _, o := range s.orders {
			if o.OwnedBy(userID) {
				o.UserID = nil
				o.UpdatedAt = now
			}
		}
	}
	return nil
}
