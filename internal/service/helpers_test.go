package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	paid    []*models.OrderPaidEvent
	changed []*models.OrderStatusChangedEvent
}

func (p *recordingPublisher) PublishOrderPaid(ctx context.Context, e *models.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, e)
	return nil
}

func (p *recordingPublisher) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return nil
}

type sentMessage struct {
	Recipient, Subject, Body string
}

type recordingSender struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

func (s *recordingSender) Send(ctx context.Context, recipient, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{recipient, subject, body})
	return nil
}

// hookStore lets tests run code before the next transaction opens and wrap
// its Tx. Each hook fires once, so a hook may itself open transactions.
type hookStore struct {
	*store.MemoryStore
	beforeTx func()
	wrapTx   func(store.Tx) store.Tx
}

func (s *hookStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if s.beforeTx != nil {
		hook := s.beforeTx
		s.beforeTx = nil
		hook()
	}

	wrap := s.wrapTx
	if wrap != nil {
		s.wrapTx = nil
	}
	return s.MemoryStore.WithTx(ctx, func(tx store.Tx) error {
		if wrap != nil {
			tx = wrap(tx)
		}
		return fn(tx)
	})
}

type testEnv struct {
	t         *testing.T
	store     *hookStore
	publisher *recordingPublisher
	sender    *recordingSender
	catalog   *CatalogService
	carts     *CartService
	checkout  *CheckoutService
	lifecycle *LifecycleService
	accounts  *AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := &hookStore{MemoryStore: store.NewMemoryStore(5 * time.Second)}
	pub := &recordingPublisher{}
	sender := &recordingSender{}

	return &testEnv{
		t:         t,
		store:     st,
		publisher: pub,
		sender:    sender,
		catalog:   NewCatalogService(st),
		carts:     NewCartService(st, st),
		checkout:  NewCheckoutService(st, NewStockLedger(), pub, sender, "https://shop.example.com/"),
		lifecycle: NewLifecycleService(st, pub),
		accounts:  NewAccountService(st),
	}
}

func (e *testEnv) product(name, price string, stock int) *models.Product {
	e.t.Helper()
	p, err := e.catalog.CreateProduct(context.Background(), &ProductInput{
		SKU:   name,
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	})
	require.NoError(e.t, err)
	return p
}

func (e *testEnv) addToCart(userID, productID int64, qty int) {
	e.t.Helper()
	_, err := e.carts.Add(context.Background(), userID, productID, qty)
	require.NoError(e.t, err)
}

func (e *testEnv) stock(productID int64) int {
	e.t.Helper()
	p, err := e.store.GetProductByID(context.Background(), productID)
	require.NoError(e.t, err)
	return p.Stock
}

// placeOrder checks out a one-line cart and returns the committed order
func (e *testEnv) placeOrder(userID int64) *models.Order {
	e.t.Helper()
	p := e.product("item", "3.00", 10)
	e.addToCart(userID, p.ID, 1)

	res, err := e.checkout.Checkout(context.Background(), &CheckoutRequest{
		UserID:      userID,
		Address:     "1 Main St",
		NotifyEmail: "buyer@example.com",
	})
	require.NoError(e.t, err)
	return res.Order
}
