package service

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// Mock CommerceProvider
type mockProvider struct {
	mu sync.Mutex

	pages    []port.ProductPage
	prices   map[string]*domain.RemotePrice
	listErr  error
	priceErr map[string]error
	gate     chan struct{} // when set, ListProducts blocks until closed

	listCalls    int
	listParams   []port.ListParams
	priceCalls   []string
	sessionCalls [][]domain.ValidatedLineItem
	sessionOpts  domain.CheckoutOptions
	sessionErr   error
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		prices:   make(map[string]*domain.RemotePrice),
		priceErr: make(map[string]error),
	}
}

func (m *mockProvider) ListProducts(ctx context.Context, params port.ListParams) (port.ProductPage, error) {
	m.mu.Lock()
	gate := m.gate
	m.listCalls++
	m.listParams = append(m.listParams, params)
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return port.ProductPage{}, m.listErr
	}
	if len(m.pages) == 0 {
		return port.ProductPage{}, nil
	}
	idx := 0
	if params.StartingAfter != "" {
		for i, page := range m.pages {
			if len(page.Products) > 0 && page.Products[len(page.Products)-1].ID == params.StartingAfter {
				idx = i + 1
			}
		}
	}
	return m.pages[idx], nil
}

func (m *mockProvider) GetPrice(ctx context.Context, priceID string, expandProduct bool) (*domain.RemotePrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceCalls = append(m.priceCalls, priceID)
	if err := m.priceErr[priceID]; err != nil {
		return nil, err
	}
	price, ok := m.prices[priceID]
	if !ok {
		return nil, &port.RemoteError{Status: 404, Message: "No such price: '" + priceID + "'"}
	}
	cp := *price
	if !expandProduct {
		cp.Product = nil
	}
	return &cp, nil
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, items []domain.ValidatedLineItem, opts domain.CheckoutOptions) (*domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionCalls = append(m.sessionCalls, items)
	m.sessionOpts = opts
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	return &domain.CheckoutSession{ID: "cs_test_1", ClientSecret: "cs_test_1_secret"}, nil
}

func (m *mockProvider) setListErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

func (m *mockProvider) calls() (list int, prices int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls, len(m.priceCalls)
}

// addPrice registers a price whose product is returned when expanded.
func (m *mockProvider) addPrice(priceID string, amount int64, product domain.RemoteProduct) {
	product.DefaultPriceID = priceID
	m.prices[priceID] = &domain.RemotePrice{
		ID:         priceID,
		ProductID:  product.ID,
		Product:    &product,
		UnitAmount: &amount,
		Currency:   "usd",
		Active:     true,
	}
}

// Mock CheckoutCacheRepository
type mockCheckoutCache struct {
	mu       sync.Mutex
	claimed  map[string]bool
	sessions map[string]domain.StoredCheckout
	released []string
}

func newMockCheckoutCache() *mockCheckoutCache {
	return &mockCheckoutCache{
		claimed:  make(map[string]bool),
		sessions: make(map[string]domain.StoredCheckout),
	}
}

func (m *mockCheckoutCache) ClaimIdempotencyKey(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *mockCheckoutCache) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, key)
	m.released = append(m.released, key)
	return nil
}

func (m *mockCheckoutCache) GetSession(ctx context.Context, key string) (*domain.StoredCheckout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	checkout, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	return &checkout, nil
}

func (m *mockCheckoutCache) SaveSession(ctx context.Context, key string, checkout domain.StoredCheckout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = checkout
	return nil
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
