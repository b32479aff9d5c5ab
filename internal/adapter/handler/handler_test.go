package handler

import (
	"context"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

// stubProvider serves a fixed catalog and price table.
type stubProvider struct {
	mu         sync.Mutex
	products   []domain.RemoteProduct
	prices     map[string]*domain.RemotePrice
	listErr    error
	listCalls  int
	priceCalls int
	sessions   int
}

func newStubProvider() *stubProvider {
	amount := int64(1999)
	product := domain.RemoteProduct{
		ID:             "prod_kit",
		Name:           "Tracker Kit",
		Active:         true,
		Images:         []string{"https://img/kit.png"},
		Metadata:       map[string]string{"stock": "3", "sku": "TK-1"},
		DefaultPriceID: "price_kit",
	}
	retired := domain.RemoteProduct{ID: "prod_old", Name: "Old Board", Active: false}
	corrupt := domain.RemoteProduct{ID: "prod_bad", Name: "Bad Data", Active: true, Metadata: map[string]string{"stock": "n/a"}}

	return &stubProvider{
		products: []domain.RemoteProduct{product},
		prices: map[string]*domain.RemotePrice{
			"price_kit": {ID: "price_kit", UnitAmount: &amount, Product: &product, Active: true},
			"price_old": {ID: "price_old", UnitAmount: &amount, Product: &retired, Active: true},
			"price_bad": {ID: "price_bad", UnitAmount: &amount, Product: &corrupt, Active: true},
		},
	}
}

func (s *stubProvider) ListProducts(ctx context.Context, params port.ListParams) (port.ProductPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return port.ProductPage{}, s.listErr
	}
	return port.ProductPage{Products: s.products}, nil
}

func (s *stubProvider) GetPrice(ctx context.Context, priceID string, expandProduct bool) (*domain.RemotePrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceCalls++
	price, ok := s.prices[priceID]
	if !ok {
		return nil, &port.RemoteError{Status: 404, Message: "No such price"}
	}
	return price, nil
}

func (s *stubProvider) CreateCheckoutSession(ctx context.Context, items []domain.ValidatedLineItem, opts domain.CheckoutOptions) (*domain.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions++
	return &domain.CheckoutSession{ID: "cs_1", ClientSecret: "cs_1_secret"}, nil
}

type testServices struct {
	catalog   *service.CatalogService
	validator *service.CartValidator
	checkout  *service.CheckoutService
	logger    *log.Logger
}

func newTestServices(p port.CommerceProvider, cache port.CheckoutCacheRepository) testServices {
	logger := log.New()
	logger.SetOutput(io.Discard)

	validator := service.NewCartValidator(p, logger)
	return testServices{
		catalog:   service.NewCatalogService(p, service.CatalogConfig{Logger: logger}),
		validator: validator,
		checkout: service.NewCheckoutService(validator, p, cache, service.CheckoutConfig{
			SiteURL:          "http://localhost:4321",
			AllowedCountries: []string{"US"},
		}, logger),
		logger: logger,
	}
}

// memoryCheckoutCache is an in-process CheckoutCacheRepository.
type memoryCheckoutCache struct {
	mu       sync.Mutex
	claimed  map[string]bool
	sessions map[string]domain.StoredCheckout
}

func newMemoryCheckoutCache() *memoryCheckoutCache {
	return &memoryCheckoutCache{claimed: map[string]bool{}, sessions: map[string]domain.StoredCheckout{}}
}

func (m *memoryCheckoutCache) ClaimIdempotencyKey(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *memoryCheckoutCache) ReleaseIdempotencyKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, key)
	return nil
}

func (m *memoryCheckoutCache) GetSession(_ context.Context, key string) (*domain.StoredCheckout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *memoryCheckoutCache) SaveSession(_ context.Context, key string, checkout domain.StoredCheckout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = checkout
	return nil
}

// credentialLessProvider behaves like a provider client with no API key.
type credentialLessProvider struct{}

func (credentialLessProvider) ListProducts(context.Context, port.ListParams) (port.ProductPage, error) {
	return port.ProductPage{}, port.ErrMissingCredential
}

func (credentialLessProvider) GetPrice(context.Context, string, bool) (*domain.RemotePrice, error) {
	return nil, port.ErrMissingCredential
}

func (credentialLessProvider) CreateCheckoutSession(context.Context, []domain.ValidatedLineItem, domain.CheckoutOptions) (*domain.CheckoutSession, error) {
	return nil, port.ErrMissingCredential
}
