package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	DefaultCatalogTTL      = 10 * time.Minute
	DefaultCatalogPageSize = 100
	defaultPriceFanOut     = 8
	refreshKey             = "catalog"
)

type CatalogConfig struct {
	TTL         time.Duration
	PageSize    int
	PriceFanOut int
	Now         func() time.Time
	Logger      log.FieldLogger
}

// CatalogService is a read-through cache of the provider's product catalog.
// Concurrent stale reads share one refresh; the snapshot is swapped whole.
type CatalogService struct {
	provider port.CommerceProvider
	ttl      time.Duration
	pageSize int
	fanOut   int
	now      func() time.Time
	logger   log.FieldLogger

	mu       sync.RWMutex
	snapshot *domain.CacheSnapshot
	sfg      singleflight.Group
}

func NewCatalogService(provider port.CommerceProvider, cfg CatalogConfig) *CatalogService {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCatalogTTL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultCatalogPageSize
	}
	if cfg.PriceFanOut <= 0 {
		cfg.PriceFanOut = defaultPriceFanOut
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	return &CatalogService{
		provider: provider,
		ttl:      cfg.TTL,
		pageSize: cfg.PageSize,
		fanOut:   cfg.PriceFanOut,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
}

// GetCatalog returns the cached catalog, refreshing it first when stale. If a
// refresh fails while an older snapshot exists, the older snapshot is served.
//
// The returned slice is the caller's own, but each product's Images and
// Metadata are shared with the cache and must not be modified.
func (s *CatalogService) GetCatalog(ctx context.Context) ([]domain.ProductSummary, error) {
	snap := s.Snapshot()
	if snap.Fresh(s.now(), s.ttl) {
		s.logger.Debug("serving cached product metadata")
		return slices.Clone(snap.Products), nil
	}

	// The refresh is detached from the caller so one aborted request does not
	// fail every reader waiting on the same flight.
	ch := s.sfg.DoChan(refreshKey, func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return slices.Clone(res.Val.(*domain.CacheSnapshot).Products), nil
		}
		if errors.Is(res.Err, ErrMissingCredential) {
			return nil, res.Err
		}
		if snap != nil {
			s.logger.WithError(res.Err).Warn("catalog refresh failed, serving stale snapshot")
			return slices.Clone(snap.Products), nil
		}
		return nil, res.Err
	}
}

// Snapshot returns the current snapshot, nil before the first successful
// refresh.
func (s *CatalogService) Snapshot() *domain.CacheSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *CatalogService) refresh(ctx context.Context) (*domain.CacheSnapshot, error) {
	// Another flight may have finished between the caller's check and ours.
	if snap := s.Snapshot(); snap.Fresh(s.now(), s.ttl) {
		return snap, nil
	}

	startedAt := s.now()
	s.logger.Info("fetching product metadata from commerce provider")

	products, err := s.listAllProducts(ctx)
	if err != nil {
		return nil, s.unavailable(err)
	}

	summaries, err := s.buildSummaries(ctx, products)
	if err != nil {
		return nil, s.unavailable(err)
	}

	next := &domain.CacheSnapshot{Products: summaries, FetchedAt: startedAt}

	s.mu.Lock()
	s.snapshot = next
	s.mu.Unlock()

	s.logger.WithField("products", len(summaries)).Info("catalog refreshed")
	return next, nil
}

func (s *CatalogService) unavailable(err error) error {
	if errors.Is(err, ErrMissingCredential) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
}

func (s *CatalogService) listAllProducts(ctx context.Context) ([]domain.RemoteProduct, error) {
	var (
		all    []domain.RemoteProduct
		cursor string
	)
	for {
		page, err := s.provider.ListProducts(ctx, port.ListParams{Limit: s.pageSize, StartingAfter: cursor})
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		all = append(all, page.Products...)
		if !page.HasMore || len(page.Products) == 0 {
			return all, nil
		}
		cursor = page.Products[len(page.Products)-1].ID
	}
}

func (s *CatalogService) buildSummaries(ctx context.Context, products []domain.RemoteProduct) ([]domain.ProductSummary, error) {
	summaries := make([]domain.ProductSummary, len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for i := range products {
		g.Go(func() error {
			price, err := s.resolveDefaultPrice(gctx, &products[i])
			if err != nil {
				return err
			}
			summaries[i] = summarize(products[i], price)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *CatalogService) resolveDefaultPrice(ctx context.Context, product *domain.RemoteProduct) (*domain.RemotePrice, error) {
	if product.DefaultPrice != nil {
		return product.DefaultPrice, nil
	}
	if product.DefaultPriceID == "" {
		return nil, nil
	}
	price, err := s.provider.GetPrice(ctx, product.DefaultPriceID, false)
	if err != nil {
		return nil, fmt.Errorf("resolve price %s for product %s: %w", product.DefaultPriceID, product.ID, err)
	}
	return price, nil
}

func summarize(product domain.RemoteProduct, price *domain.RemotePrice) domain.ProductSummary {
	var (
		priceID string
		amount  int64
	)
	if price != nil {
		priceID = price.ID
		if price.UnitAmount != nil {
			amount = *price.UnitAmount
		}
	}

	images := product.Images
	if images == nil {
		images = []string{}
	}
	var primary *string
	if len(images) > 0 {
		first := images[0]
		primary = &first
	}
	metadata := product.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return domain.ProductSummary{
		ID:           product.ID,
		Name:         product.Name,
		PriceID:      priceID,
		UnitPrice:    FormatMinorUnits(amount),
		ImagePrimary: primary,
		Images:       images,
		Metadata:     metadata,
	}
}

// FormatMinorUnits renders an amount in minor units as a two-decimal major
// unit string, e.g. 1999 -> "19.99".
func FormatMinorUnits(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
