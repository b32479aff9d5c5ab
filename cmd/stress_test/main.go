package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/adapter/stripe"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

const totalRequests = 50

// countingProvider records how many list calls reach the real provider.
type countingProvider struct {
	port.CommerceProvider
	lists atomic.Int32
}

func (p *countingProvider) ListProducts(ctx context.Context, params port.ListParams) (port.ProductPage, error) {
	p.lists.Add(1)
	return p.CommerceProvider.ListProducts(ctx, params)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	provider := &countingProvider{CommerceProvider: stripe.NewClient(stripe.Config{
		BaseURL: cfg.StripeBaseURL,
		APIKey:  cfg.StripeKey,
		Timeout: cfg.RemoteTimeout,
	})}
	catalog := service.NewCatalogService(provider, service.CatalogConfig{
		TTL:      cfg.CatalogTTL,
		PageSize: cfg.CatalogPageSize,
	})

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32
	var sizes sync.Map

	// Spawn concurrent cold reads
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			products, err := catalog.GetCatalog(context.Background())
			if err != nil {
				failCount.Add(1)
				return
			}
			successCount.Add(1)
			sizes.Store(id, len(products))
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()
	lists := provider.lists.Load()
	snapshot := catalog.Snapshot()

	fmt.Println("========== CATALOG STRESS TEST ==========")
	fmt.Printf("Concurrent Reads: %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("List Calls:       %d\n", lists)
	fmt.Printf("Products:         %d\n", productCount(snapshot))
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if fail == 0 && success == totalRequests {
		fmt.Println("PASS: every read returned a catalog")
	} else {
		fmt.Printf("FAIL: expected %d successful reads, got %d\n", totalRequests, success)
	}

	// Pagination may add list calls, but only for a single refresh.
	maxPages := int32(productCount(snapshot)/cfg.CatalogPageSize + 1)
	if lists <= maxPages {
		fmt.Println("PASS: concurrent reads shared one refresh")
	} else {
		fmt.Printf("FAIL: expected at most %d list calls, got %d\n", maxPages, lists)
	}

	consistent := true
	sizes.Range(func(_, v any) bool {
		if v.(int) != productCount(snapshot) {
			consistent = false
		}
		return consistent
	})
	if consistent {
		fmt.Println("PASS: every reader saw the same snapshot")
	} else {
		fmt.Println("FAIL: readers saw different snapshots")
	}
}

func productCount(s *domain.CacheSnapshot) int {
	if s == nil {
		return 0
	}
	return len(s.Products)
}
