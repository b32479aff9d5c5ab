package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// StockMetadataKey is the product metadata field holding the available stock.
const StockMetadataKey = "stock"

var ErrStockNotInteger = errors.New("stock metadata is not an integer")

// ProductSummary is the catalog view of a product with its default price.
// Values are rebuilt on every refresh and must be treated as read-only.
type ProductSummary struct {
	ID           string
	Name         string
	PriceID      string
	UnitPrice    string // major units, two decimals
	ImagePrimary *string
	Images       []string
	Metadata     map[string]string
}

// PublicMetadata returns a copy of the metadata without internal fields.
func (p ProductSummary) PublicMetadata() map[string]string {
	out := make(map[string]string, len(p.Metadata))
	for k, v := range p.Metadata {
		if k == StockMetadataKey {
			continue
		}
		out[k] = v
	}
	return out
}

type CacheSnapshot struct {
	Products  []ProductSummary
	FetchedAt time.Time
}

// Fresh reports whether the snapshot is younger than ttl at now.
func (s *CacheSnapshot) Fresh(now time.Time, ttl time.Duration) bool {
	return s != nil && now.Sub(s.FetchedAt) < ttl
}

type RemoteProduct struct {
	ID             string
	Name           string
	Active         bool
	Images         []string
	Metadata       map[string]string
	DefaultPriceID string
	DefaultPrice   *RemotePrice // set when the provider expanded it
}

type RemotePrice struct {
	ID         string
	ProductID  string
	Product    *RemoteProduct // set when the provider expanded it
	UnitAmount *int64         // minor units
	Currency   string
	Active     bool
}

// DisplayName is the product name, or fallback when the name is empty.
func (p *RemoteProduct) DisplayName(fallback string) string {
	if p == nil || p.Name == "" {
		return fallback
	}
	return p.Name
}

// Stock reads the optional stock field. tracked is false when the field is
// absent; a present but unparseable value returns ErrStockNotInteger.
func (p *RemoteProduct) Stock() (stock int, tracked bool, err error) {
	if p == nil || p.Metadata == nil {
		return 0, false, nil
	}
	raw, ok := p.Metadata[StockMetadataKey]
	if !ok {
		return 0, false, nil
	}
	stock, err = strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, true, ErrStockNotInteger
	}
	return stock, true, nil
}
