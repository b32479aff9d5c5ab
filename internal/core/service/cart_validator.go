package service

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// CartValidator checks every cart line against live provider data. It never
// reads the catalog cache.
type CartValidator struct {
	provider port.CommerceProvider
	logger   log.FieldLogger
}

func NewCartValidator(provider port.CommerceProvider, logger log.FieldLogger) *CartValidator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &CartValidator{provider: provider, logger: logger}
}

// Validate returns one validated item per input line, in input order, or the
// first failure encountered. Lines are looked up one at a time.
func (v *CartValidator) Validate(ctx context.Context, items []domain.CartLineRequest) ([]domain.ValidatedLineItem, error) {
	if err := checkCartShape(items); err != nil {
		return nil, err
	}

	validated := make([]domain.ValidatedLineItem, 0, len(items))
	for i, item := range items {
		if err := v.checkLine(ctx, i, item); err != nil {
			return nil, err
		}
		validated = append(validated, domain.ValidatedLineItem{
			PriceID:  item.PriceID,
			Quantity: item.Quantity,
		})
	}
	return validated, nil
}

func checkCartShape(items []domain.CartLineRequest) error {
	if len(items) == 0 {
		return ErrInvalidCartInput
	}
	for i, item := range items {
		if strings.TrimSpace(item.PriceID) == "" || item.Quantity < 1 {
			return &CartError{Kind: ErrInvalidCartInput, Line: i, PriceID: item.PriceID}
		}
	}
	return nil
}

func (v *CartValidator) checkLine(ctx context.Context, line int, item domain.CartLineRequest) error {
	logger := v.logger.WithField("price_id", item.PriceID)

	price, err := v.provider.GetPrice(ctx, item.PriceID, true)
	if errors.Is(err, port.ErrMissingCredential) {
		return err
	}
	if err == nil && (price == nil || price.Product == nil) {
		err = errors.New("price has no product")
	}
	if err != nil {
		logger.WithError(err).Error("error retrieving price")
		return &CartError{Kind: ErrRemoteLookupFailed, Line: line, PriceID: item.PriceID, Cause: err}
	}

	product := price.Product
	name := product.DisplayName(item.PriceID)

	stock, tracked, err := product.Stock()
	if err != nil {
		logger.WithField("product_id", product.ID).WithError(err).Error("invalid stock value")
		return &CartError{Kind: ErrStockDataCorrupt, Line: line, PriceID: item.PriceID, Product: name, Cause: err}
	}
	if tracked && stock < item.Quantity {
		return &CartError{Kind: ErrInsufficientStock, Line: line, PriceID: item.PriceID, Product: name, Available: stock}
	}

	if !product.Active {
		return &CartError{Kind: ErrProductUnavailable, Line: line, PriceID: item.PriceID, Product: name}
	}
	return nil
}
