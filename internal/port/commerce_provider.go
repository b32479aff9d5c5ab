package port

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
)

// ErrMissingCredential is returned by every provider call when no API key is
// configured.
var ErrMissingCredential = errors.New("missing commerce provider credential")

// RemoteError is the single failure shape reported by the commerce provider.
// Status is 0 when no response was received; Err then holds the transport
// failure.
type RemoteError struct {
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("commerce provider unreachable: %s", e.Message)
	}
	return fmt.Sprintf("commerce provider error %d: %s", e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

type ListParams struct {
	Limit         int
	StartingAfter string
}

type ProductPage struct {
	Products []domain.RemoteProduct
	HasMore  bool
}

type CommerceProvider interface {
	// ListProducts returns one page of products, oldest cursor first
	ListProducts(ctx context.Context, params ListParams) (ProductPage, error)

	// GetPrice retrieves a price, optionally with its product expanded
	GetPrice(ctx context.Context, priceID string, expandProduct bool) (*domain.RemotePrice, error)

	// CreateCheckoutSession opens a checkout session for already validated items
	CreateCheckoutSession(ctx context.Context, items []domain.ValidatedLineItem, opts domain.CheckoutOptions) (*domain.CheckoutSession, error)
}
