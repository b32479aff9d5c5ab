package service

import (
	"errors"
	"fmt"

	"github.com/rl1809/storefront/internal/port"
)

var (
	ErrMissingCredential  = port.ErrMissingCredential
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrInvalidCartInput   = errors.New("invalid cart input")
	ErrRemoteLookupFailed = errors.New("remote lookup failed")
	ErrStockDataCorrupt   = errors.New("stock data corrupt")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrCheckoutInProgress = errors.New("checkout already in progress")

	ErrIdempotencyKeyReused = errors.New("idempotency key reused with a different cart")
)

const genericValidationMessage = "Unable to validate cart items. Please try again."

// CartError describes why a cart line was rejected. It unwraps to one of the
// sentinel kinds above and, for remote failures, to the underlying cause.
type CartError struct {
	Kind      error
	Line      int
	PriceID   string
	Product   string
	Available int
	Cause     error
}

func (e *CartError) Error() string {
	msg := fmt.Sprintf("%v: line %d", e.Kind, e.Line)
	if e.PriceID != "" {
		msg += fmt.Sprintf(" price %q", e.PriceID)
	}
	if e.Product != "" {
		msg += fmt.Sprintf(" product %q", e.Product)
	}
	if e.Kind == ErrInsufficientStock {
		msg += fmt.Sprintf(" available %d", e.Available)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CartError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// PublicMessage returns text safe to show a shopper. Business rejections name
// the product; everything else is generic.
func PublicMessage(err error) string {
	var cartErr *CartError
	switch {
	case errors.As(err, &cartErr) && cartErr.Kind == ErrInsufficientStock:
		return fmt.Sprintf("Sorry, insufficient stock for %s. Available: %d", cartErr.Product, cartErr.Available)
	case errors.As(err, &cartErr) && cartErr.Kind == ErrProductUnavailable:
		return fmt.Sprintf("Product %s is no longer available.", cartErr.Product)
	case errors.As(err, &cartErr) && cartErr.Kind == ErrInvalidCartInput:
		return "Invalid cart items"
	case errors.Is(err, ErrInvalidCartInput):
		return "Invalid cart items"
	case errors.Is(err, ErrCheckoutInProgress):
		return "Checkout is already in progress for this request."
	case errors.Is(err, ErrIdempotencyKeyReused):
		return "This request key was already used for a different cart."
	case errors.Is(err, ErrCatalogUnavailable):
		return "Product catalog is temporarily unavailable."
	case errors.Is(err, ErrRemoteLookupFailed), errors.Is(err, ErrStockDataCorrupt):
		return genericValidationMessage
	default:
		return "internal error"
	}
}

// IsConflict reports whether err is a business-rule rejection the shopper can
// fix by changing the cart.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrProductUnavailable)
}
