package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type CheckoutCacheRepository interface {
	// ClaimIdempotencyKey marks a key as in flight, returns false if already claimed
	ClaimIdempotencyKey(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotencyKey drops a claim (for rollback on failure)
	ReleaseIdempotencyKey(ctx context.Context, key string) error

	// GetSession returns the checkout stored for a key, nil if none
	GetSession(ctx context.Context, key string) (*domain.StoredCheckout, error)

	// SaveSession stores the checkout created for a key. The claim stays in
	// place until it expires.
	SaveSession(ctx context.Context, key string, checkout domain.StoredCheckout) error
}
