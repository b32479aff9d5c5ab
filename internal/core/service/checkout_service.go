package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const checkoutKeyPrefix = "checkout:"

type CheckoutConfig struct {
	SiteURL             string
	AllowedCountries    []string
	AutomaticTax        bool
	AllowPromotionCodes bool
}

// ReturnURL is the page the embedded checkout sends the shopper back to.
// The session placeholder is filled in by the provider.
func (c CheckoutConfig) ReturnURL() string {
	return strings.TrimRight(c.SiteURL, "/") + "/return?session_id={CHECKOUT_SESSION_ID}"
}

type CheckoutService struct {
	validator *CartValidator
	provider  port.CommerceProvider
	cache     port.CheckoutCacheRepository // optional
	cfg       CheckoutConfig
	logger    log.FieldLogger
}

func NewCheckoutService(validator *CartValidator, provider port.CommerceProvider, cache port.CheckoutCacheRepository, cfg CheckoutConfig, logger log.FieldLogger) *CheckoutService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &CheckoutService{
		validator: validator,
		provider:  provider,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
	}
}

// CreateSession validates the cart and opens a checkout session for it.
// With a non-empty idempotencyKey and a configured cache, a repeated key
// returns the session created the first time, provided the cart matches.
func (s *CheckoutService) CreateSession(ctx context.Context, idempotencyKey string, items []domain.CartLineRequest) (*domain.CheckoutSession, error) {
	if s.cache == nil || idempotencyKey == "" {
		return s.createSession(ctx, items)
	}

	key := checkoutKeyPrefix + idempotencyKey
	fingerprint := cartFingerprint(items)

	if existing, err := s.storedSession(ctx, key, fingerprint); err != nil || existing != nil {
		return existing, err
	}

	ok, err := s.cache.ClaimIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}

	// A request with the same key may have finished since the first lookup.
	if existing, err := s.storedSession(ctx, key, fingerprint); err != nil || existing != nil {
		return existing, err
	}
	if !ok {
		return nil, ErrCheckoutInProgress
	}

	session, err := s.createSession(ctx, items)
	if err != nil {
		if releaseErr := s.cache.ReleaseIdempotencyKey(ctx, key); releaseErr != nil {
			s.logger.WithError(releaseErr).WithField("key", key).Error("failed to release idempotency key")
		}
		return nil, err
	}

	stored := domain.StoredCheckout{CartFingerprint: fingerprint, Session: *session}
	if err := s.cache.SaveSession(ctx, key, stored); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("failed to store checkout session")
	}
	return session, nil
}

func (s *CheckoutService) storedSession(ctx context.Context, key, fingerprint string) (*domain.CheckoutSession, error) {
	stored, err := s.cache.GetSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if stored == nil {
		return nil, nil
	}
	if stored.CartFingerprint != fingerprint {
		return nil, ErrIdempotencyKeyReused
	}
	return &stored.Session, nil
}

// cartFingerprint identifies a cart by its lines in order.
func cartFingerprint(items []domain.CartLineRequest) string {
	h := xxhash.New()
	for _, item := range items {
		fmt.Fprintf(h, "%s\x00%d\x00", item.PriceID, item.Quantity)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func (s *CheckoutService) createSession(ctx context.Context, items []domain.CartLineRequest) (*domain.CheckoutSession, error) {
	validated, err := s.validator.Validate(ctx, items)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, validated, domain.CheckoutOptions{
		ReturnURL:           s.cfg.ReturnURL(),
		AllowedCountries:    s.cfg.AllowedCountries,
		AutomaticTax:        s.cfg.AutomaticTax,
		AllowPromotionCodes: s.cfg.AllowPromotionCodes,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	s.logger.WithField("session_id", session.ID).Info("checkout session created")
	return session, nil
}
