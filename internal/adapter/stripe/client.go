// Package stripe adapts the Stripe SDK to the commerce provider port.
package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	DefaultBaseURL = "https://api.stripe.com"
	defaultTimeout = 10 * time.Second

	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

type Config struct {
	// BaseURL is the API root without the version segment.
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    log.FieldLogger

	// BreakerFailures is the number of consecutive transport or 5xx failures
	// that open the circuit. BreakerCooldown is how long it stays open.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

type Client struct {
	api    *client.API
	apiKey string
}

var _ port.CommerceProvider = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &breakerTransport{
			next:    otelhttp.NewTransport(cfg.Transport),
			breaker: newBreaker(cfg.BreakerFailures, cfg.BreakerCooldown),
		},
	}

	// Retries are left to the caller; the breaker sheds load instead.
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(strings.TrimRight(cfg.BaseURL, "/")),
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     cfg.Logger,
	})

	api := &client.API{}
	api.Init(cfg.APIKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &Client{api: api, apiKey: cfg.APIKey}
}

func (c *Client) ListProducts(ctx context.Context, params port.ListParams) (port.ProductPage, error) {
	if c.apiKey == "" {
		return port.ProductPage{}, port.ErrMissingCredential
	}

	listParams := &stripe.ProductListParams{}
	listParams.Context = ctx
	listParams.Single = true
	if params.Limit > 0 {
		listParams.Limit = stripe.Int64(int64(params.Limit))
	}
	if params.StartingAfter != "" {
		listParams.StartingAfter = stripe.String(params.StartingAfter)
	}

	it := c.api.Products.List(listParams)
	var page port.ProductPage
	for it.Next() {
		page.Products = append(page.Products, productToDomain(it.Product()))
	}
	if err := it.Err(); err != nil {
		return port.ProductPage{}, remoteError(err)
	}
	if meta := it.Meta(); meta != nil {
		page.HasMore = meta.HasMore
	}
	return page, nil
}

func (c *Client) GetPrice(ctx context.Context, priceID string, expandProduct bool) (*domain.RemotePrice, error) {
	if c.apiKey == "" {
		return nil, port.ErrMissingCredential
	}

	params := &stripe.PriceParams{}
	params.Context = ctx
	if expandProduct {
		params.AddExpand("product")
	}

	p, err := c.api.Prices.Get(priceID, params)
	if err != nil {
		return nil, remoteError(err)
	}
	price := priceToDomain(p)
	return &price, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, items []domain.ValidatedLineItem, opts domain.CheckoutOptions) (*domain.CheckoutSession, error) {
	if c.apiKey == "" {
		return nil, port.ErrMissingCredential
	}

	params := &stripe.CheckoutSessionParams{
		UIMode:    stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		Mode:      stripe.String(string(stripe.CheckoutSessionModePayment)),
		ReturnURL: stripe.String(opts.ReturnURL),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())

	for _, item := range items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(item.PriceID),
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}
	if opts.AutomaticTax {
		params.AutomaticTax = &stripe.CheckoutSessionAutomaticTaxParams{Enabled: stripe.Bool(true)}
	}
	if len(opts.AllowedCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(opts.AllowedCountries),
		}
	}
	if opts.AllowPromotionCodes {
		params.AllowPromotionCodes = stripe.Bool(true)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, remoteError(err)
	}
	return &domain.CheckoutSession{ID: session.ID, ClientSecret: session.ClientSecret}, nil
}

// remoteError maps SDK and transport failures onto the port's RemoteError.
func remoteError(err error) error {
	var remote *port.RemoteError
	if errors.As(err, &remote) {
		return remote
	}
	var apiErr *stripe.Error
	if errors.As(err, &apiErr) {
		return &port.RemoteError{Status: apiErr.HTTPStatusCode, Message: apiErr.Msg, Err: err}
	}
	return &port.RemoteError{Message: err.Error(), Err: err}
}
