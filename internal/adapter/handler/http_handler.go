package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

const idempotencyHeader = "Idempotency-Key"

type HTTPHandler struct {
	catalog      *service.CatalogService
	validator    *service.CartValidator
	checkout     *service.CheckoutService
	logger       log.FieldLogger
	maxBodyBytes int64
}

type ProductResponse struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	PriceID    string            `json:"price_id"`
	Price      string            `json:"price"`
	Image      *string           `json:"image"`
	ImageArray []string          `json:"image_array"`
	Metadata   map[string]string `json:"metadata"`
}

type LineItemRequest struct {
	PriceID  string `json:"priceId"`
	Quantity int    `json:"quantity"`
}

type CartRequest struct {
	LineItems []LineItemRequest `json:"lineItems"`
}

type ValidatedLineItemResponse struct {
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

type ValidateCartResponse struct {
	LineItems []ValidatedLineItemResponse `json:"lineItems"`
}

type CheckoutSessionResponse struct {
	ClientSecret string `json:"client_secret"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func NewHTTPHandler(catalog *service.CatalogService, validator *service.CartValidator, checkout *service.CheckoutService, logger log.FieldLogger, maxBodyBytes int64) *HTTPHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &HTTPHandler{
		catalog:      catalog,
		validator:    validator,
		checkout:     checkout,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// GetProducts serves the cached catalog with internal metadata removed.
func (h *HTTPHandler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.GetCatalog(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponses(products))
}

// ValidateCart checks a cart without creating a checkout session.
func (h *HTTPHandler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	items, ok := h.decodeCart(w, r)
	if !ok {
		return
	}

	validated, err := h.validator.Validate(r.Context(), items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ValidateCartResponse{LineItems: toValidatedResponses(validated)})
}

func (h *HTTPHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	items, ok := h.decodeCart(w, r)
	if !ok {
		return
	}

	session, err := h.checkout.CreateSession(r.Context(), r.Header.Get(idempotencyHeader), items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckoutSessionResponse{ClientSecret: session.ClientSecret})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) decodeCart(w http.ResponseWriter, r *http.Request) ([]domain.CartLineRequest, bool) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req CartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Debug("undecodable cart payload")
		h.writeError(w, r, service.ErrInvalidCartInput)
		return nil, false
	}

	return toCartLines(req.LineItems), true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}

	writeJSON(w, status, ErrorResponse{
		Error: service.PublicMessage(err),
		Code:  code,
	})
}

// classify maps an error kind to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCartInput):
		return http.StatusBadRequest, "invalid_cart_input"
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, service.ErrProductUnavailable):
		return http.StatusConflict, "product_unavailable"
	case errors.Is(err, service.ErrCheckoutInProgress):
		return http.StatusConflict, "checkout_in_progress"
	case errors.Is(err, service.ErrIdempotencyKeyReused):
		return http.StatusUnprocessableEntity, "idempotency_key_reused"
	case errors.Is(err, service.ErrRemoteLookupFailed):
		return http.StatusBadGateway, "remote_lookup_failed"
	case errors.Is(err, service.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable, "catalog_unavailable"
	case errors.Is(err, service.ErrStockDataCorrupt):
		return http.StatusInternalServerError, "stock_data_corrupt"
	case errors.Is(err, service.ErrMissingCredential):
		return http.StatusInternalServerError, "missing_credential"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func toProductResponses(products []domain.ProductSummary) []ProductResponse {
	out := make([]ProductResponse, len(products))
	for i, p := range products {
		out[i] = ProductResponse{
			ID:         p.ID,
			Name:       p.Name,
			PriceID:    p.PriceID,
			Price:      p.UnitPrice,
			Image:      p.ImagePrimary,
			ImageArray: p.Images,
			Metadata:   p.PublicMetadata(),
		}
	}
	return out
}

func toCartLines(items []LineItemRequest) []domain.CartLineRequest {
	out := make([]domain.CartLineRequest, len(items))
	for i, item := range items {
		out[i] = domain.CartLineRequest{PriceID: item.PriceID, Quantity: item.Quantity}
	}
	return out
}

func toValidatedResponses(items []domain.ValidatedLineItem) []ValidatedLineItemResponse {
	out := make([]ValidatedLineItemResponse, len(items))
	for i, item := range items {
		out[i] = ValidatedLineItemResponse{Price: item.PriceID, Quantity: item.Quantity}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
