package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/port"
)

func setupRouter(p *stubProvider, cache port.CheckoutCacheRepository) http.Handler {
	svcs := newTestServices(p, cache)
	h := NewHTTPHandler(svcs.catalog, svcs.validator, svcs.checkout, svcs.logger, 1<<20)
	return NewRouter(h, 5*time.Second)
}

func doRequest(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	rec := doRequest(setupRouter(newStubProvider(), nil), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetProducts_StripsStock(t *testing.T) {
	p := newStubProvider()
	router := setupRouter(p, nil)

	rec := doRequest(router, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{
		"id": "prod_kit",
		"name": "Tracker Kit",
		"price_id": "price_kit",
		"price": "19.99",
		"image": "https://img/kit.png",
		"image_array": ["https://img/kit.png"],
		"metadata": {"sku": "TK-1"}
	}]`, rec.Body.String())

	// second read is served from the cache
	rec = doRequest(router, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, p.listCalls)
}

func TestGetProducts_ColdFailure(t *testing.T) {
	p := newStubProvider()
	p.listErr = &port.RemoteError{Status: 500, Message: "secret internal detail"}

	rec := doRequest(setupRouter(p, nil), http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "catalog_unavailable", resp.Code)
	assert.NotContains(t, resp.Error, "secret")
}

func TestValidateCart_Success(t *testing.T) {
	rec := doRequest(setupRouter(newStubProvider(), nil), http.MethodPost, "/api/checkout/validate",
		`{"lineItems":[{"priceId":"price_kit","quantity":2}]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lineItems":[{"price":"price_kit","quantity":2}]}`, rec.Body.String())
}

func TestValidateCart_ErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		status  int
		code    string
		message string
	}{
		{"malformed json", `{"lineItems":`, http.StatusBadRequest, "invalid_cart_input", "Invalid cart items"},
		{"fractional quantity", `{"lineItems":[{"priceId":"price_kit","quantity":1.5}]}`, http.StatusBadRequest, "invalid_cart_input", "Invalid cart items"},
		{"empty cart", `{"lineItems":[]}`, http.StatusBadRequest, "invalid_cart_input", "Invalid cart items"},
		{"missing price", `{"lineItems":[{"quantity":1}]}`, http.StatusBadRequest, "invalid_cart_input", "Invalid cart items"},
		{"insufficient stock", `{"lineItems":[{"priceId":"price_kit","quantity":4}]}`, http.StatusConflict, "insufficient_stock", "Sorry, insufficient stock for Tracker Kit. Available: 3"},
		{"inactive product", `{"lineItems":[{"priceId":"price_old","quantity":1}]}`, http.StatusConflict, "product_unavailable", "Product Old Board is no longer available."},
		{"unknown price", `{"lineItems":[{"priceId":"price_nope","quantity":1}]}`, http.StatusBadGateway, "remote_lookup_failed", "Unable to validate cart items. Please try again."},
		{"corrupt stock", `{"lineItems":[{"priceId":"price_bad","quantity":1}]}`, http.StatusInternalServerError, "stock_data_corrupt", "Unable to validate cart items. Please try again."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(setupRouter(newStubProvider(), nil), http.MethodPost, "/api/checkout/validate", tc.body, nil)
			assert.Equal(t, tc.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tc.code, resp.Code)
			assert.Equal(t, tc.message, resp.Error)
		})
	}
}

func TestValidateCart_BodyTooLarge(t *testing.T) {
	svcs := newTestServices(newStubProvider(), nil)
	router := NewRouter(NewHTTPHandler(svcs.catalog, svcs.validator, svcs.checkout, svcs.logger, 16), time.Second)

	rec := doRequest(router, http.MethodPost, "/api/checkout/validate",
		`{"lineItems":[{"priceId":"price_kit","quantity":1}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCheckoutSession_Success(t *testing.T) {
	p := newStubProvider()
	rec := doRequest(setupRouter(p, nil), http.MethodPost, "/api/create-checkout-session",
		`{"lineItems":[{"priceId":"price_kit","quantity":1}]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"client_secret":"cs_1_secret"}`, rec.Body.String())
	assert.Equal(t, 1, p.sessions)
}

func TestCreateCheckoutSession_IdempotencyKey(t *testing.T) {
	p := newStubProvider()
	router := setupRouter(p, newMemoryCheckoutCache())
	headers := map[string]string{"Idempotency-Key": "order-42"}
	body := `{"lineItems":[{"priceId":"price_kit","quantity":1}]}`

	first := doRequest(router, http.MethodPost, "/api/create-checkout-session", body, headers)
	second := doRequest(router, http.MethodPost, "/api/create-checkout-session", body, headers)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, p.sessions)
}

func TestCreateCheckoutSession_KeyReusedWithDifferentCart(t *testing.T) {
	p := newStubProvider()
	router := setupRouter(p, newMemoryCheckoutCache())
	headers := map[string]string{"Idempotency-Key": "order-43"}

	first := doRequest(router, http.MethodPost, "/api/create-checkout-session",
		`{"lineItems":[{"priceId":"price_kit","quantity":1}]}`, headers)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(router, http.MethodPost, "/api/create-checkout-session",
		`{"lineItems":[{"priceId":"price_kit","quantity":2}]}`, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
	assert.Equal(t, "idempotency_key_reused", decodeError(t, second).Code)
	assert.Equal(t, 1, p.sessions)
}

func TestCreateCheckoutSession_InsufficientStockIsConflict(t *testing.T) {
	p := newStubProvider()
	rec := doRequest(setupRouter(p, nil), http.MethodPost, "/api/create-checkout-session",
		`{"lineItems":[{"priceId":"price_kit","quantity":10}]}`, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, p.sessions)
}

func TestCreateCheckoutSession_MissingCredential(t *testing.T) {
	svcs := newTestServices(credentialLessProvider{}, nil)
	router := NewRouter(NewHTTPHandler(svcs.catalog, svcs.validator, svcs.checkout, svcs.logger, 0), time.Second)

	rec := doRequest(router, http.MethodPost, "/api/create-checkout-session",
		`{"lineItems":[{"priceId":"price_kit","quantity":1}]}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "missing_credential", resp.Code)
	assert.Equal(t, "internal error", resp.Error)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := doRequest(setupRouter(newStubProvider(), nil), http.MethodGet, "/api/create-checkout-session", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
