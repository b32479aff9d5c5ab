package domain

// CartLineRequest is a client-submitted cart line. It is untrusted.
type CartLineRequest struct {
	PriceID  string
	Quantity int
}

// ValidatedLineItem is only produced after the line passed the stock and
// availability checks against live provider data.
type ValidatedLineItem struct {
	PriceID  string
	Quantity int
}

type CheckoutOptions struct {
	ReturnURL           string
	AllowedCountries    []string
	AutomaticTax        bool
	AllowPromotionCodes bool
}

type CheckoutSession struct {
	ID           string
	ClientSecret string
}

// StoredCheckout is the session remembered for an idempotency key, with the
// fingerprint of the cart it was created for.
type StoredCheckout struct {
	CartFingerprint string
	Session         CheckoutSession
}
