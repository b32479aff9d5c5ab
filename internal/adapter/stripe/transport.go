package stripe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/tidwall/gjson"

	"github.com/rl1809/storefront/internal/port"
)

const maxErrorBodySize = 1 << 20

// errServerFailure marks a 5xx response as a breaker failure. The response
// itself still reaches the SDK.
var errServerFailure = errors.New("provider server error")

// breakerTransport guards provider round-trips with a circuit breaker and
// turns error responses the SDK cannot parse into RemoteErrors.
type breakerTransport struct {
	next    http.RoundTripper
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func newBreaker(failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "commerce-provider",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A caller giving up says nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err == nil && resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerFailure
		}
		return resp, err
	})
	if errors.Is(err, errServerFailure) {
		err = nil
	}
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &port.RemoteError{Message: fmt.Sprintf("%s %s: %v", req.Method, req.URL.Path, err), Err: err}
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	resp.Body.Close()
	if err != nil {
		return nil, &port.RemoteError{Status: resp.StatusCode, Message: "read response body", Err: err}
	}
	if msg := errorMessage(raw); msg != "" {
		return nil, &port.RemoteError{Status: resp.StatusCode, Message: msg}
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return resp, nil
}

// errorMessage describes error bodies without a Stripe error object. It is
// empty when the SDK can decode the body itself.
func errorMessage(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return "non-JSON response: " + string(raw)
	}
	if msg := gjson.GetBytes(raw, "error.message"); !msg.Exists() || msg.String() == "" {
		return string(raw)
	}
	return ""
}
