// internal/common/http/client.go
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderAuthorization = "Authorization"
)

type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWith wraps an existing *http.Client (httptest servers, custom transports).
func NewClientWith(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{httpClient: hc}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// DoWithContext sends req bound to ctx. A bearer token, when non-empty, is
// attached as the Authorization header, and every request gets an
// X-Request-ID unless the caller already set one.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request, bearerToken string) (*http.Response, error) {
	req = req.WithContext(ctx)
	if bearerToken != "" {
		req.Header.Set(HeaderAuthorization, "Bearer "+bearerToken)
	}
	if req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, RequestIDFromContext(ctx))
	}
	return c.httpClient.Do(req)
}

type requestIDKey struct{}

// WithRequestID stores a correlation id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the correlation id on ctx, or a fresh uuid.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
