package httpclient

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Client is the transport used by the remote service clients.
// Requests carry their context, so cancelling it aborts the call.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardHTTPClient wraps the standard http.Client
type StandardHTTPClient struct {
	client *http.Client
}

// NewStandardClient creates a client with an overall per-request ceiling.
// Per-attempt deadlines are set by the caller's context.
func NewStandardClient(timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StandardHTTPClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &tracePropagator{next: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			}},
		},
	}
}

// Do executes an HTTP request
func (c *StandardHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// tracePropagator forwards the active span context to the remote service
type tracePropagator struct {
	next http.RoundTripper
}

func (t *tracePropagator) RoundTrip(req *http.Request) (*http.Response, error) {
	carrier := propagation.HeaderCarrier{}
	otel.GetTextMapPropagator().Inject(req.Context(), carrier)
	if len(carrier) == 0 {
		return t.next.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request
	out := req.Clone(req.Context())
	for k, v := range carrier {
		out.Header[k] = v
	}
	return t.next.RoundTrip(out)
}
