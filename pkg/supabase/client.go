package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/supabase-community/gotrue-go"
	gotruetypes "github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	apperrors "github.com/calificaprofe/calificaprofe-api/pkg/errors"
	"github.com/calificaprofe/calificaprofe-api/pkg/httpclient"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
)

const (
	serviceName = "supabase"

	// maxResponseBytes caps how much of a response body is read
	maxResponseBytes = 4 << 20
)

// TokenSource supplies the bearer token for data requests
type TokenSource interface {
	AccessToken() string
}

// Client talks to a hosted Supabase project: the auth API under /auth/v1
// (through gotrue-go) and the PostgREST data API under /rest/v1 (through
// postgrest-go). Every call runs over httpClient and is bound to the
// caller's context.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient httpclient.Client
	tokens     TokenSource
}

// NewClient creates a client for the project at baseURL
func NewClient(baseURL, anonKey string, httpClient httpclient.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: httpClient,
	}
}

// UseTokens makes data requests carry the signed-in user's token instead of the anon key
func (c *Client) UseTokens(tokens TokenSource) {
	c.tokens = tokens
}

func (c *Client) bearer() string {
	if c.tokens != nil {
		if tok := c.tokens.AccessToken(); tok != "" {
			return tok
		}
	}
	return c.anonKey
}

// Rest runs one PostgREST read. build composes the query on a client bound
// to ctx; rows are decoded into dest. The returned count is the total from
// Content-Range when the query asked for one.
func (c *Client) Rest(ctx context.Context, operation string, build func(*postgrest.Client) *postgrest.FilterBuilder, dest any) (int, error) {
	start := time.Now()
	call := c.newCall(ctx)

	rest := postgrest.NewClient(c.baseURL+"/rest/v1", "public", map[string]string{
		"apikey":        c.anonKey,
		"Authorization": "Bearer " + c.bearer(),
	})
	rest.Transport.Parent = call

	count, err := build(rest).ExecuteTo(dest)
	if err = c.finish(operation, serviceRest, call, start, err); err != nil {
		return 0, err
	}
	return int(count), nil
}

// authCall runs fn against a gotrue client bound to ctx. token, when set,
// authenticates the call as that user.
func (c *Client) authCall(ctx context.Context, operation, token string, fn func(gotrue.Client) error) error {
	start := time.Now()
	call := c.newCall(ctx)

	api := gotrue.New("", c.anonKey).
		WithCustomGoTrueURL(c.baseURL + "/auth/v1").
		WithClient(http.Client{Transport: call})
	if token != "" {
		api = api.WithToken(token)
	}

	return c.finish(operation, serviceAuth, call, start, fn(api))
}

// finish turns the outcome of a library call into the application error
// taxonomy and records it
func (c *Client) finish(operation, service string, call *callTransport, start time.Time, err error) error {
	switch {
	case call.status >= 300:
		apiErr := parseAPIError(service, call.status, call.body)
		c.record(operation, strconv.Itoa(call.status), start, zap.String("code", apiErr.Code))
		return apiErr

	case err == nil:
		c.record(operation, "success", start)
		return nil

	case call.ctx.Err() != nil:
		c.record(operation, "error", start, zap.Error(err))
		return call.ctx.Err()

	case errors.Is(err, gotruetypes.ErrInvalidTokenRequest):
		c.record(operation, "invalid", start)
		return apperrors.InvalidCredentialsError("email and password are required")

	case call.status == 0:
		c.record(operation, "error", start, zap.Error(err))
		return apperrors.UnavailableError(serviceName, err)

	default:
		c.record(operation, "error", start, zap.Error(err))
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
}

func (c *Client) record(operation, status string, start time.Time, fields ...zap.Field) {
	duration := metrics.MeasureDuration(start)
	metrics.RemoteRequestDuration.WithLabelValues(operation, status).Observe(duration)
	metrics.RemoteRequestTotal.WithLabelValues(operation, status).Inc()
	logger.LogAPICall(serviceName, operation, status, duration, fields...)
}

// callTransport is the RoundTripper handed to the libraries for a single request.
// It binds the request to ctx, caps the body and keeps the status and error
// body, which the libraries only report as text.
type callTransport struct {
	ctx    context.Context
	next   httpclient.Client
	status int
	body   []byte
}

func (c *Client) newCall(ctx context.Context) *callTransport {
	return &callTransport{ctx: ctx, next: c.httpClient}
}

func (t *callTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.Do(req.WithContext(t.ctx))
	if err != nil {
		return nil, err
	}
	t.status = resp.StatusCode

	if resp.StatusCode < 300 {
		resp.Body = limitedBody{Reader: io.LimitReader(resp.Body, maxResponseBytes), Closer: resp.Body}
		return resp, nil
	}

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	t.body = raw
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return resp, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}
