package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	HeaderRequestID   = "X-Request-ID"
	HeaderAccessToken = "x-access-token"

	maxResponseBytes = 1 << 20 // 1MB
)

type requestIDKey struct{}

// WithRequestID makes outgoing calls made with ctx reuse id instead of
// minting a fresh one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewHTTPClient returns the traced client used for all calls to the cart API.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Client sends authenticated JSON requests relative to a base URL.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client

	breaker *gobreaker.CircuitBreaker[response]
}

type response struct {
	body   []byte
	status int
}

type ClientOption func(*Client)

// WithCircuitBreaker stops calling the cart API for openFor once failures
// consecutive requests failed in transport. Answers from the API, error
// statuses included, count as successes.
func WithCircuitBreaker(failures uint32, openFor time.Duration, logger *zap.Logger) ClientOption {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *Client) {
		c.breaker = gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
			Name:        "cart-api",
			MaxRequests: 1,
			Timeout:     openFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
	}
}

func NewClient(baseURL string, httpClient *http.Client, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cart api url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid cart api url %q: scheme and host required", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{BaseURL: u, HTTP: httpClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do sends body (if non-nil) as JSON and returns the raw response body and
// status code. A non-nil error means no response was read.
func (c *Client) Do(ctx context.Context, method, path, token string, body any) ([]byte, int, error) {
	if c.breaker == nil {
		return c.do(ctx, method, path, token, body)
	}
	resp, err := c.breaker.Execute(func() (response, error) {
		data, status, err := c.do(ctx, method, path, token, body)
		return response{body: data, status: status}, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, 0, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	return resp.body, resp.status, err
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	rel := &url.URL{Path: strings.TrimPrefix(path, "/")}
	u := c.BaseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(HeaderAccessToken, token)

	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(HeaderRequestID, requestID)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read %s %s: %w", ErrTransport, method, path, err)
	}
	return data, resp.StatusCode, nil
}
