// Package remote talks to the ERP REST API. It classifies every failure as either
// a network failure (no usable response) or a server rejection so the sync engine
// can decide between queueing a change and rolling it back.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Header names sent with every request
const (
	HeaderTenantID       = "X-Tenant-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestID      = "X-Request-ID"
)

const defaultUserAgent = "ERP-Client/1.0"

// RetryConfig configures retry behavior for idempotent requests
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		RetryDelay: 200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// Client is the HTTP client for the ERP API
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	tenantID   string
	userAgent  string
	retry      RetryConfig
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryConfig replaces the retry configuration
func WithRetryConfig(rc RetryConfig) Option {
	return func(c *Client) {
		c.retry = rc
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTenant overrides the tenant taken from the session token
func WithTenant(tenantID string) Option {
	return func(c *Client) {
		if tenantID != "" {
			c.tenantID = tenantID
		}
	}
}

// NewClient creates a client for cfg.Endpoint()
func NewClient(cfg config.APIConfig, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
		endpoint:  strings.TrimRight(cfg.Endpoint(), "/"),
		token:     cfg.Token,
		tenantID:  TenantFromToken(cfg.Token),
		userAgent: cfg.UserAgent,
		retry:     retry,
		logger:    zap.NewNop(),
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TenantFromToken reads the tenant_id claim without verifying the signature.
// The server verifies the token; the client only needs the claim for routing.
func TenantFromToken(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	tenant, _ := claims["tenant_id"].(string)
	return tenant
}

// TenantID returns the tenant sent with every request
func (c *Client) TenantID() string {
	return c.tenantID
}

// Endpoint returns the versioned API root
func (c *Client) Endpoint() string {
	return c.endpoint
}

// envelope is the ERP API response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Get performs a GET request and decodes the envelope data into out
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST request
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put performs a PUT request
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete performs a DELETE request
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do executes a request. Only GET requests are retried, and only on network failures.
// Returned errors are *offline.NetworkError or *offline.RejectionError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	op := method + " " + path
	retries := 0
	if method == http.MethodGet {
		retries = c.retry.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return offline.NewNetworkError(op, ctx.Err())
			case <-time.After(c.backoff(attempt)):
			}
			c.logger.Debug("retrying request",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		data, err := c.roundTrip(ctx, method, path, payload)
		if err == nil {
			return decodeData(op, data, out)
		}
		lastErr = err
		if !offline.IsNetworkFailure(err) {
			return err
		}
	}
	return lastErr
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	op := method + " " + path

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	c.setHeaders(ctx, req, payload != nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, offline.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, offline.NewNetworkError(op, fmt.Errorf("reading response body: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case isGatewayStatus(resp.StatusCode):
		return nil, offline.NewNetworkError(op, fmt.Errorf("gateway status %d", resp.StatusCode))
	default:
		return nil, rejection(resp.StatusCode, data)
	}
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.tenantID != "" {
		req.Header.Set(HeaderTenantID, c.tenantID)
	}
	if key := offline.IdempotencyKey(ctx); key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok && rid != "" {
		req.Header.Set(HeaderRequestID, rid)
	}
}

// backoff calculates the delay before the given attempt with ±25% jitter
func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.retry.RetryDelay) * math.Pow(c.retry.Multiplier, float64(attempt-1))
	if c.retry.MaxDelay > 0 && delay > float64(c.retry.MaxDelay) {
		delay = float64(c.retry.MaxDelay)
	}
	jitter := delay * 0.25
	return time.Duration(delay + (rand.Float64()*2-1)*jitter)
}

type requestIDKey struct{}

// WithRequestID attaches a request id that is forwarded to the API
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func isGatewayStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

func rejection(status int, data []byte) *offline.RejectionError {
	rej := &offline.RejectionError{StatusCode: status, Message: http.StatusText(status)}
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil {
		rej.Code = env.Error.Code
		if env.Error.Message != "" {
			rej.Message = env.Error.Message
		}
	}
	return rej
}

func decodeData(op string, data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &offline.RejectionError{StatusCode: http.StatusOK, Message: fmt.Sprintf("%s: malformed response: %v", op, err)}
	}
	if !env.Success && env.Error != nil {
		return &offline.RejectionError{StatusCode: http.StatusOK, Code: env.Error.Code, Message: env.Error.Message}
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &offline.RejectionError{StatusCode: http.StatusOK, Message: fmt.Sprintf("%s: unexpected payload: %v", op, err)}
	}
	return nil
}
