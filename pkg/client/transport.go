// Package client provides the plagcheck backend client: an HTTP transport with
// bearer authentication and retries, and a cached client on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/plagcheck-client/pkg/logging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plagcheck_requests_total",
		Help: "Total backend requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plagcheck_request_duration_seconds",
		Help:    "Backend request duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plagcheck_errors_total",
		Help: "Total backend errors by class",
	}, []string{"class"})
)

// HeaderRequestID carries a per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// Request describes a single backend call.
type Request struct {
	Method      string
	Path        string
	Params      url.Values
	Header      http.Header
	Body        []byte
	ContentType string

	// Timeout overrides the transport default when > 0.
	Timeout time.Duration
}

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Data       []byte
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
	}
	if r.Data != nil {
		c.Data = append([]byte(nil), r.Data...)
	}
	return c
}

// Transport performs backend requests.
// Implementations return a *TransportError (or a wrapped context error) on failure.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TokenSource supplies the bearer credential of the current session.
type TokenSource interface {
	// Token returns the credential, or false when no usable session exists.
	Token(ctx context.Context) (string, bool)
}

// TransportConfig holds the HTTP transport configuration.
type TransportConfig struct {
	// BaseURL is prefixed to every request path (e.g., "https://plagcheck.iuh.edu.vn/api")
	BaseURL string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout applies to requests without their own timeout
	Timeout time.Duration

	// Retry controls retries of idempotent requests
	Retry RetryConfig

	// Tokens supplies the bearer credential (optional)
	Tokens TokenSource

	// HTTPClient overrides the underlying client (optional)
	HTTPClient *http.Client
}

// DefaultTransportConfig returns a safe default configuration.
func DefaultTransportConfig(baseURL string) TransportConfig {
	return TransportConfig{
		BaseURL:   baseURL,
		UserAgent: "plagcheck-client/0.1.0",
		Timeout:   30 * time.Second,
		Retry:     NoRetry(),
	}
}

// HTTPTransport is a Transport over net/http.
type HTTPTransport struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     TransportConfig
	logger     zerolog.Logger
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(cfg TransportConfig) (*HTTPTransport, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = NoRetry()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &HTTPTransport{
		httpClient: httpClient,
		baseURL:    base,
		config:     cfg,
		logger:     logging.NewLogger(logging.ComponentTransport),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (t *HTTPTransport) SetHTTPClient(client *http.Client) {
	t.httpClient = client
}

// Do performs the request, retrying transient failures of idempotent methods.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	retryCfg := t.config.Retry
	if !isIdempotent(method) {
		retryCfg = NoRetry()
	}

	requestID := headerValue(req.Header, HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var resp *Response
	err := retryWithBackoff(ctx, retryCfg, func() error {
		var attemptErr error
		resp, attemptErr = t.do(ctx, method, requestID, req)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// do runs a single attempt.
func (t *HTTPTransport) do(ctx context.Context, method, requestID string, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.config.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, t.resolve(req.Path, req.Params), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID)
	if t.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", t.config.UserAgent)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if t.config.Tokens != nil {
		if token, ok := t.config.Tokens.Token(ctx); ok {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	t.logger.Debug().
		Str("method", method).
		Str("path", req.Path).
		Str("request_id", requestID).
		Msg("Executing backend request")

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		class := classifyErr(ctx, err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(method, string(class)).Inc()
		t.logger.Warn().Err(err).
			Str("method", method).
			Str("path", req.Path).
			Str("error_class", string(class)).
			Msg("Backend request failed")
		return nil, &TransportError{
			Method:     method,
			Path:       req.Path,
			ErrorClass: class,
			Err:        err,
		}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		class := classifyErr(ctx, err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		return nil, &TransportError{
			Method:     method,
			Path:       req.Path,
			StatusCode: httpResp.StatusCode,
			ErrorClass: class,
			Err:        fmt.Errorf("read response body: %w", err),
		}
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(httpResp.StatusCode)).Inc()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		class := classifyStatus(httpResp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		t.logger.Warn().
			Str("method", method).
			Str("path", req.Path).
			Int("status", httpResp.StatusCode).
			Str("error_class", string(class)).
			Msg("Backend request error")
		return nil, &TransportError{
			Method:     method,
			Path:       req.Path,
			StatusCode: httpResp.StatusCode,
			ErrorClass: class,
			Message:    extractMessage(httpResp.StatusCode, data),
			Body:       data,
		}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Data:       data,
	}, nil
}

// resolve joins path and params onto the base URL.
func (t *HTTPTransport) resolve(path string, params url.Values) string {
	u := *t.baseURL
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = t.baseURL.Path + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// headerValue returns the first value of name in h, also matching keys that
// were set without canonicalization (e.g., an http.Header literal).
func headerValue(h http.Header, name string) string {
	if v := h.Get(name); v != "" {
		return v
	}
	for key, values := range h {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}
