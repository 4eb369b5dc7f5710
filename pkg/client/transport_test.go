package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// staticTokens is a TokenSource returning a fixed token.
type staticTokens struct {
	token string
	ok    bool
}

func (s staticTokens) Token(context.Context) (string, bool) {
	return s.token, s.ok
}

func newTestTransport(t *testing.T, serverURL string, mutate func(*TransportConfig)) *HTTPTransport {
	t.Helper()
	cfg := DefaultTransportConfig(serverURL + "/api")
	cfg.UserAgent = "TestApp/1.0.0"
	if mutate != nil {
		mutate(&cfg)
	}
	transport, err := NewHTTPTransport(cfg)
	if err != nil {
		t.Fatalf("Failed to create transport: %v", err)
	}
	return transport
}

func TestNewHTTPTransport_Validation(t *testing.T) {
	tests := []struct {
		name        string
		baseURL     string
		expectError bool
	}{
		{name: "valid https", baseURL: "https://plagcheck.example.com/api", expectError: false},
		{name: "valid http with trailing slash", baseURL: "http://localhost:8000/api/", expectError: false},
		{name: "empty", baseURL: "", expectError: true},
		{name: "unsupported scheme", baseURL: "ftp://example.com", expectError: true},
		{name: "unparseable", baseURL: "http://[::1", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPTransport(DefaultTransportConfig(tt.baseURL))
			if (err != nil) != tt.expectError {
				t.Errorf("NewHTTPTransport() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestHTTPTransport_RequestShape(t *testing.T) {
	var got *http.Request
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":7}`))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, func(cfg *TransportConfig) {
		cfg.Tokens = staticTokens{token: "abc.def.ghi", ok: true}
	})

	body, _ := JSONBody(map[string]string{"title": "Thesis"})
	resp, err := transport.Do(context.Background(), &Request{
		Method:      "post",
		Path:        "theses",
		Params:      url.Values{"notify": {"true"}},
		Header:      http.Header{"X-Extra": {"1"}},
		Body:        body.Data,
		ContentType: body.ContentType,
	})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if string(resp.Data) != `{"id":7}` {
		t.Errorf("Data = %s", resp.Data)
	}
	if got.Method != http.MethodPost {
		t.Errorf("Method = %s, want POST", got.Method)
	}
	if got.URL.Path != "/api/theses" {
		t.Errorf("Path = %s, want /api/theses", got.URL.Path)
	}
	if got.URL.Query().Get("notify") != "true" {
		t.Errorf("Query = %s", got.URL.RawQuery)
	}
	if got.Header.Get("Authorization") != "Bearer abc.def.ghi" {
		t.Errorf("Authorization = %q", got.Header.Get("Authorization"))
	}
	if got.Header.Get("User-Agent") != "TestApp/1.0.0" {
		t.Errorf("User-Agent = %q", got.Header.Get("User-Agent"))
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", got.Header.Get("Content-Type"))
	}
	if got.Header.Get("X-Extra") != "1" {
		t.Errorf("X-Extra = %q", got.Header.Get("X-Extra"))
	}
	if got.Header.Get(HeaderRequestID) == "" {
		t.Error("X-Request-ID not set")
	}
	if gotBody != `{"title":"Thesis"}` {
		t.Errorf("Body = %s", gotBody)
	}
}

func TestHTTPTransport_NoSessionNoAuthorization(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, func(cfg *TransportConfig) {
		cfg.Tokens = staticTokens{ok: false}
	})
	if _, err := transport.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/users"}); err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if auth != "" {
		t.Errorf("Authorization = %q, want empty", auth)
	}
}

func TestHTTPTransport_KeepsCallerRequestID(t *testing.T) {
	canonical := http.Header{}
	canonical.Set(HeaderRequestID, "req-42")

	tests := []struct {
		name   string
		header http.Header
	}{
		{"literal key", http.Header{HeaderRequestID: {"req-42"}}},
		{"canonical key", canonical},
		{"lower case key", http.Header{"x-request-id": {"req-42"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ids = r.Header.Values(HeaderRequestID)
			}))
			defer server.Close()

			transport := newTestTransport(t, server.URL, nil)
			_, err := transport.Do(context.Background(), &Request{Path: "/users", Header: tt.header})
			if err != nil {
				t.Fatalf("Do() failed: %v", err)
			}
			if len(ids) != 1 || ids[0] != "req-42" {
				t.Errorf("X-Request-ID values = %q, want [req-42]", ids)
			}
		})
	}
}

func TestHeaderValue(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   string
	}{
		{"nil header", nil, ""},
		{"missing", http.Header{"Accept": {"application/json"}}, ""},
		{"literal key", http.Header{"X-Request-ID": {"a"}}, "a"},
		{"empty values", http.Header{"X-Request-ID": {}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := headerValue(tt.header, HeaderRequestID); got != tt.want {
				t.Errorf("headerValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPTransport_StatusErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantClass   ErrorClass
		wantMessage string
	}{
		{name: "not found detail", status: 404, body: `{"detail":"Thesis not found"}`, wantClass: ErrorClassClient, wantMessage: "Thesis not found"},
		{name: "unauthorized message", status: 401, body: `{"message":"Token expired"}`, wantClass: ErrorClassClient, wantMessage: "Token expired"},
		{name: "validation detail list", status: 422, body: `{"detail":[{"loc":["body","title"]}]}`, wantClass: ErrorClassClient, wantMessage: `[{"loc":["body","title"]}]`},
		{name: "server error text", status: 500, body: "boom", wantClass: ErrorClassServer, wantMessage: "boom"},
		{name: "empty body", status: 503, body: "", wantClass: ErrorClassServer, wantMessage: "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			transport := newTestTransport(t, server.URL, nil)
			_, err := transport.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/theses/1"})

			var te *TransportError
			if !errors.As(err, &te) {
				t.Fatalf("error = %v, want *TransportError", err)
			}
			if te.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", te.StatusCode, tt.status)
			}
			if te.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %q, want %q", te.ErrorClass, tt.wantClass)
			}
			if te.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", te.Message, tt.wantMessage)
			}
			if StatusCode(err) != tt.status {
				t.Errorf("StatusCode(err) = %d, want %d", StatusCode(err), tt.status)
			}
		})
	}
}

func TestHTTPTransport_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, nil)
	_, err := transport.Do(context.Background(), &Request{Path: "/theses", Timeout: 50 * time.Millisecond})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if te.ErrorClass != ErrorClassTimeout {
		t.Errorf("ErrorClass = %q, want %q", te.ErrorClass, ErrorClassTimeout)
	}
}

func TestHTTPTransport_CallerCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := transport.Do(ctx, &Request{Path: "/theses"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if errorClassOf(err) != ErrorClassCanceled {
		t.Errorf("class = %q, want %q", errorClassOf(err), ErrorClassCanceled)
	}
}

func TestHTTPTransport_RetriesIdempotentServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL, func(cfg *TransportConfig) {
		cfg.Retry = RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
	})

	resp, err := transport.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/theses/stats"})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if string(resp.Data) != "ok" {
		t.Errorf("Data = %s, want ok", resp.Data)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestHTTPTransport_NoRetryForPostOrClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		status int
	}{
		{name: "post server error", method: http.MethodPost, status: http.StatusInternalServerError},
		{name: "get client error", method: http.MethodGet, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			transport := newTestTransport(t, server.URL, func(cfg *TransportConfig) {
				cfg.Retry = RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 2}
			})
			_, err := transport.Do(context.Background(), &Request{Method: tt.method, Path: "/theses"})
			if err == nil {
				t.Fatal("expected error")
			}
			if attempts.Load() != 1 {
				t.Errorf("attempts = %d, want 1", attempts.Load())
			}
		})
	}
}

func TestHTTPTransport_Resolve(t *testing.T) {
	transport := newTestTransport(t, "http://localhost:8000", nil)

	got := transport.resolve("/theses", url.Values{"page": {"2"}, "status": {"done"}})
	if got != "http://localhost:8000/api/theses?page=2&status=done" {
		t.Errorf("resolve() = %s", got)
	}
	if got := transport.resolve("users", nil); !strings.HasSuffix(got, "/api/users") {
		t.Errorf("resolve() = %s", got)
	}
}

func TestResponse_JSONAndClone(t *testing.T) {
	resp := &Response{StatusCode: 200, Header: http.Header{"A": {"1"}}, Data: []byte(`{"totalTheses":10}`)}

	var stats struct {
		TotalTheses int `json:"totalTheses"`
	}
	if err := resp.JSON(&stats); err != nil {
		t.Fatalf("JSON() failed: %v", err)
	}
	if stats.TotalTheses != 10 {
		t.Errorf("TotalTheses = %d, want 10", stats.TotalTheses)
	}

	clone := resp.Clone()
	clone.Data[0] = '['
	clone.Header.Set("A", "2")
	if resp.Data[0] != '{' || resp.Header.Get("A") != "1" {
		t.Error("Clone shares state with the original")
	}

	if err := (&Response{Data: []byte("not json")}).JSON(&stats); err == nil {
		t.Error("JSON() should fail on invalid body")
	}
}
