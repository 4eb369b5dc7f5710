package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/plagcheck-client/pkg/cache"
	"github.com/Sternrassler/plagcheck-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var coalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "plagcheck_coalesced_requests_total",
	Help: "Total number of GET calls served by a shared in-flight fetch",
})

// RequestOptions are per-call options.
type RequestOptions struct {
	// Params are the query parameters. A "_skipCache" entry is honoured and
	// removed before the request is sent.
	Params url.Values

	// Header is added to the request.
	Header http.Header

	// Timeout overrides the transport default when > 0.
	Timeout time.Duration

	// SkipCache forces a network call for GET; the result is still cached.
	SkipCache bool
}

// CachedClient caches successful GET responses and passes writes straight
// to the transport. It is safe for concurrent use; construct one per process
// and share it.
type CachedClient struct {
	transport   Transport
	cache       *cache.Cache
	rules       InvalidationRules
	flights     singleflight.Group
	invalidated *invalidationLog
	logger      zerolog.Logger
}

// Option configures a CachedClient.
type Option func(*CachedClient)

// WithInvalidationRules sets the rules applied after writes.
// Passing nil disables automatic invalidation.
func WithInvalidationRules(rules InvalidationRules) Option {
	return func(c *CachedClient) {
		c.rules = rules
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *CachedClient) {
		c.logger = logger
	}
}

// New creates a cached client over transport. Writes invalidate according to
// DefaultInvalidationRules unless overridden.
func New(transport Transport, responseCache *cache.Cache, opts ...Option) *CachedClient {
	if transport == nil {
		panic("transport cannot be nil")
	}
	if responseCache == nil {
		panic("cache cannot be nil")
	}
	c := &CachedClient{
		transport:   transport,
		cache:       responseCache,
		rules:       DefaultInvalidationRules(),
		invalidated: newInvalidationLog(),
		logger:      logging.NewLogger(logging.ComponentClient),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the underlying response cache.
func (c *CachedClient) Cache() *cache.Cache {
	return c.cache
}

// Get returns the cached response for path and params while it is valid,
// and otherwise fetches it, caches it on success and returns it.
// Transport errors are returned unchanged and never cached.
// Concurrent identical calls share one fetch unless SkipCache is set.
func (c *CachedClient) Get(ctx context.Context, path string, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	path, params, err := splitQuery(path, opts.Params)
	if err != nil {
		return nil, err
	}
	params, skipParam := cache.StripSkipCache(params)
	skip := opts.SkipCache || skipParam
	key := cache.Key{Path: path, Params: params}

	if !skip {
		if entry, ok := c.cache.Lookup(ctx, key); ok {
			return entryToResponse(entry), nil
		}
	}

	req := &Request{
		Method:  http.MethodGet,
		Path:    path,
		Params:  params,
		Header:  opts.Header,
		Timeout: opts.Timeout,
	}

	if skip {
		c.logger.Debug().Str("key", key.String()).Msg("Cache bypass requested")
		return c.fetch(ctx, key, req)
	}

	// The shared fetch outlives any single caller; the transport timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key.String(), func() (any, error) {
		return c.fetch(flightCtx, key, req)
	})

	select {
	case res := <-ch:
		if res.Shared {
			coalescedTotal.Inc()
			c.logger.Debug().Str("key", key.String()).Msg("Served by shared fetch")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetch performs the network GET and stores a successful result.
func (c *CachedClient) fetch(ctx context.Context, key cache.Key, req *Request) (*Response, error) {
	start := c.invalidated.current()

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("transport returned no response")
	}

	if c.invalidated.invalidatedSince(key.Path, start) {
		c.logger.Debug().Str("key", key.String()).Msg("Invalidated during fetch, not caching")
		return resp, nil
	}

	// Store failures only cost a future miss
	_ = c.cache.Store(ctx, key, responseToEntry(resp))

	// A clear that marked the log after the check above may have run its
	// delete before our store landed; undo the store in that case.
	if c.invalidated.invalidatedSince(key.Path, start) {
		c.logger.Debug().Str("key", key.String()).Msg("Invalidated while storing, removing entry")
		_ = c.cache.Remove(context.WithoutCancel(ctx), key)
	}
	return resp, nil
}

// Post sends a POST request. The cache is neither read nor populated.
func (c *CachedClient) Post(ctx context.Context, path string, body Body, opts *RequestOptions) (*Response, error) {
	return c.write(ctx, http.MethodPost, path, body, opts)
}

// Put sends a PUT request. The cache is neither read nor populated.
func (c *CachedClient) Put(ctx context.Context, path string, body Body, opts *RequestOptions) (*Response, error) {
	return c.write(ctx, http.MethodPut, path, body, opts)
}

// Patch sends a PATCH request. The cache is neither read nor populated.
func (c *CachedClient) Patch(ctx context.Context, path string, body Body, opts *RequestOptions) (*Response, error) {
	return c.write(ctx, http.MethodPatch, path, body, opts)
}

// Delete sends a DELETE request. The cache is neither read nor populated.
func (c *CachedClient) Delete(ctx context.Context, path string, opts *RequestOptions) (*Response, error) {
	return c.write(ctx, http.MethodDelete, path, NoBody, opts)
}

// write sends a mutating request and then applies the invalidation rules
// for path, whether or not the request succeeded.
func (c *CachedClient) write(ctx context.Context, method, path string, body Body, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	path, params, err := splitQuery(path, opts.Params)
	if err != nil {
		return nil, err
	}
	params, _ = cache.StripSkipCache(params)

	resp, err := c.transport.Do(ctx, &Request{
		Method:      method,
		Path:        path,
		Params:      params,
		Header:      opts.Header,
		Body:        body.Data,
		ContentType: body.ContentType,
		Timeout:     opts.Timeout,
	})

	// A failed write may still have reached the backend
	prefixes, all := c.rules.For(path)
	switch {
	case all:
		c.logger.Debug().Str("method", method).Str("path", path).Msg("Write invalidates whole cache")
		_ = c.ClearCache(context.WithoutCancel(ctx))
	case len(prefixes) > 0:
		c.logger.Debug().Str("method", method).Str("path", path).Strs("prefixes", prefixes).Msg("Write invalidates cache prefixes")
		_ = c.ClearCache(context.WithoutCancel(ctx), prefixes...)
	}

	return resp, err
}

// splitQuery moves a query string written into path over to params, so
// "/theses?page=1" and "/theses" with page=1 are the same request.
func splitQuery(path string, params url.Values) (string, url.Values, error) {
	path, rawQuery, found := strings.Cut(path, "?")
	if !found {
		return path, params, nil
	}
	inline, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("parse query of %q: %w", path, err)
	}

	merged := make(url.Values, len(inline)+len(params))
	for name, values := range inline {
		merged[name] = append(merged[name], values...)
	}
	for name, values := range params {
		merged[name] = append(merged[name], values...)
	}
	return path, merged, nil
}

// ClearCache removes cached entries whose path starts with any of prefixes,
// or every entry when no prefix is given. Clearing an empty cache is a no-op.
// Store errors are logged by the cache and the first one is returned.
func (c *CachedClient) ClearCache(ctx context.Context, prefixes ...string) error {
	if len(prefixes) == 0 {
		c.invalidated.markAll()
		return c.cache.ClearAll(ctx)
	}

	var firstErr error
	for _, prefix := range prefixes {
		c.invalidated.markPrefix(prefix)
		if err := c.cache.ClearPrefix(ctx, prefix); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// responseToEntry converts a response into a cache entry.
func responseToEntry(resp *Response) *cache.Entry {
	return &cache.Entry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Data:       resp.Data,
	}
}

// entryToResponse converts a cache entry back into a response.
func entryToResponse(entry *cache.Entry) *Response {
	return &Response{
		StatusCode: entry.StatusCode,
		Header:     entry.Header,
		Data:       entry.Data,
	}
}
