package cache

import (
	"net/url"
	"sort"
	"strings"
)

// SkipCacheParam is the query parameter callers may set to bypass cache reads.
// It is stripped before a signature is built and before the request is sent.
const SkipCacheParam = "_skipCache"

// Key identifies a cached GET response.
type Key struct {
	// Path is the resource path (e.g., "/theses/stats")
	Path string

	// Params are the query parameters sent with the request
	Params url.Values
}

// String generates a deterministic signature.
// Format: path?k1=v1&k2=v2 with keys sorted; values keep their order per key.
//
// Example:
//
//	/theses?page=2&status=checked
func (k Key) String() string {
	if len(k.Params) == 0 {
		return k.Path
	}

	keys := make([]string, 0, len(k.Params))
	for name := range k.Params {
		if name == SkipCacheParam {
			continue
		}
		keys = append(keys, name)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, name := range keys {
		escaped := url.QueryEscape(name)
		for _, value := range k.Params[name] {
			parts = append(parts, escaped+"="+url.QueryEscape(value))
		}
	}
	if len(parts) == 0 {
		return k.Path
	}
	return k.Path + "?" + strings.Join(parts, "&")
}

// StripSkipCache returns a copy of params without SkipCacheParam and reports
// whether the parameter asked for a bypass.
func StripSkipCache(params url.Values) (url.Values, bool) {
	if params == nil {
		return nil, false
	}

	skip := false
	cleaned := make(url.Values, len(params))
	for name, values := range params {
		if name == SkipCacheParam {
			for _, v := range values {
				switch strings.ToLower(v) {
				case "1", "true", "yes":
					skip = true
				}
			}
			continue
		}
		cleaned[name] = append([]string(nil), values...)
	}
	return cleaned, skip
}
