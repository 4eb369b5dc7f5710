package cache

import (
	"net/url"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "path without params",
			key:  Key{Path: "/theses"},
			want: "/theses",
		},
		{
			name: "empty params",
			key:  Key{Path: "/theses", Params: url.Values{}},
			want: "/theses",
		},
		{
			name: "single param",
			key: Key{
				Path:   "/theses",
				Params: url.Values{"page": []string{"2"}},
			},
			want: "/theses?page=2",
		},
		{
			name: "multiple params (sorted)",
			key: Key{
				Path: "/theses",
				Params: url.Values{
					"status": []string{"checked"},
					"page":   []string{"1"},
					"limit":  []string{"20"},
				},
			},
			want: "/theses?limit=20&page=1&status=checked",
		},
		{
			name: "repeated values keep order",
			key: Key{
				Path:   "/users",
				Params: url.Values{"role": []string{"admin", "lecturer"}},
			},
			want: "/users?role=admin&role=lecturer",
		},
		{
			name: "skip cache param ignored",
			key: Key{
				Path: "/theses/stats",
				Params: url.Values{
					SkipCacheParam: []string{"true"},
				},
			},
			want: "/theses/stats",
		},
		{
			name: "values are escaped",
			key: Key{
				Path:   "/theses",
				Params: url.Values{"q": []string{"a&b=c"}},
			},
			want: "/theses?q=a%26b%3Dc",
		},
		{
			name: "key with no values",
			key: Key{
				Path:   "/theses",
				Params: url.Values{"page": nil},
			},
			want: "/theses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if got != tt.want {
				t.Errorf("Key.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestKey_OrderIndependent ensures insertion order never changes the signature
func TestKey_OrderIndependent(t *testing.T) {
	a := url.Values{}
	a.Set("page", "1")
	a.Set("status", "pending")
	a.Set("faculty", "it")

	b := url.Values{}
	b.Set("faculty", "it")
	b.Set("status", "pending")
	b.Set("page", "1")

	ka := Key{Path: "/theses", Params: a}.String()
	kb := Key{Path: "/theses", Params: b}.String()
	if ka != kb {
		t.Errorf("signatures differ: %q vs %q", ka, kb)
	}

	for i := 0; i < 10; i++ {
		if got := (Key{Path: "/theses", Params: a}).String(); got != ka {
			t.Errorf("iteration %d: %q, want %q (not deterministic)", i, got, ka)
		}
	}
}

func TestKey_ParamSensitivity(t *testing.T) {
	k1 := Key{Path: "/theses", Params: url.Values{"a": []string{"1"}}}.String()
	k2 := Key{Path: "/theses", Params: url.Values{"a": []string{"2"}}}.String()
	if k1 == k2 {
		t.Errorf("different params produced the same signature %q", k1)
	}
}

func TestStripSkipCache(t *testing.T) {
	tests := []struct {
		name     string
		params   url.Values
		wantSkip bool
		wantLen  int
	}{
		{name: "nil params", params: nil, wantSkip: false, wantLen: 0},
		{name: "no skip param", params: url.Values{"page": {"1"}}, wantSkip: false, wantLen: 1},
		{name: "skip true", params: url.Values{"page": {"1"}, SkipCacheParam: {"true"}}, wantSkip: true, wantLen: 1},
		{name: "skip 1", params: url.Values{SkipCacheParam: {"1"}}, wantSkip: true, wantLen: 0},
		{name: "skip false is still stripped", params: url.Values{SkipCacheParam: {"false"}}, wantSkip: false, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaned, skip := StripSkipCache(tt.params)
			if skip != tt.wantSkip {
				t.Errorf("skip = %v, want %v", skip, tt.wantSkip)
			}
			if len(cleaned) != tt.wantLen {
				t.Errorf("len(cleaned) = %d, want %d", len(cleaned), tt.wantLen)
			}
			if _, ok := cleaned[SkipCacheParam]; ok {
				t.Error("cleaned params still contain the skip cache parameter")
			}
		})
	}
}

func TestStripSkipCache_DoesNotMutateInput(t *testing.T) {
	params := url.Values{"page": {"1"}, SkipCacheParam: {"true"}}
	cleaned, _ := StripSkipCache(params)
	cleaned.Set("page", "9")

	if params.Get(SkipCacheParam) != "true" {
		t.Error("input lost the skip cache parameter")
	}
	if params.Get("page") != "1" {
		t.Errorf("input page = %q, want 1", params.Get("page"))
	}
}
