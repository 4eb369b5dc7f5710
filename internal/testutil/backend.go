// Package testutil provides a mock plagcheck backend for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// APIPrefix is the path the mock backend mounts its routes under.
const APIPrefix = "/api"

// MockResponse defines a canned response that replaces a route.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Thesis is the thesis resource served by the mock backend.
type Thesis struct {
	ID         int     `json:"id"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Status     string  `json:"status"`
	Similarity float64 `json:"similarity"`
}

// MockBackend is an in-memory plagcheck backend on an httptest server.
type MockBackend struct {
	server *httptest.Server

	mu        sync.Mutex
	theses    map[int]Thesis
	nextID    int
	config    map[string]any
	overrides map[string]MockResponse
	counts    map[string]int
	total     int
	lastAuth  string
	pageSize  int
}

// NewMockBackend starts a mock backend seeded with three theses.
func NewMockBackend() *MockBackend {
	m := &MockBackend{
		theses:    make(map[int]Thesis),
		config:    map[string]any{"similarity_threshold": 0.3, "ai_check": true},
		overrides: make(map[string]MockResponse),
		counts:    make(map[string]int),
		pageSize:  10,
	}
	m.Seed(3)

	r := mux.NewRouter()
	api := r.PathPrefix(APIPrefix).Subrouter()
	api.Use(m.track)

	api.HandleFunc("/theses", m.listTheses).Methods(http.MethodGet)
	api.HandleFunc("/theses", m.createThesis).Methods(http.MethodPost)
	api.HandleFunc("/theses/stats", m.thesisStats).Methods(http.MethodGet)
	api.HandleFunc("/theses/{id:[0-9]+}", m.getThesis).Methods(http.MethodGet)
	api.HandleFunc("/theses/{id:[0-9]+}", m.updateThesis).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/theses/{id:[0-9]+}", m.deleteThesis).Methods(http.MethodDelete)
	api.HandleFunc("/users", m.listUsers).Methods(http.MethodGet)
	api.HandleFunc("/config", m.getConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", m.updateConfig).Methods(http.MethodPut)
	api.HandleFunc("/auth/login", m.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", m.logout).Methods(http.MethodPost)

	m.server = httptest.NewServer(r)
	return m
}

// URL returns the base URL clients should use (server URL plus APIPrefix).
func (m *MockBackend) URL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Seed replaces the thesis set with n generated theses.
func (m *MockBackend) Seed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.theses = make(map[int]Thesis, n)
	for i := 1; i <= n; i++ {
		status := "pending"
		if i%2 == 0 {
			status = "checked"
		}
		m.theses[i] = Thesis{
			ID:     i,
			Title:  fmt.Sprintf("Thesis %d", i),
			Author: fmt.Sprintf("student%d@iuh.edu.vn", i),
			Status: status,
		}
	}
	m.nextID = n + 1
}

// SetPageSize sets the number of theses per list page.
func (m *MockBackend) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// SetResponse replaces the route at path (relative to APIPrefix) for every method.
func (m *MockBackend) SetResponse(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[path] = resp
}

// ClearResponse removes an override set with SetResponse.
func (m *MockBackend) ClearResponse(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, path)
}

// Count returns how many requests hit "METHOD /path" (path relative to APIPrefix).
func (m *MockBackend) Count(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method+" "+path]
}

// TotalRequests returns the number of requests served.
func (m *MockBackend) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// LastAuthorization returns the Authorization header of the latest request.
func (m *MockBackend) LastAuthorization() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuth
}

// Reset clears all tracking counters.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]int)
	m.total = 0
	m.lastAuth = ""
}

func (m *MockBackend) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, APIPrefix)

		m.mu.Lock()
		m.counts[r.Method+" "+path]++
		m.total++
		m.lastAuth = r.Header.Get("Authorization")
		override, ok := m.overrides[path]
		m.mu.Unlock()

		if ok {
			writeOverride(w, override)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeOverride(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func (m *MockBackend) sortedTheses(status string) []Thesis {
	ids := make([]int, 0, len(m.theses))
	for id := range m.theses {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]Thesis, 0, len(ids))
	for _, id := range ids {
		t := m.theses[id]
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (m *MockBackend) listTheses(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	m.mu.Lock()
	all := m.sortedTheses(r.URL.Query().Get("status"))
	size := m.pageSize
	m.mu.Unlock()

	totalPages := (len(all) + size - 1) / size
	if totalPages == 0 {
		totalPages = 1
	}
	start := (page - 1) * size
	end := min(start+size, len(all))
	items := []Thesis{}
	if start < len(all) {
		items = all[start:end]
	}

	w.Header().Set("X-Total-Pages", strconv.Itoa(totalPages))
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "page": page, "total": len(all)})
}

func (m *MockBackend) thesisStats(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	byStatus := make(map[string]int)
	for _, t := range m.theses {
		byStatus[t.Status]++
	}
	total := len(m.theses)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"total": total, "by_status": byStatus})
}

func (m *MockBackend) thesisID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	m.mu.Lock()
	_, ok := m.theses[id]
	m.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "thesis not found")
	}
	return id, ok
}

func (m *MockBackend) getThesis(w http.ResponseWriter, r *http.Request) {
	id, ok := m.thesisID(w, r)
	if !ok {
		return
	}
	m.mu.Lock()
	t := m.theses[id]
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, t)
}

func (m *MockBackend) createThesis(w http.ResponseWriter, r *http.Request) {
	var t Thesis
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil || t.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	m.mu.Lock()
	t.ID = m.nextID
	m.nextID++
	if t.Status == "" {
		t.Status = "pending"
	}
	m.theses[t.ID] = t
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, t)
}

func (m *MockBackend) updateThesis(w http.ResponseWriter, r *http.Request) {
	id, ok := m.thesisID(w, r)
	if !ok {
		return
	}
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	m.mu.Lock()
	t := m.theses[id]
	if v, ok := patch["title"].(string); ok {
		t.Title = v
	}
	if v, ok := patch["status"].(string); ok {
		t.Status = v
	}
	if v, ok := patch["similarity"].(float64); ok {
		t.Similarity = v
	}
	m.theses[id] = t
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, t)
}

func (m *MockBackend) deleteThesis(w http.ResponseWriter, r *http.Request) {
	id, ok := m.thesisID(w, r)
	if !ok {
		return
	}
	m.mu.Lock()
	delete(m.theses, id)
	m.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockBackend) listUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]any{
		{"id": 1, "email": "admin@iuh.edu.vn", "role": "admin"},
		{"id": 2, "email": "lecturer@iuh.edu.vn", "role": "lecturer"},
	})
}

func (m *MockBackend) getConfig(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	cfg := make(map[string]any, len(m.config))
	for k, v := range m.config {
		cfg[k] = v
	}
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, cfg)
}

func (m *MockBackend) updateConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	m.mu.Lock()
	for k, v := range patch {
		m.config[k] = v
	}
	m.mu.Unlock()
	m.getConfig(w, r)
}

func (m *MockBackend) login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email == "" || creds.Password == "" {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": "mock-token-" + creds.Email,
		"user":  map[string]any{"id": 1, "email": creds.Email, "role": "lecturer"},
	})
}

func (m *MockBackend) logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
