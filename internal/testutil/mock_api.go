// Package testutil provides testing utilities for the API client.
package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock of a bearer-token API with a login endpoint
// and page-numbered list endpoints.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	requests map[string]int

	// PageParam is the query parameter read by paged handlers.
	PageParam string

	LastRequestHeader http.Header
	PagesRequested    []int
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		requests:  make(map[string]int),
		PageParam: "page",
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "not found"}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetLogin configures a login endpoint that answers {"token": token} when the
// posted username and password match, and 401 otherwise.
func (m *MockAPI) SetLogin(path, username, password, token string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeResponse(w, MockResponse{StatusCode: http.StatusMethodNotAllowed})
			return
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeResponse(w, MockResponse{StatusCode: http.StatusBadRequest, Body: `{"error": "bad json"}`})
			return
		}
		if body["username"] != username || body["password"] != password {
			writeResponse(w, MockResponse{StatusCode: http.StatusUnauthorized, Body: `{"error": "invalid credentials"}`})
			return
		}

		writeResponse(w, NewJSONResponse(fmt.Sprintf(`{"token": %q}`, token)))
	})
}

// SetPages serves responses[i] for page i+1 of path. Pages past the end
// answer with an empty records list.
func (m *MockAPI) SetPages(path string, responses []MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get(m.PageParam))
		if err != nil {
			page = 1
		}

		m.mu.Lock()
		m.PagesRequested = append(m.PagesRequested, page)
		m.mu.Unlock()

		if page < 1 || page > len(responses) {
			writeResponse(w, NewJSONResponse(`{"records": []}`))
			return
		}
		writeResponse(w, responses[page-1])
	})
}

// GetRequestCount returns the number of requests made to path.
func (m *MockAPI) GetRequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// GetPagesRequested returns the page numbers requested from paged handlers, in order.
func (m *MockAPI) GetPagesRequested() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.PagesRequested...)
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewPageResponse creates a 200 OK page using the default field names.
func NewPageResponse(page, limit, total int, records ...string) MockResponse {
	body := fmt.Sprintf(`{"page": %d, "limit": %d, "total": %d, "records": [`, page, limit, total)
	for i, rec := range records {
		if i > 0 {
			body += ","
		}
		body += rec
	}
	body += "]}"
	return NewJSONResponse(body)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// ErrTransport is returned by FlakyTransport for injected failures.
var ErrTransport = errors.New("injected transport failure")

// FlakyTransport fails the first Failures round trips and then delegates to Base.
type FlakyTransport struct {
	Base     http.RoundTripper
	Failures int

	mu    sync.Mutex
	calls int
}

// RoundTrip implements http.RoundTripper.
func (t *FlakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.calls++
	call := t.calls
	t.mu.Unlock()

	if call <= t.Failures {
		return nil, ErrTransport
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// Calls returns the number of round trips attempted.
func (t *FlakyTransport) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
