package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/apipager/internal/testutil"
)

func newTestClient(t *testing.T, baseURI string) *Client {
	t.Helper()

	c, err := New(DefaultConfig(baseURI))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("https://api.example.com"),
			expectError: false,
		},
		{
			name:        "empty base uri",
			config:      DefaultConfig(""),
			expectError: true,
		},
		{
			name:        "relative base uri",
			config:      DefaultConfig("/api/v1"),
			expectError: true,
		},
		{
			name:        "unsupported scheme",
			config:      DefaultConfig("ftp://api.example.com"),
			expectError: true,
		},
		{
			name: "zero timeout",
			config: Config{
				BaseURI: "https://api.example.com",
				Retry:   DefaultRetryConfig(),
			},
			expectError: true,
		},
		{
			name: "zero retry attempts",
			config: Config{
				BaseURI: "https://api.example.com",
				Timeout: time.Second,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
					return
				}
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("Error %v does not wrap ErrInvalidArgument", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if c == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://api.example.com")

	if cfg.Timeout != 20*time.Second {
		t.Errorf("Timeout = %v, want 20s", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Delay != 0 {
		t.Errorf("Retry.Delay = %v, want 0", cfg.Retry.Delay)
	}
	if cfg.Headers["Accept"] != "application/json" {
		t.Errorf("Accept header = %q, want application/json", cfg.Headers["Accept"])
	}
}

func TestBuildURI(t *testing.T) {
	tests := []struct {
		name     string
		baseURI  string
		endpoint string
		query    url.Values
		expected string
	}{
		{
			name:     "no endpoint",
			baseURI:  "https://api.example.com",
			expected: "https://api.example.com",
		},
		{
			name:     "endpoint is trimmed",
			baseURI:  "https://api.example.com/",
			endpoint: " /users/ ",
			expected: "https://api.example.com/users",
		},
		{
			name:     "base path prefix kept",
			baseURI:  "https://api.example.com/v2",
			endpoint: "users",
			expected: "https://api.example.com/v2/users",
		},
		{
			name:     "query encoded",
			baseURI:  "https://api.example.com",
			endpoint: "users",
			query:    url.Values{"page": {"2"}, "limit": {"3"}},
			expected: "https://api.example.com/users?limit=3&page=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.baseURI)

			got, err := c.BuildURI(tt.endpoint, tt.query)
			if err != nil {
				t.Fatalf("BuildURI() error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("BuildURI() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestBuildURI_Invalid(t *testing.T) {
	c := newTestClient(t, "https://api.example.com")

	_, err := c.BuildURI("bad path/%zz", nil)
	if err == nil {
		t.Fatal("Expected invalid uri error")
	}
	if !errors.Is(err, ErrInvalidURI) {
		t.Errorf("Error %v does not wrap ErrInvalidURI", err)
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Error %v does not match ErrInvalidArgument", err)
	}
}

func TestDo_HeadersAndToken(t *testing.T) {
	var received http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.Do(context.Background(), &Request{
		Endpoint: "/items",
		Token:    "T",
		Headers:  Headers{"x-trace": "abc"},
	})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}

	if string(resp.Body) != `{"ok": true}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if got := received.Get("Authorization"); got != "Bearer T" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer T")
	}
	if got := received.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want application/json", got)
	}
	if got := received.Get("X-Trace"); got != "abc" {
		t.Errorf("X-Trace = %q, want abc", got)
	}
	if got := received.Get("User-Agent"); got != "apipager/0.1.0" {
		t.Errorf("User-Agent = %q, want apipager/0.1.0", got)
	}
}

func TestDo_PostsJSONBody(t *testing.T) {
	var body map[string]string
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Do(context.Background(), &Request{
		Method: http.MethodPost,
		Body:   map[string]string{"username": "u"},
	})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}

	if method != http.MethodPost {
		t.Errorf("Method = %q, want POST", method)
	}
	if body["username"] != "u" {
		t.Errorf("Body username = %q, want u", body["username"])
	}
}

func TestDo_NonOKStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"created", http.StatusCreated},
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(`{"error": "nope"}`))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL)
			_, err := c.Do(context.Background(), &Request{Stage: StageAuth, Endpoint: "login"})
			if err == nil {
				t.Fatal("Expected API error")
			}
			if !errors.Is(err, ErrAPI) {
				t.Errorf("Error %v does not match ErrAPI", err)
			}

			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("Error %T is not *RequestError", err)
			}
			if reqErr.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", reqErr.StatusCode, tt.statusCode)
			}
			if reqErr.Stage != StageAuth {
				t.Errorf("Stage = %q, want %q", reqErr.Stage, StageAuth)
			}
			if !strings.Contains(reqErr.Message, "nope") {
				t.Errorf("Message = %q, want body snippet", reqErr.Message)
			}
			if calls != 1 {
				t.Errorf("Calls = %d, want 1 (status errors are not retried)", calls)
			}
		})
	}
}

func TestDo_RetriesTransportFailures(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/items", testutil.NewJSONResponse(`{"records": []}`))

	tests := []struct {
		name        string
		failures    int
		expectError bool
		wantCalls   int
	}{
		{"first attempt succeeds", 0, false, 1},
		{"success on third attempt", 2, false, 3},
		{"budget exhausted", 3, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &testutil.FlakyTransport{Failures: tt.failures}
			c := newTestClient(t, mock.URL())
			c.SetHTTPClient(&http.Client{Transport: transport, Timeout: time.Second})

			resp, err := c.Do(context.Background(), &Request{Endpoint: "items"})

			if transport.Calls() != tt.wantCalls {
				t.Errorf("Calls = %d, want %d", transport.Calls(), tt.wantCalls)
			}

			if tt.expectError {
				if !errors.Is(err, ErrConnection) {
					t.Errorf("Error %v does not match ErrConnection", err)
				}
				if !errors.Is(err, ErrRetryExhausted) {
					t.Errorf("Error %v does not wrap ErrRetryExhausted", err)
				}
				if !errors.Is(err, testutil.ErrTransport) {
					t.Errorf("Error %v does not wrap the transport failure", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Do() failed: %v", err)
			}
			if resp.StatusCode != http.StatusOK {
				t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
			}
		})
	}
}

func TestDo_TimeoutIsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	cfg.Timeout = 20 * time.Millisecond
	cfg.Retry.MaxAttempts = 2
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = c.Do(context.Background(), &Request{})
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Error %v does not match ErrConnection", err)
	}
}

func TestSetHeaders(t *testing.T) {
	c := newTestClient(t, "https://api.example.com")
	c.SetHeaders(Headers{"authorization": "Bearer old"}, true)

	c.SetHeaders(Headers{"X-Only": "1"}, false)
	h := c.Headers()

	if h["X-Only"] != "1" {
		t.Errorf("X-Only = %q, want 1", h["X-Only"])
	}
	if _, ok := h["Accept"]; ok {
		t.Error("Accept should be dropped by a wholesale replace")
	}
	if h["Authorization"] != "Bearer old" {
		t.Errorf("Authorization = %q, want it preserved across replace", h["Authorization"])
	}

	c.SetHeaders(Headers{"Accept": "text/csv"}, true)
	h = c.Headers()
	if h["Accept"] != "text/csv" || h["X-Only"] != "1" {
		t.Errorf("Merge result = %v", h)
	}
}
