package client

import (
	"net/http"
	"testing"
)

func TestHeaders_Merge(t *testing.T) {
	base := DefaultHeaders()
	merged := base.Merge(Headers{"accept": "text/plain", "authorization": "Bearer T"})

	if merged["Accept"] != "text/plain" {
		t.Errorf("Accept = %q, want text/plain", merged["Accept"])
	}
	if merged["Authorization"] != "Bearer T" {
		t.Errorf("Authorization = %q, want Bearer T", merged["Authorization"])
	}
	if base["Accept"] != "application/json" {
		t.Error("Merge must not modify the receiver")
	}
}

func TestHeaders_Replace(t *testing.T) {
	tests := []struct {
		name     string
		current  Headers
		next     Headers
		wantAuth string
	}{
		{
			name:     "authorization preserved",
			current:  Headers{"Authorization": "Bearer A", "Accept": "application/json"},
			next:     Headers{"X-Api": "1"},
			wantAuth: "Bearer A",
		},
		{
			name:     "authorization overridden",
			current:  Headers{"Authorization": "Bearer A"},
			next:     Headers{"authorization": "Bearer B"},
			wantAuth: "Bearer B",
		},
		{
			name:     "no authorization",
			current:  Headers{"Accept": "application/json"},
			next:     Headers{"X-Api": "1"},
			wantAuth: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.current.Replace(tt.next)
			if got["Authorization"] != tt.wantAuth {
				t.Errorf("Authorization = %q, want %q", got["Authorization"], tt.wantAuth)
			}
			if _, ok := got["Accept"]; ok {
				t.Error("Accept should not survive a replace")
			}
			if got["X-Api"] != tt.next["X-Api"] {
				t.Errorf("X-Api = %q, want %q", got["X-Api"], tt.next["X-Api"])
			}
		})
	}
}

func TestHeaders_Apply(t *testing.T) {
	dst := http.Header{}
	Headers{"Accept": "application/json"}.Apply(dst)

	if dst.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q, want application/json", dst.Get("Accept"))
	}
}
