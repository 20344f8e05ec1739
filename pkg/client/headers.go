package client

import "net/http"

// Headers maps canonical header names to values.
type Headers map[string]string

// DefaultHeaders returns the static header set sent with every request.
func DefaultHeaders() Headers {
	return Headers{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
}

// Clone returns a copy with canonicalized keys.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}

// Merge returns a copy of h overlaid with other.
func (h Headers) Merge(other Headers) Headers {
	out := h.Clone()
	for k, v := range other {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}

// Replace returns other as the new header set. An Authorization value already
// present in h survives unless other sets its own.
func (h Headers) Replace(other Headers) Headers {
	out := other.Clone()
	if auth, ok := h.Clone()["Authorization"]; ok {
		if _, set := out["Authorization"]; !set {
			out["Authorization"] = auth
		}
	}
	return out
}

// Apply writes the headers onto an HTTP header map.
func (h Headers) Apply(dst http.Header) {
	for k, v := range h {
		dst.Set(k, v)
	}
}
