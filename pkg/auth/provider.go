// Package auth obtains bearer tokens through a single JSON login exchange.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/apipager/pkg/client"
	"github.com/Sternrassler/apipager/pkg/logging"
	"github.com/rs/zerolog"
)

// Credentials identify the account used for the login exchange.
// They are never stored by the provider.
type Credentials struct {
	Username string
	Password string

	// Endpoint overrides the provider's login endpoint when set.
	Endpoint string
}

// Config holds the token provider configuration.
type Config struct {
	// Endpoint is the login endpoint relative to the client's base URI.
	// Empty posts to the base URI itself.
	Endpoint string

	// TokenField is the response field holding the token.
	TokenField string

	// LoginType is sent as the "type" field of the login body.
	LoginType string

	// DummyToken, when set, is returned without any network call.
	DummyToken string
}

// DefaultConfig returns the default token provider configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:   "",
		TokenField: "token",
		LoginType:  "1",
	}
}

// TokenProvider exchanges credentials for a bearer token.
type TokenProvider struct {
	client *client.Client
	config Config
	logger zerolog.Logger
}

// NewTokenProvider creates a token provider on top of c.
func NewTokenProvider(c *client.Client, cfg Config) (*TokenProvider, error) {
	if c == nil && cfg.DummyToken == "" {
		return nil, fmt.Errorf("%w: client is required", client.ErrInvalidArgument)
	}
	if cfg.TokenField == "" {
		cfg.TokenField = "token"
	}
	if cfg.LoginType == "" {
		cfg.LoginType = "1"
	}

	return &TokenProvider{
		client: c,
		config: cfg,
		logger: logging.NewLogger(logging.ComponentAuth),
	}, nil
}

// SetDummyToken switches the provider to dummy-token mode. An empty token
// switches it back to real exchanges.
func (p *TokenProvider) SetDummyToken(token string) {
	p.config.DummyToken = token
}

// HasDummyToken reports whether the provider is in dummy-token mode.
func (p *TokenProvider) HasDummyToken() bool {
	return p.config.DummyToken != ""
}

// loginRequest is the JSON body of the login exchange.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Type     string `json:"type"`
}

// GetToken returns a bearer token for creds. In dummy-token mode the
// configured token is returned unconditionally.
func (p *TokenProvider) GetToken(ctx context.Context, creds Credentials) (string, error) {
	if p.config.DummyToken != "" {
		p.logger.Debug().Msg("Using dummy token")
		return p.config.DummyToken, nil
	}

	if creds.Username == "" || creds.Password == "" {
		return "", &client.RequestError{
			Stage: client.StageAuth,
			Kind:  client.KindInvalidArgument,
			Err:   client.ErrMissingCredentials,
		}
	}
	if p.client == nil {
		return "", fmt.Errorf("%w: client is required", client.ErrInvalidArgument)
	}

	endpoint := p.config.Endpoint
	if creds.Endpoint != "" {
		endpoint = creds.Endpoint
	}

	resp, err := p.client.Do(ctx, &client.Request{
		Stage:    client.StageAuth,
		Method:   "POST",
		Endpoint: endpoint,
		Body: loginRequest{
			Username: creds.Username,
			Password: creds.Password,
			Type:     p.config.LoginType,
		},
	})
	if err != nil {
		p.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Token request failed")
		return "", err
	}

	token, err := extractToken(resp.Body, p.config.TokenField)
	if err != nil {
		var reqErr *client.RequestError
		if errors.As(err, &reqErr) {
			reqErr.Stage = client.StageAuth
			reqErr.Endpoint = endpoint
		}
		p.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Token response rejected")
		return "", err
	}

	p.logger.Debug().Str("endpoint", endpoint).Msg("Token obtained")
	return token, nil
}

// extractToken reads field from a JSON object body. Only a non-empty string
// counts as a token; "", false, null and absent fields are all missing.
func extractToken(body []byte, field string) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", &client.RequestError{Kind: client.KindDecode, Err: err}
	}

	token, ok := doc[field].(string)
	if !ok || token == "" {
		return "", &client.RequestError{
			Kind:    client.KindTokenMissing,
			Message: fmt.Sprintf("field %q", field),
		}
	}
	return token, nil
}

// Source binds credentials to a provider for use by a fetcher.
func (p *TokenProvider) Source(creds Credentials) *Source {
	return &Source{provider: p, creds: creds}
}

// Source fetches a fresh token on every call.
type Source struct {
	provider *TokenProvider
	creds    Credentials
}

// Token implements pagination.TokenSource.
func (s *Source) Token(ctx context.Context) (string, error) {
	return s.provider.GetToken(ctx, s.creds)
}
