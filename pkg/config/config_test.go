package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/apipager/pkg/client"
	"github.com/Sternrassler/apipager/pkg/logging"
	"github.com/Sternrassler/apipager/pkg/pagination"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apipager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.BaseURI)
	assert.Equal(t, 20*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, "token", cfg.Auth.TokenField)
	assert.Equal(t, "1", cfg.Auth.LoginType)
	assert.Equal(t, pagination.DefaultSchema(), cfg.Pagination.Schema)
	assert.Equal(t, 50, cfg.Pagination.Limit)
	assert.Equal(t, 1, cfg.Pagination.StartPage)
	assert.Equal(t, 1000, cfg.Pagination.MaxPages)
	assert.Equal(t, "abort", cfg.Pagination.FailurePolicy)
}

func TestLoad_EnvOnly(t *testing.T) {
	cfg, err := LoadWithEnv("", envMap(map[string]string{
		EnvBaseURI:   "https://api.example.com",
		EnvUsername:  "user",
		EnvPassword:  "secret",
		EnvRedisAddr: "redis:6380",
		EnvLogLevel:  "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURI)
	assert.Equal(t, "user", cfg.Auth.Username)
	assert.Equal(t, "secret", cfg.Auth.Password)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
base_uri: https://file.example.com/api
timeout: 5s
retry_attempts: 5
auth:
  username: fileuser
  endpoint: auth/login
pagination:
  limit: 10
  failure_policy: partial
  schema:
    page_number: p
    page_limit: size
    total_records: count
    records: data
sync:
  endpoint: accounts
  profile_field: remote_id
  query_param: uid
`)

	cfg, err := LoadWithEnv(path, envMap(map[string]string{EnvUsername: "envuser"}))
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com/api", cfg.BaseURI)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.Equal(t, "envuser", cfg.Auth.Username, "environment overrides file")
	assert.Equal(t, "auth/login", cfg.Auth.Endpoint)
	assert.Equal(t, "token", cfg.Auth.TokenField, "unset keys keep defaults")
	assert.Equal(t, 10, cfg.Pagination.Limit)
	assert.Equal(t, 1000, cfg.Pagination.MaxPages)
	assert.Equal(t, "data", cfg.Pagination.Schema.Records)
	assert.Equal(t, "accounts", cfg.Sync.Endpoint)
	assert.Equal(t, "id", cfg.Sync.SecondaryField)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{
			name: "missing base uri",
		},
		{
			name: "invalid base uri",
			env:  map[string]string{EnvBaseURI: "not a url"},
		},
		{
			name:    "zero retry attempts",
			content: "base_uri: https://a.example.com\nretry_attempts: 0\n",
		},
		{
			name:    "unknown failure policy",
			content: "base_uri: https://a.example.com\npagination:\n  failure_policy: ignore\n",
		},
		{
			name:    "empty schema field",
			content: "base_uri: https://a.example.com\npagination:\n  schema:\n    records: \"\"\n",
		},
		{
			name:    "bad redis address",
			content: "base_uri: https://a.example.com\nredis:\n  addr: nope\n",
		},
		{
			name: "bad log level",
			env:  map[string]string{EnvBaseURI: "https://a.example.com", EnvLogLevel: "loud"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.content != "" {
				path = writeConfig(t, tt.content)
			}
			_, err := LoadWithEnv(path, envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ValidationWrapsInvalidArgument(t *testing.T) {
	_, err := LoadWithEnv("", envMap(nil))
	assert.ErrorIs(t, err, client.ErrInvalidArgument)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"), envMap(nil))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "base_uri: [unterminated")
	_, err := LoadWithEnv(path, envMap(nil))
	assert.Error(t, err)
}

func TestComponentConfigs(t *testing.T) {
	cfg := Default()
	cfg.BaseURI = "https://api.example.com"
	cfg.RetryAttempts = 4
	cfg.Auth.Username = "u"
	cfg.Auth.Password = "p"
	cfg.Auth.Token = "fixed"
	cfg.Pagination.FailurePolicy = "partial"

	cc := cfg.ClientConfig()
	assert.Equal(t, "https://api.example.com", cc.BaseURI)
	assert.Equal(t, 4, cc.Retry.MaxAttempts)
	assert.Equal(t, 20*time.Second, cc.Timeout)

	_, err := client.New(cc)
	require.NoError(t, err)

	ac := cfg.TokenProviderConfig()
	assert.Equal(t, "fixed", ac.DummyToken)
	assert.Equal(t, "token", ac.TokenField)

	creds := cfg.Credentials()
	assert.Equal(t, "u", creds.Username)
	assert.Equal(t, "p", creds.Password)

	fc := cfg.FetcherConfig()
	assert.Equal(t, pagination.FailurePolicyPartial, fc.FailurePolicy)
	assert.Equal(t, 1000, fc.MaxPages)

	opts := cfg.RedisOptions()
	assert.Equal(t, "localhost:6379", opts.Addr)
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Auth.Password = "hunter2"
	cfg.Auth.Token = "tok"

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "tok\n")
	assert.Contains(t, out, "***")
	assert.Equal(t, "hunter2", cfg.Auth.Password, "original is unchanged")
}
