package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/apipager/pkg/auth"
	"github.com/Sternrassler/apipager/pkg/client"
	"github.com/Sternrassler/apipager/pkg/config"
	"github.com/Sternrassler/apipager/pkg/logging"
	"github.com/Sternrassler/apipager/pkg/metrics"
	"github.com/Sternrassler/apipager/pkg/pagination"
)

// app carries the loaded configuration through the command tree.
type app struct {
	lookupEnv func(string) (string, bool)

	configPath  string
	baseURI     string
	debug       bool
	metricsAddr string

	cfg    *config.Config
	logger zerolog.Logger
}

// newRootCmd creates the root command. lookupEnv supplies environment
// overrides so tests can inject them.
func newRootCmd(lookupEnv func(string) (string, bool)) *cobra.Command {
	a := &app{lookupEnv: lookupEnv}

	cmd := &cobra.Command{
		Use:           "apipager",
		Short:         "Fetch paginated records from a bearer-token API",
		SilenceUsage:  true,
		Example: `  # Print a token for the configured credentials
  APIPAGER_USERNAME=user APIPAGER_PASSWORD=secret apipager token --base-uri https://api.example.com

  # Fetch every page of /users filtered by status
  apipager fetch users --all --param status=active

  # Walk a public API with a placeholder token
  apipager fetch posts --all --dummy-token demo --base-uri https://jsonplaceholder.example.com

  # Link local user 42 to their remote records
  apipager sync 42 --config apipager.yaml`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&a.baseURI, "base-uri", "", "API base URI (overrides config and "+config.EnvBaseURI+")")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	cmd.AddCommand(newTokenCmd(a), newFetchCmd(a), newSyncCmd(a))
	return cmd
}

// setup loads the configuration, configures logging and starts the metrics
// endpoint when requested.
func (a *app) setup(cmd *cobra.Command) error {
	lookup := a.lookupEnv
	if a.baseURI != "" {
		lookup = overrideEnv(lookup, config.EnvBaseURI, a.baseURI)
	}

	cfg, err := config.LoadWithEnv(a.configPath, lookup)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.debug {
		cfg.Logging.Level = logging.LevelDebug
	}
	cfg.Logging.Output = cmd.ErrOrStderr()
	logging.Setup(cfg.Logging)

	a.cfg = cfg
	a.logger = logging.NewLogger(logging.ComponentCLI)

	if a.metricsAddr != "" {
		go func(ctx context.Context) {
			if err := metrics.Serve(ctx, a.metricsAddr); err != nil {
				a.logger.Error().Err(err).Str("addr", a.metricsAddr).Msg("Metrics server failed")
			}
		}(cmd.Context())
	}
	return nil
}

// overrideEnv returns a lookup that answers value for key.
func overrideEnv(lookup func(string) (string, bool), key, value string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		if k == key {
			return value, true
		}
		return lookup(k)
	}
}

// newClient builds the HTTP client from the configuration.
func (a *app) newClient() (*client.Client, error) {
	return client.New(a.cfg.ClientConfig())
}

// newTokenProvider builds a token provider; dummyToken overrides the
// configured fixed token.
func (a *app) newTokenProvider(c *client.Client, dummyToken string) (*auth.TokenProvider, error) {
	cfg := a.cfg.TokenProviderConfig()
	if dummyToken != "" {
		cfg.DummyToken = dummyToken
	}
	return auth.NewTokenProvider(c, cfg)
}

// newFetcher builds a fetcher authenticating with the configured credentials.
func (a *app) newFetcher(c *client.Client, dummyToken string) (*pagination.Fetcher, error) {
	provider, err := a.newTokenProvider(c, dummyToken)
	if err != nil {
		return nil, err
	}
	return pagination.NewFetcher(c, provider.Source(a.cfg.Credentials()), a.cfg.FetcherConfig())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
