package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/apipager/pkg/pagination"
	"github.com/Sternrassler/apipager/pkg/profile"
	"github.com/Sternrassler/apipager/pkg/recordlog"
	"github.com/Sternrassler/apipager/pkg/usersync"
)

func newTokenCmd(a *app) *cobra.Command {
	var dummyToken string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Log in and print the bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.newClient()
			if err != nil {
				return err
			}
			provider, err := a.newTokenProvider(c, dummyToken)
			if err != nil {
				return err
			}

			token, err := provider.GetToken(cmd.Context(), a.cfg.Credentials())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&dummyToken, "dummy-token", "", "return this token without logging in")
	return cmd
}

func newFetchCmd(a *app) *cobra.Command {
	var (
		all        bool
		rawParams  []string
		dummyToken string
	)

	cmd := &cobra.Command{
		Use:   "fetch <endpoint>",
		Short: "Fetch records from a list endpoint and print them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(rawParams)
			if err != nil {
				return err
			}

			c, err := a.newClient()
			if err != nil {
				return err
			}
			fetcher, err := a.newFetcher(c, dummyToken)
			if err != nil {
				return err
			}

			var records []pagination.Record
			if all {
				records, err = fetcher.GetAllPages(cmd.Context(), args[0], params)
			} else {
				records, err = fetcher.GetPage(cmd.Context(), args[0], params)
			}

			var partial *pagination.PartialError
			if err != nil && !errors.As(err, &partial) {
				return err
			}
			if werr := writeJSON(cmd.OutOrStdout(), records); werr != nil {
				return werr
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "follow pagination across all pages")
	cmd.Flags().StringArrayVar(&rawParams, "param", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&dummyToken, "dummy-token", "", "use this token instead of logging in")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <user-id>",
		Short: "Link a local user to their remote records and log the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rdb := redis.NewClient(a.cfg.RedisOptions())
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
			}

			c, err := a.newClient()
			if err != nil {
				return err
			}
			fetcher, err := a.newFetcher(c, "")
			if err != nil {
				return err
			}

			syncer, err := usersync.New(
				profile.NewRedisStore(rdb),
				fetcher,
				recordlog.NewRedisLog(rdb, a.cfg.Redis.Stream),
				a.cfg.Sync,
			)
			if err != nil {
				return err
			}

			result, err := syncer.Sync(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), syncSummary{
				ID:          result.Entry.ID.String(),
				UserID:      result.UserID,
				ExternalID1: result.ExternalID1,
				ExternalID2: result.ExternalID2,
				Records:     len(result.Records),
			})
		},
	}
	return cmd
}

// syncSummary is the printed outcome of a sync.
type syncSummary struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	ExternalID1 string `json:"external_id_1"`
	ExternalID2 string `json:"external_id_2"`
	Records     int    `json:"records"`
}

// parseParams turns key=value pairs into query values. Repeated keys add values.
func parseParams(raw []string) (url.Values, error) {
	params := url.Values{}
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", kv)
		}
		params.Add(key, value)
	}
	return params, nil
}
