// Package usersync links a local user to a remote API account: it reads the
// user's external ID from the profile store, fetches the matching remote
// records and logs the IDs found.
package usersync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/apipager/pkg/logging"
	"github.com/Sternrassler/apipager/pkg/pagination"
	"github.com/Sternrassler/apipager/pkg/profile"
	"github.com/Sternrassler/apipager/pkg/recordlog"
	"github.com/rs/zerolog"
)

// ErrNoExternalID is returned when the user's profile has no external ID.
var ErrNoExternalID = errors.New("user has no external id")

// Config holds synchronization settings.
type Config struct {
	// Endpoint is the list endpoint queried for the user's records.
	Endpoint string `yaml:"endpoint" validate:"required"`

	// ProfileField is the profile field holding the external ID.
	ProfileField string `yaml:"profile_field" validate:"required"`

	// QueryParam carries the external ID in the list query.
	QueryParam string `yaml:"query_param" validate:"required"`

	// SecondaryField is read from the first record as the second external ID.
	SecondaryField string `yaml:"secondary_field"`
}

// DefaultConfig returns the default synchronization settings.
func DefaultConfig() Config {
	return Config{
		Endpoint:       "users",
		ProfileField:   "external_id",
		QueryParam:     "external_id",
		SecondaryField: "id",
	}
}

// Result describes one synchronization run.
type Result struct {
	UserID      string
	ExternalID1 string
	ExternalID2 string
	Records     []pagination.Record
	Entry       recordlog.Entry
}

// Syncer runs synchronizations.
type Syncer struct {
	profiles profile.Store
	fetcher  *pagination.Fetcher
	records  recordlog.Log
	config   Config
	logger   zerolog.Logger
}

// New creates a syncer.
func New(profiles profile.Store, fetcher *pagination.Fetcher, records recordlog.Log, cfg Config) (*Syncer, error) {
	if profiles == nil || fetcher == nil || records == nil {
		return nil, errors.New("profile store, fetcher and record log are required")
	}
	if cfg.Endpoint == "" || cfg.ProfileField == "" || cfg.QueryParam == "" {
		return nil, fmt.Errorf("incomplete sync config: %+v", cfg)
	}

	return &Syncer{
		profiles: profiles,
		fetcher:  fetcher,
		records:  records,
		config:   cfg,
		logger:   logging.NewLogger(logging.ComponentUserSync),
	}, nil
}

// Sync fetches the remote records of userID and appends a log entry.
// Nothing is logged when the fetch fails.
func (s *Syncer) Sync(ctx context.Context, userID string) (*Result, error) {
	start := time.Now()

	externalID, err := s.profiles.Lookup(ctx, userID, s.config.ProfileField)
	if err != nil {
		return nil, fmt.Errorf("lookup %s of user %s: %w", s.config.ProfileField, userID, err)
	}
	if externalID == "" {
		return nil, fmt.Errorf("%w: user %s, field %s", ErrNoExternalID, userID, s.config.ProfileField)
	}

	params := url.Values{}
	params.Set(s.config.QueryParam, externalID)

	records, err := s.fetcher.GetAllPages(ctx, s.config.Endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("fetch records of user %s: %w", userID, err)
	}

	secondary := ""
	if len(records) > 0 && s.config.SecondaryField != "" {
		secondary = stringValue(records[0][s.config.SecondaryField])
	}

	entry := recordlog.NewEntry(userID, externalID, secondary)
	if err := s.records.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("log sync of user %s: %w", userID, err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("records", len(records)).
		Bool("has_secondary_id", secondary != "").
		Dur("duration", time.Since(start)).
		Msg("User synchronized")

	return &Result{
		UserID:      userID,
		ExternalID1: externalID,
		ExternalID2: secondary,
		Records:     records,
		Entry:       entry,
	}, nil
}

// stringValue renders a scalar JSON value as a string. Objects, lists and
// null read as "".
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case float64, bool:
		return fmt.Sprint(val)
	default:
		return ""
	}
}
