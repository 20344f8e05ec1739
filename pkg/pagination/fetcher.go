package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/apipager/pkg/client"
	"github.com/Sternrassler/apipager/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for paginated fetches.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apipager_pages_fetched_total",
		Help: "Total number of pages fetched",
	})

	recordsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apipager_records_fetched_total",
		Help: "Total number of records merged from fetched pages",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apipager_sessions_total",
		Help: "Total multi-page fetch sessions by outcome",
	}, []string{"outcome"})
)

// FailurePolicy decides what GetAllPages returns when a page fetch fails
// after earlier pages succeeded.
type FailurePolicy string

const (
	// FailurePolicyAbort discards the merged records and returns only the error.
	FailurePolicyAbort FailurePolicy = "abort"

	// FailurePolicyPartial returns the records merged so far together with a
	// *PartialError wrapping the failure.
	FailurePolicyPartial FailurePolicy = "partial"
)

// ErrNoTokenSource is returned when a fetcher has neither a token nor a source.
var ErrNoTokenSource = fmt.Errorf("%w: no token or token source", client.ErrInvalidArgument)

// PartialError reports a failed multi-page fetch whose earlier pages are
// still returned to the caller.
type PartialError struct {
	Pages   int
	Records int
	Err     error
}

// Error implements the error interface.
func (e *PartialError) Error() string {
	return fmt.Sprintf("partial result (%d pages, %d records): %v", e.Pages, e.Records, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PartialError) Unwrap() error {
	return e.Err
}

// TokenSource supplies the bearer token for a session.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config holds fetcher configuration.
type Config struct {
	// Schema maps pagination fields to the API's field names.
	Schema Schema

	// Limit is the page size requested when params do not carry one.
	Limit int

	// StartPage is the first page requested when params do not carry one.
	StartPage int

	// MaxPages bounds the number of pages one GetAllPages call fetches.
	MaxPages int

	// SinglePage stops GetAllPages after the first page.
	SinglePage bool

	// FailurePolicy applies to page failures after authentication.
	FailurePolicy FailurePolicy

	// Token is a pre-supplied token that skips the token source.
	Token string
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		Schema:        DefaultSchema(),
		Limit:         50,
		StartPage:     1,
		MaxPages:      1000,
		FailurePolicy: FailurePolicyAbort,
	}
}

// Fetcher retrieves pages from one API. A Fetcher is not safe for
// concurrent use; each GetAllPages call is one sequential session.
type Fetcher struct {
	client *client.Client
	tokens TokenSource
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a fetcher. tokens may be nil when cfg.Token is set.
func NewFetcher(c *client.Client, tokens TokenSource, cfg Config) (*Fetcher, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: client is required", client.ErrInvalidArgument)
	}
	if tokens == nil && cfg.Token == "" {
		return nil, ErrNoTokenSource
	}
	if err := cfg.Schema.Validate(); err != nil {
		return nil, err
	}
	if cfg.Limit < 1 {
		return nil, fmt.Errorf("%w: limit must be >= 1 (got %d)", client.ErrInvalidArgument, cfg.Limit)
	}
	if cfg.StartPage < 1 {
		return nil, fmt.Errorf("%w: start page must be >= 1 (got %d)", client.ErrInvalidArgument, cfg.StartPage)
	}
	if cfg.MaxPages < 1 {
		return nil, fmt.Errorf("%w: max pages must be >= 1 (got %d)", client.ErrInvalidArgument, cfg.MaxPages)
	}
	switch cfg.FailurePolicy {
	case FailurePolicyAbort, FailurePolicyPartial:
	case "":
		cfg.FailurePolicy = FailurePolicyAbort
	default:
		return nil, fmt.Errorf("%w: unknown failure policy %q", client.ErrInvalidArgument, cfg.FailurePolicy)
	}

	return &Fetcher{
		client: c,
		tokens: tokens,
		config: cfg,
		logger: logging.NewLogger(logging.ComponentFetcher),
	}, nil
}

// SetToken sets a pre-supplied token. An empty token restores the token source.
func (f *Fetcher) SetToken(token string) {
	f.config.Token = token
}

// Config returns the fetcher configuration.
func (f *Fetcher) Config() Config {
	return f.config
}

// GetPage fetches a single page and returns its records. An empty or
// missing records list yields an empty slice, not an error.
func (f *Fetcher) GetPage(ctx context.Context, endpoint string, params url.Values) ([]Record, error) {
	page, err := f.FetchPage(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	return page.Records, nil
}

// FetchPage fetches a single page and returns it with its pagination fields.
func (f *Fetcher) FetchPage(ctx context.Context, endpoint string, params url.Values) (*Page, error) {
	s := newSession(f.logger, endpoint)

	token, err := f.authenticate(ctx, s)
	if err != nil {
		return nil, err
	}

	pageNum, limit := f.startPage(params), f.limit(params)
	s.transition(StateFetchingPage, pageNum)
	page, err := f.fetchPage(ctx, token, endpoint, params, pageNum, limit)
	if err != nil {
		s.transition(StateFailed, pageNum)
		return nil, err
	}
	s.transition(StateDone, pageNum)
	return page, nil
}

// GetAllPages fetches pages starting at the start page and merges their
// records in fetch order. The loop stops after the first empty page, after
// the page count derived from the first response carrying both a total and
// a page number, after MaxPages pages, or after one page in SinglePage mode.
func (f *Fetcher) GetAllPages(ctx context.Context, endpoint string, params url.Values) ([]Record, error) {
	start := time.Now()
	s := newSession(f.logger, endpoint)

	token, err := f.authenticate(ctx, s)
	if err != nil {
		sessionsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	pageNum, limit := f.startPage(params), f.limit(params)
	records := make([]Record, 0)
	totalPages := 0
	fetched := 0

	for {
		if fetched >= f.config.MaxPages {
			f.logger.Warn().
				Str("endpoint", endpoint).
				Int("max_pages", f.config.MaxPages).
				Int("records", len(records)).
				Msg("Page limit reached - stopping pagination")
			break
		}

		s.transition(StateFetchingPage, pageNum)
		page, err := f.fetchPage(ctx, token, endpoint, params, pageNum, limit)
		if err != nil {
			s.transition(StateFailed, pageNum)
			return f.onPageFailure(endpoint, records, fetched, err)
		}
		fetched++
		records = append(records, page.Records...)

		// The page count is fixed by the first response that reports it.
		if totalPages == 0 && page.TotalRecords != 0 && page.PageNumber != 0 {
			pageLimit := page.Limit
			if pageLimit == 0 {
				pageLimit = limit
			}
			totalPages = TotalPages(page.TotalRecords, pageLimit)
		}

		f.logger.Debug().
			Str("endpoint", endpoint).
			Int("page", pageNum).
			Int("total_pages", totalPages).
			Int("records_in_page", len(page.Records)).
			Int("records_so_far", len(records)).
			Msg("Page fetched")

		if f.config.SinglePage || len(page.Records) == 0 {
			break
		}
		pageNum++
		if totalPages != 0 && pageNum > totalPages {
			break
		}
	}

	s.transition(StateDone, pageNum)
	sessionsTotal.WithLabelValues("done").Inc()

	f.logger.Info().
		Str("endpoint", endpoint).
		Int("pages", fetched).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Pagination complete")

	return records, nil
}

// onPageFailure applies the failure policy to a failed page fetch.
func (f *Fetcher) onPageFailure(endpoint string, records []Record, fetched int, err error) ([]Record, error) {
	if f.config.FailurePolicy == FailurePolicyPartial {
		sessionsTotal.WithLabelValues("partial").Inc()
		f.logger.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Int("pages", fetched).
			Int("records", len(records)).
			Msg("Page fetch failed - returning partial results")
		return records, &PartialError{Pages: fetched, Records: len(records), Err: err}
	}

	sessionsTotal.WithLabelValues("failed").Inc()
	f.logger.Error().
		Err(err).
		Str("endpoint", endpoint).
		Int("pages", fetched).
		Msg("Page fetch failed - aborting")
	return nil, err
}

// authenticate returns the pre-supplied token or asks the token source.
func (f *Fetcher) authenticate(ctx context.Context, s *session) (string, error) {
	if f.config.Token != "" {
		return f.config.Token, nil
	}

	s.transition(StateAuthenticating, 0)
	token, err := f.tokens.Token(ctx)
	if err == nil && token == "" {
		err = &client.RequestError{Kind: client.KindTokenMissing, Message: "token source returned an empty token"}
	}
	if err != nil {
		s.transition(StateFailed, 0)
		return "", client.WithStage(err, client.StageAuth)
	}
	return token, nil
}

// fetchPage performs one GET for pageNum and parses the response.
func (f *Fetcher) fetchPage(ctx context.Context, token, endpoint string, params url.Values, pageNum, limit int) (*Page, error) {
	resp, err := f.client.Do(ctx, &client.Request{
		Stage:    client.StageFetch,
		Endpoint: endpoint,
		Query:    f.pageQuery(params, pageNum, limit),
		Token:    token,
	})
	if err != nil {
		return nil, err
	}

	page, err := ParsePage(resp.Body, f.config.Schema)
	if err != nil {
		var reqErr *client.RequestError
		if errors.As(err, &reqErr) {
			reqErr.Stage = client.StageFetch
			reqErr.Endpoint = endpoint
		}
		return nil, err
	}

	if page.SchemaMismatch {
		f.logger.Warn().
			Str("endpoint", endpoint).
			Int("page", pageNum).
			Str("records_field", f.config.Schema.Records).
			Msg("Response has no records list - treating page as empty")
	}
	if page.Skipped > 0 {
		f.logger.Warn().
			Str("endpoint", endpoint).
			Int("page", pageNum).
			Int("skipped", page.Skipped).
			Int("records_in_page", len(page.Records)).
			Msg("Skipped records-list items that are not objects")
	}

	pagesFetchedTotal.Inc()
	recordsFetchedTotal.Add(float64(len(page.Records)))
	return page, nil
}

// pageQuery copies params and sets the page number and limit under the
// schema's parameter names.
func (f *Fetcher) pageQuery(params url.Values, pageNum, limit int) url.Values {
	q := make(url.Values, len(params)+2)
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	q.Set(f.config.Schema.PageNumber, strconv.Itoa(pageNum))
	q.Set(f.config.Schema.PageLimit, strconv.Itoa(limit))
	return q
}

// startPage returns the caller-supplied page number or the configured start page.
func (f *Fetcher) startPage(params url.Values) int {
	if n, err := strconv.Atoi(params.Get(f.config.Schema.PageNumber)); err == nil && n >= 1 {
		return n
	}
	return f.config.StartPage
}

// limit returns the caller-supplied limit or the configured one.
func (f *Fetcher) limit(params url.Values) int {
	if n, err := strconv.Atoi(params.Get(f.config.Schema.PageLimit)); err == nil && n >= 1 {
		return n
	}
	return f.config.Limit
}
