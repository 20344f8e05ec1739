// Package metrics exposes the Prometheus metrics of the API client.
// All metrics are defined in their respective packages (client, pagination)
// via promauto to keep those packages free of a central dependency.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/apipager/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the API client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns an HTTP handler exposing the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	logger := logging.NewLogger(logging.ComponentCLI)

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - apipager_requests_total{stage, status} (Counter): Requests by stage (auth, fetch) and HTTP status
//   - apipager_request_duration_seconds{stage} (Histogram): Request duration by stage
//
// Retry Metrics (pkg/client):
//   - apipager_retries_total{stage} (Counter): Retry attempts after transport failures
//   - apipager_retry_exhausted_total{stage} (Counter): Requests that used up the retry budget
//
// Pagination Metrics (pkg/pagination):
//   - apipager_pages_fetched_total (Counter): Pages fetched and parsed
//   - apipager_records_fetched_total (Counter): Records merged from fetched pages
//   - apipager_sessions_total{outcome} (Counter): GetAllPages calls by outcome (done, partial, failed)
//
// Example Prometheus Queries:
//
//   # Login failure rate
//   sum(rate(apipager_requests_total{stage="auth",status!="200"}[5m]))
//     / sum(rate(apipager_requests_total{stage="auth"}[5m]))
//
//   # Average records per page
//   rate(apipager_records_fetched_total[5m]) / rate(apipager_pages_fetched_total[5m])
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(apipager_request_duration_seconds_bucket{stage="fetch"}[5m]))
