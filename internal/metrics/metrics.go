package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// TickOutcome labels how a polling tick ended.
type TickOutcome string

const (
	TickSkipped      TickOutcome = "skipped"
	TickMarketClosed TickOutcome = "market_closed"
	TickFetchFailed  TickOutcome = "fetch_failed"
	TickCommitFailed TickOutcome = "commit_failed"
	TickBaseline     TickOutcome = "baseline"
	TickNoChange     TickOutcome = "no_change"
	TickNotified     TickOutcome = "notified"
)

// Set owns the service's Prometheus collectors. A nil Set is a valid no-op
// recorder, so callers never need to guard instrumentation sites.
type Set struct {
	registry *prometheus.Registry

	ticks       *prometheus.CounterVec
	fetchErrors prometheus.Counter
	deliveries  *prometheus.CounterVec
}

// NewSet builds a registry with the service collectors registered.
func NewSet() *Set {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Set{
		registry: registry,
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caucionwatcher",
			Name:      "ticks_total",
			Help:      "Polling ticks by outcome.",
		}, []string{"outcome"}),
		fetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "caucionwatcher",
			Name:      "fetch_errors_total",
			Help:      "Failed broker rate fetches.",
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caucionwatcher",
			Name:      "notification_deliveries_total",
			Help:      "Subscriber notification deliveries by result.",
		}, []string{"result"}),
	}
}

// ObserveTick counts one finished tick.
func (s *Set) ObserveTick(outcome TickOutcome) {
	if s == nil {
		return
	}
	s.ticks.WithLabelValues(string(outcome)).Inc()
}

// ObserveFetchError counts one failed broker fetch.
func (s *Set) ObserveFetchError() {
	if s == nil {
		return
	}
	s.fetchErrors.Inc()
}

// ObserveDelivery counts one notification delivery attempt.
func (s *Set) ObserveDelivery(ok bool) {
	if s == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	s.deliveries.WithLabelValues(result).Inc()
}

const gaugeQueryTimeout = 3 * time.Second

// RegisterSubscriberGauges exposes live subscription counts straight from
// the database, so the gauge survives process restarts without warm-up.
func (s *Set) RegisterSubscriberGauges(pool *pgxpool.Pool, logger zerolog.Logger) {
	if s == nil || pool == nil {
		return
	}

	counter := func(query string) func() float64 {
		return func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), gaugeQueryTimeout)
			defer cancel()

			var count int64
			if err := pool.QueryRow(ctx, query).Scan(&count); err != nil {
				logger.Warn().Err(err).Msg("subscriber gauge query failed")
				return 0
			}
			return float64(count)
		}
	}

	promauto.With(s.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "caucionwatcher",
		Name:      "subscriptions_total",
		Help:      "Registered subscriptions, paused included.",
	}, counter(`SELECT COUNT(*) FROM subscriptions`))

	promauto.With(s.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "caucionwatcher",
		Name:      "subscriptions_active",
		Help:      "Subscriptions with notifications enabled.",
	}, counter(`SELECT COUNT(*) FROM subscriptions WHERE preference <> 'paused'`))
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Set) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics listener until ctx is cancelled.
func (s *Set) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics listener started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
