// Package metrics registers the Prometheus collectors exported by voicedotd.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts handled requests per route, method and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedot_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"handler", "method", "code"},
	)

	// HTTPRequestErrors counts requests that ended in a 5xx.
	HTTPRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedot_http_request_errors_total",
			Help: "Total number of HTTP requests that resulted in a server error.",
		},
		[]string{"handler", "method"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicedot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"handler", "method"},
	)

	// RateLimitDecisions counts limiter outcomes per route and backend.
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedot_ratelimit_decisions_total",
			Help: "Rate limiter decisions by route, backend and result.",
		},
		[]string{"route", "backend", "result"},
	)

	// LedgerTransitions counts status changes applied to transaction records.
	LedgerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedot_ledger_transitions_total",
			Help: "Transaction status transitions.",
		},
		[]string{"from", "to"},
	)

	// ChainRPCCalls counts node RPC calls.
	ChainRPCCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedot_chain_rpc_calls_total",
			Help: "Total number of chain RPC calls.",
		},
		[]string{"chain", "method"},
	)

	// ChainRPCErrors counts failed node RPC calls.
	ChainRPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedot_chain_rpc_errors_total",
			Help: "Total number of failed chain RPC calls.",
		},
		[]string{"chain", "method"},
	)

	// ChainRPCLatency tracks node RPC latency.
	ChainRPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicedot_chain_rpc_latency_seconds",
			Help:    "Chain RPC call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)

	// IntentExtractions counts extraction attempts by path (llm, fallback, failed).
	IntentExtractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedot_intent_extractions_total",
			Help: "Intent extraction attempts by path.",
		},
		[]string{"path"},
	)

	// SpeechDegradations counts speech collaborator failures that were absorbed.
	SpeechDegradations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedot_speech_degradations_total",
			Help: "Speech operations that degraded to text-only responses.",
		},
		[]string{"operation"},
	)

	// EventsPublished counts domain events by driver and outcome.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicedot_events_published_total",
			Help: "Domain events published by driver and result.",
		},
		[]string{"driver", "result"},
	)

	// NATSConnected reports whether the shared NATS connection is up.
	NATSConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicedot_nats_connected",
			Help: "1 when the NATS connection is established, 0 otherwise.",
		},
	)
)

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		HTTPRequestErrors.WithLabelValues(handler, method).Inc()
	}
	HTTPRequestDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveChainCall records a single RPC round trip against a chain node.
func ObserveChainCall(chain, method string, duration time.Duration, err error) {
	ChainRPCCalls.WithLabelValues(chain, method).Inc()
	ChainRPCLatency.WithLabelValues(chain, method).Observe(duration.Seconds())
	if err != nil {
		ChainRPCErrors.WithLabelValues(chain, method).Inc()
	}
}

// ObserveRateLimit records one limiter decision.
func ObserveRateLimit(route, backend, result string) {
	RateLimitDecisions.WithLabelValues(route, backend, result).Inc()
}

// ObserveTransition records a ledger status change for n records.
func ObserveTransition(from, to string, n int) {
	LedgerTransitions.WithLabelValues(from, to).Add(float64(n))
}

// ObserveExtraction records which path produced (or failed to produce) an intent.
func ObserveExtraction(path string) {
	IntentExtractions.WithLabelValues(path).Inc()
}

// ObserveSpeechDegradation records an absorbed speech failure.
func ObserveSpeechDegradation(operation string) {
	SpeechDegradations.WithLabelValues(operation).Inc()
}

// ObserveEvent records a publish attempt.
func ObserveEvent(driver string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(driver, result).Inc()
}

// Handler exposes the default registry in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
