package observability

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelbook", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hotelbook", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelbook", Name: "gateway_requests_total", Help: "Payment gateway requests."},
		[]string{"endpoint", "status"},
	)
	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hotelbook", Name: "gateway_request_duration_seconds",
			Help:    "Payment gateway request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	LedgerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelbook", Name: "ledger_events_total", Help: "Inventory ledger events."},
		[]string{"event"}, // event: hold|reject|commit|release|expire
	)
	BookingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelbook", Name: "booking_outcomes_total", Help: "Booking lifecycle outcomes."},
		[]string{"outcome"}, // outcome: created|confirmed|cancelled|failed
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelbook", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
)

func Serve() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, GatewayRequests, GatewayLatency, LedgerEvents, BookingOutcomes, CacheEvents)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveGateway(endpoint string, status int, dur time.Duration) {
	GatewayRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	GatewayLatency.WithLabelValues(endpoint).Observe(dur.Seconds())
}

func ObserveLedger(event string) { // event: hold|reject|commit|release|expire
	LedgerEvents.WithLabelValues(event).Inc()
}

func ObserveBooking(outcome string) { // outcome: created|confirmed|cancelled|failed
	BookingOutcomes.WithLabelValues(outcome).Inc()
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}
