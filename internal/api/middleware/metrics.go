// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recsched_http_requests_in_flight",
		Help: "Requests currently being served.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recsched_http_request_duration_seconds",
		Help:    "Request latency by route pattern.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"code", "method", "route"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recsched_http_response_size_bytes",
		Help:    "Response body size by route pattern.",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"code", "method", "route"})
)

// routeLabel reads the chi pattern after routing so /recordings/{id} stays a
// single series. Unmatched requests share one label.
func routeLabel(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Metrics instruments requests with in-flight, latency and size collectors.
func Metrics() func(http.Handler) http.Handler {
	route := promhttp.WithLabelFromCtx("route", routeLabel)
	return func(next http.Handler) http.Handler {
		h := promhttp.InstrumentHandlerResponseSize(httpResponseSize, next, route)
		h = promhttp.InstrumentHandlerDuration(httpDuration, h, route)
		return promhttp.InstrumentHandlerInFlight(httpInFlight, h)
	}
}
