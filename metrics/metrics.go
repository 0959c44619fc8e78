// Package metrics exposes Prometheus collectors for the HTTP API, the dues
// calculator and the arrears scheduler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "motohub"

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route and status",
	}, []string{"method", "route", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	CalculatorRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "dues_calculations_total", Help: "Liability tables computed",
	})
	CalculatorErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "dues_calculation_errors_total", Help: "Liability table computations that failed",
	})
	CalculatorDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "dues_calculation_seconds", Help: "Liability table latency, store reads included",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	MembersInArrears = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "members_in_arrears", Help: "Members with at least one owed, unpaid year",
	})
	OutstandingDues = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "outstanding_dues_total", Help: "Sum of unpaid dues across members",
	})
	ArrearsRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "arrears_runs_total", Help: "Arrears scheduler runs by outcome",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequests, HTTPDuration,
		CalculatorRuns, CalculatorErrors, CalculatorDuration,
		MembersInArrears, OutstandingDues, ArrearsRuns,
	)
}

func Handler() http.Handler { return promhttp.Handler() }

// ObserveCalculation matches dues.Calculator.Observe.
func ObserveCalculation(d time.Duration, err error) {
	CalculatorRuns.Inc()
	CalculatorDuration.Observe(d.Seconds())
	if err != nil {
		CalculatorErrors.Inc()
	}
}

// SetArrears publishes the latest arrears totals.
func SetArrears(members int, outstanding float64) {
	MembersInArrears.Set(float64(members))
	OutstandingDues.Set(outstanding)
}

// Middleware records request counts and latency keyed by chi route pattern,
// so /api/members/{id} is one series regardless of id.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
