package obs

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors the server exports.
type Metrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec

	// AdjustmentOps counts ledger operations by op (create, reverse, update)
	// and result (ok, client_error, not_found, error).
	AdjustmentOps *prometheus.CounterVec

	// CalculatorAssignments counts calculator type changes by type.
	CalculatorAssignments *prometheus.CounterVec
}

// NewMetrics registers and returns the collectors. A nil Registerer means the
// default one. Collectors that are already registered are reused.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route"}),
		AdjustmentOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adjustment_operations_total",
			Help:      "Count of adjustment ledger operations by outcome.",
		}, []string{"op", "result"}),
		CalculatorAssignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculator_assignments_total",
			Help:      "Count of calculator type assignments by type.",
		}, []string{"type"}),
	}
	m.ReqTotal = registerCounterVec(reg, m.ReqTotal)
	m.ReqDur = registerHistogramVec(reg, m.ReqDur)
	m.AdjustmentOps = registerCounterVec(reg, m.AdjustmentOps)
	m.CalculatorAssignments = registerCounterVec(reg, m.CalculatorAssignments)
	return m
}

// ObserveOp records one ledger operation. Safe on a nil receiver.
func (m *Metrics) ObserveOp(op, result string) {
	if m == nil {
		return
	}
	m.AdjustmentOps.WithLabelValues(op, result).Inc()
}

// ObserveAssignment records a calculator type assignment. Safe on a nil receiver.
func (m *Metrics) ObserveAssignment(calculatorType string) {
	if m == nil {
		return
	}
	m.CalculatorAssignments.WithLabelValues(calculatorType).Inc()
}

// Middleware instruments requests with a counter and a latency histogram.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)

		route := routePattern(r)
		if route == "" {
			route = "unknown"
		}
		m.ReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.Status())).Inc()
		m.ReqDur.WithLabelValues(r.Method, route).Observe(DurationMillis(time.Since(start)))
	})
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register counter: %w", err))
	}
	return c
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register histogram: %w", err))
	}
	return h
}
