package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	kycSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_submissions_total",
			Help: "KYC submissions by role and result.",
		},
		[]string{"role", "result"},
	)

	kycDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_decisions_total",
			Help: "KYC review decisions by role and outcome.",
		},
		[]string{"role", "outcome"},
	)

	kycPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kyc_pending_cases",
		Help: "Cases waiting for review.",
	})

	serviceReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "akwaba_kyc_build_info",
		Help: "Always 1; labels carry the running version and commit.",
	}, []string{"version", "commit"})

	initOnce sync.Once
	ready    atomic.Bool
)

// Init registers the metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			kycSubmissions, kycDecisions, kycPending, serviceReady, buildInfo)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSubmission counts a submission attempt. result is "accepted" or an error class.
func ObserveSubmission(role, result string) {
	kycSubmissions.WithLabelValues(strings.ToUpper(role), result).Inc()
}

// ObserveDecision counts a committed review decision.
func ObserveDecision(role, outcome string) {
	kycDecisions.WithLabelValues(strings.ToUpper(role), strings.ToUpper(outcome)).Inc()
}

// SetBuildInfo publishes the running build. Only one label set is kept.
func SetBuildInfo(version, commit string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// SetPendingCases records the review backlog.
func SetPendingCases(n int) {
	kycPending.Set(float64(n))
}

// SetReady flips readiness for /readyz and the gRPC health service.
func SetReady(v bool) {
	ready.Store(v)
	if v {
		serviceReady.Set(1)
	} else {
		serviceReady.Set(0)
	}
}

// Ready reports the last value passed to SetReady.
func Ready() bool { return ready.Load() }

// Instrument records in-flight, count and latency per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses path parameters so label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) == 4 && parts[0] == "v1" && parts[1] == "kyc" {
		switch parts[2] {
		case "policies":
			return "/v1/kyc/policies/:role"
		case "cases":
			if parts[3] != "me" {
				return "/v1/kyc/cases/:id"
			}
		}
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
