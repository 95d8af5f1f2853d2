// Package metrics collects and exposes Prometheus metrics for auth
// operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jurisprep/authd/internal/model"
)

// Collector implements session.Recorder on top of Prometheus.
type Collector struct {
	signInSuccess     *prometheus.CounterVec
	signInFailure     *prometheus.CounterVec
	signUps           *prometheus.CounterVec
	magicLinkRequests *prometheus.CounterVec
	tokenRefreshes    prometheus.Counter
	profileFetches    *prometheus.CounterVec
	requests          *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signInSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_sign_in_success_total",
			Help: "Successful sign-in operations by method.",
		}, []string{"method"}),
		signInFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_sign_in_failure_total",
			Help: "Failed sign-in operations by method and error code.",
		}, []string{"method", "code"}),
		signUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_sign_up_total",
			Help: "Sign-up operations by result.",
		}, []string{"result"}),
		magicLinkRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_magic_link_request_total",
			Help: "Magic-link email requests by result. Acceptance is not a sign-in.",
		}, []string{"result"}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authd_token_refresh_total",
			Help: "Provider-pushed token refreshes applied.",
		}),
		profileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_profile_fetch_total",
			Help: "Profile fetches by outcome (ok, error, stale).",
		}, []string{"outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authd_request_duration_seconds",
			Help:    "Local API request duration by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.signInSuccess,
		c.signInFailure,
		c.signUps,
		c.magicLinkRequests,
		c.tokenRefreshes,
		c.profileFetches,
		c.requests,
	)

	return c
}

// ObserveSignIn records a sign-in attempt outcome.
func (c *Collector) ObserveSignIn(method string, authErr *model.AuthError) {
	if authErr == nil {
		c.signInSuccess.WithLabelValues(method).Inc()
		return
	}
	c.signInFailure.WithLabelValues(method, authErr.Code).Inc()
}

// ObserveSignUp records a sign-up attempt outcome.
func (c *Collector) ObserveSignUp(authErr *model.AuthError) {
	if authErr == nil {
		c.signUps.WithLabelValues("ok").Inc()
		return
	}
	c.signUps.WithLabelValues(authErr.Code).Inc()
}

// ObserveMagicLinkRequest records a magic-link email request outcome.
func (c *Collector) ObserveMagicLinkRequest(authErr *model.AuthError) {
	if authErr == nil {
		c.magicLinkRequests.WithLabelValues("ok").Inc()
		return
	}
	c.magicLinkRequests.WithLabelValues(authErr.Code).Inc()
}

// ObserveTokenRefresh records an applied token refresh.
func (c *Collector) ObserveTokenRefresh() {
	c.tokenRefreshes.Inc()
}

// ObserveProfileFetch records a profile fetch outcome.
func (c *Collector) ObserveProfileFetch(outcome string) {
	c.profileFetches.WithLabelValues(outcome).Inc()
}

// ObserveRequest records a completed local API request.
func (c *Collector) ObserveRequest(method, route string, seconds float64) {
	c.requests.WithLabelValues(method, route).Observe(seconds)
}

// Handler exposes the registry in Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
