package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurisprep/authd/internal/model"
)

func TestCollector_ObserveSignIn(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveSignIn("password", nil)
	c.ObserveSignIn("password", nil)
	c.ObserveSignIn("magic_link", nil)
	c.ObserveSignIn("password", model.NewAuthError(model.CodeInvalidCredentials, 400))

	assert.InDelta(t, 2, promtestutil.ToFloat64(c.signInSuccess.WithLabelValues("password")), 0.001)
	assert.InDelta(t, 1, promtestutil.ToFloat64(c.signInSuccess.WithLabelValues("magic_link")), 0.001)
	assert.InDelta(t, 1, promtestutil.ToFloat64(c.signInFailure.WithLabelValues("password", model.CodeInvalidCredentials)), 0.001)
}

func TestCollector_ObserveSignUp(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveSignUp(nil)
	c.ObserveSignUp(model.NewAuthError(model.CodeUserAlreadyExists, 422))

	assert.InDelta(t, 1, promtestutil.ToFloat64(c.signUps.WithLabelValues("ok")), 0.001)
	assert.InDelta(t, 1, promtestutil.ToFloat64(c.signUps.WithLabelValues(model.CodeUserAlreadyExists)), 0.001)
}

func TestCollector_ObserveMagicLinkRequest(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveMagicLinkRequest(nil)
	c.ObserveMagicLinkRequest(model.NewAuthError(model.CodeProvider, 500))

	assert.InDelta(t, 1, promtestutil.ToFloat64(c.magicLinkRequests.WithLabelValues("ok")), 0.001)
	assert.InDelta(t, 1, promtestutil.ToFloat64(c.magicLinkRequests.WithLabelValues(model.CodeProvider)), 0.001)
	assert.InDelta(t, 0, promtestutil.ToFloat64(c.signInSuccess.WithLabelValues("magic_link")), 0.001)
}

func TestCollector_ObserveTokenRefreshAndProfileFetch(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveTokenRefresh()
	c.ObserveProfileFetch("ok")
	c.ObserveProfileFetch("stale")

	assert.InDelta(t, 1, promtestutil.ToFloat64(c.tokenRefreshes), 0.001)
	assert.InDelta(t, 1, promtestutil.ToFloat64(c.profileFetches.WithLabelValues("ok")), 0.001)
	assert.InDelta(t, 1, promtestutil.ToFloat64(c.profileFetches.WithLabelValues("stale")), 0.001)
}

func TestCollector_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveRequest("POST", "/api/auth/login", 0.05)
	c.ObserveRequest("POST", "/api/auth/login", 0.1)

	assert.Equal(t, 1, promtestutil.CollectAndCount(c.requests, "authd_request_duration_seconds"))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveSignIn("password", nil)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "authd_sign_in_success_total")
}
