package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIncAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("/sensor/latest", "GET", "200"))
	IncAPIRequest("/sensor/latest", "GET", "200")
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("/sensor/latest", "GET", "200"))
	assert.Equal(t, before+1, after)
}

func TestIncRefresh(t *testing.T) {
	before := testutil.ToFloat64(SessionRefreshTotal.WithLabelValues("success"))
	IncRefresh("success")
	assert.Equal(t, before+1, testutil.ToFloat64(SessionRefreshTotal.WithLabelValues("success")))
}

func TestObserveDuration_Histogram(t *testing.T) {
	ObserveDuration(APIRequestDuration, time.Now().Add(-10*time.Millisecond), "/devices", "GET")
	assert.GreaterOrEqual(t, testutil.CollectAndCount(APIRequestDuration), 1)
}

func TestObserveDuration_IgnoresOtherTypes(t *testing.T) {
	assert.NotPanics(t, func() { ObserveDuration("not a metric", time.Now()) })
}
