package metrics

import (
	"errors"
	"io/ioutil"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePoll(t *testing.T) {
	okBefore := testutil.ToFloat64(pollsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(pollsTotal.WithLabelValues("error"))

	ObservePoll(nil)
	ObservePoll(errors.New("boom"))
	ObservePoll(errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(pollsTotal.WithLabelValues("ok")))
	assert.Equal(t, errBefore+2, testutil.ToFloat64(pollsTotal.WithLabelValues("error")))
	assert.NotZero(t, testutil.ToFloat64(lastPollTimestamp))
}

func TestObserveEventAndReconnect(t *testing.T) {
	ObserveEvent("VideoMotion", "Start")
	ObserveReconnect("vto")
	ObserveReconnect("vto")

	assert.Equal(t, float64(1), testutil.ToFloat64(eventsTotal.WithLabelValues("VideoMotion", "Start")))
	assert.Equal(t, float64(2), testutil.ToFloat64(reconnectsTotal.WithLabelValues("vto")))
}

func TestSetReady(t *testing.T) {
	SetReady(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(deviceReady))
	SetReady(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(deviceReady))
}

func TestHandler(t *testing.T) {
	ObserveEvent("DoorbellPressed", "Pulse")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := ioutil.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dahua_bridge_events_total{action="Pulse",code="DoorbellPressed"}`)
}

func TestObserveHTTPRequest(t *testing.T) {
	ObserveHTTPRequest("/command/{name}", "POST", 204)

	assert.Equal(t, float64(1), testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/command/{name}", "POST", "204")))
}
