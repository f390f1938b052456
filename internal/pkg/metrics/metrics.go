package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dahua_bridge"

var (
	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Device refreshes by result",
		},
		[]string{"result"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Device events accepted, by translated code and action",
		},
		[]string{"code", "action"},
	)

	reconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_reconnects_total",
			Help:      "Background listener reconnect attempts",
		},
		[]string{"listener"},
	)

	deviceReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_ready",
			Help:      "1 once the device has been probed and is being polled",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route template, method and status",
		},
		[]string{"route", "method", "status"},
	)

	lastPollTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_poll_timestamp_seconds",
			Help:      "Unix time of the last successful refresh",
		},
	)
)

func init() {
	prometheus.MustRegister(pollsTotal, eventsTotal, reconnectsTotal, httpRequestsTotal, deviceReady, lastPollTimestamp)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePoll counts one refresh
func ObservePoll(err error) {
	if err != nil {
		pollsTotal.WithLabelValues("error").Inc()
		return
	}

	pollsTotal.WithLabelValues("ok").Inc()
	lastPollTimestamp.SetToCurrentTime()
}

func ObserveEvent(code string, action string) {
	eventsTotal.WithLabelValues(code, action).Inc()
}

func ObserveReconnect(listener string) {
	reconnectsTotal.WithLabelValues(listener).Inc()
}

func ObserveHTTPRequest(route string, method string, status int) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

func SetReady(ready bool) {
	if ready {
		deviceReady.Set(1)
	} else {
		deviceReady.Set(0)
	}
}
