// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "faceclient"

type metrics struct {
	registerer prometheus.Registerer

	inflight         prometheus.GaugeFunc
	requestLatency   prometheus.Histogram
	heartbeatLatency prometheus.Histogram
	reconnects       prometheus.Counter
	dialFailures     prometheus.Counter
	timeouts         prometheus.Counter
	unmatched        prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer, pending func() float64) *metrics {
	return &metrics{
		registerer: registerer,
		inflight: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_requests",
			Help:      "Number of requests waiting for a response.",
		}, pending),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from writing a request to receiving its response.",
			Buckets:   prometheus.DefBuckets,
		}),
		heartbeatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "heartbeat_duration_seconds",
			Help:      "Heartbeat round trip time.",
			Buckets:   prometheus.DefBuckets,
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Number of reconnect cycles triggered by failed heartbeats.",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_failures_total",
			Help:      "Number of failed connection attempts.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_timeouts_total",
			Help:      "Number of requests expired by the sweep.",
		}),
		unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_responses_total",
			Help:      "Number of responses discarded for an unknown serial number.",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.inflight, m.requestLatency, m.heartbeatLatency, m.reconnects, m.dialFailures, m.timeouts, m.unmatched}
}

func (m *metrics) register() error {
	if m.registerer == nil {
		return nil
	}
	var registered []prometheus.Collector
	for _, collector := range m.collectors() {
		if err := m.registerer.Register(collector); err != nil {
			for _, r := range registered {
				m.registerer.Unregister(r)
			}
			return errors.Join(MetricsErr, err)
		}
		registered = append(registered, collector)
	}
	return nil
}

func (m *metrics) unregister() {
	if m.registerer == nil {
		return
	}
	for _, collector := range m.collectors() {
		m.registerer.Unregister(collector)
	}
}
