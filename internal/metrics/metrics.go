// Copyright (c) 2020 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes process counters over Prometheus, served on a
// loopback-only HTTP listener.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus instrument the pipeline updates. The
// counters mirror atomic totals already owned by the correlator/injector,
// so they are exposed as Gauges set from those totals rather than
// independently-incremented Counters.
type Metrics struct {
	TotalRequestsSeen prometheus.Gauge
	UnmatchedCount    prometheus.Gauge
	CacheEntries      prometheus.Gauge
	InjectedReplies   prometheus.Gauge
	LossRatio         prometheus.Gauge

	registry *prometheus.Registry
}

// New builds and registers every instrument against a fresh registry (not
// the global default, so tests can construct more than one Metrics without
// a duplicate-registration panic).
func New() *Metrics {
	m := &Metrics{
		TotalRequestsSeen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsaccel_total_requests_seen",
			Help: "DNS queries observed by the correlator",
		}),
		UnmatchedCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsaccel_unmatched_count",
			Help: "queries that timed out or were refused without a usable reply",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsaccel_cache_entries",
			Help: "distinct qnames currently cached",
		}),
		InjectedReplies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsaccel_injected_replies",
			Help: "forged DNS replies written to the wire",
		}),
		LossRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsaccel_loss_ratio",
			Help: "unmatched_count / total_requests_seen",
		}),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.TotalRequestsSeen,
		m.UnmatchedCount,
		m.CacheEntries,
		m.InjectedReplies,
		m.LossRatio,
	)
	return m
}

// Serve starts an HTTP listener on loopback:port exposing /metrics, and
// blocks until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("metrics: listen: %w", err)
	}
	srv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
