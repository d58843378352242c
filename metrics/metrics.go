// Copyright 2015 trivago GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes gateway counters (messages queued, parse
// errors, sink errors, topic handles in flight) over a rcrowley/go-metrics
// registry bridged to Prometheus, mirroring the teacher's metrics.go /
// metricServer.go split without relying on package-level state.
package metrics

import (
	"context"
	"net/http"
	"time"

	promMetrics "github.com/CrowdStrike/go-metrics-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

// Registry bundles the gateway's counters. One Registry is owned by the
// App; it is not a package singleton.
type Registry struct {
	r metrics.Registry

	MessagesQueued metrics.Counter
	ParseErrors    metrics.Counter
	SinkErrors     metrics.Counter
	BufferFull     metrics.Counter
	TopicHandles   metrics.Counter
	HTTPRequests   metrics.Counter
	Rejected401    metrics.Counter
	Rejected403    metrics.Counter
}

// New creates a Registry with all counters registered.
func New() *Registry {
	r := metrics.NewRegistry()
	reg := &Registry{
		r:              r,
		MessagesQueued: metrics.NewRegisteredCounter("messages_queued", r),
		ParseErrors:    metrics.NewRegisteredCounter("parse_errors", r),
		SinkErrors:     metrics.NewRegisteredCounter("sink_errors", r),
		BufferFull:     metrics.NewRegisteredCounter("buffer_full", r),
		TopicHandles:   metrics.NewRegisteredCounter("topic_handles_active", r),
		HTTPRequests:   metrics.NewRegisteredCounter("http_requests", r),
		Rejected401:    metrics.NewRegisteredCounter("rejected_unauthorized", r),
		Rejected403:    metrics.NewRegisteredCounter("rejected_forbidden", r),
	}
	return reg
}

// Server serves the registry over HTTP: a Prometheus bridge at /prometheus
// and the gateway's own health ping at /ping.
type Server struct {
	registry *Registry
	srv      *http.Server
	stop     chan struct{}
	log      logrus.FieldLogger
}

// NewServer builds (but does not start) a metrics HTTP server.
func NewServer(addr string, reg *Registry, log logrus.FieldLogger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		registry: reg,
		srv:      &http.Server{Addr: addr, Handler: mux},
		stop:     make(chan struct{}),
		log:      log,
	}

	promRegistry := prometheus.NewRegistry()
	bridge := promMetrics.NewPrometheusProvider(
		reg.r, "n2k_gateway", "", promRegistry, 3*time.Second)

	go func() {
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := bridge.UpdatePrometheusMetricsOnce(); err != nil {
					s.log.WithError(err).Warn("failed to update prometheus metrics")
				}
			case <-s.stop:
				return
			}
		}
	}()

	mux.Handle("/prometheus", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{
		ErrorLog:      nil,
		ErrorHandling: promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("PONG\n"))
	})

	return s
}

// Start runs the metrics server until Stop is called.
func (s *Server) Start() {
	s.log.WithField("addr", s.srv.Addr).Info("starting metrics server")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.WithError(err).Error("metrics server stopped")
	}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop() {
	close(s.stop)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}
