// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package metrics exports the rig state to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ffutop/gasmix/internal/experiment"
)

const namespace = "gasmix"

// Metrics implements experiment.Recorder.
type Metrics struct {
	registry *prometheus.Registry
	lines    []string

	flow         *prometheus.GaugeVec
	setpoint     *prometheus.GaugeVec
	humidity     prometheus.Gauge
	phase        prometheus.Gauge
	samples      prometheus.Counter
	sampleErrors prometheus.Counter
}

// New registers the collectors for the given flow lines, in status order.
func New(lines []string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		lines:    append([]string(nil), lines...),
		flow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_sccm",
			Help:      "Measured flow of a gas line.",
		}, []string{"line"}),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "setpoint_sccm",
			Help:      "Last flow setpoint written to a gas line.",
		}, []string{"line"}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "absolute_humidity_kg_m3",
			Help:      "Absolute humidity at the sensor.",
		}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "program_phase",
			Help:      "Program phase: 0 initial, 1 baseline ended, 2 recovery armed, 3 finished.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Sampling iterations that produced a status.",
		}),
		sampleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_errors_total",
			Help:      "Sampling iterations lost to communication failures.",
		}),
	}
	m.registry.MustRegister(m.flow, m.setpoint, m.humidity, m.phase, m.samples, m.sampleErrors)
	return m
}

func (m *Metrics) ObserveStatus(s experiment.Status) {
	for i, v := range []float64{s.A, s.B, s.C} {
		if i < len(m.lines) {
			m.flow.WithLabelValues(m.lines[i]).Set(v)
		}
	}
	m.humidity.Set(s.Humidity)
	m.samples.Inc()
}

func (m *Metrics) ObservePhase(p experiment.Phase) {
	m.phase.Set(float64(p))
}

func (m *Metrics) ObserveSetpoint(line string, value float64) {
	m.setpoint.WithLabelValues(line).Set(value)
}

func (m *Metrics) ObserveSampleError() {
	m.sampleErrors.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
