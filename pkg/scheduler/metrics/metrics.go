// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

// Package metrics exposes the per-scheduler prometheus counters and gauges
// an operator scrapes to watch fleet health: admission throttling, GC
// sweeps, and misc-task exceptions.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "loom_scheduler"

// Metrics is the set of prometheus collectors for a single scheduler. Each
// collector carries a constant "scheduler" label so a fleet's metrics can
// be scraped from one shared registry without colliding.
type Metrics struct {
	Load              prometheus.Gauge
	SessionsActive    prometheus.Gauge
	SessionsAdmitted  prometheus.Counter
	SessionsRefused   prometheus.Counter
	SessionsReaped    prometheus.Counter
	GCSweeps          prometheus.Counter
	MiscTaskPanics    prometheus.Counter
	CommandsDispatched prometheus.Counter
	CommandsYielded   prometheus.Counter
}

// New creates a Metrics for the given scheduler id. The caller is
// responsible for registering the returned collectors with a
// prometheus.Registerer (see RegisterWith).
func New(schedulerID int32) *Metrics {
	labels := prometheus.Labels{"scheduler": strconv.Itoa(int(schedulerID))}
	return &Metrics{
		Load: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "load",
			Help:        "Base load plus live session count for this scheduler.",
			ConstLabels: labels,
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "sessions_active",
			Help:        "Number of sessions currently registered with this scheduler.",
			ConstLabels: labels,
		}),
		SessionsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sessions_admitted_total",
			Help:        "Number of session-init tasks admitted by the validator.",
			ConstLabels: labels,
		}),
		SessionsRefused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sessions_refused_total",
			Help:        "Number of session-init tasks that failed permanently.",
			ConstLabels: labels,
		}),
		SessionsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sessions_reaped_total",
			Help:        "Number of sessions fully reaped from the registry.",
			ConstLabels: labels,
		}),
		GCSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "gc_sweeps_total",
			Help:        "Number of full-GC sweeps this scheduler triggered.",
			ConstLabels: labels,
		}),
		MiscTaskPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "misc_task_panics_total",
			Help:        "Number of misc one-shot tasks that panicked during Drain.",
			ConstLabels: labels,
		}),
		CommandsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "commands_dispatched_total",
			Help:        "Number of YieldableCommand.Advance calls made by the dispatcher.",
			ConstLabels: labels,
		}),
		CommandsYielded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "commands_yielded_total",
			Help:        "Number of times the yield protocol preempted a running command.",
			ConstLabels: labels,
		}),
	}
}

// RegisterWith registers every collector in m with reg. Safe to call once
// per scheduler against a shared registry since each collector carries a
// distinct "scheduler" const label.
func (m *Metrics) RegisterWith(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.Load, m.SessionsActive, m.SessionsAdmitted, m.SessionsRefused,
		m.SessionsReaped, m.GCSweeps, m.MiscTaskPanics, m.CommandsDispatched,
		m.CommandsYielded,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
