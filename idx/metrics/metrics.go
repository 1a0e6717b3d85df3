// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics registers the Prometheus series the change-capture
// loop and override planner update as they run (SPEC_FULL.md §4.9).
// These are purely observational: nothing in idx reads them back to make
// a decision, so the core behaves identically whether or not a scrape
// endpoint is ever served.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// BufferDepth is the current size of the in-memory notify buffer.
	BufferDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "idx",
		Name:      "notify_buffer_depth",
		Help:      "Current number of payloads held in the in-memory notify buffer.",
	}, []string{"domain"})

	// FlushTotal counts PROCESS steps, partitioned by outcome.
	FlushTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idx",
		Name:      "flush_total",
		Help:      "Total number of change-capture flushes, by result.",
	}, []string{"domain", "result"})

	// FlushDuration observes the wall-clock time of one PROCESS step.
	FlushDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "idx",
		Name:      "flush_duration_seconds",
		Help:      "Duration of a change-capture flush (fetch, normalise, hook, upsert, ack).",
		Buckets:   prometheus.DefBuckets,
	}, []string{"domain"})

	// OverrideSubwindowTotal counts override sub-window task outcomes.
	OverrideSubwindowTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idx",
		Name:      "override_subwindow_total",
		Help:      "Total number of override reindex sub-window tasks, by result.",
	}, []string{"domain", "result"})
)

func init() {
	prometheus.MustRegister(BufferDepth, FlushTotal, FlushDuration, OverrideSubwindowTotal)
}
