/*
Copyright 2019 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes prometheus counters and histograms for the
// commit engine and validator, so operators can watch commit latency and
// driver-call volume the way the teacher's controllers expose
// reconciliation metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns one context's metric vectors. Each Context gets its own
// Recorder rather than sharing package-level globals, so multiple contexts
// in one process (e.g. in tests) don't clobber each other's counters; call
// MustRegister to expose a Recorder's metrics on a custom registry.
type Recorder struct {
	Commits         prometheus.Counter
	CommitFailures  prometheus.Counter
	Validations     prometheus.Counter
	DriverCalls     *prometheus.CounterVec
	CommitDuration  prometheus.Histogram
	ProblemsFound   prometheus.Counter
}

// NewRecorder builds a Recorder with fresh, unregistered collectors.
func NewRecorder() *Recorder {
	return &Recorder{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsdn_commits_total",
			Help: "Total number of commit passes attempted.",
		}),
		CommitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsdn_commit_failures_total",
			Help: "Total number of commit passes that ended with unresolved problems.",
		}),
		Validations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsdn_validations_total",
			Help: "Total number of validation passes run.",
		}),
		DriverCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lsdn_driver_calls_total",
			Help: "Total number of nettype driver hook invocations, by hook name.",
		}, []string{"hook"}),
		CommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lsdn_commit_duration_seconds",
			Help:    "Duration of commit passes.",
			Buckets: prometheus.DefBuckets,
		}),
		ProblemsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsdn_problems_total",
			Help: "Total number of validation problems reported.",
		}),
	}
}

// MustRegister registers every collector in r with reg.
func (r *Recorder) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(r.Commits, r.CommitFailures, r.Validations, r.DriverCalls, r.CommitDuration, r.ProblemsFound)
}

// RecordDriverCall increments the call count for hook.
func (r *Recorder) RecordDriverCall(hook string) {
	r.DriverCalls.WithLabelValues(hook).Inc()
}
