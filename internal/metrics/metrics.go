/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics provides Prometheus collectors for benchmark coordination.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimedOut  = "timed_out"
)

// Recorder records coordination metrics. A nil *Recorder is a no-op.
type Recorder struct {
	iterationsTotal   *prometheus.CounterVec
	iterationAttempts *prometheus.HistogramVec
	stepDuration      *prometheus.HistogramVec
	instructionsTotal *prometheus.CounterVec
	processRunsTotal  *prometheus.CounterVec
	activeSupervisors prometheus.Gauge
}

// NewRecorder registers the collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		iterationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "benchagent_iterations_total",
				Help: "Total number of client iterations by workload type and outcome",
			},
			[]string{"workload", "outcome"},
		),
		iterationAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "benchagent_iteration_attempts",
				Help:    "Number of attempts an iteration needed",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
			[]string{"workload"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "benchagent_sync_step_duration_seconds",
				Help:    "Duration of each client synchronization step",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"workload", "step", "status"},
		),
		instructionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "benchagent_instructions_total",
				Help: "Total number of instructions handled by the server coordinator",
			},
			[]string{"kind", "status"},
		),
		processRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "benchagent_process_runs_total",
				Help: "Total number of tool runs by role and outcome",
			},
			[]string{"workload", "role", "outcome"},
		),
		activeSupervisors: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "benchagent_active_supervisors",
				Help: "Number of background workload supervisors currently running",
			},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveIteration records a finished client iteration.
func (r *Recorder) ObserveIteration(workload string, attempts int, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeSucceeded
	if err != nil {
		outcome = OutcomeFailed
	}
	r.iterationsTotal.WithLabelValues(workload, outcome).Inc()
	r.iterationAttempts.WithLabelValues(workload).Observe(float64(attempts))
}

// ObserveStep records one synchronization step of an iteration.
func (r *Recorder) ObserveStep(workload, step string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.stepDuration.WithLabelValues(workload, step, status(err)).Observe(duration.Seconds())
}

// ObserveInstruction records an instruction handled by the server.
func (r *Recorder) ObserveInstruction(kind string, err error) {
	if r == nil {
		return
	}
	r.instructionsTotal.WithLabelValues(kind, status(err)).Inc()
}

// ObserveProcessRun records a tool run outcome.
func (r *Recorder) ObserveProcessRun(workload, role, outcome string) {
	if r == nil {
		return
	}
	r.processRunsTotal.WithLabelValues(workload, role, outcome).Inc()
}

// SupervisorStarted increments the active supervisor gauge.
func (r *Recorder) SupervisorStarted() {
	if r == nil {
		return
	}
	r.activeSupervisors.Inc()
}

// SupervisorStopped decrements the active supervisor gauge.
func (r *Recorder) SupervisorStopped() {
	if r == nil {
		return
	}
	r.activeSupervisors.Dec()
}
