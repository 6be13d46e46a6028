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

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveIteration("iperf3", 1, nil)
	r.ObserveIteration("iperf3", 3, errors.New("boom"))
	r.ObserveInstruction("Reset", nil)
	r.ObserveInstruction("StartExecution", errors.New("boom"))
	r.ObserveProcessRun("iperf3", "Server", OutcomeTimedOut)
	r.ObserveStep("iperf3", "heartbeat", 20*time.Millisecond, nil)
	r.SupervisorStarted()
	r.SupervisorStarted()
	r.SupervisorStopped()

	assert.Equal(t, 1.0, testutil.ToFloat64(r.iterationsTotal.WithLabelValues("iperf3", OutcomeSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.iterationsTotal.WithLabelValues("iperf3", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.instructionsTotal.WithLabelValues("StartExecution", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.processRunsTotal.WithLabelValues("iperf3", "Server", OutcomeTimedOut)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activeSupervisors))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveIteration("x", 1, nil)
		r.ObserveStep("x", "y", time.Second, nil)
		r.ObserveInstruction("Reset", nil)
		r.ObserveProcessRun("x", "Client", OutcomeSucceeded)
		r.SupervisorStarted()
		r.SupervisorStopped()
	})
}
