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

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPropertiesKeepInsertionOrder(t *testing.T) {
	p := NewProperties("type", "iperf3", "port", "5201", "duration", "60s", "dangling")
	assert.Equal(t, []string{"type", "port", "duration"}, p.Keys())

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"iperf3","port":"5201","duration":"60s"}`, string(data))
}

func TestPropertiesTypedAccessors(t *testing.T) {
	p := NewProperties(
		"port", "5201",
		"bad_port", "abc",
		"flag", "true",
		"warmup", "00:00:30",
		"duration", "90",
		"timeout", "1m30s",
	)

	assert.Equal(t, 5201, p.Int("port", 0))
	assert.Equal(t, 7, p.Int("bad_port", 7))
	assert.Equal(t, 9, p.Int("missing", 9))
	assert.True(t, p.Bool("flag", false))
	assert.Equal(t, 30*time.Second, p.Duration("warmup", 0))
	assert.Equal(t, 90*time.Second, p.Duration("duration", 0))
	assert.Equal(t, 90*time.Second, p.Duration("timeout", 0))
	assert.Equal(t, time.Second, p.Duration("missing", time.Second))
	assert.Equal(t, "fallback", p.String("missing", "fallback"))
}

func TestNilPropertiesAreEmpty(t *testing.T) {
	var p *Properties
	assert.Equal(t, 0, p.Len())
	assert.Empty(t, p.Map())
	assert.Equal(t, "x", p.String("a", "x"))

	data, err := json.Marshal(struct {
		P *Properties `json:"p"`
	}{})
	require.NoError(t, err)
	assert.Equal(t, `{"p":null}`, string(data))

	assert.Equal(t, 0, p.Clone().Len())
}

func TestPropertiesMergeAndClone(t *testing.T) {
	base := NewProperties("a", "1", "b", "2")
	clone := base.Clone()
	clone.Set("a", "changed")

	assert.Equal(t, "1", base.String("a", ""))
	base.Merge(NewProperties("b", "3", "c", "4"))
	assert.Equal(t, []string{"a", "b", "c"}, base.Keys())
	assert.Equal(t, "3", base.String("b", ""))
}

func TestInstructionEnvelopeValidate(t *testing.T) {
	env := NewInstruction(InstructionStartExecution, NewProperties(KeyType, "iperf3"))
	require.NoError(t, env.Validate())
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "iperf3", env.WorkloadType())

	err := NewInstruction("Pause", NewProperties(KeyType, "iperf3")).Validate()
	assert.ErrorIs(t, err, ErrInvalidInstruction)

	err = NewInstruction(InstructionReset, NewProperties()).Validate()
	assert.ErrorIs(t, err, ErrInvalidInstruction)

	var nilEnv *InstructionEnvelope
	assert.ErrorIs(t, nilEnv.Validate(), ErrInvalidInstruction)
}

// TestInstructionEnvelopeRoundTrip checks that encoding then decoding an
// envelope keeps its kind, its ID and every property in order.
func TestInstructionEnvelopeRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		kind := rapid.SampledFrom([]InstructionKind{InstructionReset, InstructionStartExecution}).Draw(rt, "kind")
		keys := rapid.SliceOfN(rapid.StringMatching(`[a-z_]{1,12}`), 0, 10).Draw(rt, "keys")

		props := NewProperties(KeyType, rapid.StringMatching(`[A-Za-z0-9]{1,16}`).Draw(rt, "type"))
		for i, k := range keys {
			props.Set(k, rapid.String().Draw(rt, "value"+string(rune('a'+i))))
		}
		env := NewInstruction(kind, props)

		data, err := json.Marshal(env)
		if err != nil {
			rt.Fatalf("marshal: %v", err)
		}
		var decoded InstructionEnvelope
		if err := json.Unmarshal(data, &decoded); err != nil {
			rt.Fatalf("unmarshal: %v", err)
		}

		if decoded.ID != env.ID || decoded.Kind != env.Kind {
			rt.Fatalf("header mismatch: %+v vs %+v", decoded, env)
		}
		if got, want := decoded.Properties.Keys(), env.Properties.Keys(); !equalStrings(got, want) {
			rt.Fatalf("key order mismatch: %v vs %v", got, want)
		}
		for _, k := range env.Properties.Keys() {
			want, _ := env.Properties.Get(k)
			got, _ := decoded.Properties.Get(k)
			if got != want {
				rt.Fatalf("value mismatch for %q: %q vs %q", k, got, want)
			}
		}
	})
}

func TestAbsoluteTimeout(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		warmup := time.Duration(rapid.Int64Range(0, int64(time.Hour)).Draw(rt, "warmup"))
		duration := time.Duration(rapid.Int64Range(0, int64(time.Hour)).Draw(rt, "duration"))

		got := AbsoluteTimeout(warmup, duration)
		if got != warmup+2*duration {
			rt.Fatalf("AbsoluteTimeout(%v, %v) = %v", warmup, duration, got)
		}
	})
	assert.Equal(t, 2*time.Second, AbsoluteTimeout(-time.Second, time.Second))
}

func TestRunTimeout(t *testing.T) {
	timeout, err := RunTimeout(NewProperties(KeyWarmup, "5", KeyDuration, "30"))
	require.NoError(t, err)
	assert.Equal(t, 65*time.Second, timeout)

	tests := []struct {
		name  string
		props *Properties
	}{
		{"missing duration", NewProperties(KeyType, "iperf3", KeyPort, "5201")},
		{"zero duration", NewProperties(KeyDuration, "0")},
		{"unparsable duration", NewProperties(KeyDuration, "soon")},
		{"nil properties", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RunTimeout(tt.props)
			assert.ErrorIs(t, err, ErrInvalidInstruction)
		})
	}
}

func TestFormatSecondsRoundTrips(t *testing.T) {
	assert.Equal(t, "60", FormatSeconds(time.Minute))
	assert.Equal(t, "2", FormatSeconds(1500*time.Millisecond))
	assert.Equal(t, "0", FormatSeconds(0))

	rapid.Check(t, func(rt *rapid.T) {
		secs := rapid.IntRange(0, 86400).Draw(rt, "secs")
		d := time.Duration(secs) * time.Second
		parsed, err := ParseDuration(FormatSeconds(d))
		if err != nil || parsed != d {
			rt.Fatalf("FormatSeconds(%v) parsed back as %v, %v", d, parsed, err)
		}
	})
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusReady, StatusExecutionStarted))
	assert.True(t, CanTransition(StatusReady, StatusReady))
	assert.True(t, CanTransition(StatusExecutionStarted, StatusExecutionStarted))
	assert.False(t, CanTransition(StatusExecutionStarted, StatusReady))
	assert.False(t, CanTransition("Unknown", StatusReady))
}

func TestStateKey(t *testing.T) {
	assert.Equal(t, "iperf3-state", StateKey(" IPerf3 "))
}

func TestWorkloadStateJSON(t *testing.T) {
	state := NewWorkloadState(NewProperties(KeyType, "ntttcp", KeyPort, "5001"))
	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded WorkloadState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, StatusReady, decoded.Status)
	assert.Equal(t, []string{KeyType, KeyPort}, decoded.Properties.Keys())
}

func TestEnvironmentLayout(t *testing.T) {
	layout := &EnvironmentLayout{Instances: []ClientInstance{
		{Name: "client-1", IPAddress: "10.0.0.1", Role: RoleClient},
		{Name: "server-1", IPAddress: "10.0.0.2", Role: "server"},
		{Name: "server-2", IPAddress: "bench-server-2.local", Role: RoleServer},
	}}
	require.NoError(t, layout.Validate())

	servers := layout.InstancesByRole(RoleServer)
	require.Len(t, servers, 2)
	assert.Equal(t, "server-1", servers[0].Name)

	inst, ok := layout.Instance("CLIENT-1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", inst.IPAddress)

	assert.Empty(t, layout.InstancesByRole("Observer"))
}

func TestEnvironmentLayoutValidateErrors(t *testing.T) {
	cases := map[string]*EnvironmentLayout{
		"empty":     {},
		"no name":   {Instances: []ClientInstance{{IPAddress: "10.0.0.1", Role: RoleClient}}},
		"duplicate": {Instances: []ClientInstance{{Name: "a", IPAddress: "10.0.0.1", Role: RoleClient}, {Name: "A", IPAddress: "10.0.0.2", Role: RoleServer}}},
		"no role":   {Instances: []ClientInstance{{Name: "a", IPAddress: "10.0.0.1"}}},
		"bad addr":  {Instances: []ClientInstance{{Name: "a", IPAddress: "not an address", Role: RoleClient}}},
	}
	for name, layout := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, layout.Validate(), ErrLayoutInvalid)
		})
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
