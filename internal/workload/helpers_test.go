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

package workload

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seatunnel/benchagent/internal/config"
	"github.com/seatunnel/benchagent/internal/logger"
	"github.com/seatunnel/benchagent/internal/model"
	"github.com/seatunnel/benchagent/internal/process"
	"github.com/seatunnel/benchagent/internal/store"
)

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

const testWorkload = "iperf3"

func testToolConfig() config.ToolConfig {
	return config.ToolConfig{
		Name:        testWorkload,
		ProcessName: "iperf3",
		Server: config.CommandConfig{
			Command: "iperf3",
			Args:    []string{"-s", "-p", "{{.port}}"},
		},
		Client: config.CommandConfig{
			Command: "iperf3",
			Args:    []string{"-c", "{{.server_ip}}", "-p", "{{.port}}", "-t", "{{.duration}}"},
		},
		SuccessCodes: []int{0},
	}
}

func testTools(t *testing.T) *ToolRegistry {
	t.Helper()
	tools, err := NewToolRegistry([]config.ToolConfig{testToolConfig()})
	require.NoError(t, err)
	return tools
}

func testProps() *model.Properties {
	return model.NewProperties(
		model.KeyType, testWorkload,
		model.KeyScenario, "tcp-throughput",
		model.KeyPort, "5201",
		model.KeyProtocol, "tcp",
		model.KeyWarmup, "1",
		model.KeyDuration, "1",
	)
}

type runCall struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// fakeRunner records calls and tracks how many runs overlap
type fakeRunner struct {
	mu        sync.Mutex
	calls     []runCall
	active    atomic.Int32
	maxActive atomic.Int32
	fn        func(ctx context.Context, call runCall) (*process.Handle, error)
}

func (f *fakeRunner) Run(ctx context.Context, command string, args []string, timeout time.Duration) (*process.Handle, error) {
	call := runCall{Command: command, Args: args, Timeout: timeout}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	return f.fn(ctx, call)
}

func (f *fakeRunner) Calls() []runCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runCall(nil), f.calls...)
}

func exitWith(code int) func(ctx context.Context, call runCall) (*process.Handle, error) {
	return func(ctx context.Context, call runCall) (*process.Handle, error) {
		now := time.Now()
		return &process.Handle{Command: call.Command, Args: call.Args, ExitCode: code, StartTime: now, ExitTime: now}, nil
	}
}

func exitAfter(d time.Duration, code int) func(ctx context.Context, call runCall) (*process.Handle, error) {
	return func(ctx context.Context, call runCall) (*process.Handle, error) {
		select {
		case <-time.After(d):
			return exitWith(code)(ctx, call)
		case <-ctx.Done():
			return &process.Handle{Command: call.Command, ExitCode: -1}, ctx.Err()
		}
	}
}

func blockUntilCancelled(ctx context.Context, call runCall) (*process.Handle, error) {
	<-ctx.Done()
	return &process.Handle{Command: call.Command, ExitCode: -1}, ctx.Err()
}

type fakeFinder struct {
	found atomic.Bool
}

func (f *fakeFinder) FindByName(ctx context.Context, name string) ([]int, error) {
	if f.found.Load() {
		return []int{4242}, nil
	}
	return nil, nil
}

type fakeNetwork struct {
	mu    sync.Mutex
	rules []string
}

func (f *fakeNetwork) AllowInbound(ctx context.Context, protocol string, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, protocol+"/"+strconv.Itoa(port))
	return nil
}

func newTestServer(t *testing.T, runner ProcessRunner, finder ProcessFinder) (*ServerCoordinator, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	s := NewServerCoordinator(context.Background(), ServerConfig{
		Store:               st,
		Tools:               testTools(t),
		Runner:              runner,
		Finder:              finder,
		ProcessPollInterval: 5 * time.Millisecond,
		CleanupTimeout:      time.Second,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, st
}

func stateOf(t *testing.T, st store.Backend) (*model.WorkloadState, error) {
	t.Helper()
	return store.GetState[model.WorkloadState](context.Background(), st, model.StateKey(testWorkload))
}

// loopbackClient delivers instructions straight to an in-process coordinator
type loopbackClient struct {
	server    *ServerCoordinator
	store     store.Backend
	heartbeat func() error
}

func (l *loopbackClient) Heartbeat(ctx context.Context) error {
	if l.heartbeat != nil {
		return l.heartbeat()
	}
	return nil
}

func (l *loopbackClient) Readiness(ctx context.Context) error {
	return nil
}

func (l *loopbackClient) GetState(ctx context.Context, key string) (*model.WorkloadState, error) {
	return store.GetState[model.WorkloadState](ctx, l.store, key)
}

func (l *loopbackClient) SendInstruction(ctx context.Context, envelope *model.InstructionEnvelope) error {
	if err := l.server.HandleInstruction(ctx, envelope); err != nil {
		logger.ErrorF(ctx, "instruction %s failed: %v", envelope.ID, err)
	}
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	reports []*IterationReport
}

func (f *fakeRecorder) RecordIteration(ctx context.Context, report *IterationReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeRecorder) Last() *IterationReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reports) == 0 {
		return nil
	}
	return f.reports[len(f.reports)-1]
}
