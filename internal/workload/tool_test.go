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
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/seatunnel/benchagent/internal/config"
	"github.com/seatunnel/benchagent/internal/model"
)

func TestToolCommandRendersTemplates(t *testing.T) {
	tool, err := NewTool(testToolConfig())
	require.NoError(t, err)

	props := testProps().Set(model.KeyServerIP, "192.168.1.10")
	command, args, err := tool.Command(model.RoleClient, props)
	require.NoError(t, err)
	assert.Equal(t, "iperf3", command)
	assert.Equal(t, []string{"-c", "192.168.1.10", "-p", "5201", "-t", "1"}, args)

	command, args, err = tool.Command(model.RoleServer, props)
	require.NoError(t, err)
	assert.Equal(t, "iperf3", command)
	assert.Equal(t, []string{"-s", "-p", "5201"}, args)
}

func TestToolCommandFromConfiguredWorkload(t *testing.T) {
	cfg, err := config.LoadFromYAML([]byte(`
workload:
  type: iperf3
  port: 5201
  warmup: 2s
  duration: 1m
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	tool, err := NewTool(testToolConfig())
	require.NoError(t, err)

	props := cfg.WorkloadProperties().Set(model.KeyServerIP, "10.0.0.2")
	_, args, err := tool.Command(model.RoleClient, props)
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "10.0.0.2", "-p", "5201", "-t", "60"}, args)

	timeout, err := model.RunTimeout(props)
	require.NoError(t, err)
	assert.Equal(t, 122*time.Second, timeout)
}

func TestToolCommandMissingProperty(t *testing.T) {
	tool, err := NewTool(testToolConfig())
	require.NoError(t, err)

	// server_ip is not set
	_, _, err = tool.Command(model.RoleClient, testProps())
	assert.Error(t, err)
}

func TestToolCommandDropsEmptyArgs(t *testing.T) {
	cfg := testToolConfig()
	cfg.Server.Args = []string{"-s", `{{if eq .protocol "udp"}}-u{{end}}`}
	tool, err := NewTool(cfg)
	require.NoError(t, err)

	_, args, err := tool.Command(model.RoleServer, testProps())
	require.NoError(t, err)
	assert.Equal(t, []string{"-s"}, args)

	_, args, err = tool.Command(model.RoleServer, testProps().Set(model.KeyProtocol, "udp"))
	require.NoError(t, err)
	assert.Equal(t, []string{"-s", "-u"}, args)
}

func TestNewToolRejectsBadTemplate(t *testing.T) {
	cfg := testToolConfig()
	cfg.Client.Args = []string{"{{.port"}
	_, err := NewTool(cfg)
	assert.Error(t, err)
}

func TestToolDefaults(t *testing.T) {
	tool, err := NewTool(config.ToolConfig{
		Name:        "sockperf",
		Server:      config.CommandConfig{Command: "/usr/local/bin/sockperf"},
		ResultsFile: "/tmp/sockperf.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, "sockperf", tool.ProcessName)
	assert.Equal(t, "/tmp/sockperf.csv", tool.ResultsPath(model.NewProperties()))
	assert.Equal(t, "/tmp/other.csv", tool.ResultsPath(model.NewProperties(model.KeyResultsFile, "/tmp/other.csv")))

	_, _, err = tool.Command(model.RoleClient, model.NewProperties())
	assert.ErrorIs(t, err, ErrUnknownWorkload)
}

func TestToolRegistryLookup(t *testing.T) {
	tools := testTools(t)

	tool, err := tools.Lookup(" IPERF3 ")
	require.NoError(t, err)
	assert.Equal(t, testWorkload, tool.Name)

	_, err = tools.Lookup("netperf")
	assert.ErrorIs(t, err, ErrUnknownWorkload)

	var empty *ToolRegistry
	_, err = empty.Lookup(testWorkload)
	assert.ErrorIs(t, err, ErrUnknownWorkload)
}

func TestToolCommandPortProperty(t *testing.T) {
	tool, err := NewTool(testToolConfig())
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		props := testProps().Set(model.KeyPort, strconv.Itoa(port))
		_, args, err := tool.Command(model.RoleServer, props)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if args[len(args)-1] != strconv.Itoa(port) {
			t.Fatalf("port arg = %q, want %d", args[len(args)-1], port)
		}
	})
}

func TestIPTablesNetworkAccess(t *testing.T) {
	var calls []string
	existing := map[string]bool{}
	n := NewIPTablesNetworkAccess("")
	n.run = func(ctx context.Context, name string, args ...string) error {
		line := name + " " + strings.Join(args, " ")
		calls = append(calls, line)
		rule := strings.Join(args[1:], " ")
		switch args[0] {
		case "-C":
			if !existing[rule] {
				return errors.New("rule does not exist")
			}
		case "-A":
			existing[rule] = true
		}
		return nil
	}

	require.NoError(t, n.AllowInbound(context.Background(), "TCP", 5201))
	require.NoError(t, n.AllowInbound(context.Background(), "tcp", 5201))
	require.NoError(t, n.AllowInbound(context.Background(), "udp", 0))

	assert.Equal(t, []string{
		"iptables -C INPUT -p tcp --dport 5201 -j ACCEPT",
		"iptables -A INPUT -p tcp --dport 5201 -j ACCEPT",
		"iptables -C INPUT -p tcp --dport 5201 -j ACCEPT",
	}, calls)
}

func TestIPTablesNetworkAccessFailure(t *testing.T) {
	n := NewIPTablesNetworkAccess("iptables")
	n.run = func(ctx context.Context, name string, args ...string) error {
		return errors.New("permission denied")
	}
	err := n.AllowInbound(context.Background(), "udp", 5001)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "udp/5001")
}

func TestWaitFor(t *testing.T) {
	t.Run("satisfied after a few polls", func(t *testing.T) {
		var n atomic.Int32
		err := WaitFor(context.Background(), "counter", time.Second, time.Millisecond, func(ctx context.Context) (bool, error) {
			return n.Add(1) >= 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(3), n.Load())
	})

	t.Run("errors are retried until the deadline", func(t *testing.T) {
		cause := errors.New("connection reset")
		start := time.Now()
		err := WaitFor(context.Background(), "peer", 50*time.Millisecond, 5*time.Millisecond, func(ctx context.Context) (bool, error) {
			return false, cause
		})
		assert.ErrorIs(t, err, ErrSynchronizationTimeout)
		assert.ErrorIs(t, err, cause)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("recovers after transient errors", func(t *testing.T) {
		var n atomic.Int32
		err := WaitFor(context.Background(), "peer", time.Second, time.Millisecond, func(ctx context.Context) (bool, error) {
			if n.Add(1) < 3 {
				return false, errors.New("not yet")
			}
			return true, nil
		})
		assert.NoError(t, err)
	})

	t.Run("parent cancellation is not a timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := WaitFor(ctx, "never", time.Second, time.Millisecond, func(ctx context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrSynchronizationTimeout)
	})
}

func TestIsRetryableIteration(t *testing.T) {
	assert.False(t, isRetryableIteration(ErrLayoutInvalid))
	assert.False(t, isRetryableIteration(ErrUnknownWorkload))
	assert.False(t, isRetryableIteration(context.Canceled))
	assert.True(t, isRetryableIteration(ErrWorkloadFailed))
	assert.True(t, isRetryableIteration(ErrSynchronizationTimeout))
	assert.True(t, isRetryableIteration(ErrStoreOperationFailed))
}
