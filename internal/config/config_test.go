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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seatunnel/benchagent/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleConfig = `
agent:
  name: client-1

api:
  port: 4600

store:
  type: redis
  redis:
    addr: "10.0.0.9:6379"
    password: secret

sync:
  heartbeat_timeout: 30s
  start_timeout: 45s
  iteration_attempts: 2

workload:
  scenario: tcp-throughput
  type: iperf3
  port: 5201
  warmup: 5s
  duration: 30s
  parameters:
    parallel: "8"

tools:
  - name: iperf3
    process_name: iperf3
    server:
      command: iperf3
      args: ["-s", "-p", "{{.port}}", "-1"]
    client:
      command: iperf3
      args: ["-c", "{{.server_ip}}", "-p", "{{.port}}", "-t", "30"]
    success_codes: [0]

layout:
  instances:
    - name: client-1
      ip_address: 10.0.0.1
      role: Client
    - name: server-1
      ip_address: 10.0.0.2
      role: Server

log:
  level: debug
`

// TestLoadConfig tests configuration loading
// TestLoadConfig 测试配置加载
func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(sampleConfig), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "client-1", cfg.Agent.Name)
	assert.Equal(t, 4600, cfg.API.Port)
	assert.Equal(t, DefaultGRPCPort, cfg.API.GRPCPort)
	assert.Equal(t, StoreTypeRedis, cfg.Store.Type)
	assert.Equal(t, "10.0.0.9:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Sync.HeartbeatTimeout)
	assert.Equal(t, 45*time.Second, cfg.Sync.StartTimeout)
	assert.Equal(t, DefaultReadinessTimeout, cfg.Sync.ReadinessTimeout)
	assert.Equal(t, 2, cfg.Sync.IterationAttempts)
	assert.Equal(t, DefaultStartupAttempts, cfg.Process.StartupAttempts)
	assert.Equal(t, []string{DefaultTransientError}, cfg.Process.TransientErrors)
	assert.Equal(t, "iperf3", cfg.Workload.Type)
	assert.Equal(t, 5*time.Second, cfg.Workload.Warmup)
	assert.Equal(t, "8", cfg.Workload.Parameters["parallel"])

	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, []string{"-s", "-p", "{{.port}}", "-1"}, cfg.Tools[0].Server.Args)
	assert.Equal(t, []int{0}, cfg.Tools[0].SuccessCodes)

	layout := cfg.EnvironmentLayout()
	require.Len(t, layout.InstancesByRole(model.RoleServer), 1)
	assert.Equal(t, "10.0.0.2", layout.InstancesByRole(model.RoleServer)[0].IPAddress)
}

// TestLoadConfigDefaults tests that a missing file falls back to defaults
// TestLoadConfigDefaults 测试缺少配置文件时使用默认值
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIPort, cfg.API.Port)
	assert.Equal(t, StoreTypeMemory, cfg.Store.Type)
	assert.Equal(t, DefaultIterationAttempts, cfg.Sync.IterationAttempts)
	assert.Equal(t, string(model.RoleServer), cfg.Workload.ServerRole)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

// TestLoadConfigEnvOverride tests environment variable override
// TestLoadConfigEnvOverride 测试环境变量覆盖
func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("BENCHAGENT_API_PORT", "4700")
	t.Setenv("BENCHAGENT_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4700, cfg.API.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadLayoutFile(t *testing.T) {
	dir := t.TempDir()
	layoutPath := filepath.Join(dir, "layout.yaml")
	require.NoError(t, os.WriteFile(layoutPath, []byte(`
instances:
  - name: server-a
    ip_address: 192.168.1.10
    role: Server
  - name: server-b
    ip_address: 192.168.1.11
    role: Server
`), 0644))

	cfg, err := LoadFromYAML([]byte("agent:\n  name: client-1\n  layout_file: " + layoutPath + "\n"))
	require.NoError(t, err)
	assert.Len(t, cfg.EnvironmentLayout().InstancesByRole(model.RoleServer), 2)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.API.Port = 0 }},
		{"bad store", func(c *Config) { c.Store.Type = "etcd" }},
		{"zero timeout", func(c *Config) { c.Sync.StartTimeout = 0 }},
		{"no attempts", func(c *Config) { c.Sync.IterationAttempts = 0 }},
		{"no startup attempts", func(c *Config) { c.Process.StartupAttempts = 0 }},
		{"negative duration", func(c *Config) { c.Workload.Duration = -time.Second }},
		{"zero duration", func(c *Config) { c.Workload.Duration = 0 }},
		{"negative warmup", func(c *Config) { c.Workload.Warmup = -time.Second }},
		{"unnamed tool", func(c *Config) { c.Tools = []ToolConfig{{}} }},
		{"duplicate tool", func(c *Config) { c.Tools = []ToolConfig{{Name: "a"}, {Name: "A"}} }},
		{"bad history", func(c *Config) { c.History.Enabled = true; c.History.Type = "oracle" }},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }},
		{"bad layout", func(c *Config) { c.Layout.Instances = []model.ClientInstance{{Name: "x"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromYAML([]byte("log:\n  level: info\n"))
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWorkloadProperties(t *testing.T) {
	cfg, err := LoadFromYAML([]byte(sampleConfig))
	require.NoError(t, err)

	props := cfg.WorkloadProperties()
	assert.Equal(t, "iperf3", props.String(model.KeyType, ""))
	assert.Equal(t, 5201, props.Int(model.KeyPort, 0))
	assert.Equal(t, 30*time.Second, props.Duration(model.KeyDuration, 0))
	assert.Equal(t, "30", props.String(model.KeyDuration, ""))
	assert.Equal(t, "5", props.String(model.KeyWarmup, ""))
	assert.Equal(t, "8", props.String("parallel", ""))
}

func TestToYAMLMasksSecrets(t *testing.T) {
	cfg, err := LoadFromYAML([]byte(sampleConfig))
	require.NoError(t, err)

	data, err := cfg.ToYAML()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, cfg.Sync.StartTimeout, decoded.Sync.StartTimeout)
	assert.Equal(t, "client-1", decoded.Agent.Name)
}
