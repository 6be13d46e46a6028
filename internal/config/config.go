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

// Package config provides configuration management for benchagent.
// config 包提供 benchagent 的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Environment variables (BENCHAGENT_*) / 环境变量
// 2. Configuration file / 配置文件
// 3. Default values / 默认值
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/seatunnel/benchagent/internal/model"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath        = "/etc/benchagent/config.yaml"
	DefaultAPIPort           = 4500
	DefaultGRPCPort          = 4501
	DefaultRequestTimeout    = 30 * time.Second
	DefaultHeartbeatTimeout  = 2 * time.Minute
	DefaultReadinessTimeout  = 5 * time.Minute
	DefaultResetTimeout      = 2 * time.Minute
	DefaultStartTimeout      = 2 * time.Minute
	DefaultTeardownTimeout   = 5 * time.Minute
	DefaultPollInterval      = 1 * time.Second
	DefaultIterationAttempts = 3
	DefaultStartupAttempts   = 5
	DefaultOutputLimit       = 1 << 20 // bytes
	DefaultLogLevel          = "info"
	DefaultLogMaxSize        = 100 // MB
	DefaultLogMaxBackups     = 3
	DefaultLogMaxAge         = 7 // days
	DefaultTransientError    = "address already in use"
)

// Store backend types
// 存储后端类型
const (
	StoreTypeMemory = "memory"
	StoreTypeRedis  = "redis"
)

// Load loads configuration from file and environment variables
// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if envPath := os.Getenv("BENCHAGENT_CONFIG_PATH"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		v.SetConfigFile(DefaultConfigPath)
	}

	v.SetEnvPrefix("BENCHAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error if we have defaults
		// 如果有默认值，配置文件未找到不是错误
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return unmarshal(v)
}

// LoadFromYAML loads configuration from YAML bytes
// LoadFromYAML 从 YAML 字节加载配置
func LoadFromYAML(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Agent.LayoutFile != "" {
		instances, err := LoadLayoutFile(cfg.Agent.LayoutFile)
		if err != nil {
			return nil, err
		}
		cfg.Layout.Instances = append(cfg.Layout.Instances, instances...)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	hostname, _ := os.Hostname()
	v.SetDefault("agent.name", hostname)
	v.SetDefault("agent.layout_file", "")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", DefaultAPIPort)
	v.SetDefault("api.grpc_port", DefaultGRPCPort)
	v.SetDefault("api.request_timeout", DefaultRequestTimeout)

	v.SetDefault("store.type", StoreTypeMemory)
	v.SetDefault("store.redis.addr", "127.0.0.1:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.pool_size", 10)
	v.SetDefault("store.redis.dial_timeout", 5*time.Second)
	v.SetDefault("store.redis.prefix", "benchagent:")

	v.SetDefault("sync.heartbeat_timeout", DefaultHeartbeatTimeout)
	v.SetDefault("sync.readiness_timeout", DefaultReadinessTimeout)
	v.SetDefault("sync.reset_timeout", DefaultResetTimeout)
	v.SetDefault("sync.start_timeout", DefaultStartTimeout)
	v.SetDefault("sync.teardown_timeout", DefaultTeardownTimeout)
	v.SetDefault("sync.poll_interval", DefaultPollInterval)
	v.SetDefault("sync.iteration_attempts", DefaultIterationAttempts)
	v.SetDefault("sync.retry_backoff", 5*time.Second)

	v.SetDefault("process.startup_attempts", DefaultStartupAttempts)
	v.SetDefault("process.initial_backoff", time.Second)
	v.SetDefault("process.max_backoff", 30*time.Second)
	v.SetDefault("process.backoff_factor", 2.0)
	v.SetDefault("process.transient_errors", []string{DefaultTransientError})
	v.SetDefault("process.output_limit", DefaultOutputLimit)
	v.SetDefault("process.poll_interval", 500*time.Millisecond)

	v.SetDefault("workload.server_role", string(model.RoleServer))
	v.SetDefault("workload.protocol", "tcp")
	v.SetDefault("workload.warmup", 0)
	v.SetDefault("workload.duration", time.Minute)
	v.SetDefault("workload.iterations", 1)

	v.SetDefault("firewall.enabled", false)
	v.SetDefault("firewall.command", "iptables")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.type", "sqlite")
	v.SetDefault("history.sqlite_path", "./data/benchagent.db")
	v.SetDefault("history.log_level", "warn")

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("log.console", true)
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "benchagent")
}

// LoadLayoutFile reads environment instances from a standalone YAML file
// LoadLayoutFile 从独立的 YAML 文件读取环境实例
func LoadLayoutFile(path string) ([]model.ClientInstance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout file: %w", err)
	}
	var layout model.EnvironmentLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to parse layout file %s: %w", path, err)
	}
	return layout.Instances, nil
}

// EnvironmentLayout returns the configured layout
// EnvironmentLayout 返回配置的环境布局
func (c *Config) EnvironmentLayout() *model.EnvironmentLayout {
	instances := make([]model.ClientInstance, len(c.Layout.Instances))
	copy(instances, c.Layout.Instances)
	return &model.EnvironmentLayout{Instances: instances}
}

// WorkloadProperties builds the property bag of the configured workload
// WorkloadProperties 构建所配置工作负载的属性包
func (c *Config) WorkloadProperties() *model.Properties {
	w := c.Workload
	props := model.NewProperties(
		model.KeyType, w.Type,
		model.KeyScenario, w.Scenario,
		model.KeyProtocol, w.Protocol,
		model.KeyWarmup, model.FormatSeconds(w.Warmup),
		model.KeyDuration, model.FormatSeconds(w.Duration),
	)
	if w.Port > 0 {
		props.Set(model.KeyPort, fmt.Sprintf("%d", w.Port))
	}
	return props.Merge(model.PropertiesFromMap(w.Parameters))
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api.port: %d", c.API.Port)
	}
	if c.API.GRPCPort < 0 || c.API.GRPCPort > 65535 {
		return fmt.Errorf("invalid api.grpc_port: %d", c.API.GRPCPort)
	}

	switch c.Store.Type {
	case StoreTypeMemory:
	case StoreTypeRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required when store.type is redis")
		}
	default:
		return fmt.Errorf("invalid store.type: %s (must be memory or redis)", c.Store.Type)
	}

	timeouts := map[string]time.Duration{
		"sync.heartbeat_timeout": c.Sync.HeartbeatTimeout,
		"sync.readiness_timeout": c.Sync.ReadinessTimeout,
		"sync.reset_timeout":     c.Sync.ResetTimeout,
		"sync.start_timeout":     c.Sync.StartTimeout,
		"sync.teardown_timeout":  c.Sync.TeardownTimeout,
		"sync.poll_interval":     c.Sync.PollInterval,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Sync.IterationAttempts < 1 {
		return errors.New("sync.iteration_attempts must be at least 1")
	}
	if c.Process.StartupAttempts < 1 {
		return errors.New("process.startup_attempts must be at least 1")
	}
	if c.Workload.Warmup < 0 {
		return errors.New("workload.warmup must not be negative")
	}
	if c.Workload.Duration <= 0 {
		return errors.New("workload.duration must be positive")
	}

	seen := make(map[string]struct{}, len(c.Tools))
	for i, tool := range c.Tools {
		if tool.Name == "" {
			return fmt.Errorf("tools[%d].name is required", i)
		}
		key := strings.ToLower(tool.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate tool: %s", tool.Name)
		}
		seen[key] = struct{}{}
	}

	if c.History.Enabled {
		switch c.History.Type {
		case "sqlite", "mysql", "postgres":
		default:
			return fmt.Errorf("invalid history.type: %s (must be sqlite, mysql, or postgres)", c.History.Type)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	if len(c.Layout.Instances) > 0 {
		if err := c.EnvironmentLayout().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// String returns a short representation of the config (for debugging)
// String 返回配置的简短表示（用于调试）
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Agent.Name: %s, API: %s:%d, Store: %s, Workload: %s/%s, Tools: %d, Instances: %d, Log.Level: %s}",
		c.Agent.Name,
		c.API.Host,
		c.API.Port,
		c.Store.Type,
		c.Workload.Scenario,
		c.Workload.Type,
		len(c.Tools),
		len(c.Layout.Instances),
		c.Log.Level,
	)
}

// ToYAML serializes the configuration with secrets masked
// ToYAML 将配置序列化为 YAML，敏感信息会被屏蔽
func (c *Config) ToYAML() ([]byte, error) {
	masked := *c
	if masked.Store.Redis.Password != "" {
		masked.Store.Redis.Password = "******"
	}
	if masked.History.Password != "" {
		masked.History.Password = "******"
	}
	return yaml.Marshal(&masked)
}
