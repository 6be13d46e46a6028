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
	"time"

	"github.com/seatunnel/benchagent/internal/model"
)

// Config represents the benchagent configuration
// Config 表示 benchagent 配置
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Process   ProcessConfig   `mapstructure:"process" yaml:"process"`
	Workload  WorkloadConfig  `mapstructure:"workload" yaml:"workload"`
	Tools     []ToolConfig    `mapstructure:"tools" yaml:"tools"`
	Layout    LayoutConfig    `mapstructure:"layout" yaml:"layout"`
	Firewall  FirewallConfig  `mapstructure:"firewall" yaml:"firewall"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// AgentConfig identifies this node
// AgentConfig 标识当前节点
type AgentConfig struct {
	// Name must match one instance of the environment layout
	// Name 必须与环境布局中的某个实例匹配
	Name string `mapstructure:"name" yaml:"name"`

	// LayoutFile optionally points to a standalone layout YAML file
	// LayoutFile 可选，指向独立的布局 YAML 文件
	LayoutFile string `mapstructure:"layout_file" yaml:"layout_file"`
}

// APIConfig contains the state API listener settings
// APIConfig 包含状态 API 监听设置
type APIConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	GRPCPort       int           `mapstructure:"grpc_port" yaml:"grpc_port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// StoreConfig selects the state store backend
// StoreConfig 选择状态存储后端
type StoreConfig struct {
	// Type is memory or redis / 类型为 memory 或 redis
	Type  string      `mapstructure:"type" yaml:"type"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig contains redis connection settings
// RedisConfig 包含 Redis 连接设置
type RedisConfig struct {
	Addr        string        `mapstructure:"addr" yaml:"addr"`
	Username    string        `mapstructure:"username" yaml:"username"`
	Password    string        `mapstructure:"password" yaml:"password"`
	DB          int           `mapstructure:"db" yaml:"db"`
	PoolSize    int           `mapstructure:"pool_size" yaml:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix" yaml:"prefix"`
}

// SyncConfig bounds every synchronization point of an iteration
// SyncConfig 约束迭代中每个同步点的等待时间
type SyncConfig struct {
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	ReadinessTimeout  time.Duration `mapstructure:"readiness_timeout" yaml:"readiness_timeout"`
	ResetTimeout      time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`
	StartTimeout      time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
	TeardownTimeout   time.Duration `mapstructure:"teardown_timeout" yaml:"teardown_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	IterationAttempts int           `mapstructure:"iteration_attempts" yaml:"iteration_attempts"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

// ProcessConfig tunes the process execution supervisor
// ProcessConfig 调整进程执行监督器
type ProcessConfig struct {
	StartupAttempts int           `mapstructure:"startup_attempts" yaml:"startup_attempts"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	BackoffFactor   float64       `mapstructure:"backoff_factor" yaml:"backoff_factor"`
	TransientErrors []string      `mapstructure:"transient_errors" yaml:"transient_errors"`
	OutputLimit     int           `mapstructure:"output_limit" yaml:"output_limit"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// WorkloadConfig describes what the client runs
// WorkloadConfig 描述客户端运行的工作负载
type WorkloadConfig struct {
	Scenario   string            `mapstructure:"scenario" yaml:"scenario"`
	Type       string            `mapstructure:"type" yaml:"type"`
	ServerRole string            `mapstructure:"server_role" yaml:"server_role"`
	Port       int               `mapstructure:"port" yaml:"port"`
	Protocol   string            `mapstructure:"protocol" yaml:"protocol"`
	Warmup     time.Duration     `mapstructure:"warmup" yaml:"warmup"`
	Duration   time.Duration     `mapstructure:"duration" yaml:"duration"`
	Iterations int               `mapstructure:"iterations" yaml:"iterations"`
	Parameters map[string]string `mapstructure:"parameters" yaml:"parameters"`
}

// ToolConfig declares how a benchmark tool is launched on each side
// ToolConfig 声明基准测试工具在两端的启动方式
type ToolConfig struct {
	Name         string        `mapstructure:"name" yaml:"name"`
	ProcessName  string        `mapstructure:"process_name" yaml:"process_name"`
	Server       CommandConfig `mapstructure:"server" yaml:"server"`
	Client       CommandConfig `mapstructure:"client" yaml:"client"`
	SuccessCodes []int         `mapstructure:"success_codes" yaml:"success_codes"`
	ResultsFile  string        `mapstructure:"results_file" yaml:"results_file"`
}

// CommandConfig is a command line template
// CommandConfig 是命令行模板
type CommandConfig struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
}

// LayoutConfig lists the machines of the environment inline
// LayoutConfig 内联列出环境中的机器
type LayoutConfig struct {
	Instances []model.ClientInstance `mapstructure:"instances" yaml:"instances"`
}

// FirewallConfig controls inbound rule management on servers
// FirewallConfig 控制服务端入站规则管理
type FirewallConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Command string `mapstructure:"command" yaml:"command"`
}

// HistoryConfig contains the iteration history database settings
// HistoryConfig 包含迭代历史数据库设置
type HistoryConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Type            string `mapstructure:"type" yaml:"type"`
	SQLitePath      string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	Host            string `mapstructure:"host" yaml:"host"`
	Port            int    `mapstructure:"port" yaml:"port"`
	Username        string `mapstructure:"username" yaml:"username"`
	Password        string `mapstructure:"password" yaml:"password"`
	Database        string `mapstructure:"database" yaml:"database"`
	MaxIdleConn     int    `mapstructure:"max_idle_conn" yaml:"max_idle_conn"`
	MaxOpenConn     int    `mapstructure:"max_open_conn" yaml:"max_open_conn"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level" yaml:"log_level"`
}

// LogConfig contains logging settings
// LogConfig 包含日志设置
type LogConfig struct {
	// Level is the log level (debug, info, warn, error)
	// Level 是日志级别（debug, info, warn, error）
	Level string `mapstructure:"level" yaml:"level"`

	// File is the log file path, empty means console only
	// File 是日志文件路径，为空表示只输出到控制台
	File string `mapstructure:"file" yaml:"file"`

	// Console also writes to stderr when a file is set
	// Console 在设置文件时同时输出到标准错误
	Console bool `mapstructure:"console" yaml:"console"`

	MaxSize    int  `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int  `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// TelemetryConfig contains OpenTelemetry settings
// TelemetryConfig 包含 OpenTelemetry 设置
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool   `mapstructure:"insecure" yaml:"insecure"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}
