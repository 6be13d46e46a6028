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

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/seatunnel/benchagent/internal/api"
	"github.com/seatunnel/benchagent/internal/config"
	"github.com/seatunnel/benchagent/internal/history"
	"github.com/seatunnel/benchagent/internal/logger"
	"github.com/seatunnel/benchagent/internal/metrics"
	"github.com/seatunnel/benchagent/internal/model"
	"github.com/seatunnel/benchagent/internal/process"
	"github.com/seatunnel/benchagent/internal/store"
	"github.com/seatunnel/benchagent/internal/workload"
)

// shutdownTimeout bounds the whole graceful shutdown.
const shutdownTimeout = 30 * time.Second

// Agent wires every component of a benchagent node.
// Agent 组装 benchagent 节点的所有组件。
type Agent struct {
	// config holds the node configuration
	// config 保存节点配置
	config *config.Config

	// ctx is the main context for the agent
	// ctx 是 Agent 的主上下文
	ctx    context.Context
	cancel context.CancelFunc

	registry  *prometheus.Registry
	metrics   *metrics.Recorder
	readiness *api.Readiness

	store   store.Backend
	history *history.Repository
	tools   *workload.ToolRegistry
	runner  *process.Supervisor

	// server handles instructions delivered by clients
	// server 处理客户端投递的指令
	server *workload.ServerCoordinator

	apiServer    *api.Server
	healthServer *api.HealthServer

	mu      sync.Mutex
	running bool
}

// NewAgent creates an Agent. Nothing is started until Start.
// NewAgent 创建 Agent，调用 Start 之前不会启动任何组件。
func NewAgent(cfg *config.Config) *Agent {
	ctx, cancel := context.WithCancel(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Agent{
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		registry:  registry,
		metrics:   metrics.NewRecorder(registry),
		readiness: api.NewReadiness(),
		runner:    process.NewSupervisor(process.OptionsFromConfig(cfg.Process)),
	}
}

// Start brings every component up and marks the node ready.
// Start 启动所有组件并将节点标记为就绪。
func (a *Agent) Start() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errors.New("agent is already running / Agent 已在运行")
	}
	a.running = true
	a.mu.Unlock()

	cfg := a.config
	logger.InfoF(a.ctx, "[Agent] Starting %s (version %s) / 正在启动", cfg.Agent.Name, Version)

	// Step 1: Open state store
	// 步骤 1：打开状态存储
	logger.InfoF(a.ctx, "[Agent] [1/6] Opening %s state store... / 打开状态存储...", cfg.Store.Type)
	st, err := store.New(a.ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	a.store = st

	// Step 2: Open iteration history
	// 步骤 2：打开迭代历史库
	if cfg.History.Enabled {
		logger.InfoF(a.ctx, "[Agent] [2/6] Opening %s iteration history... / 打开迭代历史库...", cfg.History.Type)
		db, err := history.Open(cfg.History)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		a.history = history.NewRepository(db)
	} else {
		logger.InfoF(a.ctx, "[Agent] [2/6] Iteration history disabled / 迭代历史已禁用")
	}

	// Step 3: Build tool registry and server coordinator
	// 步骤 3：构建工具注册表与服务端协调器
	logger.InfoF(a.ctx, "[Agent] [3/6] Registering %d tools... / 注册工具...", len(cfg.Tools))
	tools, err := workload.NewToolRegistry(cfg.Tools)
	if err != nil {
		return fmt.Errorf("failed to load tools: %w", err)
	}
	a.tools = tools

	var network workload.NetworkAccess = workload.NoopNetworkAccess{}
	if cfg.Firewall.Enabled {
		network = workload.NewIPTablesNetworkAccess(cfg.Firewall.Command)
	}
	a.server = workload.NewServerCoordinator(a.ctx, workload.ServerConfig{
		Store:               a.store,
		Tools:               a.tools,
		Runner:              a.runner,
		Finder:              process.NewFinder(),
		Network:             network,
		Metrics:             a.metrics,
		ProcessPollInterval: cfg.Process.PollInterval,
	})

	// Step 4: Start HTTP state API
	// 步骤 4：启动 HTTP 状态 API
	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	logger.InfoF(a.ctx, "[Agent] [4/6] Starting state API on %s... / 启动状态 API...", addr)
	opts := api.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Store:       a.store,
		Inbox:       a.server,
		Readiness:   a.readiness,
		Gatherer:    a.registry,
	}
	if a.history != nil {
		opts.History = a.history
	}
	a.apiServer = api.NewServer(opts)
	if err := a.apiServer.Start(addr); err != nil {
		return fmt.Errorf("failed to start state API: %w", err)
	}

	// Step 5: Start gRPC health service
	// 步骤 5：启动 gRPC 健康服务
	if cfg.API.GRPCPort > 0 {
		grpcAddr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.GRPCPort))
		logger.InfoF(a.ctx, "[Agent] [5/6] Starting gRPC health service on %s... / 启动 gRPC 健康服务...", grpcAddr)
		a.healthServer = api.NewHealthServer(cfg.Telemetry.ServiceName, a.readiness)
		if err := a.healthServer.Start(grpcAddr); err != nil {
			return fmt.Errorf("failed to start gRPC health service: %w", err)
		}
	} else {
		logger.InfoF(a.ctx, "[Agent] [5/6] gRPC health service disabled / gRPC 健康服务已禁用")
	}

	// Step 6: Report online
	// 步骤 6：上线
	logger.InfoF(a.ctx, "[Agent] [6/6] Marking node ready / 标记节点就绪")
	a.readiness.Set(true)
	return nil
}

// RunIterations runs the configured workload as a client.
// RunIterations 以客户端身份运行所配置的工作负载。
//
// Every iteration runs even if an earlier one failed; all failures are returned.
// 即使前面的迭代失败也会继续执行，返回所有失败。
func (a *Agent) RunIterations(ctx context.Context) error {
	cfg := a.config
	clientCfg := workload.ClientConfig{
		Layout:  cfg.EnvironmentLayout(),
		Clients: a.stateClientFactory(),
		Tools:   a.tools,
		Runner:  a.runner,
		Sync:    cfg.Sync,
		Metrics: a.metrics,
		Self:    cfg.Agent.Name,
	}
	if a.history != nil {
		clientCfg.Recorder = a.history
	}
	client := workload.NewClientCoordinator(clientCfg)

	iterations := cfg.Workload.Iterations
	if iterations < 1 {
		iterations = 1
	}
	role := model.Role(cfg.Workload.ServerRole)

	var errs []error
	for i := 1; i <= iterations; i++ {
		logger.InfoF(ctx, "[Agent] Iteration %d/%d of %s against %s", i, iterations, cfg.Workload.Type, role)
		if err := client.RunIteration(ctx, role, cfg.WorkloadProperties()); err != nil {
			logger.ErrorF(ctx, "[Agent] Iteration %d/%d failed: %v", i, iterations, err)
			errs = append(errs, fmt.Errorf("iteration %d: %w", i, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

// stateClientFactory reaches each layout instance through its state API.
// stateClientFactory 通过状态 API 访问布局中的每个实例。
func (a *Agent) stateClientFactory() workload.StateClientFactory {
	port := strconv.Itoa(a.config.API.Port)
	timeout := a.config.API.RequestTimeout
	return func(instance model.ClientInstance) (workload.StateClient, error) {
		if instance.IPAddress == "" {
			return nil, fmt.Errorf("instance %s has no ip address", instance.Name)
		}
		return api.NewClient("http://"+net.JoinHostPort(instance.IPAddress, port), timeout), nil
	}
}

// Shutdown stops every component in reverse order.
// Shutdown 按相反顺序停止所有组件。
func (a *Agent) Shutdown() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		a.cancel()
		return
	}
	a.running = false
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.InfoF(ctx, "[Agent] Shutting down / 正在关闭")

	// Step 1: Stop reporting ready
	// 步骤 1：停止报告就绪
	logger.InfoF(ctx, "[Agent] [1/5] Marking node not ready / 标记节点未就绪")
	a.readiness.Set(false)

	// Step 2: Join background supervisors
	// 步骤 2：等待后台监督器结束
	logger.InfoF(ctx, "[Agent] [2/5] Stopping background supervisors... / 停止后台监督器...")
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			logger.WarnF(ctx, "[Agent] Error stopping supervisors: %v / 停止监督器时出错", err)
		}
	}

	// Step 3: Stop listeners
	// 步骤 3：停止监听
	logger.InfoF(ctx, "[Agent] [3/5] Stopping API servers... / 停止 API 服务...")
	if a.healthServer != nil {
		a.healthServer.Stop()
	}
	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(ctx); err != nil {
			logger.WarnF(ctx, "[Agent] Error stopping state API: %v / 停止状态 API 时出错", err)
		}
	}

	// Step 4: Close storage
	// 步骤 4：关闭存储
	logger.InfoF(ctx, "[Agent] [4/5] Closing storage... / 关闭存储...")
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			logger.WarnF(ctx, "[Agent] Error closing history: %v / 关闭历史库时出错", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.WarnF(ctx, "[Agent] Error closing state store: %v / 关闭状态存储时出错", err)
		}
	}

	// Step 5: Cancel main context
	// 步骤 5：取消主上下文
	logger.InfoF(ctx, "[Agent] [5/5] Stopping / 停止")
	a.cancel()
	logger.InfoF(ctx, "[Agent] Shutdown complete / 关闭完成")
}
