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
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/seatunnel/benchagent/internal/logger"
	"github.com/seatunnel/benchagent/internal/metrics"
	"github.com/seatunnel/benchagent/internal/model"
	otel_trace "github.com/seatunnel/benchagent/internal/otel_trace"
	"github.com/seatunnel/benchagent/internal/store"
)

// ErrCoordinatorClosed is returned for instructions received after Shutdown
// ErrCoordinatorClosed 在 Shutdown 之后收到指令时返回
var ErrCoordinatorClosed = errors.New("server coordinator is shut down")

// DefaultProcessPollInterval is how often the supervisor looks for the tool process
// DefaultProcessPollInterval 是监督器查找工具进程的间隔
const DefaultProcessPollInterval = 500 * time.Millisecond

// ServerConfig holds the collaborators of a ServerCoordinator
// ServerConfig 包含 ServerCoordinator 的依赖
type ServerConfig struct {
	Store   store.Backend
	Tools   *ToolRegistry
	Runner  ProcessRunner
	Finder  ProcessFinder
	Network NetworkAccess
	Metrics *metrics.Recorder

	ProcessPollInterval time.Duration
	CleanupTimeout      time.Duration
}

// ServerCoordinator handles instructions delivered to this node.
// ServerCoordinator 处理发送到当前节点的指令。
//
// Instructions for the same workload type are serialized by a per-type mutex,
// different types proceed independently. Each StartExecution launches a
// BackgroundSupervisor that is stopped and joined by the next Reset,
// StartExecution or Shutdown for that type.
// 同一工作负载类型的指令由按类型的互斥锁串行执行，不同类型互不影响。
// 每个 StartExecution 启动一个 BackgroundSupervisor，
// 下一次同类型的 Reset、StartExecution 或 Shutdown 会停止并等待它结束。
type ServerCoordinator struct {
	cfg ServerConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	supervisors map[string]*BackgroundSupervisor
	closed      bool
}

// NewServerCoordinator creates a coordinator, ctx bounds every supervisor it launches
// NewServerCoordinator 创建协调器，ctx 约束其启动的所有监督器
func NewServerCoordinator(ctx context.Context, cfg ServerConfig) *ServerCoordinator {
	if cfg.Network == nil {
		cfg.Network = NoopNetworkAccess{}
	}
	if cfg.ProcessPollInterval <= 0 {
		cfg.ProcessPollInterval = DefaultProcessPollInterval
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = DefaultCleanupTimeout
	}
	ctx, cancel := context.WithCancel(ctx)
	return &ServerCoordinator{
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		locks:       make(map[string]*sync.Mutex),
		supervisors: make(map[string]*BackgroundSupervisor),
	}
}

// HandleInstruction applies one instruction envelope.
// HandleInstruction 处理一个指令信封。
//
// The returned error is informational: the caller logs it and keeps the
// inbox open. Reset never leaves a supervisor running even when it fails.
// 返回的错误仅用于记录：调用方记录后继续接收指令。
func (s *ServerCoordinator) HandleInstruction(ctx context.Context, envelope *model.InstructionEnvelope) (err error) {
	ctx, span := otel_trace.Start(ctx, "workload.HandleInstruction")
	defer span.End()
	defer func() {
		kind := "invalid"
		if envelope != nil {
			kind = string(envelope.Kind)
		}
		s.cfg.Metrics.ObserveInstruction(kind, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := envelope.Validate(); err != nil {
		return err
	}
	workloadType := strings.ToLower(strings.TrimSpace(envelope.WorkloadType()))
	span.SetAttributes(
		attribute.String("instruction.id", envelope.ID),
		attribute.String("instruction.kind", string(envelope.Kind)),
		attribute.String("workload.type", workloadType),
	)

	lock := s.lockFor(workloadType)
	lock.Lock()
	defer lock.Unlock()

	logger.InfoF(ctx, "[Coordinator] handling %s for %s (instruction %s)", envelope.Kind, workloadType, envelope.ID)
	switch envelope.Kind {
	case model.InstructionReset:
		return s.reset(ctx, workloadType)
	case model.InstructionStartExecution:
		return s.start(ctx, workloadType, envelope, span)
	default:
		return fmt.Errorf("%w: unknown kind %q", model.ErrInvalidInstruction, envelope.Kind)
	}
}

func (s *ServerCoordinator) lockFor(workloadType string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[workloadType]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[workloadType] = lock
	}
	return lock
}

// reset 停止当前监督器并删除状态；两步都会执行，错误合并返回
func (s *ServerCoordinator) reset(ctx context.Context, workloadType string) error {
	var errs []error
	if err := s.stopSupervisor(ctx, workloadType); err != nil {
		errs = append(errs, err)
	}
	key := model.StateKey(workloadType)
	if err := s.cfg.Store.Delete(ctx, key); err != nil {
		errs = append(errs, storeError("delete", key, err))
	}
	return errors.Join(errs...)
}

func (s *ServerCoordinator) start(ctx context.Context, workloadType string, envelope *model.InstructionEnvelope, span trace.Span) error {
	tool, err := s.cfg.Tools.Lookup(workloadType)
	if err != nil {
		return err
	}
	if _, err := model.RunTimeout(envelope.Properties); err != nil {
		return err
	}
	if err := s.stopSupervisor(ctx, workloadType); err != nil {
		return err
	}

	key := model.StateKey(workloadType)
	if err := s.cfg.Store.Delete(ctx, key); err != nil {
		return storeError("delete", key, err)
	}
	if err := store.CreateState(ctx, s.cfg.Store, key, model.NewWorkloadState(envelope.Properties)); err != nil {
		return storeError("create", key, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := s.cfg.Store.Delete(ctx, key); err != nil {
			logger.WarnF(ctx, "[Coordinator] could not remove %s after shutdown: %v", key, err)
		}
		return ErrCoordinatorClosed
	}
	supervisor := newBackgroundSupervisor(s.ctx, workloadType, envelope, tool, supervisorDeps{
		store:          s.cfg.Store,
		runner:         s.cfg.Runner,
		finder:         s.cfg.Finder,
		network:        s.cfg.Network,
		metrics:        s.cfg.Metrics,
		pollInterval:   s.cfg.ProcessPollInterval,
		cleanupTimeout: s.cfg.CleanupTimeout,
	})
	s.supervisors[workloadType] = supervisor
	s.mu.Unlock()

	supervisor.Start()
	span.SetAttributes(attribute.String("supervisor.name", supervisor.Name()))
	logger.InfoF(ctx, "[Coordinator] %s ready, %s launched", key, supervisor.Name())
	return nil
}

// stopSupervisor 取消并等待当前监督器；等待失败时保留记录以便下次重试
func (s *ServerCoordinator) stopSupervisor(ctx context.Context, workloadType string) error {
	s.mu.Lock()
	supervisor, ok := s.supervisors[workloadType]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := supervisor.Stop(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.supervisors[workloadType] == supervisor {
		delete(s.supervisors, workloadType)
	}
	s.mu.Unlock()
	logger.DebugF(ctx, "[Coordinator] %s joined", supervisor.Name())
	return nil
}

// Supervisor returns the supervisor currently tracked for a workload type
// Supervisor 返回工作负载类型当前对应的监督器
func (s *ServerCoordinator) Supervisor(workloadType string) (*BackgroundSupervisor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	supervisor, ok := s.supervisors[strings.ToLower(strings.TrimSpace(workloadType))]
	return supervisor, ok
}

// ActiveSupervisors counts supervisors whose run has not finished
// ActiveSupervisors 统计尚未结束的监督器数量
func (s *ServerCoordinator) ActiveSupervisors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, supervisor := range s.supervisors {
		if supervisor.Running() {
			n++
		}
	}
	return n
}

// Shutdown cancels every supervisor and waits for all of them to finish.
// Shutdown 取消所有监督器并等待它们结束。
func (s *ServerCoordinator) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	supervisors := make([]*BackgroundSupervisor, 0, len(s.supervisors))
	for _, supervisor := range s.supervisors {
		supervisors = append(supervisors, supervisor)
	}
	s.mu.Unlock()

	s.cancel()
	var errs []error
	for _, supervisor := range supervisors {
		if err := supervisor.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		logger.InfoF(ctx, "[Coordinator] shut down, %d supervisor(s) joined", len(supervisors))
	}
	return errors.Join(errs...)
}
