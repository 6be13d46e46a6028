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
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seatunnel/benchagent/internal/logger"
	"github.com/seatunnel/benchagent/internal/metrics"
	"github.com/seatunnel/benchagent/internal/model"
	"github.com/seatunnel/benchagent/internal/store"
)

// DefaultCleanupTimeout bounds the state delete performed when a supervisor exits
// DefaultCleanupTimeout 限制监督器退出时删除状态的耗时
const DefaultCleanupTimeout = 30 * time.Second

// BackgroundSupervisor owns one in-flight server-side run.
// BackgroundSupervisor 负责一次正在进行的服务端运行。
//
// The supervisor holds its own cancellation scope and job. Stop cancels the
// scope and waits for the job; the WorkloadState is deleted on every exit path.
// 监督器持有自己的取消范围和任务。Stop 取消并等待任务结束；任何退出路径都会删除 WorkloadState。
type BackgroundSupervisor struct {
	name         string
	workloadType string
	envelope     *model.InstructionEnvelope
	tool         *Tool
	deps         supervisorDeps

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

type supervisorDeps struct {
	store          store.Backend
	runner         ProcessRunner
	finder         ProcessFinder
	network        NetworkAccess
	metrics        *metrics.Recorder
	pollInterval   time.Duration
	cleanupTimeout time.Duration
}

func newBackgroundSupervisor(parent context.Context, workloadType string, envelope *model.InstructionEnvelope, tool *Tool, deps supervisorDeps) *BackgroundSupervisor {
	ctx, cancel := context.WithCancel(parent)
	return &BackgroundSupervisor{
		name:         fmt.Sprintf("%s-supervisor-%s", workloadType, shortID(envelope.ID)),
		workloadType: workloadType,
		envelope:     envelope,
		tool:         tool,
		deps:         deps,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Name returns the supervisor name used in logs
func (b *BackgroundSupervisor) Name() string {
	return b.name
}

// Start launches the run in its own goroutine, only the first call has effect
// Start 在独立的 goroutine 中启动运行，只有第一次调用生效
func (b *BackgroundSupervisor) Start() {
	b.once.Do(func() {
		b.deps.metrics.SupervisorStarted()
		go b.run()
	})
}

// Stop cancels the run and waits until it has fully finished
// Stop 取消运行并等待其完全结束
func (b *BackgroundSupervisor) Stop(ctx context.Context) error {
	b.cancel()
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop %s: %w", b.name, ctx.Err())
	}
}

// Done is closed once the run and its cleanup have finished
// Done 在运行及清理结束后关闭
func (b *BackgroundSupervisor) Done() <-chan struct{} {
	return b.done
}

// Err returns the run result, valid after Done is closed
// Err 返回运行结果，在 Done 关闭后有效
func (b *BackgroundSupervisor) Err() error {
	select {
	case <-b.done:
		return b.err
	default:
		return nil
	}
}

// Running reports whether the run has not finished yet
func (b *BackgroundSupervisor) Running() bool {
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

func (b *BackgroundSupervisor) run() {
	defer close(b.done)
	defer b.cancel()
	defer b.cleanup()
	defer func() {
		if r := recover(); r != nil {
			b.err = fmt.Errorf("%s panicked: %v", b.name, r)
			logger.ErrorF(b.ctx, "[Supervisor] %v", b.err)
		}
	}()

	logger.InfoF(b.ctx, "[Supervisor] %s started (instruction %s)", b.name, b.envelope.ID)
	b.err = b.execute(b.ctx)
	switch {
	case b.err == nil:
		logger.InfoF(b.ctx, "[Supervisor] %s finished", b.name)
	case errors.Is(b.err, context.Canceled):
		logger.InfoF(b.ctx, "[Supervisor] %s stopped", b.name)
	default:
		logger.ErrorF(b.ctx, "[Supervisor] %s failed: %v", b.name, b.err)
	}
}

// cleanup 删除状态文档，使用独立于运行上下文的超时
func (b *BackgroundSupervisor) cleanup() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(b.ctx), b.deps.cleanupTimeout)
	defer cancel()

	key := model.StateKey(b.workloadType)
	if err := b.deps.store.Delete(ctx, key); err != nil {
		logger.ErrorF(ctx, "[Supervisor] %s failed to delete %s: %v", b.name, key, err)
	} else {
		logger.DebugF(ctx, "[Supervisor] %s deleted %s", b.name, key)
	}
	b.deps.metrics.SupervisorStopped()
}

func (b *BackgroundSupervisor) execute(ctx context.Context) error {
	key := model.StateKey(b.workloadType)
	state, err := store.GetState[model.WorkloadState](ctx, b.deps.store, key)
	if isNotFound(err) {
		logger.InfoF(ctx, "[Supervisor] %s found no %s, nothing to run", b.name, key)
		return nil
	}
	if err != nil {
		return storeError("get", key, err)
	}

	props := state.Properties
	if props.Len() == 0 {
		props = b.envelope.Properties
	}

	port := props.Int(model.KeyPort, 0)
	protocol := props.String(model.KeyProtocol, "tcp")
	if err := b.deps.network.AllowInbound(ctx, protocol, port); err != nil {
		return err
	}

	if path := b.tool.ResultsPath(props); path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.WarnF(ctx, "[Supervisor] %s could not remove %s: %v", b.name, path, err)
		}
	}

	command, args, err := b.tool.Command(model.RoleServer, props)
	if err != nil {
		return err
	}
	timeout, err := model.RunTimeout(props)
	if err != nil {
		return err
	}

	processName := b.tool.ProcessName
	g, gctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()

	g.Go(func() error {
		b.confirmStarted(watchCtx, key, processName)
		return nil
	})
	g.Go(func() (err error) {
		defer stopWatch()
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", b.name, r)
			}
		}()
		return b.runTool(gctx, command, args, timeout)
	})
	return g.Wait()
}

// confirmStarted 轮询操作系统进程列表，找到进程后将状态更新为 ExecutionStarted
func (b *BackgroundSupervisor) confirmStarted(ctx context.Context, key, processName string) {
	ticker := time.NewTicker(b.deps.pollInterval)
	defer ticker.Stop()

	for {
		pids, err := b.deps.finder.FindByName(ctx, processName)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				logger.DebugF(ctx, "[Supervisor] %s process lookup failed: %v", b.name, err)
			}
		case len(pids) > 0:
			done, err := b.markStarted(ctx, key)
			if done {
				if err != nil {
					logger.WarnF(ctx, "[Supervisor] %s could not mark %s started: %v", b.name, key, err)
					return
				}
				logger.InfoF(ctx, "[Supervisor] %s observed %s (pid %v)", b.name, processName, pids)
				return
			}
			if err != nil && ctx.Err() == nil {
				logger.WarnF(ctx, "[Supervisor] %s could not mark %s started: %v", b.name, key, err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *BackgroundSupervisor) markStarted(ctx context.Context, key string) (bool, error) {
	state, err := store.GetState[model.WorkloadState](ctx, b.deps.store, key)
	if isNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if state.Status == model.StatusExecutionStarted {
		return true, nil
	}
	if !model.CanTransition(state.Status, model.StatusExecutionStarted) {
		return true, fmt.Errorf("illegal transition %s -> %s", state.Status, model.StatusExecutionStarted)
	}

	state.Status = model.StatusExecutionStarted
	state.UpdatedAt = time.Now().UTC()
	if err := store.UpdateState(ctx, b.deps.store, key, state); err != nil {
		if isNotFound(err) {
			return true, nil
		}
		return false, err
	}
	return true, nil
}

func (b *BackgroundSupervisor) runTool(ctx context.Context, command string, args []string, timeout time.Duration) error {
	role := string(model.RoleServer)
	handle, err := b.deps.runner.Run(ctx, command, args, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.deps.metrics.ObserveProcessRun(b.workloadType, role, metrics.OutcomeFailed)
		return fmt.Errorf("%w: %s: %w", ErrWorkloadFailed, command, err)
	}

	if handle.TimedOut {
		b.deps.metrics.ObserveProcessRun(b.workloadType, role, metrics.OutcomeTimedOut)
		logger.WarnF(ctx, "[Supervisor] %s: %s was killed after %s", b.name, command, timeout)
		return nil
	}
	if !handle.Succeeded(b.tool.SuccessCodes) {
		b.deps.metrics.ObserveProcessRun(b.workloadType, role, metrics.OutcomeFailed)
		return fmt.Errorf("%w: %s exited with code %d: %s", ErrWorkloadFailed, command, handle.ExitCode, handle.OutputTail(outputTailLines))
	}
	b.deps.metrics.ObserveProcessRun(b.workloadType, role, metrics.OutcomeSucceeded)
	return nil
}

const outputTailLines = 20

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
