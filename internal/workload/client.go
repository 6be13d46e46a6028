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
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/seatunnel/benchagent/internal/config"
	"github.com/seatunnel/benchagent/internal/logger"
	"github.com/seatunnel/benchagent/internal/metrics"
	"github.com/seatunnel/benchagent/internal/model"
	otel_trace "github.com/seatunnel/benchagent/internal/otel_trace"
	"github.com/seatunnel/benchagent/internal/retry"
)

// Synchronization step names, used in logs and metrics
// 同步步骤名称，用于日志和指标
const (
	StepHeartbeat = "heartbeat"
	StepReadiness = "readiness"
	StepReset     = "reset"
	StepStart     = "start"
	StepRun       = "run"
	StepTeardown  = "teardown"
)

// ClientConfig holds the collaborators of a ClientCoordinator
// ClientConfig 包含 ClientCoordinator 的依赖
type ClientConfig struct {
	Layout   *model.EnvironmentLayout
	Clients  StateClientFactory
	Tools    *ToolRegistry
	Runner   ProcessRunner
	Sync     config.SyncConfig
	Recorder IterationRecorder
	Metrics  *metrics.Recorder

	// Self is the layout name of this node, exported to tools as client_ip
	// Self 是当前节点在布局中的名称，以 client_ip 形式传给工具
	Self string
}

// ClientCoordinator drives one benchmark iteration against the server nodes.
// ClientCoordinator 针对服务端节点驱动一次基准测试迭代。
type ClientCoordinator struct {
	cfg ClientConfig
}

// NewClientCoordinator creates a client coordinator, zero sync values fall back to defaults
// NewClientCoordinator 创建客户端协调器，同步参数为零时使用默认值
func NewClientCoordinator(cfg ClientConfig) *ClientCoordinator {
	s := &cfg.Sync
	setDuration(&s.HeartbeatTimeout, config.DefaultHeartbeatTimeout)
	setDuration(&s.ReadinessTimeout, config.DefaultReadinessTimeout)
	setDuration(&s.ResetTimeout, config.DefaultResetTimeout)
	setDuration(&s.StartTimeout, config.DefaultStartTimeout)
	setDuration(&s.TeardownTimeout, config.DefaultTeardownTimeout)
	setDuration(&s.PollInterval, config.DefaultPollInterval)
	if s.IterationAttempts <= 0 {
		s.IterationAttempts = config.DefaultIterationAttempts
	}
	return &ClientCoordinator{cfg: cfg}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// peer is one server instance participating in the iteration
type peer struct {
	instance model.ClientInstance
	client   StateClient
	props    *model.Properties
}

// RunIteration runs one complete iteration of a workload.
// RunIteration 运行一次完整的工作负载迭代。
//
// Every attempt goes through heartbeat, readiness, reset, start, the local run
// and the teardown barrier. Any failure restarts the whole sequence, up to
// the configured number of attempts.
// 每次尝试依次经过心跳、就绪、重置、启动、本地运行和清理屏障；
// 任何失败都会从头重新开始，最多尝试配置的次数。
func (c *ClientCoordinator) RunIteration(ctx context.Context, serverRole model.Role, params *model.Properties) (err error) {
	report := &IterationReport{
		ID:           uuid.NewString(),
		Scenario:     params.String(model.KeyScenario, ""),
		WorkloadType: strings.ToLower(params.String(model.KeyType, "")),
		ServerRole:   string(serverRole),
		ExitCode:     -1,
		StartedAt:    time.Now().UTC(),
	}
	ctx, span := otel_trace.Start(ctx, "workload.RunIteration")
	span.SetAttributes(
		attribute.String("iteration.id", report.ID),
		attribute.String("workload.type", report.WorkloadType),
		attribute.String("workload.server_role", report.ServerRole),
	)
	defer func() {
		c.finish(ctx, report, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tool, err := c.cfg.Tools.Lookup(report.WorkloadType)
	if err != nil {
		return err
	}
	peers, props, err := c.resolve(serverRole, params)
	if err != nil {
		return err
	}
	if _, err := model.RunTimeout(props); err != nil {
		return err
	}
	for _, p := range peers {
		report.Servers = append(report.Servers, p.instance.Name)
	}

	policy := retry.Policy{
		Attempts:        c.cfg.Sync.IterationAttempts,
		InitialInterval: c.cfg.Sync.RetryBackoff,
		MaxInterval:     c.cfg.Sync.RetryBackoff,
		Factor:          1,
		Retryable:       isRetryableIteration,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			logger.WarnF(ctx, "[Client] iteration %s attempt %d/%d failed, restarting: %v",
				report.ID, attempt, c.cfg.Sync.IterationAttempts, err)
		},
	}
	return policy.Do(ctx, func(ctx context.Context, attempt int) error {
		report.Attempts = attempt
		return c.attempt(ctx, peers, tool, props, report)
	})
}

// resolve 解析服务端实例并构造属性包
func (c *ClientCoordinator) resolve(serverRole model.Role, params *model.Properties) ([]peer, *model.Properties, error) {
	if c.cfg.Layout == nil {
		return nil, nil, fmt.Errorf("%w: no environment layout", ErrLayoutInvalid)
	}
	servers := c.cfg.Layout.InstancesByRole(serverRole)
	if len(servers) == 0 {
		return nil, nil, fmt.Errorf("%w: no instance with role %s", ErrLayoutInvalid, serverRole)
	}

	ips := make([]string, 0, len(servers))
	for _, s := range servers {
		ips = append(ips, s.IPAddress)
	}
	props := params.Clone()
	props.Set(model.KeyServerIP, servers[0].IPAddress).Set(model.KeyServerIPs, strings.Join(ips, ","))
	if c.cfg.Self != "" {
		if self, ok := c.cfg.Layout.Instance(c.cfg.Self); ok {
			props.Set(model.KeyClientIP, self.IPAddress)
		}
	}

	peers := make([]peer, 0, len(servers))
	for _, s := range servers {
		client, err := c.cfg.Clients(s)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: instance %s: %w", ErrLayoutInvalid, s.Name, err)
		}
		peers = append(peers, peer{
			instance: s,
			client:   client,
			props:    props.Clone().Set(model.KeyServerIP, s.IPAddress),
		})
	}
	return peers, props, nil
}

func (c *ClientCoordinator) attempt(ctx context.Context, peers []peer, tool *Tool, props *model.Properties, report *IterationReport) (err error) {
	workloadType := report.WorkloadType
	key := model.StateKey(workloadType)

	// 步骤 1-4 对每个服务端并发执行
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range peers {
		g.Go(func() error {
			return c.prepare(gctx, p, key, workloadType)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// 步骤 6 无论本地运行结果如何都要执行
	defer func() {
		if teardownErr := c.teardown(ctx, peers, tool, props, key, workloadType); teardownErr != nil {
			err = errors.Join(err, teardownErr)
		}
	}()

	started := time.Now()
	err = c.runLocal(ctx, tool, props, report)
	c.cfg.Metrics.ObserveStep(workloadType, StepRun, time.Since(started), err)
	return err
}

// prepare 执行心跳、就绪、重置和启动四个同步点
func (c *ClientCoordinator) prepare(ctx context.Context, p peer, key, workloadType string) error {
	timeouts := c.cfg.Sync
	name := p.instance.Name

	if err := c.step(ctx, workloadType, StepHeartbeat, func() error {
		return WaitFor(ctx, "heartbeat of "+name, timeouts.HeartbeatTimeout, timeouts.PollInterval, func(ctx context.Context) (bool, error) {
			return probe(p.client.Heartbeat(ctx))
		})
	}); err != nil {
		return err
	}

	if err := c.step(ctx, workloadType, StepReadiness, func() error {
		return WaitFor(ctx, "readiness of "+name, timeouts.ReadinessTimeout, timeouts.PollInterval, func(ctx context.Context) (bool, error) {
			return probe(p.client.Readiness(ctx))
		})
	}); err != nil {
		return err
	}

	if err := c.step(ctx, workloadType, StepReset, func() error {
		if err := p.client.SendInstruction(ctx, model.NewInstruction(model.InstructionReset, p.props)); err != nil {
			return fmt.Errorf("send reset to %s: %w", name, err)
		}
		return WaitFor(ctx, key+" absent on "+name, timeouts.ResetTimeout, timeouts.PollInterval, stateAbsent(p.client, key))
	}); err != nil {
		return err
	}

	return c.step(ctx, workloadType, StepStart, func() error {
		if err := p.client.SendInstruction(ctx, model.NewInstruction(model.InstructionStartExecution, p.props)); err != nil {
			return fmt.Errorf("send start to %s: %w", name, err)
		}
		return WaitFor(ctx, key+" execution started on "+name, timeouts.StartTimeout, timeouts.PollInterval, func(ctx context.Context) (bool, error) {
			state, err := p.client.GetState(ctx, key)
			if isNotFound(err) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return state.Status == model.StatusExecutionStarted, nil
		})
	})
}

// runLocal 在本地运行客户端工具；panic 会被转换为错误，保证清理屏障执行
func (c *ClientCoordinator) runLocal(ctx context.Context, tool *Tool, props *model.Properties, report *IterationReport) (err error) {
	role := string(model.RoleClient)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: local run panicked: %v", ErrWorkloadFailed, r)
		}
	}()

	command, args, err := tool.Command(model.RoleClient, props)
	if err != nil {
		return err
	}
	timeout, err := model.RunTimeout(props)
	if err != nil {
		return err
	}
	logger.InfoF(ctx, "[Client] running %s %s (timeout %s)", command, strings.Join(args, " "), timeout)

	handle, err := c.cfg.Runner.Run(ctx, command, args, timeout)
	if handle != nil {
		report.ExitCode = handle.ExitCode
		report.TimedOut = handle.TimedOut
		report.OutputTail = handle.OutputTail(outputTailLines)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.cfg.Metrics.ObserveProcessRun(report.WorkloadType, role, metrics.OutcomeFailed)
		return fmt.Errorf("%w: %s: %w", ErrWorkloadFailed, command, err)
	}
	if handle.TimedOut {
		c.cfg.Metrics.ObserveProcessRun(report.WorkloadType, role, metrics.OutcomeTimedOut)
		logger.WarnF(ctx, "[Client] %s was killed after %s, continuing", command, timeout)
		return nil
	}
	if !handle.Succeeded(tool.SuccessCodes) {
		c.cfg.Metrics.ObserveProcessRun(report.WorkloadType, role, metrics.OutcomeFailed)
		return fmt.Errorf("%w: %s exited with code %d", ErrWorkloadFailed, command, handle.ExitCode)
	}
	c.cfg.Metrics.ObserveProcessRun(report.WorkloadType, role, metrics.OutcomeSucceeded)
	return nil
}

// teardown 删除本地结果文件并等待所有服务端状态消失
func (c *ClientCoordinator) teardown(ctx context.Context, peers []peer, tool *Tool, props *model.Properties, key, workloadType string) error {
	if path := tool.ResultsPath(props); path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.WarnF(ctx, "[Client] could not remove %s: %v", path, err)
		}
	}

	return c.step(ctx, workloadType, StepTeardown, func() error {
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range peers {
			g.Go(func() error {
				return WaitFor(gctx, key+" absent on "+p.instance.Name, c.cfg.Sync.TeardownTimeout, c.cfg.Sync.PollInterval, stateAbsent(p.client, key))
			})
		}
		return g.Wait()
	})
}

func (c *ClientCoordinator) step(ctx context.Context, workloadType, name string, fn func() error) error {
	started := time.Now()
	err := fn()
	c.cfg.Metrics.ObserveStep(workloadType, name, time.Since(started), err)
	if err != nil {
		logger.WarnF(ctx, "[Client] %s step failed after %s: %v", name, time.Since(started).Round(time.Millisecond), err)
		return err
	}
	logger.DebugF(ctx, "[Client] %s step done in %s", name, time.Since(started).Round(time.Millisecond))
	return nil
}

// finish 记录迭代结果，记录失败只打印日志
func (c *ClientCoordinator) finish(ctx context.Context, report *IterationReport, err error) {
	report.FinishedAt = time.Now().UTC()
	switch {
	case err != nil:
		report.Outcome = metrics.OutcomeFailed
		report.Error = err.Error()
	case report.TimedOut:
		report.Outcome = metrics.OutcomeTimedOut
	default:
		report.Outcome = metrics.OutcomeSucceeded
	}
	c.cfg.Metrics.ObserveIteration(report.WorkloadType, report.Attempts, err)

	if err != nil {
		logger.ErrorF(ctx, "[Client] iteration %s of %s failed after %d attempt(s): %v", report.ID, report.WorkloadType, report.Attempts, err)
	} else {
		logger.InfoF(ctx, "[Client] iteration %s of %s %s in %d attempt(s)", report.ID, report.WorkloadType, report.Outcome, report.Attempts)
	}

	if c.cfg.Recorder != nil {
		if recErr := c.cfg.Recorder.RecordIteration(context.WithoutCancel(ctx), report); recErr != nil {
			logger.WarnF(ctx, "[Client] failed to record iteration %s: %v", report.ID, recErr)
		}
	}
}

func probe(err error) (bool, error) {
	return err == nil, err
}

func stateAbsent(client StateClient, key string) func(ctx context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		_, err := client.GetState(ctx, key)
		if isNotFound(err) {
			return true, nil
		}
		return false, err
	}
}
