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

// Package process runs benchmark tools as native processes.
// process 包以本地进程的方式运行基准测试工具。
//
// This package provides:
// 此包提供：
// - Run with an absolute timeout that kills the whole process group / 带绝对超时的运行，超时后终止整个进程组
// - Bounded retry of transient startup failures / 对瞬时启动失败进行有限次重试
// - Exit code and output capture / 退出码和输出捕获
// - Lookup of running processes by name / 按名称查找运行中的进程
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/seatunnel/benchagent/internal/config"
	"github.com/seatunnel/benchagent/internal/logger"
	"github.com/seatunnel/benchagent/internal/retry"
)

// Process errors
// 进程错误
var (
	// ErrInvalidCommand indicates an empty command line
	// ErrInvalidCommand 表示命令行为空
	ErrInvalidCommand = errors.New("invalid command")

	// ErrStartFailed indicates the process failed to start
	// ErrStartFailed 表示进程启动失败
	ErrStartFailed = errors.New("process failed to start")
)

// DefaultWaitDelay bounds how long Wait blocks on open pipes after exit
// DefaultWaitDelay 限制进程退出后 Wait 等待管道关闭的时间
const DefaultWaitDelay = 5 * time.Second

// StartupError reports a process that exited early with a transient failure
// StartupError 表示进程因瞬时故障提前退出
type StartupError struct {
	Command  string
	ExitCode int
	Pattern  string
	Output   string
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s exited with code %d during startup: %s", e.Command, e.ExitCode, e.Pattern)
}

func (e *StartupError) Unwrap() error {
	return ErrStartFailed
}

// Options tunes a Supervisor
// Options 调整 Supervisor 的行为
type Options struct {
	StartupAttempts int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffFactor   float64

	// TransientErrors are substrings marking a retryable startup failure
	// TransientErrors 是标识可重试启动失败的子串
	TransientErrors []string

	// OutputLimit caps captured output in bytes
	// OutputLimit 限制捕获输出的字节数
	OutputLimit int

	Env []string
	Dir string
}

// OptionsFromConfig converts the process configuration section
// OptionsFromConfig 转换进程配置段
func OptionsFromConfig(cfg config.ProcessConfig) Options {
	return Options{
		StartupAttempts: cfg.StartupAttempts,
		InitialBackoff:  cfg.InitialBackoff,
		MaxBackoff:      cfg.MaxBackoff,
		BackoffFactor:   cfg.BackoffFactor,
		TransientErrors: cfg.TransientErrors,
		OutputLimit:     cfg.OutputLimit,
	}
}

// Supervisor launches processes and watches them until exit
// Supervisor 启动进程并监视其直至退出
type Supervisor struct {
	opts Options
}

// NewSupervisor creates a Supervisor, filling unset options with defaults
// NewSupervisor 创建 Supervisor，未设置的选项使用默认值
func NewSupervisor(opts Options) *Supervisor {
	if opts.StartupAttempts < 1 {
		opts.StartupAttempts = config.DefaultStartupAttempts
	}
	if opts.BackoffFactor <= 0 {
		opts.BackoffFactor = retry.DefaultBackoffFactor
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = retry.DefaultMaxBackoff
	}
	if len(opts.TransientErrors) == 0 {
		opts.TransientErrors = []string{config.DefaultTransientError}
	}
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = config.DefaultOutputLimit
	}
	return &Supervisor{opts: opts}
}

// Run executes command until it exits or the absolute timeout elapses.
// Run 执行命令直到退出或绝对超时。
//
// A timeout is not an error: the process group is killed, a warning is
// logged and the returned handle has TimedOut set. Startup failures that
// match a transient pattern are retried up to StartupAttempts times; the
// final error is returned unchanged. A non-zero exit code is not an error
// either, callers classify it against their success codes.
// 超时不是错误：进程组被终止，记录警告并设置 TimedOut。
// 匹配瞬时模式的启动失败最多重试 StartupAttempts 次，最后的错误原样返回。
// 非零退出码也不是错误，由调用方根据成功码集合判断。
func (s *Supervisor) Run(ctx context.Context, command string, args []string, timeout time.Duration) (*Handle, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrInvalidCommand
	}

	var handle *Handle
	policy := retry.Policy{
		Attempts:        s.opts.StartupAttempts,
		InitialInterval: s.opts.InitialBackoff,
		MaxInterval:     s.opts.MaxBackoff,
		Factor:          s.opts.BackoffFactor,
		Retryable:       s.isTransient,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			logger.WarnF(ctx, "[Process] %s startup attempt %d/%d failed, retrying in %s: %v",
				command, attempt, s.opts.StartupAttempts, wait, err)
		},
	}

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		h, err := s.runOnce(ctx, command, args, timeout)
		if h != nil {
			h.Attempts = attempt
			handle = h
		}
		if err != nil {
			return err
		}
		if !h.TimedOut && h.ExitCode != 0 {
			if pattern, ok := s.matchTransient(h.Output); ok {
				return &StartupError{Command: command, ExitCode: h.ExitCode, Pattern: pattern, Output: h.Output}
			}
		}
		return nil
	})
	return handle, err
}

func (s *Supervisor) runOnce(ctx context.Context, command string, args []string, timeout time.Duration) (*Handle, error) {
	cmd := exec.Command(command, args...)
	setProcGroupAttr(cmd)
	cmd.WaitDelay = DefaultWaitDelay
	if s.opts.Dir != "" {
		cmd.Dir = s.opts.Dir
	}
	if len(s.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), s.opts.Env...)
	}

	output := newOutputBuffer(s.opts.OutputLimit)
	cmd.Stdout = output
	cmd.Stderr = output

	handle := &Handle{Command: command, Args: append([]string(nil), args...), ExitCode: -1}
	if err := cmd.Start(); err != nil {
		return handle, fmt.Errorf("%w: %s: %w", ErrStartFailed, command, err)
	}
	handle.PID = cmd.Process.Pid
	handle.StartTime = time.Now()
	logger.DebugF(ctx, "[Process] started %s %s (pid %d, timeout %s)", command, strings.Join(args, " "), handle.PID, timeout)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var waitErr, ctxErr error
	select {
	case waitErr = <-done:
	case <-deadline:
		handle.TimedOut = true
		killProcessGroup(cmd)
		waitErr = <-done
	case <-ctx.Done():
		ctxErr = ctx.Err()
		killProcessGroup(cmd)
		waitErr = <-done
	}

	handle.ExitTime = time.Now()
	handle.Output = output.String()
	if cmd.ProcessState != nil {
		handle.ExitCode = cmd.ProcessState.ExitCode()
	}

	if handle.TimedOut {
		logger.WarnF(ctx, "[Process] %s (pid %d) exceeded its timeout of %s, process group killed", command, handle.PID, timeout)
		return handle, nil
	}
	if ctxErr != nil {
		return handle, ctxErr
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return handle, fmt.Errorf("wait for %s: %w", command, waitErr)
	}
	logger.DebugF(ctx, "[Process] %s", handle)
	return handle, nil
}

// isTransient reports whether err is a startup failure worth retrying
// isTransient 判断错误是否为值得重试的启动失败
func (s *Supervisor) isTransient(err error) bool {
	var startupErr *StartupError
	if errors.As(err, &startupErr) {
		return true
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	_, ok := s.matchTransient(err.Error())
	return ok
}

func (s *Supervisor) matchTransient(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, pattern := range s.opts.TransientErrors {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return pattern, true
		}
	}
	return "", false
}
