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

// Package workload synchronizes benchmark runs between client and server nodes.
// Package workload 在客户端与服务端节点之间同步基准测试运行。
package workload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seatunnel/benchagent/internal/model"
	"github.com/seatunnel/benchagent/internal/process"
	"github.com/seatunnel/benchagent/internal/store"
)

// ProcessRunner runs a native process to completion
// ProcessRunner 运行本地进程直到结束
type ProcessRunner interface {
	Run(ctx context.Context, command string, args []string, timeout time.Duration) (*process.Handle, error)
}

// ProcessFinder lists running processes by name
// ProcessFinder 按名称查找正在运行的进程
type ProcessFinder interface {
	FindByName(ctx context.Context, name string) ([]int, error)
}

// StateClient is the client's view of a remote server node.
// StateClient 是客户端对远端服务节点的访问接口。
//
// GetState returns store.ErrStateNotFound when the document is absent.
// 文档不存在时 GetState 返回 store.ErrStateNotFound。
type StateClient interface {
	Heartbeat(ctx context.Context) error
	Readiness(ctx context.Context) error
	GetState(ctx context.Context, key string) (*model.WorkloadState, error)
	SendInstruction(ctx context.Context, envelope *model.InstructionEnvelope) error
}

// StateClientFactory opens a StateClient for a layout instance
// StateClientFactory 为布局中的实例创建 StateClient
type StateClientFactory func(instance model.ClientInstance) (StateClient, error)

// IterationReport summarizes one client iteration
// IterationReport 汇总一次客户端迭代
type IterationReport struct {
	ID           string
	Scenario     string
	WorkloadType string
	ServerRole   string
	Servers      []string
	Attempts     int
	Outcome      string
	ExitCode     int
	TimedOut     bool
	Error        string
	OutputTail   string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// IterationRecorder persists iteration reports
// IterationRecorder 持久化迭代报告
type IterationRecorder interface {
	RecordIteration(ctx context.Context, report *IterationReport) error
}

// storeError tags unexpected store failures with ErrStoreOperationFailed
func storeError(op, key string, err error) error {
	if errors.Is(err, ErrStoreOperationFailed) {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrStoreOperationFailed, op, key, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrStateNotFound)
}
