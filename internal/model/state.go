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

package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WorkloadStatus is the server-side progress of one run.
// WorkloadStatus 是一次运行在服务端的进度。
type WorkloadStatus string

const (
	StatusReady            WorkloadStatus = "Ready"
	StatusExecutionStarted WorkloadStatus = "ExecutionStarted"
)

// Valid reports whether the status is known.
func (s WorkloadStatus) Valid() bool {
	return s == StatusReady || s == StatusExecutionStarted
}

// WorkloadState is the document shared between client and server.
// WorkloadState 是客户端和服务端共享的状态文档。
//
// Presence of the document means an iteration is outstanding; absence
// means the server is idle for that workload type.
// 文档存在表示有未完成的迭代；不存在表示该工作负载类型处于空闲。
type WorkloadState struct {
	Status     WorkloadStatus `json:"status"`
	Properties *Properties    `json:"properties"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewWorkloadState returns a Ready state carrying a copy of props.
// NewWorkloadState 返回携带属性副本的 Ready 状态。
func NewWorkloadState(props *Properties) *WorkloadState {
	return &WorkloadState{
		Status:     StatusReady,
		Properties: props.Clone(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// StateKey derives the state-store key of a workload type.
// StateKey 根据工作负载类型生成状态存储键。
func StateKey(workloadType string) string {
	return strings.ToLower(strings.TrimSpace(workloadType)) + "-state"
}

// CanTransition reports whether a stored state may move from one status to another.
// CanTransition 判断存储的状态是否允许从一个状态迁移到另一个状态。
//
// Transitions only move forward. Going back to absent is a delete, not a transition.
// 状态只能前进；回到不存在状态是删除操作而不是迁移。
func CanTransition(from, to WorkloadStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return from == StatusReady && to == StatusExecutionStarted
}

// AbsoluteTimeout is the hard limit for one run of a tool: warmup plus twice the duration.
// AbsoluteTimeout 是工具单次运行的硬性上限：预热时间加两倍运行时长。
func AbsoluteTimeout(warmup, duration time.Duration) time.Duration {
	if warmup < 0 {
		warmup = 0
	}
	if duration < 0 {
		duration = 0
	}
	return warmup + 2*duration
}

// RunTimeout computes the absolute timeout from the warmup and duration properties.
// A missing or non-positive duration is rejected so that every run has a deadline.
// RunTimeout 根据预热与运行时长属性计算绝对超时；缺失或非正的运行时长会被拒绝，保证每次运行都有截止时间。
func RunTimeout(props *Properties) (time.Duration, error) {
	duration := props.Duration(KeyDuration, 0)
	if duration <= 0 {
		return 0, fmt.Errorf("%w: %q must be a positive duration", ErrInvalidInstruction, KeyDuration)
	}
	return AbsoluteTimeout(props.Duration(KeyWarmup, 0), duration), nil
}

// FormatSeconds renders d as whole seconds, rounded up, the form tools take on their command lines.
// FormatSeconds 将 d 格式化为整秒数（向上取整），即工具命令行接受的格式。
func FormatSeconds(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return strconv.FormatInt(int64((d+time.Second-1)/time.Second), 10)
}
