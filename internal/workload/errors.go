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

	"github.com/seatunnel/benchagent/internal/model"
	"github.com/seatunnel/benchagent/internal/store"
)

// Workload errors
// 工作负载错误
var (
	// ErrLayoutInvalid indicates no instance holds the requested role
	// ErrLayoutInvalid 表示没有实例具有请求的角色
	ErrLayoutInvalid = model.ErrLayoutInvalid

	// ErrWorkloadFailed indicates the tool exited outside its success codes
	// ErrWorkloadFailed 表示工具的退出码不在成功集合内
	ErrWorkloadFailed = errors.New("workload failed")

	// ErrSynchronizationTimeout indicates a postcondition was not observed in time
	// ErrSynchronizationTimeout 表示未能在时限内观察到期望状态
	ErrSynchronizationTimeout = errors.New("synchronization timeout")

	// ErrStoreOperationFailed indicates the state store returned an unexpected error
	// ErrStoreOperationFailed 表示状态存储返回了意外错误
	ErrStoreOperationFailed = store.ErrOperationFailed

	// ErrUnknownWorkload indicates no tool is registered for a workload type
	// ErrUnknownWorkload 表示工作负载类型没有注册对应的工具
	ErrUnknownWorkload = errors.New("unknown workload type")
)

// isRetryableIteration reports whether a failed iteration should be restarted
// isRetryableIteration 判断失败的迭代是否应该重新开始
func isRetryableIteration(err error) bool {
	switch {
	case errors.Is(err, ErrLayoutInvalid),
		errors.Is(err, ErrUnknownWorkload),
		errors.Is(err, model.ErrInvalidInstruction),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
