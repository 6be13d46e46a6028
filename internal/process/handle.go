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

package process

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Handle describes one execution of a native process
// Handle 描述一次本地进程的执行
type Handle struct {
	Command   string
	Args      []string
	PID       int
	StartTime time.Time
	ExitTime  time.Time

	// ExitCode is -1 when the process was killed by a signal
	// ExitCode 在进程被信号终止时为 -1
	ExitCode int

	// Output holds combined stdout and stderr, truncated to the output limit
	// Output 保存合并后的标准输出和标准错误，按输出上限截断
	Output string

	// TimedOut is set when the absolute timeout killed the process
	// TimedOut 在进程因绝对超时被终止时设置
	TimedOut bool

	// Attempts is the number of launches it took, including the final one
	// Attempts 是启动的次数，包括最后一次
	Attempts int
}

// Duration returns how long the process ran
// Duration 返回进程运行的时长
func (h *Handle) Duration() time.Duration {
	if h == nil || h.StartTime.IsZero() || h.ExitTime.IsZero() {
		return 0
	}
	return h.ExitTime.Sub(h.StartTime)
}

// Succeeded reports whether the exit code belongs to the success set.
// Succeeded 判断退出码是否属于成功集合。
// An empty set means only 0 is a success.
// 空集合表示只有 0 代表成功。
func (h *Handle) Succeeded(successCodes []int) bool {
	if h == nil {
		return false
	}
	if len(successCodes) == 0 {
		return h.ExitCode == 0
	}
	for _, code := range successCodes {
		if h.ExitCode == code {
			return true
		}
	}
	return false
}

// OutputTail returns the last n lines of output
// OutputTail 返回输出的最后 n 行
func (h *Handle) OutputTail(n int) string {
	if h == nil || h.Output == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(strings.TrimRight(h.Output, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// String returns a short description for logs
func (h *Handle) String() string {
	if h == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (pid %d, exit %d, %s)", h.Command, h.PID, h.ExitCode, h.Duration().Round(time.Millisecond))
}

// outputBuffer keeps at most limit bytes, dropping the oldest data first
// outputBuffer 最多保留 limit 字节，优先丢弃最早的数据
type outputBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newOutputBuffer(limit int) *outputBuffer {
	return &outputBuffer{limit: limit}
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if b.limit > 0 && len(b.buf) > b.limit {
		b.buf = append(b.buf[:0], b.buf[len(b.buf)-b.limit:]...)
	}
	return len(p), nil
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
