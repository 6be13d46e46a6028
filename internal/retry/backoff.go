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

// Package retry provides bounded retry with exponential backoff.
// retry 包提供带指数退避的有界重试。
package retry

import (
	"sync"
	"time"
)

// Default backoff parameters
// 默认退避参数
const (
	DefaultInitialBackoff = 1 * time.Second  // 初始退避时间
	DefaultMaxBackoff     = 30 * time.Second // 最大退避时间
	DefaultBackoffFactor  = 2.0              // 退避因子
)

// ExponentialBackoff yields growing delays between attempts
// ExponentialBackoff 在多次尝试之间产生递增的延迟
type ExponentialBackoff struct {
	InitialInterval time.Duration // 初始间隔
	MaxInterval     time.Duration // 最大间隔
	Factor          float64       // 退避因子
	attempt         int           // 当前尝试次数
	mu              sync.Mutex    // 互斥锁
}

// NewExponentialBackoff creates an ExponentialBackoff with default values
// NewExponentialBackoff 使用默认值创建 ExponentialBackoff
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: DefaultInitialBackoff,
		MaxInterval:     DefaultMaxBackoff,
		Factor:          DefaultBackoffFactor,
	}
}

// NextBackoff advances the attempt counter and returns its delay
// NextBackoff 推进尝试计数并返回对应的延迟
func (b *ExponentialBackoff) NextBackoff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempt++
	return CalculateBackoff(b.attempt, b.InitialInterval, b.MaxInterval, b.Factor)
}

// CalculateBackoff returns min(maxInterval, initialInterval * factor^(attempt-1))
// CalculateBackoff 返回 min(最大间隔, 初始间隔 * 因子^(尝试次数-1))
func CalculateBackoff(attempt int, initialInterval, maxInterval time.Duration, factor float64) time.Duration {
	if attempt <= 0 {
		return initialInterval
	}

	backoff := float64(initialInterval)
	for i := 1; i < attempt; i++ {
		backoff *= factor
		if maxInterval > 0 && backoff >= float64(maxInterval) {
			return maxInterval
		}
	}

	duration := time.Duration(backoff)
	if maxInterval > 0 && duration > maxInterval {
		duration = maxInterval
	}
	return duration
}

// Reset resets the backoff to its initial state
// Reset 重置退避到初始状态
func (b *ExponentialBackoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// Attempt returns the current attempt number
// Attempt 返回当前尝试次数
func (b *ExponentialBackoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
