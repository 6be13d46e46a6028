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

package retry

import (
	"context"
	"time"
)

// Policy runs an operation a bounded number of times.
// Policy 以有限次数执行操作。
type Policy struct {
	// Attempts is the total number of tries, at least one.
	// Attempts 是总尝试次数，至少为一次。
	Attempts int

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Factor          float64

	// Retryable decides whether an error deserves another attempt.
	// Nil means every error is retried.
	// Retryable 判断错误是否值得重试；为 nil 时所有错误都重试。
	Retryable func(err error) bool

	// OnRetry is called before sleeping between attempts.
	// OnRetry 在两次尝试之间休眠前调用。
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do calls fn until it succeeds, returns a non-retryable error, the context
// ends, or the attempts run out. The last error is returned unchanged.
// Do 调用 fn 直到成功、遇到不可重试错误、上下文结束或次数用尽；最后的错误原样返回。
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := &ExponentialBackoff{
		InitialInterval: p.InitialInterval,
		MaxInterval:     p.MaxInterval,
		Factor:          p.Factor,
	}
	if backoff.Factor <= 0 {
		backoff.Factor = DefaultBackoffFactor
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if attempt == attempts || ctx.Err() != nil {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}

		wait := backoff.NextBackoff()
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
