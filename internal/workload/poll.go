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
	"fmt"
	"time"
)

// WaitFor polls cond until it reports true or timeout elapses.
// WaitFor 轮询 cond 直到返回 true 或超时。
//
// Errors from cond are remembered and polling continues; on timeout the
// result wraps both ErrSynchronizationTimeout and the last error.
// cond 返回的错误会被记录并继续轮询；超时时结果同时包装 ErrSynchronizationTimeout 和最后的错误。
func WaitFor(ctx context.Context, what string, timeout, interval time.Duration, cond func(ctx context.Context) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if interval <= 0 {
		interval = time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		done, err := cond(waitCtx)
		if err == nil && done {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if lastErr != nil {
				return fmt.Errorf("%w: %s not observed within %s: %w", ErrSynchronizationTimeout, what, timeout, lastErr)
			}
			return fmt.Errorf("%w: %s not observed within %s", ErrSynchronizationTimeout, what, timeout)
		case <-ticker.C:
		}
	}
}
