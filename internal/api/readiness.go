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

package api

import (
	"sync"
)

// Readiness tracks whether the application reports itself online.
// Readiness 记录应用是否已上线。
type Readiness struct {
	mu        sync.RWMutex
	ready     bool
	listeners []func(bool)
}

// NewReadiness creates a Readiness that starts offline.
// NewReadiness 创建初始为离线状态的 Readiness。
func NewReadiness() *Readiness {
	return &Readiness{}
}

// Ready reports the current state.
func (r *Readiness) Ready() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Set updates the state and notifies listeners on change.
// Set 更新状态，状态变化时通知监听者。
func (r *Readiness) Set(ready bool) {
	r.mu.Lock()
	if r.ready == ready {
		r.mu.Unlock()
		return
	}
	r.ready = ready
	listeners := make([]func(bool), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(ready)
	}
}

// OnChange registers fn and calls it once with the current state.
// OnChange 注册监听函数，并立即以当前状态调用一次。
func (r *Readiness) OnChange(fn func(bool)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	ready := r.ready
	r.mu.Unlock()
	fn(ready)
}
