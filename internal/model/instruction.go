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
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidInstruction is returned for envelopes that cannot be dispatched.
// ErrInvalidInstruction 在指令信封无法分发时返回。
var ErrInvalidInstruction = errors.New("invalid instruction")

// InstructionKind identifies what the server should do.
// InstructionKind 标识服务端应执行的操作。
type InstructionKind string

const (
	// InstructionReset stops any in-flight run and clears state.
	// InstructionReset 停止正在进行的运行并清除状态。
	InstructionReset InstructionKind = "Reset"

	// InstructionStartExecution starts a new server-side run.
	// InstructionStartExecution 启动新的服务端运行。
	InstructionStartExecution InstructionKind = "StartExecution"
)

// Valid reports whether the kind is known.
func (k InstructionKind) Valid() bool {
	return k == InstructionReset || k == InstructionStartExecution
}

// InstructionEnvelope is a one-shot command sent from client to server.
// InstructionEnvelope 是客户端发给服务端的一次性命令。
type InstructionEnvelope struct {
	ID         string          `json:"id"`
	Kind       InstructionKind `json:"kind"`
	Properties *Properties     `json:"properties"`
}

// NewInstruction builds an envelope with a fresh ID and a copy of props.
// NewInstruction 创建带新 ID 和属性副本的指令信封。
func NewInstruction(kind InstructionKind, props *Properties) *InstructionEnvelope {
	return &InstructionEnvelope{
		ID:         uuid.NewString(),
		Kind:       kind,
		Properties: props.Clone(),
	}
}

// WorkloadType returns the workload-type discriminator.
// WorkloadType 返回工作负载类型标识。
func (e *InstructionEnvelope) WorkloadType() string {
	if e == nil {
		return ""
	}
	return e.Properties.String(KeyType, "")
}

// Validate checks kind and discriminator.
// Validate 检查指令类型和工作负载类型标识。
func (e *InstructionEnvelope) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: empty envelope", ErrInvalidInstruction)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInstruction, e.Kind)
	}
	if e.WorkloadType() == "" {
		return fmt.Errorf("%w: missing %q property", ErrInvalidInstruction, KeyType)
	}
	return nil
}
