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

// Package store 提供按 key 存取 JSON 状态文档的存储后端
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seatunnel/benchagent/internal/config"
)

// 错误定义
var (
	ErrStateNotFound   = errors.New("store: state not found")
	ErrStateExists     = errors.New("store: state already exists")
	ErrOperationFailed = errors.New("store: operation failed")
)

// Backend 状态存储后端接口
// 所有值都是 JSON 文档，Create 与 Update 必须是原子的
type Backend interface {
	// Get 获取指定 key 的文档，不存在时返回 ErrStateNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Create 创建文档，已存在时返回 ErrStateExists
	Create(ctx context.Context, key string, value []byte) error

	// Update 覆盖已有文档，不存在时返回 ErrStateNotFound
	Update(ctx context.Context, key string, value []byte) error

	// Delete 删除文档，key 不存在时也返回 nil
	Delete(ctx context.Context, key string) error

	// Ping 检查后端是否可用
	Ping(ctx context.Context) error

	// Close 释放后端资源
	Close() error
}

// New 根据配置创建存储后端
func New(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch cfg.Type {
	case "", config.StoreTypeMemory:
		return NewMemoryStore(), nil
	case config.StoreTypeRedis:
		return NewRedisStoreFromConfig(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("不支持的存储类型: %s", cfg.Type)
	}
}

// GetState 读取并解码指定 key 的文档
func GetState[T any](ctx context.Context, b Backend, key string) (*T, error) {
	data, err := b.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrOperationFailed, key, err)
	}
	return &v, nil
}

// CreateState 编码并创建文档
func CreateState[T any](ctx context.Context, b Backend, key string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrOperationFailed, key, err)
	}
	return b.Create(ctx, key, data)
}

// UpdateState 编码并覆盖已有文档
func UpdateState[T any](ctx context.Context, b Backend, key string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrOperationFailed, key, err)
	}
	return b.Update(ctx, key, data)
}
