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

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/seatunnel/benchagent/internal/config"
	"github.com/seatunnel/benchagent/internal/logger"
)

// RedisStore Redis 状态存储实现
// 多个节点可共享同一个 Redis 实例，通过前缀区分
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 创建新的 Redis 存储实例
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "benchagent:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// NewRedisStoreFromConfig 根据配置创建 Redis 客户端并检查连通性
func NewRedisStoreFromConfig(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	// 注入 OpenTelemetry 追踪
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.WarnF(ctx, "[Store] 初始化 Redis 追踪失败: %v", err)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: 连接 Redis %s 失败: %v", ErrOperationFailed, cfg.Addr, err)
	}

	logger.InfoF(ctx, "[Store] 成功连接到 Redis: %s", cfg.Addr)
	return NewRedisStore(client, cfg.Prefix), nil
}

// buildKey 构建带前缀的 key
func (r *RedisStore) buildKey(key string) string {
	return r.prefix + key
}

// Get 从 Redis 中获取指定 key 的文档
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrOperationFailed, key, err)
	}
	return data, nil
}

// Create 使用 SETNX 原子地创建文档
func (r *RedisStore) Create(ctx context.Context, key string, value []byte) error {
	ok, err := r.client.SetNX(ctx, r.buildKey(key), value, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrOperationFailed, key, err)
	}
	if !ok {
		return ErrStateExists
	}
	return nil
}

// Update 使用 SET XX 原子地覆盖已有文档
func (r *RedisStore) Update(ctx context.Context, key string, value []byte) error {
	ok, err := r.client.SetXX(ctx, r.buildKey(key), value, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", ErrOperationFailed, key, err)
	}
	if !ok {
		return ErrStateNotFound
	}
	return nil
}

// Delete 从 Redis 中删除指定 key
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.buildKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrOperationFailed, key, err)
	}
	return nil
}

// Ping 检查 Redis 连通性
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrOperationFailed, err)
	}
	return nil
}

// Close 关闭 Redis 客户端
func (r *RedisStore) Close() error {
	return r.client.Close()
}
