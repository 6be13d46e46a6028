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

package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seatunnel/benchagent/internal/workload"
)

// 默认与最大的查询条数
const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// ErrRecordNotFound 迭代记录不存在
var ErrRecordNotFound = errors.New("history: record not found")

// IterationRecord 一次客户端迭代的持久化记录
type IterationRecord struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Scenario     string    `gorm:"size:128;index" json:"scenario"`
	WorkloadType string    `gorm:"size:64;index" json:"workload_type"`
	ServerRole   string    `gorm:"size:32" json:"server_role"`
	Servers      string    `gorm:"size:512" json:"servers"`
	Attempts     int       `json:"attempts"`
	Outcome      string    `gorm:"size:32;index" json:"outcome"`
	ExitCode     int       `json:"exit_code"`
	TimedOut     bool      `json:"timed_out"`
	ErrorMsg     string    `gorm:"type:text" json:"error_msg"`
	OutputTail   string    `gorm:"type:text" json:"output_tail"`
	StartedAt    time.Time `gorm:"index" json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName 指定表名
func (IterationRecord) TableName() string {
	return "iteration_records"
}

// Duration 返回迭代耗时
func (r *IterationRecord) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FromReport 将迭代报告转换为数据库记录
func FromReport(report *workload.IterationReport) *IterationRecord {
	id := report.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &IterationRecord{
		ID:           id,
		Scenario:     report.Scenario,
		WorkloadType: report.WorkloadType,
		ServerRole:   report.ServerRole,
		Servers:      strings.Join(report.Servers, ","),
		Attempts:     report.Attempts,
		Outcome:      report.Outcome,
		ExitCode:     report.ExitCode,
		TimedOut:     report.TimedOut,
		ErrorMsg:     report.Error,
		OutputTail:   report.OutputTail,
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
	}
}

// Repository 迭代历史数据访问
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建 Repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RecordIteration 保存一次迭代报告，实现 workload.IterationRecorder
func (r *Repository) RecordIteration(ctx context.Context, report *workload.IterationReport) error {
	return r.db.WithContext(ctx).Create(FromReport(report)).Error
}

// Get 按 ID 查询记录
func (r *Repository) Get(ctx context.Context, id string) (*IterationRecord, error) {
	var record IterationRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// List 按开始时间倒序返回最近的记录
func (r *Repository) List(ctx context.Context, limit int) ([]IterationRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	var records []IterationRecord
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// Close 关闭底层连接
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
