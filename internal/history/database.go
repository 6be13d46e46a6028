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

// Package history 保存客户端迭代历史
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/seatunnel/benchagent/internal/config"
	"github.com/seatunnel/benchagent/internal/logger"
)

// 数据库类型常量
const (
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypeMySQL    = "mysql"
	DatabaseTypePostgres = "postgres"
)

// Open 根据配置打开历史数据库并完成表迁移
// 支持 SQLite、MySQL、PostgreSQL 三种数据库类型，默认使用 SQLite
func Open(cfg config.HistoryConfig) (*gorm.DB, error) {
	ctx := context.Background()

	dbType := cfg.Type
	if dbType == "" {
		dbType = DatabaseTypeSQLite
	}

	var (
		dialector gorm.Dialector
		err       error
	)
	switch dbType {
	case DatabaseTypeSQLite:
		dialector, err = sqliteDialector(cfg.SQLitePath)
	case DatabaseTypeMySQL:
		dialector = mysqlDialector(cfg)
	case DatabaseTypePostgres:
		dialector = postgresDialector(cfg)
	default:
		return nil, fmt.Errorf("[History] 不支持的数据库类型: %s，支持的类型: sqlite, mysql, postgres", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("[History] 初始化 %s 驱动失败: %w", dbType, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("[History] 连接 %s 数据库失败: %w", dbType, err)
	}

	// 注入 OpenTelemetry 追踪
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		logger.WarnF(ctx, "[History] 初始化追踪插件失败: %v", err)
	}

	// 连接池仅对 MySQL 和 PostgreSQL 有效
	if dbType != DatabaseTypeSQLite {
		if err := configurePool(db, cfg); err != nil {
			return nil, fmt.Errorf("[History] 配置连接池失败: %w", err)
		}
	}

	if err := db.AutoMigrate(&IterationRecord{}); err != nil {
		return nil, fmt.Errorf("[History] 迁移表结构失败: %w", err)
	}

	logger.InfoF(ctx, "[History] 成功连接到 %s 数据库", dbType)
	return db, nil
}

func sqliteDialector(path string) (gorm.Dialector, error) {
	if path == "" {
		path = "./data/benchagent.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建 SQLite 目录失败: %w", err)
	}
	return sqlite.Open(path), nil
}

func mysqlDialector(cfg config.HistoryConfig) gorm.Dialector {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	return mysql.Open(dsn)
}

func postgresDialector(cfg config.HistoryConfig) gorm.Dialector {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
	return postgres.Open(dsn)
}

func configurePool(db *gorm.DB, cfg config.HistoryConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层数据库连接失败: %w", err)
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	return nil
}

// gormLogger 根据配置获取 GORM 日志级别，默认 warn
func gormLogger(level string) gormlogger.Interface {
	logLevel := gormlogger.Warn
	switch level {
	case "silent":
		logLevel = gormlogger.Silent
	case "error":
		logLevel = gormlogger.Error
	case "info":
		logLevel = gormlogger.Info
	}
	return gormlogger.Default.LogMode(logLevel)
}
