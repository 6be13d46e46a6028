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

// Package logger 提供基于 zap 的全局日志记录器
// 日志会按配置轮转写入文件，并通过 otelzap 关联当前 trace
package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/seatunnel/benchagent/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	global *otelzap.Logger
)

// Init 根据配置初始化全局日志记录器
func Init(cfg config.LogConfig) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var cores []zapcore.Core
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("[Logger] 创建日志目录失败: %w", err)
		}
		writer := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(writer), level))
	}
	if cfg.File == "" || cfg.Console {
		consoleCfg := encoderCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level))
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
	set(otelzap.New(base, otelzap.WithMinLevel(level), otelzap.WithTraceIDField(true)))
	return nil
}

// SetLogger 替换全局日志记录器，主要用于测试
func SetLogger(l *zap.Logger) {
	set(otelzap.New(l))
}

func set(l *otelzap.Logger) {
	mu.Lock()
	old := global
	global = l
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
}

// L 返回全局日志记录器，未初始化时返回控制台记录器
func L() *otelzap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stderr), zapcore.InfoLevel)
		global = otelzap.New(zap.New(core))
	}
	return global
}

// Sync 刷新缓冲的日志
func Sync() {
	_ = L().Sync()
}

// DebugF 记录调试日志
func DebugF(ctx context.Context, format string, args ...any) {
	L().Ctx(ctx).Debug(fmt.Sprintf(format, args...))
}

// InfoF 记录信息日志
func InfoF(ctx context.Context, format string, args ...any) {
	L().Ctx(ctx).Info(fmt.Sprintf(format, args...))
}

// WarnF 记录警告日志
func WarnF(ctx context.Context, format string, args ...any) {
	L().Ctx(ctx).Warn(fmt.Sprintf(format, args...))
}

// ErrorF 记录错误日志
func ErrorF(ctx context.Context, format string, args ...any) {
	L().Ctx(ctx).Error(fmt.Sprintf(format, args...))
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("[Logger] 无效的日志级别: %s", level)
	}
}
