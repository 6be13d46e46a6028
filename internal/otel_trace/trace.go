/*
 * MIT License
 *
 * Copyright (c) 2025 linux.do
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package otel_trace

import (
	"context"
	"sync"
	"time"

	"github.com/seatunnel/benchagent/internal/config"
	"github.com/seatunnel/benchagent/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/seatunnel/benchagent"

var (
	mu            sync.RWMutex
	tracer        trace.Tracer
	shutdownFuncs []func(context.Context) error
	enabled       bool
)

// Init initializes OpenTelemetry tracing based on configuration.
// Init 根据配置初始化 OpenTelemetry 追踪。
// Calling it again replaces the previous provider.
// 重复调用会替换之前的提供者。
func Init(ctx context.Context, cfg config.TelemetryConfig) {
	mu.Lock()
	defer mu.Unlock()

	otel.SetTextMapPropagator(newPropagator())

	if !cfg.Enabled {
		logger.InfoF(ctx, "[Trace] OpenTelemetry tracing is disabled / OpenTelemetry 追踪已禁用")
		tracer = noop.NewTracerProvider().Tracer("noop")
		enabled = false
		return
	}

	tracerProvider, err := newTracerProvider(ctx, cfg)
	if err != nil {
		logger.WarnF(ctx, "[Trace] Failed to init trace provider, using noop tracer: %v / 初始化追踪提供者失败，使用空操作追踪器", err)
		tracer = noop.NewTracerProvider().Tracer("noop")
		enabled = false
		return
	}

	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(instrumentationName)
	enabled = true
	logger.InfoF(ctx, "[Trace] OpenTelemetry tracing initialized, exporting to %s / OpenTelemetry 追踪已初始化", cfg.Endpoint)
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	), nil
}

// IsEnabled returns whether tracing is enabled.
// IsEnabled 返回追踪是否已启用。
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Shutdown flushes and stops every registered provider.
// Shutdown 刷新并停止所有已注册的提供者。
func Shutdown(ctx context.Context) {
	mu.Lock()
	funcs := shutdownFuncs
	shutdownFuncs = nil
	mu.Unlock()

	for _, fn := range funcs {
		if err := fn(ctx); err != nil {
			logger.WarnF(ctx, "[Trace] shutdown failed: %v", err)
		}
	}
}

// Start opens a span, falling back to a noop span before Init.
// Start 开启一个 span，未初始化时返回空操作 span。
func Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	mu.RLock()
	t := tracer
	mu.RUnlock()
	if t == nil {
		return ctx, noop.Span{}
	}
	return t.Start(ctx, name, opts...)
}
