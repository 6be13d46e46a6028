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

// Package api exposes the state store and instruction inbox over HTTP,
// and a gRPC health service that follows application readiness.
// api 包通过 HTTP 暴露状态存储与指令收件箱，并提供跟随应用就绪状态的 gRPC 健康服务。
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/seatunnel/benchagent/internal/history"
	"github.com/seatunnel/benchagent/internal/logger"
	"github.com/seatunnel/benchagent/internal/model"
	"github.com/seatunnel/benchagent/internal/store"
)

// DefaultServiceName is used for tracing when Options.ServiceName is empty.
const DefaultServiceName = "benchagent"

// ErrServerAlreadyRunning is returned by Start when called twice.
// ErrServerAlreadyRunning 表示服务器已在运行。
var ErrServerAlreadyRunning = errors.New("api: server is already running")

// InstructionHandler consumes instruction envelopes delivered to this node.
// InstructionHandler 处理投递到本节点的指令信封。
type InstructionHandler interface {
	HandleInstruction(ctx context.Context, env *model.InstructionEnvelope) error
}

// HistoryLister lists recorded iterations.
// HistoryLister 列出已记录的迭代。
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.IterationRecord, error)
}

// Options configures the HTTP server.
// Options 配置 HTTP 服务器。
type Options struct {
	// ServiceName names the otelgin spans.
	// ServiceName 用于 otelgin 链路名称。
	ServiceName string

	// Store backs the /state routes and the heartbeat.
	// Store 支撑 /state 路由和心跳。
	Store store.Backend

	// Inbox receives instructions. Nil means instructions are refused.
	// Inbox 接收指令，为 nil 时拒绝指令。
	Inbox InstructionHandler

	// History backs /history. Nil disables the route.
	History HistoryLister

	// Readiness backs /readiness.
	Readiness *Readiness

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP state API.
// Server 是 HTTP 状态 API 服务器。
type Server struct {
	opts   Options
	engine *gin.Engine

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewServer creates the server and registers its routes.
// NewServer 创建服务器并注册路由。
func NewServer(opts Options) *Server {
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultServiceName
	}
	if opts.Readiness == nil {
		opts.Readiness = NewReadiness()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{opts: opts}
	s.engine = s.newEngine()
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on addr and serves in the background.
// Start 监听 addr 并在后台提供服务。
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return ErrServerAlreadyRunning
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = lis
	s.srv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := s.srv
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorF(context.Background(), "[API] HTTP server error: %v", err)
		}
	}()
	logger.InfoF(context.Background(), "[API] HTTP server listening on %s", lis.Addr())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully stops the server.
// Shutdown 优雅地停止服务器。
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// newEngine builds the gin engine with middleware and routes.
// newEngine 构建带中间件与路由的 gin 引擎。
func (s *Server) newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(s.opts.ServiceName))
	r.Use(loggerMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	h := &handler{opts: s.opts}
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/heartbeat", h.Heartbeat)
		apiGroup.GET("/readiness", h.Readiness)

		stateGroup := apiGroup.Group("/state")
		{
			stateGroup.GET("/:key", h.GetState)
			stateGroup.POST("/:key", h.CreateState)
			stateGroup.PUT("/:key", h.UpdateState)
			stateGroup.DELETE("/:key", h.DeleteState)
		}

		apiGroup.POST("/instructions", h.SendInstruction)
		apiGroup.GET("/history", h.ListHistory)
	}
	return r
}

// loggerMiddleware logs each request at a level chosen by its status.
// loggerMiddleware 按响应状态码选择级别记录请求日志。
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		status := c.Writer.Status()
		latency := time.Since(start)
		switch {
		case status >= http.StatusInternalServerError:
			logger.ErrorF(ctx, "[API] %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, latency)
		case status >= http.StatusBadRequest:
			logger.WarnF(ctx, "[API] %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, latency)
		default:
			logger.DebugF(ctx, "[API] %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, latency)
		}
	}
}
