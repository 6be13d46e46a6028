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
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/seatunnel/benchagent/internal/logger"
)

// HealthServer serves grpc.health.v1 with a status that follows Readiness.
// HealthServer 提供 grpc.health.v1 服务，其状态跟随 Readiness。
type HealthServer struct {
	serviceName string
	grpcServer  *grpc.Server
	health      *health.Server
}

// NewHealthServer creates the server and binds it to readiness.
// NewHealthServer 创建服务器并绑定到 readiness。
//
// Both the overall status ("") and serviceName are updated.
// 整体状态（""）与 serviceName 的状态都会被更新。
func NewHealthServer(serviceName string, readiness *Readiness) *HealthServer {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	h := &HealthServer{
		serviceName: serviceName,
		health:      health.NewServer(),
	}
	h.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 15 * time.Minute,
			Time:              5 * time.Minute,
			Timeout:           20 * time.Second,
		}),
		grpc.ChainUnaryInterceptor(
			loggingUnaryInterceptor,
			recoveryUnaryInterceptor,
		),
	)
	healthpb.RegisterHealthServer(h.grpcServer, h.health)

	readiness.OnChange(h.setServing)
	return h
}

func (h *HealthServer) setServing(ready bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(h.serviceName, st)
}

// Serve serves on lis until Stop. It blocks.
// Serve 在 lis 上提供服务直到 Stop，调用会阻塞。
func (h *HealthServer) Serve(lis net.Listener) error {
	return h.grpcServer.Serve(lis)
}

// Start listens on addr and serves in the background.
// Start 监听 addr 并在后台提供服务。
func (h *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	go func() {
		if err := h.grpcServer.Serve(lis); err != nil {
			logger.ErrorF(context.Background(), "[Health] gRPC server error: %v", err)
		}
	}()
	logger.InfoF(context.Background(), "[Health] gRPC health server listening on %s", lis.Addr())
	return nil
}

// Stop marks every service NOT_SERVING and stops gracefully.
// Stop 将所有服务标记为 NOT_SERVING 并优雅停止。
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpcServer.GracefulStop()
}

// loggingUnaryInterceptor logs unary RPC calls.
// loggingUnaryInterceptor 记录一元 RPC 调用。
func loggingUnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	peerAddr := "unknown"
	if p, ok := peer.FromContext(ctx); ok {
		peerAddr = p.Addr.String()
	}

	resp, err := handler(ctx, req)

	if err != nil {
		logger.WarnF(ctx, "[Health] %s from %s failed after %s: %v", info.FullMethod, peerAddr, time.Since(start), err)
	} else {
		logger.DebugF(ctx, "[Health] %s from %s completed in %s", info.FullMethod, peerAddr, time.Since(start))
	}
	return resp, err
}

// recoveryUnaryInterceptor recovers from panics in unary handlers.
// recoveryUnaryInterceptor 从一元处理器的 panic 中恢复。
func recoveryUnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorF(ctx, "[Health] panic in %s: %v\n%s", info.FullMethod, r, debug.Stack())
			err = status.Errorf(codes.Internal, "internal error: %v", r)
		}
	}()
	return handler(ctx, req)
}
