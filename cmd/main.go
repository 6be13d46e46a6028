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

// Package main is the entry point of benchagent.
// main 包是 benchagent 的入口点。
//
// benchagent runs on every machine of a benchmark environment:
// benchagent 运行在基准测试环境的每台机器上：
// - serve: act as a server node and execute instructions from clients / 作为服务端节点执行客户端指令
// - run: act as a client node and drive benchmark iterations / 作为客户端节点驱动基准测试迭代
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seatunnel/benchagent/internal/config"
	"github.com/seatunnel/benchagent/internal/logger"
	"github.com/seatunnel/benchagent/internal/otel_trace"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// configFile is the path to the configuration file
// configFile 是配置文件的路径
var configFile string

// rootCmd is the base command
// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "benchagent",
	Short: "Benchmark workload agent / 基准测试工作负载代理",
	Long: `benchagent coordinates benchmark tools between client and server machines.
benchagent 在客户端与服务端机器之间协调基准测试工具。`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a server node / 作为服务端节点运行",
	RunE:  runServe,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured workload as a client / 以客户端身份运行所配置的工作负载",
	RunE:  runClient,
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "benchagent\n")
		fmt.Fprintf(out, "  Version:    %s\n", Version)
		fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "  Go Version: %s\n", runtime.Version())
		fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers / 配置工具",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration / 打印生效的配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := cfg.ToYAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: "+config.DefaultConfigPath+")")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(serveCmd, runCmd, versionCmd, configCmd)
}

// loadConfig loads and validates the configuration
// loadConfig 加载并验证配置
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// bootstrap loads config and initializes logging and tracing
// bootstrap 加载配置并初始化日志与链路追踪
func bootstrap(ctx context.Context) (*config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	otel_trace.Init(ctx, cfg.Telemetry)
	logger.InfoF(ctx, "[Main] Loaded %s", cfg)

	cleanup := func() {
		otel_trace.Shutdown(context.Background())
		logger.Sync()
	}
	return cfg, cleanup, nil
}

// runServe starts the node and waits for a shutdown signal
// runServe 启动节点并等待关闭信号
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	agent := NewAgent(cfg)
	defer agent.Shutdown()
	if err := agent.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.InfoF(context.Background(), "[Main] Received shutdown signal / 收到关闭信号")
	case <-agent.ctx.Done():
	}
	return nil
}

// runClient starts the node, runs the configured iterations and exits
// runClient 启动节点，运行所配置的迭代后退出
func runClient(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	agent := NewAgent(cfg)
	defer agent.Shutdown()
	if err := agent.Start(); err != nil {
		return err
	}
	return agent.RunIterations(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
