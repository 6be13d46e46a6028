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

package workload

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/seatunnel/benchagent/internal/logger"
)

// NetworkAccess opens inbound ports for server-side tools
// NetworkAccess 为服务端工具开放入站端口
type NetworkAccess interface {
	AllowInbound(ctx context.Context, protocol string, port int) error
}

// NoopNetworkAccess leaves the host firewall untouched
type NoopNetworkAccess struct{}

func (NoopNetworkAccess) AllowInbound(ctx context.Context, protocol string, port int) error {
	return nil
}

// IPTablesNetworkAccess adds ACCEPT rules with iptables
// IPTablesNetworkAccess 使用 iptables 添加 ACCEPT 规则
type IPTablesNetworkAccess struct {
	Command string
	run     func(ctx context.Context, name string, args ...string) error
}

// NewIPTablesNetworkAccess creates an iptables-backed NetworkAccess
// NewIPTablesNetworkAccess 创建基于 iptables 的 NetworkAccess
func NewIPTablesNetworkAccess(command string) *IPTablesNetworkAccess {
	if command == "" {
		command = "iptables"
	}
	return &IPTablesNetworkAccess{Command: command, run: runCommand}
}

// AllowInbound adds the rule unless an identical one already exists
// AllowInbound 在不存在相同规则时添加规则
func (n *IPTablesNetworkAccess) AllowInbound(ctx context.Context, protocol string, port int) error {
	if port <= 0 {
		return nil
	}
	protocol = strings.ToLower(protocol)
	if protocol != "udp" {
		protocol = "tcp"
	}
	rule := []string{"INPUT", "-p", protocol, "--dport", strconv.Itoa(port), "-j", "ACCEPT"}

	if err := n.run(ctx, n.Command, append([]string{"-C"}, rule...)...); err == nil {
		return nil
	}
	if err := n.run(ctx, n.Command, append([]string{"-A"}, rule...)...); err != nil {
		return fmt.Errorf("allow inbound %s/%d: %w", protocol, port, err)
	}
	logger.InfoF(ctx, "[Firewall] allowed inbound %s/%d", protocol, port)
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
