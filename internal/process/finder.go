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

package process

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// commLimit is the length Linux truncates process names to in ps output
// commLimit 是 Linux 在 ps 输出中截断进程名的长度
const commLimit = 15

// Finder looks up running processes by executable name
// Finder 按可执行文件名查找运行中的进程
type Finder struct {
	// list returns raw "pid name" lines, replaced in tests
	// list 返回原始的 "pid name" 行，测试中可替换
	list func(ctx context.Context) ([]byte, error)
}

// NewFinder creates a Finder backed by ps (tasklist on Windows)
// NewFinder 创建基于 ps（Windows 上为 tasklist）的 Finder
func NewFinder() *Finder {
	return &Finder{list: listProcesses}
}

// FindByName returns the PIDs of processes whose name matches name
// FindByName 返回名称匹配的进程 PID
func (f *Finder) FindByName(ctx context.Context, name string) ([]int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty process name")
	}

	output, err := f.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	self := os.Getpid()
	var pids []int
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil || pid == self {
			continue
		}
		if matchName(strings.Join(fields[1:], " "), name) {
			pids = append(pids, pid)
		}
	}
	return pids, scanner.Err()
}

func matchName(comm, name string) bool {
	comm = strings.TrimSuffix(filepath.Base(comm), ".exe")
	name = strings.TrimSuffix(filepath.Base(name), ".exe")
	if strings.EqualFold(comm, name) {
		return true
	}
	return len(name) > commLimit && len(comm) == commLimit && strings.EqualFold(comm, name[:commLimit])
}

func listProcesses(ctx context.Context) ([]byte, error) {
	if runtime.GOOS == "windows" {
		out, err := exec.CommandContext(ctx, "tasklist", "/FO", "CSV", "/NH").Output()
		if err != nil {
			return nil, err
		}
		return csvToPidName(out), nil
	}
	return exec.CommandContext(ctx, "ps", "-eo", "pid=,comm=").Output()
}

// csvToPidName turns tasklist CSV rows into "pid name" lines
// csvToPidName 将 tasklist 的 CSV 行转换为 "pid name" 行
func csvToPidName(out []byte) []byte {
	var buf bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		cols := strings.Split(scanner.Text(), "\",\"")
		if len(cols) < 2 {
			continue
		}
		fmt.Fprintf(&buf, "%s %s\n", strings.Trim(cols[1], "\""), strings.Trim(cols[0], "\""))
	}
	return buf.Bytes()
}
