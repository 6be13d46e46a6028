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
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/seatunnel/benchagent/internal/config"
	"github.com/seatunnel/benchagent/internal/model"
)

// Tool describes how one benchmark tool is launched on each side
// Tool 描述基准测试工具在两端的启动方式
type Tool struct {
	Name         string
	ProcessName  string
	SuccessCodes []int
	ResultsFile  string

	server commandTemplate
	client commandTemplate
}

type commandTemplate struct {
	command *template.Template
	args    []*template.Template
}

// NewTool compiles the command templates of a tool definition
// NewTool 编译工具定义中的命令模板
func NewTool(cfg config.ToolConfig) (*Tool, error) {
	t := &Tool{
		Name:         cfg.Name,
		ProcessName:  cfg.ProcessName,
		SuccessCodes: append([]int(nil), cfg.SuccessCodes...),
		ResultsFile:  cfg.ResultsFile,
	}
	var err error
	if t.server, err = compile(cfg.Name+".server", cfg.Server); err != nil {
		return nil, err
	}
	if t.client, err = compile(cfg.Name+".client", cfg.Client); err != nil {
		return nil, err
	}
	if t.ProcessName == "" && cfg.Server.Command != "" {
		t.ProcessName = filepath.Base(cfg.Server.Command)
	}
	return t, nil
}

func compile(name string, cfg config.CommandConfig) (commandTemplate, error) {
	var ct commandTemplate
	if cfg.Command == "" {
		return ct, nil
	}
	parse := func(suffix, text string) (*template.Template, error) {
		tpl, err := template.New(name + suffix).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("invalid template %s: %w", name+suffix, err)
		}
		return tpl, nil
	}

	var err error
	if ct.command, err = parse(".command", cfg.Command); err != nil {
		return ct, err
	}
	for i, arg := range cfg.Args {
		tpl, err := parse(fmt.Sprintf(".args[%d]", i), arg)
		if err != nil {
			return ct, err
		}
		ct.args = append(ct.args, tpl)
	}
	return ct, nil
}

// Command renders the command line for a role from the property bag
// Command 根据属性包渲染指定角色的命令行
func (t *Tool) Command(role model.Role, props *model.Properties) (string, []string, error) {
	ct := t.client
	if role.Equal(model.RoleServer) {
		ct = t.server
	}
	if ct.command == nil {
		return "", nil, fmt.Errorf("%w: tool %s has no %s command", ErrUnknownWorkload, t.Name, role)
	}

	data := props.Map()
	command, err := render(ct.command, data)
	if err != nil {
		return "", nil, err
	}
	args := make([]string, 0, len(ct.args))
	for _, tpl := range ct.args {
		arg, err := render(tpl, data)
		if err != nil {
			return "", nil, err
		}
		if arg != "" {
			args = append(args, arg)
		}
	}
	return command, args, nil
}

// ResultsPath returns the results artifact path, properties take precedence
// ResultsPath 返回结果文件路径，属性中的设置优先
func (t *Tool) ResultsPath(props *model.Properties) string {
	return props.String(model.KeyResultsFile, t.ResultsFile)
}

func render(tpl *template.Template, data map[string]string) (string, error) {
	var sb strings.Builder
	if err := tpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tpl.Name(), err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// ToolRegistry maps workload types to tools
// ToolRegistry 将工作负载类型映射到工具
type ToolRegistry struct {
	tools map[string]*Tool
}

// NewToolRegistry compiles every configured tool
// NewToolRegistry 编译所有配置的工具
func NewToolRegistry(cfgs []config.ToolConfig) (*ToolRegistry, error) {
	r := &ToolRegistry{tools: make(map[string]*Tool, len(cfgs))}
	for _, cfg := range cfgs {
		tool, err := NewTool(cfg)
		if err != nil {
			return nil, err
		}
		r.tools[strings.ToLower(cfg.Name)] = tool
	}
	return r, nil
}

// Lookup returns the tool registered for a workload type
// Lookup 返回工作负载类型对应的工具
func (r *ToolRegistry) Lookup(workloadType string) (*Tool, error) {
	if r != nil {
		if tool, ok := r.tools[strings.ToLower(strings.TrimSpace(workloadType))]; ok {
			return tool, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownWorkload, workloadType)
}
