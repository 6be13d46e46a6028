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

package model

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrLayoutInvalid is returned when the environment layout cannot serve a request.
// ErrLayoutInvalid 在环境布局无法满足请求时返回。
var ErrLayoutInvalid = errors.New("environment layout invalid")

// Role is the part a machine plays in a benchmark.
// Role 是机器在基准测试中承担的角色。
type Role string

const (
	RoleClient Role = "Client"
	RoleServer Role = "Server"
)

// Equal compares roles case-insensitively.
// Equal 不区分大小写地比较角色。
func (r Role) Equal(other Role) bool {
	return strings.EqualFold(string(r), string(other))
}

// ClientInstance describes one machine of the environment.
// ClientInstance 描述环境中的一台机器。
type ClientInstance struct {
	Name      string `json:"name" yaml:"name" mapstructure:"name"`
	IPAddress string `json:"ip_address" yaml:"ip_address" mapstructure:"ip_address"`
	Role      Role   `json:"role" yaml:"role" mapstructure:"role"`
}

// EnvironmentLayout lists every machine taking part in a benchmark.
// EnvironmentLayout 列出参与基准测试的所有机器。
type EnvironmentLayout struct {
	Instances []ClientInstance `json:"instances" yaml:"instances"`
}

// InstancesByRole returns the instances holding the given role.
// InstancesByRole 返回具有指定角色的实例。
func (l *EnvironmentLayout) InstancesByRole(role Role) []ClientInstance {
	if l == nil {
		return nil
	}
	var out []ClientInstance
	for _, inst := range l.Instances {
		if inst.Role.Equal(role) {
			out = append(out, inst)
		}
	}
	return out
}

// Instance looks an instance up by name.
// Instance 按名称查找实例。
func (l *EnvironmentLayout) Instance(name string) (ClientInstance, bool) {
	if l == nil {
		return ClientInstance{}, false
	}
	for _, inst := range l.Instances {
		if strings.EqualFold(inst.Name, name) {
			return inst, true
		}
	}
	return ClientInstance{}, false
}

// Validate checks that names are unique and addresses parse.
// Validate 检查名称唯一且地址可解析。
func (l *EnvironmentLayout) Validate() error {
	if l == nil || len(l.Instances) == 0 {
		return fmt.Errorf("%w: no instances defined", ErrLayoutInvalid)
	}
	seen := make(map[string]struct{}, len(l.Instances))
	for i, inst := range l.Instances {
		if inst.Name == "" {
			return fmt.Errorf("%w: instance %d has no name", ErrLayoutInvalid, i)
		}
		key := strings.ToLower(inst.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate instance name %q", ErrLayoutInvalid, inst.Name)
		}
		seen[key] = struct{}{}
		if inst.Role == "" {
			return fmt.Errorf("%w: instance %q has no role", ErrLayoutInvalid, inst.Name)
		}
		if net.ParseIP(inst.IPAddress) == nil && !isHostname(inst.IPAddress) {
			return fmt.Errorf("%w: instance %q has invalid address %q", ErrLayoutInvalid, inst.Name, inst.IPAddress)
		}
	}
	return nil
}

func isHostname(s string) bool {
	if s == "" || len(s) > 253 {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for _, c := range label {
			if !(c == '-' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
				return false
			}
		}
	}
	return true
}
