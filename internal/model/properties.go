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

// Package model defines the data exchanged between benchmark nodes.
// model 包定义基准测试节点之间交换的数据结构。
//
// This package provides:
// 此包提供：
// - Environment layout and client instances / 环境布局与客户端实例
// - Instruction envelopes sent from client to server / 客户端发送给服务端的指令信封
// - Workload state documents persisted in the state store / 持久化在状态存储中的工作负载状态文档
// - An ordered property bag shared by all of the above / 上述结构共享的有序属性包
package model

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Standard property keys understood by every workload.
// 所有工作负载都能识别的标准属性键。
const (
	// KeyType is the workload-type discriminator / 工作负载类型标识
	KeyType        = "type"
	KeyScenario    = "scenario"
	KeyPort        = "port"
	KeyWarmup      = "warmup"
	KeyDuration    = "duration"
	KeyProtocol    = "protocol"
	KeyResultsFile = "results_file"
	KeyServerIP    = "server_ip"
	KeyServerIPs   = "server_ips"
	KeyClientIP    = "client_ip"
)

// Properties is an ordered string-to-string parameter bag.
// Properties 是有序的字符串参数包。
//
// Insertion order is preserved through JSON encoding so that instruction
// envelopes and state documents render the same way on every node.
// 插入顺序在 JSON 编码中保持不变，保证各节点渲染一致。
type Properties struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewProperties creates a property bag from key/value pairs.
// NewProperties 根据键值对创建属性包。
// A trailing key without a value is ignored.
// 末尾缺少值的键会被忽略。
func NewProperties(kv ...string) *Properties {
	p := &Properties{m: orderedmap.New[string, string]()}
	for i := 0; i+1 < len(kv); i += 2 {
		p.m.Set(kv[i], kv[i+1])
	}
	return p
}

// PropertiesFromMap creates a property bag from a map, sorted by key.
// PropertiesFromMap 从 map 创建属性包，按键排序。
func PropertiesFromMap(values map[string]string) *Properties {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := NewProperties()
	for _, k := range keys {
		p.m.Set(k, values[k])
	}
	return p
}

func (p *Properties) ensure() {
	if p.m == nil {
		p.m = orderedmap.New[string, string]()
	}
}

// Set stores a value and returns the bag for chaining.
// Set 设置值并返回属性包以便链式调用。
func (p *Properties) Set(key, value string) *Properties {
	p.ensure()
	p.m.Set(key, value)
	return p
}

// Get returns the raw value of a key.
// Get 返回键的原始值。
func (p *Properties) Get(key string) (string, bool) {
	if p == nil || p.m == nil {
		return "", false
	}
	return p.m.Get(key)
}

// Delete removes a key.
// Delete 删除键。
func (p *Properties) Delete(key string) {
	if p == nil || p.m == nil {
		return
	}
	p.m.Delete(key)
}

// Len returns the number of entries.
// Len 返回条目数量。
func (p *Properties) Len() int {
	if p == nil || p.m == nil {
		return 0
	}
	return p.m.Len()
}

// Keys returns the keys in insertion order.
// Keys 按插入顺序返回所有键。
func (p *Properties) Keys() []string {
	if p == nil || p.m == nil {
		return nil
	}
	keys := make([]string, 0, p.m.Len())
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Map returns a plain map copy of the bag.
// Map 返回属性包的普通 map 副本。
func (p *Properties) Map() map[string]string {
	out := make(map[string]string, p.Len())
	if p == nil || p.m == nil {
		return out
	}
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

// Clone returns a deep copy that keeps the key order.
// Clone 返回保持键顺序的深拷贝。
func (p *Properties) Clone() *Properties {
	c := NewProperties()
	if p == nil || p.m == nil {
		return c
	}
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		c.m.Set(pair.Key, pair.Value)
	}
	return c
}

// Merge copies every entry of other into p, overwriting existing keys.
// Merge 将 other 的所有条目复制到 p，覆盖已有键。
func (p *Properties) Merge(other *Properties) *Properties {
	p.ensure()
	if other == nil || other.m == nil {
		return p
	}
	for pair := other.m.Oldest(); pair != nil; pair = pair.Next() {
		p.m.Set(pair.Key, pair.Value)
	}
	return p
}

// String returns a trimmed string value or the default.
// String 返回去除空白的字符串值，不存在时返回默认值。
func (p *Properties) String(key, defaultValue string) string {
	if v, ok := p.Get(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

// Int returns an integer value or the default when absent or malformed.
// Int 返回整数值，缺失或格式错误时返回默认值。
func (p *Properties) Int(key string, defaultValue int) int {
	v, ok := p.Get(key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultValue
	}
	return i
}

// Bool returns a boolean value or the default.
// Bool 返回布尔值或默认值。
func (p *Properties) Bool(key string, defaultValue bool) bool {
	v, ok := p.Get(key)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return defaultValue
	}
	return b
}

// Duration returns a duration value or the default.
// Duration 返回时长值或默认值。
//
// Accepted forms: Go durations ("90s", "1m30s"), plain seconds ("90")
// and clock notation ("00:01:30").
// 支持格式：Go 时长、纯秒数以及时钟格式。
func (p *Properties) Duration(key string, defaultValue time.Duration) time.Duration {
	v, ok := p.Get(key)
	if !ok {
		return defaultValue
	}
	d, err := ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// ParseDuration parses the duration forms accepted by Properties.Duration.
// ParseDuration 解析 Properties.Duration 支持的时长格式。
func ParseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	if strings.Count(s, ":") == 2 {
		parts := strings.Split(s, ":")
		var total time.Duration
		units := []time.Duration{time.Hour, time.Minute, time.Second}
		for i, part := range parts {
			n, err := strconv.Atoi(part)
			if err != nil || n < 0 {
				return 0, &time.ParseError{Layout: "hh:mm:ss", Value: raw}
			}
			total += time.Duration(n) * units[i]
		}
		return total, nil
	}
	return time.ParseDuration(s)
}

// MarshalJSON encodes the bag as a JSON object in insertion order.
// MarshalJSON 按插入顺序将属性包编码为 JSON 对象。
func (p *Properties) MarshalJSON() ([]byte, error) {
	if p == nil || p.m == nil {
		return []byte("{}"), nil
	}
	return p.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object, keeping the document order.
// UnmarshalJSON 解码 JSON 对象并保持文档中的顺序。
func (p *Properties) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, string]()
	if string(data) != "null" {
		if err := json.Unmarshal(data, m); err != nil {
			return err
		}
	}
	p.m = m
	return nil
}
