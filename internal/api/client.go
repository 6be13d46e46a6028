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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/seatunnel/benchagent/internal/history"
	"github.com/seatunnel/benchagent/internal/logger"
	"github.com/seatunnel/benchagent/internal/model"
	"github.com/seatunnel/benchagent/internal/store"
)

// ErrNotReady is returned by Readiness while the remote node is offline.
// ErrNotReady 表示远端节点尚未就绪。
var ErrNotReady = errors.New("api: remote node is not ready")

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// Client talks to a remote node's state API.
// Client 访问远端节点的状态 API。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL, e.g. http://10.0.0.2:4500.
// NewClient 为 baseURL 创建客户端，例如 http://10.0.0.2:4500。
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the remote base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Heartbeat checks that the remote API and its store respond.
// Heartbeat 检查远端 API 及其存储是否响应。
func (c *Client) Heartbeat(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/heartbeat", nil)
	return err
}

// Readiness returns nil once the remote node reports online.
// Readiness 在远端节点上线后返回 nil。
func (c *Client) Readiness(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/readiness", nil)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: %s", ErrNotReady, c.baseURL)
	}
	return err
}

// GetState reads the workload state under key.
// GetState 读取 key 下的工作负载状态。
//
// An absent document yields store.ErrStateNotFound.
func (c *Client) GetState(ctx context.Context, key string) (*model.WorkloadState, error) {
	body, err := c.do(ctx, http.MethodGet, statePath(key), nil)
	if err != nil {
		return nil, err
	}
	var state model.WorkloadState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", store.ErrOperationFailed, key, err)
	}
	return &state, nil
}

// CreateState stores state under key; an existing document yields store.ErrStateExists.
// CreateState 在 key 下保存状态，已存在时返回 store.ErrStateExists。
func (c *Client) CreateState(ctx context.Context, key string, state *model.WorkloadState) error {
	return c.sendState(ctx, http.MethodPost, key, state)
}

// UpdateState overwrites the state under key.
// UpdateState 覆盖 key 下的状态。
func (c *Client) UpdateState(ctx context.Context, key string, state *model.WorkloadState) error {
	return c.sendState(ctx, http.MethodPut, key, state)
}

// DeleteState removes key; a missing key is not an error.
// DeleteState 删除 key，key 不存在不视为错误。
func (c *Client) DeleteState(ctx context.Context, key string) error {
	_, err := c.do(ctx, http.MethodDelete, statePath(key), nil)
	return err
}

// SendInstruction delivers an envelope to the remote inbox.
// SendInstruction 将指令信封投递到远端收件箱。
//
// A delivered envelope that the remote side failed to handle is logged and
// not returned as an error. Callers observe the outcome through state.
// 已送达但远端处理失败的指令只记录日志，不作为错误返回，调用方通过状态观察结果。
func (c *Client) SendInstruction(ctx context.Context, envelope *model.InstructionEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("%w: encode instruction: %v", store.ErrOperationFailed, err)
	}
	body, err := c.do(ctx, http.MethodPost, "/api/instructions", payload)
	if err != nil {
		return err
	}

	var resp struct {
		Data InstructionResult `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: decode instruction result: %v", store.ErrOperationFailed, err)
	}
	if !resp.Data.Handled {
		logger.WarnF(ctx, "[API] %s did not handle instruction %s (%s): %s",
			c.baseURL, envelope.ID, envelope.Kind, resp.Data.ErrorMsg)
	}
	return nil
}

// History lists the remote node's recent iterations.
// History 列出远端节点最近的迭代。
func (c *Client) History(ctx context.Context, limit int) ([]history.IterationRecord, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []history.IterationRecord `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode history: %v", store.ErrOperationFailed, err)
	}
	return resp.Data, nil
}

func (c *Client) sendState(ctx context.Context, method, key string, state *model.WorkloadState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", store.ErrOperationFailed, key, err)
	}
	_, err = c.do(ctx, method, statePath(key), payload)
	return err
}

// do performs one request and maps HTTP failures onto store errors.
// do 执行一次请求，并将 HTTP 错误映射为存储错误。
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", store.ErrOperationFailed, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", store.ErrOperationFailed, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %v", store.ErrOperationFailed, method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	se := &statusError{code: resp.StatusCode, method: method, path: path, msg: errorMessage(body)}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %w", store.ErrStateNotFound, se)
	case http.StatusConflict:
		return nil, fmt.Errorf("%w: %w", store.ErrStateExists, se)
	default:
		return nil, fmt.Errorf("%w: %w", store.ErrOperationFailed, se)
	}
}

type statusError struct {
	code   int
	method string
	path   string
	msg    string
}

func (e *statusError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("%s %s returned %d", e.method, e.path, e.code)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.method, e.path, e.code, e.msg)
}

func errorMessage(body []byte) string {
	var resp Response
	if err := json.Unmarshal(body, &resp); err == nil && resp.ErrorMsg != "" {
		return resp.ErrorMsg
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

func statePath(key string) string {
	return "/api/state/" + url.PathEscape(key)
}
