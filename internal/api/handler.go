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
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seatunnel/benchagent/internal/history"
	"github.com/seatunnel/benchagent/internal/logger"
	"github.com/seatunnel/benchagent/internal/model"
	"github.com/seatunnel/benchagent/internal/store"
)

// MaxBodyBytes caps the size of state documents and instruction envelopes.
// MaxBodyBytes 限制状态文档与指令信封的大小。
const MaxBodyBytes = 1 << 20

// Response is the common JSON envelope of the API.
// Response 是 API 的通用 JSON 响应体。
type Response struct {
	ErrorMsg string      `json:"error_msg"`
	Data     interface{} `json:"data"`
}

// InstructionResult reports whether the receiver handled an instruction.
// InstructionResult 表示接收方是否成功处理了指令。
type InstructionResult struct {
	ID       string `json:"id"`
	Handled  bool   `json:"handled"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// HistoryQuery binds /history query parameters.
type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

type handler struct {
	opts Options
}

// Heartbeat reports API liveness together with store reachability.
// Heartbeat 返回 API 存活状态以及存储可达性。
func (h *handler) Heartbeat(c *gin.Context) {
	if h.opts.Store != nil {
		if err := h.opts.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, Response{ErrorMsg: err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, Response{Data: gin.H{"alive": true}})
}

// Readiness returns 200 once the application is online.
// Readiness 应用上线后返回 200。
func (h *handler) Readiness(c *gin.Context) {
	if !h.opts.Readiness.Ready() {
		c.JSON(http.StatusServiceUnavailable, Response{ErrorMsg: "not ready", Data: gin.H{"ready": false}})
		return
	}
	c.JSON(http.StatusOK, Response{Data: gin.H{"ready": true}})
}

// GetState returns the raw document stored under :key.
// GetState 返回 :key 下保存的原始文档。
func (h *handler) GetState(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	data, err := h.opts.Store.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// CreateState stores the request body under :key if absent.
// CreateState 在 :key 不存在时保存请求体。
func (h *handler) CreateState(c *gin.Context) {
	body, ok := h.readDocument(c)
	if !ok {
		return
	}
	if err := h.opts.Store.Create(c.Request.Context(), c.Param("key"), body); err != nil {
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// UpdateState overwrites the document stored under :key.
// UpdateState 覆盖 :key 下已有的文档。
func (h *handler) UpdateState(c *gin.Context) {
	body, ok := h.readDocument(c)
	if !ok {
		return
	}
	if err := h.opts.Store.Update(c.Request.Context(), c.Param("key"), body); err != nil {
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// DeleteState removes :key. Deleting a missing key succeeds.
// DeleteState 删除 :key，key 不存在时同样成功。
func (h *handler) DeleteState(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	if err := h.opts.Store.Delete(c.Request.Context(), c.Param("key")); err != nil {
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendInstruction dispatches an envelope to the inbox.
// SendInstruction 将指令信封分发到收件箱。
//
// Handler failures are logged here and reported as handled=false; they are
// not transport errors.
// 处理失败只在此处记录日志并以 handled=false 返回，不作为传输错误。
func (h *handler) SendInstruction(c *gin.Context) {
	var env model.InstructionEnvelope
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(bodyErrorStatus(err), Response{ErrorMsg: err.Error()})
		return
	}
	if err := env.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, Response{ErrorMsg: err.Error()})
		return
	}
	if h.opts.Inbox == nil {
		c.JSON(http.StatusServiceUnavailable, Response{ErrorMsg: "instruction inbox is not registered"})
		return
	}

	ctx := c.Request.Context()
	result := InstructionResult{ID: env.ID, Handled: true}
	if err := h.opts.Inbox.HandleInstruction(ctx, &env); err != nil {
		logger.ErrorF(ctx, "[API] Instruction %s (%s) for %s failed: %v", env.ID, env.Kind, env.WorkloadType(), err)
		result.Handled = false
		result.ErrorMsg = err.Error()
	}
	c.JSON(http.StatusOK, Response{Data: result})
}

// ListHistory returns the most recent iterations.
// ListHistory 返回最近的迭代记录。
func (h *handler) ListHistory(c *gin.Context) {
	if h.opts.History == nil {
		c.JSON(http.StatusNotFound, Response{ErrorMsg: "history is disabled"})
		return
	}
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, Response{ErrorMsg: err.Error()})
		return
	}
	if q.Limit == 0 {
		q.Limit = history.DefaultListLimit
	}
	records, err := h.opts.History.List(c.Request.Context(), q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{ErrorMsg: err.Error()})
		return
	}
	if records == nil {
		records = []history.IterationRecord{}
	}
	c.JSON(http.StatusOK, Response{Data: records})
}

func (h *handler) requireStore(c *gin.Context) bool {
	if h.opts.Store == nil {
		c.JSON(http.StatusServiceUnavailable, Response{ErrorMsg: "state store is not configured"})
		return false
	}
	return true
}

// readDocument reads the body and requires it to be a JSON document.
func (h *handler) readDocument(c *gin.Context) ([]byte, bool) {
	if !h.requireStore(c) {
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		c.JSON(bodyErrorStatus(err), Response{ErrorMsg: err.Error()})
		return nil, false
	}
	if len(body) == 0 || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, Response{ErrorMsg: "body must be a JSON document"})
		return nil, false
	}
	return body, true
}

// bodyErrorStatus 超出大小限制返回 413，其余读取错误返回 400
func bodyErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (h *handler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrStateNotFound):
		c.JSON(http.StatusNotFound, Response{ErrorMsg: err.Error()})
	case errors.Is(err, store.ErrStateExists):
		c.JSON(http.StatusConflict, Response{ErrorMsg: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, Response{ErrorMsg: err.Error()})
	}
}
