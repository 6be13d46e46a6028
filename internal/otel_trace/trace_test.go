/*
 * MIT License
 *
 * Copyright (c) 2025 linux.do
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package otel_trace

import (
	"context"
	"testing"

	"github.com/seatunnel/benchagent/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestStartBeforeInit(t *testing.T) {
	ctx, span := Start(context.Background(), "test")
	defer span.End()
	assert.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())
}

func TestInitDisabledUsesNoop(t *testing.T) {
	Init(context.Background(), config.TelemetryConfig{Enabled: false})
	assert.False(t, IsEnabled())

	_, span := Start(context.Background(), "noop")
	span.End()
	assert.False(t, span.SpanContext().IsValid())

	Shutdown(context.Background())
}
