//go:build !windows

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
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(attempts int) *Supervisor {
	return NewSupervisor(Options{
		StartupAttempts: attempts,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      5 * time.Millisecond,
	})
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return len(strings.Split(strings.TrimSpace(string(data)), "\n"))
}

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	s := newTestSupervisor(1)
	h, err := s.Run(context.Background(), "/bin/sh", []string{"-c", "echo out; echo err 1>&2; exit 3"}, 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, 3, h.ExitCode)
	assert.False(t, h.TimedOut)
	assert.Contains(t, h.Output, "out")
	assert.Contains(t, h.Output, "err")
	assert.Greater(t, h.PID, 0)
	assert.False(t, h.StartTime.IsZero())
	assert.False(t, h.ExitTime.Before(h.StartTime))
	assert.Equal(t, 1, h.Attempts)

	assert.False(t, h.Succeeded(nil))
	assert.True(t, h.Succeeded([]int{0, 3}))
}

func TestRunTimeoutIsNotAnError(t *testing.T) {
	s := newTestSupervisor(1)
	start := time.Now()
	h, err := s.Run(context.Background(), "/bin/sh", []string{"-c", "sleep 30 & sleep 30"}, 200*time.Millisecond)

	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.TimedOut)
	assert.Equal(t, -1, h.ExitCode)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.False(t, IsAlive(h.PID))
}

func TestRunContextCancelKillsProcess(t *testing.T) {
	s := newTestSupervisor(3)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	h, err := s.Run(ctx, "/bin/sh", []string{"-c", "sleep 30"}, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, h)
	assert.False(t, h.TimedOut)
	assert.Equal(t, 1, h.Attempts)
}

func TestRunMissingBinaryIsNotRetried(t *testing.T) {
	s := newTestSupervisor(5)
	h, err := s.Run(context.Background(), "/nonexistent/benchagent-tool", nil, time.Second)
	assert.ErrorIs(t, err, ErrStartFailed)
	require.NotNil(t, h)
	assert.Equal(t, 1, h.Attempts)
}

func TestRunEmptyCommand(t *testing.T) {
	_, err := newTestSupervisor(1).Run(context.Background(), " ", nil, time.Second)
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

// TestRunTransientFailureExhaustsAttempts checks that a tool failing with
// "address already in use" on every launch is started exactly N times and
// the last startup error is returned.
func TestRunTransientFailureExhaustsAttempts(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "attempts")
	script := "echo x >> " + counter + "; echo 'bind: Address already in use' 1>&2; exit 1"

	for _, attempts := range []int{1, 3, 5} {
		require.NoError(t, os.RemoveAll(counter))
		h, err := newTestSupervisor(attempts).Run(context.Background(), "/bin/sh", []string{"-c", script}, 10*time.Second)

		var startupErr *StartupError
		require.ErrorAs(t, err, &startupErr)
		assert.ErrorIs(t, err, ErrStartFailed)
		assert.Equal(t, 1, startupErr.ExitCode)
		assert.Equal(t, attempts, countLines(t, counter))
		assert.Equal(t, attempts, h.Attempts)
	}
}

func TestRunTransientFailureThenSuccess(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "attempts")
	script := "echo x >> " + counter + "; " +
		"if [ $(wc -l < " + counter + ") -lt 3 ]; then echo 'address already in use' 1>&2; exit 1; fi; echo ready"

	h, err := newTestSupervisor(5).Run(context.Background(), "/bin/sh", []string{"-c", script}, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, h.ExitCode)
	assert.Equal(t, 3, h.Attempts)
	assert.Contains(t, h.Output, "ready")
}

func TestRunNonTransientExitIsReturnedOnce(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "attempts")
	h, err := newTestSupervisor(5).Run(context.Background(), "/bin/sh", []string{"-c", "echo x >> " + counter + "; exit 2"}, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, h.ExitCode)
	assert.Equal(t, 1, countLines(t, counter))
}

func TestOutputLimitKeepsTail(t *testing.T) {
	s := NewSupervisor(Options{StartupAttempts: 1, OutputLimit: 16})
	h, err := s.Run(context.Background(), "/bin/sh", []string{"-c", "printf 'aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaENDMARK'"}, 10*time.Second)
	require.NoError(t, err)
	assert.Len(t, h.Output, 16)
	assert.True(t, strings.HasSuffix(h.Output, "ENDMARK"))
}

func TestHandleOutputTail(t *testing.T) {
	h := &Handle{Output: "a\nb\nc\nd\n"}
	assert.Equal(t, "c\nd", h.OutputTail(2))
	assert.Equal(t, "a\nb\nc\nd", h.OutputTail(10))
	assert.Equal(t, "", (*Handle)(nil).OutputTail(2))
}

func TestFinderMatchesRunningProcess(t *testing.T) {
	if _, err := os.Stat("/bin/ps"); err != nil {
		if _, err := os.Stat("/usr/bin/ps"); err != nil {
			t.Skip("ps not available")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan *Handle, 1)
	go func() {
		h, _ := newTestSupervisor(1).Run(ctx, "sleep", []string{"30"}, time.Minute)
		done <- h
	}()

	finder := NewFinder()
	var pids []int
	require.Eventually(t, func() bool {
		found, err := finder.FindByName(context.Background(), "sleep")
		pids = found
		return err == nil && len(found) > 0
	}, 5*time.Second, 50*time.Millisecond)
	assert.True(t, IsAlive(pids[0]))

	cancel()
	h := <-done
	require.NotNil(t, h)
	assert.False(t, IsAlive(h.PID))
}

func TestFinderParsesListing(t *testing.T) {
	f := &Finder{list: func(ctx context.Context) ([]byte, error) {
		return []byte("  1 systemd\n 42 iperf3\n 43 /usr/bin/ntttcp\n 44 averyveryverylo\n bad line\n"), nil
	}}

	pids, err := f.FindByName(context.Background(), "iperf3")
	require.NoError(t, err)
	assert.Equal(t, []int{42}, pids)

	pids, err = f.FindByName(context.Background(), "ntttcp")
	require.NoError(t, err)
	assert.Equal(t, []int{43}, pids)

	pids, err = f.FindByName(context.Background(), "averyveryverylongname")
	require.NoError(t, err)
	assert.Equal(t, []int{44}, pids)

	pids, err = f.FindByName(context.Background(), "sockperf")
	require.NoError(t, err)
	assert.Empty(t, pids)

	_, err = f.FindByName(context.Background(), "")
	assert.Error(t, err)
}
