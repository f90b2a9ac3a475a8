// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/gasmix/internal/bus"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gasmix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
experiment:
  settle_delay: 1ms
`), 0644))

	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-c", path, "--log-file", filepath.Join(dir, "gasmix.log")}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestSimulate_RunsProgramToCompletion(t *testing.T) {
	out, err := execute(t, "simulate",
		"--concentration", "50",
		"--cadence", "2ms",
		"--baseline", "10ms",
		"--recovery", "10ms",
		"--humidity", "90",
	)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	fields := strings.Fields(lines[0])
	require.Len(t, fields, 4, "status line %q", lines[0])
	for _, f := range fields {
		_, err := strconv.ParseFloat(f, 64)
		assert.NoError(t, err, "field %q", f)
	}
}

func TestRun_WithoutPort(t *testing.T) {
	_, err := execute(t, "run")
	assert.ErrorIs(t, err, bus.ErrNoDevice)
}

func TestFlow_MissingPort(t *testing.T) {
	_, err := execute(t, "flow", "--port", filepath.Join(t.TempDir(), "missing"), "--line", "A", "--value", "1")
	assert.Error(t, err)
}

func TestListPorts(t *testing.T) {
	ports, err := listPorts()
	require.NoError(t, err)
	for _, p := range ports {
		assert.True(t, strings.HasPrefix(p, "/dev/"), p)
	}
}
