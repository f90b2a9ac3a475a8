// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/gasmix/internal/config"
	"github.com/ffutop/gasmix/modbus"
	"github.com/ffutop/gasmix/transport"
)

var _ transport.Downstream = (*Client)(nil)

func TestNewClient(t *testing.T) {
	cfg := config.Default()
	cfg.Simulator.Persistence = config.PersistenceConfig{Type: "file", Path: filepath.Join(t.TempDir(), "images")}

	c, err := NewClient(cfg.Devices, cfg.Simulator)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	resp, err := c.Send(context.Background(), 28, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadInputRegisters,
		Data:         []byte{0x00, 0x00, 0x00, 0x04},
	})
	require.NoError(t, err)
	// 25.0 °C low word first, then 50.0 %.
	assert.Equal(t, []byte{0x08, 0x00, 0x00, 0x41, 0xC8, 0x00, 0x00, 0x42, 0x48}, resp.Data)
	assert.FileExists(t, filepath.Join(cfg.Simulator.Persistence.Path, "unit-028.bin"))
}

func TestNewClient_BadPersistence(t *testing.T) {
	cfg := config.Default()
	cfg.Simulator.Persistence.Type = "sql"

	_, err := NewClient(cfg.Devices, cfg.Simulator)
	assert.Error(t, err)
}
