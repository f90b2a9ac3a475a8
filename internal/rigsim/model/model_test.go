// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoils(t *testing.T) {
	m := NewDataModel()

	// Valve pattern 0,1,0,0,0,1,1,0 packs to 0x62.
	require.NoError(t, m.WriteMultipleCoils(0, 8, []byte{0x62}))
	got, err := m.ReadCoils(0, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x62}, got)

	require.NoError(t, m.WriteSingleCoil(5, 0x0000))
	got, err = m.ReadCoils(0, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42}, got)
	require.NoError(t, m.WriteSingleCoil(5, 0xFF00))
	got, err = m.ReadCoils(5, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, got)

	assert.Error(t, m.WriteSingleCoil(5, 0x1234))
	assert.Error(t, m.WriteMultipleCoils(0, 9, []byte{0xFF}))
}

func TestRegisters(t *testing.T) {
	m := NewDataModel()

	require.NoError(t, m.WriteSingleRegister(4, 0xEC78))
	got, err := m.ReadHoldingRegisters(4, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEC, 0x78}, got)
	assert.Equal(t, uint16(0xEC78), m.Holding(4))

	require.NoError(t, m.SetInputRegisters(0, 1, 2, 3, 4))
	got, err = m.ReadInputRegisters(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 0, 2, 0, 3, 0, 4}, got)
}

func TestRangeChecks(t *testing.T) {
	m := NewDataModel()

	tests := []struct {
		name string
		err  error
	}{
		{"zero quantity", func() error { _, err := m.ReadHoldingRegisters(0, 0); return err }()},
		{"past end", func() error { _, err := m.ReadInputRegisters(Size-1, 2); return err }()},
		{"coil past end", m.WriteSingleCoil(Size, 0xFF00)},
		{"register past end", m.WriteSingleRegister(Size, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.err)
		})
	}
	assert.Equal(t, uint16(0), m.Holding(Size+10))
}
