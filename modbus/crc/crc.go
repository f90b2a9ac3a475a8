// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc computes the CRC-16/MODBUS checksum that trails every RTU frame.
package crc

import "github.com/sigurn/crc16"

var table = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC accumulates bytes and reports the CRC-16/MODBUS of everything pushed
// since the last Reset.
type CRC struct {
	buf []byte
}

// Reset clears the accumulated bytes.
func (c *CRC) Reset() *CRC {
	c.buf = c.buf[:0]
	return c
}

// PushBytes appends data to the checksummed stream.
func (c *CRC) PushBytes(data []byte) *CRC {
	c.buf = append(c.buf, data...)
	return c
}

// Value returns the checksum. On the wire the low byte goes first.
func (c *CRC) Value() uint16 {
	return crc16.Checksum(c.buf, table)
}

// Checksum is a shorthand for a one-shot computation.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, table)
}
