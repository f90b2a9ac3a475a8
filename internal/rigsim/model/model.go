// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Size is the number of addresses in each table of a simulated unit.
// The rig devices only map a handful of registers near zero.
const Size = 256

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableCoils TableType = iota
	TableHoldingRegisters
	TableInputRegisters
)

func (t TableType) String() string {
	switch t {
	case TableCoils:
		return "coils"
	case TableHoldingRegisters:
		return "holding"
	case TableInputRegisters:
		return "input"
	default:
		return fmt.Sprintf("table(%d)", int(t))
	}
}

// DataModel is the register image of one simulated unit.
type DataModel struct {
	mu sync.RWMutex

	// 0x Coils (Read/Write). Stored as 1 (ON) or 0 (OFF).
	Coils []byte
	// 4x Holding Registers (Read/Write).
	HoldingRegisters []uint16
	// 3x Input Registers (Read Only from the bus).
	InputRegisters []uint16
}

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel() *DataModel {
	return &DataModel{
		Coils:            make([]byte, Size),
		HoldingRegisters: make([]uint16, Size),
		InputRegisters:   make([]uint16, Size),
	}
}

// ReadCoils reads a range of coils and returns them packed LSB first, as
// a write multiple coils request carries them.
func (m *DataModel) ReadCoils(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}

	result := make([]byte, (int(quantity)+7)/8)
	for i := 0; i < int(quantity); i++ {
		if m.Coils[int(address)+i] != 0 {
			result[i/8] |= 1 << uint(i%8)
		}
	}
	return result, nil
}

// WriteSingleCoil writes a single coil. value must be 0xFF00 (ON) or 0x0000 (OFF).
func (m *DataModel) WriteSingleCoil(address uint16, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, 1); err != nil {
		return err
	}

	switch value {
	case 0xFF00:
		m.Coils[address] = 1
	case 0x0000:
		m.Coils[address] = 0
	default:
		return fmt.Errorf("invalid coil value 0x%04X", value)
	}
	return nil
}

// WriteMultipleCoils writes a range of coils from packed bytes.
func (m *DataModel) WriteMultipleCoils(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, quantity); err != nil {
		return err
	}
	if len(data) < (int(quantity)+7)/8 {
		return fmt.Errorf("insufficient data length")
	}

	for i := 0; i < int(quantity); i++ {
		m.Coils[int(address)+i] = (data[i/8] >> uint(i%8)) & 1
	}
	return nil
}

// ReadHoldingRegisters reads a range of holding registers as big-endian bytes.
func (m *DataModel) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return readRegisters(m.HoldingRegisters, address, quantity)
}

// WriteSingleRegister writes a single holding register.
func (m *DataModel) WriteSingleRegister(address uint16, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, 1); err != nil {
		return err
	}
	m.HoldingRegisters[address] = value
	return nil
}

// ReadInputRegisters reads a range of input registers as big-endian bytes.
func (m *DataModel) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return readRegisters(m.InputRegisters, address, quantity)
}

// SetInputRegisters is the device side of the input table.
func (m *DataModel) SetInputRegisters(address uint16, values ...uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, uint16(len(values))); err != nil {
		return err
	}
	copy(m.InputRegisters[address:], values)
	return nil
}

// Holding returns one holding register without bus framing.
func (m *DataModel) Holding(address uint16) uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if int(address) >= Size {
		return 0
	}
	return m.HoldingRegisters[address]
}

func readRegisters(table []uint16, address, quantity uint16) ([]byte, error) {
	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}

	result := make([]byte, int(quantity)*2)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(result[i*2:], table[int(address)+i])
	}
	return result, nil
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	if int(address)+int(quantity) > Size {
		return fmt.Errorf("address range %d+%d out of bounds", address, quantity)
	}
	return nil
}
