// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"context"
	"errors"

	"github.com/ffutop/gasmix/internal/bus"
)

type call struct {
	op      string
	unit    byte
	address uint16
	value   uint16
	bits    []bool
}

// fakeBus keeps one holding/input register table per unit and logs every call.
// Calls listed in fail return an error instead.
type fakeBus struct {
	holding map[byte]map[uint16]uint16
	input   map[byte]map[uint16]uint16
	calls   []call
	fail    map[string]error
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		holding: make(map[byte]map[uint16]uint16),
		input:   make(map[byte]map[uint16]uint16),
		fail:    make(map[string]error),
	}
}

func (b *fakeBus) table(t map[byte]map[uint16]uint16, unit byte) map[uint16]uint16 {
	if t[unit] == nil {
		t[unit] = make(map[uint16]uint16)
	}
	return t[unit]
}

func (b *fakeBus) record(c call) error {
	b.calls = append(b.calls, c)
	return b.fail[c.op]
}

func (b *fakeBus) read(op string, t map[byte]map[uint16]uint16, unit byte, address, count uint16) ([]uint16, error) {
	if err := b.record(call{op: op, unit: unit, address: address, value: count}); err != nil {
		return nil, err
	}
	values := make([]uint16, count)
	for i := range values {
		values[i] = b.table(t, unit)[address+uint16(i)]
	}
	return values, nil
}

func (b *fakeBus) ReadHoldingRegisters(ctx context.Context, unit byte, address, count uint16) ([]uint16, error) {
	return b.read("read holding", b.holding, unit, address, count)
}

func (b *fakeBus) ReadInputRegisters(ctx context.Context, unit byte, address, count uint16) ([]uint16, error) {
	return b.read("read input", b.input, unit, address, count)
}

func (b *fakeBus) WriteRegister(ctx context.Context, unit byte, address, value uint16) error {
	if err := b.record(call{op: "write register", unit: unit, address: address, value: value}); err != nil {
		return err
	}
	regs := b.table(b.holding, unit)
	regs[address] = value
	if address == RegFlowSetpoint {
		regs[RegFlowReadback] = value
	}
	return nil
}

func (b *fakeBus) WriteCoil(ctx context.Context, unit byte, address uint16, on bool) error {
	return b.record(call{op: "write coil", unit: unit, address: address, bits: []bool{on}})
}

func (b *fakeBus) WriteCoils(ctx context.Context, unit byte, address uint16, bits []bool) error {
	return b.record(call{op: "write coils", unit: unit, address: address, bits: append([]bool(nil), bits...)})
}

var errLineDown = errors.New("line down")

// errNoAnswer is what the RTU bus reports when a unit stays silent.
var errNoAnswer = &bus.CommunicationError{Op: "read holding registers", Unit: 1, Err: errors.New("modbus: request timed out")}
