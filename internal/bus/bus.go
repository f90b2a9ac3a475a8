// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package bus is the single owner of the rig's serial line. It turns
// register and coil operations into Modbus PDUs, hands them to a
// transport.Downstream and validates the echoed answers.
package bus

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/gasmix/internal/config"
	"github.com/ffutop/gasmix/modbus"
	"github.com/ffutop/gasmix/transport"
	"github.com/ffutop/gasmix/transport/rtu"
)

// Dialer builds the downstream for a serial configuration.
type Dialer func(cfg config.SerialConfig) transport.Downstream

// Option configures a Transport.
type Option func(*Transport)

// WithDialer replaces the RTU serial master, e.g. with the in-process simulator.
func WithDialer(d Dialer) Option {
	return func(t *Transport) {
		t.dial = d
	}
}

// Transport executes register and coil operations addressed by unit id.
// Requests from concurrent callers are serialized but their ordering is the
// callers' business.
type Transport struct {
	cfg  config.SerialConfig
	dial Dialer

	mu   sync.Mutex
	ds   transport.Downstream
	port string
}

// New creates a closed Transport. Framing comes from cfg; the device is
// chosen by Connect.
func New(cfg config.SerialConfig, opts ...Option) *Transport {
	t := &Transport{
		cfg: cfg,
		dial: func(cfg config.SerialConfig) transport.Downstream {
			return rtu.NewClient(cfg)
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect opens port, closing any previously opened one first.
func (t *Transport) Connect(ctx context.Context, port string) error {
	if port == "" {
		return ErrNoDevice
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ds != nil {
		if err := t.ds.Close(); err != nil {
			slog.Warn("failed to close previous port", "port", t.port, "err", err)
		}
		t.ds = nil
		t.port = ""
	}

	cfg := t.cfg
	cfg.Device = port
	ds := t.dial(cfg)
	if err := ds.Connect(ctx); err != nil {
		ds.Close()
		return &CommunicationError{Op: "connect " + port, Err: err}
	}

	t.ds = ds
	t.port = port
	slog.Info("serial port opened", "port", port)
	return nil
}

// IsOpen reports whether Connect succeeded and Close was not called since.
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ds != nil
}

// Port returns the device of the open connection.
func (t *Transport) Port() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

// Close releases the port. Closing a closed Transport is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ds == nil {
		return nil
	}
	err := t.ds.Close()
	t.ds = nil
	t.port = ""
	return err
}

// Request:
//
//	Function code         : 1 byte (0x03)
//	Starting address      : 2 bytes
//	Quantity of registers : 2 bytes
//
// Response:
//
//	Function code         : 1 byte (0x03)
//	Byte count            : 1 byte
//	Register value        : Nx2 bytes
func (t *Transport) ReadHoldingRegisters(ctx context.Context, unit byte, address, count uint16) ([]uint16, error) {
	return t.readRegisters(ctx, "read holding registers", unit, modbus.FuncCodeReadHoldingRegisters, address, count)
}

// Request:
//
//	Function code         : 1 byte (0x04)
//	Starting address      : 2 bytes
//	Quantity of registers : 2 bytes
//
// Response:
//
//	Function code         : 1 byte (0x04)
//	Byte count            : 1 byte
//	Input registers       : Nx2 bytes
func (t *Transport) ReadInputRegisters(ctx context.Context, unit byte, address, count uint16) ([]uint16, error) {
	return t.readRegisters(ctx, "read input registers", unit, modbus.FuncCodeReadInputRegisters, address, count)
}

func (t *Transport) readRegisters(ctx context.Context, op string, unit, funcCode byte, address, count uint16) ([]uint16, error) {
	if count < 1 || count > 125 {
		return nil, fmt.Errorf("bus: quantity '%v' must be between '%v' and '%v'", count, 1, 125)
	}
	response, err := t.send(ctx, op, unit, modbus.ProtocolDataUnit{
		FunctionCode: funcCode,
		Data:         dataBlock(address, count),
	})
	if err != nil {
		return nil, err
	}
	byteCount := int(response.Data[0])
	length := len(response.Data) - 1
	if byteCount != length || length != int(count)*2 {
		return nil, &CommunicationError{Op: op, Unit: unit,
			Err: fmt.Errorf("response data size '%v' does not match count '%v'", length, byteCount)}
	}

	values := make([]uint16, count)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(response.Data[1+i*2:])
	}
	return values, nil
}

// Request and response:
//
//	Function code         : 1 byte (0x06)
//	Register address      : 2 bytes
//	Register value        : 2 bytes
func (t *Transport) WriteRegister(ctx context.Context, unit byte, address, value uint16) error {
	const op = "write register"
	response, err := t.send(ctx, op, unit, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         dataBlock(address, value),
	})
	if err != nil {
		return err
	}
	return checkEcho(op, unit, response, address, value)
}

// Request and response:
//
//	Function code         : 1 byte (0x05)
//	Output address        : 2 bytes
//	Output value          : 2 bytes (0xFF00 ON, 0x0000 OFF)
func (t *Transport) WriteCoil(ctx context.Context, unit byte, address uint16, on bool) error {
	const op = "write coil"
	value := modbus.CoilOff
	if on {
		value = modbus.CoilOn
	}
	response, err := t.send(ctx, op, unit, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleCoil,
		Data:         dataBlock(address, value),
	})
	if err != nil {
		return err
	}
	return checkEcho(op, unit, response, address, value)
}

// Request:
//
//	Function code         : 1 byte (0x0F)
//	Starting address      : 2 bytes
//	Quantity of outputs   : 2 bytes
//	Byte count            : 1 byte
//	Outputs value         : N* bytes, LSB of the first byte is the first coil
//
// Response:
//
//	Function code         : 1 byte (0x0F)
//	Starting address      : 2 bytes
//	Quantity of outputs   : 2 bytes
func (t *Transport) WriteCoils(ctx context.Context, unit byte, address uint16, bits []bool) error {
	const op = "write coils"
	quantity := len(bits)
	if quantity < 1 || quantity > 1968 {
		return fmt.Errorf("bus: quantity '%v' must be between '%v' and '%v'", quantity, 1, 1968)
	}
	response, err := t.send(ctx, op, unit, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteMultipleCoils,
		Data:         dataBlockSuffix(PackCoils(bits), address, uint16(quantity)),
	})
	if err != nil {
		return err
	}
	return checkEcho(op, unit, response, address, uint16(quantity))
}

// send runs one request/response exchange and maps every failure to a
// CommunicationError.
func (t *Transport) send(ctx context.Context, op string, unit byte, request modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ds == nil {
		return modbus.ProtocolDataUnit{}, &CommunicationError{Op: op, Unit: unit, Err: ErrNotOpen}
	}

	response, err := t.ds.Send(ctx, unit, request)
	if err != nil {
		return modbus.ProtocolDataUnit{}, &CommunicationError{Op: op, Unit: unit, Err: err}
	}
	if response.IsException() {
		return modbus.ProtocolDataUnit{}, &CommunicationError{Op: op, Unit: unit, Err: modbus.ResponseError(response)}
	}
	if response.FunctionCode != request.FunctionCode {
		return modbus.ProtocolDataUnit{}, &CommunicationError{Op: op, Unit: unit,
			Err: fmt.Errorf("response function '%v' does not match request '%v'", response.FunctionCode, request.FunctionCode)}
	}
	if len(response.Data) == 0 {
		return modbus.ProtocolDataUnit{}, &CommunicationError{Op: op, Unit: unit, Err: fmt.Errorf("response data is empty")}
	}
	return response, nil
}

// checkEcho validates the fixed four byte answer of the write functions.
func checkEcho(op string, unit byte, response modbus.ProtocolDataUnit, address, value uint16) error {
	if len(response.Data) != 4 {
		return &CommunicationError{Op: op, Unit: unit,
			Err: fmt.Errorf("response data size '%v' does not match expected '%v'", len(response.Data), 4)}
	}
	if got := binary.BigEndian.Uint16(response.Data); got != address {
		return &CommunicationError{Op: op, Unit: unit,
			Err: fmt.Errorf("response address '%v' does not match request '%v'", got, address)}
	}
	if got := binary.BigEndian.Uint16(response.Data[2:]); got != value {
		return &CommunicationError{Op: op, Unit: unit,
			Err: fmt.Errorf("response value '%v' does not match request '%v'", got, value)}
	}
	return nil
}

// PackCoils packs bits LSB first, eight per byte.
func PackCoils(bits []bool) []byte {
	packed := make([]byte, (len(bits)+7)/8)
	for i, on := range bits {
		if on {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	return packed
}

// dataBlock creates a sequence of uint16 data.
func dataBlock(value ...uint16) []byte {
	data := make([]byte, 2*len(value))
	for i, v := range value {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	return data
}

// dataBlockSuffix creates a sequence of uint16 data and append the suffix plus its length.
func dataBlockSuffix(suffix []byte, value ...uint16) []byte {
	length := 2 * len(value)
	data := make([]byte, length+1+len(suffix))
	for i, v := range value {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	data[length] = uint8(len(suffix))
	copy(data[length+1:], suffix)
	return data
}
