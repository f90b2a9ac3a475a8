// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rigsim

import (
	"encoding/binary"

	"github.com/ffutop/gasmix/internal/rigsim/model"
	"github.com/ffutop/gasmix/internal/rigsim/persistence"
	"github.com/ffutop/gasmix/modbus"
)

// writeHook lets a device react to a bus write, e.g. a flow controller
// following its setpoint.
type writeHook func(m *model.DataModel, table model.TableType, address, quantity uint16)

// Slave implements the Modbus protocol logic of one unit on top of a DataModel.
type Slave struct {
	model   *model.DataModel
	storage persistence.Storage
	onWrite writeHook
}

// NewSlave creates a Slave. storage may be nil.
func NewSlave(m *model.DataModel, storage persistence.Storage) *Slave {
	return &Slave{model: m, storage: storage}
}

// Model returns the register image.
func (s *Slave) Model() *model.DataModel {
	return s.model
}

// Process executes the request against the register image.
// Protocol errors are answered with exception PDUs, never with a Go error.
func (s *Slave) Process(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleRead(req, s.model.ReadHoldingRegisters), nil
	case modbus.FuncCodeReadInputRegisters:
		return s.handleRead(req, s.model.ReadInputRegisters), nil
	case modbus.FuncCodeWriteSingleCoil:
		return s.handleWriteSingleCoil(req), nil
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(req), nil
	case modbus.FuncCodeWriteMultipleCoils:
		return s.handleWriteMultipleCoils(req), nil
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
}

func (s *Slave) handleRead(req modbus.ProtocolDataUnit, read func(address, quantity uint16) ([]byte, error)) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 125 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := read(address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (s *Slave) handleWriteSingleCoil(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if value != modbus.CoilOn && value != modbus.CoilOff {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if err := s.model.WriteSingleCoil(address, value); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.written(model.TableCoils, address, 1)

	return req // Echo request
}

func (s *Slave) handleWriteSingleRegister(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := s.model.WriteSingleRegister(address, value); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.written(model.TableHoldingRegisters, address, 1)

	return req // Echo request
}

func (s *Slave) handleWriteMultipleCoils(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) < 6 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > 1968 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if len(req.Data)-5 != int(byteCount) || int(byteCount) != (int(quantity)+7)/8 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	if err := s.model.WriteMultipleCoils(address, quantity, req.Data[5:]); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.written(model.TableCoils, address, quantity)

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (s *Slave) written(table model.TableType, address, quantity uint16) {
	if s.onWrite != nil {
		s.onWrite(s.model, table, address, quantity)
	}
	if s.storage != nil {
		s.storage.OnWrite(table, address, quantity)
	}
}

func exception(funcCode byte, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | 0x80,
		Data:         []byte{code},
	}
}
