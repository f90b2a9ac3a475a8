// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package modbus holds the protocol data unit shared by the RTU framer, the
serial transports and the rig simulator. Only the function codes used by
the gas-mixing rig are defined.
*/
package modbus

import "fmt"

const (
	// FuncCodeReadHoldingRegisters 16-bit wise access
	FuncCodeReadHoldingRegisters = 0x03
	// FuncCodeReadInputRegisters 16-bit wise access
	FuncCodeReadInputRegisters = 0x04
	// FuncCodeWriteSingleCoil for bit wise access
	FuncCodeWriteSingleCoil = 0x05
	// FuncCodeWriteSingleRegister 16-bit wise access
	FuncCodeWriteSingleRegister = 0x06
	// FuncCodeWriteMultipleCoils for bit wise access
	FuncCodeWriteMultipleCoils = 0x0F
)

const (
	// ExceptionCodeIllegalFunction error code
	ExceptionCodeIllegalFunction = 1
	// ExceptionCodeIllegalDataAddress error code
	ExceptionCodeIllegalDataAddress = 2
	// ExceptionCodeIllegalDataValue error code
	ExceptionCodeIllegalDataValue = 3
	// ExceptionCodeServerDeviceFailure error code
	ExceptionCodeServerDeviceFailure = 4
)

// Coil states as they travel in a write single coil request.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// IsException reports whether the PDU carries an exception response.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&0x80 != 0
}

// Error implements error interface for exception responses.
type Error struct {
	FunctionCode  byte
	ExceptionCode byte
}

// Error converts known modbus exception code to error message.
func (e *Error) Error() string {
	var name string
	switch e.ExceptionCode {
	case ExceptionCodeIllegalFunction:
		name = "illegal function"
	case ExceptionCodeIllegalDataAddress:
		name = "illegal data address"
	case ExceptionCodeIllegalDataValue:
		name = "illegal data value"
	case ExceptionCodeServerDeviceFailure:
		name = "server device failure"
	default:
		name = "unknown"
	}
	return fmt.Sprintf("modbus: exception '%v' (%s), function '%v'", e.ExceptionCode, name, e.FunctionCode&0x7F)
}

// ResponseError builds an *Error from an exception response PDU.
func ResponseError(pdu ProtocolDataUnit) error {
	mbError := &Error{FunctionCode: pdu.FunctionCode}
	if len(pdu.Data) > 0 {
		mbError.ExceptionCode = pdu.Data[0]
	}
	return mbError
}
