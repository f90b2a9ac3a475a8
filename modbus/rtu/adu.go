// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/gasmix/modbus"
	"github.com/ffutop/gasmix/modbus/crc"
)

// ApplicationDataUnit is a PDU addressed to one unit on the serial line.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode extracts the ADU from a raw RTU frame and verifies its CRC.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = fmt.Errorf("modbus: response length '%v' does not meet minimum '%v'", length, MinSize)
		return
	}

	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if expected := crc.Checksum(raw[0 : length-2]); checksum != expected {
		err = fmt.Errorf("modbus: response crc '%v' does not match expected '%v'", checksum, expected)
		return
	}
	adu = &ApplicationDataUnit{}
	adu.SlaveID = raw[0]
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = raw[2 : length-2]
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	raw = make([]byte, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[2:], adu.Pdu.Data)

	checksum := crc.Checksum(raw[0 : length-2])
	raw[length-1] = byte(checksum >> 8)
	raw[length-2] = byte(checksum)
	return
}

// Verify verifies response slave id and function code against the request.
// Exception responses are returned as *modbus.Error.
func (req *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) (err error) {
	if req.SlaveID != resp.SlaveID {
		err = fmt.Errorf("modbus: response slave id '%v' does not match request '%v'", resp.SlaveID, req.SlaveID)
		return
	}
	if resp.Pdu.FunctionCode == req.Pdu.FunctionCode|0x80 {
		return modbus.ResponseError(resp.Pdu)
	}
	if resp.Pdu.FunctionCode != req.Pdu.FunctionCode {
		err = fmt.Errorf("modbus: response function '%v' does not match request '%v'", resp.Pdu.FunctionCode, req.Pdu.FunctionCode)
		return
	}
	if len(resp.Pdu.Data) == 0 {
		err = fmt.Errorf("modbus: response data is empty")
	}
	return
}
