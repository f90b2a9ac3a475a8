// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrRequestTimedOut = errors.New("modbus: request timed out")

// lengthByte marks responses whose payload size travels in the frame.
const lengthByte = -1

type InvalidLengthError struct {
	Length byte
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("invalid length received: %d", e.Length)
}

// responsePayload is the number of bytes between the function code and the
// CRC of a regular response to funcCode.
func responsePayload(funcCode byte) (int, error) {
	switch funcCode {
	case FuncCodeReadHoldingRegister, FuncCodeReadInputRegister:
		return lengthByte, nil
	case FuncCodeWriteSingleCoil, FuncCodeWriteSingleRegister, FuncCodeWriteMultipleCoils:
		// Writes echo address and value (or quantity).
		return 4, nil
	}
	return 0, fmt.Errorf("modbus: function code 0x%02X not handled", funcCode)
}

// CalculateResponseLength returns the expected length of the response to
// the request frame adu.
func CalculateResponseLength(adu []byte) int {
	if len(adu) < 6 {
		return MinSize
	}
	payload, err := responsePayload(adu[1])
	switch {
	case err != nil:
		return MinSize
	case payload == lengthByte:
		count := int(binary.BigEndian.Uint16(adu[4:]))
		return MinSize + 1 + 2*count
	}
	return MinSize + payload
}

// CalculateRequestLength returns the total length of a request frame given
// its first bytes. Write multiple coils needs seven of them to reach the
// byte count.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	switch funcCode {
	case FuncCodeReadHoldingRegister,
		FuncCodeReadInputRegister,
		FuncCodeWriteSingleCoil,
		FuncCodeWriteSingleRegister:
		return 8, nil
	case FuncCodeWriteMultipleCoils:
		if len(header) < 7 {
			return 0, fmt.Errorf("need 7 bytes to determine length for 0x%02X, got %d", funcCode, len(header))
		}
		return 7 + int(header[6]) + 2, nil
	}
	return 0, fmt.Errorf("unsupported function code: 0x%02X", funcCode)
}

// ReadResponse reads the frame answering functionCode from unit slaveID.
// Bytes before the frame header are discarded. The CRC is returned with
// the frame, unchecked.
func ReadResponse(slaveID, functionCode byte, r io.Reader, deadline time.Time) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is nil")
	}
	payload, err := responsePayload(functionCode)
	if err != nil {
		return nil, err
	}

	one := make([]byte, 1)
	next := func() (byte, error) {
		if time.Now().After(deadline) {
			return 0, ErrRequestTimedOut
		}
		if _, err := io.ReadFull(r, one); err != nil {
			return 0, err
		}
		return one[0], nil
	}

	// Hunt for the unit address followed by the expected function code,
	// or by its exception variant.
	b, err := next()
	if err != nil {
		return nil, err
	}
	var fc byte
	for {
		if b != slaveID {
			if b, err = next(); err != nil {
				return nil, err
			}
			continue
		}
		if fc, err = next(); err != nil {
			return nil, err
		}
		if fc == functionCode || fc == functionCode|0x80 {
			break
		}
		b = fc
	}

	frame := make([]byte, 0, MaxSize)
	frame = append(frame, slaveID, fc)
	switch {
	case fc&0x80 != 0:
		payload = 1
	case payload == lengthByte:
		n, err := next()
		if err != nil {
			return nil, err
		}
		if n == 0 || int(n) > MaxSize-5 {
			return nil, &InvalidLengthError{Length: n}
		}
		frame = append(frame, n)
		payload = int(n)
	}

	for i := 0; i < payload+2; i++ {
		c, err := next()
		if err != nil {
			return nil, err
		}
		frame = append(frame, c)
	}
	return frame, nil
}
