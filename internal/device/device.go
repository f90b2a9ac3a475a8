// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package device maps the rig instruments onto Modbus registers and coils:
// mass-flow controllers, the valve relay bank and the humidity transducer.
package device

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned for values a device cannot represent.
var ErrInvalidArgument = errors.New("device: invalid argument")

// Bus is the subset of bus.Transport the devices need.
type Bus interface {
	ReadHoldingRegisters(ctx context.Context, unit byte, address, count uint16) ([]uint16, error)
	ReadInputRegisters(ctx context.Context, unit byte, address, count uint16) ([]uint16, error)
	WriteRegister(ctx context.Context, unit byte, address, value uint16) error
	WriteCoil(ctx context.Context, unit byte, address uint16, on bool) error
	WriteCoils(ctx context.Context, unit byte, address uint16, bits []bool) error
}

func checkUnit(unit int) (byte, error) {
	if unit < 1 || unit > 247 {
		return 0, fmt.Errorf("%w: unit %d out of range 1..247", ErrInvalidArgument, unit)
	}
	return byte(unit), nil
}
