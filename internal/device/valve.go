// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"context"
	"fmt"
)

// ValveBank is the 8-channel relay unit switching the gas lines.
type ValveBank struct {
	bus  Bus
	unit byte
}

func NewValveBank(bus Bus, unit int) (*ValveBank, error) {
	u, err := checkUnit(unit)
	if err != nil {
		return nil, err
	}
	return &ValveBank{bus: bus, unit: u}, nil
}

func (v *ValveBank) Unit() byte {
	return v.unit
}

// Close de-energizes all relays.
func (v *ValveBank) Close(ctx context.Context) error {
	return v.bus.WriteCoils(ctx, v.unit, 0, make([]bool, ValveCount))
}

// OpenDefault closes the bank, then opens the default coil.
// If the second write fails the bank stays closed.
func (v *ValveBank) OpenDefault(ctx context.Context) error {
	if err := v.Close(ctx); err != nil {
		return err
	}
	return v.bus.WriteCoil(ctx, v.unit, ValveDefault, true)
}

// OpenPattern sets all relays at once; bits[i] drives coil i.
func (v *ValveBank) OpenPattern(ctx context.Context, bits []bool) error {
	if len(bits) != ValveCount {
		return fmt.Errorf("%w: valve pattern has %d entries, want %d", ErrInvalidArgument, len(bits), ValveCount)
	}
	return v.bus.WriteCoils(ctx, v.unit, 0, bits)
}
