// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// FlowController is a mass-flow controller (RRG) on the bus.
type FlowController struct {
	bus       Bus
	unit      byte
	fullScale float64
}

// NewFlowController validates unit and fullScale (sccm, > 0).
func NewFlowController(bus Bus, unit int, fullScale float64) (*FlowController, error) {
	u, err := checkUnit(unit)
	if err != nil {
		return nil, err
	}
	if !(fullScale > 0) || math.IsInf(fullScale, 1) {
		return nil, fmt.Errorf("%w: full scale must be positive, got %v", ErrInvalidArgument, fullScale)
	}
	return &FlowController{bus: bus, unit: u, fullScale: fullScale}, nil
}

func (f *FlowController) Unit() byte {
	return f.unit
}

func (f *FlowController) FullScale() float64 {
	return f.fullScale
}

// FlowToCount converts a flow to the signed register count, rounding half to even.
func FlowToCount(value, fullScale float64) (int16, error) {
	count := math.RoundToEven(value / fullScale * FlowScale)
	if math.IsNaN(count) || count < math.MinInt16 || count > math.MaxInt16 {
		return 0, fmt.Errorf("%w: flow %v does not fit the register at full scale %v", ErrInvalidArgument, value, fullScale)
	}
	return int16(count), nil
}

// CountToFlow converts a register word back to flow.
func CountToFlow(raw uint16, fullScale float64) float64 {
	return float64(int16(raw)) / FlowScale * fullScale
}

// SetFlow writes the setpoint.
func (f *FlowController) SetFlow(ctx context.Context, value float64) error {
	count, err := FlowToCount(value, f.fullScale)
	if err != nil {
		return err
	}
	slog.Info("change flow", "unit", f.unit, "value", value, "count", count)
	return f.bus.WriteRegister(ctx, f.unit, RegFlowSetpoint, uint16(count))
}

// ReadFlow returns the measured flow, or 0 when the unit does not answer.
func (f *FlowController) ReadFlow(ctx context.Context) float64 {
	values, err := f.bus.ReadHoldingRegisters(ctx, f.unit, RegFlowReadback, 1)
	if err != nil {
		slog.Debug("flow readback failed", "unit", f.unit, "err", err)
		return 0
	}
	return CountToFlow(values[0], f.fullScale)
}
