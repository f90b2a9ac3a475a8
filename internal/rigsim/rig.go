// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rigsim emulates the gas-mixing rig as a set of Modbus slaves:
// flow controllers whose readback follows the setpoint, the valve relay
// bank and the humidity transducer.
package rigsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/gasmix/internal/config"
	"github.com/ffutop/gasmix/internal/device"
	"github.com/ffutop/gasmix/internal/rigsim/model"
	"github.com/ffutop/gasmix/internal/rigsim/persistence"
	"github.com/ffutop/gasmix/modbus"
)

// ErrNoResponse is what a master sees for a unit that is not on the line.
var ErrNoResponse = errors.New("rigsim: no response from unit")

// Opener returns the storage of one unit.
type Opener func(unit byte) (persistence.Storage, error)

// Rig routes requests to the simulated units by slave id.
type Rig struct {
	mu    sync.Mutex
	units map[byte]*Slave

	flows  []byte
	valve  byte
	sensor byte
}

// New builds the units of the layout. A storage that fails to load is
// replaced by memory storage.
func New(devices config.DevicesConfig, open Opener) (*Rig, error) {
	if err := devices.Validate(); err != nil {
		return nil, err
	}
	if open == nil {
		open = func(byte) (persistence.Storage, error) { return persistence.NewMemoryStorage(), nil }
	}

	r := &Rig{
		units:  make(map[byte]*Slave),
		valve:  byte(devices.ValveUnit),
		sensor: byte(devices.SensorUnit),
	}

	for i, line := range devices.Lines {
		unit := byte(line.Unit)
		s, err := r.add(unit, open)
		if err != nil {
			r.Close()
			return nil, err
		}
		s.onWrite = followSetpoint
		m := s.Model()
		m.WriteSingleRegister(device.RegNetAddress, uint16(unit))
		m.WriteSingleRegister(device.RegNumber, uint16(i+1))
		followSetpoint(m, model.TableHoldingRegisters, device.RegFlowSetpoint, 1)
		r.flows = append(r.flows, unit)
	}
	if _, err := r.add(r.valve, open); err != nil {
		r.Close()
		return nil, err
	}
	if _, err := r.add(r.sensor, open); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Rig) add(unit byte, open Opener) (*Slave, error) {
	if _, ok := r.units[unit]; ok {
		return nil, fmt.Errorf("rigsim: unit %d used twice", unit)
	}
	storage, err := open(unit)
	if err != nil {
		return nil, fmt.Errorf("rigsim: unit %d: %w", unit, err)
	}
	m, err := storage.Load()
	if err != nil {
		slog.Error("failed to load register image, starting with a fresh one", "unit", unit, "err", err)
		storage.Close()
		storage = persistence.NewMemoryStorage()
		m, _ = storage.Load()
	}
	s := NewSlave(m, storage)
	r.units[unit] = s
	return s, nil
}

// followSetpoint makes the readback register track the setpoint; the
// simulated controller settles instantly.
func followSetpoint(m *model.DataModel, table model.TableType, address, quantity uint16) {
	if table == model.TableHoldingRegisters && address == device.RegFlowSetpoint {
		m.WriteSingleRegister(device.RegFlowReadback, m.Holding(device.RegFlowSetpoint))
	}
}

// Send answers one request the way the addressed unit would.
func (r *Rig) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if err := ctx.Err(); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.units[slaveID]
	if !ok {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("%w %d", ErrNoResponse, slaveID)
	}
	return s.Process(pdu)
}

// SetClimate updates what the humidity transducer reports.
func (r *Rig) SetClimate(temperature, humidity float64) error {
	tlo, thi := device.Float32ToWords(float32(temperature))
	hlo, hhi := device.Float32ToWords(float32(humidity))

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.units[r.sensor]
	if !ok {
		return fmt.Errorf("%w %d", ErrNoResponse, r.sensor)
	}
	if err := s.Model().SetInputRegisters(device.RegClimate, tlo, thi, hlo, hhi); err != nil {
		return err
	}
	s.written(model.TableInputRegisters, device.RegClimate, device.ClimateWords)
	return nil
}

// Setpoint returns the raw setpoint register of a flow unit.
func (r *Rig) Setpoint(unit byte) (uint16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.units[unit]
	if !ok {
		return 0, false
	}
	return s.Model().Holding(device.RegFlowSetpoint), true
}

// Valves returns the relay states of the valve unit.
func (r *Rig) Valves() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.units[r.valve]
	if !ok {
		return nil
	}
	packed, err := s.Model().ReadCoils(0, device.ValveCount)
	if err != nil {
		return nil
	}
	bits := make([]bool, device.ValveCount)
	for i := range bits {
		bits[i] = packed[i/8]&(1<<uint(i%8)) != 0
	}
	return bits
}

// FlowUnits returns the flow controller units in layout order.
func (r *Rig) FlowUnits() []byte {
	return append([]byte(nil), r.flows...)
}

// Connect is a no-op for the simulated rig.
func (r *Rig) Connect(ctx context.Context) error {
	return nil
}

// Close flushes and closes every unit storage.
func (r *Rig) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for unit, s := range r.units {
		if s.storage == nil {
			continue
		}
		if err := s.storage.Save(s.model); err != nil {
			errs = append(errs, fmt.Errorf("unit %d: %w", unit, err))
		}
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("unit %d: %w", unit, err))
		}
		s.storage = nil
	}
	// Mapped images are gone; the units go silent.
	r.units = make(map[byte]*Slave)
	return errors.Join(errs...)
}
