// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"context"
	"math"
)

// Pressure is the ambient pressure assumed by AbsoluteHumidity, hPa.
const Pressure = 1013.25

// Reading is one sample of the humidity transducer.
type Reading struct {
	Temperature float64 // °C
	Humidity    float64 // relative, %
}

// HumiditySensor is the temperature and humidity transducer.
type HumiditySensor struct {
	bus  Bus
	unit byte
}

func NewHumiditySensor(bus Bus, unit int) (*HumiditySensor, error) {
	u, err := checkUnit(unit)
	if err != nil {
		return nil, err
	}
	return &HumiditySensor{bus: bus, unit: u}, nil
}

func (s *HumiditySensor) Unit() byte {
	return s.unit
}

// Read fetches temperature and relative humidity in one request.
func (s *HumiditySensor) Read(ctx context.Context) (Reading, error) {
	words, err := s.bus.ReadInputRegisters(ctx, s.unit, RegClimate, ClimateWords)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		Temperature: float64(WordsToFloat32(words[0], words[1])),
		Humidity:    float64(WordsToFloat32(words[2], words[3])),
	}, nil
}

// ReadAbsoluteHumidity reads the sensor and converts to kg/m³.
func (s *HumiditySensor) ReadAbsoluteHumidity(ctx context.Context) (float64, error) {
	r, err := s.Read(ctx)
	if err != nil {
		return 0, err
	}
	return AbsoluteHumidity(r.Temperature, r.Humidity), nil
}

// AbsoluteHumidity returns water vapour density in kg/m³ from temperature
// (°C) and relative humidity (%), using the Magnus formula with the
// enhancement factor at the fixed Pressure.
func AbsoluteHumidity(temperature, humidity float64) float64 {
	ew := 6.112 * math.Exp(17.62*temperature/(243.12+temperature))
	f := 1.0016 + 3.15e-6*Pressure - 0.074/Pressure
	e := humidity / 100 * f * ew
	return e * 100 / 461.5 / (temperature + 273.15)
}

// WordsToFloat32 decodes a float32 sent low word first.
func WordsToFloat32(lo, hi uint16) float32 {
	return math.Float32frombits(uint32(lo) | uint32(hi)<<16)
}

// Float32ToWords is the inverse of WordsToFloat32.
func Float32ToWords(v float32) (lo, hi uint16) {
	bits := math.Float32bits(v)
	return uint16(bits), uint16(bits >> 16)
}
