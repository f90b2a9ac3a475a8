// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func setClimate(bus *fakeBus, unit byte, temperature, humidity float32) {
	regs := bus.table(bus.input, unit)
	regs[0], regs[1] = Float32ToWords(temperature)
	regs[2], regs[3] = Float32ToWords(humidity)
}

func TestHumiditySensor_Read(t *testing.T) {
	bus := newFakeBus()
	s, err := NewHumiditySensor(bus, 28)
	require.NoError(t, err)
	setClimate(bus, 28, 21.5, 43.25)

	r, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Reading{Temperature: 21.5, Humidity: 43.25}, r)
	assert.Equal(t, call{op: "read input", unit: 28, address: RegClimate, value: ClimateWords}, bus.calls[0])
}

func TestHumiditySensor_WordOrder(t *testing.T) {
	// 25.0 is 0x41C80000: the low word 0x0000 travels first.
	assert.Equal(t, float32(25), WordsToFloat32(0x0000, 0x41C8))
	lo, hi := Float32ToWords(50)
	assert.Equal(t, uint16(0x0000), lo)
	assert.Equal(t, uint16(0x4248), hi)
}

func TestAbsoluteHumidity(t *testing.T) {
	// Reference psychrometric value at 25 °C and 50 %: 11.5 g/m³.
	assert.InEpsilon(t, 0.0115, AbsoluteHumidity(25, 50), 0.01)
	assert.InDelta(t, 0.011537, AbsoluteHumidity(25, 50), 1e-6)
	assert.Equal(t, 0.0, AbsoluteHumidity(25, 0))
	assert.Greater(t, AbsoluteHumidity(30, 50), AbsoluteHumidity(20, 50))
}

func TestReadAbsoluteHumidity(t *testing.T) {
	bus := newFakeBus()
	s, err := NewHumiditySensor(bus, 28)
	require.NoError(t, err)
	setClimate(bus, 28, 25, 50)

	h, err := s.ReadAbsoluteHumidity(context.Background())
	require.NoError(t, err)
	assert.InEpsilon(t, 0.0115, h, 0.01)

	bus.fail["read input"] = errLineDown
	_, err = s.ReadAbsoluteHumidity(context.Background())
	assert.ErrorIs(t, err, errLineDown)
}

func TestFloatWords_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Float32Range(-100, 200).Draw(t, "v")
		lo, hi := Float32ToWords(v)
		if got := WordsToFloat32(lo, hi); got != v {
			t.Fatalf("got %v, want %v", got, v)
		}
	})
}
