// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var closedBank = []bool{false, false, false, false, false, false, false, false}

func TestValveBank_Close(t *testing.T) {
	bus := newFakeBus()
	vb, err := NewValveBank(bus, 6)
	require.NoError(t, err)

	require.NoError(t, vb.Close(context.Background()))
	require.NoError(t, vb.Close(context.Background()))

	want := []call{
		{op: "write coils", unit: 6, bits: closedBank},
		{op: "write coils", unit: 6, bits: closedBank},
	}
	if diff := cmp.Diff(want, bus.calls, cmp.AllowUnexported(call{})); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestValveBank_OpenDefault(t *testing.T) {
	bus := newFakeBus()
	vb, err := NewValveBank(bus, 6)
	require.NoError(t, err)

	require.NoError(t, vb.OpenDefault(context.Background()))

	want := []call{
		{op: "write coils", unit: 6, bits: closedBank},
		{op: "write coil", unit: 6, address: ValveDefault, bits: []bool{true}},
	}
	if diff := cmp.Diff(want, bus.calls, cmp.AllowUnexported(call{})); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestValveBank_OpenDefaultStopsWhenCloseFails(t *testing.T) {
	bus := newFakeBus()
	bus.fail["write coils"] = errLineDown
	vb, err := NewValveBank(bus, 6)
	require.NoError(t, err)

	assert.ErrorIs(t, vb.OpenDefault(context.Background()), errLineDown)
	assert.Len(t, bus.calls, 1)
}

func TestValveBank_OpenPattern(t *testing.T) {
	bus := newFakeBus()
	vb, err := NewValveBank(bus, 6)
	require.NoError(t, err)

	pattern := []bool{false, true, false, true, false, true, true, false}
	require.NoError(t, vb.OpenPattern(context.Background(), pattern))
	require.Len(t, bus.calls, 1)
	assert.Equal(t, pattern, bus.calls[0].bits)

	for _, n := range []int{0, 7, 9} {
		err := vb.OpenPattern(context.Background(), make([]bool, n))
		assert.ErrorIs(t, err, ErrInvalidArgument, "pattern of %d", n)
	}
	assert.Len(t, bus.calls, 1, "a bad pattern must not reach the bus")
}
