// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package experiment

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestLookupPreset(t *testing.T) {
	tests := []struct {
		code int
		want Preset
	}{
		{0, Preset{A: 0, B: 0, C: 1000, Valves: []bool{false, true, false, false, false, true, true, false}}},
		{1, Preset{A: 0, B: 5, C: 995, Valves: []bool{false, true, false, false, true, true, true, false}}},
		{50, Preset{A: 25, B: 0, C: 975, Valves: []bool{false, true, false, true, false, true, true, false}}},
	}
	for _, tt := range tests {
		got, ok := LookupPreset(tt.code)
		if !ok {
			t.Fatalf("no preset for code %d", tt.code)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("preset %d mismatch (-want +got):\n%s", tt.code, diff)
		}
	}
}

func TestLookupPreset_Unknown(t *testing.T) {
	for _, code := range []int{-1, 2, 10, 49, 51} {
		_, ok := LookupPreset(code)
		assert.False(t, ok, "code %d", code)
	}
}

func TestLookupPreset_ReturnsCopy(t *testing.T) {
	p, _ := LookupPreset(0)
	p.Valves[0] = true

	again, _ := LookupPreset(0)
	assert.False(t, again.Valves[0])
}

func TestStatusString(t *testing.T) {
	s := Status{A: 0, B: 4.998, C: 994.95, Humidity: 0.011537}
	assert.Equal(t, "0.000 4.998 994.950 1.154e-02", s.String())
}
