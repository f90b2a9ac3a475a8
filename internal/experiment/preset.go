// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package experiment

// Preset is one concentration step: a flow per line and the valve pattern.
type Preset struct {
	A, B, C float64 // sccm
	Valves  []bool  // coil 0..7
}

// CodeBaseline is the concentration code applied between the stages.
const CodeBaseline = 0

var presets = map[int]Preset{
	0:  {A: 0, B: 0, C: 1000, Valves: pattern(0, 1, 0, 0, 0, 1, 1, 0)},
	1:  {A: 0, B: 5, C: 995, Valves: pattern(0, 1, 0, 0, 1, 1, 1, 0)},
	50: {A: 25, B: 0, C: 975, Valves: pattern(0, 1, 0, 1, 0, 1, 1, 0)},
}

func pattern(bits ...int) []bool {
	p := make([]bool, len(bits))
	for i, b := range bits {
		p[i] = b != 0
	}
	return p
}

// LookupPreset returns the preset of a concentration code. The returned
// valve slice is a copy.
func LookupPreset(code int) (Preset, bool) {
	p, ok := presets[code]
	if !ok {
		return Preset{}, false
	}
	p.Valves = append([]bool(nil), p.Valves...)
	return p, true
}

// Flows returns the line setpoints in application order.
func (p Preset) Flows() [3]float64 {
	return [3]float64{p.A, p.B, p.C}
}
