// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

// Holding registers of a mass-flow controller.
const (
	RegNetAddress   uint16 = 0x0000
	RegNumber       uint16 = 0x0001
	RegFlags1       uint16 = 0x0002
	RegFlags2       uint16 = 0x0003
	RegFlowSetpoint uint16 = 0x0004
	RegFlowReadback uint16 = 0x0005
	RegPortSpeed    uint16 = 0x0006
)

// FlowScale is the register count at full-scale flow.
const FlowScale = 10000

// Valve relay layout.
const (
	ValveCount   = 8
	ValveDefault = 5 // coil opened by OpenDefault
)

// Input registers of the humidity transducer: two float32 values, each as a
// word pair with the low word first.
const (
	RegClimate   uint16 = 0x0000
	ClimateWords        = 4
)
