// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"unsafe"

	"github.com/ffutop/gasmix/internal/rigsim/model"
)

// Image layout of one unit:
//
//	Coils:            256 bytes     (offset 0)
//	HoldingRegisters: 256 * 2 bytes (offset 256)
//	InputRegisters:   256 * 2 bytes (offset 768)
//
// Total size: 1280 bytes.
const (
	sizeCoils   = model.Size
	sizeHolding = model.Size * 2
	sizeInput   = model.Size * 2
	totalSize   = sizeCoils + sizeHolding + sizeInput

	offsetCoils   = 0
	offsetHolding = offsetCoils + sizeCoils
	offsetInput   = offsetHolding + sizeHolding
)

// mapBytesToModel constructs a DataModel backed by data without copying.
// Registers are stored in host byte order, so an image is not portable
// between architectures of different endianness.
func mapBytesToModel(data []byte) *model.DataModel {
	m := &model.DataModel{}

	m.Coils = data[offsetCoils : offsetCoils+sizeCoils]

	holdingBytes := data[offsetHolding : offsetHolding+sizeHolding]
	m.HoldingRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&holdingBytes[0])), sizeHolding/2)

	inputBytes := data[offsetInput : offsetInput+sizeInput]
	m.InputRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&inputBytes[0])), sizeInput/2)

	return m
}
