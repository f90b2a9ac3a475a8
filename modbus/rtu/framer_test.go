// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRequestLength(t *testing.T) {
	tests := []struct {
		name     string
		funcCode byte
		header   []byte
		want     int
		wantErr  bool
	}{
		{"ReadHoldingRegisters", 0x03, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, 8, false},
		{"ReadInputRegisters", 0x04, []byte{0x1C, 0x04, 0x00, 0x00, 0x00, 0x04}, 8, false},
		{"WriteSingleRegister", 0x06, []byte{0x01, 0x06, 0x00, 0x00, 0xAA, 0xBB}, 8, false},
		{"WriteMultipleCoils_ShortHeader", 0x0F, []byte{0x06, 0x0F, 0x00, 0x00, 0x00, 0x08}, 0, true},
		{"WriteMultipleCoils_Valid", 0x0F, []byte{0x06, 0x0F, 0x00, 0x00, 0x00, 0x08, 0x01}, 7 + 1 + 2, false},
		{"WriteMultipleRegisters_Unsupported", 0x10, []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x01, 0x02}, 0, true},
		{"UnknownFunction", 0x99, []byte{0x01, 0x99}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateRequestLength(tt.funcCode, tt.header)
			if (err != nil) != tt.wantErr {
				t.Errorf("CalculateRequestLength() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("CalculateRequestLength() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateResponseLength(t *testing.T) {
	tests := []struct {
		name string
		adu  []byte
		want int
	}{
		{"ReadOneHolding", []byte{0x05, 0x03, 0x00, 0x05, 0x00, 0x01, 0, 0}, 4 + 1 + 2},
		{"ReadFourInputs", []byte{0x1C, 0x04, 0x00, 0x00, 0x00, 0x04, 0, 0}, 4 + 1 + 8},
		{"WriteRegister", []byte{0x05, 0x06, 0x00, 0x04, 0x00, 0x10, 0, 0}, 8},
		{"WriteCoil", []byte{0x06, 0x05, 0x00, 0x05, 0xFF, 0x00, 0, 0}, 8},
		{"WriteCoils", []byte{0x06, 0x0F, 0x00, 0x00, 0x00, 0x08, 0x01, 0x62, 0, 0}, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateResponseLength(tt.adu))
		})
	}
}

func TestReadResponse_SkipsNoise(t *testing.T) {
	frame := []byte{0x05, 0x03, 0x02, 0x01, 0xF4, 0x00, 0x00}
	input := append([]byte{0x00, 0x7F}, frame...)

	got, err := ReadResponse(0x05, 0x03, bytes.NewReader(input), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestReadResponse_Exception(t *testing.T) {
	frame := []byte{0x06, 0x8F, 0x02, 0xAA, 0xBB}

	got, err := ReadResponse(0x06, 0x0F, bytes.NewReader(frame), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestReadResponse_InvalidLength(t *testing.T) {
	frame := []byte{0x05, 0x03, 0x00}

	_, err := ReadResponse(0x05, 0x03, bytes.NewReader(frame), time.Now().Add(time.Second))
	var lengthErr *InvalidLengthError
	require.True(t, errors.As(err, &lengthErr), "got %v", err)
	assert.Equal(t, byte(0), lengthErr.Length)
}

func TestReadResponse_Deadline(t *testing.T) {
	_, err := ReadResponse(0x05, 0x03, bytes.NewReader([]byte{0x05}), time.Now().Add(-time.Second))
	assert.ErrorIs(t, err, ErrRequestTimedOut)
}

func TestReadResponse_ResyncsOnRepeatedAddress(t *testing.T) {
	// A stray 0x05 right before the real header must not swallow it.
	frame := []byte{0x05, 0x06, 0x00, 0x04, 0x13, 0x88, 0xAA, 0xBB}
	input := append([]byte{0x05}, frame...)

	got, err := ReadResponse(0x05, 0x06, bytes.NewReader(input), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestReadResponse_Truncated(t *testing.T) {
	_, err := ReadResponse(0x05, 0x03, bytes.NewReader([]byte{0x05, 0x03, 0x02, 0x01}), time.Now().Add(time.Second))
	assert.ErrorIs(t, err, io.EOF)
}
