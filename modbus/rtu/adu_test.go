// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"pgregory.net/rapid"

	"github.com/ffutop/gasmix/modbus"
)

func TestRTUEncodeDecode(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adu := &ApplicationDataUnit{
			SlaveID: rapid.Byte().Draw(t, "SlaveID"),
			Pdu: modbus.ProtocolDataUnit{
				FunctionCode: rapid.Byte().Draw(t, "FunctionCode"),
				Data:         rapid.SliceOfN(rapid.Byte(), 0, MaxSize-4).Draw(t, "Data"),
			},
		}

		raw, err := adu.Encode()
		if err != nil {
			t.Fatalf("error while encoding: %+v", err)
		}

		decoded, err := Decode(raw)
		if err != nil {
			t.Fatalf("error while decoding: %+v", err)
		}

		if !cmp.Equal(adu, decoded, cmpopts.EquateEmpty()) {
			t.Errorf("invalid adu: %s", cmp.Diff(adu, decoded, cmpopts.EquateEmpty()))
		}
	})
}

func TestEncode_KnownFrame(t *testing.T) {
	adu := &ApplicationDataUnit{
		SlaveID: 0x01,
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}},
	}
	raw, err := adu.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if diff := cmp.Diff(want, raw); diff != "" {
		t.Errorf("encoded frame mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_TooLong(t *testing.T) {
	adu := &ApplicationDataUnit{Pdu: modbus.ProtocolDataUnit{Data: make([]byte, MaxSize)}}
	if _, err := adu.Encode(); err == nil {
		t.Fatal("expected error for oversized pdu")
	}
}

func TestDecode_BadCRC(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x03, 0x02, 0xAA, 0xBB, 0xFF, 0xFF}); err == nil {
		t.Fatal("expected crc error")
	}
}

func TestVerify(t *testing.T) {
	req := &ApplicationDataUnit{SlaveID: 5, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x06}}

	tests := []struct {
		name    string
		resp    *ApplicationDataUnit
		wantErr bool
		wantMb  bool
	}{
		{"Echo", &ApplicationDataUnit{SlaveID: 5, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0, 4, 0, 1}}}, false, false},
		{"OtherSlave", &ApplicationDataUnit{SlaveID: 6, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0}}}, true, false},
		{"Exception", &ApplicationDataUnit{SlaveID: 5, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x86, Data: []byte{0x02}}}, true, true},
		{"OtherFunction", &ApplicationDataUnit{SlaveID: 5, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0}}}, true, false},
		{"Empty", &ApplicationDataUnit{SlaveID: 5, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x06}}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := req.Verify(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			var mbErr *modbus.Error
			if errors.As(err, &mbErr) != tt.wantMb {
				t.Errorf("Verify() error %v, want modbus exception %v", err, tt.wantMb)
			}
		})
	}
}
