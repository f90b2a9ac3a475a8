// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"

	"github.com/ffutop/gasmix/modbus"
)

// RequestHandler answers one request addressed to slaveID.
// Servers call it for every well-formed frame they receive.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// Upstream is a source of requests: a master on the other end of a line
// talking to devices we emulate.
type Upstream interface {
	// Start serves requests and blocks until ctx is done or the line fails.
	Start(ctx context.Context, handler RequestHandler) error
	Close() error
}

// Downstream is the line the rig devices hang off. It acts as a Client.
type Downstream interface {
	// Send sends a PDU to a specific SlaveID and returns the response PDU.
	// Exception responses come back as *modbus.Error.
	Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)
	Connect(ctx context.Context) error
	Close() error
}
