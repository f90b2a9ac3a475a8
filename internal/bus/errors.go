// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevice is returned by Connect when no serial device is named.
	ErrNoDevice = errors.New("bus: no serial device given")
	// ErrNotOpen is wrapped in a CommunicationError when a request is made
	// before Connect succeeded.
	ErrNotOpen = errors.New("bus: transport is not open")
)

// CommunicationError reports that a unit could not be reached or answered
// badly: line down, timeout, framing or CRC failure, echo mismatch or a
// Modbus exception response.
type CommunicationError struct {
	Op   string
	Unit byte
	Err  error
}

func (e *CommunicationError) Error() string {
	if e.Unit == 0 {
		return fmt.Sprintf("bus: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("bus: %s unit %d: %v", e.Op, e.Unit, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// IsCommunication reports whether err is, or wraps, a *CommunicationError.
func IsCommunication(err error) bool {
	var ce *CommunicationError
	return errors.As(err, &ce)
}
