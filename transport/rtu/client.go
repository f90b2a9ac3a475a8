// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/gasmix/internal/config"
	"github.com/ffutop/gasmix/modbus"
	rtupacket "github.com/ffutop/gasmix/modbus/rtu"
	"github.com/ffutop/gasmix/transport"
)

var _ transport.Downstream = (*Client)(nil)

// Client is the master end of the rig bus. It implements
// transport.Downstream; one request is in flight at a time.
type Client struct {
	serialPort
}

// NewClient returns a Client for cfg. The port is opened lazily on the
// first exchange and closed again after IdleTimeout without traffic.
func NewClient(cfg config.SerialConfig) *Client {
	c := &Client{}
	c.Config = newSerialConfig(cfg)
	c.IdleTimeout = cfg.IdleTimeout
	if c.IdleTimeout == 0 {
		c.IdleTimeout = serialIdleTimeout
	}
	return c
}

// Send addresses pdu to unit and returns the answer. Exception answers come
// back as *modbus.Error.
func (c *Client) Send(ctx context.Context, unit byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	req := &rtupacket.ApplicationDataUnit{SlaveID: unit, Pdu: pdu}
	frame, err := req.Encode()
	if err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("failed to encode ADU: %w", err)
	}

	answer, err := c.exchange(ctx, frame)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	resp, err := rtupacket.Decode(answer)
	if err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("failed to decode response ADU: %w", err)
	}
	if err := req.Verify(resp); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	return resp.Pdu, nil
}

// exchange writes one request frame and reads the matching answer.
func (c *Client) exchange(ctx context.Context, frame []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	c.lastActivity = time.Now()
	c.startCloseTimer()

	slog.Debug("send to rig unit", "unit", frame[0], "request", hex.EncodeToString(frame))
	if _, err := c.port.Write(frame); err != nil {
		return nil, fmt.Errorf("write %s: %w", c.Config.Address, err)
	}

	// Nothing can arrive before the request and the answer have been
	// clocked out at the line rate.
	wait := frameDelay(c.BaudRate, len(frame)+rtupacket.CalculateResponseLength(frame))
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
	}

	answer, err := rtupacket.ReadResponse(frame[0], frame[1], c.port, time.Now().Add(c.Config.Timeout))
	if err != nil {
		return nil, err
	}
	slog.Debug("recv from rig unit", "unit", frame[0], "response", hex.EncodeToString(answer))
	return answer, nil
}

// frameDelay is the time needed to transmit chars characters plus the
// 3.5 character inter-frame gap. Above 19200 baud the fixed 750us and
// 1750us timings apply.
func frameDelay(baudRate, chars int) time.Duration {
	charUS, gapUS := 750, 1750
	if baudRate > 0 && baudRate <= 19200 {
		charUS = 15000000 / baudRate
		gapUS = 35000000 / baudRate
	}
	return time.Duration(charUS*chars+gapUS) * time.Microsecond
}
