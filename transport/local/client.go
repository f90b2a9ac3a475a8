// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ffutop/gasmix/internal/config"
	"github.com/ffutop/gasmix/internal/rigsim"
	"github.com/ffutop/gasmix/internal/rigsim/persistence"
	"github.com/ffutop/gasmix/modbus"
)

// Client implements the Downstream interface for the simulated rig.
type Client struct {
	*rigsim.Rig
}

// NewClient builds the simulated rig for the device layout.
func NewClient(devices config.DevicesConfig, cfg config.SimulatorConfig) (*Client, error) {
	switch cfg.Persistence.Type {
	case "file", "mmap":
		slog.Info("Initializing simulated rig with persistent register images",
			"type", cfg.Persistence.Type, "dir", cfg.Persistence.Path)
		if cfg.Persistence.Path != "" {
			if err := os.MkdirAll(cfg.Persistence.Path, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
	default:
		slog.Info("Initializing simulated rig with memory storage (non-persistent)")
	}

	rig, err := rigsim.New(devices, func(unit byte) (persistence.Storage, error) {
		return persistence.Open(cfg.Persistence, unit)
	})
	if err != nil {
		return nil, err
	}
	if err := rig.SetClimate(cfg.Temperature, cfg.Humidity); err != nil {
		rig.Close()
		return nil, err
	}
	return &Client{Rig: rig}, nil
}

// Send processes the PDU in-process.
func (c *Client) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	resp, err := c.Rig.Send(ctx, slaveID, pdu)
	if err != nil {
		return resp, err
	}
	slog.Debug("simulated exchange", "unit", slaveID, "func", pdu.FunctionCode, "resp", resp.FunctionCode)
	return resp, nil
}
