// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/gasmix/internal/config"
)

const (
	// Default timeout
	serialTimeout     = 500 * time.Millisecond
	serialIdleTimeout = 60 * time.Second
)

// serialPort has configuration and I/O controller.
type serialPort struct {
	// Serial port configuration.
	serial.Config

	IdleTimeout time.Duration

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port         io.ReadWriteCloser
	lastActivity time.Time
	closeTimer   *time.Timer
}

func newSerialConfig(cfg config.SerialConfig) serial.Config {
	sc := serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	}
	if sc.Timeout <= 0 {
		sc.Timeout = serialTimeout
	}
	if cfg.RS485 {
		sc.RS485 = serial.RS485Config{
			Enabled:            true,
			DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RtsHighAfterSend,
			RxDuringTx:         cfg.RxDuringTx,
		}
	}
	return sc
}

func (sp *serialPort) Connect(ctx context.Context) (err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	return sp.connect(ctx)
}

// connect connects to the serial port if it is not connected. Caller must hold the mutex.
func (sp *serialPort) connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if sp.port == nil {
		if sp.Config.Address == "" {
			return fmt.Errorf("could not open serial port: no device given")
		}
		port, err := serial.Open(&sp.Config)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", sp.Config.Address, err)
		}
		sp.port = port
	}
	return nil
}

func (sp *serialPort) Close() (err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.closeTimer != nil {
		sp.closeTimer.Stop()
	}
	return sp.close()
}

// close closes the serial port if it is connected. Caller must hold the mutex.
func (sp *serialPort) close() (err error) {
	if sp.port != nil {
		err = sp.port.Close()
		sp.port = nil
	}
	return
}

func (sp *serialPort) startCloseTimer() {
	if sp.IdleTimeout <= 0 {
		return
	}
	if sp.closeTimer == nil {
		sp.closeTimer = time.AfterFunc(sp.IdleTimeout, sp.closeIdle)
	} else {
		sp.closeTimer.Reset(sp.IdleTimeout)
	}
}

// closeIdle closes the connection if last activity is passed behind IdleTimeout.
// The next Send reopens it.
func (sp *serialPort) closeIdle() {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.IdleTimeout <= 0 {
		return
	}

	if idle := time.Since(sp.lastActivity); idle >= sp.IdleTimeout {
		slog.Debug("closing serial port due to idle timeout", "device", sp.Config.Address, "idle", idle)
		sp.close()
	}
}
