// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/grid-x/serial"

	"github.com/ffutop/gasmix/internal/config"
	"github.com/ffutop/gasmix/modbus"
	"github.com/ffutop/gasmix/modbus/crc"
	rtupacket "github.com/ffutop/gasmix/modbus/rtu"
	"github.com/ffutop/gasmix/transport"
)

var _ transport.Upstream = (*Server)(nil)

// Server implements a Modbus RTU Server (Upstream).
// It acts as a Slave on the serial bus, answering requests from an external Master.
type Server struct {
	Config config.SerialConfig

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig) *Server {
	return &Server{
		Config: cfg,
	}
}

// Start opens the serial device and serves requests until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	spConfig := newSerialConfig(s.Config)

	port, err := serial.Open(&spConfig)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	defer port.Close()
	slog.Info("RTU server listening", "device", s.Config.Device)

	return s.serve(ctx, port, handler)
}

// serve runs the scan loop until ctx is done or Close is called. The port
// is closed on the way out to unblock a pending read.
func (s *Server) serve(ctx context.Context, port io.ReadWriteCloser, handler transport.RequestHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return s.scanLoop(ctx, port, handler)
}

func (s *Server) scanLoop(ctx context.Context, port io.ReadWriter, handler transport.RequestHandler) error {
	buf := make([]byte, rtupacket.MaxSize+4)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Read 1 byte to unblock
		n, err := port.Read(buf[:1])
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			continue
		}
		if n == 0 {
			continue
		}

		// Read header (7 bytes covers ByteCount of write multiple coils)
		current := 1
		need := 7

		for current < need {
			n, err := port.Read(buf[current:need])
			if err != nil {
				break
			}
			current += n
		}

		if current < 2 {
			continue
		}

		functionCode := buf[1]

		expectedLen, err := rtupacket.CalculateRequestLength(functionCode, buf[:current])
		if err != nil {
			slog.Debug("dropping request", "err", err)
			continue
		}
		if expectedLen > len(buf) {
			continue
		}

		for current < expectedLen {
			n, err := port.Read(buf[current:expectedLen])
			if err != nil {
				break
			}
			current += n
		}

		if current != expectedLen {
			continue
		}

		req, err := rtupacket.Decode(buf[:expectedLen])
		if err != nil {
			slog.Debug("dropping request", "err", err)
			continue
		}
		// Decode aliases buf; the handler may keep the data.
		data := make([]byte, len(req.Pdu.Data))
		copy(data, req.Pdu.Data)

		respPDU, err := handler(ctx, req.SlaveID, modbus.ProtocolDataUnit{FunctionCode: functionCode, Data: data})
		if err != nil {
			// No answer on the line; the master times out as with an absent unit.
			slog.Debug("request not answered", "slaveID", req.SlaveID, "err", err)
			continue
		}

		if _, err := port.Write(encodeResponse(req.SlaveID, respPDU)); err != nil {
			slog.Error("failed to write response", "err", err)
		}
	}
}

// encodeResponse builds [SlaveID] [Func] [Data] [CRC].
func encodeResponse(slaveID byte, pdu modbus.ProtocolDataUnit) []byte {
	respLen := 1 + 1 + len(pdu.Data) + 2
	respBuf := make([]byte, respLen)
	respBuf[0] = slaveID
	respBuf[1] = pdu.FunctionCode
	copy(respBuf[2:], pdu.Data)

	var c crc.CRC
	sum := c.Reset().PushBytes(respBuf[:respLen-2]).Value()
	respBuf[respLen-1] = byte(sum >> 8)
	respBuf[respLen-2] = byte(sum)
	return respBuf
}

// Close stops a running Start and releases its port.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
