// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package experiment runs the staged exposure program on the rig: it applies
// concentration presets, samples flows and humidity in a background worker
// and publishes a status line per iteration.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ffutop/gasmix/internal/bus"
	"github.com/ffutop/gasmix/internal/config"
	"github.com/ffutop/gasmix/internal/device"
)

var (
	// ErrNoPort is returned when an operation needs the bus but no port is open.
	ErrNoPort = errors.New("experiment: no serial port is open")
	// ErrBusy is returned for bus operations requested while a run or a
	// shutdown is in progress.
	ErrBusy = errors.New("experiment: controller is busy")
)

// Recorder observes the controller, e.g. to export metrics.
type Recorder interface {
	ObserveStatus(s Status)
	ObservePhase(p Phase)
	ObserveSetpoint(line string, value float64)
	ObserveSampleError()
}

type nopRecorder struct{}

func (nopRecorder) ObserveStatus(Status)            {}
func (nopRecorder) ObservePhase(Phase)              {}
func (nopRecorder) ObserveSetpoint(string, float64) {}
func (nopRecorder) ObserveSampleError()             {}

// Option configures a Controller.
type Option func(*Controller)

func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithClock replaces time.Now for the program schedule.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

type line struct {
	name string
	*device.FlowController
}

// Controller owns the bus and the rig devices.
type Controller struct {
	cfg    config.ExperimentConfig
	bus    *bus.Transport
	lines  []line
	valves *device.ValveBank
	sensor *device.HumiditySensor

	hub      *hub
	recorder Recorder
	now      func() time.Time

	mu            sync.Mutex
	concentration int
	run           *run
	closing       bool // Shutdown owns the bus
}

// run is one worker lifetime.
type run struct {
	stopped  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

func (r *run) requestStop() {
	r.stopOnce.Do(func() {
		r.stopped.Store(true)
		close(r.stop)
	})
}

func (r *run) active() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// New builds the devices of the layout on top of tr. The layout must have
// three flow lines, applied in preset order A, B, C.
func New(cfg *config.Config, tr *bus.Transport, opts ...Option) (*Controller, error) {
	if len(cfg.Devices.Lines) != 3 {
		return nil, fmt.Errorf("experiment: need 3 flow lines, got %d", len(cfg.Devices.Lines))
	}

	c := &Controller{
		cfg:           cfg.Experiment,
		bus:           tr,
		hub:           newHub(),
		recorder:      nopRecorder{},
		now:           time.Now,
		concentration: cfg.Experiment.Concentration,
	}
	for _, l := range cfg.Devices.Lines {
		fc, err := device.NewFlowController(tr, l.Unit, l.FullScale)
		if err != nil {
			return nil, fmt.Errorf("experiment: line %s: %w", l.Name, err)
		}
		c.lines = append(c.lines, line{name: l.Name, FlowController: fc})
	}

	var err error
	if c.valves, err = device.NewValveBank(tr, cfg.Devices.ValveUnit); err != nil {
		return nil, fmt.Errorf("experiment: valves: %w", err)
	}
	if c.sensor, err = device.NewHumiditySensor(tr, cfg.Devices.SensorUnit); err != nil {
		return nil, fmt.Errorf("experiment: sensor: %w", err)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lines returns the flow line names in preset order.
func (c *Controller) Lines() []string {
	names := make([]string, len(c.lines))
	for i, l := range c.lines {
		names[i] = l.name
	}
	return names
}

// Running reports whether a worker is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running()
}

func (c *Controller) running() bool {
	return c.run != nil && c.run.active()
}

func (c *Controller) busy() bool {
	return c.closing || c.running()
}

// SetPort (re)opens the bus on port.
func (c *Controller) SetPort(ctx context.Context, port string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy() {
		return ErrBusy
	}
	if err := c.bus.Connect(ctx, port); err != nil {
		slog.Info("try another port", "port", port, "err", err)
		return err
	}
	return nil
}

// SetConcentration selects the code of the next run. Codes without a
// preset are accepted and apply nothing.
func (c *Controller) SetConcentration(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.concentration = code
}

// Start launches the worker.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy() {
		return ErrBusy
	}
	if !c.bus.IsOpen() {
		return ErrNoPort
	}

	r := &run{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	c.run = r
	go c.worker(r, c.concentration)
	return nil
}

// Stop asks the worker to exit after the current iteration. A preset being
// applied is always completed.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()

	if r != nil {
		r.requestStop()
	}
}

// Wait blocks until the worker exits and returns the error that ended it.
// Communication failures never end a run.
func (c *Controller) Wait() error {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()

	if r == nil {
		return nil
	}
	<-r.done
	return r.err
}

// Subscribe returns a channel of statuses and its cancel function. A slow
// subscriber misses statuses; it never delays the worker.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	return c.hub.subscribe()
}

// Shutdown stops the run, drives all lines to zero, closes the valves and
// releases the port. Failing steps are logged and the sequence goes on.
//
// Start, SetPort and SetManualFlow fail with ErrBusy until Shutdown returns.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrBusy
	}
	c.closing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.closing = false
		c.mu.Unlock()
	}()

	c.Stop()
	if err := c.Wait(); err != nil {
		slog.Error("run ended with error", "err", err)
	}

	if !c.bus.IsOpen() {
		return nil
	}
	for _, l := range c.lines {
		c.setFlow(ctx, l, 0)
		c.settle()
	}
	if err := c.valves.Close(ctx); err != nil {
		slog.Info("failed to close valves", "err", err)
	}
	c.settle()

	return c.bus.Close()
}

// SetManualFlow sets one line while no run is active and opens the default
// valve, or closes the bank for a zero flow.
func (c *Controller) SetManualFlow(ctx context.Context, name string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy() {
		return ErrBusy
	}
	if !c.bus.IsOpen() {
		return ErrNoPort
	}

	var target *line
	for i := range c.lines {
		if c.lines[i].name == name {
			target = &c.lines[i]
		}
	}
	if target == nil {
		return fmt.Errorf("%w: no flow line %q", device.ErrInvalidArgument, name)
	}

	if err := target.SetFlow(ctx, value); err != nil {
		slog.Info("cannot init flow", "line", name, "err", err)
		return err
	}
	c.recorder.ObserveSetpoint(name, value)

	var err error
	if value == 0 {
		err = c.valves.Close(ctx)
	} else {
		err = c.valves.OpenDefault(ctx)
	}
	if err != nil {
		return err
	}
	slog.Info("flow readback", "line", name, "value", target.ReadFlow(ctx))
	return nil
}

func (c *Controller) worker(r *run, code int) {
	defer close(r.done)

	// Bus operations are bounded by the transport timeout; Stop is observed
	// between iterations only.
	ctx := context.Background()

	prog := NewProgram(code, c.now(), c.cfg.Baseline, c.cfg.Recovery, c.cfg.HumidityThreshold)
	slog.Info("experiment started", "concentration", code, "baseline", c.cfg.Baseline, "recovery", c.cfg.Recovery)
	c.recorder.ObservePhase(prog.Phase())
	c.applyPreset(ctx, code)

	var humidity float64
	for !r.stopped.Load() {
		status, err := c.sample(ctx)
		switch {
		case err == nil:
			humidity = status.Humidity
			status.Phase = prog.Phase()
			c.hub.publish(status)
			c.recorder.ObserveStatus(status)
			slog.Info(status.String())
		case bus.IsCommunication(err):
			slog.Info("sampling failed", "err", err)
			c.recorder.ObserveSampleError()
		default:
			slog.Error("sampling aborted", "err", err)
			r.err = err
			return
		}

		for _, a := range prog.Step(c.now(), humidity) {
			switch a.Kind {
			case ActionApply:
				slog.Info("stage transition", "phase", prog.Phase(), "concentration", a.Code, "humidity", humidity)
				c.applyPreset(ctx, a.Code)
			case ActionFinish:
				slog.Info("experiment finished")
				r.requestStop()
			}
		}
		c.recorder.ObservePhase(prog.Phase())

		select {
		case <-r.stop:
		case <-time.After(c.cfg.Cadence):
		}
	}
	slog.Info("experiment stopped", "phase", prog.Phase())
}

// sample reads the lines and the humidity, in that order.
func (c *Controller) sample(ctx context.Context) (Status, error) {
	var flows [3]float64
	for i, l := range c.lines {
		flows[i] = l.ReadFlow(ctx)
		c.settle()
	}
	h, err := c.sensor.ReadAbsoluteHumidity(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Time: c.now(), A: flows[0], B: flows[1], C: flows[2], Humidity: h}, nil
}

// applyPreset writes A, B, C and the valve pattern, settling after each.
func (c *Controller) applyPreset(ctx context.Context, code int) {
	p, ok := LookupPreset(code)
	if !ok {
		slog.Warn("unknown concentration code, nothing applied", "concentration", code)
		return
	}
	for i, flow := range p.Flows() {
		c.setFlow(ctx, c.lines[i], flow)
		c.settle()
	}
	if err := c.valves.OpenPattern(ctx, p.Valves); err != nil {
		logWriteError("failed to set valves", err)
	}
	c.settle()
}

func (c *Controller) setFlow(ctx context.Context, l line, value float64) {
	if err := l.SetFlow(ctx, value); err != nil {
		logWriteError("failed to set flow", err, "line", l.name)
		return
	}
	c.recorder.ObserveSetpoint(l.name, value)
}

func logWriteError(msg string, err error, args ...any) {
	args = append(args, "err", err)
	if bus.IsCommunication(err) {
		slog.Info(msg, args...)
		return
	}
	slog.Error(msg, args...)
}

func (c *Controller) settle() {
	time.Sleep(c.cfg.SettleDelay)
}
