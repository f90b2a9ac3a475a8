// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffutop/gasmix/internal/bus"
	"github.com/ffutop/gasmix/internal/config"
	"github.com/ffutop/gasmix/internal/experiment"
	"github.com/ffutop/gasmix/internal/metrics"
	"github.com/ffutop/gasmix/transport"
	"github.com/ffutop/gasmix/transport/local"
	"github.com/ffutop/gasmix/transport/rtu"
)

var (
	configFile string
	cfg        *config.Config
)

// Candidate device nodes of USB and on-board serial adapters.
var portPatterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*", "/dev/tty.usbserial*", "/dev/cu.usbserial*"}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gasmix",
		Short: "gasmix drives a gas-mixing rig over Modbus RTU",
		Long: `gasmix drives a gas-mixing rig over Modbus RTU.

It sets mass-flow controller setpoints, switches the valve bank, samples the
humidity transducer and runs the staged exposure program.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.LoadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			setupLogger(cfg.Log)
			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&configFile, "config", "c", "", "config file path")
	globalFlags.StringP("port", "p", "", "serial device of the rig bus")
	globalFlags.Duration("timeout", 0, "per-request timeout")
	globalFlags.String("log-level", "info", "log level (debug, info, warn, error)")
	globalFlags.String("log-file", "", `log file, "-" for stderr`)

	cmd.AddCommand(
		NewRunCommand(),
		NewFlowCommand(),
		NewSimulateCommand(),
		NewPortsCommand(),
	)
	return cmd
}

func addProgramFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntP("concentration", "n", 0, "concentration code (0, 1, 50)")
	f.Duration("cadence", 0, "sampling period")
	f.Duration("baseline", 0, "time before the baseline preset is applied")
	f.Duration("recovery", 0, "time the program runs after recovery is armed")
	f.String("metrics-listen", "", "address to serve Prometheus metrics on, e.g. :9120")
}

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the staged program on the rig",
		Long: `Run the staged program on the rig.

Status lines "A B C humidity" are printed to stdout once per sampling
iteration. On SIGINT or SIGTERM, or when the program finishes, all lines are
driven to zero and the valves are closed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tr := bus.New(cfg.Serial)
			return runProgram(ctx, cmd.OutOrStdout(), tr, cfg.Serial.Device)
		},
	}
	addProgramFlags(cmd)
	return cmd
}

func runProgram(ctx context.Context, out io.Writer, tr *bus.Transport, port string) error {
	var opts []experiment.Option
	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		names := make([]string, len(cfg.Devices.Lines))
		for i, l := range cfg.Devices.Lines {
			names[i] = l.Name
		}
		m = metrics.New(names)
		opts = append(opts, experiment.WithRecorder(m))
	}

	ctrl, err := experiment.New(cfg, tr, opts...)
	if err != nil {
		return err
	}
	if m != nil {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil {
				slog.Error("metrics server stopped", "err", err)
			}
		}()
	}

	if err := ctrl.SetPort(ctx, port); err != nil {
		return err
	}
	ctrl.SetConcentration(cfg.Experiment.Concentration)

	statuses, cancel := ctrl.Subscribe()
	defer cancel()
	if err := ctrl.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Wait() }()

	var runErr error
loop:
	for {
		select {
		case s := <-statuses:
			fmt.Fprintln(out, s)
		case runErr = <-done:
			// Print what was published before the worker exited.
			for len(statuses) > 0 {
				fmt.Fprintln(out, <-statuses)
			}
			break loop
		case <-ctx.Done():
			slog.Info("Shutting down...")
			break loop
		}
	}

	// Shutdown uses a fresh context; the signal already canceled ctx.
	if err := ctrl.Shutdown(context.Background()); err != nil {
		slog.Error("failed to close the port", "err", err)
	}
	return runErr
}

func NewFlowCommand() *cobra.Command {
	var (
		line  string
		value float64
	)
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Set the flow of one line",
		Long: `Set the flow of one line.

A non-zero flow opens the default valve, a zero flow closes the valve bank.
The setpoint stays in effect after the command exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tr := bus.New(cfg.Serial)
			defer tr.Close()

			ctrl, err := experiment.New(cfg, tr)
			if err != nil {
				return err
			}
			if err := ctrl.SetPort(cmd.Context(), cfg.Serial.Device); err != nil {
				return err
			}
			return ctrl.SetManualFlow(cmd.Context(), line, value)
		},
	}
	cmd.Flags().StringVar(&line, "line", "C", "flow line name")
	cmd.Flags().Float64Var(&value, "value", 0, "flow, sccm")
	return cmd
}

func NewSimulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run against a simulated rig",
		Long: `Run against a simulated rig.

Without --serve the staged program runs in-process against the simulator.
With --serve the simulated units answer as Modbus RTU slaves on the given
serial device, so that another master can be tested against them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sim, err := local.NewClient(cfg.Devices, cfg.Simulator)
			if err != nil {
				return err
			}

			defer sim.Close()

			if cfg.Simulator.Serve != "" {
				serial := cfg.Serial
				serial.Device = cfg.Simulator.Serve
				var srv transport.Upstream = rtu.NewServer(serial)
				defer srv.Close()
				return srv.Start(ctx, sim.Send)
			}

			tr := bus.New(cfg.Serial, bus.WithDialer(func(config.SerialConfig) transport.Downstream {
				return sim
			}))
			return runProgram(ctx, cmd.OutOrStdout(), tr, "simulator")
		},
	}
	addProgramFlags(cmd)
	f := cmd.Flags()
	f.String("serve", "", "serial device to answer on as the simulated rig")
	f.Float64("temperature", 25, "simulated temperature, °C")
	f.Float64("humidity", 50, "simulated relative humidity, %")
	f.String("persistence", "memory", "register image storage (memory, file, mmap)")
	f.String("data-dir", "", "directory of register images for file and mmap storage")
	return cmd
}

func NewPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List candidate serial devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := listPorts()
			if err != nil {
				return err
			}
			for _, p := range ports {
				cmd.Println(p)
			}
			return nil
		},
	}
}

func listPorts() ([]string, error) {
	var ports []string
	for _, pattern := range portPatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if fi, err := os.Stat(m); err == nil && fi.Mode()&os.ModeDevice != 0 {
				ports = append(ports, m)
			}
		}
	}
	sort.Strings(ports)
	return ports, nil
}
