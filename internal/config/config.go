// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Bus framing is fixed by the rig devices and is not read from the file.
const (
	BaudRate = 19200
	DataBits = 8
	Parity   = "N"
	StopBits = 1
)

// Config defines the global configuration structure
type Config struct {
	Serial     SerialConfig     `mapstructure:"serial"`
	Devices    DevicesConfig    `mapstructure:"devices"`
	Experiment ExperimentConfig `mapstructure:"experiment"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Simulator  SimulatorConfig  `mapstructure:"simulator"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path, "-" for stderr
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	BaudRate int    `mapstructure:"-"`
	DataBits int    `mapstructure:"-"`
	Parity   string `mapstructure:"-"`
	StopBits int    `mapstructure:"-"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// LineConfig describes one mass-flow controller.
type LineConfig struct {
	Name      string  `mapstructure:"name"`
	Unit      int     `mapstructure:"unit"`
	FullScale float64 `mapstructure:"full_scale"` // sccm
}

// DevicesConfig is the unit layout of the rig.
type DevicesConfig struct {
	Lines      []LineConfig `mapstructure:"lines"`
	ValveUnit  int          `mapstructure:"valve_unit"`
	SensorUnit int          `mapstructure:"sensor_unit"`
}

// ExperimentConfig holds the staged program parameters. Unset keys take
// their defaults; an explicit zero is kept, except for a non-positive
// cadence which falls back to 800ms.
type ExperimentConfig struct {
	Concentration     int           `mapstructure:"concentration"`
	Cadence           time.Duration `mapstructure:"cadence"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	Baseline          time.Duration `mapstructure:"baseline"`
	Recovery          time.Duration `mapstructure:"recovery"`
	HumidityThreshold float64       `mapstructure:"humidity_threshold"` // kg/m3
}

// MetricsConfig controls the Prometheus endpoint. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// PersistenceConfig defines where the simulator keeps its register images.
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // directory for "file" and "mmap"
}

// SimulatorConfig drives the in-process rig emulation.
type SimulatorConfig struct {
	Serve       string            `mapstructure:"serve"` // serial device to answer on
	Temperature float64           `mapstructure:"temperature"`
	Humidity    float64           `mapstructure:"humidity"` // relative, %
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"port":           "serial.device",
	"timeout":        "serial.timeout",
	"concentration":  "experiment.concentration",
	"cadence":        "experiment.cadence",
	"baseline":       "experiment.baseline",
	"recovery":       "experiment.recovery",
	"log-level":      "log.level",
	"log-file":       "log.file",
	"metrics-listen": "metrics.listen",
	"serve":          "simulator.serve",
	"temperature":    "simulator.temperature",
	"humidity":       "simulator.humidity",
	"persistence":    "simulator.persistence.type",
	"data-dir":       "simulator.persistence.path",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.timeout", 500*time.Millisecond)
	v.SetDefault("serial.idle_timeout", 60*time.Second)

	v.SetDefault("devices.lines", []map[string]any{
		{"name": "A", "unit": 1, "full_scale": 60.0},
		{"name": "B", "unit": 3, "full_scale": 60.0},
		{"name": "C", "unit": 5, "full_scale": 1500.0},
	})
	v.SetDefault("devices.valve_unit", 6)
	v.SetDefault("devices.sensor_unit", 28)

	v.SetDefault("experiment.concentration", 0)
	v.SetDefault("experiment.cadence", 800*time.Millisecond)
	v.SetDefault("experiment.settle_delay", 50*time.Millisecond)
	v.SetDefault("experiment.baseline", 30*time.Minute)
	v.SetDefault("experiment.recovery", 30*time.Minute)
	v.SetDefault("experiment.humidity_threshold", 0.01672)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "gasmix.log")

	v.SetDefault("simulator.temperature", 25.0)
	v.SetDefault("simulator.humidity", 50.0)
	v.SetDefault("simulator.persistence.type", "memory")
}

// LoadConfig loads configuration from file and the given flag set.
// A missing file is not an error unless configFile names it explicitly.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("gasmix")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gasmix")
		v.AddConfigPath("/etc/gasmix/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Serial)
	fixupExperiment(&config.Experiment)
	config.Simulator.Persistence.Type = strings.ToLower(config.Simulator.Persistence.Type)

	if err := config.Devices.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks unit addresses and full-scale values.
func (d *DevicesConfig) Validate() error {
	seen := make(map[string]bool)
	for _, l := range d.Lines {
		if l.Name == "" {
			return fmt.Errorf("config: flow line without a name")
		}
		if seen[l.Name] {
			return fmt.Errorf("config: duplicate flow line %q", l.Name)
		}
		seen[l.Name] = true
		if err := validateUnit(l.Unit); err != nil {
			return fmt.Errorf("config: line %s: %w", l.Name, err)
		}
		if l.FullScale <= 0 {
			return fmt.Errorf("config: line %s: full scale must be positive, got %v", l.Name, l.FullScale)
		}
	}
	if err := validateUnit(d.ValveUnit); err != nil {
		return fmt.Errorf("config: valve: %w", err)
	}
	if err := validateUnit(d.SensorUnit); err != nil {
		return fmt.Errorf("config: sensor: %w", err)
	}
	return nil
}

func validateUnit(unit int) error {
	if unit < 1 || unit > 247 {
		return fmt.Errorf("unit %d out of range 1..247", unit)
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.BaudRate = BaudRate
	s.DataBits = DataBits
	s.Parity = Parity
	s.StopBits = StopBits
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
}

// fixupExperiment only replaces a cadence that would spin the worker.
// Zero baseline, recovery and settle delay are meaningful and kept.
func fixupExperiment(e *ExperimentConfig) {
	if e.Cadence <= 0 {
		e.Cadence = 800 * time.Millisecond
	}
}

// Default returns the configuration used when no file and no flags are given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// Defaults are static; failing here is a programming error.
		panic(err)
	}
	return cfg
}
