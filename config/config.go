// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the bridge configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all bridge configuration.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Slave     SlaveConfig     `yaml:"slave"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	// Diag enables the human readable frame trace on stdout.
	Diag bool `yaml:"diag"`
}

type SerialConfig struct {
	Port     string `yaml:"port"` // e.g. /dev/ttyS0
	BaudRate int    `yaml:"baud_rate"`
}

type SlaveConfig struct {
	Address        int `yaml:"address"`
	FrameTimeoutMs int `yaml:"frame_timeout_ms"` // per byte, 0 waits forever
	PacingMs       int `yaml:"pacing_ms"`
	FlushHoldMs    int `yaml:"flush_hold_ms"`
}

type SensorConfig struct {
	Pin        string `yaml:"pin"` // periph pin name, e.g. GPIO4
	Samples    int    `yaml:"samples"`
	CooldownMs int    `yaml:"cooldown_ms"`
	TimeoutUs  int    `yaml:"timeout_us"` // per level change, 0 waits forever
}

type IndicatorConfig struct {
	Pin string `yaml:"pin"` // empty disables the indicator
}

type LoggingConfig struct {
	Level  string        `yaml:"level"`  // debug, info, warn, error
	Format string        `yaml:"format"` // console or json
	File   LogFileConfig `yaml:"file"`
}

type LogFileConfig struct {
	Filename   string `yaml:"filename"` // empty logs to stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"` // empty disables /metrics
}

// Default returns the configuration of the reference board.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyS0",
			BaudRate: 9600,
		},
		Slave: SlaveConfig{
			Address:        0x06,
			FrameTimeoutMs: 500,
			PacingMs:       1000,
			FlushHoldMs:    10,
		},
		Sensor: SensorConfig{
			Pin:        "GPIO4",
			Samples:    9,
			CooldownMs: 450,
			TimeoutUs:  1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File: LogFileConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Diag: true,
	}
}

// Load reads path on top of the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv reads DHTBRIDGE_PORT, DHTBRIDGE_BAUD, DHTBRIDGE_ADDRESS,
// DHTBRIDGE_SENSOR_PIN, DHTBRIDGE_INDICATOR_PIN, DHTBRIDGE_SAMPLES,
// DHTBRIDGE_LOG_LEVEL and DHTBRIDGE_METRICS_ADDR.
func (c *Config) applyEnv() error {
	if v := os.Getenv("DHTBRIDGE_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv("DHTBRIDGE_SENSOR_PIN"); v != "" {
		c.Sensor.Pin = v
	}
	if v := os.Getenv("DHTBRIDGE_INDICATOR_PIN"); v != "" {
		c.Indicator.Pin = v
	}
	if v := os.Getenv("DHTBRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DHTBRIDGE_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddr = v
	}
	for name, dst := range map[string]*int{
		"DHTBRIDGE_BAUD":    &c.Serial.BaudRate,
		"DHTBRIDGE_ADDRESS": &c.Slave.Address,
		"DHTBRIDGE_SAMPLES": &c.Sensor.Samples,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		// Base 0 accepts 0x06 for the address.
		n, err := strconv.ParseInt(v, 0, 32)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		*dst = int(n)
	}
	return nil
}

// Validate checks the values the bridge cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Serial.Port == "" {
		errs = append(errs, errors.New("serial.port is empty"))
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud_rate %d", c.Serial.BaudRate))
	}
	if c.Slave.Address < 0 || c.Slave.Address > 0xff {
		errs = append(errs, fmt.Errorf("slave.address %d out of range", c.Slave.Address))
	}
	if c.Sensor.Pin == "" {
		errs = append(errs, errors.New("sensor.pin is empty"))
	}
	if c.Sensor.Samples < 1 {
		errs = append(errs, fmt.Errorf("sensor.samples %d", c.Sensor.Samples))
	}
	if c.Slave.FrameTimeoutMs < 0 || c.Slave.PacingMs < 0 || c.Slave.FlushHoldMs < 0 ||
		c.Sensor.CooldownMs < 0 || c.Sensor.TimeoutUs < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (s SlaveConfig) FrameTimeout() time.Duration {
	return time.Duration(s.FrameTimeoutMs) * time.Millisecond
}

func (s SlaveConfig) Pacing() time.Duration {
	return time.Duration(s.PacingMs) * time.Millisecond
}

func (s SlaveConfig) FlushHold() time.Duration {
	return time.Duration(s.FlushHoldMs) * time.Millisecond
}

func (s SensorConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownMs) * time.Millisecond
}

func (s SensorConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutUs) * time.Microsecond
}
