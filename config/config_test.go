// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cfg, Default()); diff != "" {
		t.Errorf("Load() difference (-got +want):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
serial:
  port: /dev/ttyUSB0
slave:
  address: 17
  pacing_ms: 250
sensor:
  samples: 5
indicator:
  pin: GPIO17
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.Serial.Port = "/dev/ttyUSB0"
	want.Slave.Address = 17
	want.Slave.PacingMs = 250
	want.Sensor.Samples = 5
	want.Indicator.Pin = "GPIO17"
	if diff := cmp.Diff(cfg, want); diff != "" {
		t.Errorf("Load() difference (-got +want):\n%s", diff)
	}
	if cfg.Slave.Pacing() != 250*time.Millisecond {
		t.Errorf("Pacing() = %s", cfg.Slave.Pacing())
	}
	if cfg.Sensor.Timeout() != time.Millisecond {
		t.Errorf("Timeout() = %s", cfg.Sensor.Timeout())
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("DHTBRIDGE_PORT", "/dev/ttyAMA0")
	t.Setenv("DHTBRIDGE_ADDRESS", "0x2a")
	t.Setenv("DHTBRIDGE_BAUD", "19200")
	t.Setenv("DHTBRIDGE_LOG_LEVEL", "debug")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Serial.Port != "/dev/ttyAMA0" || cfg.Slave.Address != 42 || cfg.Serial.BaudRate != 19200 || cfg.Logging.Level != "debug" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}

	t.Setenv("DHTBRIDGE_SAMPLES", "many")
	if _, err := Load(""); err == nil {
		t.Error("Load() accepted a malformed number")
	}
}

func TestLoadInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"yaml":    "serial: [",
		"address": "slave:\n  address: 300\n",
		"samples": "sensor:\n  samples: 0\n",
		"port":    "serial:\n  port: \"\"\n",
		"timeout": "sensor:\n  timeout_us: -1\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, content)); err == nil {
				t.Error("Load() accepted an invalid config")
			}
		})
	}
}
