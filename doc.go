// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dhtbridge serves DHT22 temperature and humidity readings to a bus
// master over a Modbus-like serial protocol.
//
// The building blocks live in subpackages: common holds the CRC16 engine,
// rtu the frame codec, dht22 the sensor driver, sampler the median filter,
// link the serial transport and dispatch the address gated request loop.
// cmd/dhtbridge wires them together.
package dhtbridge
