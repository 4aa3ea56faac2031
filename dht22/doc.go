// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dht22 bit-bangs the single wire protocol of an AOSONG DHT22
// (AM2302) temperature/humidity sensor on a GPIO pin.
//
// The host wakes the sensor, pulls the line low to request a conversion and
// releases it. The sensor acknowledges with a low/high pulse pair and then
// sends 40 bits. Each bit is a ~50µs low followed by a high pulse of ~26µs
// for 0 or ~70µs for 1. The first 16 bits are relative humidity in tenths of
// a percent, the next 16 bits temperature in tenths of a degree with bit 15
// as sign, the last 8 bits the low byte of the sum of the first four bytes.
//
// Every wait on the line is bounded by Opts.Timeout so a missing sensor
// returns a ReadTimeoutError instead of hanging the caller.
//
// The dht22.Dev type implements the physic.SenseEnv interface. The pressure
// is never set.
//
// # Datasheet
//
// https://cdn-shop.adafruit.com/datasheets/Digital+humidity+and+temperature+sensor+AM2302.pdf
package dht22
