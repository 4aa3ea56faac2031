// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht22

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3/cpu"
)

// Phase is a step of a single acquisition.
type Phase int

const (
	Idle Phase = iota
	StartPulse
	PreparationResponse
	DataAcquisition
	Done
	Fail
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case StartPulse:
		return "StartPulse"
	case PreparationResponse:
		return "PreparationResponse"
	case DataAcquisition:
		return "DataAcquisition"
	case Done:
		return "Done"
	case Fail:
		return "Fail"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

const (
	numBits = 40
	// MinInterval is the shortest SenseContinuous interval the sensor supports.
	MinInterval = 2 * time.Second
)

// Clock provides the time base of the driver. Sleep must be accurate to a
// few microseconds.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type hostClock struct{}

func (hostClock) Now() time.Time { return time.Now() }

// Sleep spins for short delays since the scheduler cannot wake a goroutine
// within the tens of microseconds the protocol requires.
func (hostClock) Sleep(d time.Duration) {
	if d < time.Millisecond {
		cpu.Nanospin(d)
		return
	}
	time.Sleep(d)
}

// HostClock is the Clock backed by the system timer.
var HostClock Clock = hostClock{}

// Opts holds the timing of the protocol.
type Opts struct {
	// WakeHold is how long the line is driven high before the start condition.
	WakeHold time.Duration
	// StartHold is how long the line is driven low to request a conversion.
	StartHold time.Duration
	// ReleaseHold is how long the line is driven high before switching to input.
	ReleaseHold time.Duration
	// ResponseDelay is the wait between the two polls of the acknowledge pulse.
	ResponseDelay time.Duration
	// BitSampleOffset is the delay from the rising edge of a bit to the
	// sample. It must sit between the 0 (~26µs) and 1 (~70µs) pulse widths.
	BitSampleOffset time.Duration
	// Timeout bounds every wait on a level change. 0 means wait forever.
	Timeout time.Duration
	// Clock is the time base. nil means HostClock.
	Clock Clock
}

// DefaultOpts holds the timing from the datasheet.
var DefaultOpts = Opts{
	WakeHold:        10 * time.Millisecond,
	StartHold:       2 * time.Millisecond,
	ReleaseHold:     40 * time.Microsecond,
	ResponseDelay:   80 * time.Microsecond,
	BitSampleOffset: 40 * time.Microsecond,
	Timeout:         time.Millisecond,
}

// Reading is the result of one acquisition, in sensor units.
type Reading struct {
	// Humidity is in tenths of %RH.
	Humidity uint16
	// Temperature is in tenths of °C, bit 15 is the sign.
	Temperature uint16
	// ChecksumOK is false when Humidity and Temperature were zeroed because
	// the checksum byte did not match.
	ChecksumOK bool
	// Raw holds the five received bytes.
	Raw [5]byte
}

// Decode assembles the 40 received bits, most significant first. A checksum
// mismatch is not an error: both readings are forced to zero.
func Decode(raw [5]byte) Reading {
	r := Reading{Raw: raw}
	if checksum(raw) != raw[4] {
		return r
	}
	r.Humidity = uint16(raw[0])<<8 | uint16(raw[1])
	r.Temperature = uint16(raw[2])<<8 | uint16(raw[3])
	r.ChecksumOK = true
	return r
}

// checksum adds the four data bytes, the carry out of bit 7 is dropped.
func checksum(raw [5]byte) byte {
	return raw[0] + raw[1] + raw[2] + raw[3]
}

// Dev represents a DHT22 on a single GPIO pin.
type Dev struct {
	p    gpio.PinIO
	opts Opts
	clk  Clock

	mu       sync.Mutex
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New returns a Dev reading the sensor on p. The Opts can be nil.
func New(p gpio.PinIO, opts *Opts) (*Dev, error) {
	if p == nil {
		return nil, errors.New("dht22: nil pin")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.BitSampleOffset <= 0 {
		return nil, errors.New("dht22: BitSampleOffset must be positive")
	}
	clk := o.Clock
	if clk == nil {
		clk = HostClock
	}
	return &Dev{p: p, opts: o, clk: clk}, nil
}

// Acquire runs one full exchange with the sensor. A checksum mismatch yields
// a Reading with ChecksumOK false and a nil error.
func (d *Dev) Acquire() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquire()
}

func (d *Dev) acquire() (Reading, error) {
	if err := d.sendStart(); err != nil {
		return Reading{}, fmt.Errorf("dht22: %s: %w", StartPulse, err)
	}
	if err := d.receivePreparation(); err != nil {
		return Reading{}, err
	}
	raw, err := d.receiveData()
	if err != nil {
		return Reading{}, err
	}
	return Decode(raw), nil
}

// sendStart wakes the sensor, requests a conversion and releases the line.
func (d *Dev) sendStart() error {
	if err := d.p.Out(gpio.High); err != nil {
		return err
	}
	d.clk.Sleep(d.opts.WakeHold)
	if err := d.p.Out(gpio.Low); err != nil {
		return err
	}
	d.clk.Sleep(d.opts.StartHold)
	if err := d.p.Out(gpio.High); err != nil {
		return err
	}
	d.clk.Sleep(d.opts.ReleaseHold)
	return d.p.In(gpio.PullUp, gpio.NoEdge)
}

// receivePreparation follows the acknowledge pulse: the line goes low, then
// high, then low again when the first bit starts.
func (d *Dev) receivePreparation() error {
	if err := d.waitWhile(gpio.High, PreparationResponse, -1); err != nil {
		return err
	}
	d.clk.Sleep(d.opts.ResponseDelay)
	return d.waitWhile(gpio.High, PreparationResponse, -1)
}

func (d *Dev) receiveData() ([5]byte, error) {
	var raw [5]byte
	for i := 0; i < numBits; i++ {
		if err := d.waitWhile(gpio.Low, DataAcquisition, i); err != nil {
			return raw, err
		}
		d.clk.Sleep(d.opts.BitSampleOffset)
		if d.p.Read() == gpio.High {
			raw[i/8] |= 0x80 >> (i % 8)
		}
		if err := d.waitWhile(gpio.High, DataAcquisition, i); err != nil {
			return raw, err
		}
	}
	return raw, nil
}

// waitWhile polls the line until it leaves level l.
func (d *Dev) waitWhile(l gpio.Level, phase Phase, bit int) error {
	if d.opts.Timeout <= 0 {
		for d.p.Read() == l {
		}
		return nil
	}
	deadline := d.clk.Now().Add(d.opts.Timeout)
	for d.p.Read() == l {
		if d.clk.Now().After(deadline) {
			return &ReadTimeoutError{Phase: phase, Bit: bit}
		}
	}
	return nil
}

// Sense implements physic.SenseEnv. The pressure is always 0. A checksum
// mismatch returns a ChecksumError.
func (d *Dev) Sense(e *physic.Env) error {
	e.Temperature = 0
	e.Pressure = 0
	e.Humidity = 0

	r, err := d.Acquire()
	if err != nil {
		return err
	}
	if !r.ChecksumOK {
		return &ChecksumError{Got: r.Raw[4], Want: checksum(r.Raw)}
	}
	e.Humidity = physic.RelativeHumidity(r.Humidity) * physic.MilliRH
	e.Temperature = physic.ZeroCelsius + (physic.Celsius/10)*physic.Temperature(SignedTemperature(r.Temperature))
	return nil
}

// SignedTemperature converts the sign-magnitude sensor temperature to tenths
// of °C.
func SignedTemperature(raw uint16) int16 {
	v := int16(raw & 0x7fff)
	if raw&0x8000 != 0 {
		return -v
	}
	return v
}

// SenseContinuous implements physic.SenseEnv. The minimum interval is
// MinInterval. Readings that fail are skipped. Call Halt() to stop.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < MinInterval {
		return nil, fmt.Errorf("dht22: invalid duration. minimum %s", MinInterval)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown != nil {
		return nil, errors.New("dht22: sense continuous already running")
	}
	d.shutdown = make(chan struct{})
	stop := d.shutdown
	ch := make(chan physic.Env, 16)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e := physic.Env{}
				if err := d.Sense(&e); err == nil {
					select {
					case ch <- e:
					default:
					}
				}
			}
		}
	}()
	return ch, nil
}

// Halt interrupts a running SenseContinuous() operation.
func (d *Dev) Halt() error {
	d.mu.Lock()
	stop := d.shutdown
	d.shutdown = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	return nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Celsius / 10
	e.Pressure = 0
	e.Humidity = physic.MilliRH
}

func (d *Dev) String() string {
	return fmt.Sprintf("dht22: %s", d.p)
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
