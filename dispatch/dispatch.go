// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dispatch answers sensor requests addressed to this slave.
//
// A byte arrival notification classifies the first byte of a frame against
// the slave address and nothing else. The main loop then consumes that
// classification: on a match it reads the rest of the request, samples the
// sensor and replies; on a mismatch it flushes the receiver. The notification
// is re-armed only once the cycle is over, so a cycle is never interrupted by
// the next frame.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/dhtbridge/metrics"
	"github.com/GermanBionicSystems/dhtbridge/rtu"
)

// State is the classification left by the notification handler.
type State int32

const (
	Idle State = iota
	AddressMatched
	AddressMismatched
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AddressMatched:
		return "AddressMatched"
	case AddressMismatched:
		return "AddressMismatched"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Cycle outcomes, as reported to metrics.
const (
	OutcomeOK              = "ok"
	OutcomeCRCInvalid      = "crc_invalid"
	OutcomeUnknownType     = "unknown_type"
	OutcomeSensorError     = "sensor_error"
	OutcomeWriteError      = "write_error"
	OutcomeFrameTimeout    = "frame_timeout"
	OutcomeAddressMismatch = "address_mismatch"
)

// Link is the serial transport. *link.Port implements it.
type Link interface {
	// ReadByte blocks until a byte is received or ctx is done.
	ReadByte(ctx context.Context) (byte, error)
	Write(b []byte) (int, error)
	// Flush discards pending received bytes.
	Flush() error
	// Listen registers the byte arrival handler.
	Listen(h func(b byte)) error
	// Arm delivers the next received byte to the handler, once.
	Arm()
}

// Sampler returns a denoised reading. *sampler.Sampler implements it.
type Sampler interface {
	Sample(ctx context.Context, rt rtu.RequestType) (uint16, error)
}

// Opts holds the dispatcher configuration.
type Opts struct {
	// Address is the slave address answered to.
	Address byte
	// FrameTimeout bounds the wait for each remaining request byte. 0 waits
	// forever.
	FrameTimeout time.Duration
	// Pacing is the pause after a matched cycle before listening again.
	Pacing time.Duration
	// FlushHold is how long the receiver is held off on a mismatch.
	FlushHold time.Duration
	// Indicator, if set, is driven high on a matched address and low on a
	// mismatch.
	Indicator gpio.PinOut
	// Diag receives the human readable trace. nil discards it.
	Diag io.Writer
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Metrics can be nil.
	Metrics *metrics.Metrics
}

// DefaultOpts answers address 0x06.
var DefaultOpts = Opts{
	Address:      0x06,
	FrameTimeout: 500 * time.Millisecond,
	Pacing:       time.Second,
	FlushHold:    10 * time.Millisecond,
}

// Dispatcher runs the request/response cycles.
type Dispatcher struct {
	link    Link
	sampler Sampler
	opts    Opts
	diag    rtu.Diag
	log     *zap.Logger

	// state is written by the handler and swapped back to Idle by the loop.
	state atomic.Int32
	wake  chan struct{}
}

// New returns a Dispatcher serving requests from l with readings from s. The
// Opts can be nil.
func New(l Link, s Sampler, opts *Opts) (*Dispatcher, error) {
	if l == nil || s == nil {
		return nil, errors.New("dispatch: nil link or sampler")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dispatcher{
		link:    l,
		sampler: s,
		opts:    *opts,
		diag:    rtu.Diag{W: opts.Diag},
		log:     opts.Logger,
		wake:    make(chan struct{}, 1),
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	return d, nil
}

// HandleByte is the byte arrival handler. It only classifies b.
func (d *Dispatcher) HandleByte(b byte) {
	st := AddressMismatched
	if b == d.opts.Address {
		st = AddressMatched
	}
	d.state.Store(int32(st))
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// State returns the pending classification without consuming it.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// consume returns the pending classification and resets it to Idle.
func (d *Dispatcher) consume() State {
	return State(d.state.Swap(int32(Idle)))
}

// Run registers the handler and serves cycles until ctx is done or the link
// fails.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.link.Listen(d.HandleByte); err != nil {
		return err
	}
	d.log.Info("listening", zap.Uint8("address", d.opts.Address))
	d.link.Arm()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}
		if err := d.Step(ctx, d.consume()); err != nil {
			return err
		}
	}
}

// Step processes one consumed classification and re-arms the notification
// when it handled a frame. Only context and link failures are returned.
func (d *Dispatcher) Step(ctx context.Context, st State) error {
	switch st {
	case AddressMatched:
		return d.serve(ctx)
	case AddressMismatched:
		return d.reject(ctx)
	}
	return nil
}

func (d *Dispatcher) serve(ctx context.Context) error {
	start := time.Now()
	d.indicate(gpio.High)

	frame := make([]byte, rtu.RequestSize)
	frame[0] = d.opts.Address
	for i := 1; i < len(frame); i++ {
		b, err := d.readByte(ctx)
		if err != nil {
			if ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			d.log.Warn("incomplete request", zap.Int("received", i), zap.Binary("frame", frame[:i]))
			d.diag.Event("Modbus request incomplete")
			if err := d.link.Flush(); err != nil {
				return err
			}
			return d.finish(ctx, OutcomeFrameTimeout, start)
		}
		frame[i] = b
	}
	d.diag.Frame("Modbus Request", frame)

	if !rtu.Validate(frame) {
		d.log.Warn("crc mismatch", zap.String("frame", rtu.HexDump(frame)))
		d.diag.Event("Modbus CRC invalid")
		return d.finish(ctx, OutcomeCRCInvalid, start)
	}

	rt := rtu.DecodeRequestType(frame)
	if rt == rtu.Unknown {
		d.log.Warn("unknown request type", zap.Uint8("code", frame[3]))
		d.diag.Event(fmt.Sprintf("Unknown request type 0x%02X", frame[3]))
		return d.finish(ctx, OutcomeUnknownType, start)
	}

	value, err := d.sampler.Sample(ctx, rt)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.log.Error("sensor read failed", zap.Stringer("request", rt), zap.Error(err))
		d.diag.Event(fmt.Sprintf("Sensor read failed: %v", err))
		return d.finish(ctx, OutcomeSensorError, start)
	}

	resp := rtu.EncodeResponse(d.opts.Address, value)
	if _, err := d.link.Write(resp); err != nil {
		d.log.Error("write response", zap.Error(err))
		return d.finish(ctx, OutcomeWriteError, start)
	}
	d.diag.Frame("Modbus Response", resp)
	d.diag.Value(rt, value)
	d.log.Debug("answered", zap.Stringer("request", rt), zap.Uint16("value", value))
	return d.finish(ctx, OutcomeOK, start)
}

// finish closes a matched cycle: pacing delay, then re-arm.
func (d *Dispatcher) finish(ctx context.Context, outcome string, start time.Time) error {
	d.diag.Separator()
	d.opts.Metrics.Observe(outcome, time.Since(start))
	if err := sleep(ctx, d.opts.Pacing); err != nil {
		return err
	}
	d.link.Arm()
	return nil
}

func (d *Dispatcher) reject(ctx context.Context) error {
	d.indicate(gpio.Low)
	if err := sleep(ctx, d.opts.FlushHold); err != nil {
		return err
	}
	if err := d.link.Flush(); err != nil {
		return err
	}
	d.log.Debug("wrong slave address")
	d.diag.Event("Wrong slave address")
	d.diag.Separator()
	d.opts.Metrics.Observe(OutcomeAddressMismatch, 0)
	d.link.Arm()
	return nil
}

func (d *Dispatcher) readByte(ctx context.Context) (byte, error) {
	if d.opts.FrameTimeout <= 0 {
		return d.link.ReadByte(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.FrameTimeout)
	defer cancel()
	return d.link.ReadByte(ctx)
}

func (d *Dispatcher) indicate(l gpio.Level) {
	if d.opts.Indicator == nil {
		return
	}
	if err := d.opts.Indicator.Out(l); err != nil {
		d.log.Warn("indicator", zap.Error(err))
	}
}

func sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
