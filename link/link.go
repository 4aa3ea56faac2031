// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package link turns a serial byte stream into the transport the dispatcher
// needs: blocking byte reads, writes, input flushing and a one-shot
// "byte arrived" notification standing in for a receive interrupt.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	rxBuffer    = 256
	readTimeout = 100 * time.Millisecond
)

var (
	ErrClosed           = errors.New("link: port closed")
	ErrAlreadyListening = errors.New("link: listener already registered")
)

type inputResetter interface {
	ResetInputBuffer() error
}

// Port is a byte oriented full duplex link.
type Port struct {
	rw io.ReadWriter

	rx   chan byte
	armc chan struct{}
	done chan struct{}
	dead chan struct{}
	err  error

	wmu       sync.Mutex
	mu        sync.Mutex
	listening bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open opens the serial port at path, 8N1 at baud.
func Open(path string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("link: failed to open %s: %w", path, err)
	}
	// A read timeout lets the pump notice Close.
	if err := sp.SetReadTimeout(readTimeout); err != nil {
		sp.Close()
		return nil, fmt.Errorf("link: failed to set timeout: %w", err)
	}
	if err := sp.ResetInputBuffer(); err != nil {
		sp.Close()
		return nil, fmt.Errorf("link: failed to reset input: %w", err)
	}
	return New(sp), nil
}

// New returns a Port over rw and starts receiving. If rw implements
// io.Closer it is closed by Close.
func New(rw io.ReadWriter) *Port {
	p := &Port{
		rw:   rw,
		rx:   make(chan byte, rxBuffer),
		armc: make(chan struct{}, 1),
		done: make(chan struct{}),
		dead: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.pump()
	return p
}

func (p *Port) pump() {
	defer p.wg.Done()
	defer close(p.dead)
	var buf [64]byte
	for {
		n, err := p.rw.Read(buf[:])
		for _, b := range buf[:n] {
			select {
			case p.rx <- b:
			case <-p.done:
				p.err = ErrClosed
				return
			}
		}
		if err != nil {
			select {
			case <-p.done:
				err = ErrClosed
			default:
				if errors.Is(err, io.EOF) {
					err = ErrClosed
				}
			}
			p.err = err
			return
		}
		select {
		case <-p.done:
			p.err = ErrClosed
			return
		default:
		}
	}
}

// ReadByte blocks until a byte is received, ctx is done or the stream fails.
func (p *Port) ReadByte(ctx context.Context) (byte, error) {
	select {
	case b := <-p.rx:
		return b, nil
	default:
	}
	select {
	case b := <-p.rx:
		return b, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-p.dead:
		// Bytes received before the stream failed are still delivered.
		select {
		case b := <-p.rx:
			return b, nil
		default:
			return 0, p.err
		}
	}
}

// Write sends b.
func (p *Port) Write(b []byte) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.rw.Write(b)
}

// Flush discards the bytes received so far.
func (p *Port) Flush() error {
drain:
	for {
		select {
		case <-p.rx:
		default:
			break drain
		}
	}
	if r, ok := p.rw.(inputResetter); ok {
		return r.ResetInputBuffer()
	}
	return nil
}

// Listen registers h as the byte arrival handler. h runs on its own goroutine
// and receives at most one byte per Arm call: delivering a byte disarms the
// notification until the next Arm.
func (p *Port) Listen(h func(b byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listening {
		return ErrAlreadyListening
	}
	p.listening = true
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.done:
				return
			case <-p.armc:
			}
			select {
			case <-p.done:
				return
			case b := <-p.rx:
				h(b)
			}
		}
	}()
	return nil
}

// Arm enables delivery of the next received byte to the handler.
func (p *Port) Arm() {
	select {
	case p.armc <- struct{}{}:
	default:
	}
}

// Close stops the port and closes the underlying stream.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		if c, ok := p.rw.(io.Closer); ok {
			err = c.Close()
		}
		p.wg.Wait()
	})
	return err
}

func (p *Port) String() string {
	return fmt.Sprintf("link: %T", p.rw)
}
