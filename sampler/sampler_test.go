// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sampler

import (
	"context"
	"errors"
	"testing"

	"github.com/GermanBionicSystems/dhtbridge/dht22"
	"github.com/GermanBionicSystems/dhtbridge/rtu"
)

type playback struct {
	readings []dht22.Reading
	err      error
	errAt    int
	count    int
}

func (p *playback) Acquire() (dht22.Reading, error) {
	defer func() { p.count++ }()
	if p.err != nil && p.count == p.errAt {
		return dht22.Reading{}, p.err
	}
	return p.readings[p.count%len(p.readings)], nil
}

func readings(temps ...uint16) []dht22.Reading {
	r := make([]dht22.Reading, len(temps))
	for ix, v := range temps {
		r[ix] = dht22.Reading{Temperature: v, Humidity: 1000 - v, ChecksumOK: true}
	}
	return r
}

func TestMedian(t *testing.T) {
	for _, tc := range []struct {
		name   string
		values []uint16
		want   float64
	}{
		{"odd", []uint16{5, 3, 8, 1, 9, 2, 7, 4, 6}, 5},
		{"even", []uint16{1, 2, 3, 4}, 2.5},
		{"single", []uint16{42}, 42},
		{"empty", nil, 0},
		{"duplicates", []uint16{7, 7, 1, 7, 0}, 7},
	} {
		t.Run(tc.name, func(t *testing.T) {
			in := append([]uint16(nil), tc.values...)
			if got := Median(tc.values); got != tc.want {
				t.Errorf("Median(%v) = %v, want %v", tc.values, got, tc.want)
			}
			for ix := range in {
				if in[ix] != tc.values[ix] {
					t.Fatal("Median modified its input")
				}
			}
		})
	}
}

func TestMedianTemperature(t *testing.T) {
	for _, tc := range []struct {
		name   string
		values []uint16
		want   uint16
	}{
		{"positive", []uint16{5, 3, 8, 1, 9, 2, 7, 4, 6}, 5},
		// -0.3 to 0.6°C.
		{"mixed signs", []uint16{0x8003, 0x8002, 0x8001, 1, 2, 3, 4, 5, 6}, 2},
		{"negative", []uint16{0x8001, 0x8003, 0x8002}, 0x8002},
		{"even across zero", []uint16{0x8003, 0x8001, 1, 5}, 0},
		{"even negative", []uint16{0x8005, 0x8003, 0x8001, 1}, 0x8002},
		{"even truncates toward zero", []uint16{0x8004, 0x8001, 0x8002, 0x8003}, 0x8002},
		{"empty", nil, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := MedianTemperature(tc.values); got != tc.want {
				t.Errorf("MedianTemperature(%#04x) = %#04x, want %#04x", tc.values, got, tc.want)
			}
		})
	}
}

func TestSampleNegativeTemperature(t *testing.T) {
	src := &playback{readings: readings(0x8003, 0x8002, 0x8001, 1, 2, 3, 4, 5, 6)}
	s, err := New(src, &Opts{Count: 9})
	if err != nil {
		t.Fatal(err)
	}
	v, err := s.Sample(context.Background(), rtu.Temperature)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("Sample(Temperature) = %#04x, want 0x0002", v)
	}
}

func TestSample(t *testing.T) {
	src := &playback{readings: readings(5, 3, 8, 1, 9, 2, 7, 4, 6)}
	s, err := New(src, &Opts{Count: 9})
	if err != nil {
		t.Fatal(err)
	}
	v, err := s.Sample(context.Background(), rtu.Temperature)
	if err != nil {
		t.Fatal(err)
	}
	if v != 5 {
		t.Errorf("Sample(Temperature) = %d, want 5", v)
	}
	if src.count != 9 {
		t.Errorf("%d acquisitions, want 9", src.count)
	}
	v, err = s.Sample(context.Background(), rtu.Humidity)
	if err != nil {
		t.Fatal(err)
	}
	if v != 995 {
		t.Errorf("Sample(Humidity) = %d, want 995", v)
	}
}

func TestSampleKeepsZeroReadings(t *testing.T) {
	// Checksum failures are zeroed readings and take part in the median.
	r := readings(300, 301, 302)
	r = append(r, dht22.Reading{}, dht22.Reading{}, dht22.Reading{}, dht22.Reading{})
	s, err := New(&playback{readings: r}, &Opts{Count: 7})
	if err != nil {
		t.Fatal(err)
	}
	v, err := s.Sample(context.Background(), rtu.Temperature)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Errorf("Sample() = %d, want 0", v)
	}
}

func TestSampleEvenTruncates(t *testing.T) {
	s, err := New(&playback{readings: readings(1, 2, 3, 4)}, &Opts{Count: 4})
	if err != nil {
		t.Fatal(err)
	}
	v, err := s.Sample(context.Background(), rtu.Temperature)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("Sample() = %d, want 2", v)
	}
}

func TestSampleError(t *testing.T) {
	timeout := &dht22.ReadTimeoutError{Phase: dht22.PreparationResponse, Bit: -1}
	src := &playback{readings: readings(1), err: timeout, errAt: 3}
	s, err := New(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.opts.Cooldown = 0
	_, err = s.Sample(context.Background(), rtu.Humidity)
	var te *dht22.ReadTimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Sample() error = %v, want ReadTimeoutError", err)
	}
	if src.count != 4 {
		t.Errorf("%d acquisitions, want 4", src.count)
	}
}

func TestSampleCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := New(&playback{readings: readings(1)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Sample(ctx, rtu.Temperature); !errors.Is(err, context.Canceled) {
		t.Errorf("Sample() error = %v, want context.Canceled", err)
	}
}

func TestNew(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("New() accepted a nil source")
	}
	if _, err := New(&playback{}, &Opts{Count: 0}); err == nil {
		t.Error("New() accepted a zero count")
	}
}
