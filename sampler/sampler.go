// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sampler denoises sensor readings by taking the median of several
// acquisitions.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/GermanBionicSystems/dhtbridge/dht22"
	"github.com/GermanBionicSystems/dhtbridge/rtu"
)

// Source performs a single acquisition. *dht22.Dev implements it.
type Source interface {
	Acquire() (dht22.Reading, error)
}

// Opts holds the sampling parameters.
type Opts struct {
	// Count is the number of acquisitions per sample. An odd count gives a
	// single middle value.
	Count int
	// Cooldown is the pause after each acquisition. The sensor needs at least
	// 450ms between conversions.
	Cooldown time.Duration
}

// DefaultOpts takes 9 acquisitions.
var DefaultOpts = Opts{
	Count:    9,
	Cooldown: 450 * time.Millisecond,
}

// Sampler takes median filtered samples from a Source.
type Sampler struct {
	src  Source
	opts Opts
}

// New returns a Sampler reading from src. The Opts can be nil.
func New(src Source, opts *Opts) (*Sampler, error) {
	if src == nil {
		return nil, errors.New("sampler: nil source")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Count < 1 {
		return nil, fmt.Errorf("sampler: invalid count %d", opts.Count)
	}
	return &Sampler{src: src, opts: *opts}, nil
}

// Sample returns the median of Count readings of the quantity asked for by
// rt. Readings zeroed by a checksum mismatch are kept. The first acquisition
// error aborts the sample.
func (s *Sampler) Sample(ctx context.Context, rt rtu.RequestType) (uint16, error) {
	values := make([]uint16, 0, s.opts.Count)
	for i := 0; i < s.opts.Count; i++ {
		r, err := s.src.Acquire()
		if err != nil {
			return 0, fmt.Errorf("sampler: acquisition %d/%d: %w", i+1, s.opts.Count, err)
		}
		if rt == rtu.Temperature {
			values = append(values, r.Temperature)
		} else {
			values = append(values, r.Humidity)
		}
		if err := sleep(ctx, s.opts.Cooldown); err != nil {
			return 0, err
		}
	}
	if rt == rtu.Temperature {
		return MedianTemperature(values), nil
	}
	return uint16(Median(values)), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Median returns the middle value of values, or the average of the two
// middle values when the length is even. It returns 0 for an empty slice.
// values is not modified.
func Median(values []uint16) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]uint16, n)
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	if n%2 == 0 {
		return (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
	}
	return float64(sorted[n/2])
}

// MedianTemperature is Median over sign-magnitude sensor temperatures. With
// an odd length the middle raw word is returned unchanged. With an even length
// the two middle temperatures are averaged, truncated toward zero and encoded
// back to sign-magnitude.
func MedianTemperature(values []uint16) uint16 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]uint16, n)
	copy(sorted, values)
	sort.SliceStable(sorted, func(i, j int) bool {
		return dht22.SignedTemperature(sorted[i]) > dht22.SignedTemperature(sorted[j])
	})
	if n%2 != 0 {
		return sorted[n/2]
	}
	avg := (int(dht22.SignedTemperature(sorted[n/2-1])) + int(dht22.SignedTemperature(sorted[n/2]))) / 2
	if avg < 0 {
		return 0x8000 | uint16(-avg)
	}
	return uint16(avg)
}
