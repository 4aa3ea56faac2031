// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/GermanBionicSystems/dhtbridge/dht22"
	"github.com/GermanBionicSystems/dhtbridge/rtu"
)

type busMaster interface {
	ReadByte(ctx context.Context) (byte, error)
	Write(b []byte) (int, error)
}

func parseProbe(kind string) (rtu.RequestType, error) {
	switch kind {
	case "temperature", "t":
		return rtu.Temperature, nil
	case "humidity", "h":
		return rtu.Humidity, nil
	}
	return rtu.Unknown, fmt.Errorf("unknown probe %q, want temperature or humidity", kind)
}

// probe sends one request to address and prints both frames and the decoded
// value to out.
func probe(ctx context.Context, m busMaster, address byte, rt rtu.RequestType, out io.Writer) (uint16, error) {
	req := rtu.EncodeRequest(address, rt)
	if _, err := m.Write(req); err != nil {
		return 0, err
	}
	fmt.Fprintf(out, "request:  %s\n", rtu.HexDump(req))

	resp := make([]byte, rtu.ResponseSize)
	for i := range resp {
		b, err := m.ReadByte(ctx)
		if err != nil {
			return 0, fmt.Errorf("reading response byte %d: %w", i, err)
		}
		resp[i] = b
	}
	fmt.Fprintf(out, "response: %s\n", rtu.HexDump(resp))

	v, err := rtu.DecodeResponse(resp)
	if err != nil {
		return 0, err
	}
	if resp[0] != address {
		return 0, fmt.Errorf("reply from address 0x%02X, want 0x%02X", resp[0], address)
	}
	if rt == rtu.Temperature {
		fmt.Fprintf(out, "%s: %.1f°C\n", rt, float64(dht22.SignedTemperature(v))/10)
	} else {
		fmt.Fprintf(out, "%s: %.1f%%RH\n", rt, float64(v)/10)
	}
	return v, nil
}
