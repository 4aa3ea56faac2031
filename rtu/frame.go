// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rtu encodes and decodes the fixed-size Modbus-like frames exchanged
// between a bus master and the sensor bridge.
//
// A request is 8 bytes:
//
//	[address][reserved][reserved][requestType][reserved][reserved][crcLo][crcHi]
//
// A response is 7 bytes:
//
//	[address][0x04][0x02][valueHi][valueLo][crcLo][crcHi]
//
// Reserved bytes are carried but never interpreted.
package rtu

import (
	"fmt"

	"github.com/GermanBionicSystems/dhtbridge/common"
)

const (
	// RequestSize is the length of a request frame, CRC included.
	RequestSize = 8
	// ResponseSize is the length of a response frame, CRC included.
	ResponseSize = 7

	// FuncReadInput is the function code of every response.
	FuncReadInput byte = 0x04
	// ValueByteCount is the byte count field of every response.
	ValueByteCount byte = 0x02

	requestTypeOffset = 3
)

// RequestType is the quantity asked for by a request frame.
type RequestType int

const (
	Unknown RequestType = iota
	Temperature
	Humidity
)

func (rt RequestType) String() string {
	switch rt {
	case Temperature:
		return "Temperature"
	case Humidity:
		return "Humidity"
	default:
		return "Unknown"
	}
}

// code returns the byte3 value of rt.
func (rt RequestType) code() byte {
	switch rt {
	case Temperature:
		return 0x01
	case Humidity:
		return 0x02
	default:
		return 0x00
	}
}

// Validate returns true if frame is a full request whose trailing CRC matches
// the first 6 bytes.
func Validate(frame []byte) bool {
	return len(frame) == RequestSize && common.CheckCRC16(frame)
}

// ValidateResponse returns true if frame is a full response whose trailing
// CRC matches the first 5 bytes.
func ValidateResponse(frame []byte) bool {
	return len(frame) == ResponseSize && common.CheckCRC16(frame)
}

// DecodeRequestType returns the quantity requested by frame. Only byte 3 is
// looked at.
func DecodeRequestType(frame []byte) RequestType {
	if len(frame) <= requestTypeOffset {
		return Unknown
	}
	switch frame[requestTypeOffset] {
	case 0x01:
		return Temperature
	case 0x02:
		return Humidity
	default:
		return Unknown
	}
}

// EncodeResponse returns the 7 byte response carrying value.
func EncodeResponse(address byte, value uint16) []byte {
	return common.AppendCRC16([]byte{address, FuncReadInput, ValueByteCount, byte(value >> 8), byte(value)})
}

// DecodeResponse returns the value carried by a response frame.
func DecodeResponse(frame []byte) (uint16, error) {
	if !ValidateResponse(frame) {
		return 0, fmt.Errorf("rtu: invalid response % X", frame)
	}
	if frame[1] != FuncReadInput || frame[2] != ValueByteCount {
		return 0, fmt.Errorf("rtu: unexpected response header % X", frame[1:3])
	}
	return uint16(frame[3])<<8 | uint16(frame[4]), nil
}

// EncodeRequest returns a request for rt addressed to address, with the
// reserved bytes zeroed.
func EncodeRequest(address byte, rt RequestType) []byte {
	return common.AppendCRC16([]byte{address, 0x00, 0x00, rt.code(), 0x00, 0x00})
}
