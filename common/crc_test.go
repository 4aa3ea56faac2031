// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// bitwiseCRC16 is the shift-register form of the Modbus CRC.
func bitwiseCRC16(bytes []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range bytes {
		crc ^= uint16(b)
		for n := 0; n < 8; n++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xa001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func TestCRC16(t *testing.T) {
	var tests = []struct {
		bytes  []byte
		result uint16
	}{
		{bytes: []byte("123456789"), result: 0x4b37},
		{bytes: []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, result: 0x0a84},
		{bytes: []byte{0x11, 0x03, 0x00, 0x6b, 0x00, 0x03}, result: 0x8776},
		{bytes: nil, result: 0xffff},
	}
	for _, test := range tests {
		res := CRC16(test.bytes)
		if res != test.result {
			t.Errorf("CRC16(%#v)!=0x%04x received 0x%04x", test.bytes, test.result, res)
		}
	}
}

func TestCRC16Table(t *testing.T) {
	// Spot checks against the published Modbus table.
	for ix, want := range map[int]uint16{0x00: 0x0000, 0x01: 0xc0c1, 0x02: 0xc181, 0x7f: 0xe041, 0x80: 0xa001, 0xff: 0x4040} {
		if crc16Table[ix] != want {
			t.Errorf("crc16Table[0x%02x]=0x%04x want 0x%04x", ix, crc16Table[ix], want)
		}
	}
}

func TestCRC16MatchesBitwise(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for n := 0; n < 500; n++ {
		b := make([]byte, r.Intn(64))
		r.Read(b)
		if got, want := CRC16(b), bitwiseCRC16(b); got != want {
			t.Fatalf("CRC16(%#v)=0x%04x bitwise=0x%04x", b, got, want)
		}
	}
}

func TestAppendCheckCRC16(t *testing.T) {
	data := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	got := AppendCRC16(data)
	if diff := cmp.Diff(got, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0a}); diff != "" {
		t.Errorf("AppendCRC16() difference (-got +want):\n%s", diff)
	}
	if len(data) != 6 {
		t.Error("AppendCRC16 modified its input")
	}
	if !CheckCRC16(got) {
		t.Error("CheckCRC16 rejected a valid frame")
	}
	got[7] ^= 0x01
	if CheckCRC16(got) {
		t.Error("CheckCRC16 accepted a corrupt frame")
	}
	if CheckCRC16([]byte{0xff, 0xff}) {
		t.Error("CheckCRC16 accepted a frame without payload")
	}
}
