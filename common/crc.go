// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains the checksum shared by the frame codec and the
// command line master. For example, the Modbus CRC16 used on the serial link.
package common

// crc16Poly is the reflected form of x^16 + x^15 + x^2 + 1.
const crc16Poly uint16 = 0xa001

var crc16Table = makeCRC16Table()

func makeCRC16Table() [256]uint16 {
	var t [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for n := 0; n < 8; n++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crc16Poly
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}

// CRC16 calculates the Modbus CRC16 of the byte slice parameter and returns
// the calculated value. The low byte goes first on the wire.
func CRC16(bytes []byte) uint16 {
	crc := uint16(0xffff)
	for _, val := range bytes {
		crc = (crc >> 8) ^ crc16Table[byte(crc)^val]
	}
	return crc
}

// AppendCRC16 returns bytes followed by their CRC16, low byte first.
func AppendCRC16(bytes []byte) []byte {
	crc := CRC16(bytes)
	out := make([]byte, len(bytes), len(bytes)+2)
	copy(out, bytes)
	return append(out, byte(crc), byte(crc>>8))
}

// CheckCRC16 returns true if the last two bytes of frame hold the CRC16 of
// the bytes before them.
func CheckCRC16(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	n := len(frame) - 2
	chk := uint16(frame[n]) | uint16(frame[n+1])<<8
	return CRC16(frame[:n]) == chk
}
