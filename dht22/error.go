// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht22

import "fmt"

// ReadTimeoutError is returned when the line did not change level within
// Opts.Timeout.
type ReadTimeoutError struct {
	Phase Phase
	// Bit is the data bit being received, -1 outside of DataAcquisition.
	Bit int
}

func (e *ReadTimeoutError) Error() string {
	if e.Bit >= 0 {
		return fmt.Sprintf("dht22: timeout in %s at bit %d", e.Phase, e.Bit)
	}
	return fmt.Sprintf("dht22: timeout in %s", e.Phase)
}

// ChecksumError is returned by Sense when the checksum byte does not match
// the data bytes.
type ChecksumError struct {
	Got, Want byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("dht22: checksum mismatch: got 0x%02X want 0x%02X", e.Got, e.Want)
}
