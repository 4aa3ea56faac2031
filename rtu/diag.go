// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rtu

import (
	"fmt"
	"io"
	"strings"
)

const separator = "=========="

// HexDump returns frame as uppercase hex byte pairs separated by spaces.
func HexDump(frame []byte) string {
	var sb strings.Builder
	for ix, b := range frame {
		if ix > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// Diag writes the human readable trace of request/response cycles. A nil
// writer discards everything.
type Diag struct {
	W io.Writer
}

func (d *Diag) printf(format string, args ...any) {
	if d == nil || d.W == nil {
		return
	}
	fmt.Fprintf(d.W, format, args...)
}

// Frame writes label and the hex dump of frame.
func (d *Diag) Frame(label string, frame []byte) {
	d.printf("%s:\n%s\n\n", label, HexDump(frame))
}

// Value writes the decoded reading.
func (d *Diag) Value(rt RequestType, value uint16) {
	d.printf("%s: %d\n", rt, value)
}

// Event writes a single informational line.
func (d *Diag) Event(msg string) {
	d.printf("%s\n", msg)
}

// Separator ends a cycle.
func (d *Diag) Separator() {
	d.printf("%s\n\n", separator)
}
