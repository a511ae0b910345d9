// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package frame encodes and decodes PN532 host link frames.
package frame

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrIncomplete means more bytes are needed to finish the frame.
	ErrIncomplete     = errors.New("frame: incomplete")
	ErrFrameCorrupted = errors.New("frame: corrupted")
	ErrChecksum       = errors.New("frame: checksum mismatch")
	ErrTooLong        = errors.New("frame: payload too long")
	ErrUnexpected     = errors.New("frame: unexpected response code")
)

// Kind distinguishes the frames a PN532 sends.
type Kind int

const (
	KindData Kind = iota
	KindAck
	KindNack
	KindError
)

// Frame is a decoded frame. For KindData, Data holds the bytes after the TFI,
// starting with the response code.
type Frame struct {
	Data []byte
	Kind Kind
	Code byte // application error code for KindError
}

// DeviceError is an application level error frame.
type DeviceError struct {
	Code byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("pn532 error frame 0x%02X", e.Code)
}

// Checksum is the byte sum used by LCS and DCS; a valid field sums to zero.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Build frames a host command.
func Build(cmd byte, args []byte) ([]byte, error) {
	n := 2 + len(args)
	if n > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, n)
	}
	body := make([]byte, 0, n)
	body = append(body, HostToPN532, cmd)
	body = append(body, args...)

	out := make([]byte, 0, n+7)
	out = append(out, Preamble, StartCode1, StartCode2, byte(n), -byte(n))
	out = append(out, body...)
	out = append(out, -Checksum(body), Postamble)
	return out, nil
}

// Parse decodes the first frame in buf. consumed is how many bytes of buf the
// caller may drop, including leading garbage; it is meaningful on error too.
func Parse(buf []byte) (f Frame, consumed int, err error) {
	start := bytes.Index(buf, []byte{StartCode1, StartCode2})
	if start < 0 {
		if len(buf) > 0 {
			consumed = len(buf) - 1
		}
		return Frame{}, consumed, ErrIncomplete
	}

	i := start + 2
	if i+2 > len(buf) {
		return Frame{}, start, ErrIncomplete
	}
	length, lcs := buf[i], buf[i+1]

	switch {
	case length == 0x00 && lcs == 0xFF:
		return Frame{Kind: KindAck}, withPostamble(buf, i+2), nil
	case length == 0xFF && lcs == 0x00:
		return Frame{Kind: KindNack}, withPostamble(buf, i+2), nil
	case length+lcs != 0:
		return Frame{}, i, fmt.Errorf("%w: length checksum", ErrFrameCorrupted)
	}

	end := i + 2 + int(length)
	if end+1 > len(buf) {
		return Frame{}, start, ErrIncomplete
	}
	body := buf[i+2 : end]
	if Checksum(body)+buf[end] != 0 {
		return Frame{}, end + 1, ErrChecksum
	}
	consumed = withPostamble(buf, end+1)
	if len(body) == 0 {
		return Frame{}, consumed, fmt.Errorf("%w: empty body", ErrFrameCorrupted)
	}

	switch body[0] {
	case ErrorTFI:
		f = Frame{Kind: KindError}
		if len(body) > 1 {
			f.Code = body[1]
		}
		return f, consumed, nil
	case PN532ToHost:
		return Frame{Kind: KindData, Data: append([]byte(nil), body[1:]...)}, consumed, nil
	default:
		return Frame{}, consumed, fmt.Errorf("%w: TFI 0x%02X", ErrFrameCorrupted, body[0])
	}
}

func withPostamble(buf []byte, n int) int {
	if n < len(buf) && buf[n] == Postamble {
		return n + 1
	}
	return n
}

// Response checks that f answers cmd and returns the payload after the
// response code.
func Response(cmd byte, f Frame) ([]byte, error) {
	switch f.Kind {
	case KindError:
		return nil, &DeviceError{Code: f.Code}
	case KindData:
	default:
		return nil, fmt.Errorf("%w: got control frame", ErrUnexpected)
	}
	if len(f.Data) == 0 || f.Data[0] != cmd+1 {
		return nil, fmt.Errorf("%w: want 0x%02X", ErrUnexpected, cmd+1)
	}
	return f.Data[1:], nil
}
