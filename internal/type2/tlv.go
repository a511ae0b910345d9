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

package type2

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TLV block types found in a Type 2 data area.
const (
	TLVNull          = 0x00
	TLVLockControl   = 0x01
	TLVMemoryControl = 0x02
	TLVNDEF          = 0x03
	TLVTerminator    = 0xFE
)

var (
	ErrTLVTruncated = errors.New("type2: TLV truncated")
	ErrNoNDEFTLV    = errors.New("type2: no NDEF TLV")
)

// location is where an NDEF message sits inside a data area.
type location struct {
	offset int // first message byte
	length int
}

// end is the index just past the message.
func (l location) end() int { return l.offset + l.length }

// tlvLength decodes the one or three byte length field at data[i] and returns
// the value and the field size.
func tlvLength(data []byte, i int) (value, size int, err error) {
	if i >= len(data) {
		return 0, 0, ErrTLVTruncated
	}
	if data[i] != 0xFF {
		return int(data[i]), 1, nil
	}
	if i+2 >= len(data) {
		return 0, 0, fmt.Errorf("%w: long length at %d", ErrTLVTruncated, i)
	}
	return int(binary.BigEndian.Uint16(data[i+1 : i+3])), 3, nil
}

// findNDEF walks TLV blocks until the NDEF TLV. Only the header must be
// present in data; the message itself may extend past it.
func findNDEF(data []byte) (location, error) {
	i := 0
	for i < len(data) {
		switch t := data[i]; t {
		case TLVNull:
			i++
		case TLVTerminator:
			return location{}, ErrNoNDEFTLV
		default:
			n, size, err := tlvLength(data, i+1)
			if err != nil {
				return location{}, err
			}
			if t == TLVNDEF {
				return location{offset: i + 1 + size, length: n}, nil
			}
			// lock/memory control and proprietary blocks
			i += 1 + size + n
		}
	}
	return location{}, fmt.Errorf("%w: ran past %d bytes", ErrTLVTruncated, len(data))
}

// wrapNDEF frames message as an NDEF TLV followed by a terminator.
func wrapNDEF(message []byte) []byte {
	out := make([]byte, 0, len(message)+5)
	out = append(out, TLVNDEF)
	if len(message) < 0xFF {
		out = append(out, byte(len(message)))
	} else {
		//nolint:gosec // bounded by the data area size, far below 64 KiB
		out = append(out, 0xFF, byte(len(message)>>8), byte(len(message)))
	}
	out = append(out, message...)
	return append(out, TLVTerminator)
}

// overhead is the TLV framing cost for a message of n bytes.
func overhead(n int) int {
	if n < 0xFF {
		return 3
	}
	return 5
}
