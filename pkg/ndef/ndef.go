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

// Package ndef implements the subset of the NFC Forum NDEF wire format used by
// fish tags: short and long records, well-known URI and Text types.
package ndef

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TNF (Type Name Format) values.
const (
	TNFEmpty       byte = 0x00
	TNFWellKnown   byte = 0x01
	TNFMedia       byte = 0x02
	TNFAbsoluteURI byte = 0x03
	TNFExternal    byte = 0x04
	TNFUnknown     byte = 0x05
	TNFUnchanged   byte = 0x06
	TNFReserved    byte = 0x07
)

const (
	tnfMask  byte = 0x07
	flagMB   byte = 0x80
	flagME   byte = 0x40
	flagCF   byte = 0x20
	flagSR   byte = 0x10
	flagIL   byte = 0x08
	shortMax      = 255
)

var (
	ErrEmptyMessage    = errors.New("ndef: empty message")
	ErrTruncatedRecord = errors.New("ndef: truncated record data")
	ErrInvalidTNF      = errors.New("ndef: invalid TNF value")
	ErrChunkedRecord   = errors.New("ndef: chunked records not supported")
	ErrFieldTooLong    = errors.New("ndef: type or id longer than 255 bytes")
)

// Record is a single NDEF record. The MB/ME flags are computed when the
// record is marshalled as part of a Message.
type Record struct {
	Type    string
	ID      string
	Payload []byte
	TNF     byte
	mb      bool
	me      bool
}

// MB reports whether the record was flagged as the first of its message.
func (r *Record) MB() bool { return r.mb }

// ME reports whether the record was flagged as the last of its message.
func (r *Record) ME() bool { return r.me }

// Is reports whether r has the given TNF and type.
func (r *Record) Is(tnf byte, typ string) bool {
	return r != nil && r.TNF == tnf && r.Type == typ
}

// Message is an ordered list of records.
type Message struct {
	Records []*Record
}

// NewMessage builds a message from records in order.
func NewMessage(records ...*Record) *Message {
	return &Message{Records: records}
}

// Parse decodes a complete message from data.
func Parse(data []byte) (*Message, error) {
	msg := &Message{}
	if _, err := msg.Unmarshal(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// RecordsOfType returns the records with the given TNF and type, in message order.
func (m *Message) RecordsOfType(tnf byte, typ string) []*Record {
	var out []*Record
	for _, rec := range m.Records {
		if rec.Is(tnf, typ) {
			out = append(out, rec)
		}
	}
	return out
}

// Marshal serializes the message, setting MB on the first record and ME on the last.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.Records) == 0 {
		return nil, ErrEmptyMessage
	}

	var out []byte
	last := len(m.Records) - 1
	for i, rec := range m.Records {
		rec.mb = i == 0
		rec.me = i == last

		data, err := rec.Marshal()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, data...)
	}
	return out, nil
}

// Unmarshal decodes records until one carries ME and returns the bytes consumed.
// Trailing data after the ME record is ignored.
func (m *Message) Unmarshal(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptyMessage
	}

	m.Records = nil
	offset := 0
	for offset < len(data) {
		rec := &Record{}
		n, err := rec.Unmarshal(data[offset:])
		if err != nil {
			return offset, fmt.Errorf("record at offset %d: %w", offset, err)
		}
		if rec.mb && len(m.Records) > 0 {
			break
		}
		m.Records = append(m.Records, rec)
		offset += n
		if rec.me {
			break
		}
	}

	if len(m.Records) == 0 {
		return 0, ErrEmptyMessage
	}
	return offset, nil
}

// Marshal serializes one record.
func (r *Record) Marshal() ([]byte, error) {
	if r.TNF > TNFReserved {
		return nil, ErrInvalidTNF
	}
	if len(r.Type) > shortMax || len(r.ID) > shortMax {
		return nil, ErrFieldTooLong
	}

	short := len(r.Payload) <= shortMax
	flags := r.TNF & tnfMask
	if r.mb {
		flags |= flagMB
	}
	if r.me {
		flags |= flagME
	}
	if short {
		flags |= flagSR
	}
	if r.ID != "" {
		flags |= flagIL
	}

	out := make([]byte, 0, 7+len(r.Type)+len(r.ID)+len(r.Payload))
	out = append(out, flags, byte(len(r.Type)))
	if short {
		out = append(out, byte(len(r.Payload)))
	} else {
		//nolint:gosec // len() is non-negative and payloads never approach 4 GiB
		out = binary.BigEndian.AppendUint32(out, uint32(len(r.Payload)))
	}
	if r.ID != "" {
		out = append(out, byte(len(r.ID)))
	}
	out = append(out, r.Type...)
	out = append(out, r.ID...)
	out = append(out, r.Payload...)
	return out, nil
}

// Unmarshal decodes one record and returns the bytes consumed.
func (r *Record) Unmarshal(data []byte) (int, error) {
	if len(data) < 3 {
		return 0, ErrTruncatedRecord
	}

	flags := data[0]
	if flags&flagCF != 0 {
		return 0, ErrChunkedRecord
	}
	r.TNF = flags & tnfMask
	if r.TNF > TNFUnchanged {
		return 0, ErrInvalidTNF
	}
	r.mb = flags&flagMB != 0
	r.me = flags&flagME != 0

	typeLen := int(data[1])
	pos := 2

	var payloadLen int
	if flags&flagSR != 0 {
		payloadLen = int(data[pos])
		pos++
	} else {
		if pos+4 > len(data) {
			return 0, ErrTruncatedRecord
		}
		payloadLen = int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
	}

	idLen := 0
	if flags&flagIL != 0 {
		if pos >= len(data) {
			return 0, ErrTruncatedRecord
		}
		idLen = int(data[pos])
		pos++
	}

	if payloadLen < 0 || pos+typeLen+idLen+payloadLen > len(data) {
		return 0, ErrTruncatedRecord
	}

	r.Type = string(data[pos : pos+typeLen])
	pos += typeLen
	r.ID = string(data[pos : pos+idLen])
	pos += idLen
	r.Payload = nil
	if payloadLen > 0 {
		r.Payload = append([]byte(nil), data[pos:pos+payloadLen]...)
	}
	return pos + payloadLen, nil
}
