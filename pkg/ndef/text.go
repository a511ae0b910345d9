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

package ndef

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

// TextType is the well-known type of Text records.
const TextType = "T"

const (
	textUTF16     byte = 0x80
	textLangMask  byte = 0x3F
	maxLangLength      = 63
)

var (
	ErrTextPayloadTooShort = errors.New("ndef: text payload too short")
	ErrTextLanguageTooLong = errors.New("ndef: language code too long")
	ErrNotTextRecord       = errors.New("ndef: not a text record")
)

// Text is the content of a Text record.
type Text struct {
	Value    string
	Language string
	UTF16    bool
}

// NewTextRecord builds a UTF-8 Text record. An empty language becomes "en".
func NewTextRecord(text, language string) (*Record, error) {
	payload, err := EncodeTextPayload(text, language)
	if err != nil {
		return nil, err
	}
	return &Record{TNF: TNFWellKnown, Type: TextType, Payload: payload}, nil
}

// EncodeTextPayload returns the status byte, the language code and the UTF-8 text.
func EncodeTextPayload(text, language string) ([]byte, error) {
	if language == "" {
		language = "en"
	}
	if len(language) > maxLangLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTextLanguageTooLong, len(language))
	}
	payload := make([]byte, 0, 1+len(language)+len(text))
	payload = append(payload, byte(len(language)))
	payload = append(payload, language...)
	return append(payload, text...), nil
}

// DecodeTextPayload parses a Text record payload. UTF-16 text is converted to
// UTF-8; a leading byte order mark selects the byte order, big endian otherwise.
func DecodeTextPayload(payload []byte) (*Text, error) {
	if len(payload) == 0 {
		return nil, ErrTextPayloadTooShort
	}
	status := payload[0]
	langLen := int(status & textLangMask)
	if len(payload) < 1+langLen {
		return nil, fmt.Errorf("%w: language needs %d bytes", ErrTextPayloadTooShort, langLen)
	}

	out := &Text{
		Language: string(payload[1 : 1+langLen]),
		UTF16:    status&textUTF16 != 0,
	}
	body := payload[1+langLen:]
	if out.UTF16 {
		out.Value = decodeUTF16(body)
	} else {
		out.Value = string(body)
	}
	return out, nil
}

// Text returns the content of a well-known Text record.
func (r *Record) Text() (*Text, error) {
	if !r.Is(TNFWellKnown, TextType) {
		return nil, ErrNotTextRecord
	}
	return DecodeTextPayload(r.Payload)
}

func decodeUTF16(b []byte) string {
	little := false
	if len(b) >= 2 {
		switch {
		case b[0] == 0xFF && b[1] == 0xFE:
			little = true
			b = b[2:]
		case b[0] == 0xFE && b[1] == 0xFF:
			b = b[2:]
		}
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		if little {
			units = append(units, uint16(b[i])|uint16(b[i+1])<<8)
		} else {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
	}
	return string(utf16.Decode(units))
}
