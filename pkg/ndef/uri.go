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
	"strings"
)

// URIType is the well-known type of URI records.
const URIType = "U"

var (
	ErrURIPayloadTooShort = errors.New("ndef: URI payload too short")
	ErrURIPrefixCode      = errors.New("ndef: unknown URI identifier code")
	ErrNotURIRecord       = errors.New("ndef: not a URI record")
)

// uriPrefixes is the URI RTD abbreviation table; the index is the identifier code.
var uriPrefixes = [...]string{
	"", "http://www.", "https://www.", "http://", "https://", "tel:", "mailto:",
	"ftp://anonymous:anonymous@", "ftp://ftp.", "ftps://", "sftp://", "smb://",
	"nfs://", "ftp://", "dav://", "news:", "telnet://", "imap:", "rtsp://", "urn:",
	"pop:", "sip:", "sips:", "tftp:", "btspp://", "btl2cap://", "btgoep://",
	"tcpobex://", "irdaobex://", "file://", "urn:epc:id:", "urn:epc:tag:",
	"urn:epc:pat:", "urn:epc:raw:", "urn:epc:", "urn:nfc:",
}

// NewURIRecord builds a well-known URI record, abbreviating the longest
// matching prefix.
func NewURIRecord(uri string) *Record {
	return &Record{
		TNF:     TNFWellKnown,
		Type:    URIType,
		Payload: EncodeURIPayload(uri),
	}
}

// EncodeURIPayload returns the identifier code followed by the unabbreviated rest.
func EncodeURIPayload(uri string) []byte {
	code := 0
	for i := 1; i < len(uriPrefixes); i++ {
		if strings.HasPrefix(uri, uriPrefixes[i]) && len(uriPrefixes[i]) > len(uriPrefixes[code]) {
			code = i
		}
	}
	rest := uri[len(uriPrefixes[code]):]
	payload := make([]byte, 0, 1+len(rest))
	payload = append(payload, byte(code))
	return append(payload, rest...)
}

// DecodeURIPayload expands a URI record payload.
func DecodeURIPayload(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", ErrURIPayloadTooShort
	}
	if int(payload[0]) >= len(uriPrefixes) {
		return "", ErrURIPrefixCode
	}
	return uriPrefixes[payload[0]] + string(payload[1:]), nil
}

// URI returns the expanded URI of a well-known URI record.
func (r *Record) URI() (string, error) {
	if !r.Is(TNFWellKnown, URIType) {
		return "", ErrNotURIRecord
	}
	return DecodeURIPayload(r.Payload)
}
