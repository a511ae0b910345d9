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

package bridge

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ZaparooProject/go-fishtag"
)

// Request types
const (
	TypeWrite  = "write"
	TypeRead   = "read"
	TypeDecode = "decode"
	TypeCancel = "cancel"
)

// Event types pushed to every client
const (
	EventAlert = "alert"
	EventState = "state"
)

// Error codes
const (
	CodeParseError     = "PARSE_ERROR"
	CodeUnknownType    = "UNKNOWN_TYPE"
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeUnavailable    = "DISCOVERY_UNAVAILABLE"
	CodeSessionFailed  = "SESSION_FAILED"
	CodeDecodeFailed   = "DECODE_FAILED"
)

var errMissingDate = errors.New("date is required")

// Request is a client message. ID is echoed in the response; the server
// assigns one when it is empty.
type Request struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	ID      string          `json:"id"`
	Type    string          `json:"type"`
}

// WritePayload carries the fields a host collected for a write.
type WritePayload struct {
	Date  string `json:"date"` // YYYYMMDD
	Kind  string `json:"kind,omitempty"`
	Price string `json:"price,omitempty"`
}

// Record converts the payload to a tag record.
func (p WritePayload) Record() (fishtag.TagRecord, error) {
	if p.Date == "" {
		return fishtag.TagRecord{}, errMissingDate
	}
	date, err := fishtag.ParseWireDate(p.Date)
	if err != nil {
		return fishtag.TagRecord{}, err
	}
	return fishtag.TagRecord{ObservationDate: date, Kind: p.Kind, PriceCode: p.Price}, nil
}

// DecodePayload carries a captured NDEF message.
type DecodePayload struct {
	Message []byte `json:"message"` // base64 in JSON
}

// Response answers one request.
type Response struct {
	Payload any    `json:"payload,omitempty"`
	ID      string `json:"id"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

// Event is an unsolicited message about a running session.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

// RecordPayload is a decoded record as the host displays it.
type RecordPayload struct {
	Date         string `json:"date"`
	DateDisplay  string `json:"dateDisplay"`
	Price        string `json:"price,omitempty"`
	PriceDisplay string `json:"priceDisplay,omitempty"`
	Kind         string `json:"kind,omitempty"`
	Note         string `json:"note,omitempty"`
}

func recordPayload(d *fishtag.DecodedRecord) *RecordPayload {
	if d == nil {
		return nil
	}
	return &RecordPayload{
		Date:         fishtag.FormatWireDate(d.Date),
		DateDisplay:  d.DateDisplay,
		Price:        d.PriceCode,
		PriceDisplay: d.PriceDisplay,
		Kind:         d.Kind,
		Note:         d.Note,
	}
}

// OutcomePayload reports how a session ended.
type OutcomePayload struct {
	Record      *RecordPayload `json:"record,omitempty"`
	FinishedAt  time.Time      `json:"finishedAt"`
	SessionID   string         `json:"sessionId"`
	TagID       string         `json:"tagId,omitempty"`
	Message     string         `json:"message"`
	ErrorKind   string         `json:"errorKind,omitempty"`
	DecodeError string         `json:"decodeError,omitempty"`
	Required    int            `json:"required,omitempty"`
}

func outcomePayload(out fishtag.SessionOutcome) *OutcomePayload {
	p := &OutcomePayload{
		SessionID:  out.SessionID,
		TagID:      out.TagID,
		Message:    out.Message,
		FinishedAt: time.Now().UTC(),
	}
	if out.Failure != nil {
		p.ErrorKind = out.Failure.Kind.String()
		p.Required = out.Failure.Required
	}
	return p
}
