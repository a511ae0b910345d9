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

package fishtag

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/go-fishtag/pkg/ndef"
)

// Codec defaults.
const (
	DefaultBaseURI       = "https://www.baidu.com/"
	DefaultAttribution   = "Brought to you by the Great Fish Company"
	DefaultLanguage      = "en"
	DefaultDisplayLayout = "Jan 2, 2006"

	// WireDateLayout is the YYYYMMDD form of the date parameter.
	WireDateLayout = "20060102"
)

// Query parameter names.
const (
	ParamDate  = "date"
	ParamPrice = "price"
	ParamKind  = "kind"
)

// Codec converts between TagRecords and the URI+Text NDEF message stored on tags.
type Codec struct {
	BaseURI       string
	Attribution   string
	Language      string
	DisplayLayout string
	// IncludeAllFields also writes kind and price. Off by default because the
	// full record overflows the smallest tags.
	IncludeAllFields bool
}

// DefaultCodec returns the codec used when none is configured.
func DefaultCodec() *Codec {
	return &Codec{
		BaseURI:       DefaultBaseURI,
		Attribution:   DefaultAttribution,
		Language:      DefaultLanguage,
		DisplayLayout: DefaultDisplayLayout,
	}
}

// EncodedMessage is an encoded [URI, Text] message and its wire bytes.
type EncodedMessage struct {
	Message *ndef.Message
	data    []byte
}

// Len is the serialized size in bytes, the figure checked against tag capacity.
func (m *EncodedMessage) Len() int { return len(m.data) }

// Bytes returns a copy of the serialized message.
func (m *EncodedMessage) Bytes() []byte {
	return append([]byte(nil), m.data...)
}

// DecodedRecord is what a tag yields on read. Absent parameters leave their
// fields empty.
type DecodedRecord struct {
	Date         time.Time
	DateDisplay  string
	PriceCode    string
	PriceDisplay string
	Kind         string
	Note         string
}

// Record converts the decoded fields back to a TagRecord.
func (d *DecodedRecord) Record() TagRecord {
	return TagRecord{
		ObservationDate: d.Date,
		Kind:            d.Kind,
		PriceCode:       d.PriceCode,
		Note:            d.Note,
	}
}

func (c *Codec) withDefaults() Codec {
	out := *c
	if out.BaseURI == "" {
		out.BaseURI = DefaultBaseURI
	}
	if out.Attribution == "" {
		out.Attribution = DefaultAttribution
	}
	if out.Language == "" {
		out.Language = DefaultLanguage
	}
	if out.DisplayLayout == "" {
		out.DisplayLayout = DefaultDisplayLayout
	}
	return out
}

// Encode builds the URI record (base address plus date parameter) and the
// attribution Text record.
func (c *Codec) Encode(record TagRecord) (*EncodedMessage, error) {
	cfg := c.withDefaults()

	if record.ObservationDate.IsZero() {
		return nil, ErrInvalidDate
	}

	base, err := url.Parse(cfg.BaseURI)
	if err != nil {
		return nil, fmt.Errorf("parse base URI: %w", err)
	}

	query := url.Values{}
	query.Set(ParamDate, FormatWireDate(record.ObservationDate))
	if cfg.IncludeAllFields {
		if err := record.Validate(); err != nil {
			return nil, err
		}
		if record.Kind != "" {
			query.Set(ParamKind, record.Kind)
		}
		if record.PriceCode != "" {
			query.Set(ParamPrice, record.PriceCode)
		}
	}
	base.RawQuery = query.Encode()

	text, err := ndef.NewTextRecord(cfg.Attribution, cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("build text record: %w", err)
	}
	msg := ndef.NewMessage(ndef.NewURIRecord(base.String()), text)

	data, err := msg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return &EncodedMessage{Message: msg, data: data}, nil
}

// Decode extracts the record from a message holding exactly one URI record
// whose scheme and host match the base address. Unknown parameters are
// ignored; the first readable Text record becomes the note.
func (c *Codec) Decode(msg *ndef.Message) (*DecodedRecord, error) {
	cfg := c.withDefaults()

	base, err := url.Parse(cfg.BaseURI)
	if err != nil {
		return nil, fmt.Errorf("parse base URI: %w", err)
	}

	var matched []*url.URL
	for _, rec := range msg.RecordsOfType(ndef.TNFWellKnown, ndef.URIType) {
		raw, err := rec.URI()
		if err != nil {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host) {
			matched = append(matched, u)
		}
	}
	if len(matched) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrNoMatchingURI, len(matched))
	}

	out := &DecodedRecord{}
	for _, rec := range msg.RecordsOfType(ndef.TNFWellKnown, ndef.TextType) {
		if text, err := rec.Text(); err == nil {
			out.Note = text.Value
			break
		}
	}

	// a malformed query still yields the pairs that parsed
	query, _ := url.ParseQuery(matched[0].RawQuery)
	if v, ok := lastValue(query, ParamDate); ok {
		date, err := ParseWireDate(v)
		if err != nil {
			return nil, err
		}
		out.Date = date
		out.DateDisplay = date.Format(cfg.DisplayLayout)
	}
	if v, ok := lastValue(query, ParamPrice); ok {
		display, err := FormatPrice(v)
		if err != nil {
			return nil, err
		}
		out.PriceCode = v
		out.PriceDisplay = display
	}
	if v, ok := lastValue(query, ParamKind); ok {
		out.Kind = v
	}
	return out, nil
}

// DecodeBytes parses data as an NDEF message and decodes it.
func (c *Codec) DecodeBytes(data []byte) (*DecodedRecord, error) {
	msg, err := ndef.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return c.Decode(msg)
}

// DecodeDelivered decodes a message captured outside a session, for example
// one handed over by the host when a tag launched the application. Empty
// messages and messages starting with an empty record are rejected.
func (c *Codec) DecodeDelivered(data []byte) (*DecodedRecord, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDelivery
	}
	msg, err := ndef.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if len(msg.Records) == 0 || msg.Records[0].TNF == ndef.TNFEmpty {
		return nil, ErrEmptyDelivery
	}
	return c.Decode(msg)
}

func lastValue(q url.Values, key string) (string, bool) {
	vals, ok := q[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

// FormatWireDate renders t as YYYYMMDD in UTC.
func FormatWireDate(t time.Time) string {
	return t.UTC().Format(WireDateLayout)
}

// ParseWireDate parses YYYYMMDD as midnight UTC.
func ParseWireDate(s string) (time.Time, error) {
	if len(s) != len(WireDateLayout) {
		return time.Time{}, &FieldError{Field: ParamDate, Value: s, Err: ErrMalformedDate}
	}
	t, err := time.ParseInLocation(WireDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, &FieldError{Field: ParamDate, Value: s, Err: fmt.Errorf("%w: %w", ErrMalformedDate, err)}
	}
	return t, nil
}

// FormatPrice renders a decimal-coded cents string as dollars,
// "0599" -> "$5.99".
func FormatPrice(code string) (string, error) {
	if code == "" || strings.TrimLeft(code, "0123456789") != "" {
		return "", &FieldError{Field: ParamPrice, Value: code, Err: ErrMalformedPrice}
	}
	cents, err := strconv.ParseUint(code, 10, 32)
	if err != nil {
		return "", &FieldError{Field: ParamPrice, Value: code, Err: fmt.Errorf("%w: %w", ErrMalformedPrice, err)}
	}
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100), nil
}
