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

// Package fishtag encodes fish observations onto NFC tags and negotiates
// whether a presented tag can hold them. The session flow that drives a
// reader lives in the session package.
package fishtag

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Kinds is the fixed set of fish labels a record may carry.
var Kinds = []string{
	"Creative Salmon",
	"Amazing Tuna",
	"Dancing Mahi-Mahi",
	"Incredible Bass",
}

// PriceCodes is the catalogue of price codes offered to operators.
var PriceCodes = []string{"0599", "1099", "1599"}

var (
	ErrUnknownKind      = errors.New("unknown fish kind")
	ErrInvalidPriceCode = errors.New("price code must be 4 ASCII digits")
)

// TagRecord is the logical content of a fish tag.
type TagRecord struct {
	ObservationDate time.Time
	Kind            string
	PriceCode       string
	Note            string
}

// Validate checks the record's enumerated fields. An empty kind or price code
// is accepted since neither is written by default.
func (r TagRecord) Validate() error {
	if r.Kind != "" && !slices.Contains(Kinds, r.Kind) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	if r.PriceCode != "" && !isPriceCode(r.PriceCode) {
		return fmt.Errorf("%w: %q", ErrInvalidPriceCode, r.PriceCode)
	}
	if r.ObservationDate.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func isPriceCode(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
