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

import "context"

// Technology selects the RF protocols a discovery scan polls for.
type Technology uint8

const (
	ISO14443 Technology = 1 << iota
	ISO15693
	ISO18092

	AllTechnologies = ISO14443 | ISO15693 | ISO18092
)

// Has reports whether t includes other.
func (t Technology) Has(other Technology) bool { return t&other != 0 }

// Tag is a tag found by a discovery scan. A handle is only valid for the
// session that discovered it.
type Tag interface {
	// ID is the tag UID in upper-case hex.
	ID() string
	// QueryNDEFStatus reports the NDEF status and the maximum message size in bytes.
	QueryNDEFStatus(ctx context.Context) (NDEFStatus, int, error)
	// ReadNDEF returns the stored NDEF message, or nil when the tag holds none.
	ReadNDEF(ctx context.Context) ([]byte, error)
	WriteNDEF(ctx context.Context, message []byte) error
	// IsAvailable reports whether the tag still answered its last exchange.
	IsAvailable() bool
}

// Reader discovers and connects to tags.
type Reader interface {
	// Discover runs one scan and returns every tag in the field, possibly none.
	Discover(ctx context.Context, tech Technology) ([]Tag, error)
	// Connect selects tag for the following exchanges.
	Connect(ctx context.Context, tag Tag) error
	Close() error
}

// Capability reports whether the host can read tags at all.
type Capability interface {
	ReadingAvailable() bool
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func() bool

func (f CapabilityFunc) ReadingAvailable() bool { return f() }

// Always is a Capability that is always available.
var Always Capability = CapabilityFunc(func() bool { return true })
