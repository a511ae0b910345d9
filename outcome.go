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

// SessionOutcome is the terminal result of one session.
type SessionOutcome struct {
	Failure   *Failure
	SessionID string
	// Message is the operator-facing text for the result.
	Message string
	TagID   string
}

// Success reports whether the session ended without failure.
func (o SessionOutcome) Success() bool { return o.Failure == nil }

// Err returns the failure as an error, or nil.
func (o SessionOutcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// ReadOutcome is the result of a read session. A message that was read but
// could not be decoded still ends the session successfully; the decode error
// is reported in DecodeErr and Raw holds the bytes.
type ReadOutcome struct {
	Record    *DecodedRecord
	DecodeErr error
	Raw       []byte
	SessionOutcome
}
