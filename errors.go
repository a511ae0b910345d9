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
	"errors"
	"fmt"
)

// Codec errors
var (
	ErrInvalidDate    = errors.New("observation date is not set")
	ErrNoMatchingURI  = errors.New("message must contain exactly one matching URI record")
	ErrMalformedDate  = errors.New("malformed date parameter")
	ErrMalformedPrice = errors.New("malformed price parameter")
	ErrEmptyDelivery  = errors.New("delivered message is empty")
)

// Session errors
var (
	ErrDiscoveryUnavailable = errors.New("tag discovery is not available on this host")
	ErrTagUnavailable       = errors.New("tag is no longer available")
	ErrNotNDEF              = errors.New("tag does not support NDEF")
	ErrReadOnly             = errors.New("tag is read-only")
	ErrCapacity             = errors.New("tag capacity too small")
)

// ErrorKind classifies why a session ended without success.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindDiscoveryUnavailable
	// KindMultiTagDetected is advisory; the session keeps running.
	KindMultiTagDetected
	KindDiscoveryError
	KindConnectError
	KindNegotiationFatal
	KindNegotiationRetryable
	KindWriteError
	KindReadError
	KindEmptyPayload
	KindDecodePartial
	KindInvalidated
)

var kindNames = map[ErrorKind]string{
	KindNone:                 "none",
	KindDiscoveryUnavailable: "discovery unavailable",
	KindMultiTagDetected:     "multiple tags detected",
	KindDiscoveryError:       "discovery error",
	KindConnectError:         "connect error",
	KindNegotiationFatal:     "negotiation failed",
	KindNegotiationRetryable: "negotiation retryable",
	KindWriteError:           "write error",
	KindReadError:            "read error",
	KindEmptyPayload:         "empty payload",
	KindDecodePartial:        "decode failed",
	KindInvalidated:          "invalidated",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Failure is the terminal error of a session. Message is operator-facing
// remediation text; Err is the underlying cause, if any.
type Failure struct {
	Err      error
	Message  string
	Kind     ErrorKind
	Required int // bytes needed, set for capacity failures
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure returns the Failure in err's chain, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// FieldError reports a query parameter that could not be interpreted.
type FieldError struct {
	Err   error
	Field string
	Value string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
