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
	"context"
	"fmt"
)

// NDEFStatus is the NDEF state a tag reports.
type NDEFStatus int

const (
	StatusNotSupported NDEFStatus = iota
	StatusReadWrite
	StatusReadOnly
)

func (s NDEFStatus) String() string {
	switch s {
	case StatusReadWrite:
		return "read-write"
	case StatusReadOnly:
		return "read-only"
	default:
		return "not supported"
	}
}

// Verdict is the negotiator's decision.
type Verdict int

const (
	// Ready means the read or write may proceed.
	Ready Verdict = iota
	// Retry means the status could not be determined; restart discovery.
	Retry
	// Fatal ends the session.
	Fatal
)

func (v Verdict) String() string {
	switch v {
	case Ready:
		return "ready"
	case Retry:
		return "retry"
	default:
		return "fatal"
	}
}

// Fatal reasons.
const (
	ReasonNotWritable   = "tag not writable"
	ReasonCapacitySmall = "capacity too small"
	ReasonNotNDEF       = "not an NDEF tag"
)

// NegotiationResult is the outcome of checking a tag's NDEF status.
type NegotiationResult struct {
	Err      error
	Reason   string
	Verdict  Verdict
	Status   NDEFStatus
	Capacity int
	Required int
}

// Classify decides whether a message of required bytes can be written to a
// tag reporting status and capacity. queryErr is the error of the status
// query itself.
func Classify(status NDEFStatus, capacity, required int, queryErr error) NegotiationResult {
	res := NegotiationResult{Status: status, Capacity: capacity, Required: required}
	switch {
	case queryErr != nil:
		res.Verdict, res.Err = Retry, queryErr
	case status == StatusReadOnly:
		res.Verdict, res.Reason, res.Err = Fatal, ReasonNotWritable, ErrReadOnly
	case status == StatusReadWrite && capacity < required:
		res.Verdict, res.Reason = Fatal, ReasonCapacitySmall
		res.Err = fmt.Errorf("%w: need %d bytes, tag holds %d", ErrCapacity, required, capacity)
	case status == StatusReadWrite:
		res.Verdict = Ready
	default:
		res.Verdict, res.Reason, res.Err = Fatal, ReasonNotNDEF, ErrNotNDEF
	}
	return res
}

// ClassifyRead decides whether a tag can be read. Read-only and read-write
// tags are both readable.
func ClassifyRead(status NDEFStatus, capacity int, queryErr error) NegotiationResult {
	res := NegotiationResult{Status: status, Capacity: capacity}
	switch {
	case queryErr != nil:
		res.Verdict, res.Err = Retry, queryErr
	case status == StatusReadOnly || status == StatusReadWrite:
		res.Verdict = Ready
	default:
		res.Verdict, res.Reason, res.Err = Fatal, ReasonNotNDEF, ErrNotNDEF
	}
	return res
}

// ConnectError reports a failed connect; no negotiation took place.
type ConnectError struct {
	Err   error
	TagID string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to tag %s: %v", e.TagID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Connect selects tag on reader, wrapping a failure in *ConnectError.
func Connect(ctx context.Context, reader Reader, tag Tag) error {
	if err := reader.Connect(ctx, tag); err != nil {
		return &ConnectError{TagID: tag.ID(), Err: err}
	}
	return nil
}

// Query asks a connected tag for its NDEF status and classifies it for a
// write of required bytes.
func Query(ctx context.Context, tag Tag, required int) NegotiationResult {
	status, capacity, err := tag.QueryNDEFStatus(ctx)
	return Classify(status, capacity, required, err)
}

// QueryRead asks a connected tag for its NDEF status and classifies it for reading.
func QueryRead(ctx context.Context, tag Tag) NegotiationResult {
	status, capacity, err := tag.QueryNDEFStatus(ctx)
	return ClassifyRead(status, capacity, err)
}

// Negotiate connects to tag and classifies it for a write of required bytes.
// A connect failure is returned as a *ConnectError; every other outcome is in
// the result.
func Negotiate(ctx context.Context, reader Reader, tag Tag, required int) (NegotiationResult, error) {
	if err := Connect(ctx, reader, tag); err != nil {
		return NegotiationResult{}, err
	}
	return Query(ctx, tag, required), nil
}

// NegotiateRead connects to tag and classifies it for reading.
func NegotiateRead(ctx context.Context, reader Reader, tag Tag) (NegotiationResult, error) {
	if err := Connect(ctx, reader, tag); err != nil {
		return NegotiationResult{}, err
	}
	return QueryRead(ctx, tag), nil
}
