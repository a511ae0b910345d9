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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	queryErr := errors.New("query failed")
	tests := []struct {
		queryErr error
		name     string
		reason   string
		status   NDEFStatus
		capacity int
		required int
		verdict  Verdict
	}{
		{name: "query error", status: StatusReadWrite, capacity: 500, required: 64, queryErr: queryErr, verdict: Retry},
		{name: "read only", status: StatusReadOnly, capacity: 500, required: 64, verdict: Fatal, reason: ReasonNotWritable},
		{name: "too small", status: StatusReadWrite, capacity: 32, required: 64, verdict: Fatal, reason: ReasonCapacitySmall},
		{name: "exact fit", status: StatusReadWrite, capacity: 64, required: 64, verdict: Ready},
		{name: "roomy", status: StatusReadWrite, capacity: 128, required: 64, verdict: Ready},
		{name: "not supported", status: StatusNotSupported, capacity: 0, required: 64, verdict: Fatal, reason: ReasonNotNDEF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := Classify(tt.status, tt.capacity, tt.required, tt.queryErr)
			assert.Equal(t, tt.verdict, res.Verdict)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.required, res.Required)
		})
	}
}

func TestClassify_CapacityError(t *testing.T) {
	t.Parallel()

	res := Classify(StatusReadWrite, 32, 64, nil)
	require.ErrorIs(t, res.Err, ErrCapacity)
	assert.Contains(t, res.Err.Error(), "need 64 bytes")
}

func TestClassifyRead(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Ready, ClassifyRead(StatusReadOnly, 10, nil).Verdict)
	assert.Equal(t, Ready, ClassifyRead(StatusReadWrite, 10, nil).Verdict)
	assert.Equal(t, Fatal, ClassifyRead(StatusNotSupported, 0, nil).Verdict)
	assert.Equal(t, Retry, ClassifyRead(StatusReadWrite, 10, errors.New("x")).Verdict)
}

type stubTag struct {
	err      error
	status   NDEFStatus
	capacity int
}

func (s *stubTag) ID() string { return "04A1B2C3" }

func (s *stubTag) QueryNDEFStatus(context.Context) (NDEFStatus, int, error) {
	return s.status, s.capacity, s.err
}
func (*stubTag) ReadNDEF(context.Context) ([]byte, error) { return nil, nil }
func (*stubTag) WriteNDEF(context.Context, []byte) error  { return nil }
func (*stubTag) IsAvailable() bool                       { return true }

type stubReader struct {
	connectErr error
	connects   int
}

func (*stubReader) Discover(context.Context, Technology) ([]Tag, error) { return nil, nil }
func (r *stubReader) Connect(context.Context, Tag) error {
	r.connects++
	return r.connectErr
}
func (*stubReader) Close() error { return nil }

func TestNegotiate_ConnectsFirst(t *testing.T) {
	t.Parallel()

	reader := &stubReader{connectErr: errors.New("rf lost")}
	_, err := Negotiate(context.Background(), reader, &stubTag{status: StatusReadWrite, capacity: 100}, 76)

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "04A1B2C3", ce.TagID)
	assert.Equal(t, 1, reader.connects)
}

func TestNegotiate_Classifies(t *testing.T) {
	t.Parallel()

	reader := &stubReader{}
	res, err := Negotiate(context.Background(), reader, &stubTag{status: StatusReadWrite, capacity: 10}, 76)
	require.NoError(t, err)
	assert.Equal(t, Fatal, res.Verdict)
	assert.Equal(t, 76, res.Required)

	res, err = NegotiateRead(context.Background(), reader, &stubTag{status: StatusReadOnly, capacity: 10})
	require.NoError(t, err)
	assert.Equal(t, Ready, res.Verdict)
}

func TestFailure_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	var err error = &Failure{Kind: KindWriteError, Message: "Update tag failed.", Err: cause}
	require.ErrorIs(t, err, cause)

	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, KindWriteError, f.Kind)
	assert.Equal(t, "write error: Update tag failed.: boom", err.Error())
	assert.Equal(t, "ErrorKind(99)", ErrorKind(99).String())
}
