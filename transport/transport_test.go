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

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := &Error{Op: "waitAck", Port: "/dev/ttyUSB0", Err: ErrNoACK}
	assert.Equal(t, "waitAck /dev/ttyUSB0: no ACK received", err.Error())
	require.ErrorIs(t, err, ErrNoACK)
	assert.True(t, err.Retryable())

	assert.False(t, (&Error{Op: "open", Err: errors.New("denied")}).Retryable())
	assert.Equal(t, "open: denied", (&Error{Op: "open", Err: errors.New("denied")}).Error())
}

func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
