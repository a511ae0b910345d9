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

package pn532

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/transport"
)

func TestReader_RecoversBySoftReset(t *testing.T) {
	t.Parallel()

	r, sim := openSim(t, newNTAG213(1, 2, 3, 4, 5, 6, 7))
	r.SetRecovery(Recovery{Backoff: time.Millisecond})
	sim.failOnce = map[byte]error{cmdInListPassiveTarget: transport.ErrTimeout}
	before := len(sim.cmds)

	tags, err := r.Discover(context.Background(), fishtag.ISO14443)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t,
		[]byte{cmdInListPassiveTarget, cmdSAMConfiguration, cmdInListPassiveTarget},
		sim.cmds[before:])
}

func TestReader_RecoversByReopening(t *testing.T) {
	t.Parallel()

	r, broken := openSim(t)
	broken.failCmd = map[byte]error{
		cmdInListPassiveTarget: transport.ErrTimeout,
		cmdSAMConfiguration:    transport.ErrTimeout,
	}

	fresh := &simTransport{targets: []*simTarget{newNTAG213(9, 8, 7, 6, 5, 4, 3)}}
	reopens := 0
	r.SetRecovery(Recovery{Backoff: time.Millisecond, Reopen: func() (Transport, error) {
		reopens++
		if reopens == 1 {
			return nil, errors.New("port busy")
		}
		return fresh, nil
	}})

	tags, err := r.Discover(context.Background(), fishtag.ISO14443)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "09080706050403", tags[0].ID())
	assert.Equal(t, 2, reopens)
	assert.True(t, broken.closed)

	require.NoError(t, r.Connect(context.Background(), tags[0]), "later calls use the new device")
}

func TestReader_RecoveryGivesUp(t *testing.T) {
	t.Parallel()

	r, sim := openSim(t)
	sim.failCmd = map[byte]error{
		cmdInListPassiveTarget: transport.ErrTimeout,
		cmdSAMConfiguration:    transport.ErrNoACK,
	}
	r.SetRecovery(Recovery{Backoff: time.Millisecond, MaxAttempts: 2})

	_, err := r.Discover(context.Background(), fishtag.ISO14443)
	require.ErrorIs(t, err, transport.ErrTimeout)
	require.ErrorIs(t, err, transport.ErrNoACK)
}

func TestReader_NoRecoveryByDefault(t *testing.T) {
	t.Parallel()

	r, sim := openSim(t)
	sim.failOnce = map[byte]error{cmdInListPassiveTarget: transport.ErrTimeout}
	before := len(sim.cmds)

	_, err := r.Discover(context.Background(), fishtag.ISO14443)
	require.ErrorIs(t, err, transport.ErrTimeout)
	assert.Len(t, sim.cmds, before+1)
}

func TestDefaultRecovery(t *testing.T) {
	t.Parallel()

	rec := DefaultRecovery(nil)
	assert.Equal(t, 3, rec.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, rec.Backoff)

	r := NewReader(NewDevice(&simTransport{}, zerolog.Nop()), zerolog.Nop())
	r.SetRecovery(Recovery{})
	assert.Equal(t, 3, r.recovery.MaxAttempts)
}
