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

package pcsc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/reader/virtual"
	"github.com/ebfe/scard"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCard answers the reader pseudo-APDUs from a virtual tag.
type fakeCard struct {
	slot *fakeContext
	tag  *virtual.Tag
	gen  int
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	c.slot.mu.Lock()
	defer c.slot.mu.Unlock()
	if c.slot.tag == nil || c.slot.tag != c.tag || c.slot.gen != c.gen {
		return nil, scard.ErrRemovedCard
	}
	ok := []byte{0x90, 0x00}
	switch {
	case cmd[1] == 0xCA:
		uid := c.tag.Image()[:7]
		return append(uid, ok...), nil
	case cmd[1] == 0xB0:
		data, err := c.tag.ReadPages(context.Background(), cmd[3])
		if err != nil {
			return []byte{0x6A, 0x82}, nil
		}
		return append(data, ok...), nil
	case cmd[1] == 0xD6:
		var page [4]byte
		copy(page[:], cmd[5:9])
		if err := c.tag.WritePage(context.Background(), cmd[3], page); err != nil {
			return []byte{0x63, 0x00}, nil
		}
		return ok, nil
	}
	return []byte{0x6D, 0x00}, nil
}

func (*fakeCard) Disconnect(scard.Disposition) error { return nil }

// fakeContext is one reader slot. gen changes on every insertion.
type fakeContext struct {
	tag      *virtual.Tag
	readers  []string
	gen      int
	mu       sync.Mutex
	released bool
}

func (f *fakeContext) ListReaders() ([]string, error) { return f.readers, nil }

func (f *fakeContext) GetStatusChange(states []scard.ReaderState, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tag != nil {
		states[0].EventState = scard.StatePresent
	} else {
		states[0].EventState = scard.StateEmpty
	}
	return nil
}

func (f *fakeContext) Connect(string, scard.ShareMode, scard.Protocol) (Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tag == nil {
		return nil, scard.ErrNoSmartcard
	}
	return &fakeCard{slot: f, tag: f.tag, gen: f.gen}, nil
}

func (f *fakeContext) Release() error {
	f.released = true
	return nil
}

func (f *fakeContext) insert(t *virtual.Tag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tag = t
	f.gen++
}

var uid = []byte{0x04, 0x31, 0x42, 0x53, 0x64, 0x75, 0x86}

func TestNew_PicksContactlessReader(t *testing.T) {
	t.Parallel()

	ctx := &fakeContext{readers: []string{"ACS ACR1252 1S CL Reader SAM 0", "ACS ACR1252 1S CL Reader PICC 0"}}
	r, err := New(ctx, "", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "ACS ACR1252 1S CL Reader PICC 0", r.Name())

	_, err = New(&fakeContext{}, "", zerolog.Nop())
	require.ErrorIs(t, err, ErrNoReaders)
}

func TestReader_EmptySlot(t *testing.T) {
	t.Parallel()

	r, err := New(&fakeContext{}, "ACR122U", zerolog.Nop())
	require.NoError(t, err)
	tags, err := r.Discover(context.Background(), fishtag.ISO14443)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestReader_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	slot := &fakeContext{}
	slot.insert(virtual.NewNTAG213(uid))
	r, err := New(slot, "ACR122U", zerolog.Nop())
	require.NoError(t, err)

	tags, err := r.Discover(ctx, fishtag.ISO14443)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "04314253647586", tags[0].ID())

	require.NoError(t, r.Connect(ctx, tags[0]))
	status, capacity, err := tags[0].QueryNDEFStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, fishtag.StatusReadWrite, status)
	assert.Equal(t, 141, capacity)

	payload := []byte{0xD1, 0x01, 0x04, 'T', 0x02, 'e', 'n', 'x'}
	require.NoError(t, tags[0].WriteNDEF(ctx, payload))
	got, err := tags[0].ReadNDEF(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, r.Close())
	assert.True(t, slot.released)
}

func TestReader_ConnectDetectsRemovalAndSwap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	slot := &fakeContext{}
	slot.insert(virtual.NewNTAG213(uid))
	r, err := New(slot, "ACR122U", zerolog.Nop())
	require.NoError(t, err)
	tags, err := r.Discover(ctx, fishtag.ISO14443)
	require.NoError(t, err)
	require.Len(t, tags, 1)

	slot.insert(nil)
	require.ErrorIs(t, r.Connect(ctx, tags[0]), fishtag.ErrTagUnavailable)
	assert.False(t, tags[0].IsAvailable())

	slot.insert(virtual.NewNTAG213([]byte{9, 9, 9, 9, 9, 9, 9}))
	require.ErrorIs(t, r.Connect(ctx, tags[0]), fishtag.ErrTagUnavailable, "different card")

	slot.insert(virtual.NewNTAG213(uid))
	require.NoError(t, r.Connect(ctx, tags[0]), "same card reinserted")
	assert.True(t, tags[0].IsAvailable())
}

func TestReader_APDUError(t *testing.T) {
	t.Parallel()

	slot := &fakeContext{}
	slot.insert(virtual.NewNTAG213(uid))
	r, err := New(slot, "ACR122U", zerolog.Nop())
	require.NoError(t, err)
	tags, err := r.Discover(context.Background(), fishtag.ISO14443)
	require.NoError(t, err)

	// Page 3 is outside the user area of the virtual tag.
	err = tags[0].(*Tag).WritePage(context.Background(), 3, [4]byte{})
	var apduErr *APDUError
	require.ErrorAs(t, err, &apduErr)
	assert.Equal(t, "pcsc: update binary: status 63 00", apduErr.Error())
}
