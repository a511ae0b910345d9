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

package libnfc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/reader/virtual"
	"github.com/ZaparooProject/go-fishtag/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNoTarget = errors.New("nfc: target released")

// fakeUltralight exposes a virtual tag the way libfreefare does.
type fakeUltralight struct {
	tag      *virtual.Tag
	connects int
}

func (f *fakeUltralight) UID() string { return fmt.Sprintf("%x", f.tag.Image()[:7]) }

func (f *fakeUltralight) Connect() error {
	f.connects++
	if !f.tag.Present() {
		return errNoTarget
	}
	return nil
}

func (*fakeUltralight) Disconnect() error { return nil }

func (f *fakeUltralight) ReadPage(page byte) ([4]byte, error) {
	var out [4]byte
	data, err := f.tag.ReadPages(context.Background(), page)
	if err != nil {
		return out, err
	}
	copy(out[:], data)
	return out, nil
}

func (f *fakeUltralight) WritePage(page byte, data [4]byte) error {
	return f.tag.WritePage(context.Background(), page, data)
}

type fakeScanner struct {
	err     error
	targets []Target
	closed  bool
}

func (s *fakeScanner) Scan() ([]Target, error) {
	var present []Target
	for _, t := range s.targets {
		if ul, ok := t.Ultralight.(*fakeUltralight); ok && !ul.tag.Present() {
			continue
		}
		present = append(present, t)
	}
	return present, s.err
}

func (s *fakeScanner) Close() error {
	s.closed = true
	return nil
}

func ultralight(tag *virtual.Tag) Target {
	ul := &fakeUltralight{tag: tag}
	return Target{Ultralight: ul, UID: ul.UID()}
}

func TestReader_DiscoverMixedTargets(t *testing.T) {
	t.Parallel()

	scanner := &fakeScanner{targets: []Target{
		ultralight(virtual.NewNTAG213([]byte{0x04, 0xAB, 0xCD, 0xEF, 0x01, 0x02, 0x03})),
		{UID: "a1b2c3d4"},
	}}
	r := New(scanner, zerolog.Nop())

	tags, err := r.Discover(context.Background(), fishtag.ISO14443)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "04ABCDEF010203", tags[0].ID())
	assert.Equal(t, "A1B2C3D4", tags[1].ID())

	status, _, err := tags[1].QueryNDEFStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fishtag.StatusNotSupported, status)
	require.Error(t, r.Connect(context.Background(), tags[1]))

	none, err := r.Discover(context.Background(), fishtag.ISO18092)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReader_ScanError(t *testing.T) {
	t.Parallel()

	boom := errors.New("device lost")
	_, err := New(&fakeScanner{err: boom}, zerolog.Nop()).Discover(context.Background(), fishtag.ISO14443)
	require.ErrorIs(t, err, boom)
}

func TestReader_RoundTripAndRemoval(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	vt := virtual.NewNTAG213([]byte{0x04, 1, 2, 3, 4, 5, 6})
	scanner := &fakeScanner{targets: []Target{ultralight(vt)}}
	r := New(scanner, zerolog.Nop())

	tags, err := r.Discover(ctx, fishtag.ISO14443)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	require.NoError(t, r.Connect(ctx, tags[0]))

	status, capacity, err := tags[0].QueryNDEFStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, fishtag.StatusReadWrite, status)
	assert.Equal(t, 141, capacity)

	payload := []byte{0xD1, 0x01, 0x02, 'U', 0x04, 'x'}
	require.NoError(t, tags[0].WriteNDEF(ctx, payload))
	got, err := tags[0].ReadNDEF(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	vt.Remove()
	require.ErrorIs(t, r.Connect(ctx, tags[0]), fishtag.ErrTagUnavailable)
	assert.False(t, tags[0].IsAvailable())

	require.NoError(t, r.Close())
	assert.True(t, scanner.closed)
}

func TestReader_EngineWrite(t *testing.T) {
	t.Parallel()

	vt := virtual.NewNTAG213([]byte{0x04, 9, 8, 7, 6, 5, 4})
	cfg := session.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	engine := session.NewEngine(New(&fakeScanner{targets: []Target{ultralight(vt)}}, zerolog.Nop()), cfg)

	out, err := engine.Write(context.Background(), fishtag.TagRecord{ObservationDate: fishtag.Date(2024, time.January, 2)})
	require.NoError(t, err)
	require.True(t, out.Success(), "%v", out.Failure)

	decoded, err := fishtag.DefaultCodec().DecodeDelivered(mustRead(t, vt))
	require.NoError(t, err)
	assert.Equal(t, "Jan 2, 2024", decoded.DateDisplay)
}

func mustRead(t *testing.T, vt *virtual.Tag) []byte {
	t.Helper()
	r := virtual.NewReader(zerolog.Nop(), vt)
	tags, err := r.Discover(context.Background(), fishtag.ISO14443)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	data, err := tags[0].ReadNDEF(context.Background())
	require.NoError(t, err)
	return data
}
