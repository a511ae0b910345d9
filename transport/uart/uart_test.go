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

package uart

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ZaparooProject/go-fishtag/internal/frame"
	"github.com/ZaparooProject/go-fishtag/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort answers every command frame through reply.
type fakePort struct {
	reply   func(cmd []byte) []byte
	rx      []byte
	writes  [][]byte
	mu      sync.Mutex
	closed  bool
	readErr error
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, append([]byte(nil), b...))
	if p.reply != nil && len(b) > 6 && b[5] == frame.HostToPN532 {
		p.rx = append(p.rx, p.reply(b)...)
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.readErr != nil {
		defer p.mu.Unlock()
		return 0, p.readErr
	}
	if len(p.rx) == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	defer p.mu.Unlock()
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (*fakePort) Drain() error { return nil }
func (*fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) sent(data []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, w := range p.writes {
		if bytes.Equal(w, data) {
			count++
		}
	}
	return count
}

func response(data ...byte) []byte {
	body := append([]byte{frame.PN532ToHost}, data...)
	out := []byte{0x00, 0x00, 0xFF, byte(len(body)), -byte(len(body))}
	out = append(out, body...)
	return append(out, -frame.Checksum(body), 0x00)
}

func newTestTransport(p *fakePort) *Transport {
	tr := NewWithPort(p, "fake", zerolog.Nop())
	tr.SetResponseTimeout(100 * time.Millisecond)
	return tr
}

func TestSendCommand_Firmware(t *testing.T) {
	t.Parallel()

	p := &fakePort{reply: func([]byte) []byte {
		return append(append([]byte(nil), frame.AckFrame...), response(0x03, 0x32, 0x01, 0x06, 0x07)...)
	}}
	tr := newTestTransport(p)

	got, err := tr.SendCommand(context.Background(), 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x32, 0x01, 0x06, 0x07}, got)

	want, err := frame.Build(0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.sent(want))
	assert.Equal(t, 1, p.sent(wakeSequence))
	assert.Equal(t, 1, p.sent(frame.AckFrame), "host acknowledges the response")
}

func TestSendCommand_LeadingGarbage(t *testing.T) {
	t.Parallel()

	p := &fakePort{reply: func([]byte) []byte {
		out := []byte{0x55, 0x00}
		out = append(out, frame.AckFrame...)
		out = append(out, 0x00, 0x00)
		return append(out, response(0x15)...)
	}}

	got, err := newTestTransport(p).SendCommand(context.Background(), 0x14, []byte{0x01})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSendCommand_NACKRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	p := &fakePort{reply: func([]byte) []byte {
		calls++
		if calls == 1 {
			return frame.NackFrame
		}
		return append(append([]byte(nil), frame.AckFrame...), response(0x03, 0x32, 0x01, 0x06, 0x07)...)
	}}

	_, err := newTestTransport(p).SendCommand(context.Background(), 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSendCommand_NoACK(t *testing.T) {
	t.Parallel()

	p := &fakePort{}
	_, err := newTestTransport(p).SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, transport.ErrNoACK)

	var terr *transport.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "ack", terr.Op)
}

func TestSendCommand_ResponseTimeout(t *testing.T) {
	t.Parallel()

	p := &fakePort{reply: func([]byte) []byte { return frame.AckFrame }}
	_, err := newTestTransport(p).SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, transport.ErrTimeout)
}

func TestSendCommand_ChecksumNACKed(t *testing.T) {
	t.Parallel()

	bad := response(0x03, 0x32)
	bad[len(bad)-2]++
	p := &fakePort{}
	p.reply = func([]byte) []byte {
		return append(append([]byte(nil), frame.AckFrame...), bad...)
	}
	tr := newTestTransport(p)

	// The fake never repeats the response, so the command times out after
	// the corrupted frame is NACKed.
	_, err := tr.SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, transport.ErrTimeout)
	assert.Equal(t, 1, p.sent(frame.NackFrame))
}

func TestSendCommand_DeviceError(t *testing.T) {
	t.Parallel()

	errFrame := []byte{0x00, 0x00, 0xFF, 0x01, 0xFF, frame.ErrorTFI, 0x81, 0x00}
	p := &fakePort{reply: func([]byte) []byte {
		return append(append([]byte(nil), frame.AckFrame...), errFrame...)
	}}

	_, err := newTestTransport(p).SendCommand(context.Background(), 0x40, []byte{0x01, 0x30, 0x04})
	var derr *frame.DeviceError
	require.ErrorAs(t, err, &derr)
}

func TestSendCommand_WrongResponseCode(t *testing.T) {
	t.Parallel()

	p := &fakePort{reply: func([]byte) []byte {
		return append(append([]byte(nil), frame.AckFrame...), response(0x41, 0x00)...)
	}}
	_, err := newTestTransport(p).SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, frame.ErrUnexpected)
}

func TestSendCommand_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &fakePort{}
	start := time.Now()
	_, err := newTestTransport(p).SendCommand(ctx, 0x02, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Millisecond)
	assert.Empty(t, p.writes, "nothing is written for a cancelled context")
}

func TestSendCommand_ReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("device unplugged")
	p := &fakePort{readErr: boom}
	_, err := newTestTransport(p).SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, boom)
}

func TestClose(t *testing.T) {
	t.Parallel()

	p := &fakePort{}
	tr := newTestTransport(p)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.True(t, p.closed)

	_, err := tr.SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, transport.ErrClosed)
	assert.Equal(t, "uart:fake", tr.String())
}
