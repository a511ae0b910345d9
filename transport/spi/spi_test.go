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

package spi

import (
	"context"
	"math/bits"
	"sync"
	"testing"
	"time"

	"github.com/ZaparooProject/go-fishtag/internal/frame"
	"github.com/ZaparooProject/go-fishtag/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/spi"
)

// mockConn speaks the PN532 SPI framing with LSB-first bytes.
type mockConn struct {
	reply  func(cmd []byte) [][]byte
	queue  [][]byte
	writes [][]byte
	mu     sync.Mutex
}

func (*mockConn) String() string { return "mock" }
func (*mockConn) Duplex() conn.Duplex { return conn.Full }
func (*mockConn) TxPackets([]spi.Packet) error { return nil }

func (m *mockConn) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	plain := reverse(w)
	switch plain[0] {
	case opDataWrite:
		body := plain[1:]
		m.writes = append(m.writes, body)
		if m.reply != nil && len(body) > 6 && body[5] == frame.HostToPN532 {
			m.queue = append(m.queue, m.reply(body)...)
		}
	case opStatusRead:
		clear(r)
		if len(m.queue) > 0 {
			r[1] = bits.Reverse8(statusReady)
		}
	case opDataRead:
		clear(r)
		if len(m.queue) > 0 {
			copy(r[1:], reverse(m.queue[0]))
			m.queue = m.queue[1:]
		}
	}
	return nil
}

func response(data ...byte) []byte {
	body := append([]byte{frame.PN532ToHost}, data...)
	out := []byte{0x00, 0x00, 0xFF, byte(len(body)), -byte(len(body))}
	out = append(out, body...)
	return append(out, -frame.Checksum(body), 0x00)
}

func TestSendCommand(t *testing.T) {
	t.Parallel()

	c := &mockConn{reply: func([]byte) [][]byte {
		return [][]byte{frame.AckFrame, response(0x4B, 0x01, 0x01, 0x00, 0x44, 0x00, 0x07, 0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66)}
	}}
	tr := NewWithConn(c, "mock", zerolog.Nop())

	got, err := tr.SendCommand(context.Background(), 0x4A, []byte{0x02, 0x00})
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), got[0])
	assert.Len(t, got, 13)

	want, err := frame.Build(0x4A, []byte{0x02, 0x00})
	require.NoError(t, err)
	require.NotEmpty(t, c.writes)
	assert.Equal(t, want, c.writes[0])
}

func TestSendCommand_NoACK(t *testing.T) {
	t.Parallel()

	tr := NewWithConn(&mockConn{}, "mock", zerolog.Nop())
	_, err := tr.SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, transport.ErrNoACK)
}

func TestSendCommand_Timeout(t *testing.T) {
	t.Parallel()

	c := &mockConn{reply: func([]byte) [][]byte { return [][]byte{frame.AckFrame} }}
	tr := NewWithConn(c, "mock", zerolog.Nop())
	tr.SetResponseTimeout(20 * time.Millisecond)

	_, err := tr.SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, transport.ErrTimeout)
}

func TestClose(t *testing.T) {
	t.Parallel()

	tr := NewWithConn(&mockConn{}, "mock", zerolog.Nop())
	require.NoError(t, tr.Close())
	_, err := tr.SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, transport.ErrClosed)
}

func TestReverse(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{0x80, 0xC0, 0x2B}, reverse([]byte{0x01, 0x03, 0xD4}))
}
