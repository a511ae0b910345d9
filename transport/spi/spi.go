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

// Package spi drives a PN532 over SPI using periph.io.
package spi

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/ZaparooProject/go-fishtag/internal/frame"
	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
	"github.com/ZaparooProject/go-fishtag/transport"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPI operation prefixes
const (
	opDataWrite  = 0x01
	opStatusRead = 0x02
	opDataRead   = 0x03

	statusReady = 0x01
	defaultFreq = 1 * physic.MegaHertz

	maxRead = 5 + frame.MaxDataLength + 2 + 1
)

// Transport implements pn532.Transport over SPI. The PN532 shifts LSB first;
// bytes are bit-reversed on the wire so Mode0 MSB-first ports work.
type Transport struct {
	conn            spi.Conn
	port            spi.PortCloser
	log             zerolog.Logger
	name            string
	responseTimeout time.Duration
	mu              syncutil.Mutex
	closed          bool
}

// New initializes periph.io and connects to the named SPI port.
func New(name string, log zerolog.Logger) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, &transport.Error{Op: "host init", Port: name, Err: err}
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, &transport.Error{Op: "open", Port: name, Err: err}
	}
	c, err := port.Connect(defaultFreq, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, &transport.Error{Op: "connect", Port: name, Err: err}
	}
	t := NewWithConn(c, name, log)
	t.port = port
	return t, nil
}

// NewWithConn uses an already connected SPI conn.
func NewWithConn(c spi.Conn, name string, log zerolog.Logger) *Transport {
	return &Transport{
		conn:            c,
		name:            name,
		log:             log.With().Str("transport", "spi").Str("port", name).Logger(),
		responseTimeout: transport.DefaultResponseTimeout,
	}
}

// SetResponseTimeout bounds how long SendCommand waits for a response frame.
func (t *Transport) SetResponseTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responseTimeout = d
}

func (t *Transport) String() string {
	return "spi:" + t.name
}

func reverse(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = bits.Reverse8(b)
	}
	return out
}

// SendCommand writes cmd with args and returns the response payload following
// the response code.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := frame.Build(cmd, args)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < transport.FrameRetries; attempt++ {
		if err := t.write("send", out); err != nil {
			return nil, err
		}
		if lastErr = t.waitACK(ctx); lastErr == nil {
			break
		}
		var terr *transport.Error
		if !errors.As(lastErr, &terr) || !terr.Retryable() {
			return nil, lastErr
		}
		t.log.Debug().Err(lastErr).Int("attempt", attempt).Msgf("retrying command 0x%02X", cmd)
	}
	if lastErr != nil {
		return nil, lastErr
	}

	if err := t.waitReady(ctx, "receive", t.responseTimeout); err != nil {
		if errors.Is(err, transport.ErrNotReady) {
			return nil, &transport.Error{Op: "receive", Port: t.name, Err: transport.ErrTimeout}
		}
		return nil, err
	}
	buf, err := t.read("receive", maxRead)
	if err != nil {
		return nil, err
	}
	f, _, err := frame.Parse(buf)
	if err != nil {
		return nil, &transport.Error{Op: "receive", Port: t.name, Err: err}
	}
	payload, err := frame.Response(cmd, f)
	if err != nil {
		return nil, fmt.Errorf("command 0x%02X: %w", cmd, err)
	}
	return payload, nil
}

// Close releases the port when it was opened by New.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return &transport.Error{Op: "close", Port: t.name, Err: err}
		}
	}
	return nil
}

func (t *Transport) write(op string, data []byte) error {
	w := append([]byte{opDataWrite}, data...)
	if err := t.conn.Tx(reverse(w), nil); err != nil {
		return &transport.Error{Op: op, Port: t.name, Err: err}
	}
	return nil
}

func (t *Transport) read(op string, n int) ([]byte, error) {
	w := make([]byte, n+1)
	w[0] = opDataRead
	r := make([]byte, n+1)
	if err := t.conn.Tx(reverse(w), r); err != nil {
		return nil, &transport.Error{Op: op, Port: t.name, Err: err}
	}
	return reverse(r[1:]), nil
}

func (t *Transport) waitReady(ctx context.Context, op string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	w := reverse([]byte{opStatusRead, 0x00})
	r := make([]byte, 2)

	for {
		if err := t.conn.Tx(w, r); err != nil {
			return &transport.Error{Op: op, Port: t.name, Err: err}
		}
		if bits.Reverse8(r[1]) == statusReady {
			return nil
		}
		if time.Now().After(deadline) {
			return &transport.Error{Op: op, Port: t.name, Err: transport.ErrNotReady}
		}
		if err := transport.Sleep(ctx, time.Millisecond); err != nil {
			return err
		}
	}
}

func (t *Transport) waitACK(ctx context.Context) error {
	if err := t.waitReady(ctx, "ack", transport.DefaultACKTimeout); err != nil {
		if errors.Is(err, transport.ErrNotReady) {
			return &transport.Error{Op: "ack", Port: t.name, Err: transport.ErrNoACK}
		}
		return err
	}
	buf, err := t.read("ack", len(frame.AckFrame))
	if err != nil {
		return err
	}
	f, _, err := frame.Parse(buf)
	if err != nil || f.Kind != frame.KindAck {
		return &transport.Error{Op: "ack", Port: t.name, Err: transport.ErrNoACK}
	}
	return nil
}
