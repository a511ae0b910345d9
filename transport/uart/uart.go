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

// Package uart drives a PN532 over a serial (HSU) link.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/ZaparooProject/go-fishtag/internal/frame"
	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
	"github.com/ZaparooProject/go-fishtag/transport"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

const baudRate = 115200

// wakeSequence is 0x55 followed by enough idle bytes for the PN532 to leave
// low-power mode before the first real frame arrives.
var wakeSequence = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Port is the part of serial.Port the transport needs.
type Port interface {
	io.ReadWriteCloser
	Drain() error
	SetReadTimeout(t time.Duration) error
}

// Transport implements pn532.Transport over UART.
type Transport struct {
	port            Port
	log             zerolog.Logger
	name            string
	pending         []byte
	responseTimeout time.Duration
	mu              syncutil.Mutex
	closed          bool
}

// readTimeout is the per-Read poll interval. Windows drivers need longer.
func readTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New opens the named serial port at 115200 8N1.
func New(name string, log zerolog.Logger) (*Transport, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, &transport.Error{Op: "open", Port: name, Err: err}
	}
	if err := port.SetReadTimeout(readTimeout()); err != nil {
		_ = port.Close()
		return nil, &transport.Error{Op: "set read timeout", Port: name, Err: err}
	}
	return NewWithPort(port, name, log), nil
}

// NewWithPort wraps an already configured port. The port's read timeout must
// be finite so reads can observe cancellation.
func NewWithPort(port Port, name string, log zerolog.Logger) *Transport {
	return &Transport{
		port:            port,
		name:            name,
		log:             log.With().Str("transport", "uart").Str("port", name).Logger(),
		responseTimeout: transport.DefaultResponseTimeout,
	}
}

// SetResponseTimeout bounds how long SendCommand waits for a response frame.
func (t *Transport) SetResponseTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responseTimeout = d
}

// String names the transport for logs.
func (t *Transport) String() string {
	return "uart:" + t.name
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

	t.pending = t.pending[:0]
	var lastErr error
	for attempt := 0; attempt < transport.FrameRetries; attempt++ {
		if attempt > 0 {
			t.log.Debug().Err(lastErr).Int("attempt", attempt).Msgf("retrying command 0x%02X", cmd)
		}
		if err := t.send(out); err != nil {
			return nil, err
		}
		lastErr = t.waitACK(ctx)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			return nil, lastErr
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	f, err := t.receive(ctx)
	if err != nil {
		return nil, err
	}
	if err := t.write("ack", frame.AckFrame); err != nil {
		return nil, err
	}
	payload, err := frame.Response(cmd, f)
	if err != nil {
		return nil, fmt.Errorf("command 0x%02X: %w", cmd, err)
	}
	return payload, nil
}

// Close releases the port. Further commands fail with ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return &transport.Error{Op: "close", Port: t.name, Err: err}
	}
	return nil
}

func isRetryable(err error) bool {
	var terr *transport.Error
	return errors.As(err, &terr) && terr.Retryable()
}

func (t *Transport) send(out []byte) error {
	if err := t.write("wake", wakeSequence); err != nil {
		return err
	}
	return t.write("send", out)
}

func (t *Transport) write(op string, data []byte) error {
	n, err := t.port.Write(data)
	if err != nil {
		return &transport.Error{Op: op, Port: t.name, Err: err}
	}
	if n != len(data) {
		return &transport.Error{Op: op, Port: t.name, Err: transport.ErrShort}
	}
	if err := t.port.Drain(); err != nil {
		return &transport.Error{Op: op, Port: t.name, Err: err}
	}
	return nil
}

// waitACK reads until an ACK frame shows up. A NACK or timeout is reported as
// a retryable error.
func (t *Transport) waitACK(ctx context.Context) error {
	buf, err := t.readFrame(ctx, "ack", transport.DefaultACKTimeout, func(f frame.Frame) bool {
		return f.Kind == frame.KindAck || f.Kind == frame.KindNack
	})
	if err != nil {
		return err
	}
	if buf.Kind == frame.KindNack {
		return &transport.Error{Op: "ack", Port: t.name, Err: transport.ErrNoACK}
	}
	return nil
}

func (t *Transport) receive(ctx context.Context) (frame.Frame, error) {
	return t.readFrame(ctx, "receive", t.responseTimeout, func(f frame.Frame) bool {
		return f.Kind == frame.KindData || f.Kind == frame.KindError
	})
}

// readFrame accumulates bytes until a frame accepted by want is parsed.
// Corrupted frames are NACKed so the PN532 repeats its last response. Bytes
// read past the accepted frame stay pending for the next call.
func (t *Transport) readFrame(
	ctx context.Context, op string, timeout time.Duration, want func(frame.Frame) bool,
) (frame.Frame, error) {
	deadline := time.Now().Add(timeout)
	chunk := make([]byte, 64)

	for {
		for len(t.pending) > 0 {
			f, consumed, err := frame.Parse(t.pending)
			t.pending = t.pending[consumed:]
			switch {
			case errors.Is(err, frame.ErrIncomplete):
			case err != nil:
				t.log.Debug().Err(err).Str("op", op).Msg("discarding bad frame")
				if op != "ack" {
					if nerr := t.write("nack", frame.NackFrame); nerr != nil {
						return frame.Frame{}, nerr
					}
				}
				continue
			case want(f):
				return f, nil
			default:
				continue
			}
			break
		}

		if err := ctx.Err(); err != nil {
			return frame.Frame{}, err
		}
		if time.Now().After(deadline) {
			sentinel := transport.ErrTimeout
			if op == "ack" {
				sentinel = transport.ErrNoACK
			}
			return frame.Frame{}, &transport.Error{Op: op, Port: t.name, Err: sentinel}
		}

		n, err := t.port.Read(chunk)
		if err != nil {
			return frame.Frame{}, &transport.Error{Op: op, Port: t.name, Err: err}
		}
		t.pending = append(t.pending, chunk[:n]...)
	}
}
