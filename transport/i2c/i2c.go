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

// Package i2c drives a PN532 over I2C using periph.io.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-fishtag/internal/frame"
	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
	"github.com/ZaparooProject/go-fishtag/transport"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// Address is the 7-bit PN532 address. The datasheet's 0x48 includes the
	// R/W bit.
	Address = 0x24

	statusReady  = 0x01
	maxClockFreq = 400 * physic.KiloHertz

	// maxRead covers the status byte plus the longest normal frame.
	maxRead = 1 + 5 + frame.MaxDataLength + 2 + 1
)

// Transport implements pn532.Transport over I2C.
type Transport struct {
	dev             *i2c.Dev
	bus             i2c.Bus
	log             zerolog.Logger
	name            string
	responseTimeout time.Duration
	mu              syncutil.Mutex
	closed          bool
}

// busPath strips an address suffix such as "/dev/i2c-1:0x24".
func busPath(name string) string {
	bus, _, _ := strings.Cut(name, ":")
	return bus
}

// New initializes periph.io and opens the named bus.
func New(name string, log zerolog.Logger) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, &transport.Error{Op: "host init", Port: name, Err: err}
	}
	bus, err := i2creg.Open(busPath(name))
	if err != nil {
		return nil, &transport.Error{Op: "open", Port: name, Err: err}
	}
	if err := bus.SetSpeed(maxClockFreq); err != nil {
		log.Debug().Err(err).Msg("keeping default i2c clock")
	}
	return NewWithBus(bus, name, log), nil
}

// NewWithBus talks to the PN532 on an already opened bus.
func NewWithBus(bus i2c.Bus, name string, log zerolog.Logger) *Transport {
	return &Transport{
		dev:             &i2c.Dev{Addr: Address, Bus: bus},
		bus:             bus,
		name:            name,
		log:             log.With().Str("transport", "i2c").Str("bus", name).Logger(),
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
	return "i2c:" + t.name
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
		if attempt > 0 {
			t.log.Debug().Err(lastErr).Int("attempt", attempt).Msgf("retrying command 0x%02X", cmd)
		}
		if err := t.write("send", out); err != nil {
			return nil, err
		}
		lastErr = t.waitACK(ctx)
		if lastErr == nil {
			break
		}
		var terr *transport.Error
		if !errors.As(lastErr, &terr) || !terr.Retryable() {
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

// Close releases the bus when it was opened by New.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if closer, ok := t.bus.(i2c.BusCloser); ok {
		if err := closer.Close(); err != nil {
			return &transport.Error{Op: "close", Port: t.name, Err: err}
		}
	}
	return nil
}

func (t *Transport) write(op string, data []byte) error {
	if err := t.dev.Tx(data, nil); err != nil {
		return &transport.Error{Op: op, Port: t.name, Err: err}
	}
	return nil
}

// waitReady polls the status byte with exponential backoff until it reads
// ready or timeout passes.
func (t *Transport) waitReady(ctx context.Context, op string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	delay := time.Millisecond
	status := make([]byte, 1)

	for {
		if err := t.dev.Tx(nil, status); err != nil {
			return &transport.Error{Op: op, Port: t.name, Err: err}
		}
		if status[0] == statusReady {
			return nil
		}
		if time.Now().After(deadline) {
			return &transport.Error{Op: op, Port: t.name, Err: transport.ErrNotReady}
		}
		if err := transport.Sleep(ctx, delay); err != nil {
			return err
		}
		if delay < 16*time.Millisecond {
			delay *= 2
		}
	}
}

// read fetches n bytes in one transaction. The PN532 restarts every read at
// the status byte, so a frame cannot be split across transactions.
func (t *Transport) read(op string, n int) ([]byte, error) {
	buf := make([]byte, n+1)
	if err := t.dev.Tx(nil, buf); err != nil {
		return nil, &transport.Error{Op: op, Port: t.name, Err: err}
	}
	if buf[0] != statusReady {
		return nil, &transport.Error{Op: op, Port: t.name, Err: transport.ErrNotReady}
	}
	return buf[1:], nil
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

// receive reads the response frame, NACKing corrupted ones so the PN532
// repeats them.
func (t *Transport) receive(ctx context.Context) (frame.Frame, error) {
	var lastErr error
	for attempt := 0; attempt < transport.FrameRetries; attempt++ {
		if err := t.waitReady(ctx, "receive", t.responseTimeout); err != nil {
			if errors.Is(err, transport.ErrNotReady) {
				return frame.Frame{}, &transport.Error{Op: "receive", Port: t.name, Err: transport.ErrTimeout}
			}
			return frame.Frame{}, err
		}
		buf, err := t.read("receive", maxRead)
		if err != nil {
			return frame.Frame{}, err
		}
		f, _, err := frame.Parse(buf)
		if err == nil && (f.Kind == frame.KindData || f.Kind == frame.KindError) {
			return f, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: control frame", frame.ErrUnexpected)
		}
		lastErr = err
		t.log.Debug().Err(err).Int("attempt", attempt).Msg("bad response frame")
		if werr := t.write("nack", frame.NackFrame); werr != nil {
			return frame.Frame{}, werr
		}
	}
	return frame.Frame{}, &transport.Error{Op: "receive", Port: t.name, Err: lastErr}
}
