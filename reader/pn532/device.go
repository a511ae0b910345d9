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

// Package pn532 discovers and exchanges with NFC Forum Type 2 tags through an
// NXP PN532 controller.
package pn532

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
	"github.com/rs/zerolog"
)

// PN532 commands
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSAMConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
	cmdInSelect            = 0x54
)

// SAM modes
const (
	SAMModeNormal byte = 0x01
)

const (
	rfItemMaxRetries = 0x05
	brTy106TypeA     = 0x00

	// MaxTargets is the most targets one InListPassiveTarget can report.
	MaxTargets = 2
)

// Transport sends one command frame and returns the payload after the
// response code. transport/uart, transport/i2c and transport/spi implement it.
type Transport interface {
	SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error)
	Close() error
}

var (
	ErrShortResponse = errors.New("pn532: response too short")
	ErrNoTarget      = errors.New("pn532: target not in field")
)

// StatusError is a non-zero status byte from a target exchange.
type StatusError struct {
	Op   string
	Code byte
}

var statusMessages = map[byte]string{
	0x01: "timeout",
	0x02: "CRC error",
	0x03: "parity error",
	0x0A: "RF field not activated in time",
	0x0B: "RF protocol error",
	0x13: "dataformat does not match",
	0x14: "authentication error",
	0x26: "operation not allowed",
	0x27: "wrong context for command",
	0x29: "target released by initiator",
	0x2B: "card disappeared",
}

func (e *StatusError) Error() string {
	if msg, ok := statusMessages[e.Code]; ok {
		return fmt.Sprintf("pn532: %s: %s (0x%02X)", e.Op, msg, e.Code)
	}
	return fmt.Sprintf("pn532: %s: status 0x%02X", e.Op, e.Code)
}

// Gone reports whether the status means the target left the field.
func (e *StatusError) Gone() bool {
	switch e.Code {
	case 0x01, 0x0A, 0x29, 0x2B:
		return true
	}
	return false
}

// FirmwareVersion is the GetFirmwareVersion reply.
type FirmwareVersion struct {
	IC        byte
	Version   byte
	Revision  byte
	Supported byte
}

func (f FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d", f.IC, f.Version, f.Revision)
}

// Target is one passive ISO14443A target.
type Target struct {
	ATQ    [2]byte
	UID    []byte
	Number byte
	SAK    byte
}

// Type2 reports whether the SAK matches an NFC Forum Type 2 tag.
func (t Target) Type2() bool { return t.SAK&0x60 == 0x00 }

// Device issues PN532 commands over a Transport.
type Device struct {
	transport Transport
	log       zerolog.Logger
	mu        syncutil.Mutex
}

// NewDevice wraps transport.
func NewDevice(transport Transport, log zerolog.Logger) *Device {
	return &Device{transport: transport, log: log.With().Str("device", "pn532").Logger()}
}

func (d *Device) call(ctx context.Context, cmd byte, args ...byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.transport.SendCommand(ctx, cmd, args)
	if err != nil {
		return nil, fmt.Errorf("pn532: command 0x%02X: %w", cmd, err)
	}
	return res, nil
}

// Init checks the firmware, puts the SAM in normal mode and bounds passive
// activation retries so a scan returns when the field is empty.
func (d *Device) Init(ctx context.Context) (FirmwareVersion, error) {
	fw, err := d.FirmwareVersion(ctx)
	if err != nil {
		return FirmwareVersion{}, err
	}
	if err := d.SAMConfiguration(ctx, SAMModeNormal); err != nil {
		return FirmwareVersion{}, err
	}
	if err := d.SetPassiveActivationRetries(ctx, 0x02); err != nil {
		return FirmwareVersion{}, err
	}
	d.log.Debug().Stringer("firmware", fw).Msg("pn532 ready")
	return fw, nil
}

// FirmwareVersion reads the IC and firmware version.
func (d *Device) FirmwareVersion(ctx context.Context) (FirmwareVersion, error) {
	res, err := d.call(ctx, cmdGetFirmwareVersion)
	if err != nil {
		return FirmwareVersion{}, err
	}
	if len(res) < 4 {
		return FirmwareVersion{}, fmt.Errorf("%w: firmware version %d bytes", ErrShortResponse, len(res))
	}
	return FirmwareVersion{IC: res[0], Version: res[1], Revision: res[2], Supported: res[3]}, nil
}

// SAMConfiguration sets the SAM mode with IRQ enabled.
func (d *Device) SAMConfiguration(ctx context.Context, mode byte) error {
	_, err := d.call(ctx, cmdSAMConfiguration, mode, 0x14, 0x01)
	return err
}

// SetPassiveActivationRetries sets MxRtyPassiveActivation. 0xFF retries forever.
func (d *Device) SetPassiveActivationRetries(ctx context.Context, n byte) error {
	_, err := d.call(ctx, cmdRFConfiguration, rfItemMaxRetries, 0xFF, 0x01, n)
	return err
}

// InListPassiveTarget scans for up to maxTg 106 kbps type A targets.
func (d *Device) InListPassiveTarget(ctx context.Context, maxTg byte) ([]Target, error) {
	res, err := d.call(ctx, cmdInListPassiveTarget, maxTg, brTy106TypeA)
	if err != nil {
		return nil, err
	}
	return parseTargets(res)
}

func parseTargets(res []byte) ([]Target, error) {
	if len(res) < 1 {
		return nil, fmt.Errorf("%w: InListPassiveTarget", ErrShortResponse)
	}
	n := int(res[0])
	targets := make([]Target, 0, n)
	off := 1
	for i := 0; i < n; i++ {
		// Tg, SENS_RES(2), SEL_RES, NFCIDLength
		if off+5 > len(res) {
			return nil, fmt.Errorf("%w: target %d header", ErrShortResponse, i+1)
		}
		t := Target{Number: res[off], ATQ: [2]byte{res[off+1], res[off+2]}, SAK: res[off+3]}
		uidLen := int(res[off+4])
		off += 5
		if off+uidLen > len(res) {
			return nil, fmt.Errorf("%w: target %d UID", ErrShortResponse, i+1)
		}
		t.UID = append([]byte(nil), res[off:off+uidLen]...)
		off += uidLen
		// Optional ATS for ISO14443-4 targets.
		if t.SAK&0x20 != 0 && off < len(res) {
			off += int(res[off])
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// InSelect makes tg the current target.
func (d *Device) InSelect(ctx context.Context, tg byte) error {
	res, err := d.call(ctx, cmdInSelect, tg)
	if err != nil {
		return err
	}
	return checkStatus("InSelect", res)
}

// InRelease releases tg, or every target when tg is 0.
func (d *Device) InRelease(ctx context.Context, tg byte) error {
	res, err := d.call(ctx, cmdInRelease, tg)
	if err != nil {
		return err
	}
	return checkStatus("InRelease", res)
}

// InDataExchange sends data to tg and returns the target's answer.
func (d *Device) InDataExchange(ctx context.Context, tg byte, data []byte) ([]byte, error) {
	res, err := d.call(ctx, cmdInDataExchange, append([]byte{tg}, data...)...)
	if err != nil {
		return nil, err
	}
	if err := checkStatus("InDataExchange", res); err != nil {
		return nil, err
	}
	return res[1:], nil
}

func checkStatus(op string, res []byte) error {
	if len(res) < 1 {
		return fmt.Errorf("%w: %s", ErrShortResponse, op)
	}
	if code := res[0] & 0x3F; code != 0 {
		return &StatusError{Op: op, Code: code}
	}
	return nil
}

// Close closes the transport.
func (d *Device) Close() error {
	return d.transport.Close()
}
