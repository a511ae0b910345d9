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

// Package pcsc reads and writes Type 2 tags through PC/SC contactless readers
// such as the ACR122U.
package pcsc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
	"github.com/ZaparooProject/go-fishtag/internal/type2"
	"github.com/ebfe/scard"
	"github.com/rs/zerolog"
)

var (
	ErrNoReaders = errors.New("pcsc: no readers found")
	ErrNoCard    = errors.New("pcsc: no card connected")
)

// APDUError is a status word other than 90 00.
type APDUError struct {
	Op       string
	SW1, SW2 byte
}

func (e *APDUError) Error() string {
	return fmt.Sprintf("pcsc: %s: status %02X %02X", e.Op, e.SW1, e.SW2)
}

// Card is the part of *scard.Card the reader uses.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

// Context is the part of *scard.Context the reader uses.
type Context interface {
	ListReaders() ([]string, error)
	GetStatusChange(states []scard.ReaderState, timeout time.Duration) error
	Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (Card, error)
	Release() error
}

type scardContext struct{ *scard.Context }

func (c scardContext) Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (Card, error) {
	card, err := c.Context.Connect(reader, mode, proto)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}
	return card, nil
}

// Pseudo-APDUs understood by PC/SC contactless readers.
func getUIDAPDU() []byte { return []byte{0xFF, 0xCA, 0x00, 0x00, 0x00} }
func readBinaryAPDU(page byte) []byte { return []byte{0xFF, 0xB0, 0x00, page, type2.ReadSize} }

func updateBinaryAPDU(page byte, data [type2.PageSize]byte) []byte {
	return append([]byte{0xFF, 0xD6, 0x00, page, type2.PageSize}, data[:]...)
}

// Reader implements fishtag.Reader on one PC/SC reader slot. PC/SC exposes a
// single card per slot, so a scan finds at most one tag.
type Reader struct {
	ctx  Context
	card Card
	log  zerolog.Logger
	name string
	uid  []byte
	mu   syncutil.Mutex
}

// Open establishes a PC/SC context and uses the named reader, or the first
// contactless reader when name is empty.
func Open(name string, log zerolog.Logger) (*Reader, error) {
	sc, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc: establish context: %w", err)
	}
	r, err := New(scardContext{sc}, name, log)
	if err != nil {
		_ = sc.Release()
		return nil, err
	}
	return r, nil
}

// ListReaders returns the contactless reader names known to PC/SC.
func ListReaders() ([]string, error) {
	sc, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc: establish context: %w", err)
	}
	defer func() { _ = sc.Release() }()

	readers, err := sc.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("pcsc: list readers: %w", err)
	}
	return contactless(readers), nil
}

// New uses an established context.
func New(ctx Context, name string, log zerolog.Logger) (*Reader, error) {
	if name == "" {
		readers, err := ctx.ListReaders()
		if err != nil {
			return nil, fmt.Errorf("pcsc: list readers: %w", err)
		}
		readers = contactless(readers)
		if len(readers) == 0 {
			return nil, ErrNoReaders
		}
		name = readers[0]
	}
	return &Reader{ctx: ctx, name: name, log: log.With().Str("reader", name).Logger()}, nil
}

// contactless drops SAM slots, which list alongside the PICC slot on dual
// interface readers.
func contactless(readers []string) []string {
	out := readers[:0:0]
	for _, r := range readers {
		if strings.Contains(strings.ToUpper(r), "SAM") {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Name is the PC/SC reader name.
func (r *Reader) Name() string { return r.name }

func (r *Reader) cardPresent() (bool, error) {
	states := []scard.ReaderState{{Reader: r.name, CurrentState: scard.StateUnaware}}
	if err := r.ctx.GetStatusChange(states, 0); err != nil && !errors.Is(err, scard.ErrTimeout) {
		return false, fmt.Errorf("pcsc: status change: %w", err)
	}
	return states[0].EventState&scard.StatePresent != 0, nil
}

func transmit(card Card, op string, cmd []byte) ([]byte, error) {
	if card == nil {
		return nil, ErrNoCard
	}
	res, err := card.Transmit(cmd)
	if err != nil {
		if removed(err) {
			return nil, fmt.Errorf("%w: %w", fishtag.ErrTagUnavailable, err)
		}
		return nil, fmt.Errorf("pcsc: %s: %w", op, err)
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("pcsc: %s: short response", op)
	}
	sw1, sw2 := res[len(res)-2], res[len(res)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, &APDUError{Op: op, SW1: sw1, SW2: sw2}
	}
	return res[:len(res)-2], nil
}

func removed(err error) bool {
	return errors.Is(err, scard.ErrRemovedCard) ||
		errors.Is(err, scard.ErrResetCard) ||
		errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrUnpoweredCard)
}

// connectCard replaces the current card connection and returns its UID.
// Caller holds mu.
func (r *Reader) connectCard() ([]byte, error) {
	if r.card != nil {
		_ = r.card.Disconnect(scard.LeaveCard)
		r.card = nil
	}
	card, err := r.ctx.Connect(r.name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, fmt.Errorf("pcsc: connect %s: %w", r.name, err)
	}
	uid, err := transmit(card, "get uid", getUIDAPDU())
	if err != nil {
		_ = card.Disconnect(scard.LeaveCard)
		return nil, err
	}
	r.card, r.uid = card, uid
	return uid, nil
}

// Tag is the card found by the last scan.
type Tag struct {
	*type2.Tag
	reader *Reader
	uid    []byte
}

func (t *Tag) ReadPages(_ context.Context, page uint8) ([]byte, error) {
	t.reader.mu.Lock()
	defer t.reader.mu.Unlock()
	return transmit(t.reader.card, "read binary", readBinaryAPDU(page))
}

func (t *Tag) WritePage(_ context.Context, page uint8, data [type2.PageSize]byte) error {
	t.reader.mu.Lock()
	defer t.reader.mu.Unlock()
	_, err := transmit(t.reader.card, "update binary", updateBinaryAPDU(page, data))
	return err
}

// Discover implements fishtag.Reader.
func (r *Reader) Discover(ctx context.Context, tech fishtag.Technology) ([]fishtag.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !tech.Has(fishtag.ISO14443) {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	present, err := r.cardPresent()
	if err != nil || !present {
		return nil, err
	}
	uid, err := r.connectCard()
	if err != nil {
		r.log.Debug().Err(err).Msg("card present but not connectable")
		return nil, nil
	}
	t := &Tag{reader: r, uid: uid}
	t.Tag = type2.NewTag(uid, t)
	return []fishtag.Tag{t}, nil
}

// Connect implements fishtag.Reader. It checks the card still answers with
// the same UID, reconnecting once if the card was reset.
func (r *Reader) Connect(ctx context.Context, tag fishtag.Tag) error {
	t, ok := tag.(*Tag)
	if !ok || t.reader != r {
		return fmt.Errorf("pcsc: tag %s was not discovered by this reader", tag.ID())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	uid, err := transmit(r.card, "get uid", getUIDAPDU())
	if err != nil {
		r.log.Debug().Err(err).Msg("reconnecting card")
		uid, err = r.connectCard()
	}
	if err == nil && !bytes.Equal(uid, t.uid) {
		err = fmt.Errorf("%w: a different card is present", fishtag.ErrTagUnavailable)
	}
	t.MarkAvailable(err == nil)
	if err != nil && !errors.Is(err, fishtag.ErrTagUnavailable) {
		err = fmt.Errorf("%w: %w", fishtag.ErrTagUnavailable, err)
	}
	return err
}

// Close disconnects the card and releases the context.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.card != nil {
		_ = r.card.Disconnect(scard.LeaveCard)
		r.card = nil
	}
	if err := r.ctx.Release(); err != nil {
		return fmt.Errorf("pcsc: release: %w", err)
	}
	return nil
}

var _ fishtag.Reader = (*Reader)(nil)
