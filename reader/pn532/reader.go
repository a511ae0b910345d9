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
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
	"github.com/ZaparooProject/go-fishtag/internal/type2"
	"github.com/rs/zerolog"
)

// Type 2 tag commands carried by InDataExchange
const (
	t2Read  = 0x30
	t2Write = 0xA2
)

// Reader implements fishtag.Reader on a PN532.
type Reader struct {
	dev      *Device
	recovery *Recovery
	log      zerolog.Logger
	mu       syncutil.Mutex
}

// NewReader wraps an initialized device.
func NewReader(dev *Device, log zerolog.Logger) *Reader {
	return &Reader{dev: dev, log: log.With().Str("reader", "pn532").Logger()}
}

// Open initializes the device behind transport and returns a reader for it.
func Open(ctx context.Context, transport Transport, log zerolog.Logger) (*Reader, error) {
	dev := NewDevice(transport, log)
	if _, err := dev.Init(ctx); err != nil {
		_ = dev.Close()
		return nil, err
	}
	return NewReader(dev, log), nil
}

// Tag is a target found by Discover.
type Tag struct {
	fishtag.Tag
	reader *Reader
	target Target
}

// Target is the target as last listed.
func (t *Tag) Target() Target {
	t.reader.mu.Lock()
	defer t.reader.mu.Unlock()
	return t.target
}

func (t *Tag) number() byte {
	t.reader.mu.Lock()
	defer t.reader.mu.Unlock()
	return t.target.Number
}

// pages gives type2.Tag page access through InDataExchange.
type pages struct{ tag *Tag }

func (p pages) ReadPages(ctx context.Context, page uint8) ([]byte, error) {
	return p.tag.reader.device().InDataExchange(ctx, p.tag.number(), []byte{t2Read, page})
}

func (p pages) WritePage(ctx context.Context, page uint8, data [type2.PageSize]byte) error {
	_, err := p.tag.reader.device().InDataExchange(ctx, p.tag.number(), append([]byte{t2Write, page}, data[:]...))
	return err
}

// unsupported stands in for targets that are not Type 2 tags.
type unsupported struct{ id string }

func (u unsupported) ID() string { return u.id }
func (unsupported) IsAvailable() bool { return true }

func (unsupported) QueryNDEFStatus(context.Context) (fishtag.NDEFStatus, int, error) {
	return fishtag.StatusNotSupported, 0, nil
}

func (unsupported) ReadNDEF(context.Context) ([]byte, error) { return nil, fishtag.ErrNotNDEF }

func (unsupported) WriteNDEF(context.Context, []byte) error { return fishtag.ErrNotNDEF }

func (r *Reader) newTag(t Target) *Tag {
	tag := &Tag{reader: r, target: t}
	if t.Type2() {
		tag.Tag = type2.NewTag(t.UID, pages{tag: tag})
	} else {
		tag.Tag = unsupported{id: fmt.Sprintf("%X", t.UID)}
	}
	return tag
}

// Discover implements fishtag.Reader. The PN532 only polls ISO14443A here.
func (r *Reader) Discover(ctx context.Context, tech fishtag.Technology) ([]fishtag.Tag, error) {
	if !tech.Has(fishtag.ISO14443) {
		return nil, nil
	}
	targets, err := r.device().InListPassiveTarget(ctx, MaxTargets)
	if err != nil && r.recoverable(ctx, err) {
		r.log.Warn().Err(err).Msg("scan failed, recovering device")
		if rerr := r.recoverDevice(ctx); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		targets, err = r.device().InListPassiveTarget(ctx, MaxTargets)
	}
	if err != nil {
		return nil, err
	}
	tags := make([]fishtag.Tag, 0, len(targets))
	for _, t := range targets {
		r.log.Debug().Hex("uid", t.UID).Uint8("sak", t.SAK).Msg("target listed")
		tags = append(tags, r.newTag(t))
	}
	return tags, nil
}

// Connect implements fishtag.Reader. It re-lists the field and selects the
// target with the tag's UID, which doubles as the presence probe.
func (r *Reader) Connect(ctx context.Context, tag fishtag.Tag) error {
	t, ok := tag.(*Tag)
	if !ok || t.reader != r {
		return fmt.Errorf("pn532: tag %s was not discovered by this reader", tag.ID())
	}

	err := r.reselect(ctx, t)
	if tt, ok := t.Tag.(*type2.Tag); ok {
		tt.MarkAvailable(err == nil)
	}
	return err
}

func (r *Reader) reselect(ctx context.Context, t *Tag) error {
	targets, err := r.device().InListPassiveTarget(ctx, MaxTargets)
	if err != nil {
		return err
	}
	uid := t.Target().UID
	for _, found := range targets {
		if !bytes.Equal(found.UID, uid) {
			continue
		}
		r.mu.Lock()
		t.target = found
		r.mu.Unlock()
		if err := r.device().InSelect(ctx, found.Number); err != nil {
			var serr *StatusError
			if errors.As(err, &serr) && serr.Gone() {
				return fmt.Errorf("%w: %w", fishtag.ErrTagUnavailable, err)
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: %w", fishtag.ErrTagUnavailable, ErrNoTarget)
}

// Close releases every target and closes the transport.
func (r *Reader) Close() error {
	if err := r.device().InRelease(context.Background(), 0); err != nil {
		r.log.Debug().Err(err).Msg("release targets")
	}
	return r.device().Close()
}

var _ fishtag.Reader = (*Reader)(nil)
