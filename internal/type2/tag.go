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

// Package type2 implements NDEF storage on NFC Forum Type 2 tags (NTAG21x,
// Ultralight) on top of raw page access.
package type2

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ZaparooProject/go-fishtag"
)

// Memory layout
const (
	PageSize     = 4
	ReadSize     = 16 // one READ returns four pages
	PageCC       = 3
	PageUserData = 4
	ccMagic      = 0xE1
	accessRW     = 0x00
	accessNone   = 0x0F
)

var (
	ErrNotFormatted = errors.New("type2: capability container missing")
	ErrReadOnly     = errors.New("type2: tag is write protected")
	ErrTooLarge     = errors.New("type2: message larger than data area")
)

// PageIO is raw page access to a selected tag.
type PageIO interface {
	// ReadPages returns the 16 bytes starting at page.
	ReadPages(ctx context.Context, page uint8) ([]byte, error)
	WritePage(ctx context.Context, page uint8, data [PageSize]byte) error
}

// CC is a parsed capability container.
type CC struct {
	Version     byte
	DataSize    int // data area in bytes
	ReadAccess  byte
	WriteAccess byte
}

// ParseCC decodes page 3.
func ParseCC(page []byte) (CC, error) {
	if len(page) < PageSize || page[0] != ccMagic {
		return CC{}, ErrNotFormatted
	}
	return CC{
		Version:     page[1],
		DataSize:    int(page[2]) * 8,
		ReadAccess:  page[3] >> 4,
		WriteAccess: page[3] & 0x0F,
	}, nil
}

// Writable reports whether the write access condition allows writes.
func (c CC) Writable() bool { return c.WriteAccess == accessRW }

// Status maps the container to an NDEF status.
func (c CC) Status() fishtag.NDEFStatus {
	switch {
	case c.ReadAccess != accessRW:
		return fishtag.StatusNotSupported
	case c.Writable():
		return fishtag.StatusReadWrite
	default:
		return fishtag.StatusReadOnly
	}
}

// Capacity is the largest NDEF message the data area can hold.
func (c CC) Capacity() int {
	n := c.DataSize - 3
	if n >= 0xFF {
		n = c.DataSize - 5
	}
	if n < 0 {
		return 0
	}
	return n
}

// Tag is a fishtag.Tag backed by page access. IsAvailable turns false after
// any failed exchange.
type Tag struct {
	io        PageIO
	id        string
	available atomic.Bool
}

// NewTag wraps io for the tag with the given UID.
func NewTag(uid []byte, io PageIO) *Tag {
	t := &Tag{io: io, id: strings.ToUpper(fmt.Sprintf("%x", uid))}
	t.available.Store(true)
	return t
}

func (t *Tag) ID() string { return t.id }

func (t *Tag) IsAvailable() bool { return t.available.Load() }

// MarkAvailable records the result of an exchange made outside the Tag, such
// as a reader re-selecting it.
func (t *Tag) MarkAvailable(ok bool) { t.available.Store(ok) }

func (t *Tag) track(err error) error {
	t.available.Store(err == nil)
	return err
}

func (t *Tag) read(ctx context.Context, page uint8) ([]byte, error) {
	data, err := t.io.ReadPages(ctx, page)
	if err == nil && len(data) < ReadSize {
		err = fmt.Errorf("type2: short read at page %d: %d bytes", page, len(data))
	}
	if err := t.track(err); err != nil {
		return nil, err
	}
	return data[:ReadSize], nil
}

// CapabilityContainer reads and parses page 3.
func (t *Tag) CapabilityContainer(ctx context.Context) (CC, error) {
	data, err := t.read(ctx, PageCC)
	if err != nil {
		return CC{}, fmt.Errorf("read capability container: %w", err)
	}
	return ParseCC(data[:PageSize])
}

// QueryNDEFStatus implements fishtag.Tag. An unformatted tag is reported as
// not supported rather than as an error.
func (t *Tag) QueryNDEFStatus(ctx context.Context) (fishtag.NDEFStatus, int, error) {
	cc, err := t.CapabilityContainer(ctx)
	if errors.Is(err, ErrNotFormatted) {
		return fishtag.StatusNotSupported, 0, nil
	}
	if err != nil {
		return fishtag.StatusNotSupported, 0, err
	}
	return cc.Status(), cc.Capacity(), nil
}

// ReadNDEF implements fishtag.Tag. A tag without an NDEF TLV, or with an
// empty one, yields nil.
func (t *Tag) ReadNDEF(ctx context.Context) ([]byte, error) {
	cc, err := t.CapabilityContainer(ctx)
	if err != nil {
		return nil, err
	}

	var area []byte
	page := uint8(PageUserData)
	for len(area) < cc.DataSize {
		chunk, err := t.read(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", page, err)
		}
		area = append(area, chunk...)
		page += ReadSize / PageSize

		loc, err := findNDEF(area)
		switch {
		case errors.Is(err, ErrNoNDEFTLV):
			return nil, nil
		case errors.Is(err, ErrTLVTruncated):
			continue
		case err != nil:
			return nil, err
		}
		if loc.length == 0 {
			return nil, nil
		}
		if loc.end() > cc.DataSize {
			return nil, fmt.Errorf("%w: NDEF TLV of %d bytes", ErrTooLarge, loc.length)
		}
		if loc.end() <= len(area) {
			return append([]byte(nil), area[loc.offset:loc.end()]...), nil
		}
	}
	return nil, nil
}

// WriteNDEF implements fishtag.Tag.
func (t *Tag) WriteNDEF(ctx context.Context, message []byte) error {
	cc, err := t.CapabilityContainer(ctx)
	if err != nil {
		return err
	}
	if !cc.Writable() {
		return ErrReadOnly
	}
	if len(message)+overhead(len(message)) > cc.DataSize {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrTooLarge, len(message), cc.Capacity())
	}

	data := wrapNDEF(message)
	for i := 0; i < len(data); i += PageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		var block [PageSize]byte
		copy(block[:], data[i:])
		//nolint:gosec // i/PageSize is bounded by the data area
		page := uint8(PageUserData + i/PageSize)
		if err := t.track(t.io.WritePage(ctx, page, block)); err != nil {
			return fmt.Errorf("write page %d: %w", page, err)
		}
	}
	return nil
}
