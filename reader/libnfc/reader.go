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

// Package libnfc reads and writes MIFARE Ultralight and NTAG tags through any
// libnfc device using libfreefare. The cgo bindings are only built with the
// libnfc build tag; the rest of the package is plain Go.
package libnfc

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
	"github.com/ZaparooProject/go-fishtag/internal/type2"
	"github.com/rs/zerolog"
)

// Ultralight is the page interface of freefare.UltralightTag.
type Ultralight interface {
	UID() string
	Connect() error
	Disconnect() error
	ReadPage(page byte) ([4]byte, error)
	WritePage(page byte, data [4]byte) error
}

// Target is one tag seen by a scan. Ultralight is nil for tags libfreefare
// does not handle as Ultralight.
type Target struct {
	Ultralight Ultralight
	UID        string
}

// Scanner lists the tags in the field.
type Scanner interface {
	Scan() ([]Target, error)
	Close() error
}

// Reader implements fishtag.Reader over a Scanner.
type Reader struct {
	scanner Scanner
	log     zerolog.Logger
	mu      syncutil.Mutex
}

// New wraps scanner.
func New(scanner Scanner, log zerolog.Logger) *Reader {
	return &Reader{scanner: scanner, log: log.With().Str("reader", "libnfc").Logger()}
}

// Tag is an Ultralight family tag.
type Tag struct {
	*type2.Tag
	ul     Ultralight
	reader *Reader
	id     string
	active bool
}

// ID is the UID as libfreefare reports it, upper-cased.
func (t *Tag) ID() string { return t.id }

// ReadPages reads four pages, one READ per page as libfreefare exposes them.
func (t *Tag) ReadPages(ctx context.Context, page uint8) ([]byte, error) {
	t.reader.mu.Lock()
	defer t.reader.mu.Unlock()
	out := make([]byte, 0, type2.ReadSize)
	for i := uint8(0); i < type2.ReadSize/type2.PageSize; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := t.ul.ReadPage(page + i)
		if err != nil {
			return nil, fmt.Errorf("libnfc: read page %d: %w", page+i, err)
		}
		out = append(out, data[:]...)
	}
	return out, nil
}

func (t *Tag) WritePage(_ context.Context, page uint8, data [type2.PageSize]byte) error {
	t.reader.mu.Lock()
	defer t.reader.mu.Unlock()
	if err := t.ul.WritePage(page, data); err != nil {
		return fmt.Errorf("libnfc: write page %d: %w", page, err)
	}
	return nil
}

type unsupported struct{ id string }

func (u unsupported) ID() string { return u.id }

func (unsupported) IsAvailable() bool { return true }

func (unsupported) QueryNDEFStatus(context.Context) (fishtag.NDEFStatus, int, error) {
	return fishtag.StatusNotSupported, 0, nil
}

func (unsupported) ReadNDEF(context.Context) ([]byte, error) { return nil, fishtag.ErrNotNDEF }

func (unsupported) WriteNDEF(context.Context, []byte) error { return fishtag.ErrNotNDEF }

// Discover implements fishtag.Reader. libnfc polls ISO14443A only.
func (r *Reader) Discover(ctx context.Context, tech fishtag.Technology) ([]fishtag.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !tech.Has(fishtag.ISO14443) {
		return nil, nil
	}
	r.mu.Lock()
	targets, err := r.scanner.Scan()
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("libnfc: scan: %w", err)
	}

	tags := make([]fishtag.Tag, 0, len(targets))
	for _, target := range targets {
		id := strings.ToUpper(target.UID)
		if target.Ultralight == nil {
			r.log.Debug().Str("uid", id).Msg("skipping non-ultralight target")
			tags = append(tags, unsupported{id: id})
			continue
		}
		t := &Tag{ul: target.Ultralight, reader: r, id: id}
		t.Tag = type2.NewTag(nil, t)
		tags = append(tags, t)
	}
	return tags, nil
}

// Connect implements fishtag.Reader. Selecting the tag by UID fails once it
// has left the field.
func (r *Reader) Connect(ctx context.Context, tag fishtag.Tag) error {
	t, ok := tag.(*Tag)
	if !ok || t.reader != r {
		return fmt.Errorf("libnfc: tag %s was not discovered by this reader", tag.ID())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.active {
		_ = t.ul.Disconnect()
		t.active = false
	}
	err := t.ul.Connect()
	t.active = err == nil
	t.MarkAvailable(err == nil)
	if err != nil {
		return fmt.Errorf("%w: %w", fishtag.ErrTagUnavailable, err)
	}
	return nil
}

// Close closes the device.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanner.Close()
}

var _ fishtag.Reader = (*Reader)(nil)
