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

// Package virtual provides in-memory NTAG21x tags and a reader for them, with
// presence control and fault injection.
package virtual

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
	"github.com/ZaparooProject/go-fishtag/internal/type2"
)

// Op names a tag operation that can be made to fail.
type Op int

const (
	OpConnect Op = iota
	OpRead
	OpWrite
)

var (
	ErrNotPresent   = errors.New("virtual: tag not in field")
	ErrOutOfRange   = errors.New("virtual: page out of range")
	ErrLockedPage   = errors.New("virtual: page is locked")
	ErrInvalidImage = errors.New("virtual: invalid memory image")
	ErrClosed       = errors.New("virtual: reader closed")
)

// Model is an NTAG21x memory layout.
type Model struct {
	Name     string
	Pages    int
	DataSize byte // CC byte 2, data area in 8-byte units
}

// Supported models
var (
	NTAG213 = Model{Name: "NTAG213", Pages: 45, DataSize: 0x12}
	NTAG215 = Model{Name: "NTAG215", Pages: 135, DataSize: 0x3E}
	NTAG216 = Model{Name: "NTAG216", Pages: 231, DataSize: 0x6D}
)

// userEnd is the first page past the user area.
func (m Model) userEnd() int { return type2.PageUserData + int(m.DataSize)*8/type2.PageSize }

// Tag is a simulated NTAG21x. It is safe for concurrent use.
type Tag struct {
	faults  map[Op][]error
	uid     []byte
	mem     []byte
	model   Model
	mu      syncutil.Mutex
	present bool
}

// NewTag returns a formatted, empty, present tag.
func NewTag(model Model, uid []byte) *Tag {
	t := &Tag{
		model:   model,
		uid:     append([]byte(nil), uid...),
		mem:     make([]byte, model.Pages*type2.PageSize),
		faults:  map[Op][]error{},
		present: true,
	}
	copy(t.mem, uid)
	copy(t.mem[type2.PageCC*type2.PageSize:], []byte{0xE1, 0x10, model.DataSize, 0x00})
	copy(t.mem[type2.PageUserData*type2.PageSize:], []byte{0x03, 0x00, 0xFE})
	return t
}

// NewNTAG213 is NewTag(NTAG213, uid).
func NewNTAG213(uid []byte) *Tag { return NewTag(NTAG213, uid) }

// FromImage restores a tag saved with Image.
func FromImage(model Model, uid, image []byte) (*Tag, error) {
	if len(image) != model.Pages*type2.PageSize {
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrInvalidImage, len(image), model.Name)
	}
	t := NewTag(model, uid)
	copy(t.mem, image)
	return t, nil
}

// Image returns a copy of the whole memory.
func (t *Tag) Image() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.mem...)
}

// ID is the UID in upper-case hex.
func (t *Tag) ID() string { return strings.ToUpper(fmt.Sprintf("%x", t.uid)) }

func (t *Tag) Model() Model { return t.model }

// Remove takes the tag out of the field.
func (t *Tag) Remove() { t.setPresent(false) }

// Insert puts the tag back in the field.
func (t *Tag) Insert() { t.setPresent(true) }

func (t *Tag) setPresent(p bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.present = p
}

// Present reports whether the tag is in the field.
func (t *Tag) Present() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.present
}

// SetReadOnly sets the CC write access nibble.
func (t *Tag) SetReadOnly(ro bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	access := byte(0x00)
	if ro {
		access = 0x0F
	}
	t.mem[type2.PageCC*type2.PageSize+3] = access
}

// Unformat clears the capability container.
func (t *Tag) Unformat() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.mem[type2.PageCC*type2.PageSize : (type2.PageCC+1)*type2.PageSize])
}

// InjectFault makes the next op fail with err. Faults queue per op.
func (t *Tag) InjectFault(op Op, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faults[op] = append(t.faults[op], err)
}

// fault pops the next injected fault for op. Caller holds mu.
func (t *Tag) fault(op Op) error {
	q := t.faults[op]
	if len(q) == 0 {
		return nil
	}
	t.faults[op] = q[1:]
	return q[0]
}

func (t *Tag) check(op Op) error {
	if !t.present {
		return ErrNotPresent
	}
	return t.fault(op)
}

func (t *Tag) connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.check(OpConnect)
}

// ReadPages returns 16 bytes from page, wrapping at the end of memory like
// the NTAG READ command.
func (t *Tag) ReadPages(_ context.Context, page uint8) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(OpRead); err != nil {
		return nil, err
	}
	if int(page) >= t.model.Pages {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, page)
	}
	out := make([]byte, type2.ReadSize)
	for i := range out {
		out[i] = t.mem[(int(page)*type2.PageSize+i)%len(t.mem)]
	}
	return out, nil
}

// WritePage writes one page of the user area.
func (t *Tag) WritePage(_ context.Context, page uint8, data [type2.PageSize]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(OpWrite); err != nil {
		return err
	}
	if int(page) < type2.PageUserData || int(page) >= t.model.userEnd() {
		return fmt.Errorf("%w: %d", ErrLockedPage, page)
	}
	copy(t.mem[int(page)*type2.PageSize:], data[:])
	return nil
}
