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

package virtual

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
	"github.com/ZaparooProject/go-fishtag/internal/type2"
	"github.com/rs/zerolog"
)

// Latency simulates the time an RF exchange takes. Each exchange waits Base
// plus a random share of Jitter.
type Latency struct {
	Base   time.Duration
	Jitter time.Duration
	Seed   uint64
}

// Reader is a fishtag.Reader over virtual tags.
type Reader struct {
	rng      *rand.Rand
	log      zerolog.Logger
	scanErrs []error
	tags     []*Tag
	latency  Latency
	mu       syncutil.Mutex
	rngMu    syncutil.Mutex
	tech     fishtag.Technology
	closed   bool
}

// NewReader returns a reader with tags placed near it.
func NewReader(log zerolog.Logger, tags ...*Tag) *Reader {
	return &Reader{
		log:  log.With().Str("reader", "virtual").Logger(),
		tags: tags,
		tech: fishtag.ISO14443,
	}
}

// SetLatency makes every exchange take time.
func (r *Reader) SetLatency(l Latency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latency = l
	seed := l.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // simulation only
	}
	r.rng = rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)) //nolint:gosec // simulation only
}

// Add places another tag near the reader.
func (r *Reader) Add(tag *Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tag)
}

// InjectScanError makes the next Discover fail with err.
func (r *Reader) InjectScanError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanErrs = append(r.scanErrs, err)
}

func (r *Reader) delay(ctx context.Context) error {
	r.mu.Lock()
	l, rng := r.latency, r.rng
	r.mu.Unlock()
	if l.Base <= 0 && l.Jitter <= 0 {
		return ctx.Err()
	}
	d := l.Base
	if l.Jitter > 0 && rng != nil {
		r.rngMu.Lock()
		d += time.Duration(rng.Int64N(int64(l.Jitter)))
		r.rngMu.Unlock()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle is the fishtag.Tag a scan returns for a virtual tag.
type handle struct {
	*type2.Tag
	reader *Reader
	tag    *Tag
}

type pages struct{ h *handle }

func (p pages) ReadPages(ctx context.Context, page uint8) ([]byte, error) {
	if err := p.h.reader.delay(ctx); err != nil {
		return nil, err
	}
	return p.h.tag.ReadPages(ctx, page)
}

func (p pages) WritePage(ctx context.Context, page uint8, data [type2.PageSize]byte) error {
	if err := p.h.reader.delay(ctx); err != nil {
		return err
	}
	return p.h.tag.WritePage(ctx, page, data)
}

// Discover implements fishtag.Reader.
func (r *Reader) Discover(ctx context.Context, tech fishtag.Technology) ([]fishtag.Tag, error) {
	if err := r.delay(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if len(r.scanErrs) > 0 {
		err := r.scanErrs[0]
		r.scanErrs = r.scanErrs[1:]
		return nil, err
	}
	if !tech.Has(r.tech) {
		return nil, nil
	}

	var found []fishtag.Tag
	for _, t := range r.tags {
		if !t.Present() {
			continue
		}
		h := &handle{reader: r, tag: t}
		h.Tag = type2.NewTag(t.uid, pages{h: h})
		found = append(found, h)
	}
	return found, nil
}

// Connect implements fishtag.Reader. It fails once the tag leaves the field.
func (r *Reader) Connect(ctx context.Context, tag fishtag.Tag) error {
	h, ok := tag.(*handle)
	if !ok || h.reader != r {
		return fmt.Errorf("virtual: tag %s was not discovered by this reader", tag.ID())
	}
	if err := r.delay(ctx); err != nil {
		return err
	}
	err := h.tag.connect()
	h.MarkAvailable(err == nil)
	if err != nil {
		return fmt.Errorf("%w: %w", fishtag.ErrTagUnavailable, err)
	}
	return nil
}

// Close stops further scans.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

var _ fishtag.Reader = (*Reader)(nil)
