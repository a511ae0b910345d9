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

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-fishtag"
)

var errRF = errors.New("rf link lost")

type fakeTag struct {
	queryErrs []error
	writeErr  error
	readErr   error
	id        string
	read      []byte
	writes    [][]byte
	status    fishtag.NDEFStatus
	capacity  int
	queries   int
	mu        sync.Mutex
	gone      atomic.Bool
}

func newFakeTag(id string, status fishtag.NDEFStatus, capacity int) *fakeTag {
	return &fakeTag{id: id, status: status, capacity: capacity}
}

func (t *fakeTag) ID() string { return t.id }

func (t *fakeTag) QueryNDEFStatus(context.Context) (fishtag.NDEFStatus, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queries++
	if len(t.queryErrs) > 0 {
		err := t.queryErrs[0]
		t.queryErrs = t.queryErrs[1:]
		if err != nil {
			return fishtag.StatusNotSupported, 0, err
		}
	}
	return t.status, t.capacity, nil
}

func (t *fakeTag) ReadNDEF(context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read, t.readErr
}

func (t *fakeTag) WriteNDEF(_ context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.writes = append(t.writes, append([]byte(nil), data...))
	t.read = append([]byte(nil), data...)
	return nil
}

func (t *fakeTag) IsAvailable() bool { return !t.gone.Load() }

func (t *fakeTag) queryCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queries
}

func (t *fakeTag) writeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes)
}

// fakeReader replays scripted scans; the last scan repeats forever.
type fakeReader struct {
	connectErrs map[string][]error
	connects    map[string]int
	scanErrs    []error
	scans       [][]fishtag.Tag
	discovers   int
	mu          sync.Mutex
}

func newFakeReader(scans ...[]fishtag.Tag) *fakeReader {
	return &fakeReader{
		scans:       scans,
		connectErrs: map[string][]error{},
		connects:    map[string]int{},
	}
}

func (r *fakeReader) Discover(ctx context.Context, _ fishtag.Technology) ([]fishtag.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovers++
	if len(r.scanErrs) > 0 {
		err := r.scanErrs[0]
		r.scanErrs = r.scanErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(r.scans) == 0 {
		return nil, nil
	}
	scan := r.scans[0]
	if len(r.scans) > 1 {
		r.scans = r.scans[1:]
	}
	return scan, nil
}

func (r *fakeReader) Connect(ctx context.Context, tag fishtag.Tag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects[tag.ID()]++
	if errs := r.connectErrs[tag.ID()]; len(errs) > 0 {
		r.connectErrs[tag.ID()] = errs[1:]
		if errs[0] != nil {
			return errs[0]
		}
	}
	if ft, ok := tag.(*fakeTag); ok && ft.gone.Load() {
		return errRF
	}
	return nil
}

func (*fakeReader) Close() error { return nil }

func (r *fakeReader) connectCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects[id]
}

func (r *fakeReader) discoverCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discovers
}

// recorder captures callbacks from the engine.
type recorder struct {
	alerts      []string
	transitions []State
	mu          sync.Mutex
}

func (r *recorder) onAlert(_ string, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, msg)
}

func (r *recorder) onState(_ string, _, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, to)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.transitions...)
}

func (r *recorder) alertList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.alerts...)
}

func testConfig(rec *recorder) *Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.RemovalProbeInterval = 2 * time.Millisecond
	if rec != nil {
		cfg.OnAlert = rec.onAlert
		cfg.OnStateChange = rec.onState
	}
	return cfg
}

func testRecord() fishtag.TagRecord {
	return fishtag.TagRecord{ObservationDate: fishtag.Date(2024, time.March, 7)}
}
