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

// Package session drives a fishtag.Reader through discovery, negotiation and
// the final read or write of one tag.
package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
)

// Engine runs tag sessions against one reader. At most one session is active;
// starting a new one invalidates the previous.
type Engine struct {
	reader     fishtag.Reader
	config     *Config
	monitor    *RemovalMonitor
	current    *Session
	mu         syncutil.Mutex
	generation atomic.Uint64
}

// NewEngine creates an engine. A nil config uses DefaultConfig.
func NewEngine(reader fishtag.Reader, config *Config) *Engine {
	cfg := config.withDefaults()
	return &Engine{
		reader:  reader,
		config:  cfg,
		monitor: NewRemovalMonitor(reader, cfg.RemovalProbeInterval, cfg.Logger),
	}
}

// Codec returns the codec the engine encodes and decodes with.
func (e *Engine) Codec() *fishtag.Codec { return e.config.Codec }

// Write encodes record and writes it to the next single tag presented. The
// returned error is only set when no session could start: discovery is
// unavailable or the record cannot be encoded.
func (e *Engine) Write(ctx context.Context, record fishtag.TagRecord) (fishtag.SessionOutcome, error) {
	if !e.config.Capability.ReadingAvailable() {
		return unavailableOutcome(), fishtag.ErrDiscoveryUnavailable
	}
	enc, err := e.config.Codec.Encode(record)
	if err != nil {
		return fishtag.SessionOutcome{}, fmt.Errorf("encode record: %w", err)
	}

	s := e.begin(ctx, "write")
	defer e.end(s)
	s.log.Debug().Int("bytes", enc.Len()).Msg("encoded message")
	return s.runWrite(enc), nil
}

// Read reads and decodes the next single tag presented.
func (e *Engine) Read(ctx context.Context) (fishtag.ReadOutcome, error) {
	if !e.config.Capability.ReadingAvailable() {
		return fishtag.ReadOutcome{SessionOutcome: unavailableOutcome()}, fishtag.ErrDiscoveryUnavailable
	}

	s := e.begin(ctx, "read")
	defer e.end(s)
	return s.runRead(), nil
}

// Invalidate ends the active session, if any. The session's Write or Read
// returns with an invalidated outcome.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()
	if s != nil {
		s.Invalidate()
	}
}

// Active returns the running session, or nil.
func (e *Engine) Active() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) begin(ctx context.Context, flow string) *Session {
	e.mu.Lock()
	prev := e.current
	gen := e.generation.Add(1)
	sctx, cancel := context.WithCancel(ctx)
	id := uuid.New().String()
	s := &Session{
		engine: e,
		ctx:    sctx,
		cancel: cancel,
		id:     id,
		gen:    gen,
		flow:   flow,
		log:    e.config.Logger.With().Str("session", id).Str("flow", flow).Logger(),
	}
	e.current = s
	e.mu.Unlock()

	if prev != nil {
		prev.log.Debug().Msg("superseded by a new session")
		prev.Invalidate()
	}
	s.log.Debug().Msg("session started")
	return s
}

func (e *Engine) end(s *Session) {
	e.mu.Lock()
	if e.current == s {
		e.current = nil
	}
	e.mu.Unlock()
	s.Invalidate()
}

func unavailableOutcome() fishtag.SessionOutcome {
	return fishtag.SessionOutcome{
		Message: MsgUnavailable,
		Failure: &fishtag.Failure{
			Kind:    fishtag.KindDiscoveryUnavailable,
			Message: MsgUnavailable,
			Err:     fishtag.ErrDiscoveryUnavailable,
		},
	}
}
