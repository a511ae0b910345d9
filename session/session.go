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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/internal/syncutil"
)

// errInvalidated marks a session that stopped because it went stale.
var errInvalidated = errors.New("session invalidated")

// Session is one read or write interaction. It owns at most one tag handle
// and at most one PollingTicket.
type Session struct {
	ctx         context.Context
	engine      *Engine
	cancel      context.CancelFunc
	ticket      *PollingTicket
	log         zerolog.Logger
	id          string
	flow        string
	gen         uint64
	mu          syncutil.Mutex
	state       State
	invalidated atomic.Bool
}

// ID is the session's unique id.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Invalidate cancels the session's context and any removal ticket. Calling it
// again has no effect.
func (s *Session) Invalidate() {
	if !s.invalidated.CompareAndSwap(false, true) {
		return
	}
	s.cancel()

	s.mu.Lock()
	ticket := s.ticket
	s.ticket = nil
	s.mu.Unlock()
	if ticket != nil {
		ticket.Cancel()
	}
}

// live reports whether the session may still act. Checked before every
// transition and after every blocking tag operation.
func (s *Session) live() bool {
	return !s.invalidated.Load() &&
		s.engine.generation.Load() == s.gen &&
		s.ctx.Err() == nil
}

func (s *Session) transition(to State) bool {
	if !s.live() {
		return false
	}

	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from == to {
		return true
	}
	if !CanTransition(from, to) {
		s.log.Warn().Stringer("from", from).Stringer("to", to).Msg("unexpected transition")
	}
	s.log.Debug().Stringer("from", from).Stringer("to", to).Msg("transition")
	if cb := s.engine.config.OnStateChange; cb != nil {
		s.safeCall("OnStateChange", func() { cb(s.id, from, to) })
	}
	return true
}

func (s *Session) alert(msg string) {
	s.log.Info().Msg(msg)
	if cb := s.engine.config.OnAlert; cb != nil {
		s.safeCall("OnAlert", func() { cb(s.id, msg) })
	}
}

// safeCall runs an observer callback, recovering a panic.
func (s *Session) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("callback", name).Interface("panic", r).Msg("callback panicked")
		}
	}()
	fn()
}

// pause waits one poll interval and reports whether the session is still live.
func (s *Session) pause() bool {
	timer := time.NewTimer(s.engine.config.PollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return s.live()
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) terminate(out fishtag.SessionOutcome) fishtag.SessionOutcome {
	s.mu.Lock()
	from := s.state
	s.state = StateTerminated
	s.mu.Unlock()

	out.SessionID = s.id
	ev := s.log.Info()
	if out.Failure != nil {
		ev = s.log.Warn().Stringer("kind", out.Failure.Kind).AnErr("cause", out.Failure.Err)
	}
	ev.Stringer("from", from).Msg(out.Message)

	if cb := s.engine.config.OnStateChange; cb != nil && from != StateTerminated {
		s.safeCall("OnStateChange", func() { cb(s.id, from, StateTerminated) })
	}
	return out
}

func (s *Session) succeed(tag fishtag.Tag, msg string) fishtag.SessionOutcome {
	return s.terminate(fishtag.SessionOutcome{TagID: tag.ID(), Message: msg})
}

func (s *Session) fail(kind fishtag.ErrorKind, msg string, err error) fishtag.SessionOutcome {
	return s.terminate(fishtag.SessionOutcome{
		Message: msg,
		Failure: &fishtag.Failure{Kind: kind, Message: msg, Err: err},
	})
}

func (s *Session) invalidatedOutcome() fishtag.SessionOutcome {
	cause := context.Cause(s.ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		cause = errInvalidated
	}
	return s.fail(fishtag.KindInvalidated, MsgCancelled, cause)
}

func negotiationFailure(res fishtag.NegotiationResult, readFlow bool) (string, *fishtag.Failure) {
	var msg string
	switch res.Reason {
	case fishtag.ReasonNotWritable:
		msg = MsgNotWritable
	case fishtag.ReasonCapacitySmall:
		msg = fmt.Sprintf(MsgCapacityTooSmall, res.Required)
	default:
		msg = MsgNotNDEF
		if readFlow {
			msg = MsgInvalidTag
		}
	}
	return msg, &fishtag.Failure{
		Kind:     fishtag.KindNegotiationFatal,
		Message:  msg,
		Required: res.Required,
		Err:      res.Err,
	}
}

// discover scans until exactly one tag is in the field. Scans that see more
// than one tag never connect: the first tag is watched until it leaves and
// scanning resumes.
func (s *Session) discover(tech fishtag.Technology) (fishtag.Tag, *fishtag.SessionOutcome) {
	cfg := s.engine.config
	failures := 0
	for {
		if !s.transition(StateDiscovering) {
			out := s.invalidatedOutcome()
			return nil, &out
		}

		tags, err := s.engine.reader.Discover(s.ctx, tech)
		if !s.live() {
			out := s.invalidatedOutcome()
			return nil, &out
		}
		if err != nil {
			failures++
			s.log.Warn().Err(err).Int("failures", failures).Msg("discovery scan failed")
			if failures >= cfg.MaxDiscoveryErrors {
				out := s.fail(fishtag.KindDiscoveryError, MsgDiscoveryFailed, err)
				return nil, &out
			}
			if !s.pause() {
				out := s.invalidatedOutcome()
				return nil, &out
			}
			continue
		}
		failures = 0

		switch len(tags) {
		case 0:
			if !s.pause() {
				out := s.invalidatedOutcome()
				return nil, &out
			}
		case 1:
			return tags[0], nil
		default:
			s.log.Debug().Int("tags", len(tags)).Msg("multiple tags in field")
			s.alert(MsgMultipleTags)
			if !s.transition(StateMonitoringRemoval) || !s.awaitRemoval(tags[0]) {
				out := s.invalidatedOutcome()
				return nil, &out
			}
		}
	}
}

// awaitRemoval watches tag until it is gone. It returns false if the session
// was invalidated first.
func (s *Session) awaitRemoval(tag fishtag.Tag) bool {
	ticket := s.engine.monitor.Watch(s.ctx, tag)

	s.mu.Lock()
	s.ticket = ticket
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.ticket == ticket {
			s.ticket = nil
		}
		s.mu.Unlock()
		ticket.Cancel()
	}()

	select {
	case <-ticket.Gone():
		return s.live()
	case <-s.ctx.Done():
		return false
	}
}

// connect moves to StateConnecting and connects to tag. restart is true when
// the policy sends a failed connect back to discovery.
func (s *Session) connect(tag fishtag.Tag, policy ConnectFailurePolicy) (restart bool, out *fishtag.SessionOutcome) {
	if !s.transition(StateConnecting) {
		o := s.invalidatedOutcome()
		return false, &o
	}
	err := fishtag.Connect(s.ctx, s.engine.reader, tag)
	if !s.live() {
		o := s.invalidatedOutcome()
		return false, &o
	}
	if err == nil {
		return false, nil
	}
	if policy == ConnectFailureRestart {
		s.log.Debug().Err(err).Msg("connect failed, scanning again")
		if !s.pause() {
			o := s.invalidatedOutcome()
			return false, &o
		}
		return true, nil
	}
	o := s.fail(fishtag.KindConnectError, MsgConnectError, err)
	return false, &o
}

func (s *Session) runWrite(enc *fishtag.EncodedMessage) fishtag.SessionOutcome {
	cfg := s.engine.config
	s.alert(MsgHoldNear)

	for {
		tag, out := s.discover(cfg.WriteTechnologies)
		if out != nil {
			return *out
		}

		restart, out := s.connect(tag, cfg.WriteConnectPolicy)
		if out != nil {
			return *out
		}
		if restart {
			continue
		}

		if !s.transition(StateNegotiating) {
			return s.invalidatedOutcome()
		}
		res := fishtag.Query(s.ctx, tag, enc.Len())
		if !s.live() {
			return s.invalidatedOutcome()
		}
		switch res.Verdict {
		case fishtag.Retry:
			s.log.Debug().Err(res.Err).Stringer("kind", fishtag.KindNegotiationRetryable).Msg("status query failed")
			s.alert(MsgStatusUnknown)
			if !s.pause() {
				return s.invalidatedOutcome()
			}
			continue
		case fishtag.Fatal:
			msg, failure := negotiationFailure(res, false)
			return s.terminate(fishtag.SessionOutcome{TagID: tag.ID(), Message: msg, Failure: failure})
		}

		if !s.transition(StateWriting) {
			return s.invalidatedOutcome()
		}
		err := tag.WriteNDEF(s.ctx, enc.Bytes())
		if !s.live() {
			return s.invalidatedOutcome()
		}
		if err != nil {
			out := s.fail(fishtag.KindWriteError, MsgWriteFailed, err)
			out.TagID = tag.ID()
			return out
		}

		if !s.transition(StateSettling) {
			return s.invalidatedOutcome()
		}
		return s.succeed(tag, MsgWriteSuccess)
	}
}

func (s *Session) runRead() fishtag.ReadOutcome {
	cfg := s.engine.config
	s.alert(MsgHoldNear)

	for {
		tag, out := s.discover(cfg.ReadTechnologies)
		if out != nil {
			return fishtag.ReadOutcome{SessionOutcome: *out}
		}

		restart, out := s.connect(tag, cfg.ReadConnectPolicy)
		if out != nil {
			return fishtag.ReadOutcome{SessionOutcome: *out}
		}
		if restart {
			continue
		}

		if !s.transition(StateNegotiating) {
			return fishtag.ReadOutcome{SessionOutcome: s.invalidatedOutcome()}
		}
		res := fishtag.QueryRead(s.ctx, tag)
		if !s.live() {
			return fishtag.ReadOutcome{SessionOutcome: s.invalidatedOutcome()}
		}
		switch res.Verdict {
		case fishtag.Retry:
			s.log.Debug().Err(res.Err).Msg("status query failed")
			if !s.pause() {
				return fishtag.ReadOutcome{SessionOutcome: s.invalidatedOutcome()}
			}
			continue
		case fishtag.Fatal:
			msg, failure := negotiationFailure(res, true)
			return fishtag.ReadOutcome{SessionOutcome: s.terminate(fishtag.SessionOutcome{
				TagID: tag.ID(), Message: msg, Failure: failure,
			})}
		}

		if !s.transition(StateReading) {
			return fishtag.ReadOutcome{SessionOutcome: s.invalidatedOutcome()}
		}
		data, err := tag.ReadNDEF(s.ctx)
		if !s.live() {
			return fishtag.ReadOutcome{SessionOutcome: s.invalidatedOutcome()}
		}
		if err != nil {
			out := s.fail(fishtag.KindReadError, MsgReadFailed, err)
			out.TagID = tag.ID()
			return fishtag.ReadOutcome{SessionOutcome: out}
		}
		if len(data) == 0 {
			out := s.fail(fishtag.KindEmptyPayload, MsgNothingRead, nil)
			out.TagID = tag.ID()
			return fishtag.ReadOutcome{SessionOutcome: out}
		}

		record, decodeErr := cfg.Codec.DecodeBytes(data)
		if decodeErr != nil {
			s.log.Debug().Err(decodeErr).Stringer("kind", fishtag.KindDecodePartial).Msg("payload not decodable")
			if cfg.ReadDecodePolicy == DecodeFailureKeepListening {
				s.alert(MsgUnreadablePayload)
				if !s.transition(StateMonitoringRemoval) || !s.awaitRemoval(tag) {
					return fishtag.ReadOutcome{SessionOutcome: s.invalidatedOutcome()}
				}
				continue
			}
		}

		if !s.transition(StateSettling) {
			return fishtag.ReadOutcome{SessionOutcome: s.invalidatedOutcome()}
		}
		msg := MsgReadSuccess
		if decodeErr != nil {
			msg = MsgUnreadablePayload
		}
		return fishtag.ReadOutcome{
			SessionOutcome: s.succeed(tag, msg),
			Record:         record,
			DecodeErr:      decodeErr,
			Raw:            data,
		}
	}
}
