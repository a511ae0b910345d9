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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-fishtag/transport"
)

// ReopenFunc opens a fresh transport to the same device, for readers that
// dropped off the bus after a sleep or a cable glitch.
type ReopenFunc func() (Transport, error)

// Recovery configures how a reader brings a failing device back. Each
// attempt first tries a soft reset through SAMConfiguration and then, when
// Reopen is set, a full reconnection.
type Recovery struct {
	Reopen      ReopenFunc
	Backoff     time.Duration
	MaxAttempts int
}

// DefaultRecovery returns a three attempt recovery with a 500ms backoff.
func DefaultRecovery(reopen ReopenFunc) Recovery {
	return Recovery{Reopen: reopen, Backoff: 500 * time.Millisecond, MaxAttempts: 3}
}

// SetRecovery enables device recovery after a failed scan.
func (r *Reader) SetRecovery(rec Recovery) {
	if rec.MaxAttempts <= 0 {
		rec.MaxAttempts = 3
	}
	if rec.Backoff <= 0 {
		rec.Backoff = 500 * time.Millisecond
	}
	r.mu.Lock()
	r.recovery = &rec
	r.mu.Unlock()
}

func (r *Reader) device() *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dev
}

// recoverable reports whether err came from the link rather than from the
// PN532 or the caller.
func (r *Reader) recoverable(ctx context.Context, err error) bool {
	r.mu.Lock()
	enabled := r.recovery != nil
	r.mu.Unlock()
	if !enabled || ctx.Err() != nil {
		return false
	}
	var serr *StatusError
	return !errors.As(err, &serr) && !errors.Is(err, ErrShortResponse)
}

func (r *Reader) recoverDevice(ctx context.Context) error {
	r.mu.Lock()
	rec := *r.recovery
	r.mu.Unlock()

	var lastErr error
	for attempt := range rec.MaxAttempts {
		if attempt > 0 {
			if err := transport.Sleep(ctx, rec.Backoff); err != nil {
				return err
			}
		}

		dev := r.device()
		err := dev.SAMConfiguration(ctx, SAMModeNormal)
		if err == nil {
			r.log.Info().Int("attempt", attempt+1).Msg("device recovered by soft reset")
			return nil
		}
		lastErr = err

		if rec.Reopen == nil {
			continue
		}
		_ = dev.Close()
		t, err := rec.Reopen()
		if err != nil {
			lastErr = fmt.Errorf("reopen: %w", err)
			continue
		}
		fresh := NewDevice(t, r.log)
		if _, err := fresh.Init(ctx); err != nil {
			_ = fresh.Close()
			lastErr = fmt.Errorf("reinit: %w", err)
			continue
		}
		r.mu.Lock()
		r.dev = fresh
		r.mu.Unlock()
		r.log.Info().Int("attempt", attempt+1).Msg("device recovered by reconnecting")
		return nil
	}
	return lastErr
}
