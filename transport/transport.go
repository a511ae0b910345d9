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

// Package transport holds what the PN532 host link backends share.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Transport errors
var (
	ErrTimeout  = errors.New("transport timeout")
	ErrNoACK    = errors.New("no ACK received")
	ErrNotReady = errors.New("transport not ready")
	ErrClosed   = errors.New("transport is closed")
	ErrShort    = errors.New("short write")
)

// Error wraps a failed link operation with where it happened.
type Error struct {
	Err  error
	Op   string
	Port string
}

func (e *Error) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt.
func (e *Error) Retryable() bool {
	return errors.Is(e.Err, ErrTimeout) || errors.Is(e.Err, ErrNoACK) || errors.Is(e.Err, ErrNotReady)
}

// Defaults shared by the backends.
const (
	DefaultResponseTimeout = time.Second
	DefaultACKTimeout      = 100 * time.Millisecond
	FrameRetries           = 3
)

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
