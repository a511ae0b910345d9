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
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-fishtag"
)

// PollingTicket is a running removal probe loop for one tag.
type PollingTicket struct {
	cancel  context.CancelFunc
	done    chan struct{}
	gone    chan struct{}
	tagID   string
	probes  atomic.Int64
	stopped atomic.Bool
}

// TagID is the monitored tag.
func (t *PollingTicket) TagID() string { return t.tagID }

// Gone is closed when a probe finds the tag missing.
func (t *PollingTicket) Gone() <-chan struct{} { return t.gone }

// Done is closed when the loop has exited for any reason.
func (t *PollingTicket) Done() <-chan struct{} { return t.done }

// Probes is the number of probes run so far.
func (t *PollingTicket) Probes() int64 { return t.probes.Load() }

// Cancel stops the loop and waits for it to exit. No probe starts after
// Cancel returns. It is safe to call more than once.
func (t *PollingTicket) Cancel() {
	if t.stopped.CompareAndSwap(false, true) {
		t.cancel()
	}
	<-t.done
}

// RemovalMonitor probes a tag at a fixed interval until it leaves the field.
type RemovalMonitor struct {
	reader   fishtag.Reader
	log      zerolog.Logger
	interval time.Duration
}

// NewRemovalMonitor returns a monitor probing through reader.
func NewRemovalMonitor(reader fishtag.Reader, interval time.Duration, log zerolog.Logger) *RemovalMonitor {
	if interval <= 0 {
		interval = DefaultConfig().RemovalProbeInterval
	}
	return &RemovalMonitor{reader: reader, interval: interval, log: log}
}

// Watch starts probing tag. The first probe runs immediately; each probe
// connects and then checks availability. The loop ends when the tag is gone,
// when ctx is done, or when the ticket is cancelled.
func (m *RemovalMonitor) Watch(ctx context.Context, tag fishtag.Tag) *PollingTicket {
	ctx, cancel := context.WithCancel(ctx)
	t := &PollingTicket{
		cancel: cancel,
		done:   make(chan struct{}),
		gone:   make(chan struct{}),
		tagID:  tag.ID(),
	}
	go m.run(ctx, t, tag)
	return t
}

func (m *RemovalMonitor) run(ctx context.Context, t *PollingTicket, tag fishtag.Tag) {
	defer close(t.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// cancellation may have raced the timer
		if ctx.Err() != nil {
			return
		}

		t.probes.Add(1)
		err := m.reader.Connect(ctx, tag)
		if ctx.Err() != nil {
			return
		}
		if err != nil || !tag.IsAvailable() {
			m.log.Debug().Str("tag", t.tagID).Err(err).Msg("monitored tag left the field")
			close(t.gone)
			return
		}
		timer.Reset(m.interval)
	}
}
