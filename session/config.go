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
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-fishtag"
)

// ConnectFailurePolicy decides what a failed connect does to a session.
type ConnectFailurePolicy int

const (
	// ConnectFailureTerminate ends the session with a connect error.
	ConnectFailureTerminate ConnectFailurePolicy = iota
	// ConnectFailureRestart goes back to discovery.
	ConnectFailureRestart
)

// DecodeFailurePolicy decides what a read session does with a payload it
// cannot decode.
type DecodeFailurePolicy int

const (
	// DecodeFailureCompletes ends the session successfully and reports the
	// decode error in the outcome.
	DecodeFailureCompletes DecodeFailurePolicy = iota
	// DecodeFailureKeepListening waits for the tag to leave and scans again.
	DecodeFailureKeepListening
)

// Config holds session engine options
type Config struct {
	// Capability gates every session; nil means discovery is always available.
	Capability fishtag.Capability
	// Codec encodes writes and decodes reads; nil uses fishtag.DefaultCodec.
	Codec *fishtag.Codec
	// OnAlert receives operator-facing messages while a session runs, such as
	// the multiple tag advisory.
	OnAlert func(sessionID, message string)
	// OnStateChange observes every state transition.
	OnStateChange func(sessionID string, from, to State)
	Logger        zerolog.Logger

	// PollInterval is the pause between empty discovery scans
	PollInterval time.Duration
	// RemovalProbeInterval is the delay between removal probes
	RemovalProbeInterval time.Duration
	// MaxDiscoveryErrors is how many consecutive failed scans end the session
	MaxDiscoveryErrors int

	WriteTechnologies fishtag.Technology
	ReadTechnologies  fishtag.Technology

	WriteConnectPolicy ConnectFailurePolicy
	ReadConnectPolicy  ConnectFailurePolicy
	ReadDecodePolicy   DecodeFailurePolicy
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Capability:           fishtag.Always,
		Codec:                fishtag.DefaultCodec(),
		Logger:               zerolog.Nop(),
		PollInterval:         250 * time.Millisecond,
		RemovalProbeInterval: 500 * time.Millisecond,
		MaxDiscoveryErrors:   3,
		WriteTechnologies:    fishtag.ISO14443,
		ReadTechnologies:     fishtag.ISO14443 | fishtag.ISO15693,
		WriteConnectPolicy:   ConnectFailureTerminate,
		ReadConnectPolicy:    ConnectFailureRestart,
		ReadDecodePolicy:     DecodeFailureCompletes,
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.Capability == nil {
		out.Capability = def.Capability
	}
	if out.Codec == nil {
		out.Codec = def.Codec
	}
	if out.PollInterval <= 0 {
		out.PollInterval = def.PollInterval
	}
	if out.RemovalProbeInterval <= 0 {
		out.RemovalProbeInterval = def.RemovalProbeInterval
	}
	if out.MaxDiscoveryErrors <= 0 {
		out.MaxDiscoveryErrors = def.MaxDiscoveryErrors
	}
	if out.WriteTechnologies == 0 {
		out.WriteTechnologies = def.WriteTechnologies
	}
	if out.ReadTechnologies == 0 {
		out.ReadTechnologies = def.ReadTechnologies
	}
	return &out
}
