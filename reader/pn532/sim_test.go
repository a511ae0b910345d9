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
	"sync"

	"github.com/ZaparooProject/go-fishtag/transport"
)

// simTarget is an NTAG213 in or out of the field.
type simTarget struct {
	uid     []byte
	mem     []byte
	sak     byte
	present bool
}

func newNTAG213(uid ...byte) *simTarget {
	mem := make([]byte, 45*4)
	copy(mem, uid)
	copy(mem[12:16], []byte{0xE1, 0x10, 0x12, 0x00})
	copy(mem[16:], []byte{0x03, 0x00, 0xFE})
	return &simTarget{uid: uid, mem: mem, present: true}
}

// simTransport answers PN532 commands from a set of simulated targets.
type simTransport struct {
	failCmd  map[byte]error
	failOnce map[byte]error
	targets  []*simTarget
	listed   []*simTarget
	cmds     []byte
	mu       sync.Mutex
	closed   bool
}

func (s *simTransport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transport.ErrClosed
	}
	s.cmds = append(s.cmds, cmd)
	if err := s.failCmd[cmd]; err != nil {
		return nil, err
	}
	if err := s.failOnce[cmd]; err != nil {
		delete(s.failOnce, cmd)
		return nil, err
	}

	switch cmd {
	case cmdGetFirmwareVersion:
		return []byte{0x32, 0x01, 0x06, 0x07}, nil
	case cmdSAMConfiguration, cmdRFConfiguration:
		return []byte{}, nil
	case cmdInListPassiveTarget:
		return s.list(int(args[0])), nil
	case cmdInSelect:
		if s.target(args[0]) == nil {
			return []byte{0x27}, nil
		}
		return []byte{0x00}, nil
	case cmdInRelease:
		return []byte{0x00}, nil
	case cmdInDataExchange:
		return s.exchange(args[0], args[1:]), nil
	}
	return nil, errors.New("sim: unknown command")
}

func (s *simTransport) list(maxTg int) []byte {
	s.listed = s.listed[:0]
	out := []byte{0}
	for _, t := range s.targets {
		if !t.present || len(s.listed) == maxTg {
			continue
		}
		s.listed = append(s.listed, t)
		out = append(out, byte(len(s.listed)), 0x00, 0x44, t.sak, byte(len(t.uid)))
		out = append(out, t.uid...)
	}
	out[0] = byte(len(s.listed))
	return out
}

func (s *simTransport) target(tg byte) *simTarget {
	if tg == 0 || int(tg) > len(s.listed) {
		return nil
	}
	t := s.listed[tg-1]
	if !t.present {
		return nil
	}
	return t
}

func (s *simTransport) exchange(tg byte, data []byte) []byte {
	t := s.target(tg)
	if t == nil {
		return []byte{0x01}
	}
	page := int(data[1])
	switch data[0] {
	case t2Read:
		out := []byte{0x00}
		for i := 0; i < 16; i++ {
			out = append(out, t.mem[(page*4+i)%len(t.mem)])
		}
		return out
	case t2Write:
		if page < 4 || page*4+4 > len(t.mem) {
			return []byte{0x26}
		}
		copy(t.mem[page*4:], data[2:6])
		return []byte{0x00}
	}
	return []byte{0x27}
}

func (s *simTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *simTransport) setPresent(t *simTarget, present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.present = present
}
