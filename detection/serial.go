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

package detection

import (
	"context"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"
)

// Serial adapters commonly found on PN532 boards
var knownVIDPIDs = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

var readerKeywords = []string{"pn532", "nfc", "rfid", "13.56"}

const probeTimeout = 2 * time.Second

// SerialSource lists serial ports as PN532 UART candidates.
type SerialSource struct {
	// List enumerates ports; nil uses enumerator.GetDetailedPortsList
	List func() ([]*enumerator.PortDetails, error)
	// Reader is the kind assigned to candidates
	Reader string
}

// NewSerialSource returns a source for PN532 readers on serial ports.
func NewSerialSource() *SerialSource {
	return &SerialSource{Reader: "pn532-uart", List: enumerator.GetDetailedPortsList}
}

func (*SerialSource) Name() string { return "serial" }

// Candidates keeps USB ports whose descriptor looks like a reader and, when a
// prober is configured, any other port that answers it.
func (s *SerialSource) Candidates(ctx context.Context, opts *Options) ([]Candidate, error) {
	list := s.List
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}
	ports, err := list()
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Detect
	}

	var out []Candidate
	for _, port := range ports {
		if ctx.Err() != nil {
			return out, nil
		}
		c := Candidate{Reader: s.Reader, Path: port.Name, Name: port.Product, Confidence: Low}
		if port.IsUSB {
			c.VIDPID = strings.ToUpper(port.VID + ":" + port.PID)
		}
		if likelyReader(port) {
			c.Confidence = Medium
		}

		if opts.Probe != nil && !IsPathIgnored(c.Path, opts.IgnorePaths) && !IsBlocked(c.VIDPID, opts.Blocklist) {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			ok := opts.Probe(probeCtx, port.Name)
			cancel()
			if ok {
				c.Confidence = High
			} else if c.Confidence == Low {
				continue
			}
		} else if c.Confidence == Low {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func likelyReader(port *enumerator.PortDetails) bool {
	if port.IsUSB {
		vidpid := strings.ToUpper(port.VID + ":" + port.PID)
		for _, known := range knownVIDPIDs {
			if vidpid == known {
				return true
			}
		}
	}
	product := strings.ToLower(port.Product)
	for _, kw := range readerKeywords {
		if strings.Contains(product, kw) {
			return true
		}
	}
	return false
}
