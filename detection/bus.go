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
	"fmt"
	"runtime"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// BusSource lists the I2C or SPI buses registered with periph. A PN532 can
// only be confirmed by opening it, so bus candidates are Low confidence.
type BusSource struct {
	refs   func() []string
	reader string
	label  string
}

// NewI2CSource returns a source for PN532 readers on I2C buses.
func NewI2CSource() *BusSource {
	return &BusSource{reader: "pn532-i2c", label: "i2c", refs: func() []string {
		var names []string
		for _, ref := range i2creg.All() {
			names = append(names, ref.Name)
		}
		return names
	}}
}

// NewSPISource returns a source for PN532 readers on SPI ports.
func NewSPISource() *BusSource {
	return &BusSource{reader: "pn532-spi", label: "spi", refs: func() []string {
		var names []string
		for _, ref := range spireg.All() {
			names = append(names, ref.Name)
		}
		return names
	}}
}

func (b *BusSource) Name() string { return b.label }

func (b *BusSource) Candidates(context.Context, *Options) ([]Candidate, error) {
	if runtime.GOOS != "linux" {
		return nil, ErrUnsupportedPlatform
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}

	var out []Candidate
	for _, name := range b.refs() {
		out = append(out, Candidate{Reader: b.reader, Path: name, Name: b.label + " bus", Confidence: Low})
	}
	return out, nil
}
