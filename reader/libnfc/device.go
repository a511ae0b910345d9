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

//go:build libnfc

package libnfc

import (
	"fmt"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
	"github.com/rs/zerolog"
)

type device struct {
	dev nfc.Device
}

// Scan lists tags with freefare.GetTags.
func (d device) Scan() ([]Target, error) {
	found, err := freefare.GetTags(d.dev)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Discover
	}
	targets := make([]Target, 0, len(found))
	for _, tag := range found {
		target := Target{UID: tag.UID()}
		if ul, ok := tag.(freefare.UltralightTag); ok {
			target.Ultralight = ul
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func (d device) Close() error {
	return d.dev.Close() //nolint:wrapcheck // passthrough
}

// Open opens the libnfc device named by connstring ("" for the default
// device) as an initiator.
func Open(connstring string, log zerolog.Logger) (*Reader, error) {
	dev, err := nfc.Open(connstring)
	if err != nil {
		return nil, fmt.Errorf("libnfc: open %q: %w", connstring, err)
	}
	if err := dev.InitiatorInit(); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("libnfc: initiator init: %w", err)
	}
	log.Debug().Str("device", dev.String()).Msg("libnfc device opened")
	return New(device{dev: dev}, log), nil
}
