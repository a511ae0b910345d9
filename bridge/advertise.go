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

package bridge

import (
	"fmt"
	"os"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
)

// mDNS service parameters
const (
	ServiceType     = "_fishtag._tcp"
	ServiceDomain   = "local."
	ProtocolVersion = "1"
)

// Advertisement is a registered mDNS service. Shutdown withdraws it.
type Advertisement struct {
	server *zeroconf.Server
	log    zerolog.Logger
}

// TXTRecords returns the TXT entries announced for the bridge.
func TXTRecords() []string {
	return []string{
		"version=" + ProtocolVersion,
		"protocol=websocket",
		"path=/ws",
	}
}

// ServiceName returns name, or a name derived from the hostname when empty.
func ServiceName(name string) string {
	if name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "fishtag"
	}
	return "fishtag-" + host
}

// Advertise registers the bridge on the local network.
func Advertise(name string, port int, log zerolog.Logger) (*Advertisement, error) {
	name = ServiceName(name)
	server, err := zeroconf.Register(name, ServiceType, ServiceDomain, port, TXTRecords(), nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	log.Info().Str("service", name).Int("port", port).Msg("mDNS service registered")
	return &Advertisement{server: server, log: log}, nil
}

// Shutdown withdraws the service. Safe on a nil Advertisement.
func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.log.Debug().Msg("mDNS service withdrawn")
}
