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

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/session"
)

// Reader kinds accepted by --reader
const (
	readerVirtual   = "virtual"
	readerPN532UART = "pn532-uart"
	readerPN532I2C  = "pn532-i2c"
	readerPN532SPI  = "pn532-spi"
	readerPCSC      = "pcsc"
	readerLibnfc    = "libnfc"
	readerAuto      = "auto"
)

var readerKinds = []string{
	readerVirtual, readerPN532UART, readerPN532I2C, readerPN532SPI, readerPCSC, readerLibnfc, readerAuto,
}

type options struct {
	IgnorePaths          []string
	Reader               string
	Device               string
	Listen               string
	ServiceName          string
	BaseURI              string
	DisplayLayout        string
	PollInterval         time.Duration
	RemovalProbeInterval time.Duration
	Debug                bool
	Advertise            bool
	FullEncoding         bool
	KeepListening        bool
}

func defaultOptions() options {
	def := session.DefaultConfig()
	return options{
		Reader:               readerVirtual,
		Listen:               "127.0.0.1:8642",
		BaseURI:              fishtag.DefaultBaseURI,
		DisplayLayout:        fishtag.DefaultDisplayLayout,
		PollInterval:         def.PollInterval,
		RemovalProbeInterval: def.RemovalProbeInterval,
	}
}

func (o options) validate() error {
	for _, kind := range readerKinds {
		if o.Reader == kind {
			return nil
		}
	}
	return fmt.Errorf("unknown reader %q (want one of %s)", o.Reader, strings.Join(readerKinds, ", "))
}

func (o options) codec() *fishtag.Codec {
	c := fishtag.DefaultCodec()
	c.BaseURI = o.BaseURI
	c.DisplayLayout = o.DisplayLayout
	c.IncludeAllFields = o.FullEncoding
	return c
}

func (o options) sessionConfig(log zerolog.Logger) *session.Config {
	cfg := session.DefaultConfig()
	cfg.Codec = o.codec()
	cfg.Logger = log
	cfg.PollInterval = o.PollInterval
	cfg.RemovalProbeInterval = o.RemovalProbeInterval
	if o.KeepListening {
		cfg.ReadDecodePolicy = session.DecodeFailureKeepListening
	}
	return cfg
}

type fileConfig struct {
	IgnorePaths          []string `toml:"ignore_paths"`
	Reader               string   `toml:"reader"`
	Device               string   `toml:"device"`
	Listen               string   `toml:"listen"`
	ServiceName          string   `toml:"service_name"`
	BaseURI              string   `toml:"base_uri"`
	DisplayLayout        string   `toml:"display_layout"`
	PollInterval         string   `toml:"poll_interval"`
	RemovalProbeInterval string   `toml:"removal_probe_interval"`
	Debug                bool     `toml:"debug"`
	Advertise            bool     `toml:"advertise"`
	FullEncoding         bool     `toml:"full_encoding"`
	KeepListening        bool     `toml:"keep_listening"`
}

// loadConfigFile applies the keys present in path on top of opts.
func loadConfigFile(path string, opts *options) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	setString := func(key, value string, dst *string) {
		if meta.IsDefined(key) {
			if v := strings.TrimSpace(value); v != "" {
				*dst = v
			}
		}
	}
	setString("reader", raw.Reader, &opts.Reader)
	setString("device", raw.Device, &opts.Device)
	setString("listen", raw.Listen, &opts.Listen)
	setString("service_name", raw.ServiceName, &opts.ServiceName)
	setString("base_uri", raw.BaseURI, &opts.BaseURI)
	setString("display_layout", raw.DisplayLayout, &opts.DisplayLayout)

	if meta.IsDefined("ignore_paths") {
		opts.IgnorePaths = raw.IgnorePaths
	}

	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return fmt.Errorf("parse poll_interval: %w", err)
		}
		opts.PollInterval = d
	}
	if meta.IsDefined("removal_probe_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RemovalProbeInterval))
		if err != nil {
			return fmt.Errorf("parse removal_probe_interval: %w", err)
		}
		opts.RemovalProbeInterval = d
	}

	if meta.IsDefined("debug") {
		opts.Debug = raw.Debug
	}
	if meta.IsDefined("advertise") {
		opts.Advertise = raw.Advertise
	}
	if meta.IsDefined("full_encoding") {
		opts.FullEncoding = raw.FullEncoding
	}
	if meta.IsDefined("keep_listening") {
		opts.KeepListening = raw.KeepListening
	}
	return nil
}
