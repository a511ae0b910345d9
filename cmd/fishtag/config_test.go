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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-fishtag/session"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fishtag.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
reader = "pcsc"
device = "ACS ACR122U"
poll_interval = "10ms"
full_encoding = true
keep_listening = true
display_layout = "2006-01-02"
`)

	opts := defaultOptions()
	require.NoError(t, loadConfigFile(path, &opts))
	assert.Equal(t, readerPCSC, opts.Reader)
	assert.Equal(t, "ACS ACR122U", opts.Device)
	assert.Equal(t, 10*time.Millisecond, opts.PollInterval)
	assert.True(t, opts.FullEncoding)
	assert.Equal(t, "127.0.0.1:8642", opts.Listen, "undefined keys keep defaults")

	cfg := opts.sessionConfig(zerolog.Nop())
	assert.Equal(t, session.DecodeFailureKeepListening, cfg.ReadDecodePolicy)
	assert.Equal(t, "2006-01-02", cfg.Codec.DisplayLayout)
	assert.True(t, cfg.Codec.IncludeAllFields)
}

func TestLoadConfigFile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown key", body: `colour = "red"`, want: `unknown key "colour"`},
		{name: "bad duration", body: `poll_interval = "soon"`, want: "parse poll_interval"},
		{name: "bad toml", body: `reader = `, want: "load config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := defaultOptions()
			err := loadConfigFile(writeConfig(t, tt.body), &opts)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRootCmd_FlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `reader = "pcsc"`)
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "--reader", "floppy", "decode", "00"})
	err := cmd.Execute()
	require.ErrorContains(t, err, `unknown reader "floppy"`)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{raw: "", want: zerolog.InfoLevel, ok: false},
		{raw: "DEBUG", want: zerolog.DebugLevel, ok: true},
		{raw: "warn", want: zerolog.WarnLevel, ok: true},
		{raw: "off", want: zerolog.Disabled, ok: true},
		{raw: "loud", want: zerolog.InfoLevel, ok: false},
	}
	for _, tt := range tests {
		got, ok := parseLevel(tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
	}
}
