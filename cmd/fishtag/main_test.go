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
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/reader/virtual"
	"github.com/ZaparooProject/go-fishtag/session"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCmd_WriteThenReadVirtualImage(t *testing.T) {
	t.Parallel()

	image := filepath.Join(t.TempDir(), "tag.bin")

	out, err := run(t, "write", "--date", "20240307", "--device", image, "--poll-interval", "1ms")
	require.NoError(t, err, out)
	assert.Contains(t, out, session.MsgHoldNear)
	assert.Contains(t, out, session.MsgWriteSuccess)

	data, err := os.ReadFile(image)
	require.NoError(t, err)
	assert.Len(t, data, virtual.NTAG213.Pages*4)

	out, err = run(t, "read", "--device", image, "--poll-interval", "1ms")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Mar 7, 2024")
	assert.Contains(t, out, fishtag.DefaultAttribution)
}

func TestRootCmd_WriteFullEncoding(t *testing.T) {
	t.Parallel()

	image := filepath.Join(t.TempDir(), "tag.bin")

	_, err := run(t, "write", "--full", "--date", "20240101", "--kind", "Amazing Tuna", "--price", "1099",
		"--device", image, "--poll-interval", "1ms")
	require.NoError(t, err)

	out, err := run(t, "read", "--device", image, "--poll-interval", "1ms")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Amazing Tuna")
	assert.Contains(t, out, "$10.99")
}

func TestRootCmd_ReadBlankTagFails(t *testing.T) {
	t.Parallel()

	out, err := run(t, "read", "--poll-interval", "1ms")
	require.ErrorIs(t, err, errSessionFailed)
	assert.Contains(t, out, "✗")
}

func TestRootCmd_WriteRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := run(t, "write", "--date", "2024-03-07")
	require.ErrorIs(t, err, fishtag.ErrMalformedDate)

	_, err = run(t, "write", "--kind", "Sad Sardine")
	require.ErrorIs(t, err, fishtag.ErrUnknownKind)

	_, err = run(t, "write", "--reader", "floppy")
	require.ErrorContains(t, err, `unknown reader "floppy"`)
}

func TestRootCmd_Decode(t *testing.T) {
	t.Parallel()

	enc, err := fishtag.DefaultCodec().Encode(fishtag.TagRecord{ObservationDate: fishtag.Date(2023, time.December, 31)})
	require.NoError(t, err)

	out, err := run(t, "decode", hex.EncodeToString(enc.Bytes()))
	require.NoError(t, err)
	assert.Contains(t, out, "Dec 31, 2023")

	_, err = run(t, "decode", "zz")
	require.ErrorContains(t, err, "decode hex")

	_, err = run(t, "decode", "")
	require.ErrorIs(t, err, fishtag.ErrEmptyDelivery)
}

func TestOpenReader_DeviceRequired(t *testing.T) {
	t.Parallel()

	opts := defaultOptions()
	opts.Reader = readerPN532UART
	_, err := openReader(context.Background(), opts, zerolog.Nop())
	require.ErrorIs(t, err, errDeviceRequired)
}

func TestOpenVirtual_RejectsBadImage(t *testing.T) {
	t.Parallel()

	image := filepath.Join(t.TempDir(), "tag.bin")
	require.NoError(t, os.WriteFile(image, []byte{1, 2, 3}, 0o600))

	_, err := openVirtual(image, zerolog.Nop())
	require.ErrorIs(t, err, virtual.ErrInvalidImage)
}
