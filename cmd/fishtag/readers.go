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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/reader/pcsc"
	"github.com/ZaparooProject/go-fishtag/reader/pn532"
	"github.com/ZaparooProject/go-fishtag/reader/virtual"
	"github.com/ZaparooProject/go-fishtag/transport/i2c"
	"github.com/ZaparooProject/go-fishtag/transport/spi"
	"github.com/ZaparooProject/go-fishtag/transport/uart"
)

var errDeviceRequired = errors.New("--device is required for this reader")

// virtualUID identifies the demo tag.
var virtualUID = []byte{0x04, 0xF1, 0x5E, 0x7A, 0x60, 0x00, 0x01}

// openReader opens the reader selected by opts.
func openReader(ctx context.Context, opts options, log zerolog.Logger) (fishtag.Reader, error) {
	switch opts.Reader {
	case readerVirtual:
		return asReader(openVirtual(opts.Device, log))
	case readerPN532UART:
		if opts.Device == "" {
			return nil, errDeviceRequired
		}
		return openPN532(ctx, log, func() (pn532.Transport, error) {
			t, err := uart.New(opts.Device, log)
			if err != nil {
				return nil, fmt.Errorf("open UART transport: %w", err)
			}
			return t, nil
		})
	case readerPN532I2C:
		return openPN532(ctx, log, func() (pn532.Transport, error) {
			t, err := i2c.New(opts.Device, log)
			if err != nil {
				return nil, fmt.Errorf("open I2C transport: %w", err)
			}
			return t, nil
		})
	case readerPN532SPI:
		return openPN532(ctx, log, func() (pn532.Transport, error) {
			t, err := spi.New(opts.Device, log)
			if err != nil {
				return nil, fmt.Errorf("open SPI transport: %w", err)
			}
			return t, nil
		})
	case readerPCSC:
		return asReader(pcsc.Open(opts.Device, log))
	case readerLibnfc:
		return openLibnfc(opts.Device, log)
	default:
		return nil, fmt.Errorf("unsupported reader %q", opts.Reader)
	}
}

// openPN532 opens a PN532 reader that reopens its transport when the device
// stops answering.
func openPN532(ctx context.Context, log zerolog.Logger, open pn532.ReopenFunc) (fishtag.Reader, error) {
	t, err := open()
	if err != nil {
		return nil, err
	}
	r, err := pn532.Open(ctx, t, log)
	if err != nil {
		return nil, err
	}
	r.SetRecovery(pn532.DefaultRecovery(open))
	return r, nil
}

// asReader keeps a failed open from yielding a typed nil reader.
func asReader[R fishtag.Reader](r R, err error) (fishtag.Reader, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}

// imageReader is a virtual reader whose single tag is saved to a file on
// Close.
type imageReader struct {
	*virtual.Reader
	tag  *virtual.Tag
	path string
}

func (r *imageReader) Close() error {
	err := r.Reader.Close()
	if r.path == "" {
		return err
	}
	if werr := os.WriteFile(r.path, r.tag.Image(), 0o600); werr != nil {
		return errors.Join(err, fmt.Errorf("save tag image: %w", werr))
	}
	return err
}

// openVirtual presents one NTAG213. With a path the tag memory is loaded
// from and saved to that file.
func openVirtual(path string, log zerolog.Logger) (*imageReader, error) {
	tag := virtual.NewNTAG213(virtualUID)
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if tag, err = virtual.FromImage(virtual.NTAG213, virtualUID, data); err != nil {
				return nil, err
			}
		case errors.Is(err, fs.ErrNotExist):
			log.Debug().Str("path", path).Msg("new virtual tag image")
		default:
			return nil, fmt.Errorf("load tag image: %w", err)
		}
	}
	return &imageReader{Reader: virtual.NewReader(log, tag), tag: tag, path: path}, nil
}
