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
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-fishtag/detection"
	"github.com/ZaparooProject/go-fishtag/reader/pcsc"
	"github.com/ZaparooProject/go-fishtag/reader/pn532"
	"github.com/ZaparooProject/go-fishtag/transport/uart"
)

func pcscSource() detection.Source {
	return detection.SourceFunc{Label: "pcsc", Fn: func(context.Context, *detection.Options) ([]detection.Candidate, error) {
		names, err := pcsc.ListReaders()
		if err != nil {
			return nil, err
		}
		out := make([]detection.Candidate, 0, len(names))
		for _, name := range names {
			out = append(out, detection.Candidate{
				Reader: readerPCSC, Path: name, Name: name, Confidence: detection.High,
			})
		}
		return out, nil
	}}
}

// probePN532 asks the device at path for its firmware version. One attempt
// only: ports that are not PN532s should not be hammered.
func probePN532(log zerolog.Logger) detection.Prober {
	return func(ctx context.Context, path string) bool {
		t, err := uart.New(path, log)
		if err != nil {
			return false
		}
		dev := pn532.NewDevice(t, log)
		defer func() { _ = dev.Close() }()
		_, err = dev.FirmwareVersion(ctx)
		return err == nil
	}
}

func detectSources() []detection.Source {
	return []detection.Source{
		detection.NewSerialSource(),
		detection.NewI2CSource(),
		detection.NewSPISource(),
		pcscSource(),
	}
}

// detect resolves --reader auto to the best candidate.
func (a *app) detect(ctx context.Context) error {
	opts := detection.DefaultOptions()
	opts.Probe = probePN532(a.log)
	opts.IgnorePaths = a.opts.IgnorePaths
	found, err := detection.Detect(ctx, opts, detectSources()...)
	if err != nil {
		return err
	}
	best := found[0]
	a.log.Info().Str("reader", best.Reader).Str("device", best.Path).Msg("detected reader")
	a.opts.Reader = best.Reader
	a.opts.Device = best.Path
	return nil
}

func (a *app) detectCmd() *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "List attached tag readers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := detection.DefaultOptions()
			opts.IgnorePaths = a.opts.IgnorePaths
			if probe {
				opts.Probe = probePN532(a.log)
			}
			found, err := detection.Detect(cmd.Context(), opts, detectSources()...)
			if err != nil {
				return err
			}
			for _, c := range found {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), c.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "send a firmware request to each serial port")
	return cmd
}
