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

// Command fishtag writes and reads fish tags and serves the websocket bridge.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-fishtag"
	"github.com/ZaparooProject/go-fishtag/bridge"
	"github.com/ZaparooProject/go-fishtag/session"
)

// errSessionFailed is returned after a failed outcome has been printed.
var errSessionFailed = errors.New("session failed")

type app struct {
	log        zerolog.Logger
	configPath string
	date       string
	kind       string
	price      string
	flags      options
	opts       options
}

func newRootCmd() *cobra.Command {
	a := &app{flags: defaultOptions(), log: zerolog.Nop()}

	root := &cobra.Command{
		Use:               "fishtag",
		Short:             "Write and read NFC fish tags",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.configure,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "TOML config file")
	pf.StringVar(&a.flags.Reader, "reader", a.flags.Reader, "reader: "+strings.Join(readerKinds, "|"))
	pf.StringVar(&a.flags.Device, "device", "", "serial port, bus, PC/SC reader name, libnfc connstring or virtual tag image")
	pf.BoolVar(&a.flags.Debug, "debug", false, "enable debug logging")
	pf.DurationVar(&a.flags.PollInterval, "poll-interval", a.flags.PollInterval, "pause between empty scans")
	pf.BoolVar(&a.flags.FullEncoding, "full", false, "encode kind and price along with the date")

	root.AddCommand(a.writeCmd(), a.readCmd(), a.decodeCmd(), a.serveCmd(), a.detectCmd())
	return root
}

// configure layers defaults, the config file and explicitly set flags.
func (a *app) configure(cmd *cobra.Command, _ []string) error {
	opts := defaultOptions()
	if a.configPath != "" {
		if err := loadConfigFile(a.configPath, &opts); err != nil {
			return err
		}
	}

	f := cmd.Flags()
	if f.Changed("reader") {
		opts.Reader = a.flags.Reader
	}
	if f.Changed("device") {
		opts.Device = a.flags.Device
	}
	if f.Changed("debug") {
		opts.Debug = a.flags.Debug
	}
	if f.Changed("poll-interval") {
		opts.PollInterval = a.flags.PollInterval
	}
	if f.Changed("full") {
		opts.FullEncoding = a.flags.FullEncoding
	}
	if f.Changed("keep-listening") {
		opts.KeepListening = a.flags.KeepListening
	}
	if f.Changed("listen") {
		opts.Listen = a.flags.Listen
	}
	if f.Changed("advertise") {
		opts.Advertise = a.flags.Advertise
	}
	if f.Changed("service-name") {
		opts.ServiceName = a.flags.ServiceName
	}
	if err := opts.validate(); err != nil {
		return err
	}

	a.opts = opts
	a.log = newLogger(cmd.ErrOrStderr(), opts.Debug)
	return nil
}

// withEngine opens the reader, runs fn and closes the reader.
func (a *app) withEngine(cmd *cobra.Command, cfg *session.Config,
	fn func(ctx context.Context, engine *session.Engine) error,
) error {
	ctx := cmd.Context()
	if a.opts.Reader == readerAuto {
		if err := a.detect(ctx); err != nil {
			return err
		}
	}
	reader, err := openReader(ctx, a.opts, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close reader")
		}
	}()
	return fn(ctx, session.NewEngine(reader, cfg))
}

func (a *app) interactiveConfig(w io.Writer) *session.Config {
	cfg := a.opts.sessionConfig(a.log)
	cfg.OnAlert = func(_, message string) { printAlert(w, message) }
	cfg.OnStateChange = func(id string, from, to session.State) {
		a.log.Debug().Str("session", id).Stringer("from", from).Stringer("to", to).Msg("state")
	}
	return cfg
}

func (a *app) writeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a record to the next tag presented",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			record, err := a.record()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.withEngine(cmd, a.interactiveConfig(out), func(ctx context.Context, engine *session.Engine) error {
				_, _ = fmt.Fprintln(out, session.MsgHoldNear)
				outcome, err := engine.Write(ctx, record)
				if err != nil {
					return err
				}
				printOutcome(out, outcome)
				return sessionErr(ctx, outcome.Success())
			})
		},
	}
	cmd.Flags().StringVar(&a.date, "date", "", "observation date YYYYMMDD (default today)")
	cmd.Flags().StringVar(&a.kind, "kind", "", "fish kind: "+strings.Join(fishtag.Kinds, ", "))
	cmd.Flags().StringVar(&a.price, "price", "", "4 digit price code, e.g. 0599")
	return cmd
}

func (a *app) record() (fishtag.TagRecord, error) {
	now := time.Now()
	record := fishtag.TagRecord{
		ObservationDate: fishtag.Date(now.Year(), now.Month(), now.Day()),
		Kind:            a.kind,
		PriceCode:       a.price,
	}
	if a.date != "" {
		date, err := fishtag.ParseWireDate(a.date)
		if err != nil {
			return fishtag.TagRecord{}, err
		}
		record.ObservationDate = date
	}
	if err := record.Validate(); err != nil {
		return fishtag.TagRecord{}, err
	}
	return record, nil
}

func (a *app) readCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read and decode the next tag presented",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return a.withEngine(cmd, a.interactiveConfig(out), func(ctx context.Context, engine *session.Engine) error {
				_, _ = fmt.Fprintln(out, session.MsgHoldNear)
				outcome, err := engine.Read(ctx)
				if err != nil {
					return err
				}
				printOutcome(out, outcome.SessionOutcome)
				printRecord(out, outcome.Record)
				if outcome.DecodeErr != nil {
					printAlert(out, outcome.DecodeErr.Error())
				}
				return sessionErr(ctx, outcome.Success())
			})
		},
	}
	cmd.Flags().BoolVar(&a.flags.KeepListening, "keep-listening", false, "keep scanning when a tag cannot be decoded")
	return cmd
}

func (a *app) decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a captured NDEF message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hex.DecodeString(strings.NewReplacer(" ", "", ":", "").Replace(args[0]))
			if err != nil {
				return fmt.Errorf("decode hex: %w", err)
			}
			rec, err := a.opts.codec().DecodeDelivered(data)
			if err != nil {
				return err
			}
			printRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the websocket bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var srv *bridge.Server
			cfg := a.opts.sessionConfig(a.log)
			cfg.OnAlert = func(id, message string) { srv.Alert(id, message) }
			cfg.OnStateChange = func(id string, from, to session.State) { srv.StateChange(id, from, to) }

			return a.withEngine(cmd, cfg, func(ctx context.Context, engine *session.Engine) error {
				srv = bridge.New(engine, a.log)

				var lc net.ListenConfig
				ln, err := lc.Listen(ctx, "tcp", a.opts.Listen)
				if err != nil {
					return fmt.Errorf("listen: %w", err)
				}
				if a.opts.Advertise {
					port := ln.Addr().(*net.TCPAddr).Port
					adv, err := bridge.Advertise(a.opts.ServiceName, port, a.log)
					if err != nil {
						a.log.Warn().Err(err).Msg("mDNS advertisement disabled")
					}
					defer adv.Shutdown()
				}
				return srv.Serve(ctx, ln)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&a.flags.Listen, "listen", a.flags.Listen, "listen address")
	f.BoolVar(&a.flags.Advertise, "advertise", false, "advertise the bridge over mDNS")
	f.StringVar(&a.flags.ServiceName, "service-name", "", "mDNS instance name (default from hostname)")
	return cmd
}

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		if !errors.Is(err, errSessionFailed) {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func sessionErr(ctx context.Context, success bool) error {
	switch {
	case success:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return errSessionFailed
	}
}
