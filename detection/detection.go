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

// Package detection finds attached tag readers so the CLI can pick one
// without a --device path.
package detection

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"
)

// Confidence ranks how likely a candidate is a working reader.
type Confidence int

const (
	// Low means the path exists and could host a reader, such as an I2C bus.
	Low Confidence = iota
	// Medium means the descriptor matches a known reader or adapter.
	Medium
	// High means the device answered a probe.
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Candidate is a reader that can be opened with Reader and Path.
type Candidate struct {
	// Reader is the --reader kind, e.g. "pn532-uart"
	Reader string
	// Path is the --device value
	Path string
	// Name is a human-readable description
	Name string
	// VIDPID is the USB VID:PID when known
	VIDPID     string
	Confidence Confidence
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s at %s (confidence: %s)", c.Reader, c.Path, c.Confidence)
}

// Prober reports whether a reader answers at path.
type Prober func(ctx context.Context, path string) bool

// Options configures Detect.
type Options struct {
	// Probe, when set, is called for serial candidates and raises those that
	// answer to High confidence
	Probe Prober
	// Blocklist holds USB VID:PID pairs to skip
	Blocklist []string
	// IgnorePaths holds device paths to skip
	IgnorePaths []string
	// Timeout bounds the whole detection run
	Timeout time.Duration
}

// DefaultOptions returns detection options without probing.
func DefaultOptions() Options {
	return Options{Timeout: 5 * time.Second}
}

// Source lists candidates of one kind.
type Source interface {
	Name() string
	Candidates(ctx context.Context, opts *Options) ([]Candidate, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc struct {
	Fn    func(ctx context.Context, opts *Options) ([]Candidate, error)
	Label string
}

func (s SourceFunc) Name() string { return s.Label }

func (s SourceFunc) Candidates(ctx context.Context, opts *Options) ([]Candidate, error) {
	return s.Fn(ctx, opts)
}

var (
	// ErrNoDevices means no source reported a candidate
	ErrNoDevices = errors.New("no tag readers found")
	// ErrTimeout means the sources did not finish in time
	ErrTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform is returned by sources that cannot run here
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

type result struct {
	err        error
	candidates []Candidate
}

// Detect runs every source in parallel and returns the candidates that pass
// the blocklist and ignore list, best first. Sources that fail are skipped
// as long as another one found something.
func Detect(ctx context.Context, opts Options, sources ...Source) ([]Candidate, error) {
	if len(sources) == 0 {
		return nil, errors.New("no detection sources")
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan result, len(sources))
	for _, src := range sources {
		go func(src Source) {
			found, err := src.Candidates(ctx, &opts)
			if err != nil {
				err = fmt.Errorf("%s: %w", src.Name(), err)
			}
			results <- result{candidates: found, err: err}
		}(src)
	}

	var all []Candidate
	var errs []error
	for range sources {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
				continue
			}
			all = append(all, res.candidates...)
		case <-ctx.Done():
			return nil, ErrTimeout
		}
	}

	all = filter(all, &opts)
	if len(all) == 0 {
		if err := errors.Join(errs...); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoDevices, err)
		}
		return nil, ErrNoDevices
	}
	slices.SortStableFunc(all, func(a, b Candidate) int { return cmp.Compare(b.Confidence, a.Confidence) })
	return all, nil
}

func filter(candidates []Candidate, opts *Options) []Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if IsPathIgnored(c.Path, opts.IgnorePaths) {
			continue
		}
		if c.VIDPID != "" && IsBlocked(c.VIDPID, opts.Blocklist) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// IsBlocked reports whether vidpid is in blocklist, ignoring case.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.TrimSpace(vidpid)
	for _, blocked := range blocklist {
		if strings.EqualFold(vidpid, strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// IsPathIgnored reports whether devicePath matches an entry of ignorePaths
// after cleaning. Windows COM names compare case-insensitively.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	for _, p := range ignorePaths {
		if p != "" && normalizedPath(p) == device {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	path = filepath.Clean(strings.TrimSpace(path))
	if runtime.GOOS == "windows" || strings.HasPrefix(strings.ToUpper(path), "COM") {
		path = strings.ToUpper(path)
	}
	return path
}
