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
	"io"

	"github.com/fatih/color"

	"github.com/ZaparooProject/go-fishtag"
)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	alertColor = color.New(color.FgYellow)
	labelColor = color.New(color.FgCyan)
)

func printAlert(w io.Writer, message string) {
	_, _ = alertColor.Fprintf(w, "! %s\n", message)
}

func printOutcome(w io.Writer, out fishtag.SessionOutcome) {
	if out.Success() {
		_, _ = okColor.Fprintf(w, "✓ %s\n", out.Message)
	} else {
		_, _ = failColor.Fprintf(w, "✗ %s\n", out.Message)
		if out.Failure.Err != nil {
			printField(w, "Cause", out.Failure.Err.Error())
		}
	}
	printField(w, "Tag", out.TagID)
	printField(w, "Session", out.SessionID)
}

func printRecord(w io.Writer, rec *fishtag.DecodedRecord) {
	if rec == nil {
		return
	}
	printField(w, "Date", rec.DateDisplay)
	printField(w, "Kind", rec.Kind)
	printField(w, "Price", rec.PriceDisplay)
	printField(w, "Note", rec.Note)
}

// printField skips empty values.
func printField(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	_, _ = fmt.Fprintf(w, "  %s %s\n", labelColor.Sprintf("%-8s", label+":"), value)
}
