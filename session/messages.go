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

package session

// Operator-facing messages.
const (
	MsgHoldNear          = "Hold your device near an NFC fish tag."
	MsgMultipleTags      = "More than 1 tag is detected. Please present only 1 tag."
	MsgConnectError      = "Connection error. Please try again."
	MsgStatusUnknown     = "Unable to determine NDEF status. Please try again."
	MsgNotWritable       = "Tag is not writable."
	MsgCapacityTooSmall  = "Tag capacity is too small. Minimum size requirement is %d bytes."
	MsgNotNDEF           = "Tag is not NDEF formatted."
	MsgInvalidTag        = "Tag is not valid."
	MsgWriteFailed       = "Update tag failed. Please try again."
	MsgWriteSuccess      = "Update success!"
	MsgReadFailed        = "Read error. Please try again."
	MsgNothingRead       = "No information was read."
	MsgReadSuccess       = "Tag read."
	MsgUnreadablePayload = "Tag content is not a fish tag."
	MsgDiscoveryFailed   = "The reader stopped responding. Please try again."
	MsgUnavailable       = "This device does not support tag scanning."
	MsgCancelled         = "Session cancelled."
)
