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

// State is a step of the session state machine.
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateConnecting
	StateNegotiating
	StateWriting
	StateReading
	StateSettling
	StateMonitoringRemoval
	StateTerminated
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateDiscovering:       "discovering",
	StateConnecting:        "connecting",
	StateNegotiating:       "negotiating",
	StateWriting:           "writing",
	StateReading:           "reading",
	StateSettling:          "settling",
	StateMonitoringRemoval: "monitoring-removal",
	StateTerminated:        "terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// transitions lists the allowed successors of each state. Any state may move
// to StateTerminated.
var transitions = map[State][]State{
	StateIdle:              {StateDiscovering},
	StateDiscovering:       {StateDiscovering, StateConnecting, StateMonitoringRemoval},
	StateConnecting:        {StateNegotiating, StateDiscovering},
	StateNegotiating:       {StateWriting, StateReading, StateDiscovering},
	StateWriting:           {StateSettling},
	StateReading:           {StateSettling, StateMonitoringRemoval},
	StateSettling:          {},
	StateMonitoringRemoval: {StateDiscovering},
	StateTerminated:        {},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	if to == StateTerminated {
		return from != StateTerminated
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
