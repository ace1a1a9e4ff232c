// Copyright 2023 Blink Labs Software
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

package protocol

import (
	"time"
)

// Agency indicates which side of a mini-protocol has the right to send the
// next message while in a given state.
type Agency uint8

const (
	// AgencyNone means neither side may send; the mini-protocol is done.
	AgencyNone Agency = iota
	// AgencyClient means the client is expected to send the next message.
	AgencyClient
	// AgencyServer means the server is expected to send the next message.
	AgencyServer
)

// State identifies one node of a mini-protocol's state machine.
type State struct {
	Id   uint
	Name string
}

// NewState returns a State with the given numeric ID and display name.
func NewState(id uint, name string) State {
	return State{
		Id:   id,
		Name: name,
	}
}

func (s State) String() string {
	return s.Name
}

// StateTransitionMatchFunc evaluates additional per-message state, beyond the
// message type, to decide whether a transition applies. It receives the
// mini-protocol's private state context (as configured via
// ProtocolConfig.StateContext) and the message being processed. Chain-sync's
// pipelining bookkeeping is the canonical use.
type StateTransitionMatchFunc func(stateContext any, msg Message) bool

// StateTransition describes a single edge in a mini-protocol's state map,
// selected on incoming message type and, optionally, a MatchFunc.
type StateTransition struct {
	MsgType   uint8
	NewState  State
	MatchFunc StateTransitionMatchFunc
}

// StateMapEntry describes the behavior of a mini-protocol while in a given
// state: who has agency, the timeout for that agency to be exercised, the
// outbound transitions available, and an optional cap on how many bytes of a
// pending (partially received) message will be buffered before the
// connection is torn down as a protocol violation.
type StateMapEntry struct {
	Agency                  Agency
	Transitions             []StateTransition
	Timeout                 time.Duration
	PendingMessageByteLimit uint
}

// StateMap is a mini-protocol's full state machine, keyed by state.
type StateMap map[State]StateMapEntry

// Copy returns a shallow copy of the state map. Mini-protocol clients and
// servers each copy the shared package-level StateMap so that per-instance
// timeout overrides don't leak across instances.
func (s StateMap) Copy() StateMap {
	ret := make(StateMap, len(s))
	for k, v := range s {
		ret[k] = v
	}
	return ret
}
