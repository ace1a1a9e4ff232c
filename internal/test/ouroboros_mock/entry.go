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

package ouroboros_mock

import (
	"github.com/dt-chain/ouroboros-core/protocol"
	"github.com/dt-chain/ouroboros-core/protocol/handshake"
	"github.com/dt-chain/ouroboros-core/protocol/keepalive"
)

const (
	MockNetworkMagic       uint32 = 999999
	MockProtocolVersionNtC uint16 = 14 + protocol.ProtocolVersionNtCOffset
	MockProtocolVersionNtN uint16 = 13
	// MockKeepAliveCookie is the cookie value a test node expects to see
	// echoed back in a keep-alive response
	MockKeepAliveCookie uint16 = 0x3e7
)

// EntryType distinguishes the three shapes a ConversationEntry can take
type EntryType int

const (
	EntryTypeNone   EntryType = 0
	EntryTypeInput  EntryType = 1
	EntryTypeOutput EntryType = 2
	EntryTypeClose  EntryType = 3
)

// ConversationEntry is a single step of a scripted mock conversation. The
// concrete type (ConversationEntryInput, ConversationEntryOutput, or
// ConversationEntryClose) determines how Connection.asyncLoop processes it.
type ConversationEntry interface {
	entryType() EntryType
}

// ConversationEntryInput describes a message the mock expects to receive
// from the real peer. If Message is set, the decoded message must match it
// exactly; otherwise only MessageType is checked.
type ConversationEntryInput struct {
	ProtocolId      uint16
	IsResponse      bool
	Message         protocol.Message
	MessageType     uint
	MsgFromCborFunc protocol.MessageFromCborFunc
}

func (ConversationEntryInput) entryType() EntryType { return EntryTypeInput }

// ConversationEntryOutput describes one or more messages the mock sends to
// the real peer as a single segment.
type ConversationEntryOutput struct {
	ProtocolId uint16
	IsResponse bool
	Messages   []protocol.Message
}

func (ConversationEntryOutput) entryType() EntryType { return EntryTypeOutput }

// ConversationEntryClose closes the mock connection
type ConversationEntryClose struct{}

func (ConversationEntryClose) entryType() EntryType { return EntryTypeClose }

// ConversationEntryHandshakeRequestGeneric matches a generic handshake
// proposal from a client, regardless of the versions it proposes
var ConversationEntryHandshakeRequestGeneric = ConversationEntryInput{
	ProtocolId:  handshake.ProtocolId,
	MessageType: handshake.MessageTypeProposeVersions,
}

func ntcVersionData() protocol.VersionData {
	return protocol.VersionDataNtC9to14(MockNetworkMagic)
}

func ntnVersionData() protocol.VersionData {
	return protocol.VersionDataNtN13andUp{
		VersionDataNtN11to12: protocol.VersionDataNtN11to12{
			CborNetworkMagic:                       MockNetworkMagic,
			CborInitiatorAndResponderDiffusionMode: protocol.DiffusionModeInitiatorAndResponder,
			CborPeerSharing:                        protocol.PeerSharingModeNoPeerSharing,
			CborQuery:                              protocol.QueryModeDisabled,
		},
	}
}

// ConversationEntryHandshakeNtCResponse is a pre-defined conversation entry
// for a server NtC handshake response
var ConversationEntryHandshakeNtCResponse = ConversationEntryOutput{
	ProtocolId: handshake.ProtocolId,
	IsResponse: true,
	Messages: []protocol.Message{
		handshake.NewMsgAcceptVersion(MockProtocolVersionNtC, ntcVersionData()),
	},
}

// ConversationEntryHandshakeResponse is kept for older fixtures that don't
// distinguish NtC from NtN
var ConversationEntryHandshakeResponse = ConversationEntryHandshakeNtCResponse

// ConversationEntryHandshakeNtNResponse is a pre-defined conversation entry
// for a server NtN handshake response
var ConversationEntryHandshakeNtNResponse = ConversationEntryOutput{
	ProtocolId: handshake.ProtocolId,
	IsResponse: true,
	Messages: []protocol.Message{
		handshake.NewMsgAcceptVersion(MockProtocolVersionNtN, ntnVersionData()),
	},
}

// ConversationKeepAlive is a pre-defined conversation with a NtN handshake
// and a single correct keep-alive request/response round trip
var ConversationKeepAlive = []ConversationEntry{
	ConversationEntryHandshakeRequestGeneric,
	ConversationEntryHandshakeNtNResponse,
	ConversationEntryInput{
		ProtocolId:      keepalive.ProtocolId,
		Message:         keepalive.NewMsgKeepAlive(MockKeepAliveCookie),
		MsgFromCborFunc: keepalive.NewMsgFromCbor,
	},
	ConversationEntryOutput{
		ProtocolId: keepalive.ProtocolId,
		IsResponse: true,
		Messages: []protocol.Message{
			keepalive.NewMsgKeepAliveResponse(MockKeepAliveCookie),
		},
	},
}
