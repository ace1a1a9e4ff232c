// Copyright 2024 Blink Labs Software
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

package handshake

import (
	"fmt"

	"github.com/dt-chain/ouroboros-core/cbor"
	"github.com/dt-chain/ouroboros-core/protocol"
)

// Message type IDs for the handshake mini-protocol
const (
	MessageTypeProposeVersions = 0
	MessageTypeAcceptVersion   = 1
	MessageTypeRefuse          = 2
)

// Refusal reason codes sent in MsgRefuse
const (
	RefuseReasonVersionMismatch = 0
	RefuseReasonDecodeError     = 1
	RefuseReasonRefused         = 2
)

// NewMsgFromCbor parses a handshake message from CBOR
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypeProposeVersions:
		ret = &MsgProposeVersions{}
	case MessageTypeAcceptVersion:
		ret = &MsgAcceptVersion{}
	case MessageTypeRefuse:
		ret = &MsgRefuse{}
	default:
		return nil, fmt.Errorf("%s: unknown message type: %d", ProtocolName, msgType)
	}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, fmt.Errorf("%s: decode error: %w", ProtocolName, err)
	}
	ret.SetCbor(data)
	return ret, nil
}

// MsgProposeVersions proposes a set of protocol versions, each carrying its
// own version-specific parameters
type MsgProposeVersions struct {
	protocol.MessageBase
	VersionMap map[uint16]cbor.RawMessage
}

// NewMsgProposeVersions builds a MsgProposeVersions from a version map,
// encoding each version's parameters independently
func NewMsgProposeVersions(versionMap protocol.ProtocolVersionMap) *MsgProposeVersions {
	tmp := make(map[uint16]cbor.RawMessage, len(versionMap))
	for version, versionData := range versionMap {
		data, err := cbor.Encode(versionData)
		if err != nil {
			continue
		}
		tmp[version] = data
	}
	return &MsgProposeVersions{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeProposeVersions,
		},
		VersionMap: tmp,
	}
}

// MsgAcceptVersion accepts one of the proposed protocol versions
type MsgAcceptVersion struct {
	protocol.MessageBase
	Version     uint16
	VersionData cbor.RawMessage
}

// NewMsgAcceptVersion builds a MsgAcceptVersion for the chosen version
func NewMsgAcceptVersion(version uint16, versionData protocol.VersionData) *MsgAcceptVersion {
	data, err := cbor.Encode(versionData)
	if err != nil {
		return nil
	}
	return &MsgAcceptVersion{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeAcceptVersion,
		},
		Version:     version,
		VersionData: data,
	}
}

// MsgRefuse reports that the handshake could not proceed. Reason[0] is the
// refusal reason code; additional elements carry reason-specific detail.
type MsgRefuse struct {
	protocol.MessageBase
	Reason []any
}

// NewMsgRefuse builds a MsgRefuse from the given reason tuple
func NewMsgRefuse(reason []any) *MsgRefuse {
	return &MsgRefuse{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRefuse,
		},
		Reason: reason,
	}
}
