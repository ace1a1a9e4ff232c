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

package chainsync

import (
	"fmt"

	"github.com/dt-chain/ouroboros-core/cbor"
	"github.com/dt-chain/ouroboros-core/protocol"
	"github.com/dt-chain/ouroboros-core/protocol/common"
)

// Message type IDs for the chain-sync mini-protocol
const (
	MessageTypeRequestNext        = 0
	MessageTypeAwaitReply         = 1
	MessageTypeRollForward        = 2
	MessageTypeRollBackward       = 3
	MessageTypeFindIntersect      = 4
	MessageTypeIntersectFound     = 5
	MessageTypeIntersectNotFound  = 6
	MessageTypeDone               = 7
)

// Point and Tip are aliases for the shared mini-protocol types, kept local
// for convenience since they appear throughout this package's API
type Point = common.Point
type Tip = common.Tip

// NewMsgFromCborNtN parses a node-to-node chain-sync message from CBOR
func NewMsgFromCborNtN(msgType uint, data []byte) (protocol.Message, error) {
	return NewMsgFromCbor(protocol.ProtocolModeNodeToNode, msgType, data)
}

// NewMsgFromCborNtC parses a node-to-client chain-sync message from CBOR
func NewMsgFromCborNtC(msgType uint, data []byte) (protocol.Message, error) {
	return NewMsgFromCbor(protocol.ProtocolModeNodeToClient, msgType, data)
}

// NewMsgFromCbor parses a chain-sync message from CBOR, selecting the
// RollForward variant appropriate for the given protocol mode
func NewMsgFromCbor(
	protoMode protocol.ProtocolMode,
	msgType uint,
	data []byte,
) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypeRequestNext:
		ret = &MsgRequestNext{}
	case MessageTypeAwaitReply:
		ret = &MsgAwaitReply{}
	case MessageTypeRollForward:
		if protoMode == protocol.ProtocolModeNodeToNode {
			ret = &MsgRollForwardNtN{}
		} else {
			ret = &MsgRollForwardNtC{}
		}
	case MessageTypeRollBackward:
		ret = &MsgRollBackward{}
	case MessageTypeFindIntersect:
		ret = &MsgFindIntersect{}
	case MessageTypeIntersectFound:
		ret = &MsgIntersectFound{}
	case MessageTypeIntersectNotFound:
		ret = &MsgIntersectNotFound{}
	case MessageTypeDone:
		ret = &MsgDone{}
	default:
		return nil, fmt.Errorf("%s: unknown message type: %d", ProtocolName, msgType)
	}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, fmt.Errorf("%s: decode error: %w", ProtocolName, err)
	}
	ret.SetCbor(data)
	return ret, nil
}

// MsgRequestNext requests the next block or header from the current
// intersection point
type MsgRequestNext struct {
	protocol.MessageBase
}

func NewMsgRequestNext() *MsgRequestNext {
	return &MsgRequestNext{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRequestNext,
		},
	}
}

// MsgAwaitReply indicates that no new block is available yet and the
// server will reply as soon as one is
type MsgAwaitReply struct {
	protocol.MessageBase
}

func NewMsgAwaitReply() *MsgAwaitReply {
	return &MsgAwaitReply{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeAwaitReply,
		},
	}
}

// MsgRollForwardNtC carries a full block for node-to-client chain-sync
type MsgRollForwardNtC struct {
	protocol.MessageBase
	WrappedBlock cbor.Tag
	Tip          Tip
	blockType    uint
	blockCbor    []byte
}

// NewMsgRollForwardNtC returns a MsgRollForwardNtC wrapping the given raw
// block bytes
func NewMsgRollForwardNtC(blockType uint, blockCbor []byte, tip Tip) *MsgRollForwardNtC {
	m := &MsgRollForwardNtC{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRollForward,
		},
		Tip:       tip,
		blockType: blockType,
		blockCbor: blockCbor,
	}
	wb := NewWrappedBlock(blockType, blockCbor)
	content, err := cbor.Encode(wb)
	if err != nil {
		return nil
	}
	m.WrappedBlock = cbor.Tag{Number: 24, Content: content}
	return m
}

// UnmarshalCBOR decodes a received MsgRollForwardNtC, unwrapping the tagged
// block CBOR into the type/body accessors used by handlers
func (m *MsgRollForwardNtC) UnmarshalCBOR(data []byte) error {
	var tmp struct {
		// Tells the CBOR decoder to convert to/from a struct and a CBOR array
		_            struct{} `cbor:",toarray"`
		MessageType  uint
		WrappedBlock cbor.Tag
		Tip          Tip
	}
	if _, err := cbor.Decode(data, &tmp); err != nil {
		return err
	}
	m.MessageType = tmp.MessageType
	m.WrappedBlock = tmp.WrappedBlock
	m.Tip = tmp.Tip
	var wb WrappedBlock
	content, ok := tmp.WrappedBlock.Content.([]byte)
	if !ok {
		return fmt.Errorf("%s: unexpected wrapped block content type", ProtocolName)
	}
	if _, err := cbor.Decode(content, &wb); err != nil {
		return err
	}
	m.blockType = wb.BlockType
	m.blockCbor = wb.BlockCbor
	return nil
}

// BlockType returns the era-specific block type tag
func (m *MsgRollForwardNtC) BlockType() uint {
	return m.blockType
}

// BlockCbor returns the raw block CBOR, undecoded
func (m *MsgRollForwardNtC) BlockCbor() []byte {
	return m.blockCbor
}

// MsgRollForwardNtN carries a block header for node-to-node chain-sync
type MsgRollForwardNtN struct {
	protocol.MessageBase
	WrappedHeader WrappedHeader
	Tip           Tip
}

// NewMsgRollForwardNtN returns a MsgRollForwardNtN wrapping the given raw
// header bytes
func NewMsgRollForwardNtN(era uint, byronType uint, blockCbor []byte, tip Tip) *MsgRollForwardNtN {
	wrappedHeader := NewWrappedHeader(era, byronType, blockCbor)
	if wrappedHeader == nil {
		return nil
	}
	return &MsgRollForwardNtN{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRollForward,
		},
		WrappedHeader: *wrappedHeader,
		Tip:           tip,
	}
}

// MsgRollBackward rolls the peer's reader back to an earlier point
type MsgRollBackward struct {
	protocol.MessageBase
	Point Point
	Tip   Tip
}

func NewMsgRollBackward(point Point, tip Tip) *MsgRollBackward {
	return &MsgRollBackward{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRollBackward,
		},
		Point: point,
		Tip:   tip,
	}
}

// MsgFindIntersect requests the server find the best intersection between
// the listed points and its chain
type MsgFindIntersect struct {
	protocol.MessageBase
	Points []Point
}

func NewMsgFindIntersect(points []Point) *MsgFindIntersect {
	return &MsgFindIntersect{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeFindIntersect,
		},
		Points: points,
	}
}

// MsgIntersectFound reports the intersection point chosen by the server
type MsgIntersectFound struct {
	protocol.MessageBase
	Point Point
	Tip   Tip
}

func NewMsgIntersectFound(point Point, tip Tip) *MsgIntersectFound {
	return &MsgIntersectFound{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeIntersectFound,
		},
		Point: point,
		Tip:   tip,
	}
}

// MsgIntersectNotFound reports that none of the requested points intersect
// the server's chain
type MsgIntersectNotFound struct {
	protocol.MessageBase
	Tip Tip
}

func NewMsgIntersectNotFound(tip Tip) *MsgIntersectNotFound {
	return &MsgIntersectNotFound{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeIntersectNotFound,
		},
		Tip: tip,
	}
}

// MsgDone terminates the chain-sync mini-protocol
type MsgDone struct {
	protocol.MessageBase
}

func NewMsgDone() *MsgDone {
	return &MsgDone{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeDone,
		},
	}
}
