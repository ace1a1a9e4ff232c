// Copyright 2023 Blink Labs, LLC.
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

package blockfetch

import (
	"fmt"

	"github.com/dt-chain/ouroboros-core/cbor"
	"github.com/dt-chain/ouroboros-core/protocol"
	"github.com/dt-chain/ouroboros-core/protocol/common"
)

const (
	MessageTypeRequestRange     = 0
	MessageTypeClientDone       = 1
	MessageTypeStartBatch       = 2
	MessageTypeNoBlocks         = 3
	MessageTypeBlock            = 4
	MessageTypeBatchDone        = 5
	MessageTypeCompressedBlocks = 6
)

func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypeRequestRange:
		ret = &MsgRequestRange{}
	case MessageTypeClientDone:
		ret = &MsgClientDone{}
	case MessageTypeStartBatch:
		ret = &MsgStartBatch{}
	case MessageTypeNoBlocks:
		ret = &MsgNoBlocks{}
	case MessageTypeBlock:
		ret = &MsgBlock{}
	case MessageTypeBatchDone:
		ret = &MsgBatchDone{}
	case MessageTypeCompressedBlocks:
		ret = &MsgCompressedBlocks{}
	default:
		return nil, fmt.Errorf("%s: unknown message type: %d", ProtocolName, msgType)
	}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, fmt.Errorf("%s: decode error: %w", ProtocolName, err)
	}
	ret.SetCbor(data)
	return ret, nil
}

type MsgRequestRange struct {
	protocol.MessageBase
	Start common.Point
	End   common.Point
}

func NewMsgRequestRange(start common.Point, end common.Point) *MsgRequestRange {
	m := &MsgRequestRange{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRequestRange,
		},
		Start: start,
		End:   end,
	}
	return m
}

type MsgClientDone struct {
	protocol.MessageBase
}

func NewMsgClientDone() *MsgClientDone {
	m := &MsgClientDone{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeClientDone,
		},
	}
	return m
}

type MsgStartBatch struct {
	protocol.MessageBase
}

func NewMsgStartBatch() *MsgStartBatch {
	m := &MsgStartBatch{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeStartBatch,
		},
	}
	return m
}

type MsgNoBlocks struct {
	protocol.MessageBase
}

func NewMsgNoBlocks() *MsgNoBlocks {
	m := &MsgNoBlocks{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeNoBlocks,
		},
	}
	return m
}

type MsgBlock struct {
	protocol.MessageBase
	WrappedBlock []byte
}

func NewMsgBlock(wrappedBlock []byte) *MsgBlock {
	m := &MsgBlock{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeBlock,
		},
		WrappedBlock: wrappedBlock,
	}
	return m
}

type MsgBatchDone struct {
	protocol.MessageBase
}

func NewMsgBatchDone() *MsgBatchDone {
	m := &MsgBatchDone{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeBatchDone,
		},
	}
	return m
}

// MsgCompressedBlocks carries a run of blocks compressed together, used in
// place of one MsgBlock per block when the peer negotiated version 15 or
// later and block compression is enabled on the sending side. Encoding
// identifies the compression applied to Payload: EncodingRaw (0) means
// Payload is the concatenation of WrappedBlock CBOR items uncompressed,
// EncodingZstd (1) means Payload is that same concatenation compressed with
// zstd. Any other encoding is a protocol violation.
type MsgCompressedBlocks struct {
	protocol.MessageBase
	Encoding uint64
	Payload  []byte
}

func NewMsgCompressedBlocks(encoding uint64, payload []byte) *MsgCompressedBlocks {
	m := &MsgCompressedBlocks{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeCompressedBlocks,
		},
		Encoding: encoding,
		Payload:  payload,
	}
	return m
}

// TODO: use this above and expose it, or just remove it
/*
type point struct {
	Slot uint64
	Hash []byte
}
*/

type WrappedBlock struct {
	// Tells the CBOR decoder to convert to/from a struct and a CBOR array
	_        struct{} `cbor:",toarray"`
	Type     uint
	RawBlock cbor.RawMessage
}
