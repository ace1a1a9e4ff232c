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

package blockfetch

import (
	"fmt"

	"github.com/dt-chain/ouroboros-core/cbor"
	"github.com/dt-chain/ouroboros-core/protocol"
	"github.com/klauspost/compress/zstd"
)

type Server struct {
	*protocol.Protocol
	config          *Config
	callbackContext CallbackContext
}

func NewServer(protoOptions protocol.ProtocolOptions, cfg *Config) *Server {
	s := &Server{
		config: cfg,
	}
	s.callbackContext = CallbackContext{
		Server:       s,
		ConnectionId: protoOptions.ConnectionId,
	}
	protoConfig := protocol.ProtocolConfig{
		Name:                ProtocolName,
		ProtocolId:          ProtocolId,
		Muxer:               protoOptions.Muxer,
		ErrorChan:           protoOptions.ErrorChan,
		Mode:                protoOptions.Mode,
		Role:                protocol.ProtocolRoleServer,
		MessageHandlerFunc:  s.messageHandler,
		MessageFromCborFunc: NewMsgFromCbor,
		StateMap:            StateMap,
		InitialState:        StateIdle,
	}
	s.Protocol = protocol.New(protoConfig)
	return s
}

func (s *Server) NoBlocks() error {
	msg := NewMsgNoBlocks()
	return s.SendMessage(msg)
}

func (s *Server) StartBatch() error {
	msg := NewMsgStartBatch()
	return s.SendMessage(msg)
}

func (s *Server) Block(blockType uint, blockData []byte) error {
	wrappedBlock := WrappedBlock{
		Type:     blockType,
		RawBlock: blockData,
	}
	wrappedBlockData, err := cbor.Encode(&wrappedBlock)
	if err != nil {
		return err
	}
	msg := NewMsgBlock(wrappedBlockData)
	return s.SendMessage(msg)
}

// CompressedBlocks sends a run of blocks compressed together. encoding must
// be EncodingRaw or EncodingZstd; payload is the concatenation of the
// blocks' WrappedBlock CBOR, compressed accordingly by the caller.
func (s *Server) CompressedBlocks(encoding uint64, payload []byte) error {
	msg := NewMsgCompressedBlocks(encoding, payload)
	return s.SendMessage(msg)
}

func (s *Server) BatchDone() error {
	msg := NewMsgBatchDone()
	return s.SendMessage(msg)
}

// EncodeWrappedBlocks concatenates the CBOR encoding of each (type, raw
// block) pair in the form a compressed-blocks payload expects: one
// WrappedBlock item after another, with no separators, matching how
// StreamDecoder walks the decompressed payload back out on the client side.
func EncodeWrappedBlocks(blocks []WrappedBlock) ([]byte, error) {
	var payload []byte
	for _, b := range blocks {
		encoded, err := cbor.Encode(&b)
		if err != nil {
			return nil, err
		}
		payload = append(payload, encoded...)
	}
	return payload, nil
}

// CompressPayload zstd-compresses payload at the given level (see
// github.com/klauspost/compress/zstd's EncoderLevel constants).
func CompressPayload(payload []byte, level zstd.EncoderLevel) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(payload, nil), nil
}

func (s *Server) messageHandler(msg protocol.Message) error {
	var err error
	switch msg.Type() {
	case MessageTypeRequestRange:
		err = s.handleRequestRange(msg)
	case MessageTypeClientDone:
		err = s.handleClientDone()
	default:
		err = fmt.Errorf(
			"%s: received unexpected message type %d",
			ProtocolName,
			msg.Type(),
		)
	}
	return err
}

func (s *Server) handleRequestRange(msg protocol.Message) error {
	if s.config == nil || s.config.RequestRangeFunc == nil {
		return fmt.Errorf(
			"received block-fetch RequestRange message but no callback function is defined",
		)
	}
	msgRequestRange := msg.(*MsgRequestRange)
	return s.config.RequestRangeFunc(s.callbackContext, msgRequestRange.Start, msgRequestRange.End)
}

func (s *Server) handleClientDone() error {
	return nil
}
