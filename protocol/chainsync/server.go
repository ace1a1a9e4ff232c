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
	"errors"
	"fmt"

	"github.com/dt-chain/ouroboros-core/protocol"
)

// Server implements the ChainSync server
type Server struct {
	*protocol.Protocol
	config          *Config
	callbackContext CallbackContext
	protoOptions    protocol.ProtocolOptions
}

// NewServer returns a new ChainSync server object
func NewServer(
	stateContext any,
	protoOptions protocol.ProtocolOptions,
	cfg *Config,
) *Server {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	// Use node-to-client protocol ID
	protocolId := ProtocolIdNtC
	msgFromCborFunc := NewMsgFromCborNtC
	if protoOptions.Mode == protocol.ProtocolModeNodeToNode {
		// Use node-to-node protocol ID
		protocolId = ProtocolIdNtN
		msgFromCborFunc = NewMsgFromCborNtN
	}
	s := &Server{
		config:       cfg,
		protoOptions: protoOptions,
	}
	s.callbackContext = CallbackContext{
		Server:       s,
		ConnectionId: protoOptions.ConnectionId,
	}
	protoConfig := protocol.ProtocolConfig{
		Name:                ProtocolName,
		ProtocolId:          protocolId,
		Muxer:               protoOptions.Muxer,
		Logger:              protoOptions.Logger,
		ErrorChan:           protoOptions.ErrorChan,
		Mode:                protoOptions.Mode,
		Role:                protocol.ProtocolRoleServer,
		MessageHandlerFunc:  s.messageHandler,
		MessageFromCborFunc: msgFromCborFunc,
		StateMap:            StateMap,
		StateContext:        stateContext,
		InitialState:        stateIdle,
	}
	if cfg.RecvQueueSize > 0 {
		protoConfig.RecvQueueSize = cfg.RecvQueueSize
	}
	s.Protocol = protocol.New(protoConfig)
	return s
}

// AwaitReply tells the client that no new block is available yet and that
// the server will reply to the outstanding RequestNext as soon as one is
func (s *Server) AwaitReply() error {
	msg := NewMsgAwaitReply()
	return s.SendMessage(msg)
}

// RollForwardNtC delivers a full block to a node-to-client peer
func (s *Server) RollForwardNtC(blockType uint, blockCbor []byte, tip Tip) error {
	msg := NewMsgRollForwardNtC(blockType, blockCbor, tip)
	return s.SendMessage(msg)
}

// RollForwardNtN delivers a block header to a node-to-node peer
func (s *Server) RollForwardNtN(era uint, byronType uint, headerCbor []byte, tip Tip) error {
	msg := NewMsgRollForwardNtN(era, byronType, headerCbor, tip)
	return s.SendMessage(msg)
}

// RollBackward rolls the peer's reader back to an earlier point
func (s *Server) RollBackward(point Point, tip Tip) error {
	msg := NewMsgRollBackward(point, tip)
	return s.SendMessage(msg)
}

// IntersectFound reports the chosen intersection point to the peer
func (s *Server) IntersectFound(point Point, tip Tip) error {
	msg := NewMsgIntersectFound(point, tip)
	return s.SendMessage(msg)
}

// IntersectNotFound reports that none of the requested points intersect
// the server's chain
func (s *Server) IntersectNotFound(tip Tip) error {
	msg := NewMsgIntersectNotFound(tip)
	return s.SendMessage(msg)
}

func (s *Server) messageHandler(msg protocol.Message) error {
	var err error
	switch msg.Type() {
	case MessageTypeRequestNext:
		err = s.handleRequestNext()
	case MessageTypeFindIntersect:
		err = s.handleFindIntersect(msg)
	case MessageTypeDone:
		err = s.handleDone()
	default:
		err = fmt.Errorf(
			"%s: received unexpected message type %d",
			ProtocolName,
			msg.Type(),
		)
	}
	return err
}

// handleRequestNext invokes the configured RequestNextFunc callback, which
// is responsible for eventually calling RollForward/RollBackward/AwaitReply
// to answer the outstanding request
func (s *Server) handleRequestNext() error {
	if s.config == nil || s.config.RequestNextFunc == nil {
		return errors.New(
			"received chain-sync RequestNext message but no callback function is defined",
		)
	}
	return s.config.RequestNextFunc(s.callbackContext)
}

func (s *Server) handleFindIntersect(msgGeneric protocol.Message) error {
	if s.config == nil || s.config.FindIntersectFunc == nil {
		return errors.New(
			"received chain-sync FindIntersect message but no callback function is defined",
		)
	}
	msg := msgGeneric.(*MsgFindIntersect)
	point, tip, err := s.config.FindIntersectFunc(s.callbackContext, msg.Points)
	if err != nil {
		if errors.Is(err, ErrIntersectNotFound) {
			return s.IntersectNotFound(tip)
		}
		return err
	}
	return s.IntersectFound(point, tip)
}

func (s *Server) handleDone() error {
	return nil
}
