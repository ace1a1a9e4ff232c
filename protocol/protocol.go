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

// Package protocol implements the shared mini-protocol state machine engine
// used by every Ouroboros mini-protocol (handshake, chain-sync, block-fetch,
// keep-alive, ...). Each mini-protocol package builds a client and/or server
// on top of a Protocol instance, supplying its own StateMap, message codec,
// and handler function.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dt-chain/ouroboros-core/cbor"
	"github.com/dt-chain/ouroboros-core/connection"
	"github.com/dt-chain/ouroboros-core/muxer"
)

// ProtocolMode indicates whether a Protocol instance is running over a
// node-to-node or node-to-client connection. Chain-sync selects its
// node-to-client protocol id and message forms from it, and the version
// negotiation tables carry both number spaces.
type ProtocolMode uint8

const (
	ProtocolModeNodeToNode ProtocolMode = iota
	ProtocolModeNodeToClient
)

// ProtocolRole indicates which side of a mini-protocol a Protocol instance
// implements. It determines which Agency value permits this side to send,
// and whether outgoing segments carry the muxer's response flag.
type ProtocolRole uint8

const (
	ProtocolRoleClient ProtocolRole = iota
	ProtocolRoleServer
)

// MessageHandlerFunc processes a single decoded inbound message.
type MessageHandlerFunc func(Message) error

// MessageFromCborFunc decodes a message of the given type from raw CBOR.
type MessageFromCborFunc func(msgType uint, data []byte) (Message, error)

// ProtocolOptions carries the connection-scoped configuration shared by
// every mini-protocol running over a single connection. A ouroboroscore
// connection builds one of these per mini-protocol it activates.
type ProtocolOptions struct {
	Muxer        *muxer.Muxer
	Logger       *slog.Logger
	ErrorChan    chan error
	Mode         ProtocolMode
	ConnectionId connection.ConnectionId
}

// ProtocolConfig configures a single Protocol instance.
type ProtocolConfig struct {
	Name                string
	ProtocolId          uint16
	Muxer               *muxer.Muxer
	Logger              *slog.Logger
	ErrorChan           chan error
	Mode                ProtocolMode
	Role                ProtocolRole
	MessageHandlerFunc  MessageHandlerFunc
	MessageFromCborFunc MessageFromCborFunc
	StateMap            StateMap
	// StateContext is passed to StateTransitionMatchFunc calls. Mini-protocols
	// with transitions that depend on more than the raw message type (chain-sync
	// pipelining, for example) supply their own context value here.
	StateContext any
	InitialState State
	// RecvQueueSize caps the number of fully decoded messages waiting to be
	// handled before a protocol violation is raised. Zero means unbounded.
	RecvQueueSize int
}

// Protocol implements the generic mini-protocol engine: it drives a
// StateMap-defined state machine over a pair of muxer-provided channels,
// encoding outbound messages and decoding inbound ones.
type Protocol struct {
	config       ProtocolConfig
	muxerSend    chan *muxer.Segment
	muxerRecv    chan *muxer.Segment
	doneChan     chan struct{}
	closeOnce    sync.Once
	stateMutex   sync.Mutex
	currentState State
	timer        *time.Timer
	recvQueued   int
	logger       *slog.Logger
}

// New creates a Protocol instance from the given configuration. The
// returned Protocol registers itself with config.Muxer immediately and can
// send at once; receiving does not begin until the mini-protocol's
// client/server wrapper calls Start().
func New(config ProtocolConfig) *Protocol {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	muxerRole := muxer.ProtocolRoleInitiator
	if config.Role == ProtocolRoleServer {
		muxerRole = muxer.ProtocolRoleResponder
	}
	sendChan, recvChan, _ := config.Muxer.RegisterProtocol(config.ProtocolId, muxerRole)
	p := &Protocol{
		config:       config,
		muxerSend:    sendChan,
		muxerRecv:    recvChan,
		doneChan:     make(chan struct{}),
		currentState: config.InitialState,
		logger:       logger,
	}
	return p
}

// Start begins the receive loop for this Protocol instance. It is safe to
// call at most once per instance; mini-protocol wrappers guard repeated
// calls with their own lifecycle state.
func (p *Protocol) Start() {
	p.armTimeout()
	go p.recvLoop()
}

// Stop tears down the Protocol instance, closing its done channel. It is
// idempotent.
func (p *Protocol) Stop() {
	p.closeOnce.Do(func() {
		p.stopTimer()
		close(p.doneChan)
	})
}

// DoneChan returns a channel that is closed when the Protocol instance shuts
// down, whether due to Stop(), a protocol violation, or reaching a state
// with AgencyNone.
func (p *Protocol) DoneChan() <-chan struct{} {
	return p.doneChan
}

// IsDone reports whether the protocol instance has finished: either its done
// channel has been closed, or the state machine has reached a state with
// AgencyNone (no further messages are possible in either direction).
func (p *Protocol) IsDone() bool {
	select {
	case <-p.doneChan:
		return true
	default:
	}
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	entry, ok := p.config.StateMap[p.currentState]
	return ok && entry.Agency == AgencyNone
}

// isInTerminalOrIdleState reports whether the protocol is done, or sitting
// in its initial state having exchanged no messages yet.
func (p *Protocol) isInTerminalOrIdleState() bool {
	if p.IsDone() {
		return true
	}
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	return p.currentState == p.config.InitialState
}

// Mode returns the node-to-node/node-to-client mode this instance was
// configured for.
func (p *Protocol) Mode() ProtocolMode {
	return p.config.Mode
}

// Logger returns the structured logger for this Protocol instance. It is
// never nil.
func (p *Protocol) Logger() *slog.Logger {
	return p.logger
}

// SendError delivers a fatal error to the connection's error channel and
// stops the protocol instance.
func (p *Protocol) SendError(err error) {
	select {
	case <-p.doneChan:
		return
	default:
	}
	if p.config.ErrorChan != nil {
		select {
		case p.config.ErrorChan <- err:
		case <-p.doneChan:
		}
	}
	p.Stop()
}

// WaitSendQueueDrained blocks until the outbound muxer queue for this
// mini-protocol is empty or the timeout elapses. It returns an error on
// timeout so callers (typically a Stop() implementation flushing a final
// Done message) can decide whether to proceed regardless.
func (p *Protocol) WaitSendQueueDrained(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for len(p.muxerSend) > 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: timed out waiting for send queue to drain", p.config.Name)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// expectedAgency returns the Agency value that permits this Protocol
// instance's role to send.
func (p *Protocol) expectedAgency() Agency {
	if p.config.Role == ProtocolRoleServer {
		return AgencyServer
	}
	return AgencyClient
}

// SendMessage encodes and sends a single outbound message, applying the
// current state's outbound transition (if any) to advance the state
// machine. It is a protocol violation to send while the current state's
// agency does not belong to this instance's role.
func (p *Protocol) SendMessage(msg Message) error {
	p.stateMutex.Lock()
	entry, ok := p.config.StateMap[p.currentState]
	if !ok {
		p.stateMutex.Unlock()
		return fmt.Errorf("%s: unknown state %s", p.config.Name, p.currentState)
	}
	if entry.Agency != p.expectedAgency() {
		p.stateMutex.Unlock()
		return fmt.Errorf(
			"%s: cannot send message type %d while in state %s",
			p.config.Name,
			msg.Type(),
			p.currentState,
		)
	}
	data, err := cbor.Encode(msg)
	if err != nil {
		p.stateMutex.Unlock()
		return err
	}
	nextState, transitionErr := p.applyOutboundTransition(entry, msg)
	if transitionErr != nil {
		p.stateMutex.Unlock()
		return transitionErr
	}
	p.currentState = nextState
	p.armTimeout()
	p.stateMutex.Unlock()

	segment := muxer.NewSegment(p.config.ProtocolId, data, p.config.Role == ProtocolRoleServer)
	select {
	case p.muxerSend <- segment:
	case <-p.doneChan:
		return ErrProtocolShuttingDown
	}
	return nil
}

func (p *Protocol) applyOutboundTransition(entry StateMapEntry, msg Message) (State, error) {
	for _, transition := range entry.Transitions {
		if transition.MsgType != msg.Type() {
			continue
		}
		if transition.MatchFunc != nil && !transition.MatchFunc(p.config.StateContext, msg) {
			continue
		}
		return transition.NewState, nil
	}
	return State{}, fmt.Errorf(
		"%s: no transition defined for message type %d from state %s",
		p.config.Name,
		msg.Type(),
		p.currentState,
	)
}

func (p *Protocol) recvLoop() {
	buf := bytes.NewBuffer(nil)
	for {
		select {
		case <-p.doneChan:
			return
		case segment, ok := <-p.muxerRecv:
			if !ok {
				p.Stop()
				return
			}
			buf.Write(segment.Payload)
		}
		for {
			consumed, msg, err := p.decodeOneMessage(buf.Bytes())
			if err != nil {
				if err == io.EOF {
					// Partial message, wait for more segments
					break
				}
				p.SendError(fmt.Errorf("%s: %w", p.config.Name, err))
				return
			}
			if msg == nil {
				break
			}
			if err := p.handleInbound(msg); err != nil {
				p.SendError(err)
				return
			}
			remaining := buf.Bytes()[consumed:]
			buf = bytes.NewBuffer(append([]byte(nil), remaining...))
			if buf.Len() == 0 {
				break
			}
		}
		if entry, ok := p.currentStateEntry(); ok && entry.PendingMessageByteLimit > 0 &&
			uint(buf.Len()) > entry.PendingMessageByteLimit {
			p.SendError(ErrProtocolViolationQueueExceeded)
			return
		}
	}
}

func (p *Protocol) currentStateEntry() (StateMapEntry, bool) {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	entry, ok := p.config.StateMap[p.currentState]
	return entry, ok
}

// decodeOneMessage attempts to decode a single message from the front of
// data. It returns io.EOF if data does not yet contain a complete message.
func (p *Protocol) decodeOneMessage(data []byte) (int, Message, error) {
	if len(data) == 0 {
		return 0, nil, io.EOF
	}
	var raw cbor.RawMessage
	consumed, err := cbor.Decode(data, &raw)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, err
	}
	msgType, err := cbor.DecodeIdFromList(raw)
	if err != nil {
		return 0, nil, ErrProtocolViolationInvalidMessage
	}
	msg, err := p.config.MessageFromCborFunc(uint(msgType), raw)
	if err != nil {
		return 0, nil, err
	}
	if msg == nil {
		return 0, nil, ErrProtocolViolationInvalidMessage
	}
	msg.SetCbor(raw)
	return consumed, msg, nil
}

func (p *Protocol) handleInbound(msg Message) error {
	p.stateMutex.Lock()
	entry, ok := p.config.StateMap[p.currentState]
	if !ok {
		p.stateMutex.Unlock()
		return fmt.Errorf("%s: unknown state %s", p.config.Name, p.currentState)
	}
	if entry.Agency == p.expectedAgency() {
		p.stateMutex.Unlock()
		return fmt.Errorf(
			"%s: received message type %d while we have agency in state %s",
			p.config.Name,
			msg.Type(),
			p.currentState,
		)
	}
	nextState, err := p.applyOutboundTransition(entry, msg)
	if err != nil {
		p.stateMutex.Unlock()
		return ErrProtocolViolationInvalidMessage
	}
	p.currentState = nextState
	p.armTimeout()
	if p.config.RecvQueueSize > 0 {
		p.recvQueued++
		if p.recvQueued > p.config.RecvQueueSize {
			p.stateMutex.Unlock()
			return ErrProtocolViolationQueueExceeded
		}
	}
	p.stateMutex.Unlock()

	err = p.config.MessageHandlerFunc(msg)

	p.stateMutex.Lock()
	if p.recvQueued > 0 {
		p.recvQueued--
	}
	p.stateMutex.Unlock()
	return err
}

// armTimeout resets the per-state timeout timer for the current state. It
// must be called with stateMutex held or immediately after releasing it
// from Start(), where no concurrent access is yet possible.
func (p *Protocol) armTimeout() {
	p.stopTimer()
	entry, ok := p.config.StateMap[p.currentState]
	if !ok || entry.Timeout <= 0 {
		return
	}
	state := p.currentState
	p.timer = time.AfterFunc(entry.Timeout, func() {
		p.SendError(fmt.Errorf(
			"%s: timed out waiting for message in state %s",
			p.config.Name,
			state,
		))
	})
}

func (p *Protocol) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
