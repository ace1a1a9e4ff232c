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

// Package muxer implements the segment-level multiplexer that interleaves
// the mini-protocols sharing a single Ouroboros connection onto one
// underlying net.Conn.
package muxer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// Protocol IDs reserved by the muxer itself
const (
	ProtocolUnknown   uint16 = 0xabcd
	ProtocolHandshake uint16 = 0
)

// ProtocolRole identifies which side of a mini-protocol a registration
// belongs to: the initiator sends requests and receives responses, the
// responder receives requests and sends responses.
type ProtocolRole uint8

const (
	ProtocolRoleInitiator ProtocolRole = iota
	ProtocolRoleResponder
)

// DiffusionMode constrains which segment directions a Muxer will accept on
// its read loop. A connection configured as initiator-only never expects to
// field a request; one configured as responder-only never expects a
// response.
type DiffusionMode uint8

const (
	DiffusionModeInitiator DiffusionMode = iota
	DiffusionModeResponder
	DiffusionModeInitiatorAndResponder
)

// ConnectionClosedError wraps an underlying read/write error that the muxer
// attributes to the peer closing the connection.
type ConnectionClosedError struct {
	Err error
}

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("connection closed: %s", e.Err)
}

func (e *ConnectionClosedError) Unwrap() error {
	return e.Err
}

type protocolKey struct {
	id   uint16
	role ProtocolRole
}

// Muxer interleaves segments from any number of registered mini-protocols
// onto a single net.Conn, and demultiplexes inbound segments back to the
// registration matching their protocol ID and direction.
type Muxer struct {
	conn          net.Conn
	sendMutex     sync.Mutex
	stateMutex    sync.RWMutex
	startChan     chan bool
	doneChan      chan struct{}
	errorChan     chan error
	stopOnce      sync.Once
	diffusionMode DiffusionMode

	protocolSenders   map[protocolKey]chan *Segment
	protocolReceivers map[protocolKey]chan *Segment
}

// New creates a Muxer wrapping conn and immediately starts its read loop.
// Outbound segments are written as soon as a protocol is registered; Start
// only gates the read loop.
func New(conn net.Conn) *Muxer {
	m := &Muxer{
		conn:              conn,
		startChan:         make(chan bool, 1),
		doneChan:          make(chan struct{}),
		errorChan:         make(chan error, 10),
		diffusionMode:     DiffusionModeInitiatorAndResponder,
		protocolSenders:   make(map[protocolKey]chan *Segment),
		protocolReceivers: make(map[protocolKey]chan *Segment),
	}
	go m.readLoop()
	return m
}

// ErrorChan returns the channel on which asynchronous muxer errors are
// delivered. It is closed when the muxer stops.
func (m *Muxer) ErrorChan() chan error {
	return m.errorChan
}

// Start allows the read loop to proceed past the first received segment.
func (m *Muxer) Start() {
	select {
	case m.startChan <- true:
	default:
	}
}

// SetDiffusionMode controls which segment directions this muxer accepts.
func (m *Muxer) SetDiffusionMode(mode DiffusionMode) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.diffusionMode = mode
}

func (m *Muxer) diffusionModeValue() DiffusionMode {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.diffusionMode
}

// Stop shuts down the muxer, closing all registered receive channels and the
// error channel. It is idempotent and safe to call from multiple goroutines.
func (m *Muxer) Stop() {
	m.stopOnce.Do(func() {
		close(m.doneChan)
		m.stateMutex.Lock()
		for _, recvChan := range m.protocolReceivers {
			close(recvChan)
		}
		m.stateMutex.Unlock()
		close(m.errorChan)
	})
}

func (m *Muxer) sendError(err error) {
	select {
	case <-m.doneChan:
		return
	default:
	}
	select {
	case m.errorChan <- err:
	default:
	}
	m.Stop()
}

// RegisterProtocol registers a mini-protocol instance for the given protocol
// ID and role, returning its dedicated send/receive channels and the muxer's
// shutdown channel. The same protocol ID may be registered once per role
// (for example, a NtN peer acting as initiator for chain-sync and responder
// for block-fetch on protocol IDs that happen to collide in test fixtures).
// Returns three nils if the muxer has already been stopped.
func (m *Muxer) RegisterProtocol(
	protocolId uint16,
	role ProtocolRole,
) (chan *Segment, chan *Segment, chan struct{}) {
	select {
	case <-m.doneChan:
		return nil, nil, nil
	default:
	}
	key := protocolKey{id: protocolId, role: role}
	senderChan := make(chan *Segment, 16)
	receiverChan := make(chan *Segment, 16)
	m.stateMutex.Lock()
	m.protocolSenders[key] = senderChan
	m.protocolReceivers[key] = receiverChan
	m.stateMutex.Unlock()
	go m.sendLoop(senderChan)
	return senderChan, receiverChan, m.doneChan
}

// UnregisterProtocol removes a previous registration, closing its receive
// channel. The sender goroutine for the registration exits on its own once
// the muxer stops.
func (m *Muxer) UnregisterProtocol(protocolId uint16, role ProtocolRole) {
	key := protocolKey{id: protocolId, role: role}
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	if recvChan, ok := m.protocolReceivers[key]; ok {
		close(recvChan)
		delete(m.protocolReceivers, key)
	}
	delete(m.protocolSenders, key)
}

func (m *Muxer) sendLoop(senderChan chan *Segment) {
	for {
		select {
		case <-m.doneChan:
			return
		case segment, ok := <-senderChan:
			if !ok {
				return
			}
			if err := m.Send(segment); err != nil {
				m.sendError(err)
				return
			}
		}
	}
}

// Send writes a single segment to the underlying connection. Concurrent
// calls are serialized so segments from different mini-protocols are never
// interleaved mid-write.
func (m *Muxer) Send(segment *Segment) error {
	m.sendMutex.Lock()
	defer m.sendMutex.Unlock()
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.BigEndian, segment.SegmentHeader); err != nil {
		return err
	}
	buf.Write(segment.Payload)
	_, err := m.conn.Write(buf.Bytes())
	return err
}

func (m *Muxer) readLoop() {
	started := false
	for {
		select {
		case <-m.doneChan:
			return
		default:
		}
		var header SegmentHeader
		if err := binary.Read(m.conn, binary.BigEndian, &header); err != nil {
			m.sendError(&ConnectionClosedError{Err: err})
			return
		}
		if header.PayloadLength == 0 {
			m.sendError(fmt.Errorf("zero-byte segment payload"))
			return
		}
		payload := make([]byte, header.PayloadLength)
		if _, err := io.ReadFull(m.conn, payload); err != nil {
			m.sendError(&ConnectionClosedError{Err: err})
			return
		}
		segment := &Segment{SegmentHeader: header, Payload: payload}
		if err := m.routeSegment(segment); err != nil {
			m.sendError(err)
			return
		}
		// Don't read past the first segment until the muxer is started, so we
		// don't race the handshake with later mini-protocol traffic.
		if !started {
			select {
			case <-m.doneChan:
				return
			case <-m.startChan:
				started = true
			}
		}
	}
}

func (m *Muxer) routeSegment(segment *Segment) error {
	isResponse := segment.IsResponse()
	switch m.diffusionModeValue() {
	case DiffusionModeInitiator:
		if !isResponse {
			return fmt.Errorf("received message from initiator when not configured as a responder")
		}
	case DiffusionModeResponder:
		if isResponse {
			return fmt.Errorf("received message from responder when not configured as an initiator")
		}
	}
	// A response is addressed to whichever registration initiated the
	// request; a request is addressed to whichever registration responds
	role := ProtocolRoleResponder
	if isResponse {
		role = ProtocolRoleInitiator
	}
	protocolId := segment.GetProtocolId()
	m.stateMutex.RLock()
	recvChan, ok := m.protocolReceivers[protocolKey{id: protocolId, role: role}]
	if !ok {
		recvChan, ok = m.protocolReceivers[protocolKey{id: ProtocolUnknown, role: role}]
	}
	m.stateMutex.RUnlock()
	if !ok {
		return fmt.Errorf("received message for unknown protocol ID %d", protocolId)
	}
	select {
	case recvChan <- segment:
	case <-m.doneChan:
	}
	return nil
}
