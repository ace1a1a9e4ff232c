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

// Package ouroboroscore implements support for interacting with Cardano
// nodes using the Ouroboros network protocol.
//
// The Ouroboros network protocol consists of a muxer and multiple
// mini-protocols that provide various functions. A handshake and protocol
// versioning are used to ensure peer compatibility.
//
// This package is the main entry point into this library. The other
// packages can be used outside of this one, but it's not a primary design
// goal.
package ouroboroscore

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dt-chain/ouroboros-core/connection"
	"github.com/dt-chain/ouroboros-core/muxer"
	"github.com/dt-chain/ouroboros-core/protocol"
	"github.com/dt-chain/ouroboros-core/protocol/blockfetch"
	"github.com/dt-chain/ouroboros-core/protocol/chainsync"
	"github.com/dt-chain/ouroboros-core/protocol/handshake"
	"github.com/dt-chain/ouroboros-core/protocol/keepalive"
)

// Connection is a wrapper around a net.Conn object that handles
// communication using the Ouroboros network protocol over that connection
type Connection struct {
	Id                    connection.ConnectionId
	conn                  net.Conn
	networkMagic          uint32
	server                bool
	useNodeToNodeProto    bool
	muxer                 *muxer.Muxer
	errorChan             chan error
	protoErrorChan        chan error
	handshakeFinishedChan chan interface{}
	doneChan              chan interface{}
	waitGroup             sync.WaitGroup
	onceClose             sync.Once
	sendKeepAlives        bool
	delayMuxerStart       bool
	delayProtocolStart    bool
	fullDuplex            bool
	protocolVersion       uint16
	protocolVersionData   protocol.VersionData
	// Mini-protocols
	blockFetch       *blockfetch.BlockFetch
	blockFetchConfig *blockfetch.Config
	chainSync        *chainsync.ChainSync
	chainSyncConfig  *chainsync.Config
	handshake        *handshake.Handshake
	keepAlive        *keepalive.KeepAlive
	keepAliveConfig  *keepalive.Config
}

// New returns a new Connection object with the specified options. If a
// connection is provided, the handshake will be started. An error will be
// returned if the handshake fails
func New(options ...ConnectionOptionFunc) (*Connection, error) {
	c := &Connection{
		protoErrorChan:        make(chan error, 10),
		handshakeFinishedChan: make(chan interface{}),
		doneChan:              make(chan interface{}),
	}
	// Apply provided options functions
	for _, option := range options {
		option(c)
	}
	if c.errorChan == nil {
		c.errorChan = make(chan error, 10)
	}
	if c.conn != nil {
		if err := c.setupConnection(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Muxer returns the muxer object for the Ouroboros connection
func (c *Connection) Muxer() *muxer.Muxer {
	return c.muxer
}

// ErrorChan returns the channel for asynchronous errors
func (c *Connection) ErrorChan() chan error {
	return c.errorChan
}

// Dial establishes a connection using the specified protocol and address.
// These parameters are passed to [net.Dial]. The handshake will be started
// when a connection is established. An error will be returned if the
// connection fails, a connection was already established, or the handshake
// fails
func (c *Connection) Dial(proto string, address string) error {
	if c.conn != nil {
		return errors.New("a connection was already established")
	}
	conn, err := net.Dial(proto, address)
	if err != nil {
		return err
	}
	c.conn = conn
	return c.setupConnection()
}

// Close shuts down the Ouroboros connection
func (c *Connection) Close() error {
	c.onceClose.Do(func() {
		// Close doneChan to signify that we're shutting down
		close(c.doneChan)
		// Gracefully stop the muxer
		if c.muxer != nil {
			c.muxer.Stop()
		}
		// Wait for other goroutines to finish
		c.waitGroup.Wait()
		// Close channels
		close(c.errorChan)
		close(c.protoErrorChan)
		// We can only close a channel once, so we have to jump through a few hoops
		select {
		// The channel is either closed or has an item pending
		case _, ok := <-c.handshakeFinishedChan:
			if ok {
				close(c.handshakeFinishedChan)
			}
		// The channel is open and has no pending items
		default:
			close(c.handshakeFinishedChan)
		}
	})
	return nil
}

// BlockFetch returns the block-fetch protocol handler
func (c *Connection) BlockFetch() *blockfetch.BlockFetch {
	return c.blockFetch
}

// ChainSync returns the chain-sync protocol handler
func (c *Connection) ChainSync() *chainsync.ChainSync {
	return c.chainSync
}

// Handshake returns the handshake protocol handler
func (c *Connection) Handshake() *handshake.Handshake {
	return c.handshake
}

// KeepAlive returns the keep-alive protocol handler
func (c *Connection) KeepAlive() *keepalive.KeepAlive {
	return c.keepAlive
}

// ProtocolVersion returns the negotiated protocol version and its decoded
// parameters, as determined during the handshake
func (c *Connection) ProtocolVersion() (uint16, protocol.VersionData) {
	return c.protocolVersion, c.protocolVersionData
}

// setupConnection establishes the muxer, configures and starts the
// handshake process, and initializes the appropriate mini-protocols
func (c *Connection) setupConnection() error {
	c.Id = connection.NewConnectionId(c.conn.LocalAddr(), c.conn.RemoteAddr())
	c.muxer = muxer.New(c.conn)
	// Start Goroutine to pass along errors from the muxer
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		select {
		case <-c.doneChan:
			return
		case err, ok := <-c.muxer.ErrorChan():
			// Break out of goroutine if muxer's error channel is closed
			if !ok {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.errorChan <- io.EOF
			} else {
				c.errorChan <- fmt.Errorf("muxer error: %w", err)
			}
			// Close connection on muxer errors
			c.Close()
		}
	}()
	protoOptions := protocol.ProtocolOptions{
		Muxer:        c.muxer,
		ErrorChan:    c.protoErrorChan,
		ConnectionId: c.Id,
	}
	if c.useNodeToNodeProto {
		protoOptions.Mode = protocol.ProtocolModeNodeToNode
	} else {
		protoOptions.Mode = protocol.ProtocolModeNodeToClient
	}
	// Check network magic value
	if c.networkMagic == 0 {
		return fmt.Errorf("invalid network magic value provided: %d", c.networkMagic)
	}
	// Perform handshake
	versionMap := protocol.GetProtocolVersionMap(
		protoOptions.Mode,
		c.networkMagic,
		c.fullDuplex,
		false,
		false,
	)
	handshakeConfig := handshake.NewConfig(
		handshake.WithProtocolVersionMap(versionMap),
		handshake.WithFinishedFunc(func(ctx handshake.CallbackContext, version uint16, versionData protocol.VersionData) error {
			c.protocolVersion = version
			c.protocolVersionData = versionData
			close(c.handshakeFinishedChan)
			return nil
		}),
	)
	c.handshake = handshake.New(protoOptions, &handshakeConfig)
	if c.server {
		c.handshake.Server.Start()
	} else {
		c.handshake.Client.Start()
	}
	// Wait for handshake completion or error
	select {
	case <-c.doneChan:
		return io.EOF
	case err := <-c.protoErrorChan:
		return err
	case <-c.handshakeFinishedChan:
		// This is purposely empty, but we need this case to break out when this channel is closed
	}
	// Start Goroutine to pass along errors from the mini-protocols
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		select {
		case <-c.doneChan:
			return
		case err, ok := <-c.protoErrorChan:
			if !ok {
				return
			}
			c.errorChan <- fmt.Errorf("protocol error: %w", err)
			c.Close()
		}
	}()
	// Configure the relevant mini-protocols
	versionInfo := protocol.GetProtocolVersion(c.protocolVersion)
	c.chainSync = chainsync.New(protoOptions, c.chainSyncConfig)
	if c.useNodeToNodeProto {
		c.blockFetch = blockfetch.New(protoOptions, c.blockFetchConfig)
		if versionInfo.EnableKeepAliveProtocol {
			c.keepAlive = keepalive.New(protoOptions, c.keepAliveConfig)
			if !c.server && !c.delayProtocolStart && c.sendKeepAlives {
				c.keepAlive.Client.Start()
			}
		}
	}
	// Start muxer
	diffusionMode := muxer.DiffusionModeInitiator
	if c.fullDuplex {
		diffusionMode = muxer.DiffusionModeInitiatorAndResponder
	} else if c.server {
		diffusionMode = muxer.DiffusionModeResponder
	}
	c.muxer.SetDiffusionMode(diffusionMode)
	if !c.delayMuxerStart {
		c.muxer.Start()
	}
	return nil
}
