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

// Package blockfetch implements the Ouroboros block-fetch mini-protocol
package blockfetch

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dt-chain/ouroboros-core/connection"
	"github.com/dt-chain/ouroboros-core/protocol"
	"github.com/dt-chain/ouroboros-core/protocol/common"
)

// Protocol identifiers
const (
	ProtocolName        = "block-fetch"
	ProtocolId   uint16 = 3
)

// Default timeouts and limits
const (
	DefaultBatchStartTimeout = 5 * time.Second
	DefaultBlockTimeout      = 60 * time.Second
	DefaultRecvQueueSize     = 50
)

// ErrStopFetch can be returned by a BlockRawFunc to abandon an in-progress
// batch early. Since the wire protocol has no way to cancel a range once
// requested, the client stops itself rather than processing further blocks
// delivered for the batch.
var ErrStopFetch = errors.New("stop block fetch")

// Encodings recognized in a MsgCompressedBlocks payload.
const (
	EncodingRaw  uint64 = 0
	EncodingZstd uint64 = 1
)

// ErrUnsupportedEncoding is returned when a MsgCompressedBlocks message
// carries an encoding value other than EncodingRaw or EncodingZstd.
var ErrUnsupportedEncoding = errors.New("block-fetch: unsupported compressed-blocks encoding")

var (
	StateIdle      = protocol.NewState(1, "Idle")
	StateBusy      = protocol.NewState(2, "Busy")
	StateStreaming = protocol.NewState(3, "Streaming")
	StateDone      = protocol.NewState(4, "Done")
)

// StateMap defines the valid state transitions for the block-fetch protocol
var StateMap = protocol.StateMap{
	StateIdle: protocol.StateMapEntry{
		Agency: protocol.AgencyClient,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeRequestRange,
				NewState: StateBusy,
			},
			{
				MsgType:  MessageTypeClientDone,
				NewState: StateDone,
			},
		},
	},
	StateBusy: protocol.StateMapEntry{
		Agency: protocol.AgencyServer,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeStartBatch,
				NewState: StateStreaming,
			},
			{
				MsgType:  MessageTypeNoBlocks,
				NewState: StateIdle,
			},
		},
	},
	StateStreaming: protocol.StateMapEntry{
		Agency: protocol.AgencyServer,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeBlock,
				NewState: StateStreaming,
			},
			{
				MsgType:  MessageTypeCompressedBlocks,
				NewState: StateStreaming,
			},
			{
				MsgType:  MessageTypeBatchDone,
				NewState: StateIdle,
			},
		},
	},
	StateDone: protocol.StateMapEntry{
		Agency: protocol.AgencyNone,
	},
}

// BlockFetch is a wrapper object that holds the client and server instances
type BlockFetch struct {
	Client *Client
	Server *Server
}

// CallbackContext provides context information to block-fetch callbacks
type CallbackContext struct {
	ConnectionId connection.ConnectionId
	Client       *Client
	Server       *Server
}

// RequestRangeFunc handles a RequestRange message on the server side
type RequestRangeFunc func(CallbackContext, common.Point, common.Point) error

// BlockRawFunc handles a Block message on the client side without decoding
// the block contents, receiving only the era-specific type tag and the raw
// block CBOR carried on the wire
type BlockRawFunc func(CallbackContext, uint, []byte) error

// BatchDoneFunc is called when a requested range has been fully delivered
type BatchDoneFunc func(CallbackContext) error

// Config contains the callbacks and tunables for a block-fetch protocol instance
type Config struct {
	RequestRangeFunc  RequestRangeFunc
	BlockRawFunc      BlockRawFunc
	BatchDoneFunc     BatchDoneFunc
	BatchStartTimeout time.Duration
	BlockTimeout      time.Duration
	RecvQueueSize     int
}

// New returns a new BlockFetch object
func New(protoOptions protocol.ProtocolOptions, cfg *Config) *BlockFetch {
	b := &BlockFetch{
		Client: NewClient(protoOptions, cfg),
		Server: NewServer(protoOptions, cfg),
	}
	return b
}

// HandleConnectionError classifies a transport-level error from the
// underlying connection. A plain EOF indicates the peer closed the
// connection normally and is returned unchanged; other errors are wrapped
// with the protocol name for context.
func (b *BlockFetch) HandleConnectionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	return fmt.Errorf("%s: connection error: %w", ProtocolName, err)
}

// BlockFetchOptionFunc represents a function used to modify the block-fetch Config
type BlockFetchOptionFunc func(*Config)

// NewConfig returns a new Config with default values, applying any provided options
func NewConfig(options ...BlockFetchOptionFunc) Config {
	c := Config{
		BatchStartTimeout: DefaultBatchStartTimeout,
		BlockTimeout:      DefaultBlockTimeout,
		RecvQueueSize:     DefaultRecvQueueSize,
	}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithRequestRangeFunc sets the RequestRange callback in the Config
func WithRequestRangeFunc(requestRangeFunc RequestRangeFunc) BlockFetchOptionFunc {
	return func(c *Config) {
		c.RequestRangeFunc = requestRangeFunc
	}
}

// WithBlockRawFunc sets the raw-bytes Block callback in the Config
func WithBlockRawFunc(blockRawFunc BlockRawFunc) BlockFetchOptionFunc {
	return func(c *Config) {
		c.BlockRawFunc = blockRawFunc
	}
}

// WithBatchDoneFunc sets the BatchDone callback in the Config
func WithBatchDoneFunc(batchDoneFunc BatchDoneFunc) BlockFetchOptionFunc {
	return func(c *Config) {
		c.BatchDoneFunc = batchDoneFunc
	}
}

// WithBatchStartTimeout sets the timeout for receiving a StartBatch/NoBlocks response
func WithBatchStartTimeout(timeout time.Duration) BlockFetchOptionFunc {
	return func(c *Config) {
		c.BatchStartTimeout = timeout
	}
}

// WithBlockTimeout sets the timeout for receiving each block in a streaming batch
func WithBlockTimeout(timeout time.Duration) BlockFetchOptionFunc {
	return func(c *Config) {
		c.BlockTimeout = timeout
	}
}

// WithRecvQueueSize sets the receive queue size for the underlying protocol instance
func WithRecvQueueSize(size int) BlockFetchOptionFunc {
	return func(c *Config) {
		c.RecvQueueSize = size
	}
}
