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

// Package chainsync implements the Ouroboros chain-sync protocol
package chainsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dt-chain/ouroboros-core/connection"
	"github.com/dt-chain/ouroboros-core/protocol"
	"github.com/dt-chain/ouroboros-core/protocol/common"
)

// Protocol identifiers
const (
	ProtocolName         = "chain-sync"
	ProtocolIdNtN uint16 = 2
	ProtocolIdNtC uint16 = 5
)

// Limits on pipelining and queueing, and the timeouts associated with each
// state. These bound how much a peer can have outstanding against us before
// we consider it a protocol violation.
const (
	MaxPipelineLimit     = 100
	MaxRecvQueueSize     = 100
	DefaultPipelineLimit = 50
	DefaultRecvQueueSize = 50

	MaxPendingMessageBytes = 102400

	IdleTimeout      = 5 * time.Minute
	CanAwaitTimeout  = 5 * time.Minute
	IntersectTimeout = 5 * time.Second
	MustReplyTimeout = 3 * time.Minute

	// DefaultPipelineDrainTimeout bounds how long RollBackward waits for a
	// configured Pipeline to finish processing blocks already submitted to
	// it before the rollback callback runs.
	DefaultPipelineDrainTimeout = 30 * time.Second
)

var (
	stateIdle      = protocol.NewState(1, "Idle")
	stateCanAwait  = protocol.NewState(2, "CanAwait")
	stateMustReply = protocol.NewState(3, "MustReply")
	stateIntersect = protocol.NewState(4, "Intersect")
	stateDone      = protocol.NewState(5, "Done")
)

// ChainSync protocol state machine
var StateMap = protocol.StateMap{
	stateIdle: protocol.StateMapEntry{
		Agency:                  protocol.AgencyClient,
		Timeout:                 IdleTimeout,
		PendingMessageByteLimit: MaxPendingMessageBytes,
		Transitions: []protocol.StateTransition{
			{
				MsgType:   MessageTypeRequestNext,
				NewState:  stateCanAwait,
				MatchFunc: IncrementPipelineCount,
			},
			{
				MsgType:  MessageTypeFindIntersect,
				NewState: stateIntersect,
			},
			{
				MsgType:  MessageTypeDone,
				NewState: stateDone,
			},
		},
	},
	stateCanAwait: protocol.StateMapEntry{
		Agency:                  protocol.AgencyServer,
		Timeout:                 CanAwaitTimeout,
		PendingMessageByteLimit: MaxPendingMessageBytes,
		Transitions: []protocol.StateTransition{
			{
				MsgType:   MessageTypeRequestNext,
				NewState:  stateCanAwait,
				MatchFunc: IncrementPipelineCount,
			},
			{
				MsgType:  MessageTypeAwaitReply,
				NewState: stateMustReply,
			},
			{
				MsgType:   MessageTypeRollForward,
				NewState:  stateIdle,
				MatchFunc: DecrementPipelineCountAndIsEmpty,
			},
			{
				MsgType:   MessageTypeRollForward,
				NewState:  stateCanAwait,
				MatchFunc: DecrementPipelineCountAndIsNotEmpty,
			},
			{
				MsgType:   MessageTypeRollBackward,
				NewState:  stateIdle,
				MatchFunc: DecrementPipelineCountAndIsEmpty,
			},
			{
				MsgType:   MessageTypeRollBackward,
				NewState:  stateCanAwait,
				MatchFunc: DecrementPipelineCountAndIsNotEmpty,
			},
		},
	},
	stateIntersect: protocol.StateMapEntry{
		Agency:                  protocol.AgencyServer,
		Timeout:                 IntersectTimeout,
		PendingMessageByteLimit: MaxPendingMessageBytes,
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeIntersectFound,
				NewState: stateIdle,
			},
			{
				MsgType:  MessageTypeIntersectNotFound,
				NewState: stateIdle,
			},
		},
	},
	stateMustReply: protocol.StateMapEntry{
		Agency:                  protocol.AgencyServer,
		Timeout:                 MustReplyTimeout,
		PendingMessageByteLimit: MaxPendingMessageBytes,
		Transitions: []protocol.StateTransition{
			{
				MsgType:   MessageTypeRollForward,
				NewState:  stateIdle,
				MatchFunc: DecrementPipelineCountAndIsEmpty,
			},
			{
				MsgType:   MessageTypeRollForward,
				NewState:  stateCanAwait,
				MatchFunc: DecrementPipelineCountAndIsNotEmpty,
			},
			{
				MsgType:   MessageTypeRollBackward,
				NewState:  stateIdle,
				MatchFunc: DecrementPipelineCountAndIsEmpty,
			},
			{
				MsgType:   MessageTypeRollBackward,
				NewState:  stateCanAwait,
				MatchFunc: DecrementPipelineCountAndIsNotEmpty,
			},
		},
	},
	stateDone: protocol.StateMapEntry{
		Agency: protocol.AgencyNone,
	},
}

type StateContext struct {
	mu            sync.Mutex
	pipelineCount int
}

var IncrementPipelineCount = func(context interface{}, msg protocol.Message) bool {
	s := context.(*StateContext)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pipelineCount++
	return true
}

var DecrementPipelineCountAndIsEmpty = func(context interface{}, msg protocol.Message) bool {
	s := context.(*StateContext)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipelineCount == 1 {
		s.pipelineCount--
		return true
	}
	return false
}

var DecrementPipelineCountAndIsNotEmpty = func(context interface{}, msg protocol.Message) bool {
	s := context.(*StateContext)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipelineCount > 1 {
		s.pipelineCount--
		return true
	}
	return false
}

var PipelineIsEmtpy = func(context interface{}, msg protocol.Message) bool {
	s := context.(*StateContext)
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pipelineCount == 0
}

var PipelineIsNotEmpty = func(context interface{}, msg protocol.Message) bool {
	s := context.(*StateContext)
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pipelineCount > 0
}

// ChainSync is a wrapper object that holds the client and server instances
type ChainSync struct {
	Client *Client
	Server *Server
}

// Config is used to configure the ChainSync protocol instance
type Config struct {
	RollBackwardFunc   RollBackwardFunc
	RollForwardRawFunc RollForwardRawFunc
	FindIntersectFunc  FindIntersectFunc
	RequestNextFunc    RequestNextFunc
	AwaitReplyFunc     AwaitReplyFunc
	IntersectTimeout   time.Duration
	BlockTimeout       time.Duration
	PipelineLimit      int
	RecvQueueSize      int

	// Pipeline, when set, receives node-to-client blocks via Submit instead
	// of having them passed directly to a callback. RollBackward waits for
	// WaitForDrain before invoking RollBackwardFunc so that a rollback is
	// never observed while blocks preceding it are still being applied.
	Pipeline             Pipeline
	PipelineDrainTimeout time.Duration

	// SkipBlockValidation is carried in the config but not read by the
	// chain-sync client: blocks reach a configured Pipeline without body
	// hash verification whatever its value.
	SkipBlockValidation bool
}

// Pipeline accepts raw node-to-client blocks for asynchronous processing,
// decoupling block receipt on the wire from ledger application.
type Pipeline interface {
	// Submit queues a raw block for processing. It may block to apply
	// backpressure.
	Submit(ctx context.Context, blockType uint, blockCbor []byte, tip Tip) error
	// WaitForDrain blocks until all previously submitted blocks have been
	// processed, or ctx is done.
	WaitForDrain(ctx context.Context) error
}

// Callback context
type CallbackContext struct {
	ConnectionId connection.ConnectionId
	Client       *Client
	Server       *Server
}

// Callback function types
type RollBackwardFunc func(CallbackContext, common.Point, Tip) error
type RollForwardRawFunc func(CallbackContext, uint, []byte, Tip) error
type FindIntersectFunc func(CallbackContext, []common.Point) (common.Point, Tip, error)
type RequestNextFunc func(CallbackContext) error

// AwaitReplyFunc is called on the client side when the server signals that
// it has no block available yet and will reply to the outstanding request
// once one arrives. It is informational; a nil func is a no-op.
type AwaitReplyFunc func(CallbackContext)

// New returns a new ChainSync object
func New(protoOptions protocol.ProtocolOptions, cfg *Config) *ChainSync {
	stateContext := &StateContext{}

	c := &ChainSync{
		Client: NewClient(stateContext, protoOptions, cfg),
		Server: NewServer(stateContext, protoOptions, cfg),
	}
	return c
}

// ChainSyncOptionFunc represents a function used to modify the ChainSync protocol config
type ChainSyncOptionFunc func(*Config)

// NewConfig returns a new ChainSync config object with the provided options
func NewConfig(options ...ChainSyncOptionFunc) Config {
	c := Config{
		PipelineLimit:    DefaultPipelineLimit,
		RecvQueueSize:    DefaultRecvQueueSize,
		IntersectTimeout: 5 * time.Second,
		// We should really use something more useful like 30-60s, but we've seen 55s between blocks
		// in the preview network
		// https://preview.cexplorer.io/block/cb08a386363a946d2606e912fcd81ffed2bf326cdbc4058297b14471af4f67e9
		// https://preview.cexplorer.io/block/86806dca4ba735b233cbeee6da713bdece36fd41fb5c568f9ef5a3f5cbf572a3
		BlockTimeout: 180 * time.Second,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	if c.PipelineLimit < 0 || c.PipelineLimit > MaxPipelineLimit {
		panic(fmt.Sprintf(
			"chainsync: pipeline limit %d out of range [0, %d]",
			c.PipelineLimit,
			MaxPipelineLimit,
		))
	}
	if c.RecvQueueSize < 0 || c.RecvQueueSize > MaxRecvQueueSize {
		panic(fmt.Sprintf(
			"chainsync: recv queue size %d out of range [0, %d]",
			c.RecvQueueSize,
			MaxRecvQueueSize,
		))
	}
	return c
}

// WithRollBackwardFunc specifies the RollBackward callback function
func WithRollBackwardFunc(
	rollBackwardFunc RollBackwardFunc,
) ChainSyncOptionFunc {
	return func(c *Config) {
		c.RollBackwardFunc = rollBackwardFunc
	}
}

// WithRollForwardRawFunc specifies the RollForward callback function,
// invoked with the raw block/header CBOR rather than a decoded object
func WithRollForwardRawFunc(rollForwardRawFunc RollForwardRawFunc) ChainSyncOptionFunc {
	return func(c *Config) {
		c.RollForwardRawFunc = rollForwardRawFunc
	}
}

// WithPipeline specifies a Pipeline to receive node-to-client blocks
// asynchronously instead of via RollForwardRawFunc
func WithPipeline(pipeline Pipeline) ChainSyncOptionFunc {
	return func(c *Config) {
		c.Pipeline = pipeline
	}
}

// WithPipelineDrainTimeout specifies how long RollBackward waits for a
// configured Pipeline to drain before invoking RollBackwardFunc
func WithPipelineDrainTimeout(timeout time.Duration) ChainSyncOptionFunc {
	return func(c *Config) {
		c.PipelineDrainTimeout = timeout
	}
}

// WithSkipBlockValidation sets Config.SkipBlockValidation; the chain-sync
// client performs no body hash verification either way
func WithSkipBlockValidation(skip bool) ChainSyncOptionFunc {
	return func(c *Config) {
		c.SkipBlockValidation = skip
	}
}

// WithFindIntersectFunc specifies the FindIntersect callback function
func WithFindIntersectFunc(findIntersectFunc FindIntersectFunc) ChainSyncOptionFunc {
	return func(c *Config) {
		c.FindIntersectFunc = findIntersectFunc
	}
}

// WithRequestNextFunc specifies the RequestNext callback function
func WithRequestNextFunc(requestNextFunc RequestNextFunc) ChainSyncOptionFunc {
	return func(c *Config) {
		c.RequestNextFunc = requestNextFunc
	}
}

// WithAwaitReplyFunc specifies the AwaitReply callback function
func WithAwaitReplyFunc(awaitReplyFunc AwaitReplyFunc) ChainSyncOptionFunc {
	return func(c *Config) {
		c.AwaitReplyFunc = awaitReplyFunc
	}
}

// WithIntersectTimeout specifies the timeout for intersect operations
func WithIntersectTimeout(timeout time.Duration) ChainSyncOptionFunc {
	return func(c *Config) {
		c.IntersectTimeout = timeout
	}
}

// WithBlockTimeout specifies the timeout for block fetch operations
func WithBlockTimeout(timeout time.Duration) ChainSyncOptionFunc {
	return func(c *Config) {
		c.BlockTimeout = timeout
	}
}

// WithPipelineLimit specifies the maximum number of block requests to pipeline
func WithPipelineLimit(limit int) ChainSyncOptionFunc {
	return func(c *Config) {
		c.PipelineLimit = limit
	}
}

// WithRecvQueueSize specifies the maximum number of decoded messages that may
// be queued awaiting a handler before a protocol violation is raised
func WithRecvQueueSize(size int) ChainSyncOptionFunc {
	return func(c *Config) {
		c.RecvQueueSize = size
	}
}
