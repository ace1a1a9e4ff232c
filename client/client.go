// Copyright 2025 Blink Labs Software
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

// Package client implements the high-level node-to-node client driver:
// find_intersection, fetch_headers, and fetch_blocks, each expressed as a
// synchronous operation layered over the chain-sync and block-fetch
// mini-protocols. Only one operation runs at a time per Client; callers
// wanting concurrent fetches should Dial multiple connections.
package client

import (
	"errors"
	"fmt"
	"sync"

	ouroboros "github.com/dt-chain/ouroboros-core"
	"github.com/dt-chain/ouroboros-core/protocol/blockfetch"
	"github.com/dt-chain/ouroboros-core/protocol/chainsync"
)

// Address identifies a peer to dial, in "host:port" form suitable for
// [net.Dial] with the "tcp" network.
type Address string

// PeerSelectionFunc returns a set of candidate peer addresses. It is the
// seam through which peer discovery is injected; this package never
// hardcodes a peer list or discovery mechanism of its own.
type PeerSelectionFunc func() ([]Address, error)

// Client is a single node-to-node connection driven through the C5
// operations. It is not safe for concurrent use of its operation methods;
// they share the underlying chain-sync and block-fetch protocol clients.
type Client struct {
	conn *ouroboros.Connection

	opMutex        sync.Mutex
	startProtocols sync.Once

	headerCollectorMu sync.Mutex
	headerCollector   *headerCollector

	blockBatchMu sync.Mutex
	blockBatch   *blockBatch
	blockHandler BlockHandlerFunc
}

// baseOptions returns the connection options every Client requires: node-to-
// node mode and the callback wiring that routes chain-sync/block-fetch
// messages to whichever operation is currently outstanding on c.
func (c *Client) baseOptions() []ouroboros.ConnectionOptionFunc {
	return []ouroboros.ConnectionOptionFunc{
		ouroboros.WithNodeToNode(true),
		ouroboros.WithChainSyncConfig(chainsync.NewConfig(
			chainsync.WithRollForwardRawFunc(c.dispatchRollForward),
			chainsync.WithAwaitReplyFunc(c.dispatchAwaitReply),
		)),
		ouroboros.WithBlockFetchConfig(blockfetch.NewConfig(
			blockfetch.WithBlockRawFunc(c.dispatchBlock),
			blockfetch.WithBatchDoneFunc(c.dispatchBatchDone),
		)),
	}
}

// Dial establishes a node-to-node connection to addr and completes the
// handshake. Additional connection options are applied before dialing, with
// node-to-node mode and the chain-sync/block-fetch callback wiring this
// package needs always enabled.
func Dial(addr Address, opts ...ouroboros.ConnectionOptionFunc) (*Client, error) {
	c := &Client{}
	allOpts := append(c.baseOptions(), opts...)
	conn, err := ouroboros.New(allOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	if err := conn.Dial("tcp", string(addr)); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// DialAny tries each address returned by selectPeers in order, returning a
// Client for the first one that dials and handshakes successfully. This is
// the peer_selection seam: callers supply discovery, this package supplies
// nothing beyond a hardcoded-peer escape hatch (Dial with a single Address).
func DialAny(selectPeers PeerSelectionFunc, opts ...ouroboros.ConnectionOptionFunc) (*Client, error) {
	addrs, err := selectPeers()
	if err != nil {
		return nil, fmt.Errorf("peer selection failed: %w", err)
	}
	if len(addrs) == 0 {
		return nil, errors.New("peer selection returned no addresses")
	}
	var lastErr error
	for _, addr := range addrs {
		c, err := Dial(addr, opts...)
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to dial any candidate peer: %w", lastErr)
}

// ensureStarted starts the chain-sync and block-fetch protocol clients the
// first time an operation needs them. The mini-protocol clients exist as
// soon as the handshake completes but are not driven until Start is called.
func (c *Client) ensureStarted() error {
	var startErr error
	c.startProtocols.Do(func() {
		cs := c.chainSyncClient()
		bf := c.blockFetchClient()
		if cs == nil || bf == nil {
			startErr = errors.New("client: mini-protocols not initialized after handshake")
			return
		}
		cs.Start()
		bf.Start()
	})
	return startErr
}

// Close shuts down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Connection returns the underlying connection, for callers that need
// access below the C5 operations (e.g. KeepAlive).
func (c *Client) Connection() *ouroboros.Connection {
	return c.conn
}

func (c *Client) chainSyncClient() *chainsync.Client {
	cs := c.conn.ChainSync()
	if cs == nil {
		return nil
	}
	return cs.Client
}

func (c *Client) blockFetchClient() *blockfetch.Client {
	bf := c.conn.BlockFetch()
	if bf == nil {
		return nil
	}
	return bf.Client
}
