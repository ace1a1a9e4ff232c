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

package ouroboroscore

import (
	"net"

	"github.com/dt-chain/ouroboros-core/protocol/blockfetch"
	"github.com/dt-chain/ouroboros-core/protocol/chainsync"
	"github.com/dt-chain/ouroboros-core/protocol/keepalive"
)

// ConnectionOptionFunc is a type that represents functions that modify the
// Connection config
type ConnectionOptionFunc func(*Connection)

// WithConnection specifies an existing connection to use. If none is
// provided, Dial() can be used to create one later
func WithConnection(conn net.Conn) ConnectionOptionFunc {
	return func(c *Connection) {
		c.conn = conn
	}
}

// WithNetwork specifies the network
func WithNetwork(network Network) ConnectionOptionFunc {
	return func(c *Connection) {
		c.networkMagic = network.NetworkMagic
	}
}

// WithNetworkMagic specifies the network magic value
func WithNetworkMagic(networkMagic uint32) ConnectionOptionFunc {
	return func(c *Connection) {
		c.networkMagic = networkMagic
	}
}

// WithErrorChan specifies the error channel to use. If none is provided, one
// will be created
func WithErrorChan(errorChan chan error) ConnectionOptionFunc {
	return func(c *Connection) {
		c.errorChan = errorChan
	}
}

// WithServer specifies whether to act as a server
func WithServer(server bool) ConnectionOptionFunc {
	return func(c *Connection) {
		c.server = server
	}
}

// WithNodeToNode specifies whether to use the node-to-node protocol set. The
// default is to use node-to-client
func WithNodeToNode(nodeToNode bool) ConnectionOptionFunc {
	return func(c *Connection) {
		c.useNodeToNodeProto = nodeToNode
	}
}

// WithKeepAlive specifies whether to send keep-alives. This is disabled by
// default
func WithKeepAlive(keepAlive bool) ConnectionOptionFunc {
	return func(c *Connection) {
		c.sendKeepAlives = keepAlive
	}
}

// WithDelayMuxerStart specifies whether to delay the muxer start. This is
// useful if custom actions are needed before the muxer starts processing
// messages, generally when acting as a server
func WithDelayMuxerStart(delayMuxerStart bool) ConnectionOptionFunc {
	return func(c *Connection) {
		c.delayMuxerStart = delayMuxerStart
	}
}

// WithDelayProtocolStart specifies whether to delay the start of the
// relevant mini-protocol clients, beyond the handshake itself. This is
// useful when maintaining many connections and wanting to defer starting a
// protocol such as keep-alive until later
func WithDelayProtocolStart(delayProtocolStart bool) ConnectionOptionFunc {
	return func(c *Connection) {
		c.delayProtocolStart = delayProtocolStart
	}
}

// WithFullDuplex specifies whether to enable full-duplex mode when acting as
// a client
func WithFullDuplex(fullDuplex bool) ConnectionOptionFunc {
	return func(c *Connection) {
		c.fullDuplex = fullDuplex
	}
}

// WithBlockFetchConfig specifies the BlockFetch protocol config
func WithBlockFetchConfig(cfg blockfetch.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.blockFetchConfig = &cfg
	}
}

// WithChainSyncConfig specifies the ChainSync protocol config
func WithChainSyncConfig(cfg chainsync.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.chainSyncConfig = &cfg
	}
}

// WithKeepAliveConfig specifies the KeepAlive protocol config
func WithKeepAliveConfig(cfg keepalive.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.keepAliveConfig = &cfg
	}
}
