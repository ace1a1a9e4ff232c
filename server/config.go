// Copyright 2026 Blink Labs Software
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

package server

import (
	"log/slog"

	"github.com/dt-chain/ouroboros-core/protocol/blockfetch"
	"github.com/dt-chain/ouroboros-core/protocol/chainsync"
)

// Config holds the parameters for a Server.
type Config struct {
	// ListenAddr is the address passed to net.Listen, e.g. "0.0.0.0:3001".
	ListenAddr string
	// NetworkMagic identifies the network peers must negotiate against.
	NetworkMagic uint32
	// Store answers the chain-sync and block-fetch handlers.
	Store ChainStore
	// Compress enables compressed block-fetch batches on connections that
	// negotiate protocol version 15 or later. Connections on earlier
	// versions always receive raw blocks regardless of this setting. The
	// node-to-node version table ends at version 13, so no connection
	// negotiates 15 and every batch is sent as raw blocks.
	Compress bool
	// Logger receives connection lifecycle and error events. Defaults to
	// slog.Default() if nil.
	Logger *slog.Logger

	// ChainSyncTemplate, if set, is cloned into every accepted connection's
	// chain-sync config before the connection's own callbacks are
	// attached, so timeouts and limits can be tuned without every
	// connection sharing (and racing on) the same Config value.
	ChainSyncTemplate *chainsync.Config
	// BlockFetchTemplate is the block-fetch analog of ChainSyncTemplate.
	BlockFetchTemplate *blockfetch.Config
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
