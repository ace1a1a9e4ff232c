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
	"sync"

	ouroboroscore "github.com/dt-chain/ouroboros-core"
	"github.com/dt-chain/ouroboros-core/protocol/blockfetch"
	"github.com/dt-chain/ouroboros-core/protocol/chainsync"
	"github.com/dt-chain/ouroboros-core/protocol/common"
	"github.com/klauspost/compress/zstd"
)

// session holds the per-connection state backing one accepted peer's
// chain-sync and block-fetch callbacks: its read cursor and a reference to
// the negotiated *ouroboroscore.Connection, set once the handshake
// completes.
type session struct {
	store        ChainStore
	compress     bool
	logger       *slog.Logger
	shutdown     <-chan struct{}
	genesisPoint common.Point

	mu     sync.Mutex
	cursor common.Point

	connMu sync.Mutex
	conn   *ouroboroscore.Connection
}

func newSession(store ChainStore, compress bool, logger *slog.Logger, shutdown <-chan struct{}, genesisPoint common.Point) *session {
	return &session{
		store:        store,
		compress:     compress,
		logger:       logger,
		shutdown:     shutdown,
		genesisPoint: genesisPoint,
		cursor:       common.NewPointOrigin(),
	}
}

// setConnection records the negotiated connection once available. It must
// be called before the connection's muxer is started, so no handler can
// observe a nil conn.
func (s *session) setConnection(conn *ouroboroscore.Connection) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conn = conn
}

func (s *session) connection() *ouroboroscore.Connection {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

// findIntersect answers a chain-sync FindIntersect request against the
// local store, in the order the peer supplied.
func (s *session) findIntersect(
	_ chainsync.CallbackContext,
	points []common.Point,
) (common.Point, chainsync.Tip, error) {
	tip, known := s.store.Tip()
	if !known {
		tip = common.Tip{Point: s.genesisPoint}
	}
	point, ok := s.store.Intersect(points)
	if !ok {
		return common.Point{}, tip, chainsync.ErrIntersectNotFound
	}
	s.mu.Lock()
	s.cursor = point
	s.mu.Unlock()
	return point, tip, nil
}

// requestNext answers a chain-sync RequestNext request, blocking on the
// store's subscription channel and replying AwaitReply if nothing is
// available yet, per the mini-protocol's contract that the server replies
// as soon as a block is available.
func (s *session) requestNext(ctx chainsync.CallbackContext) error {
	s.mu.Lock()
	after := s.cursor
	s.mu.Unlock()

	for {
		hdr, ok := s.store.Next(after)
		if ok {
			tip, _ := s.store.Tip()
			s.mu.Lock()
			s.cursor = hdr.Point
			s.mu.Unlock()
			return ctx.Server.RollForwardNtN(hdr.Era, hdr.ByronType, hdr.Raw, tip)
		}
		if err := ctx.Server.AwaitReply(); err != nil {
			return err
		}
		s.logger.Debug(
			"no new block yet, awaiting store update",
			"component", "network",
			"protocol", "chain-sync",
			"role", "server",
		)
		ch, cancel := s.store.Subscribe()
		select {
		case <-ch:
			cancel()
			continue
		case <-s.shutdown:
			cancel()
			return nil
		case <-ctx.Server.DoneChan():
			cancel()
			return nil
		}
	}
}

// requestRange answers a block-fetch RequestRange request. Connections that
// negotiated protocol version 15 or later receive a single compressed
// batch when compression is enabled server-side; everyone else gets one
// Block message per block, as version 14 has no CompressedBlocks message.
// The node-to-node version table ends at version 13, so every connection
// takes the per-block path.
func (s *session) requestRange(
	ctx blockfetch.CallbackContext,
	from common.Point,
	to common.Point,
) error {
	blocks, ok := s.store.BlocksInRange(from, to)
	if !ok || len(blocks) == 0 {
		return ctx.Server.NoBlocks()
	}

	useCompression := false
	if s.compress {
		if conn := s.connection(); conn != nil {
			version, _ := conn.ProtocolVersion()
			useCompression = version >= 15
		}
	}

	if err := ctx.Server.StartBatch(); err != nil {
		return err
	}
	if useCompression {
		payload, err := blockfetch.EncodeWrappedBlocks(blocks)
		if err != nil {
			return err
		}
		compressed, err := blockfetch.CompressPayload(payload, zstd.SpeedDefault)
		if err != nil {
			return err
		}
		if err := ctx.Server.CompressedBlocks(blockfetch.EncodingZstd, compressed); err != nil {
			return err
		}
	} else {
		for _, b := range blocks {
			if err := ctx.Server.Block(b.Type, b.RawBlock); err != nil {
				return err
			}
		}
	}
	return ctx.Server.BatchDone()
}
