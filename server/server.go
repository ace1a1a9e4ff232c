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

// Package server implements the accept loop that answers node-to-node
// peers: per connection it drives a handshake followed by chain-sync and
// block-fetch, against a pluggable ChainStore, until the peer disconnects
// or the server is shut down.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	ouroboroscore "github.com/dt-chain/ouroboros-core"
	"github.com/dt-chain/ouroboros-core/protocol/blockfetch"
	"github.com/dt-chain/ouroboros-core/protocol/chainsync"
	"github.com/dt-chain/ouroboros-core/protocol/common"
	"github.com/jinzhu/copier"
)

// Server accepts node-to-node connections and drives each against a
// ChainStore. The zero value is not usable; construct with New.
type Server struct {
	cfg Config

	mu       sync.Mutex
	listener net.Listener
	shutdown chan struct{}
	closed   bool

	wg sync.WaitGroup
}

// New returns a Server configured per cfg. It does not bind a listener
// until ListenAndServe is called.
func New(cfg Config) *Server {
	return &Server{
		cfg:      cfg,
		shutdown: make(chan struct{}),
	}
}

// ListenAndServe binds cfg.ListenAddr and accepts connections until the
// listener fails or Shutdown is called, in which case it returns nil.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on a caller-supplied listener until it fails or
// Shutdown is called, in which case it returns nil. ListenAndServe is a
// convenience wrapper around Serve for the common case of binding
// cfg.ListenAddr directly; tests use Serve with a pre-bound ephemeral-port
// listener so they can learn the chosen port via listener.Addr().
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logger := s.cfg.logger()
	logger.Info(
		"accepting connections",
		"component", "network",
		"protocol", "node-to-node",
		"address", s.cfg.ListenAddr,
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// Addr returns the listener's bound address, or nil if the server has not
// started listening yet.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting new connections and waits for every in-flight
// connection's handler goroutine to return, or ctx to expire first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.shutdown)
	}
	listener := s.listener
	s.mu.Unlock()

	var closeErr error
	if listener != nil {
		closeErr = listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConnection negotiates a single accepted peer and drives it until
// it disconnects or the server shuts down. The muxer start is delayed so
// the session can capture the negotiated *ouroboroscore.Connection (needed
// by block-fetch to decide compressed-vs-raw batches) before any
// mini-protocol traffic beyond the handshake can be dispatched.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	logger := s.cfg.logger()

	network := ouroboroscore.NetworkByNetworkMagic(s.cfg.NetworkMagic)
	genesisPoint := common.NewPoint(0, network.GenesisHash())
	sess := newSession(s.cfg.Store, s.cfg.Compress, logger, s.shutdown, genesisPoint)

	var chainSyncCfg chainsync.Config
	if s.cfg.ChainSyncTemplate != nil {
		if err := copier.Copy(&chainSyncCfg, s.cfg.ChainSyncTemplate); err != nil {
			logger.Warn("chain-sync config clone failed, using defaults", "error", err)
			chainSyncCfg = chainsync.NewConfig()
		}
	} else {
		chainSyncCfg = chainsync.NewConfig()
	}
	chainSyncCfg.FindIntersectFunc = sess.findIntersect
	chainSyncCfg.RequestNextFunc = sess.requestNext

	var blockFetchCfg blockfetch.Config
	if s.cfg.BlockFetchTemplate != nil {
		if err := copier.Copy(&blockFetchCfg, s.cfg.BlockFetchTemplate); err != nil {
			logger.Warn("block-fetch config clone failed, using defaults", "error", err)
			blockFetchCfg = blockfetch.NewConfig()
		}
	} else {
		blockFetchCfg = blockfetch.NewConfig()
	}
	blockFetchCfg.RequestRangeFunc = sess.requestRange

	errorChan := make(chan error, 10)
	peer, err := ouroboroscore.New(
		ouroboroscore.WithConnection(conn),
		ouroboroscore.WithServer(true),
		ouroboroscore.WithNodeToNode(true),
		ouroboroscore.WithNetworkMagic(s.cfg.NetworkMagic),
		ouroboroscore.WithErrorChan(errorChan),
		ouroboroscore.WithDelayMuxerStart(true),
		ouroboroscore.WithChainSyncConfig(chainSyncCfg),
		ouroboroscore.WithBlockFetchConfig(blockFetchCfg),
	)
	if err != nil {
		logger.Warn("connection setup failed", "component", "network", "error", err)
		return
	}
	defer peer.Close()

	sess.setConnection(peer)
	peer.Muxer().Start()

	logger.Debug(
		"peer connected",
		"component", "network",
		"connection_id", peer.Id.String(),
	)

	select {
	case err, ok := <-errorChan:
		if ok && err != nil && !errors.Is(err, io.EOF) {
			logger.Warn(
				"connection error",
				"component", "network",
				"connection_id", peer.Id.String(),
				"error", err,
			)
		}
	case <-s.shutdown:
	}

	logger.Debug(
		"peer disconnected",
		"component", "network",
		"connection_id", peer.Id.String(),
	)
}
