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

package client

import (
	"errors"
	"sync"

	"github.com/dt-chain/ouroboros-core/protocol/chainsync"
	pcommon "github.com/dt-chain/ouroboros-core/protocol/common"
)

// Header is a single block header delivered by fetch_headers: the
// era-specific type tag and the raw header CBOR as carried on the wire.
type Header struct {
	Type uint
	Raw  []byte
	Slot uint64
}

// headerCollector accumulates headers delivered via chain-sync RollForward
// while a FetchHeaders call is outstanding, and decides when to stop.
type headerCollector struct {
	mu         sync.Mutex
	headers    []Header
	tip        chainsync.Tip
	maxN       int
	allowEmpty bool
	stopped    bool
	done       chan struct{}
	doneOnce   sync.Once
}

func (h *headerCollector) onRollForward(blockType uint, raw []byte, tip chainsync.Tip) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		// Already satisfied maxN; further headers may still arrive from
		// pipelined requests already in flight before Stop takes effect.
		return chainsync.ErrStopSyncProcess
	}
	h.tip = tip
	h.headers = append(h.headers, Header{Type: blockType, Raw: raw, Slot: tip.Point.Slot})
	if h.maxN > 0 && len(h.headers) >= h.maxN {
		h.stopped = true
		h.finishLocked()
		return chainsync.ErrStopSyncProcess
	}
	return nil
}

func (h *headerCollector) onAwaitReply() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	if len(h.headers) > 0 || h.allowEmpty {
		h.stopped = true
		h.finishLocked()
	}
}

// finishLocked closes the done channel. Callers must hold h.mu.
func (h *headerCollector) finishLocked() {
	h.doneOnce.Do(func() { close(h.done) })
}

// FetchHeaders synchronizes from the peer starting at the first of points
// that intersects its chain, collecting up to maxN headers sorted by
// increasing slot. If allowEmpty is false, the call blocks until at least
// one header is available; if true, it may return an empty slice as soon as
// the peer reports it has nothing ready yet.
func (c *Client) FetchHeaders(
	points []pcommon.Point,
	maxN int,
	allowEmpty bool,
) ([]Header, chainsync.Tip, error) {
	c.opMutex.Lock()
	defer c.opMutex.Unlock()

	if err := c.ensureStarted(); err != nil {
		return nil, chainsync.Tip{}, err
	}
	cs := c.chainSyncClient()
	if cs == nil {
		return nil, chainsync.Tip{}, errors.New("client: chain-sync protocol not available")
	}

	if maxN == 0 {
		_, tip, err := cs.FindIntersect(points)
		return nil, tip, err
	}

	collector := &headerCollector{
		maxN:       maxN,
		allowEmpty: allowEmpty,
		done:       make(chan struct{}),
	}
	c.headerCollectorMu.Lock()
	c.headerCollector = collector
	c.headerCollectorMu.Unlock()
	defer func() {
		c.headerCollectorMu.Lock()
		c.headerCollector = nil
		c.headerCollectorMu.Unlock()
	}()

	if err := cs.Sync(points); err != nil {
		return nil, chainsync.Tip{}, err
	}
	select {
	case <-collector.done:
	case <-cs.DoneChan():
		return nil, chainsync.Tip{}, errors.New("client: connection closed while fetching headers")
	}
	if err := cs.Stop(); err != nil {
		return nil, chainsync.Tip{}, err
	}

	collector.mu.Lock()
	defer collector.mu.Unlock()
	return collector.headers, collector.tip, nil
}

// dispatchRollForward is wired as the chain-sync RollForwardRawFunc for
// every Client. It only does something while a FetchHeaders call is
// outstanding; otherwise incoming blocks are dropped since no operation is
// listening for them.
func (c *Client) dispatchRollForward(_ chainsync.CallbackContext, blockType uint, raw []byte, tip chainsync.Tip) error {
	c.headerCollectorMu.Lock()
	collector := c.headerCollector
	c.headerCollectorMu.Unlock()
	if collector == nil {
		return chainsync.ErrStopSyncProcess
	}
	return collector.onRollForward(blockType, raw, tip)
}

func (c *Client) dispatchAwaitReply(_ chainsync.CallbackContext) {
	c.headerCollectorMu.Lock()
	collector := c.headerCollector
	c.headerCollectorMu.Unlock()
	if collector != nil {
		collector.onAwaitReply()
	}
}
