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

	"github.com/dt-chain/ouroboros-core/protocol/blockfetch"
	pcommon "github.com/dt-chain/ouroboros-core/protocol/common"
)

// BlockHandlerFunc is invoked once per block delivered by FetchBlocks, in
// wire-arrival order. Returning false stops the fetch after the current
// block; returning a non-nil error aborts it and is surfaced to the
// FetchBlocks caller.
type BlockHandlerFunc func(blockType uint, raw []byte) (keepGoing bool, err error)

// blockBatch tracks the outstanding FetchBlocks call. GetBlockRange itself
// only blocks until the peer acknowledges the request (StartBatch); the
// actual stream of Block/BatchDone messages arrives afterward on the
// protocol's own goroutine, so completion is signaled separately here.
type blockBatch struct {
	mu       sync.Mutex
	stopped  bool
	err      error
	done     chan struct{}
	doneOnce sync.Once
}

func (b *blockBatch) finish(err error) {
	b.doneOnce.Do(func() {
		b.mu.Lock()
		if b.err == nil {
			b.err = err
		}
		b.mu.Unlock()
		close(b.done)
	})
}

// FetchBlocks streams every block in the closed range [from, to] to
// handler, in order. The wire protocol has no way for the server to abort a
// range mid-flight, so when handler asks to stop, the underlying
// block-fetch session is torn down rather than merely paused: no further
// blocks reach any handler.
func (c *Client) FetchBlocks(from, to pcommon.Point, handler BlockHandlerFunc) error {
	c.opMutex.Lock()
	defer c.opMutex.Unlock()

	if err := c.ensureStarted(); err != nil {
		return err
	}
	bf := c.blockFetchClient()
	if bf == nil {
		return errors.New("client: block-fetch protocol not available")
	}

	batch := &blockBatch{done: make(chan struct{})}
	c.blockBatchMu.Lock()
	c.blockBatch = batch
	c.blockHandler = handler
	c.blockBatchMu.Unlock()
	defer func() {
		c.blockBatchMu.Lock()
		c.blockBatch = nil
		c.blockHandler = nil
		c.blockBatchMu.Unlock()
	}()

	if err := bf.GetBlockRange(from, to); err != nil {
		return err
	}
	select {
	case <-batch.done:
	case <-bf.DoneChan():
		return errors.New("client: connection closed while fetching blocks")
	}
	batch.mu.Lock()
	defer batch.mu.Unlock()
	return batch.err
}

// dispatchBlock is wired as the block-fetch BlockRawFunc for every Client.
func (c *Client) dispatchBlock(_ blockfetch.CallbackContext, blockType uint, raw []byte) error {
	c.blockBatchMu.Lock()
	batch := c.blockBatch
	handler := c.blockHandler
	c.blockBatchMu.Unlock()
	if batch == nil || handler == nil {
		return blockfetch.ErrStopFetch
	}

	batch.mu.Lock()
	stopped := batch.stopped
	batch.mu.Unlock()
	if stopped {
		return nil
	}

	keepGoing, err := handler(blockType, raw)
	if err != nil {
		batch.finish(err)
		return blockfetch.ErrStopFetch
	}
	if !keepGoing {
		batch.mu.Lock()
		batch.stopped = true
		batch.mu.Unlock()
		batch.finish(nil)
		return blockfetch.ErrStopFetch
	}
	return nil
}

// dispatchBatchDone is wired as the block-fetch BatchDoneFunc for every
// Client, signaling FetchBlocks that the full range was delivered normally.
func (c *Client) dispatchBatchDone(_ blockfetch.CallbackContext) error {
	c.blockBatchMu.Lock()
	batch := c.blockBatch
	c.blockBatchMu.Unlock()
	if batch != nil {
		batch.finish(nil)
	}
	return nil
}
