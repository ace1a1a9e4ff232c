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
	"sync"

	"github.com/dt-chain/ouroboros-core/cbor"
	"github.com/dt-chain/ouroboros-core/chunkregistry"
	"github.com/dt-chain/ouroboros-core/protocol/blockfetch"
	"github.com/dt-chain/ouroboros-core/protocol/common"
)

// RegistryStore adapts a *chunkregistry.Memory into a ChainStore. Since
// header decoding is out of scope, it serves the same wrapped-block bytes
// the download pipeline indexed for both chain-sync's header stream and
// block-fetch's block stream: it unwraps only the (type, raw block) CBOR
// envelope, never the block body itself.
type RegistryStore struct {
	registry *chunkregistry.Memory

	mu   sync.Mutex
	subs []chan struct{}
}

// NewRegistryStore returns a ChainStore backed by reg. Callers that append
// to reg after blocks may be awaited by a connected peer must call Notify
// once the append is visible, or RequestNext will not learn about it until
// another notification arrives.
func NewRegistryStore(reg *chunkregistry.Memory) *RegistryStore {
	return &RegistryStore{registry: reg}
}

// Notify wakes every pending Subscribe call. The component that indexes new
// blocks into the registry (the download pipeline) calls this once per
// committed chunk, after indexing all of that chunk's blocks.
func (r *RegistryStore) Notify() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

func (r *RegistryStore) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{})
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()
	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, c := range r.subs {
			if c == ch {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

func (r *RegistryStore) Tip() (common.Tip, bool) {
	return r.registry.Tip()
}

func (r *RegistryStore) Intersect(points []common.Point) (common.Point, bool) {
	for _, p := range points {
		if _, ok := r.registry.FindBlock(p); ok {
			return p, true
		}
	}
	return common.Point{}, false
}

func (r *RegistryStore) Next(after common.Point) (HeaderInfo, bool) {
	info, ok := r.registry.NextBlock(after)
	if !ok {
		return HeaderInfo{}, false
	}
	wrapped, ok := r.registry.BlockBytes(info)
	if !ok {
		return HeaderInfo{}, false
	}
	var block blockfetch.WrappedBlock
	if _, err := cbor.Decode(wrapped, &block); err != nil {
		return HeaderInfo{}, false
	}
	return HeaderInfo{
		Point:     info.Point,
		Era:       block.Type,
		ByronType: 0,
		Raw:       block.RawBlock,
	}, true
}

func (r *RegistryStore) BlocksInRange(from, to common.Point) ([]blockfetch.WrappedBlock, bool) {
	fromInfo, ok := r.registry.FindBlockBySlot(from.Slot, from.Hash)
	if !ok {
		return nil, false
	}
	var out []blockfetch.WrappedBlock
	cursor := fromInfo.Point
	for {
		wrapped, ok := r.registry.BlockBytes(fromInfo)
		if !ok {
			return nil, false
		}
		var block blockfetch.WrappedBlock
		if _, err := cbor.Decode(wrapped, &block); err != nil {
			return nil, false
		}
		out = append(out, block)
		if cursor.Slot == to.Slot && string(cursor.Hash) == string(to.Hash) {
			return out, true
		}
		next, ok := r.registry.NextBlock(cursor)
		if !ok {
			return nil, false
		}
		fromInfo = next
		cursor = next.Point
	}
}
