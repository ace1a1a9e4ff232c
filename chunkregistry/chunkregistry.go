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

// Package chunkregistry implements a minimal, in-memory content-addressed
// block archive satisfying the four operations the network core consumes
// from a chunk registry: find_block, find_block_by_slot, tip, and
// add_compressed. It defines no on-disk layout; a real deployment can back
// the same interface with a file-per-chunk store without the core noticing.
package chunkregistry

import (
	"bytes"
	"errors"
	"sync"

	pcommon "github.com/dt-chain/ouroboros-core/protocol/common"
)

// ErrDuplicateOffset is returned by AddCompressed when offset was already
// registered with different chunk bytes. A repeat call with identical bytes
// is treated as the idempotent no-op the contract requires.
var ErrDuplicateOffset = errors.New("chunkregistry: offset already registered with different data")

// chunk is one committed on-disk artifact: a contiguous, ordered run of
// blocks belonging to the same epoch-chunk id.
type chunk struct {
	offset       uint64
	compressed   []byte
	uncompressed []byte
}

// BlockInfo describes where a single block lives within the registry.
type BlockInfo struct {
	Point       pcommon.Point
	BlockNumber uint64
	ChunkOffset uint64 // the AddCompressed offset of the chunk containing it
	ByteOffset  uint64 // byte offset of the block within that chunk's uncompressed data
}

// pointKey is a comparable form of pcommon.Point suitable for map lookups.
type pointKey struct {
	slot uint64
	hash string
}

func keyOf(p pcommon.Point) pointKey {
	return pointKey{slot: p.Slot, hash: string(p.Hash)}
}

// Cursor is an opaque position into the registry's chunk sequence,
// analogous to a C++ const_iterator over committed chunks. The zero Cursor
// is Cbegin of an empty registry, which always equals Cend.
type Cursor struct {
	idx int
}

// Memory is a minimal, in-memory reference implementation of the chunk
// registry contract (§6.4). It is safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	chunks      []chunk
	chunksByOff map[uint64]int // AddCompressed offset -> index in chunks

	blocks       []BlockInfo
	blocksByKey  map[pointKey]int
	blocksBySlot map[uint64][]int // slot -> indexes in blocks (usually len 1)
}

// NewMemory returns an empty chunk registry.
func NewMemory() *Memory {
	return &Memory{
		chunksByOff:  make(map[uint64]int),
		blocksByKey:  make(map[pointKey]int),
		blocksBySlot: make(map[uint64][]int),
	}
}

// AddCompressed appends a chunk at offset, idempotently: a repeat call with
// byte-identical compressed/uncompressed content is a no-op that returns
// nil, while a repeat call with different content is a logic error in the
// caller and is rejected.
func (m *Memory) AddCompressed(offset uint64, compressed, uncompressed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.chunksByOff[offset]; ok {
		existing := m.chunks[idx]
		if bytes.Equal(existing.compressed, compressed) && bytes.Equal(existing.uncompressed, uncompressed) {
			return nil
		}
		return ErrDuplicateOffset
	}

	c := chunk{
		offset:       offset,
		compressed:   append([]byte(nil), compressed...),
		uncompressed: append([]byte(nil), uncompressed...),
	}
	m.chunksByOff[offset] = len(m.chunks)
	m.chunks = append(m.chunks, c)
	return nil
}

// IndexBlock records a single block's identity against a chunk previously
// registered with AddCompressed at chunkOffset. It is not one of the four
// contract operations (§6.4 only requires archive-level add_compressed);
// header decoding to recover per-block (slot, hash) is out of scope for the
// mini-protocol engine itself, so whichever component does know block
// identity as it flushes a chunk (the download pipeline, §4.8) supplies it
// here to make find_block/find_block_by_slot usable at all.
func (m *Memory) IndexBlock(chunkOffset uint64, point pcommon.Point, blockNumber uint64, byteOffset uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chunksByOff[chunkOffset]; !ok {
		return errors.New("chunkregistry: IndexBlock: unknown chunk offset")
	}
	info := BlockInfo{
		Point:       point,
		BlockNumber: blockNumber,
		ChunkOffset: chunkOffset,
		ByteOffset:  byteOffset,
	}
	idx := len(m.blocks)
	m.blocks = append(m.blocks, info)
	m.blocksByKey[keyOf(point)] = idx
	m.blocksBySlot[point.Slot] = append(m.blocksBySlot[point.Slot], idx)
	return nil
}

// FindBlock returns a Cursor positioned at the chunk containing point, and
// true. If point is the origin, it returns Cbegin (the start of the
// archive). If point matches no indexed block, it returns Cend and false.
func (m *Memory) FindBlock(point pcommon.Point) (Cursor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if point.Slot == 0 && len(point.Hash) == 0 {
		if len(m.chunks) == 0 {
			return Cursor{idx: 0}, false
		}
		return Cursor{idx: 0}, true
	}
	idx, ok := m.blocksByKey[keyOf(point)]
	if !ok {
		return Cursor{idx: len(m.chunks)}, false
	}
	chunkIdx, ok := m.chunksByOff[m.blocks[idx].ChunkOffset]
	if !ok {
		return Cursor{idx: len(m.chunks)}, false
	}
	return Cursor{idx: chunkIdx}, true
}

// FindBlockBySlot returns the indexed block at slot with the given hash, and
// true if found. Mirrors find_block_by_slot_no_throw's comma-ok contract:
// a miss is reported by the second return value, never an error.
func (m *Memory) FindBlockBySlot(slot uint64, hash []byte) (BlockInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, idx := range m.blocksBySlot[slot] {
		info := m.blocks[idx]
		if bytes.Equal(info.Point.Hash, hash) {
			return info, true
		}
	}
	return BlockInfo{}, false
}

// NextBlock returns the indexed block immediately following after in
// append order, and true. If after is the origin, it returns the first
// indexed block, if any. Used to drive chain-sync RequestNext off the
// registry without the caller needing to track its own cursor-to-index
// mapping.
func (m *Memory) NextBlock(after pcommon.Point) (BlockInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if after.Slot == 0 && len(after.Hash) == 0 {
		if len(m.blocks) == 0 {
			return BlockInfo{}, false
		}
		return m.blocks[0], true
	}
	idx, ok := m.blocksByKey[keyOf(after)]
	if !ok || idx+1 >= len(m.blocks) {
		return BlockInfo{}, false
	}
	return m.blocks[idx+1], true
}

// BlockBytes returns the raw (type, wrapped-block CBOR) bytes for info,
// sliced out of its chunk's uncompressed data between its ByteOffset and
// the ByteOffset of whichever indexed block follows it in the same chunk,
// or the end of the chunk's data if it is the last block indexed there.
func (m *Memory) BlockBytes(info BlockInfo) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunkIdx, ok := m.chunksByOff[info.ChunkOffset]
	if !ok {
		return nil, false
	}
	chunk := m.chunks[chunkIdx]
	end := uint64(len(chunk.uncompressed))
	for _, b := range m.blocks {
		if b.ChunkOffset == info.ChunkOffset && b.ByteOffset > info.ByteOffset && b.ByteOffset < end {
			end = b.ByteOffset
		}
	}
	if info.ByteOffset > uint64(len(chunk.uncompressed)) || end > uint64(len(chunk.uncompressed)) {
		return nil, false
	}
	return chunk.uncompressed[info.ByteOffset:end], true
}

// Tip returns the point and block number of the most recently indexed
// block, and true. Returns false if the registry has no indexed blocks yet.
func (m *Memory) Tip() (pcommon.Tip, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.blocks) == 0 {
		return pcommon.Tip{}, false
	}
	last := m.blocks[len(m.blocks)-1]
	return pcommon.Tip{Point: last.Point, BlockNumber: last.BlockNumber}, true
}

// NumChunks returns the number of committed chunks, for callers (such as
// peerinfo's chunk-level bisection) that need to address them by index.
func (m *Memory) NumChunks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// ChunkOffsetAt returns the AddCompressed offset of the chunk at index idx,
// in commit order, and true. Returns false if idx is out of range.
func (m *Memory) ChunkOffsetAt(idx int) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if idx < 0 || idx >= len(m.chunks) {
		return 0, false
	}
	return m.chunks[idx].offset, true
}

// BlocksInChunk returns, in index (append) order, every indexed block whose
// ChunkOffset equals chunkOffset.
func (m *Memory) BlocksInChunk(chunkOffset uint64) []BlockInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BlockInfo
	for _, b := range m.blocks {
		if b.ChunkOffset == chunkOffset {
			out = append(out, b)
		}
	}
	return out
}

// Cbegin returns a Cursor at the first committed chunk.
func (m *Memory) Cbegin() Cursor {
	return Cursor{idx: 0}
}

// Cend returns the end-of-archive Cursor, one past the last committed
// chunk. It never refers to real data; comparing a Cursor against Cend is
// the idiomatic way to detect "not found" or "no more chunks".
func (m *Memory) Cend() Cursor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Cursor{idx: len(m.chunks)}
}

// Next returns the Cursor for the chunk following c.
func (m *Memory) Next(c Cursor) Cursor {
	return Cursor{idx: c.idx + 1}
}

// Done reports whether c has walked off the end of the archive.
func (m *Memory) Done(c Cursor) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return c.idx >= len(m.chunks)
}

// ChunkRemainingData returns the compressed bytes of the chunk at c and the
// Cursor for the chunk after it, used by the compressed block-fetch path to
// stream whole on-disk chunks without recompressing them. If c is at or past
// end, it returns nil data and end unchanged.
func (m *Memory) ChunkRemainingData(c Cursor, end Cursor) ([]byte, Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c.idx >= len(m.chunks) || c.idx >= end.idx {
		return nil, end, nil
	}
	return m.chunks[c.idx].compressed, Cursor{idx: c.idx + 1}, nil
}
