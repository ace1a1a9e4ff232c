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

package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/dt-chain/ouroboros-core/protocol/blockfetch"
	pcommon "github.com/dt-chain/ouroboros-core/protocol/common"
	"github.com/klauspost/compress/zstd"
)

// DefaultSlotsPerChunk groups downloaded blocks into archive chunks the same
// size as one Shelley-era epoch's worth of slots. Real chunk boundaries track
// era-specific epoch lengths; this is a fixed approximation suitable for a
// reference archive writer.
const DefaultSlotsPerChunk = 432000

// ChunkCompressionLevel is the zstd level chunk bodies are compressed at.
// klauspost/compress/zstd exposes named tiers rather than numeric levels;
// SpeedDefault is its closest match to a "level 3" preset.
const ChunkCompressionLevel = zstd.SpeedDefault

// ChunkRegistry is the subset of chunkregistry.Memory's contract the chunk
// writer needs. It is expressed as an interface so the writer never imports
// the chunkregistry package directly, matching the ChainStore seam the
// server driver uses on the read side.
type ChunkRegistry interface {
	AddCompressed(offset uint64, compressed, uncompressed []byte) error
	IndexBlock(chunkOffset uint64, point pcommon.Point, blockNumber uint64, byteOffset uint64) error
}

// ChunkNotifier is notified once a chunk has been committed, so anything
// blocked waiting for new chain data (a chain-sync server session awaiting
// RequestNext) can re-check the registry.
type ChunkNotifier interface {
	Notify()
}

// ChunkProgress reports how far the archive writer has advanced.
type ChunkProgress struct {
	Slot      uint64
	EndOffset uint64
}

// pendingBlock is one block buffered in the chunk currently being built.
type pendingBlock struct {
	point       pcommon.Point
	blockNumber uint64
	byteOffset  uint64
	globalEnd   uint64 // running archive offset once this block's bytes are flushed
	encoded     []byte
}

// ChunkWriterConfig configures a ChunkWriter.
type ChunkWriterConfig struct {
	// SlotsPerChunk is the slot-range width used to group blocks into chunks.
	// A chunk is flushed whenever a submitted block's slot crosses into the
	// next multiple of SlotsPerChunk. Zero selects DefaultSlotsPerChunk.
	SlotsPerChunk uint64
	// Registry receives each completed chunk's compressed bytes and per-block
	// index entries. Required.
	Registry ChunkRegistry
	// Notifier is notified after each chunk commits. Optional.
	Notifier ChunkNotifier
	// Progress, if set, receives a ChunkProgress after every indexed block.
	// Sends are non-blocking; a slow consumer misses updates rather than
	// stalling the writer.
	Progress chan<- ChunkProgress
	Logger   *slog.Logger
}

// ChunkWriter consumes decoded, in-order blocks (typically a BlockPipeline's
// Results()) and archives them as compressed chunks in a ChunkRegistry. It is
// the download pipeline's terminal stage: everything upstream of it is
// transport and ordering, and everything at or after it is storage.
//
// A ChunkWriter is not safe for concurrent WriteBlock calls; it is driven by
// a single goroutine reading a pipeline's ordered output, mirroring the
// ApplyStage's single-writer contract.
type ChunkWriter struct {
	cfg           ChunkWriterConfig
	slotsPerChunk uint64

	chunkOffset uint64 // AddCompressed offset of the chunk currently being built
	chunkStart  uint64 // slot that opened the current chunk's window
	buffer      []pendingBlock
	archiveEnd  uint64 // total bytes committed to prior chunks

	watermark atomic.Uint64 // cancelTasks: blocks whose globalEnd exceeds this are dropped
	haveMark  atomic.Bool
}

// NewChunkWriter returns a ChunkWriter. Registry must be non-nil.
func NewChunkWriter(cfg ChunkWriterConfig) *ChunkWriter {
	slotsPerChunk := cfg.SlotsPerChunk
	if slotsPerChunk == 0 {
		slotsPerChunk = DefaultSlotsPerChunk
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Logger = logger
	return &ChunkWriter{
		cfg:           cfg,
		slotsPerChunk: slotsPerChunk,
	}
}

// Run drains items from results until the channel closes or ctx is
// cancelled, writing each applied block to the archive in order.
func (w *ChunkWriter) Run(ctx context.Context, results <-chan *BlockItem) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-results:
			if !ok {
				return w.flush()
			}
			if item.DecodeError() != nil || !item.IsApplied() {
				continue
			}
			if err := w.WriteBlock(item); err != nil {
				return err
			}
		}
	}
}

// WriteBlock appends item to the chunk currently being built, flushing the
// prior chunk first if item's slot has crossed into a new chunk window.
func (w *ChunkWriter) WriteBlock(item *BlockItem) error {
	point := item.Tip().Point
	chunkID := point.Slot / w.slotsPerChunk

	if len(w.buffer) > 0 && chunkID != w.chunkStart/w.slotsPerChunk {
		if err := w.flush(); err != nil {
			return err
		}
	}
	if len(w.buffer) == 0 {
		w.chunkStart = point.Slot
	}

	wrapped := blockfetch.WrappedBlock{Type: item.BlockType(), RawBlock: item.RawCbor()}
	encoded, err := blockfetch.EncodeWrappedBlocks([]blockfetch.WrappedBlock{wrapped})
	if err != nil {
		return err
	}

	byteOffset := uint64(0)
	if n := len(w.buffer); n > 0 {
		last := w.buffer[n-1]
		byteOffset = last.byteOffset + uint64(len(last.encoded))
	}
	globalEnd := w.archiveEnd + byteOffset + uint64(len(encoded))

	w.buffer = append(w.buffer, pendingBlock{
		point:       point,
		blockNumber: item.BlockNumber(),
		byteOffset:  byteOffset,
		globalEnd:   globalEnd,
		encoded:     encoded,
	})

	if w.cfg.Progress != nil {
		select {
		case w.cfg.Progress <- ChunkProgress{Slot: point.Slot, EndOffset: globalEnd}:
		default:
		}
	}
	return nil
}

// CancelTasks establishes an upper bound on the archive offset that may be
// committed: any buffered block whose bytes would land beyond maxValidOffset
// is dropped rather than flushed. It is idempotent and monotonically
// decreasing — calling it with a higher value than the current watermark is
// a no-op, matching a rollback's contract that later rollbacks only ever
// narrow the valid range further.
func (w *ChunkWriter) CancelTasks(maxValidOffset uint64) {
	for {
		if !w.haveMark.Load() {
			if w.haveMark.CompareAndSwap(false, true) {
				w.watermark.Store(maxValidOffset)
				return
			}
			continue
		}
		current := w.watermark.Load()
		if maxValidOffset >= current {
			return
		}
		if w.watermark.CompareAndSwap(current, maxValidOffset) {
			return
		}
	}
}

// flush compresses and commits the buffered chunk, if any, dropping any
// buffered blocks beyond a watermark set by CancelTasks.
func (w *ChunkWriter) flush() error {
	if len(w.buffer) == 0 {
		return nil
	}

	kept := w.buffer
	if w.haveMark.Load() {
		mark := w.watermark.Load()
		for i, b := range kept {
			if b.globalEnd > mark {
				kept = kept[:i]
				break
			}
		}
	}
	w.buffer = nil
	if len(kept) == 0 {
		return nil
	}

	var uncompressed []byte
	for _, b := range kept {
		uncompressed = append(uncompressed, b.encoded...)
	}
	compressed, err := blockfetch.CompressPayload(uncompressed, ChunkCompressionLevel)
	if err != nil {
		return err
	}

	offset := w.chunkOffset
	if err := w.cfg.Registry.AddCompressed(offset, compressed, uncompressed); err != nil {
		return err
	}
	for _, b := range kept {
		if err := w.cfg.Registry.IndexBlock(offset, b.point, b.blockNumber, b.byteOffset); err != nil {
			return err
		}
	}

	w.archiveEnd += uint64(len(uncompressed))
	w.chunkOffset = w.archiveEnd

	w.cfg.Logger.Debug(
		"committed chunk",
		"component", "pipeline",
		"chunk_offset", offset,
		"blocks", len(kept),
		"bytes", len(uncompressed),
	)

	if w.cfg.Notifier != nil {
		w.cfg.Notifier.Notify()
	}
	return nil
}
