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

// Package peerinfo implements the deepest-common-block search run against a
// node-to-node peer: a chunk-level then block-level bisection that narrows
// to the newest point shared between the local chain archive and the peer,
// using at most PointsPerQuery probes per round trip.
package peerinfo

import (
	"bytes"
	"errors"
	"log/slog"
	"strconv"

	"github.com/btcsuite/btcd/btcutil/base58"
	pcommon "github.com/dt-chain/ouroboros-core/protocol/common"
)

// PointsPerQuery bounds the number of candidate points sent in a single
// find_intersection round trip.
const PointsPerQuery = 24

// config holds the optional settings applied via Option.
type config struct {
	logger *slog.Logger
}

// Option configures FindDeepestIntersection.
type Option func(*config)

// WithLogger sets the logger used to trace the bisection's progress. A nil
// logger is ignored, leaving the default in place.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newConfig(opts []Option) config {
	c := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// formatPoint renders a point for log output using base58, the same
// encoding the teacher uses for Byron-era address display, since raw slot
// hashes are otherwise unreadable in a log line.
func formatPoint(p pcommon.Point) string {
	if len(p.Hash) == 0 {
		return "origin"
	}
	return base58.Encode(p.Hash) + "@" + strconv.FormatUint(p.Slot, 10)
}

// Finder is the subset of client.Client's operations the search needs.
// client.Client satisfies this directly.
type Finder interface {
	FindIntersection(points []pcommon.Point) (*pcommon.Point, pcommon.Tip, error)
	FindTip() (pcommon.Tip, error)
}

// ChainSource exposes the local chain archive as an ordered sequence of
// chunks, each holding an ordered sequence of blocks, which is all the
// search needs to know about local storage layout.
type ChainSource interface {
	// NumChunks returns how many chunks are committed locally.
	NumChunks() int
	// ChunkRepresentative returns the point used to probe chunk idx during
	// the chunk-level bisection: the newest block committed to that chunk.
	ChunkRepresentative(idx int) (pcommon.Point, bool)
	// ChunkBlocks returns every block point in chunk idx, in ascending
	// slot order.
	ChunkBlocks(idx int) []pcommon.Point
}

// FindDeepestIntersection returns the newest point known to both the local
// chain archive (source) and the peer reachable through finder, along with
// the peer's current tip. A nil point with a nil error means the chains
// share no common point at all (including the case where source has no
// chunks, in which case only the peer's tip is reported).
func FindDeepestIntersection(finder Finder, source ChainSource, opts ...Option) (*pcommon.Point, pcommon.Tip, error) {
	cfg := newConfig(opts)
	numChunks := source.NumChunks()
	if numChunks == 0 {
		tip, err := finder.FindTip()
		cfg.logger.Debug("no local chunks, falling back to peer tip", "component", "peerinfo")
		return nil, tip, err
	}

	chunkReps := make([]pcommon.Point, numChunks)
	for i := 0; i < numChunks; i++ {
		p, ok := source.ChunkRepresentative(i)
		if !ok {
			return nil, pcommon.Tip{}, errors.New("peerinfo: chunk representative missing for committed chunk")
		}
		chunkReps[i] = p
	}

	// Phase A: a chunk whose representative (its newest block) is known to
	// the peer is known in full, but the true divergence point may lie
	// inside the very next chunk, which is only partially shared. Narrow to
	// the last fully-known chunk, then hand the chunk just past it to Phase
	// B, where individual blocks are probed instead of whole chunks.
	chunkIdx, found, tip, err := bisect(finder, chunkReps)
	if err != nil {
		return nil, tip, err
	}
	var targetChunk int
	switch {
	case !found:
		targetChunk = 0
		cfg.logger.Debug("no chunk representative known to peer", "component", "peerinfo", "chunks", numChunks)
	case chunkIdx+1 < numChunks:
		targetChunk = chunkIdx + 1
		cfg.logger.Debug("narrowed to chunk", "component", "peerinfo", "chunk_representative", formatPoint(chunkReps[chunkIdx]))
	default:
		// The newest chunk is already known in full; nothing past it to
		// probe at block granularity.
		point := chunkReps[chunkIdx]
		cfg.logger.Debug("newest chunk fully known to peer", "component", "peerinfo", "point", formatPoint(point))
		return &point, tip, nil
	}

	// Phase B: narrow to a single block inside the target chunk.
	blockPoints := source.ChunkBlocks(targetChunk)
	if len(blockPoints) == 0 {
		return nil, tip, nil
	}
	blockIdx, found, tip, err := bisect(finder, blockPoints)
	if err != nil {
		return nil, tip, err
	}
	if !found {
		if targetChunk == 0 {
			return nil, tip, nil
		}
		// Nothing in the partially-known chunk matched; the last fully
		// known chunk's representative is the deepest shared point.
		point := chunkReps[chunkIdx]
		return &point, tip, nil
	}
	point := blockPoints[blockIdx]
	cfg.logger.Debug("found deepest intersection", "component", "peerinfo", "point", formatPoint(point))
	return &point, tip, nil
}

// bisect narrows [0, len(points)-1] (ascending by slot significance) down to
// the index of the newest point known to the peer, using up to
// PointsPerQuery probes per round and reversing each probe batch so the
// first match find_intersection reports is always the newest candidate
// (the tie-break the search relies on). It terminates each round either by
// narrowing the window or, once the window is small enough, by enumerating
// every remaining point in one final round.
func bisect(finder Finder, points []pcommon.Point) (idx int, found bool, tip pcommon.Tip, err error) {
	lo, hi := 0, len(points)-1
	for hi-lo+1 > PointsPerQuery {
		probeIdxs := evenlySpaced(lo, hi, PointsPerQuery)
		matchIdx, matchTip, qerr := queryDescending(finder, points, probeIdxs)
		tip = matchTip
		if qerr != nil {
			return 0, false, tip, qerr
		}
		if matchIdx < 0 {
			// Not even the oldest probe (lo) intersects: nothing in this
			// window is shared.
			return 0, false, tip, nil
		}
		if matchIdx == hi {
			// The newest probe already intersects; the deepest shared
			// point is at or above hi, which is as deep as we can probe.
			lo = hi
			break
		}
		// Narrow to [matchIdx, next probe above matchIdx - 1]: matchIdx is
		// confirmed shared, the next untested probe above it is not yet
		// known either way.
		newHi := hi
		for _, pi := range probeIdxs {
			if pi > matchIdx {
				newHi = pi - 1
				break
			}
		}
		lo, hi = matchIdx, newHi
	}

	// Final round: enumerate every remaining point.
	finalIdxs := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		finalIdxs = append(finalIdxs, i)
	}
	matchIdx, matchTip, qerr := queryDescending(finder, points, finalIdxs)
	tip = matchTip
	if qerr != nil {
		return 0, false, tip, qerr
	}
	if matchIdx < 0 {
		return 0, false, tip, nil
	}
	return matchIdx, true, tip, nil
}

// queryDescending issues one find_intersection call for the points at idxs,
// reversed into descending-slot order so the newest candidate is checked
// first, and returns the index (in points) of whichever one matched, or -1.
func queryDescending(finder Finder, points []pcommon.Point, idxs []int) (int, pcommon.Tip, error) {
	query := make([]pcommon.Point, len(idxs))
	for i, pi := range idxs {
		query[len(idxs)-1-i] = points[pi]
	}
	matched, tip, err := finder.FindIntersection(query)
	if err != nil {
		return -1, tip, err
	}
	if matched == nil {
		return -1, tip, nil
	}
	for _, pi := range idxs {
		if points[pi].Slot == matched.Slot && bytes.Equal(points[pi].Hash, matched.Hash) {
			return pi, tip, nil
		}
	}
	return -1, tip, nil
}

// evenlySpaced returns up to k indices in [lo, hi], always including lo and
// hi, spaced as evenly as the integer range allows, in ascending order.
func evenlySpaced(lo, hi, k int) []int {
	if hi-lo+1 <= k {
		out := make([]int, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			out = append(out, i)
		}
		return out
	}
	seen := make(map[int]bool, k)
	out := make([]int, 0, k)
	span := hi - lo
	for i := 0; i < k; i++ {
		idx := lo + (i*span+(k-1)/2)/(k-1)
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out
}
