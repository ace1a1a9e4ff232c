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

package peerinfo

import (
	"github.com/dt-chain/ouroboros-core/chunkregistry"
	pcommon "github.com/dt-chain/ouroboros-core/protocol/common"
)

// RegistrySource adapts a *chunkregistry.Memory into a ChainSource, so the
// search can be run directly against the archive a server or client keeps.
type RegistrySource struct {
	Registry *chunkregistry.Memory
}

// NewRegistrySource returns a ChainSource backed by reg.
func NewRegistrySource(reg *chunkregistry.Memory) *RegistrySource {
	return &RegistrySource{Registry: reg}
}

func (s *RegistrySource) NumChunks() int {
	return s.Registry.NumChunks()
}

func (s *RegistrySource) ChunkRepresentative(idx int) (pcommon.Point, bool) {
	offset, ok := s.Registry.ChunkOffsetAt(idx)
	if !ok {
		return pcommon.Point{}, false
	}
	blocks := s.Registry.BlocksInChunk(offset)
	if len(blocks) == 0 {
		return pcommon.Point{}, false
	}
	return blocks[len(blocks)-1].Point, true
}

func (s *RegistrySource) ChunkBlocks(idx int) []pcommon.Point {
	offset, ok := s.Registry.ChunkOffsetAt(idx)
	if !ok {
		return nil
	}
	blocks := s.Registry.BlocksInChunk(offset)
	points := make([]pcommon.Point, len(blocks))
	for i, b := range blocks {
		points[i] = b.Point
	}
	return points
}
