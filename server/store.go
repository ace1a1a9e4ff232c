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
	"github.com/dt-chain/ouroboros-core/protocol/blockfetch"
	"github.com/dt-chain/ouroboros-core/protocol/common"
)

// HeaderInfo is a single node-to-node header, kept as raw CBOR since
// decoding block headers is outside the scope of the network core.
type HeaderInfo struct {
	Point     common.Point
	Era       uint
	ByronType uint
	Raw       []byte
}

// ChainStore is the local-chain seam the chain-sync and block-fetch server
// handlers are driven from. It never decodes a header or block body itself;
// it hands back whatever raw bytes and points whoever populated it (the
// download pipeline, see the pipeline package) recorded.
type ChainStore interface {
	// Tip returns the current local tip, and false if the store is empty.
	Tip() (common.Tip, bool)

	// Intersect returns the first point in points, in the order given, that
	// the store recognizes, and true. A miss returns false.
	Intersect(points []common.Point) (common.Point, bool)

	// Next returns the header immediately following after in the local
	// chain, and true. It returns false, not an error, if the chain has not
	// advanced past after yet; the caller is expected to Subscribe and
	// retry rather than poll.
	Next(after common.Point) (HeaderInfo, bool)

	// Subscribe returns a channel that is closed the next time headers are
	// appended to the store; waiting again takes a new Subscribe call. The
	// returned cancel func must be called once the caller is done waiting,
	// whether or not the channel fired.
	Subscribe() (ch <-chan struct{}, cancel func())

	// BlocksInRange returns the wrapped blocks for the closed range
	// [from, to], in ascending slot order, and true. It returns false if
	// either endpoint is not known locally.
	BlocksInRange(from, to common.Point) ([]blockfetch.WrappedBlock, bool)
}
