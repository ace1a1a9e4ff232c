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

	"github.com/dt-chain/ouroboros-core/protocol/chainsync"
	pcommon "github.com/dt-chain/ouroboros-core/protocol/common"
)

// FindIntersection walks points in the given order and returns the first
// one known to the peer, along with the peer's current tip. A nil point
// with a nil error means none of the points intersect the peer's chain.
func (c *Client) FindIntersection(points []pcommon.Point) (*pcommon.Point, pcommon.Tip, error) {
	c.opMutex.Lock()
	defer c.opMutex.Unlock()

	if err := c.ensureStarted(); err != nil {
		return nil, pcommon.Tip{}, err
	}
	cs := c.chainSyncClient()
	if cs == nil {
		return nil, pcommon.Tip{}, errors.New("client: chain-sync protocol not available")
	}
	point, tip, err := cs.FindIntersect(points)
	if err != nil {
		if errors.Is(err, chainsync.ErrIntersectNotFound) {
			return nil, tip, nil
		}
		return nil, tip, err
	}
	return point, tip, nil
}

// FindTip returns the peer's current chain tip without asserting an
// intersection point, by performing a degenerate find_intersection with no
// candidate points.
func (c *Client) FindTip() (pcommon.Tip, error) {
	_, tip, err := c.FindIntersection(nil)
	return tip, err
}
