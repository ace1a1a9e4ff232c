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

// White-box tests: package client (not client_test) so they can build a
// Client directly around a scripted mock connection instead of going
// through Dial's real net.Dial.
package client

import (
	"fmt"
	"testing"
	"time"

	ouroboros "github.com/dt-chain/ouroboros-core"
	"github.com/dt-chain/ouroboros-core/cbor"
	"github.com/dt-chain/ouroboros-core/internal/test"
	ouroboros_mock "github.com/dt-chain/ouroboros-core/internal/test/ouroboros_mock"
	"github.com/dt-chain/ouroboros-core/protocol"
	"github.com/dt-chain/ouroboros-core/protocol/blockfetch"
	"github.com/dt-chain/ouroboros-core/protocol/chainsync"
	pcommon "github.com/dt-chain/ouroboros-core/protocol/common"
	"go.uber.org/goleak"
)

const testBlockTypeBabbage uint = 6

// newTestClient wires up a Client around a scripted mock connection,
// overriding the chain-sync pipeline limit so tests can script one
// RequestNext/RollForward round trip at a time.
func newTestClient(t *testing.T, conversation []ouroboros_mock.ConversationEntry) (*Client, func()) {
	t.Helper()
	mockConn := ouroboros_mock.NewConnection(
		ouroboros_mock.ProtocolRoleClient,
		conversation,
	)
	asyncErrChan := make(chan error, 1)
	go func() {
		err := <-mockConn.(*ouroboros_mock.Connection).ErrorChan()
		if err != nil {
			asyncErrChan <- fmt.Errorf("received unexpected error: %w", err)
		}
		close(asyncErrChan)
	}()

	c := &Client{}
	opts := []ouroboros.ConnectionOptionFunc{
		ouroboros.WithConnection(mockConn),
		ouroboros.WithNetworkMagic(ouroboros_mock.MockNetworkMagic),
		ouroboros.WithNodeToNode(true),
		ouroboros.WithChainSyncConfig(chainsync.NewConfig(
			chainsync.WithRollForwardRawFunc(c.dispatchRollForward),
			chainsync.WithAwaitReplyFunc(c.dispatchAwaitReply),
			chainsync.WithPipelineLimit(1),
		)),
		ouroboros.WithBlockFetchConfig(blockfetch.NewConfig(
			blockfetch.WithBlockRawFunc(c.dispatchBlock),
			blockfetch.WithBatchDoneFunc(c.dispatchBatchDone),
		)),
	}
	conn, err := ouroboros.New(opts...)
	if err != nil {
		t.Fatalf("unexpected error creating connection: %s", err)
	}
	c.conn = conn

	go func() {
		err, ok := <-conn.ErrorChan()
		if !ok {
			return
		}
		panic(fmt.Sprintf("unexpected connection error: %s", err))
	}()

	cleanup := func() {
		select {
		case err, ok := <-asyncErrChan:
			if ok {
				t.Fatal(err.Error())
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("did not complete within timeout")
		}
		if err := conn.Close(); err != nil {
			t.Fatalf("unexpected error closing connection: %s", err)
		}
		select {
		case <-conn.ErrorChan():
		case <-time.After(10 * time.Second):
			t.Errorf("did not shut down within timeout")
		}
		goleak.VerifyNone(t)
	}
	return c, cleanup
}

func TestFindIntersectionFound(t *testing.T) {
	wantPoint := pcommon.NewPoint(20001, test.DecodeHexString("123456789abcdef0"))
	wantTip := chainsync.Tip{
		BlockNumber: 12345,
		Point:       pcommon.NewPoint(23456, test.DecodeHexString("0123456789abcdef")),
	}
	conversation := []ouroboros_mock.ConversationEntry{
		ouroboros_mock.ConversationEntryHandshakeRequestGeneric,
		ouroboros_mock.ConversationEntryHandshakeNtNResponse,
		ouroboros_mock.ConversationEntryInput{
			ProtocolId:  chainsync.ProtocolIdNtN,
			MessageType: chainsync.MessageTypeFindIntersect,
		},
		ouroboros_mock.ConversationEntryOutput{
			ProtocolId: chainsync.ProtocolIdNtN,
			IsResponse: true,
			Messages: []protocol.Message{
				chainsync.NewMsgIntersectFound(wantPoint, wantTip),
			},
		},
	}
	c, cleanup := newTestClient(t, conversation)
	defer cleanup()

	point, tip, err := c.FindIntersection([]pcommon.Point{wantPoint})
	if err != nil {
		t.Fatalf("received unexpected error: %s", err)
	}
	if point == nil {
		t.Fatalf("expected a matching point, got nil")
	}
	if point.Slot != wantPoint.Slot {
		t.Fatalf("got slot %d, wanted %d", point.Slot, wantPoint.Slot)
	}
	if tip.BlockNumber != wantTip.BlockNumber {
		t.Fatalf("got tip block number %d, wanted %d", tip.BlockNumber, wantTip.BlockNumber)
	}
}

func TestFindIntersectionNotFound(t *testing.T) {
	wantTip := chainsync.Tip{
		BlockNumber: 999,
		Point:       pcommon.NewPointOrigin(),
	}
	conversation := []ouroboros_mock.ConversationEntry{
		ouroboros_mock.ConversationEntryHandshakeRequestGeneric,
		ouroboros_mock.ConversationEntryHandshakeNtNResponse,
		ouroboros_mock.ConversationEntryInput{
			ProtocolId:  chainsync.ProtocolIdNtN,
			MessageType: chainsync.MessageTypeFindIntersect,
		},
		ouroboros_mock.ConversationEntryOutput{
			ProtocolId: chainsync.ProtocolIdNtN,
			IsResponse: true,
			Messages: []protocol.Message{
				chainsync.NewMsgIntersectNotFound(wantTip),
			},
		},
	}
	c, cleanup := newTestClient(t, conversation)
	defer cleanup()

	point, tip, err := c.FindIntersection(nil)
	if err != nil {
		t.Fatalf("received unexpected error: %s", err)
	}
	_ = point
	if tip.BlockNumber != wantTip.BlockNumber {
		t.Fatalf("got tip block number %d, wanted %d", tip.BlockNumber, wantTip.BlockNumber)
	}
}

func TestFetchHeadersMaxN(t *testing.T) {
	startPoint := pcommon.NewPoint(20001, test.DecodeHexString("123456789abcdef0"))
	tip1 := chainsync.Tip{
		BlockNumber: 100,
		Point:       pcommon.NewPoint(20002, test.DecodeHexString("aaaaaaaaaaaaaaaa")),
	}
	tip2 := chainsync.Tip{
		BlockNumber: 101,
		Point:       pcommon.NewPoint(20003, test.DecodeHexString("bbbbbbbbbbbbbbbb")),
	}
	headerBody := test.DecodeHexString("8301020304")
	conversation := []ouroboros_mock.ConversationEntry{
		ouroboros_mock.ConversationEntryHandshakeRequestGeneric,
		ouroboros_mock.ConversationEntryHandshakeNtNResponse,
		ouroboros_mock.ConversationEntryInput{
			ProtocolId:  chainsync.ProtocolIdNtN,
			MessageType: chainsync.MessageTypeFindIntersect,
		},
		ouroboros_mock.ConversationEntryOutput{
			ProtocolId: chainsync.ProtocolIdNtN,
			IsResponse: true,
			Messages: []protocol.Message{
				chainsync.NewMsgIntersectFound(startPoint, tip1),
			},
		},
		ouroboros_mock.ConversationEntryInput{
			ProtocolId:  chainsync.ProtocolIdNtN,
			MessageType: chainsync.MessageTypeRequestNext,
		},
		ouroboros_mock.ConversationEntryOutput{
			ProtocolId: chainsync.ProtocolIdNtN,
			IsResponse: true,
			Messages: []protocol.Message{
				chainsync.NewMsgRollForwardNtN(testBlockTypeBabbage, 0, headerBody, tip1),
			},
		},
		ouroboros_mock.ConversationEntryInput{
			ProtocolId:  chainsync.ProtocolIdNtN,
			MessageType: chainsync.MessageTypeRequestNext,
		},
		ouroboros_mock.ConversationEntryOutput{
			ProtocolId: chainsync.ProtocolIdNtN,
			IsResponse: true,
			Messages: []protocol.Message{
				chainsync.NewMsgRollForwardNtN(testBlockTypeBabbage, 0, headerBody, tip2),
			},
		},
		ouroboros_mock.ConversationEntryInput{
			ProtocolId:  chainsync.ProtocolIdNtN,
			MessageType: chainsync.MessageTypeDone,
		},
	}
	c, cleanup := newTestClient(t, conversation)
	defer cleanup()

	headers, tip, err := c.FetchHeaders([]pcommon.Point{startPoint}, 2, false)
	if err != nil {
		t.Fatalf("received unexpected error: %s", err)
	}
	if len(headers) != 2 {
		t.Fatalf("got %d headers, wanted 2", len(headers))
	}
	if headers[0].Slot != tip1.Point.Slot || headers[1].Slot != tip2.Point.Slot {
		t.Fatalf("headers not in expected slot order: %+v", headers)
	}
	if tip.BlockNumber != tip2.BlockNumber {
		t.Fatalf("got final tip block number %d, wanted %d", tip.BlockNumber, tip2.BlockNumber)
	}
}

func TestFetchHeadersAllowEmpty(t *testing.T) {
	startPoint := pcommon.NewPointOrigin()
	tip1 := chainsync.Tip{
		BlockNumber: 50,
		Point:       pcommon.NewPoint(30000, test.DecodeHexString("cccccccccccccccc")),
	}
	conversation := []ouroboros_mock.ConversationEntry{
		ouroboros_mock.ConversationEntryHandshakeRequestGeneric,
		ouroboros_mock.ConversationEntryHandshakeNtNResponse,
		ouroboros_mock.ConversationEntryInput{
			ProtocolId:  chainsync.ProtocolIdNtN,
			MessageType: chainsync.MessageTypeFindIntersect,
		},
		ouroboros_mock.ConversationEntryOutput{
			ProtocolId: chainsync.ProtocolIdNtN,
			IsResponse: true,
			Messages: []protocol.Message{
				chainsync.NewMsgIntersectFound(startPoint, tip1),
			},
		},
		ouroboros_mock.ConversationEntryInput{
			ProtocolId:  chainsync.ProtocolIdNtN,
			MessageType: chainsync.MessageTypeRequestNext,
		},
		ouroboros_mock.ConversationEntryOutput{
			ProtocolId: chainsync.ProtocolIdNtN,
			IsResponse: true,
			Messages: []protocol.Message{
				chainsync.NewMsgAwaitReply(),
			},
		},
		ouroboros_mock.ConversationEntryInput{
			ProtocolId:  chainsync.ProtocolIdNtN,
			MessageType: chainsync.MessageTypeDone,
		},
	}
	c, cleanup := newTestClient(t, conversation)
	defer cleanup()

	headers, _, err := c.FetchHeaders([]pcommon.Point{startPoint}, 10, true)
	if err != nil {
		t.Fatalf("received unexpected error: %s", err)
	}
	if len(headers) != 0 {
		t.Fatalf("got %d headers, wanted 0", len(headers))
	}
}

func TestFetchBlocksCollectsAll(t *testing.T) {
	startPoint := pcommon.NewPoint(10, test.DecodeHexString("aaaaaaaaaaaaaaaa"))
	endPoint := pcommon.NewPoint(20, test.DecodeHexString("bbbbbbbbbbbbbbbb"))
	block1 := test.DecodeHexString("8401020304")
	block2 := test.DecodeHexString("8405060708")
	wrapped1, err := cbor.Encode(blockfetch.WrappedBlock{Type: testBlockTypeBabbage, RawBlock: block1})
	if err != nil {
		t.Fatalf("received unexpected error: %s", err)
	}
	wrapped2, err := cbor.Encode(blockfetch.WrappedBlock{Type: testBlockTypeBabbage, RawBlock: block2})
	if err != nil {
		t.Fatalf("received unexpected error: %s", err)
	}
	conversation := []ouroboros_mock.ConversationEntry{
		ouroboros_mock.ConversationEntryHandshakeRequestGeneric,
		ouroboros_mock.ConversationEntryHandshakeNtNResponse,
		ouroboros_mock.ConversationEntryInput{
			ProtocolId:  blockfetch.ProtocolId,
			MessageType: blockfetch.MessageTypeRequestRange,
		},
		ouroboros_mock.ConversationEntryOutput{
			ProtocolId: blockfetch.ProtocolId,
			IsResponse: true,
			Messages: []protocol.Message{
				blockfetch.NewMsgStartBatch(),
				blockfetch.NewMsgBlock(wrapped1),
				blockfetch.NewMsgBlock(wrapped2),
				blockfetch.NewMsgBatchDone(),
			},
		},
	}
	c, cleanup := newTestClient(t, conversation)
	defer cleanup()

	var got [][]byte
	err = c.FetchBlocks(startPoint, endPoint, func(_ uint, raw []byte) (bool, error) {
		got = append(got, raw)
		return true, nil
	})
	if err != nil {
		t.Fatalf("received unexpected error: %s", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d blocks, wanted 2", len(got))
	}
	if string(got[0]) != string(block1) || string(got[1]) != string(block2) {
		t.Fatalf("blocks not delivered in expected order/content")
	}
}
