// Copyright 2023 Blink Labs Software
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

package ouroboroscore_test

import (
	"testing"
	"time"

	ouroboros "github.com/dt-chain/ouroboros-core"
	ouroboros_mock "github.com/dt-chain/ouroboros-core/internal/test/ouroboros_mock"
	"github.com/dt-chain/ouroboros-core/protocol/chainsync"
	"go.uber.org/goleak"
)

// TestErrorHandlingWithActiveProtocols tests that connection errors are
// propagated when protocols are active, and ignored when protocols are
// stopped
func TestErrorHandlingWithActiveProtocols(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("ErrorsPropagatedWhenProtocolsActive", func(t *testing.T) {
		mockConn := ouroboros_mock.NewConnection(
			ouroboros_mock.ProtocolRoleClient,
			[]ouroboros_mock.ConversationEntry{
				ouroboros_mock.ConversationEntryHandshakeRequestGeneric,
				ouroboros_mock.ConversationEntryHandshakeNtNResponse,
			},
		)

		oConn, err := ouroboros.New(
			ouroboros.WithConnection(mockConn),
			ouroboros.WithNetworkMagic(ouroboros_mock.MockNetworkMagic),
			ouroboros.WithNodeToNode(true),
		)
		if err != nil {
			t.Fatalf("unexpected error when creating Connection object: %s", err)
		}

		var chainSyncProtocol *chainsync.ChainSync
		for i := 0; i < 100; i++ {
			chainSyncProtocol = oConn.ChainSync()
			if chainSyncProtocol != nil && chainSyncProtocol.Client != nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if chainSyncProtocol == nil || chainSyncProtocol.Client == nil {
			oConn.Close()
			t.Fatal("chain sync protocol not initialized")
		}

		chainSyncProtocol.Client.Start()
		time.Sleep(100 * time.Millisecond)

		mockConn.Close()

		select {
		case err := <-oConn.ErrorChan():
			if err == nil {
				t.Fatal("expected connection error, got nil")
			}
			t.Logf("received connection error (expected with active protocols): %s", err)
		case <-time.After(2 * time.Second):
			t.Error("timed out waiting for connection error - error should be propagated when protocols are active")
		}

		oConn.Close()
	})

	t.Run("ErrorsIgnoredWhenProtocolsStopped", func(t *testing.T) {
		mockConn := ouroboros_mock.NewConnection(
			ouroboros_mock.ProtocolRoleClient,
			[]ouroboros_mock.ConversationEntry{
				ouroboros_mock.ConversationEntryHandshakeRequestGeneric,
				ouroboros_mock.ConversationEntryHandshakeNtNResponse,
			},
		)

		oConn, err := ouroboros.New(
			ouroboros.WithConnection(mockConn),
			ouroboros.WithNetworkMagic(ouroboros_mock.MockNetworkMagic),
			ouroboros.WithNodeToNode(true),
		)
		if err != nil {
			t.Fatalf("unexpected error when creating Connection object: %s", err)
		}

		var chainSyncProtocol *chainsync.ChainSync
		for i := 0; i < 100; i++ {
			chainSyncProtocol = oConn.ChainSync()
			if chainSyncProtocol != nil && chainSyncProtocol.Client != nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if chainSyncProtocol == nil || chainSyncProtocol.Client == nil {
			oConn.Close()
			t.Fatal("chain sync protocol not initialized")
		}

		chainSyncProtocol.Client.Start()
		time.Sleep(50 * time.Millisecond)

		if err := chainSyncProtocol.Client.Stop(); err != nil {
			t.Fatalf("failed to stop chain sync: %s", err)
		}

		select {
		case <-chainSyncProtocol.Client.DoneChan():
		case <-time.After(1 * time.Second):
			t.Fatal("timed out waiting for protocol to stop")
		}

		mockConn.Close()
		select {
		case err := <-oConn.ErrorChan():
			t.Logf("received error during shutdown: %s", err)
		case <-time.After(500 * time.Millisecond):
			t.Log("no connection error received (expected when protocols are stopped)")
		}

		oConn.Close()
	})
}

// TestErrorHandlingWithMultipleProtocols tests error handling with multiple
// active protocols
func TestErrorHandlingWithMultipleProtocols(t *testing.T) {
	defer goleak.VerifyNone(t)

	mockConn := ouroboros_mock.NewConnection(
		ouroboros_mock.ProtocolRoleClient,
		[]ouroboros_mock.ConversationEntry{
			ouroboros_mock.ConversationEntryHandshakeRequestGeneric,
			ouroboros_mock.ConversationEntryHandshakeNtNResponse,
		},
	)

	oConn, err := ouroboros.New(
		ouroboros.WithConnection(mockConn),
		ouroboros.WithNetworkMagic(ouroboros_mock.MockNetworkMagic),
		ouroboros.WithNodeToNode(true),
	)
	if err != nil {
		t.Fatalf("unexpected error when creating Connection object: %s", err)
	}

	time.Sleep(100 * time.Millisecond)

	chainSync := oConn.ChainSync()
	blockFetch := oConn.BlockFetch()

	if chainSync != nil && chainSync.Client != nil {
		chainSync.Client.Start()
	}
	if blockFetch != nil && blockFetch.Client != nil {
		blockFetch.Client.Start()
	}

	time.Sleep(100 * time.Millisecond)

	mockConn.Close()

	select {
	case err := <-oConn.ErrorChan():
		if err == nil {
			t.Fatal("expected connection error, got nil")
		}
		t.Logf("received connection error with multiple active protocols: %s", err)
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for connection error")
	}

	oConn.Close()
}

// TestBasicErrorHandling tests basic error handling scenarios
func TestBasicErrorHandling(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("DialFailure", func(t *testing.T) {
		oConn, err := ouroboros.New(
			ouroboros.WithNetworkMagic(764824073),
		)
		if err != nil {
			t.Fatalf("unexpected error when creating Connection object: %s", err)
		}

		err = oConn.Dial("tcp", "invalid-hostname:9999")
		if err == nil {
			t.Fatal("expected dial error, got nil")
		}

		oConn.Close()
	})

	t.Run("DoubleClose", func(t *testing.T) {
		oConn, err := ouroboros.New(
			ouroboros.WithNetworkMagic(764824073),
		)
		if err != nil {
			t.Fatalf("unexpected error when creating Connection object: %s", err)
		}

		if err := oConn.Close(); err != nil {
			t.Fatalf("unexpected error on first close: %s", err)
		}
		if err := oConn.Close(); err != nil {
			t.Fatalf("unexpected error on second close: %s", err)
		}
	})
}

// TestErrorChannelBehavior tests basic error channel behavior
func TestErrorChannelBehavior(t *testing.T) {
	defer goleak.VerifyNone(t)

	oConn, err := ouroboros.New(
		ouroboros.WithNetworkMagic(764824073),
	)
	if err != nil {
		t.Fatalf("unexpected error when creating Connection object: %s", err)
	}

	errorChan := oConn.ErrorChan()
	if errorChan == nil {
		t.Fatal("error channel should not be nil")
	}

	select {
	case err, ok := <-errorChan:
		if ok {
			t.Logf("error channel contained: %s", err)
		} else {
			t.Error("error channel should not be closed initially")
		}
	default:
		// Expected - channel is empty but open
	}

	oConn.Close()
}
