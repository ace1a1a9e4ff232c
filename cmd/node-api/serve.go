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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	ouroboroscore "github.com/dt-chain/ouroboros-core"
	"github.com/dt-chain/ouroboros-core/chunkregistry"
	"github.com/dt-chain/ouroboros-core/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept node-to-node peers and serve chain-sync/block-fetch against a local chain archive",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("data-dir", "", "directory reserved for the chain archive (required)")
	serveCmd.Flags().String("ip", "127.0.0.1", "interface to listen on")
	serveCmd.Flags().Int("port", 3001, "port to listen on")
	serveCmd.Flags().Bool("compress", false, "use compressed block-fetch batches with peers negotiating protocol version 15+")
	serveCmd.Flags().Uint32("network-magic", ouroboroscore.NetworkMainnet.NetworkMagic, "network magic peers must negotiate against")
	_ = serveCmd.MarkFlagRequired("data-dir")

	bindEnv()
	if err := viper.BindPFlags(serveCmd.Flags()); err != nil {
		panic(err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	dataDir := viper.GetString("data-dir")
	ip := viper.GetString("ip")
	port := viper.GetInt("port")
	compress := viper.GetBool("compress")
	networkMagic := uint32(viper.GetUint("network-magic"))

	if dataDir == "" {
		return fmt.Errorf("node-api serve: --data-dir is required")
	}
	// The chunk registry this reference server uses is in-memory only (no
	// on-disk chunk format is implemented); the directory is still reserved
	// and validated so a future on-disk-backed ChainStore can be dropped in
	// without changing the CLI surface.
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("node-api serve: preparing data dir: %w", err)
	}

	logger := slog.Default()
	registry := chunkregistry.NewMemory()
	store := server.NewRegistryStore(registry)

	srv := server.New(server.Config{
		ListenAddr:   net.JoinHostPort(ip, fmt.Sprintf("%d", port)),
		NetworkMagic: networkMagic,
		Store:        store,
		Compress:     compress,
		Logger:       logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("node-api serve: %w", err)
		}
		return nil
	case sig := <-signalCh:
		logger.Info("shutting down", "component", "cmd", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("node-api serve: shutdown: %w", err)
		}
		return nil
	}
}
