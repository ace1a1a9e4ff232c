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

package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dt-chain/ouroboros-core/pipeline"
	pcommon "github.com/dt-chain/ouroboros-core/protocol/common"
)

// benchmarkBlock is a synthetic well-formed CBOR payload standing in for a
// mini-protocol wire block. The pipeline never interprets block contents, so
// benchmarks only need well-formed CBOR of realistic size.
type benchmarkBlock struct {
	Name      string
	BlockType uint
	Cbor      []byte
}

func benchmarkBlocks() []benchmarkBlock {
	makeCbor := func(n int) []byte {
		// A CBOR byte string header followed by n filler bytes.
		out := []byte{0x5a, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)} // major type 2 (byte string), 4-byte length
		out = append(out, make([]byte, n)...)
		return out
	}
	return []benchmarkBlock{
		{Name: "Small", BlockType: 4, Cbor: makeCbor(512)},
		{Name: "Medium", BlockType: 5, Cbor: makeCbor(16 * 1024)},
		{Name: "Large", BlockType: 6, Cbor: makeCbor(64 * 1024)},
	}
}

// BenchmarkDecodeStage benchmarks CBOR well-formedness check throughput.
func BenchmarkDecodeStage(b *testing.B) {
	blocks := benchmarkBlocks()
	stage := pipeline.NewDecodeStage()

	for _, block := range blocks {
		b.Run(block.Name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(block.Cbor)))

			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				item := pipeline.NewBlockItem(block.BlockType, block.Cbor, pcommon.Tip{}, 0)
				if err := stage.Process(ctx, item); err != nil {
					b.Fatalf("check %s block error: %v", block.Name, err)
				}
			}
		})
	}
}

// BenchmarkStageWorkerPool benchmarks parallel decode with different worker counts.
func BenchmarkStageWorkerPool(b *testing.B) {
	blocks := benchmarkBlocks()
	workerCounts := []int{1, 2, 4, 8}

	for _, numWorkers := range workerCounts {
		b.Run(numWorkerName(numWorkers), func(b *testing.B) {
			b.ReportAllocs()

			totalBytes := int64(0)
			for _, block := range blocks {
				totalBytes += int64(len(block.Cbor))
			}
			b.SetBytes(totalBytes / int64(len(blocks)))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			const bufferSize = 100
			input := make(chan *pipeline.BlockItem, bufferSize)
			output := make(chan *pipeline.BlockItem, bufferSize)
			errs := make(chan error, bufferSize)

			stage := pipeline.NewDecodeStage()
			pool := pipeline.NewStageWorkerPool(pipeline.StageWorkerPoolConfig{
				Stage:      stage,
				NumWorkers: numWorkers,
				Input:      input,
				Output:     output,
				Errors:     errs,
			})
			pool.Start(ctx)
			defer pool.Stop()

			b.ResetTimer()

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < b.N; i++ {
					block := blocks[i%len(blocks)]
					item := pipeline.NewBlockItem(block.BlockType, block.Cbor, pcommon.Tip{}, uint64(i))
					select {
					case input <- item:
					case <-ctx.Done():
						return
					}
				}
				close(input)
			}()

			received := 0
		receiveLoop:
			for received < b.N {
				select {
				case _, ok := <-output:
					if !ok {
						break receiveLoop
					}
					received++
				case err := <-errs:
					b.Fatalf("decode error: %v", err)
				case <-ctx.Done():
					break receiveLoop
				}
			}

			b.StopTimer()
			pool.Stop()
			wg.Wait()
		})
	}
}

func numWorkerName(n int) string {
	return fmt.Sprintf("Workers%d", n)
}

// BenchmarkBlockPipeline benchmarks the full BlockPipeline end-to-end throughput.
func BenchmarkBlockPipeline(b *testing.B) {
	blocks := benchmarkBlocks()

	b.Run("EndToEnd", func(b *testing.B) {
		b.ReportAllocs()

		totalBytes := int64(0)
		for _, block := range blocks {
			totalBytes += int64(len(block.Cbor))
		}
		b.SetBytes(totalBytes / int64(len(blocks)))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		p := pipeline.NewBlockPipeline(
			pipeline.WithDecodeWorkers(4),
			pipeline.WithApplyFunc(func(item *pipeline.BlockItem) error {
				return nil
			}),
		)
		if err := p.Start(ctx); err != nil {
			b.Fatalf("failed to start pipeline: %v", err)
		}
		defer func() { _ = p.Stop() }()

		b.ResetTimer()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < b.N; i++ {
				blk := blocks[i%len(blocks)]
				tip := pcommon.Tip{BlockNumber: uint64(i)}
				if err := p.Submit(ctx, blk.BlockType, blk.Cbor, tip); err != nil {
					return
				}
			}
		}()

		received := 0
	receiveLoop:
		for received < b.N {
			select {
			case _, ok := <-p.Results():
				if !ok {
					break receiveLoop
				}
				received++
			case err := <-p.Errors():
				b.Fatalf("pipeline error: %v", err)
			case <-ctx.Done():
				break receiveLoop
			}
		}

		b.StopTimer()
		_ = p.Stop()
		wg.Wait()
	})
}
