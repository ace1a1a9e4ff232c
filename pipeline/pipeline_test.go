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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pcommon "github.com/dt-chain/ouroboros-core/protocol/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getValidBlockCbor returns well-formed CBOR bytes for testing. The pipeline
// never interprets block contents, so any well-formed CBOR value works.
func getValidBlockCbor() []byte {
	// CBOR array of three small unsigned ints: [1, 2, 3]
	return []byte{0x83, 0x01, 0x02, 0x03}
}

// getInvalidBlockCbor returns malformed CBOR bytes that fail the well-formedness check.
func getInvalidBlockCbor() []byte {
	// Array header claims 5 elements but only 3 follow.
	return []byte{0x85, 0x00, 0x01, 0x02}
}

// createTestTip creates a test Tip for BlockItem construction.
func createTestTip(slot uint64, blockNum uint64) pcommon.Tip {
	return pcommon.Tip{
		Point:       pcommon.NewPoint(slot, []byte{0x01, 0x02, 0x03}),
		BlockNumber: blockNum,
	}
}

// ============================================================================
// BlockItem tests
// ============================================================================

func TestBlockItem_NewBlockItem(t *testing.T) {
	rawCbor := getValidBlockCbor()
	tip := createTestTip(100, 50)
	item := NewBlockItem(5, rawCbor, tip, 1)

	assert.Equal(t, uint(5), item.BlockType())
	assert.Equal(t, rawCbor, item.RawCbor())
	assert.Equal(t, uint64(1), item.SequenceNumber())
	assert.Equal(t, uint64(100), item.Slot())
	assert.Equal(t, uint64(50), item.BlockNumber())
	assert.False(t, item.ReceivedAt().IsZero())
}

func TestBlockItem_NewBlockItem_CopiesRawCbor(t *testing.T) {
	rawCbor := getValidBlockCbor()
	tip := createTestTip(1, 1)
	item := NewBlockItem(0, rawCbor, tip, 0)

	rawCbor[0] = 0xFF
	assert.NotEqual(t, rawCbor[0], item.RawCbor()[0])
}

func TestBlockItem_SetDecodeError(t *testing.T) {
	item := NewBlockItem(0, getValidBlockCbor(), createTestTip(1, 1), 0)
	assert.Nil(t, item.DecodeError())

	item.SetDecodeError(nil, 5*time.Millisecond)
	assert.Nil(t, item.DecodeError())
	assert.Equal(t, 5*time.Millisecond, item.DecodeDuration())

	wantErr := errors.New("malformed cbor")
	item.SetDecodeError(wantErr, 2*time.Millisecond)
	assert.ErrorIs(t, item.DecodeError(), wantErr)
}

func TestBlockItem_SetApplied(t *testing.T) {
	item := NewBlockItem(0, getValidBlockCbor(), createTestTip(1, 1), 0)
	assert.False(t, item.IsApplied())

	item.SetApplied(true, nil, 10*time.Millisecond)
	assert.True(t, item.IsApplied())
	assert.Nil(t, item.ApplyError())
	assert.Equal(t, 10*time.Millisecond, item.ApplyDuration())

	wantErr := errors.New("apply failed")
	item.SetApplied(false, wantErr, 3*time.Millisecond)
	assert.False(t, item.IsApplied())
	assert.ErrorIs(t, item.ApplyError(), wantErr)
}

func TestBlockItem_ThreadSafety(t *testing.T) {
	item := NewBlockItem(0, getValidBlockCbor(), createTestTip(1, 1), 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			item.SetDecodeError(nil, time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			_ = item.DecodeError()
			_ = item.DecodeDuration()
		}()
	}
	wg.Wait()
}

func TestBlockItem_TotalDuration(t *testing.T) {
	item := NewBlockItem(0, getValidBlockCbor(), createTestTip(1, 1), 0)
	time.Sleep(time.Millisecond)
	assert.Greater(t, item.TotalDuration(), time.Duration(0))
}

// ============================================================================
// DecodeStage tests
// ============================================================================

func TestDecodeStage_WellFormedCbor(t *testing.T) {
	stage := NewDecodeStage()
	item := NewBlockItem(0, getValidBlockCbor(), createTestTip(1, 1), 0)

	err := stage.Process(context.Background(), item)
	require.NoError(t, err)
	assert.Nil(t, item.DecodeError())
	assert.GreaterOrEqual(t, item.DecodeDuration(), time.Duration(0))
}

func TestDecodeStage_MalformedCbor(t *testing.T) {
	stage := NewDecodeStage()
	item := NewBlockItem(0, getInvalidBlockCbor(), createTestTip(1, 1), 0)

	err := stage.Process(context.Background(), item)
	require.Error(t, err)
	assert.Error(t, item.DecodeError())
}

func TestDecodeStage_ContextCancellation(t *testing.T) {
	stage := NewDecodeStage()
	item := NewBlockItem(0, getValidBlockCbor(), createTestTip(1, 1), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := stage.Process(ctx, item)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeStage_Name(t *testing.T) {
	stage := NewDecodeStage()
	assert.Equal(t, "decode", stage.Name())
}

func TestDecodeStageWorkerPool_ItemsFlowThrough(t *testing.T) {
	input := make(chan *BlockItem, 10)
	output := make(chan *BlockItem, 10)
	errs := make(chan error, 10)

	pool := NewStageWorkerPool(StageWorkerPoolConfig{
		Stage:      NewDecodeStage(),
		NumWorkers: 2,
		Input:      input,
		Output:     output,
		Errors:     errs,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		input <- NewBlockItem(0, getValidBlockCbor(), createTestTip(uint64(i), uint64(i)), uint64(i))
	}
	close(input)
	pool.Stop()
	close(output)

	count := 0
	for item := range output {
		assert.Nil(t, item.DecodeError())
		count++
	}
	assert.Equal(t, 5, count)
}

func TestDecodeStageWorkerPool_ReportsErrors(t *testing.T) {
	input := make(chan *BlockItem, 2)
	output := make(chan *BlockItem, 2)
	errs := make(chan error, 2)

	pool := NewStageWorkerPool(StageWorkerPoolConfig{
		Stage:      NewDecodeStage(),
		NumWorkers: 1,
		Input:      input,
		Output:     output,
		Errors:     errs,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	input <- NewBlockItem(0, getInvalidBlockCbor(), createTestTip(1, 1), 0)
	close(input)
	pool.Stop()
	close(output)
	close(errs)

	item := <-output
	assert.Error(t, item.DecodeError())
	assert.Error(t, <-errs)
}

// ============================================================================
// ApplyStage tests
// ============================================================================

func TestApplyStage_Name(t *testing.T) {
	stage := NewApplyStage(nil, 0)
	assert.Equal(t, "apply", stage.Name())
}

func TestApplyStageOrdering_OutOfOrderReordering(t *testing.T) {
	var applied []uint64
	var mu sync.Mutex
	applyFunc := func(item *BlockItem) error {
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, item.SequenceNumber())
		return nil
	}

	stage := NewApplyStage(applyFunc, 0)
	ctx := context.Background()

	item2 := NewBlockItem(0, getValidBlockCbor(), createTestTip(2, 2), 2)
	item0 := NewBlockItem(0, getValidBlockCbor(), createTestTip(0, 0), 0)
	item1 := NewBlockItem(0, getValidBlockCbor(), createTestTip(1, 1), 1)

	_, err := stage.ProcessWithStatus(ctx, item2)
	require.NoError(t, err)
	assert.Empty(t, applied)

	_, err = stage.ProcessWithStatus(ctx, item0)
	require.NoError(t, err)

	processed, err := stage.ProcessWithStatus(ctx, item1)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{0, 1, 2}, applied)
	assert.Len(t, processed, 2)
}

func TestApplyStageOrdering_SkipsItemsWithDecodeErrors(t *testing.T) {
	var applyCalls int32
	applyFunc := func(item *BlockItem) error {
		atomic.AddInt32(&applyCalls, 1)
		return nil
	}

	stage := NewApplyStage(applyFunc, 0)
	item := NewBlockItem(0, getInvalidBlockCbor(), createTestTip(0, 0), 0)
	item.SetDecodeError(errors.New("bad cbor"), time.Millisecond)

	_, err := stage.ProcessWithStatus(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&applyCalls))
	assert.False(t, item.IsApplied())
}

func TestApplyStage_PendingCount(t *testing.T) {
	stage := NewApplyStage(nil, 0)
	ctx := context.Background()

	item1 := NewBlockItem(0, getValidBlockCbor(), createTestTip(1, 1), 1)
	_, err := stage.ProcessWithStatus(ctx, item1)
	require.NoError(t, err)
	assert.Equal(t, 1, stage.PendingCount())
}

func TestApplyStage_PendingLimitExceeded(t *testing.T) {
	stage := NewApplyStage(nil, 1)
	ctx := context.Background()

	item1 := NewBlockItem(0, getValidBlockCbor(), createTestTip(1, 1), 1)
	item2 := NewBlockItem(0, getValidBlockCbor(), createTestTip(2, 2), 2)

	_, err := stage.ProcessWithStatus(ctx, item1)
	require.NoError(t, err)

	_, err = stage.ProcessWithStatus(ctx, item2)
	assert.ErrorIs(t, err, ErrPendingLimitExceeded)
}

func TestApplyStage_Reset(t *testing.T) {
	stage := NewApplyStage(nil, 0)
	ctx := context.Background()

	item1 := NewBlockItem(0, getValidBlockCbor(), createTestTip(1, 1), 1)
	_, err := stage.ProcessWithStatus(ctx, item1)
	require.NoError(t, err)
	assert.Equal(t, 1, stage.PendingCount())

	stage.Reset()
	assert.Equal(t, 0, stage.PendingCount())
}

func TestApplyStage_ContextCancellation(t *testing.T) {
	stage := NewApplyStage(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	item := NewBlockItem(0, getValidBlockCbor(), createTestTip(0, 0), 0)
	_, err := stage.ProcessWithStatus(ctx, item)
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// StageFunc tests
// ============================================================================

func TestStageFunc_NameAndProcess(t *testing.T) {
	called := false
	stage := NewStageFunc("custom", func(ctx context.Context, item *BlockItem) error {
		called = true
		return nil
	})

	assert.Equal(t, "custom", stage.Name())
	err := stage.Process(context.Background(), NewBlockItem(0, getValidBlockCbor(), createTestTip(0, 0), 0))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestStageFunc_ErrorHandling(t *testing.T) {
	wantErr := errors.New("stage failed")
	stage := NewStageFunc("failing", func(ctx context.Context, item *BlockItem) error {
		return wantErr
	})

	err := stage.Process(context.Background(), NewBlockItem(0, getValidBlockCbor(), createTestTip(0, 0), 0))
	assert.ErrorIs(t, err, wantErr)
}

// ============================================================================
// BlockPipeline tests
// ============================================================================

func TestBlockPipeline_StartStop(t *testing.T) {
	p := NewBlockPipeline(WithApplyFunc(func(item *BlockItem) error { return nil }))

	err := p.Start(context.Background())
	require.NoError(t, err)

	// Starting twice is a no-op.
	err = p.Start(context.Background())
	require.NoError(t, err)

	err = p.Stop()
	require.NoError(t, err)

	err = p.Submit(context.Background(), 0, getValidBlockCbor(), createTestTip(0, 0))
	assert.ErrorIs(t, err, ErrPipelineStopped)
}

func TestBlockPipeline_NotStarted(t *testing.T) {
	p := NewBlockPipeline()

	err := p.Submit(context.Background(), 0, getValidBlockCbor(), createTestTip(0, 0))
	assert.ErrorIs(t, err, ErrPipelineNotStarted)

	_, ok := <-p.Results()
	assert.False(t, ok)

	err = <-p.Errors()
	assert.ErrorIs(t, err, ErrPipelineNotStarted)
}

func TestBlockPipeline_SubmitAndResults(t *testing.T) {
	var appliedCount int32
	p := NewBlockPipeline(
		WithDecodeWorkers(2),
		WithApplyFunc(func(item *BlockItem) error {
			atomic.AddInt32(&appliedCount, 1)
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	const total = 20
	for i := 0; i < total; i++ {
		err := p.Submit(ctx, 0, getValidBlockCbor(), createTestTip(uint64(i), uint64(i)))
		require.NoError(t, err)
	}

	seen := 0
	timeout := time.After(2 * time.Second)
	for seen < total {
		select {
		case item := <-p.Results():
			require.NotNil(t, item)
			seen++
		case err := <-p.Errors():
			t.Fatalf("unexpected error: %v", err)
		case <-timeout:
			t.Fatalf("timed out waiting for results, saw %d/%d", seen, total)
		}
	}

	assert.Equal(t, int32(total), atomic.LoadInt32(&appliedCount))
}

func TestBlockPipeline_StatsUpdated(t *testing.T) {
	p := NewBlockPipeline(WithApplyFunc(func(item *BlockItem) error { return nil }))
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.NoError(t, p.Submit(context.Background(), 0, getValidBlockCbor(), createTestTip(0, 0)))

	require.Eventually(t, func() bool {
		return p.Stats().BlocksSubmitted >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestBlockPipeline_WaitForDrain(t *testing.T) {
	p := NewBlockPipeline(WithApplyFunc(func(item *BlockItem) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}))
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(context.Background(), 0, getValidBlockCbor(), createTestTip(uint64(i), uint64(i))))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.WaitForDrain(ctx))
	assert.Equal(t, 0, p.PendingCount())
}

func TestBlockPipeline_ErrorsReturnsNewChannelEachTime(t *testing.T) {
	p := NewBlockPipeline()
	ch1 := p.Errors()
	ch2 := p.Errors()
	// Both are unstarted-pipeline channels; each yields its own ErrPipelineNotStarted.
	assert.ErrorIs(t, <-ch1, ErrPipelineNotStarted)
	assert.ErrorIs(t, <-ch2, ErrPipelineNotStarted)
}

func TestBlockPipeline_SubmitStopRaceCondition(t *testing.T) {
	p := NewBlockPipeline(WithApplyFunc(func(item *BlockItem) error { return nil }))
	require.NoError(t, p.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			_ = p.Submit(context.Background(), 0, getValidBlockCbor(), createTestTip(uint64(seq), uint64(seq)))
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.Stop()
	}()

	wg.Wait()
}

func TestBlockPipeline_DrainResultsAndErrors(t *testing.T) {
	p := NewBlockPipeline(WithApplyFunc(func(item *BlockItem) error { return nil }))
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.NoError(t, p.Submit(context.Background(), 0, getValidBlockCbor(), createTestTip(0, 0)))

	require.Eventually(t, func() bool {
		return len(p.DrainResults()) > 0 || p.Stats().BlocksApplied > 0
	}, time.Second, 10*time.Millisecond)
}

func TestPipelineBackpressure_SlowConsumer(t *testing.T) {
	p := NewBlockPipeline(
		WithPrefetchBufferSize(2),
		WithApplyFunc(func(item *BlockItem) error { return nil }),
	)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	for i := 0; i < 4; i++ {
		err := p.Submit(ctx, 0, getValidBlockCbor(), createTestTip(uint64(i), uint64(i)))
		require.NoError(t, err)
	}
}

func TestBlockPipeline_MetricsRecorded(t *testing.T) {
	p := NewBlockPipeline(WithApplyFunc(func(item *BlockItem) error { return nil }))
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(context.Background(), 0, getValidBlockCbor(), createTestTip(uint64(i), uint64(i))))
	}

	require.Eventually(t, func() bool {
		stats := p.Stats()
		return stats.BlocksApplied >= 3
	}, time.Second, 10*time.Millisecond)
}

func TestPipelineConfig_Defaults(t *testing.T) {
	cfg := DefaultPipelineConfig()
	assert.GreaterOrEqual(t, cfg.DecodeWorkers, 2)
	assert.Equal(t, 1000, cfg.PrefetchBufferSize)
	assert.Equal(t, DefaultMaxPendingBlocks, cfg.MaxPendingBlocks)
	assert.Equal(t, 1000, cfg.MetricsWindowSize)
}

func TestWithConfig_ReplacesDefaults(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.DecodeWorkers = 8
	p := NewBlockPipeline(WithConfig(cfg))
	assert.Equal(t, 8, p.config.DecodeWorkers)
}

func TestWithMaxPendingBlocks(t *testing.T) {
	p := NewBlockPipeline(WithMaxPendingBlocks(500))
	assert.Equal(t, 500, p.config.MaxPendingBlocks)

	// Non-positive values are ignored.
	p2 := NewBlockPipeline(WithMaxPendingBlocks(0))
	assert.Equal(t, DefaultMaxPendingBlocks, p2.config.MaxPendingBlocks)
}

func TestWithApplyFunc_NilIgnored(t *testing.T) {
	sentinel := func(item *BlockItem) error { return nil }
	p := NewBlockPipeline(WithApplyFunc(sentinel), WithApplyFunc(nil))
	assert.NotNil(t, p.config.ApplyFunc)
}

// ============================================================================
// PipelineMetrics tests
// ============================================================================

func TestPipelineMetrics_RecordSubmitDecodeApply(t *testing.T) {
	m := NewPipelineMetrics(100)
	m.RecordSubmit()
	m.RecordSubmit()
	m.RecordDecode(time.Millisecond, nil)
	m.RecordDecode(time.Millisecond, errors.New("bad"))
	m.RecordApply(time.Millisecond, nil)

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.BlocksSubmitted)
	assert.Equal(t, uint64(1), stats.BlocksDecoded)
	assert.Equal(t, uint64(1), stats.DecodeErrors)
	assert.Equal(t, uint64(1), stats.BlocksApplied)
}

func TestPipelineMetrics_Reset(t *testing.T) {
	m := NewPipelineMetrics(10)
	m.RecordSubmit()
	m.Reset()
	assert.Equal(t, uint64(0), m.Stats().BlocksSubmitted)
}
