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
	"runtime"
)

// DefaultMaxPendingBlocks is the default limit for out-of-order blocks buffered
// in the apply stage. This matches the Cardano security parameter (k=2160) which
// defines the immutability window.
const DefaultMaxPendingBlocks = 2160

// PipelineConfig holds configuration for a BlockPipeline.
type PipelineConfig struct {
	// DecodeWorkers is the number of parallel workers checking submitted CBOR
	// for well-formedness before it reaches the apply stage.
	DecodeWorkers int
	// PrefetchBufferSize is the buffer size for inter-stage channels.
	PrefetchBufferSize int
	// MaxPendingBlocks limits out-of-order blocks buffered in the apply stage.
	// This prevents unbounded memory growth when blocks arrive out of order.
	// Default is 2160 (Cardano security parameter k).
	MaxPendingBlocks int
	// ApplyFunc is the function called to apply blocks in order. It receives
	// the raw, undecoded block CBOR; interpreting it is the caller's concern.
	ApplyFunc ApplyFunc
	// MetricsWindowSize is the number of samples to keep for latency metrics.
	MetricsWindowSize int
}

// DefaultPipelineConfig returns a PipelineConfig with sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	numCPU := runtime.NumCPU()

	decodeWorkers := numCPU / 4
	if decodeWorkers < 2 {
		decodeWorkers = 2
	}

	return PipelineConfig{
		DecodeWorkers:      decodeWorkers,
		PrefetchBufferSize: 1000,                    // Large enough for typical chain gaps
		MaxPendingBlocks:   DefaultMaxPendingBlocks, // Cardano security parameter k
		MetricsWindowSize:  1000,
	}
}

// PipelineOption is a functional option for configuring a BlockPipeline.
type PipelineOption func(*PipelineConfig)

// WithConfig applies a complete PipelineConfig, replacing all default values.
//
// Note: Options applied after WithConfig will still override the config values.
//
// Example:
//
//	config := DefaultPipelineConfig()
//	config.DecodeWorkers = 8
//	p := NewBlockPipeline(WithConfig(config))
func WithConfig(config PipelineConfig) PipelineOption {
	return func(c *PipelineConfig) {
		*c = config
	}
}

// WithDecodeWorkers sets the number of well-formedness check workers.
func WithDecodeWorkers(n int) PipelineOption {
	return func(c *PipelineConfig) {
		if n > 0 {
			c.DecodeWorkers = n
		}
	}
}

// WithPrefetchBufferSize sets the buffer size for inter-stage channels.
func WithPrefetchBufferSize(size int) PipelineOption {
	return func(c *PipelineConfig) {
		if size > 0 {
			c.PrefetchBufferSize = size
		}
	}
}

// WithMaxPendingBlocks sets the limit for out-of-order blocks in the apply stage.
// This prevents unbounded memory growth. Default is 2160 (Cardano security parameter).
func WithMaxPendingBlocks(n int) PipelineOption {
	return func(c *PipelineConfig) {
		if n > 0 {
			c.MaxPendingBlocks = n
		}
	}
}

// WithApplyFunc sets the apply function.
// A nil function is ignored (the pipeline will use a no-op apply).
func WithApplyFunc(fn ApplyFunc) PipelineOption {
	return func(c *PipelineConfig) {
		if fn != nil {
			c.ApplyFunc = fn
		}
	}
}

// WithMetricsWindowSize sets the metrics window size.
func WithMetricsWindowSize(size int) PipelineOption {
	return func(c *PipelineConfig) {
		if size > 0 {
			c.MetricsWindowSize = size
		}
	}
}
