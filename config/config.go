// Package config loads the engine's externally supplied construction
// parameters (spec §6) through viper: worker count, buffer pool sizing,
// and the Nautilus backend a query's Selection/Map expressions compile
// against. The engine core itself never reads environment variables or
// flags directly — this is the one seam where that happens.
package config

import (
	"strings"

	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/nautilus"
	"github.com/spf13/viper"
)

// Backend names the Nautilus backend a query compiles Selection/Map
// expressions against.
type Backend string

const (
	// BackendInterpreter tree-walks every instruction; always available,
	// useful under a debugger or on a platform where closures over traced
	// IR would be more trouble than they're worth.
	BackendInterpreter Backend = "interpreter"
	// BackendNative pre-compiles traced IR into Go closures
	// (nautilus.ClosureBackend) — this engine's substitute for a native
	// MLIR/LLVM JIT (spec §4.E).
	BackendNative Backend = "native"
)

// Nautilus resolves b to the concrete nautilus.Backend CompileExpr should
// use, defaulting unrecognized values to BackendNative.
func (b Backend) Nautilus() nautilus.Backend {
	if b == BackendInterpreter {
		return nautilus.InterpreterBackend{}
	}
	return nautilus.ClosureBackend{}
}

// EngineConfig is the typed result of a config.Load call, consumed by
// the one constructor that wires a query.Manager (spec §6).
type EngineConfig struct {
	// NumWorkers is the worker pool's goroutine count.
	NumWorkers int
	// PoolCapacity is the number of fixed-size buffers each NUMA/size-
	// class segment of the buffer pool holds.
	PoolCapacity int
	// PoolBufferSize is the byte size of one pooled TupleBuffer segment.
	PoolBufferSize int
	// NUMANode is the preferred NUMA node for buffer allocation; -1
	// disables NUMA-aware placement.
	NUMANode int
	// JoinPageSize sizes a join's PagedVector pages; 0 defers to
	// join.DefaultEntriesPerPage.
	JoinPageSize int
	// Backend selects the Nautilus backend for compiled expressions.
	Backend Backend
}

// Default returns the configuration used when no file or environment
// variable overrides a field.
func Default() EngineConfig {
	return EngineConfig{
		NumWorkers:     4,
		PoolCapacity:   1024,
		PoolBufferSize: 4096,
		NUMANode:       -1,
		JoinPageSize:   0,
		Backend:        BackendNative,
	}
}

// Load reads path (if non-empty) plus any NES_-prefixed environment
// variable overrides into an EngineConfig, layered over Default(). A
// missing path is not an error — Default() plus environment overrides
// still produce a usable configuration, matching the teacher's "config
// file is optional, env always wins" pattern.
func Load(path string) (EngineConfig, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("numWorkers", def.NumWorkers)
	v.SetDefault("poolCapacity", def.PoolCapacity)
	v.SetDefault("poolBufferSize", def.PoolBufferSize)
	v.SetDefault("numaNode", def.NUMANode)
	v.SetDefault("joinPageSize", def.JoinPageSize)
	v.SetDefault("backend", string(def.Backend))

	v.SetEnvPrefix("NES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return EngineConfig{}, engerrors.Wrap(engerrors.OperatorExecutionFailure, "config: failed to read config file", err).
				WithContext("path", path)
		}
	}

	cfg := EngineConfig{
		NumWorkers:     v.GetInt("numWorkers"),
		PoolCapacity:   v.GetInt("poolCapacity"),
		PoolBufferSize: v.GetInt("poolBufferSize"),
		NUMANode:       v.GetInt("numaNode"),
		JoinPageSize:   v.GetInt("joinPageSize"),
		Backend:        Backend(v.GetString("backend")),
	}
	if cfg.NumWorkers <= 0 {
		return EngineConfig{}, engerrors.New(engerrors.OperatorExecutionFailure, "config: numWorkers must be positive")
	}
	if cfg.PoolBufferSize <= 0 {
		return EngineConfig{}, engerrors.New(engerrors.OperatorExecutionFailure, "config: poolBufferSize must be positive")
	}
	if cfg.Backend != BackendInterpreter && cfg.Backend != BackendNative {
		return EngineConfig{}, engerrors.New(engerrors.OperatorExecutionFailure, "config: backend must be interpreter or native").
			WithContext("backend", string(cfg.Backend))
	}
	return cfg, nil
}
