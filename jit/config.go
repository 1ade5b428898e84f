package jit

import (
	"time"

	"github.com/jitcache/jitcache"
	"github.com/jitcache/jitcache/kit/errors"
	"github.com/jitcache/jitcache/toml"
)

const (
	// DefaultCompileMode is the mode callers fall back to when a request
	// does not carry one.
	DefaultCompileMode = jitcache.ModeLazy

	// DefaultCompilationThreshold is the number of times a signature must be
	// requested in lazy mode before it is compiled. Zero compiles on the
	// first request.
	DefaultCompilationThreshold = 0

	// DefaultAsyncWorkers is the number of background compilation workers.
	DefaultAsyncWorkers = 10

	// DefaultAsyncMaxInFlight caps background compilations that have been
	// accepted but not finished. Submissions beyond the cap are declined.
	DefaultAsyncMaxInFlight = DefaultAsyncWorkers

	// DefaultMegamorphicCompileCount is the number of compilations of one
	// cluster name beyond which the execution ratio is inspected.
	DefaultMegamorphicCompileCount = 10

	// DefaultMegamorphicMinExecutionsPerCompile is the number of executions
	// each compilation must earn for a frequently recompiled cluster to stay
	// eligible for compilation.
	DefaultMegamorphicMinExecutionsPerCompile = 50

	// DefaultMegamorphicCompileTime is the cumulative time spent compiling
	// one cluster name beyond which the cluster is demoted.
	DefaultMegamorphicCompileTime = 30 * time.Second
)

// Config represents the configuration for a compilation cache.
type Config struct {
	// CompileMode is the default mode for callers that do not choose one
	// per request.
	CompileMode jitcache.CompileMode `toml:"compile-mode"`

	// CompilationThreshold is the request count at which a lazy-mode
	// signature is compiled.
	CompilationThreshold int64 `toml:"compilation-threshold"`

	// AsyncWorkers is the size of the background compilation pool.
	AsyncWorkers int `toml:"async-workers"`

	// AsyncMaxInFlight caps accepted-but-unfinished background compilations.
	AsyncMaxInFlight int `toml:"async-max-in-flight"`

	// MegamorphicCompileCount and MegamorphicMinExecutionsPerCompile tune
	// the recompile-frequency demotion heuristic.
	MegamorphicCompileCount            int64 `toml:"megamorphic-compile-count"`
	MegamorphicMinExecutionsPerCompile int64 `toml:"megamorphic-min-executions-per-compile"`

	// MegamorphicCompileTime is the cumulative compile-time demotion cutoff.
	MegamorphicCompileTime toml.Duration `toml:"megamorphic-compile-time"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{
		CompileMode:                        DefaultCompileMode,
		CompilationThreshold:               DefaultCompilationThreshold,
		AsyncWorkers:                       DefaultAsyncWorkers,
		AsyncMaxInFlight:                   DefaultAsyncMaxInFlight,
		MegamorphicCompileCount:            DefaultMegamorphicCompileCount,
		MegamorphicMinExecutionsPerCompile: DefaultMegamorphicMinExecutionsPerCompile,
		MegamorphicCompileTime:             toml.Duration(DefaultMegamorphicCompileTime),
	}
}

// Validate returns an error if the configuration is invalid.
func (c Config) Validate() error {
	const op = "jit.Config.Validate"

	switch c.CompileMode {
	case jitcache.ModeLazy, jitcache.ModeStrict, jitcache.ModeAsync:
	default:
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "compile-mode must be one of lazy, strict, async",
			Op:   op,
		}
	}
	if c.CompilationThreshold < 0 {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "compilation-threshold must not be negative",
			Op:   op,
		}
	}
	if c.AsyncWorkers <= 0 {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "async-workers must be positive",
			Op:   op,
		}
	}
	if c.AsyncMaxInFlight <= 0 {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "async-max-in-flight must be positive",
			Op:   op,
		}
	}
	if c.MegamorphicCompileCount < 0 {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "megamorphic-compile-count must not be negative",
			Op:   op,
		}
	}
	if c.MegamorphicMinExecutionsPerCompile < 0 {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "megamorphic-min-executions-per-compile must not be negative",
			Op:   op,
		}
	}
	if c.MegamorphicCompileTime < 0 {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "megamorphic-compile-time must not be negative",
			Op:   op,
		}
	}
	return nil
}
