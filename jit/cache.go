// Package jit implements the compilation cache: a signature-keyed table of
// compile results, a per-entry state machine, cluster-level compile
// statistics with megamorphic demotion, and a bounded background
// compilation pool.
package jit

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jitcache/jitcache"
	"github.com/jitcache/jitcache/kit/errors"
)

// Cache memoizes the Compiler's output per argument signature.
//
// Compiled artifacts are immutable and owned by the cache; callers receive
// references valid for the cache's lifetime. At most one compilation runs
// per signature no matter how many callers request it concurrently.
//
// No eviction policy is implemented and the cache grows without bound.
type Cache struct {
	mu    sync.RWMutex
	store map[string]*entry

	compiler jitcache.Compiler
	config   Config

	logger *zap.Logger
	clock  clock.Clock

	stats   *statsTracker
	async   *asyncCoordinator
	metrics *cacheMetrics
}

// NewCache returns a cache that fills misses with compiler.
func NewCache(compiler jitcache.Compiler, config Config) (*Cache, error) {
	if compiler == nil {
		return nil, &errors.Error{
			Code: errors.EInvalid,
			Msg:  "compiler is required",
			Op:   "jit.NewCache",
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	metrics := newCacheMetrics()
	return &Cache{
		store:    make(map[string]*entry),
		compiler: compiler,
		config:   config,
		logger:   zap.NewNop(),
		clock:    clock.New(),
		stats:    newStatsTracker(config, metrics),
		async:    newAsyncCoordinator(config.AsyncWorkers, config.AsyncMaxInFlight),
		metrics:  metrics,
	}, nil
}

// WithLogger sets the logger on the cache. It must be called before the
// cache is used.
func (c *Cache) WithLogger(log *zap.Logger) {
	c.logger = log.With(zap.String("service", "jitcache"))
	c.stats.logger = c.logger
	c.async.logger = c.logger
}

// PrometheusCollectors returns all collectors tracked by the cache.
func (c *Cache) PrometheusCollectors() []prometheus.Collector {
	return c.metrics.PrometheusCollectors()
}

// Compile returns the compiled artifact and executable for the computation
// name applied to args, consulting the cache first.
//
// mode controls behavior on a cache miss. In strict mode the cache always
// compiles, blocking the caller until the Compiler returns. In lazy mode
// the cache may decide the signature is not yet worth compiling and return
// nil results instead. In async mode compilation happens in the background
// and nil results are returned until it finishes.
//
// The executable may be nil even on success when the computation has no
// non-constant outputs.
func (c *Cache) Compile(ctx context.Context, name string, args []jitcache.Argument, opts jitcache.CompileOptions, mode jitcache.CompileMode) (*jitcache.CompilationResult, *jitcache.Executable, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Cache.Compile")
	span.SetTag("mode", mode.String())
	defer span.Finish()

	sig, err := jitcache.BuildSignature(name, args)
	if err != nil {
		return nil, nil, err
	}
	return c.compileImpl(ctx, sig, args, opts, mode)
}

// CompileSingleOp is Compile for a single-operation computation. Single
// operations are cheap to compile, so they always compile strictly.
func (c *Cache) CompileSingleOp(ctx context.Context, name string, args []jitcache.Argument, opts jitcache.CompileOptions) (*jitcache.CompilationResult, *jitcache.Executable, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Cache.CompileSingleOp")
	defer span.Finish()

	opts.SingleOp = true
	sig, err := jitcache.BuildSignature(name, args)
	if err != nil {
		return nil, nil, err
	}
	return c.compileImpl(ctx, sig, args, opts, jitcache.ModeStrict)
}

// compileImpl is the common implementation of Compile and CompileSingleOp.
func (c *Cache) compileImpl(ctx context.Context, sig jitcache.Signature, args []jitcache.Argument, opts jitcache.CompileOptions, mode jitcache.CompileMode) (*jitcache.CompilationResult, *jitcache.Executable, error) {
	c.metrics.requests.WithLabelValues(mode.String()).Inc()

	e := c.getOrCreateEntry(sig)
	megamorphic := c.stats.recordLookup(sig.Name())

	e.mu.Lock()
	defer e.mu.Unlock()

	requestCount := e.requestCount.Add(1)

	if e.state == stateUncompiled {
		switch {
		case megamorphic:
			c.logger.Debug("not compiling cluster because it is megamorphic",
				zap.String("cluster", sig.Name()))

		case mode == jitcache.ModeLazy && requestCount < c.config.CompilationThreshold:
			c.logger.Debug("deferring compilation, signature not hot enough",
				zap.String("signature", sig.HumanString()),
				zap.Int64("request_count", requestCount),
				zap.Int64("threshold", c.config.CompilationThreshold))

		case mode == jitcache.ModeAsync:
			c.compileAsyncLocked(e, sig, args, opts)

		default:
			c.compileStrictLocked(ctx, e, sig, args, opts, mode)
		}
	}

	if e.state != stateCompiled {
		// Compilation was deferred, declined, or is still running in the
		// background; the caller polls again on a later request.
		return nil, nil, nil
	}

	if e.status != nil {
		return nil, nil, e.status
	}
	return e.result, e.executable, nil
}

// compileStrictLocked runs the Compiler and publishes the outcome into e,
// which the caller holds locked. The lock stays held across the compilation:
// concurrent callers for the same signature block on it and then read the
// published result, so a signature is never compiled twice.
func (c *Cache) compileStrictLocked(ctx context.Context, e *entry, sig jitcache.Signature, args []jitcache.Argument, opts jitcache.CompileOptions, mode jitcache.CompileMode) {
	e.state = stateCompiling

	c.metrics.compilesActive.Inc()
	start := c.clock.Now()
	result, err := c.compiler.Compile(ctx, opts, sig, args)
	var executable *jitcache.Executable
	if err == nil {
		executable, err = c.compiler.BuildExecutable(ctx, result)
	}
	took := c.clock.Now().Sub(start)
	c.metrics.compilesActive.Dec()
	c.metrics.compileDur.WithLabelValues(mode.String()).Observe(took.Seconds())

	e.state = stateCompiled
	if err != nil {
		e.status = &errors.Error{
			Code: errors.ECompileFailed,
			Msg:  "compiling " + sig.Name(),
			Op:   "jit.compileStrict",
			Err:  err,
		}
		c.metrics.compileErrors.Inc()
		c.logger.Error("compilation failed",
			zap.String("signature", sig.HumanString()),
			zap.Duration("took", took),
			zap.Error(err))
	} else {
		e.result = result
		e.executable = executable
		c.logger.Debug("compiled signature",
			zap.String("signature", sig.HumanString()),
			zap.Duration("took", took))
	}

	c.stats.recordCompile(sig.Name(), took)
}

// compileAsyncLocked hands the entry to the background pool. The caller
// holds e.mu with state == stateUncompiled. On acceptance the entry is
// marked compiling before the lock is released, so the worker can only
// publish after this request returns. On decline the entry stays
// uncompiled and a later request tries again.
func (c *Cache) compileAsyncLocked(e *entry, sig jitcache.Signature, args []jitcache.Argument, opts jitcache.CompileOptions) {
	accepted := c.async.submit(func() {
		c.compileBackground(e, sig, args, opts)
	})
	if !accepted {
		c.metrics.asyncDeclined.Inc()
		c.logger.Debug("background compilation declined, pool saturated",
			zap.String("signature", sig.HumanString()))
		return
	}

	e.state = stateCompiling
	c.logger.Debug("queued background compilation",
		zap.String("signature", sig.HumanString()))
}

// compileBackground compiles into a scratch entry without holding the real
// entry's lock, then publishes the terminal fields under it. Background
// jobs are not tied to the submitting request's context: an accepted job
// runs to completion.
func (c *Cache) compileBackground(e *entry, sig jitcache.Signature, args []jitcache.Argument, opts jitcache.CompileOptions) {
	scratch := newEntry()
	scratch.mu.Lock()
	c.compileStrictLocked(context.Background(), scratch, sig, args, opts, jitcache.ModeAsync)
	scratch.mu.Unlock()

	e.mu.Lock()
	e.state = scratch.state
	e.status = scratch.status
	e.result = scratch.result
	e.executable = scratch.executable
	e.mu.Unlock()
}

// getOrCreateEntry returns the entry for sig, creating it the first time
// the signature is seen. Only the table's own lock is held here, never an
// entry lock.
func (c *Cache) getOrCreateEntry(sig jitcache.Signature) *entry {
	key := sig.Key()

	c.mu.RLock()
	e := c.store[key]
	c.mu.RUnlock()
	if e != nil {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.store[key]; e != nil {
		return e
	}
	e = newEntry()
	c.store[key] = e
	c.metrics.entries.Inc()
	c.logger.Debug("created cache entry", zap.String("signature", sig.HumanString()))
	return e
}

// Len returns the number of distinct signatures the cache has seen.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stats returns the compile statistics recorded for a cluster name.
func (c *Cache) Stats(name string) (ClusterStats, bool) {
	return c.stats.snapshot(name)
}

// ResetStats drops all cluster statistics, including megamorphic demotions.
// Cache entries are unaffected.
func (c *Cache) ResetStats() {
	c.stats.reset()
}

// Close stops the background compilation pool, letting accepted jobs
// finish. Strict and lazy requests keep working after Close; async
// requests are declined.
func (c *Cache) Close() error {
	c.async.close()
	return nil
}
