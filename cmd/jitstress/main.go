// Command jitstress drives a synthetic compilation workload against the
// cache and reports what the cache made of it: entries, compiles, deferred
// and failed requests, demoted clusters, and autotune reuse.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	nethttp "net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	jaegerconfig "github.com/uber/jaeger-client-go/config"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/jitcache/jitcache"
	"github.com/jitcache/jitcache/autotune"
	"github.com/jitcache/jitcache/jit"
	"github.com/jitcache/jitcache/kit/cli"
	"github.com/jitcache/jitcache/logger"
)

type options struct {
	profilePath  string
	concurrency  int
	listenAddr   string
	autotunePath string
	tracing      bool
	logFormat    string
	logLevel     zapcore.Level
}

func main() {
	var opts options

	prog := &cli.Program{
		Name: "jitstress",
		Run: func() error {
			return runStress(&opts)
		},
		Opts: []cli.Opt{
			{
				DestP: &opts.profilePath,
				Flag:  "profile",
				Desc:  "path to a TOML workload profile; built-in defaults when empty",
			},
			{
				DestP:   &opts.concurrency,
				Flag:    "concurrency",
				Default: 8,
				Desc:    "number of concurrent request drivers",
			},
			{
				DestP:   &opts.listenAddr,
				Flag:    "listen-addr",
				Default: ":9090",
				Desc:    "bind address for the /metrics endpoint; empty disables it",
			},
			{
				DestP: &opts.autotunePath,
				Flag:  "autotune-path",
				Desc:  "bolt file for persisted autotune picks; empty disables persistence",
			},
			{
				DestP:   &opts.tracing,
				Flag:    "tracing",
				Default: false,
				Desc:    "report spans to Jaeger, configured through its environment variables",
			},
			{
				DestP:   &opts.logFormat,
				Flag:    "log-format",
				Default: "auto",
				Desc:    "log encoding: auto, console, or json",
			},
			{
				DestP:   &opts.logLevel,
				Flag:    "log-level",
				Default: zapcore.InfoLevel,
				Desc:    "log verbosity",
			},
		},
	}

	cmd, err := cli.NewCommand(viper.New(), prog)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runStress(opts *options) error {
	logConf := logger.NewConfig()
	logConf.Format = opts.logFormat
	logConf.Level = opts.logLevel
	log, err := logConf.New(os.Stdout)
	if err != nil {
		return err
	}
	defer log.Sync()

	if opts.concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", opts.concurrency)
	}

	prof, err := loadProfile(opts.profilePath)
	if err != nil {
		return err
	}

	var tracerCloser io.Closer
	if opts.tracing {
		cfg, err := jaegerconfig.FromEnv()
		if err != nil {
			return err
		}
		tracer, closer, err := cfg.NewTracer()
		if err != nil {
			return err
		}
		opentracing.SetGlobalTracer(tracer)
		tracerCloser = closer
		log.Info("tracing via Jaeger", zap.String("service", cfg.ServiceName))
	}

	compiler := newStressCompiler(prof)
	cache, err := jit.NewCache(compiler, prof.Cache)
	if err != nil {
		return err
	}
	cache.WithLogger(log)

	ctx := context.Background()

	picks := autotune.NewCache()
	var store *autotune.Store
	if opts.autotunePath != "" {
		store = autotune.NewStore(opts.autotunePath)
		store.WithLogger(log)
		if err := store.Open(ctx); err != nil {
			return err
		}
		if err := store.Load(ctx, picks); err != nil {
			log.Warn("Unable to load persisted autotune picks", zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(cache.PrometheusCollectors()...)

	var httpServer *nethttp.Server
	if opts.listenAddr != "" {
		mux := nethttp.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		httpServer = &nethttp.Server{Addr: opts.listenAddr, Handler: mux}
		go func() {
			log.Info("Listening", zap.String("transport", "http"), zap.String("addr", opts.listenAddr))
			if err := httpServer.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
				log.Error("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	runCtx, cancel := context.WithCancel(logger.NewContextWithLogger(ctx, log))
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigs:
			log.Info("Stopping early on signal", zap.String("signal", s.String()))
			cancel()
		case <-runCtx.Done():
		}
	}()

	log.Info("Starting stress run",
		zap.Int("clusters", prof.Clusters),
		zap.Int("signatures_per_cluster", prof.SignaturesPerCluster),
		zap.Int("requests", prof.Requests),
		zap.Strings("modes", prof.Modes),
		zap.Int("concurrency", opts.concurrency),
	)

	var counts tally
	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	perDriver := (prof.Requests + opts.concurrency - 1) / opts.concurrency
	for i := 0; i < opts.concurrency; i++ {
		seed := int64(i + 1)
		g.Go(func() error {
			return drive(gctx, cache, picks, prof, seed, perDriver, &counts)
		})
	}
	runErr := g.Wait()
	took := time.Since(start)

	report(log, cache, picks, compiler, prof, &counts, took)

	var errs error
	if runErr != nil && runErr != context.Canceled {
		errs = multierr.Append(errs, runErr)
	}
	if httpServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 2*time.Second)
		errs = multierr.Append(errs, httpServer.Shutdown(shutdownCtx))
		cancelShutdown()
	}
	errs = multierr.Append(errs, cache.Close())
	if store != nil {
		errs = multierr.Append(errs, store.Flush(ctx, picks))
		errs = multierr.Append(errs, store.Close())
	}
	if tracerCloser != nil {
		errs = multierr.Append(errs, tracerCloser.Close())
	}
	return errs
}

// tally accumulates per-request outcomes across drivers.
type tally struct {
	requests atomic.Int64
	served   atomic.Int64
	deferred atomic.Int64
	failed   atomic.Int64
}

// drive issues requests requests against the cache, picking a cluster, shape,
// and compile mode pseudo-randomly from the profile. Served compilations feed
// the autotune cache so later runs can observe persisted picks.
func drive(ctx context.Context, cache *jit.Cache, picks *autotune.Cache, prof profile, seed int64, requests int, counts *tally) error {
	log := logger.FromContext(ctx)
	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < requests; i++ {
		if ctx.Err() != nil {
			log.Debug("Driver stopping early", zap.Int64("seed", seed), zap.Int("completed", i))
			return nil
		}

		cluster := fmt.Sprintf("cluster_%02d", rng.Intn(prof.Clusters))
		rows := int64(rng.Intn(prof.SignaturesPerCluster) + 1)
		args := []jitcache.Argument{{
			Kind:  jitcache.ArgumentParameter,
			Type:  jitcache.Float32,
			Shape: jitcache.Shape{rows, 128},
		}}
		mode := prof.modes[rng.Intn(len(prof.modes))]

		counts.requests.Add(1)
		res, _, err := cache.Compile(ctx, cluster, args, jitcache.CompileOptions{EntryComputation: true}, mode)
		switch {
		case err != nil:
			counts.failed.Add(1)
		case res != nil:
			counts.served.Add(1)
			key := autotune.KeyFor(cluster, rows, 128)
			if _, ok := picks.Lookup(key); !ok {
				picks.Add(key, autotune.Pick{
					Algorithm:    rng.Int63n(8),
					ScratchBytes: int64(len(res.Object)),
					Runtime:      time.Duration(prof.CompileDelay),
				})
			}
		default:
			counts.deferred.Add(1)
		}
	}
	return nil
}

func report(log *zap.Logger, cache *jit.Cache, picks *autotune.Cache, compiler *stressCompiler, prof profile, counts *tally, took time.Duration) {
	compiles := compiler.compiles.Load()
	log.Info("Stress run complete",
		zap.Duration("took", took),
		zap.String("requests", humanize.Comma(counts.requests.Load())),
		zap.String("served", humanize.Comma(counts.served.Load())),
		zap.String("deferred", humanize.Comma(counts.deferred.Load())),
		zap.String("failed", humanize.Comma(counts.failed.Load())),
		zap.Int("entries", cache.Len()),
		zap.String("compiles", humanize.Comma(compiles)),
		zap.String("artifact_bytes", humanize.Bytes(uint64(compiles)*uint64(prof.ObjectSize))),
		zap.String("autotune_hits", humanize.Comma(picks.Hits())),
		zap.String("autotune_misses", humanize.Comma(picks.Misses())),
	)

	for i := 0; i < prof.Clusters; i++ {
		name := fmt.Sprintf("cluster_%02d", i)
		stats, ok := cache.Stats(name)
		if !ok {
			continue
		}
		log.Info("Cluster statistics",
			zap.String("cluster", name),
			zap.Int64("compile_count", stats.CompileCount),
			zap.Int64("execution_count", stats.ExecutionCount),
			zap.Duration("cumulative_compile_time", stats.CumulativeCompileTime),
			zap.Duration("max_compile_time", stats.MaxCompileTime),
			zap.Bool("megamorphic", stats.Megamorphic),
		)
	}
}

// stressCompiler fabricates compile artifacts after a configurable delay.
// When failEvery is n > 0, every nth compile reports a synthetic error.
type stressCompiler struct {
	objectSize int
	delay      time.Duration
	failEvery  int64

	compiles atomic.Int64
}

func newStressCompiler(prof profile) *stressCompiler {
	return &stressCompiler{
		objectSize: int(prof.ObjectSize),
		delay:      time.Duration(prof.CompileDelay),
		failEvery:  prof.FailEvery,
	}
}

func (c *stressCompiler) Compile(ctx context.Context, opts jitcache.CompileOptions, sig jitcache.Signature, args []jitcache.Argument) (*jitcache.CompilationResult, error) {
	n := c.compiles.Add(1)

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.failEvery > 0 && n%c.failEvery == 0 {
		return nil, fmt.Errorf("synthetic failure compiling %s", sig.HumanString())
	}

	object := make([]byte, c.objectSize)
	if len(object) >= 8 {
		binary.BigEndian.PutUint64(object, sig.Hash())
	}
	return &jitcache.CompilationResult{Object: object}, nil
}

func (c *stressCompiler) BuildExecutable(ctx context.Context, result *jitcache.CompilationResult) (*jitcache.Executable, error) {
	return &jitcache.Executable{Handle: result}, nil
}
