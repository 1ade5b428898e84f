package jit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ClusterStats is a point-in-time snapshot of one cluster's compile
// statistics.
type ClusterStats struct {
	// CompileCount is the number of compilation attempts for the cluster,
	// successful or not.
	CompileCount int64

	// ExecutionCount is the number of times the cluster has been requested.
	ExecutionCount int64

	// CumulativeCompileTime is the total time spent compiling the cluster.
	CumulativeCompileTime time.Duration

	// MaxCompileTime is the longest single compilation.
	MaxCompileTime time.Duration

	// Megamorphic reports whether the cluster has been demoted as too
	// variable to profitably compile.
	Megamorphic bool
}

// statsTracker aggregates compile statistics per cluster name, independent
// of signatures, and owns the megamorphic demotion decision. It has its own
// lock; when an entry lock is also needed the entry lock is taken first.
type statsTracker struct {
	mu       sync.Mutex
	clusters map[string]*clusterStats

	// Demotion cutoffs, fixed at construction. A zero compileTime disables
	// the cumulative-time trigger.
	compileCount            int64
	minExecutionsPerCompile int64
	compileTime             time.Duration

	logger  *zap.Logger
	metrics *cacheMetrics
}

type clusterStats struct {
	compileCount          int64
	executionCount        int64
	cumulativeCompileTime time.Duration
	maxCompileTime        time.Duration

	// megamorphic is one-way: once set it survives until reset.
	megamorphic bool
}

func newStatsTracker(c Config, metrics *cacheMetrics) *statsTracker {
	return &statsTracker{
		clusters:                make(map[string]*clusterStats),
		compileCount:            c.MegamorphicCompileCount,
		minExecutionsPerCompile: c.MegamorphicMinExecutionsPerCompile,
		compileTime:             time.Duration(c.MegamorphicCompileTime),
		logger:                  zap.NewNop(),
		metrics:                 metrics,
	}
}

// recordLookup counts one request for name and reports whether the cluster
// is megamorphic.
func (t *statsTracker) recordLookup(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.cluster(name)
	s.executionCount++
	t.evaluate(name, s)
	return s.megamorphic
}

// recordCompile counts one compilation attempt for name that took d.
func (t *statsTracker) recordCompile(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.cluster(name)
	s.compileCount++
	s.cumulativeCompileTime += d
	if d > s.maxCompileTime {
		s.maxCompileTime = d
	}
	t.evaluate(name, s)
}

// cluster returns the record for name, creating it on first use.
// The caller must hold t.mu.
func (t *statsTracker) cluster(name string) *clusterStats {
	s := t.clusters[name]
	if s == nil {
		s = &clusterStats{}
		t.clusters[name] = s
	}
	return s
}

// evaluate applies the demotion heuristics to s. The caller must hold t.mu.
func (t *statsTracker) evaluate(name string, s *clusterStats) {
	if s.megamorphic {
		return
	}

	tooFrequent := s.compileCount > t.compileCount &&
		s.executionCount < t.minExecutionsPerCompile*s.compileCount
	tooSlow := t.compileTime > 0 && s.cumulativeCompileTime > t.compileTime
	if !tooFrequent && !tooSlow {
		return
	}

	s.megamorphic = true
	t.metrics.megamorphic.Inc()
	t.logger.Info("marking cluster as megamorphic",
		zap.String("cluster", name),
		zap.Int64("compile_count", s.compileCount),
		zap.Int64("execution_count", s.executionCount),
		zap.Duration("cumulative_compile_time", s.cumulativeCompileTime))
}

// snapshot returns the statistics recorded for name.
func (t *statsTracker) snapshot(name string) (ClusterStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.clusters[name]
	if !ok {
		return ClusterStats{}, false
	}
	return ClusterStats{
		CompileCount:          s.compileCount,
		ExecutionCount:        s.executionCount,
		CumulativeCompileTime: s.cumulativeCompileTime,
		MaxCompileTime:        s.maxCompileTime,
		Megamorphic:           s.megamorphic,
	}, true
}

// reset drops all statistics, clearing megamorphic demotions with them.
func (t *statsTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clusters = make(map[string]*clusterStats)
	t.metrics.megamorphic.Set(0)
}
