package jit

import (
	"sync"
	"sync/atomic"

	"github.com/jitcache/jitcache"
)

// compileState describes an entry's progress through compilation.
type compileState int

const (
	// stateUncompiled means no compilation has been attempted.
	stateUncompiled compileState = iota

	// stateCompiling means a compilation is in progress.
	stateCompiling

	// stateCompiled is terminal: the entry holds either an artifact or the
	// error that ended its only compilation attempt.
	stateCompiled
)

func (s compileState) String() string {
	switch s {
	case stateUncompiled:
		return "uncompiled"
	case stateCompiling:
		return "compiling"
	case stateCompiled:
		return "compiled"
	default:
		return "unknown"
	}
}

// entry is one cache slot: everything known about a single signature.
//
// All fields except requestCount are guarded by mu. State only moves
// forward: uncompiled to compiling to compiled. A failed compilation lands
// in compiled with a non-nil status and is never retried.
type entry struct {
	mu sync.Mutex

	// requestCount is incremented on every lookup of the signature and is
	// read and written without taking mu.
	requestCount atomic.Int64

	state compileState

	// status is the terminal outcome of the compilation attempt. It is
	// replayed to every caller once set.
	status error

	result     *jitcache.CompilationResult
	executable *jitcache.Executable
}

func newEntry() *entry {
	return &entry{state: stateUncompiled}
}

// entrySnapshot is a consistent copy of an entry's guarded fields.
type entrySnapshot struct {
	state      compileState
	status     error
	result     *jitcache.CompilationResult
	executable *jitcache.Executable
}

// snapshot returns a consistent read of the entry. It must not be called
// with e.mu held.
func (e *entry) snapshot() entrySnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return entrySnapshot{
		state:      e.state,
		status:     e.status,
		result:     e.result,
		executable: e.executable,
	}
}
