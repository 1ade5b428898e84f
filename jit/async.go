package jit

import (
	"sync"

	"go.uber.org/zap"
)

// asyncJob is one accepted background compilation.
type asyncJob func()

// asyncCoordinator runs accepted jobs on a fixed pool of workers. In-flight
// accounting is a token channel: a token is held from acceptance until the
// job finishes, so len(tokens) is the number of in-flight jobs and a full
// channel means the cap is reached.
type asyncCoordinator struct {
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	queue  chan asyncJob
	tokens chan struct{}

	wg sync.WaitGroup
}

// newAsyncCoordinator starts workers goroutines consuming the job queue.
// The queue buffer matches the token capacity, so an accepted job is always
// enqueued without blocking.
func newAsyncCoordinator(workers, maxInFlight int) *asyncCoordinator {
	a := &asyncCoordinator{
		logger: zap.NewNop(),
		queue:  make(chan asyncJob, maxInFlight),
		tokens: make(chan struct{}, maxInFlight),
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

// submit offers a job to the pool. It returns false without blocking when
// the in-flight cap is reached or the coordinator is closed; the caller
// treats that as "try again later", not as an error.
func (a *asyncCoordinator) submit(job asyncJob) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false
	}

	select {
	case a.tokens <- struct{}{}:
	default:
		return false
	}

	a.queue <- job
	return true
}

func (a *asyncCoordinator) worker() {
	defer a.wg.Done()
	for job := range a.queue {
		job()
		<-a.tokens
	}
}

// inFlight returns the number of accepted jobs that have not finished.
func (a *asyncCoordinator) inFlight() int {
	return len(a.tokens)
}

// close stops intake, lets already-accepted jobs run to completion, and
// waits for the workers to exit.
func (a *asyncCoordinator) close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Debug("background compilation pool drained")
}
