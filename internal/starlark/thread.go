package starlark

import (
	"sync"

	"go.starlark.net/starlark"
)

// DefaultMaxSteps bounds the work of one formula call.
const DefaultMaxSteps = 1_000_000

// defaultPoolSize is the number of idle threads kept for reuse.
const defaultPoolSize = 10

// ThreadPool hands out Starlark threads for formula calls. Rules evaluated
// in parallel each take their own thread for the duration of one call, and
// every call starts with a fresh step budget.
type ThreadPool struct {
	mu       sync.Mutex
	threads  []*starlark.Thread
	maxSize  int
	maxSteps uint64
}

// NewThreadPool creates a pool keeping at most maxSize idle threads. A call
// that runs more than maxSteps steps is cancelled. Zero values select the
// defaults.
func NewThreadPool(maxSize int, maxSteps uint64) *ThreadPool {
	if maxSize <= 0 {
		maxSize = defaultPoolSize
	}
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	return &ThreadPool{
		threads:  make([]*starlark.Thread, 0, maxSize),
		maxSize:  maxSize,
		maxSteps: maxSteps,
	}
}

// Get takes an idle thread or creates one. name is the formula reference
// and appears in Starlark error messages.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.threads); n > 0 {
		thread := p.threads[n-1]
		p.threads = p.threads[:n-1]
		thread.Name = name
		return thread
	}

	thread := &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, _ string) {},
	}
	thread.SetMaxExecutionSteps(p.maxSteps)
	return thread
}

// Put resets a thread and keeps it for reuse unless the pool is full.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	thread.Name = ""
	thread.Steps = 0
	thread.Uncancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.threads) < p.maxSize {
		p.threads = append(p.threads, thread)
	}
}

// Size returns the number of idle threads.
func (p *ThreadPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}
