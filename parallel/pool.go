// Package parallel runs row-banded grid computations on a persistent worker pool.
//
// Callers follow a snapshot -> compute -> apply discipline: workers only read
// a frozen source and write disjoint ranges of a destination, so results do
// not depend on the number of workers.
package parallel

import (
	"runtime"
	"sync"
)

// Threshold is the minimum row count dispatched to workers.
// Below this, Rows runs inline on the calling goroutine.
const Threshold = 64

// workChunk is a half-open range of rows for one worker.
type workChunk struct {
	start, end int
	fn         func(start, end int)
}

// Pool is a persistent set of worker goroutines. A nil *Pool runs inline.
// Rows must not be called concurrently on the same Pool.
type Pool struct {
	numWorkers int

	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool
}

// New returns a pool of n workers. n <= 0 selects GOMAXPROCS.
// Workers start lazily on the first parallel dispatch.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{numWorkers: n}
}

// Workers returns the worker count. A nil pool reports 1.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.numWorkers
}

// start launches the worker goroutines.
func (p *Pool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Close signals all workers to exit and waits for them. The pool may be
// reused afterwards; workers restart on the next dispatch.
func (p *Pool) Close() {
	if p == nil || !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// Rows calls fn over [0, n) split into contiguous bands, one per worker,
// and returns when every band is done. fn must only write state owned by
// its band.
func (p *Pool) Rows(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if p == nil || p.numWorkers == 1 || n < Threshold {
		fn(0, n)
		return
	}

	p.start()

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end, fn: fn}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}
