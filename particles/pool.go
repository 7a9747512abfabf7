package particles

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum particle count to dispatch to the pool.
// Below this, running on the calling goroutine is faster than the handoff.
const parallelThreshold = 512

// tileJob names one non-empty tile.
type tileJob struct {
	patch, tile int
	np          int
}

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	x0, y0, z0             []float64
	ex, ey, ez, bx, by, bz []float64
}

func (s *workerScratch) resize(n int) {
	grow := func(b []float64) []float64 {
		if cap(b) < n {
			return make([]float64, n)
		}
		return b[:n]
	}
	s.x0, s.y0, s.z0 = grow(s.x0), grow(s.y0), grow(s.z0)
	s.ex, s.ey, s.ez = grow(s.ex), grow(s.ey), grow(s.ez)
	s.bx, s.by, s.bz = grow(s.bx), grow(s.by), grow(s.bz)
}

// workChunk is a range of jobs for a worker to process.
type workChunk struct {
	start, end int
}

// workerPool runs tile jobs on persistent goroutines. Each job touches only
// its own tile, so jobs need no locking; results that cross tiles are
// combined afterwards on the calling goroutine.
type workerPool struct {
	numWorkers int
	scratches  []workerScratch

	jobs []tileJob
	task func(job tileJob, s *workerScratch)

	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup
	running  bool
}

func newWorkerPool(numWorkers int) *workerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &workerPool{
		numWorkers: numWorkers,
		scratches:  make([]workerScratch, numWorkers),
	}
}

func (p *workerPool) start() {
	if p.running {
		return
	}
	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()
	scratch := &p.scratches[id]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			for _, job := range p.jobs[chunk.start:chunk.end] {
				p.task(job, scratch)
			}
			p.doneChan <- struct{}{}
		}
	}
}

// run executes task for every job and returns when all are done.
func (p *workerPool) run(jobs []tileJob, task func(job tileJob, s *workerScratch)) {
	total := 0
	for _, j := range jobs {
		total += j.np
	}
	if total == 0 {
		return
	}
	if total < parallelThreshold || p.numWorkers == 1 || len(jobs) == 1 {
		for _, job := range jobs {
			task(job, &p.scratches[0])
		}
		return
	}

	p.start()
	p.jobs = jobs
	p.task = task

	// Contiguous chunks holding roughly equal particle counts.
	dispatched := 0
	target := (total + p.numWorkers - 1) / p.numWorkers
	start, acc := 0, 0
	for i, job := range jobs {
		acc += job.np
		if acc >= target || i == len(jobs)-1 {
			p.workChan <- workChunk{start: start, end: i + 1}
			dispatched++
			start, acc = i+1, 0
		}
	}
	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
	p.jobs, p.task = nil, nil
}
