package pipeline

import (
	"context"
	"sync"
)

// workerPool distributes jobs across a fixed number of workers and collects
// their results. Jobs submitted after ctx is done are not started; the
// worker function sees ctx and is expected to return promptly once it is
// cancelled.
type workerPool[Job any, Result any] struct {
	numWorkers int
	jobs       chan Job
	results    chan Result
	wg         sync.WaitGroup
}

// newWorkerPool creates a pool with numWorkers workers (at least one), sized
// down to numJobs when there are fewer jobs than workers.
func newWorkerPool[Job any, Result any](numWorkers, numJobs int) *workerPool[Job, Result] {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if numJobs > 0 {
		numWorkers = min(numWorkers, numJobs)
	}

	return &workerPool[Job, Result]{
		numWorkers: numWorkers,
		jobs:       make(chan Job, numJobs),
		results:    make(chan Result, numJobs),
	}
}

// Start launches the workers. skip is called instead of fn for jobs taken
// off the queue after ctx is done.
func (p *workerPool[Job, Result]) Start(ctx context.Context, fn func(context.Context, Job) Result, skip func(Job) Result) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				if ctx.Err() != nil {
					p.results <- skip(job)
					continue
				}
				p.results <- fn(ctx, job)
			}
		}()
	}
}

// Submit adds a job to the queue.
func (p *workerPool[Job, Result]) Submit(job Job) {
	p.jobs <- job
}

// Close closes the job queue. The results channel is closed once every
// worker has finished.
func (p *workerPool[Job, Result]) Close() {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Results returns the results channel.
func (p *workerPool[Job, Result]) Results() <-chan Result {
	return p.results
}
