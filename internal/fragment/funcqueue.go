package fragment

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Job is one unit of work on a FuncQueue. It must call next exactly once
// (extra calls are ignored) to let the following job start.
type Job func(next func())

// FuncQueue runs jobs one at a time in the order they were added.
type FuncQueue struct {
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	jobs    []Job
	running bool
}

func NewFuncQueue(name string, logger *zap.Logger) *FuncQueue {
	return &FuncQueue{name: name, logger: logger}
}

func (q *FuncQueue) Name() string { return q.name }

// Add appends a job. It does not start the queue.
func (q *FuncQueue) Add(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
}

// Len returns the number of jobs waiting to run.
func (q *FuncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Running reports whether a job is in progress.
func (q *FuncQueue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Start begins draining the queue. Calling it while the queue is already
// draining is a no-op.
func (q *FuncQueue) Start() {
	q.mu.Lock()
	if q.running || len(q.jobs) == 0 {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.drain()
}

func (q *FuncQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		released := make(chan struct{})
		var once sync.Once
		next := func() { once.Do(func() { close(released) }) }

		q.run(job, next)
		<-released
	}
}

// run calls job and releases the queue if the job panics.
func (q *FuncQueue) run(job Job, next func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued job panicked",
				zap.String("queue", q.name),
				zap.String("panic", fmt.Sprint(r)),
			)
			next()
		}
	}()
	job(next)
}

// Registry holds one FuncQueue per name. Queues with different names run
// independently of each other.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*FuncQueue
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{queues: make(map[string]*FuncQueue), logger: logger}
}

// Get returns the queue for name, creating it on first use.
func (r *Registry) Get(name string) *FuncQueue {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[name]
	if !ok {
		q = NewFuncQueue(name, r.logger)
		r.queues[name] = q
	}
	return q
}
