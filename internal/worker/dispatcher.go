// Package worker runs assistant turns on a bounded pool while keeping every
// chat strictly sequential: at most one job per key executes at a time, and
// keys take fair round-robin turns at the pool.
package worker

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// Job is one unit of work bound to a serialization key, usually
// "email/chat_id". Run carries the whole turn as a closure.
type Job struct {
	Key  string
	Type string
	Run  func()
}

// ErrQueueFull is returned when the intake queue cannot absorb another job.
var ErrQueueFull = errors.New("job queue full")

type keyQueue struct {
	jobs     []Job
	enqueued bool // key is in the ready list
}

type Dispatcher struct {
	pool     *workerPool
	jobQueue chan Job

	mu        sync.Mutex
	queues    map[string]*keyQueue // pending jobs per key
	ready     *list.List           // round-robin order of dispatchable keys
	positions map[string]*list.Element
	inflight  map[string]bool // keys with a job currently running

	notify chan struct{}
	quit   chan struct{}
}

// NewDispatcher starts the scheduling loop with the given pool bounds.
func NewDispatcher(minWorkers, maxWorkers, queueSize int, idleTimeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		jobQueue:  make(chan Job, queueSize),
		queues:    make(map[string]*keyQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		inflight:  make(map[string]bool),
		notify:    make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	d.pool = newWorkerPool(minWorkers, maxWorkers, idleTimeout, d)
	go d.run()
	return d
}

// Submit hands a job to the scheduler without blocking.
func (d *Dispatcher) Submit(job Job) error {
	if job.Run == nil {
		return errors.New("job has no work")
	}
	select {
	case d.jobQueue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop ends the scheduling loop. Already dispatched jobs finish.
func (d *Dispatcher) Stop() {
	close(d.quit)
	d.pool.stop()
}

func (d *Dispatcher) run() {
	for {
		if !d.dispatchOne() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.notify:
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			return
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Key]
	if q == nil {
		q = &keyQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued || d.inflight[job.Key] {
		// key is already scheduled or running; finish() re-enqueues it
		return
	}
	q.enqueued = true
	d.positions[job.Key] = d.ready.PushBack(job.Key)
}

// dispatchOne picks the front ready key and sends its next job to the pool.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]

	// One job per key in flight. The key leaves the ready list either way;
	// finish() puts it back when more jobs wait.
	d.inflight[key] = true
	q.enqueued = false
	d.ready.Remove(elem)
	delete(d.positions, key)
	if len(q.jobs) == 0 {
		delete(d.queues, key)
	}
	d.mu.Unlock()

	d.pool.submit(job)
	return true
}

// finish is called by workers after a job returns.
func (d *Dispatcher) finish(key string) {
	d.mu.Lock()
	delete(d.inflight, key)
	if q, ok := d.queues[key]; ok && len(q.jobs) > 0 && !q.enqueued {
		q.enqueued = true
		d.positions[key] = d.ready.PushBack(key)
	}
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}
