package worker

import (
	"sync"
	"time"
)

const defaultWorkerIdle = 30 * time.Second

// workerPool grows on demand up to max workers and lets workers above min
// exit after sitting idle.
type workerPool struct {
	mu      sync.Mutex
	work    chan Job
	min     int
	max     int
	running int
	expiry  time.Duration
	owner   *Dispatcher
	quit    chan struct{}
}

func newWorkerPool(minWorkers, maxWorkers int, idle time.Duration, owner *Dispatcher) *workerPool {
	if minWorkers < 1 {
		minWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	p := &workerPool{
		work:   make(chan Job),
		min:    minWorkers,
		max:    maxWorkers,
		expiry: idle,
		owner:  owner,
		quit:   make(chan struct{}),
	}
	for i := 0; i < minWorkers; i++ {
		p.spawnWorker()
	}
	return p
}

// submit hands a job to an idle worker, growing the pool first when everyone
// is busy. Blocks only when the pool is at max and fully occupied.
func (p *workerPool) submit(job Job) {
	select {
	case p.work <- job:
		return
	default:
	}
	p.spawnWorker()
	select {
	case p.work <- job:
	case <-p.quit:
	}
}

func (p *workerPool) spawnWorker() {
	p.mu.Lock()
	if p.running >= p.max {
		p.mu.Unlock()
		return
	}
	p.running++
	p.mu.Unlock()
	go p.workerLoop()
}

func (p *workerPool) workerLoop() {
	idle := time.NewTimer(p.expiry)
	defer idle.Stop()
	for {
		select {
		case job := <-p.work:
			p.runJob(job)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.expiry)
		case <-idle.C:
			if p.retire() {
				return
			}
			idle.Reset(p.expiry)
		case <-p.quit:
			p.mu.Lock()
			p.running--
			p.mu.Unlock()
			return
		}
	}
}

func (p *workerPool) runJob(job Job) {
	defer p.owner.finish(job.Key)
	debugLog("[worker] running job %s for key %s", job.Type, job.Key)
	job.Run()
}

// retire lets a worker above the minimum exit after idling.
func (p *workerPool) retire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running <= p.min {
		return false
	}
	p.running--
	return true
}

func (p *workerPool) stop() {
	close(p.quit)
}
