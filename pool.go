package aidra

import "sync"

// Worker is an opaque pool slot. Its zero value is valid; callers should
// not construct one directly outside WorkerPool. Owner and Workflow are
// annotated on checkout and cleared on return, so a mid-run worker can be
// traced back to the agent and workflow holding it.
type Worker struct {
	id       int
	owner    string
	workflow string
}

// ID returns the worker's stable slot index, useful for logging.
func (w Worker) ID() int { return w.id }

// Owner returns the agent ID that currently holds this worker, or "" if
// the worker isn't checked out.
func (w Worker) Owner() string { return w.owner }

// Workflow returns the name of the workflow this worker is running, or ""
// if the worker isn't checked out.
func (w Worker) Workflow() string { return w.workflow }

// WorkerPool is a fixed-size, non-blocking pool arbitrating which caller
// may run a workflow at a time. CheckoutWorker never blocks: it fails fast
// with ErrPoolExhausted when every slot is in use, rather than queuing.
type WorkerPool struct {
	mu    sync.Mutex
	free  []Worker
}

// NewWorkerPool constructs a pool with size slots. size<=0 uses DefaultPoolSize.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	free := make([]Worker, size)
	for i := range free {
		free[i] = Worker{id: i}
	}
	return &WorkerPool{free: free}
}

// CheckoutWorker pops a free worker and annotates it as owned by agentID
// for the named workflow, or returns ErrPoolExhausted if none is available.
// Never blocks and never queues.
func (p *WorkerPool) CheckoutWorker(agentID, workflow string) (Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return Worker{}, ErrPoolExhausted
	}
	last := len(p.free) - 1
	w := p.free[last]
	p.free = p.free[:last]
	w.owner = agentID
	w.workflow = workflow
	return w, nil
}

// ReturnWorker clears w's owner/workflow annotation and pushes it back onto
// the free stack. Idempotent: returning a worker whose slot is already free
// leaves the pool unchanged.
func (p *WorkerPool) ReturnWorker(w Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.free {
		if f.id == w.id {
			return
		}
	}
	w.owner = ""
	w.workflow = ""
	p.free = append(p.free, w)
}

// Available reports the current count of free slots.
func (p *WorkerPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
