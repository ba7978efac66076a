package orchestrator

import "sync"

// queue serializes work per identity while allowing unrelated
// identities to proceed concurrently, under a global concurrency cap.
// Messages for one identity run in enqueue order.
type queue struct {
	mu      sync.Mutex
	sem     chan struct{}
	pending map[string][]func()
	active  map[string]bool
	wg      sync.WaitGroup
}

func newQueue(maxConcurrent int) *queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &queue{
		sem:     make(chan struct{}, maxConcurrent),
		pending: make(map[string][]func()),
		active:  make(map[string]bool),
	}
}

// enqueue adds a task for the identity and starts a drainer if one is
// not already running for it.
func (q *queue) enqueue(identity string, task func()) {
	q.mu.Lock()
	q.pending[identity] = append(q.pending[identity], task)
	if q.active[identity] {
		q.mu.Unlock()
		return
	}
	q.active[identity] = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.drain(identity)
}

func (q *queue) drain(identity string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		tasks := q.pending[identity]
		if len(tasks) == 0 {
			q.active[identity] = false
			delete(q.pending, identity)
			q.mu.Unlock()
			return
		}
		task := tasks[0]
		q.pending[identity] = tasks[1:]
		q.mu.Unlock()

		q.sem <- struct{}{}
		task()
		<-q.sem
	}
}

// wait blocks until every queued task has finished.
func (q *queue) wait() {
	q.wg.Wait()
}
