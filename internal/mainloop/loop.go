package mainloop

import (
	"sync"

	"luascript-server/internal/logger"
)

// Loop executes queued jobs one at a time on a single goroutine. Host
// objects reachable from scripts are only ever touched from here, which
// keeps them free of locking concerns.
type Loop struct {
	jobs     chan func()
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a loop with the given queue capacity
func New(queueSize int) *Loop {
	return &Loop{
		jobs:     make(chan func(), queueSize),
		stopChan: make(chan struct{}),
	}
}

// Start begins processing jobs
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop shuts the loop down. Queued jobs that have not started are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
		logger.Debug("Main loop stopped")
	})
}

// Queue submits a job for execution. Returns false if the loop is stopped
// or the queue is full.
func (l *Loop) Queue(job func()) bool {
	select {
	case l.jobs <- job:
		return true
	case <-l.stopChan:
		logger.Warn("Main loop is stopped, job rejected")
		return false
	default:
		logger.Warn("Main loop queue full, dropping job")
		return false
	}
}

func (l *Loop) run() {
	defer l.wg.Done()

	for {
		select {
		case job := <-l.jobs:
			job()
		case <-l.stopChan:
			return
		}
	}
}
