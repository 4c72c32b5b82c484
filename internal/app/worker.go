package app

import (
	"errors"
	"sync"
)

// ErrStopped is returned for work submitted after the app was closed.
var ErrStopped = errors.New("app stopped")

// worker runs submitted jobs one at a time on a single goroutine.
type worker struct {
	jobs chan func()
	quit chan struct{}
	once sync.Once
}

func newWorker() *worker {
	w := &worker{
		jobs: make(chan func()),
		quit: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) run() {
	for {
		select {
		case job := <-w.jobs:
			job()
		case <-w.quit:
			return
		}
	}
}

// do runs fn on the worker and waits for it to finish. Must not be called
// from inside a job.
func (w *worker) do(fn func()) error {
	done := make(chan struct{})
	job := func() {
		defer close(done)
		fn()
	}

	select {
	case w.jobs <- job:
	case <-w.quit:
		return ErrStopped
	}

	<-done
	return nil
}

func (w *worker) stop() {
	w.once.Do(func() { close(w.quit) })
}
