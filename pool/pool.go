package pool

import (
	"sync"

	"github.com/pkg/errors"
)

var ErrPoolClosed = errors.New("pool closed")

type Job func()

// Pool runs jobs on a fixed set of workers.
type Pool struct {
	jobs chan chan Job
	quit chan struct{}
	once sync.Once
}

// Call hands job to the next idle worker. It blocks until a worker is
// available.
func (a *Pool) Call(job Job) error {
	select {
	case <-a.quit:
		return ErrPoolClosed
	default:
	}
	select {
	case <-a.quit:
		return ErrPoolClosed
	case worker := <-a.jobs:
		worker <- job
		return nil
	}
}

// Run calls every job and waits for all of them to complete.
func (a *Pool) Run(jobs ...Job) error {
	var wg sync.WaitGroup
	for _, job := range jobs {
		job := job
		wg.Add(1)
		err := a.Call(func() {
			defer wg.Done()
			job()
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return nil
}

func (a *Pool) Cancel() {
	a.once.Do(func() { close(a.quit) })
}

func NewPool(count int) *Pool {
	if count < 1 {
		count = 1
	}
	c := &Pool{
		jobs: make(chan chan Job),
		quit: make(chan struct{}),
	}

	for i := 0; i < count; i++ {
		jobs := make(chan Job)
		go func() {
			for {
				select {
				case <-c.quit:
					return
				case c.jobs <- jobs:
				}

				job := <-jobs
				job()
			}
		}()
	}
	return c
}
