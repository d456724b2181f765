package scheduler

import (
	"context"
	"sync"
	"time"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// Scheduler runs interval jobs until its context is cancelled.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(parent context.Context) *Scheduler {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{ctx: ctx, cancel: cancel}
}

// Stop cancels all loops and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Every runs job on each tick of d. With immediate set, the first run happens right away.
func (s *Scheduler) Every(d time.Duration, immediate bool, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loopEvery(d, immediate, job)
	}()
}

func (s *Scheduler) OnceAfter(d time.Duration, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
		case <-time.After(d):
			job.Run(s.ctx)
		}
	}()
}

func (s *Scheduler) loopEvery(d time.Duration, immediate bool, job Job) {
	if immediate {
		job.Run(s.ctx)
	}
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			job.Run(s.ctx)
		}
	}
}
