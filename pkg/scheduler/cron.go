package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron wraps robfig/cron with panic recovery. Jobs receive the context given to NewCron.
type Cron struct {
	c   *cron.Cron
	ctx context.Context
}

func NewCron(ctx context.Context, loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Cron{c: c, ctx: ctx}
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop waits for running jobs.
func (cr *Cron) Stop() { <-cr.c.Stop().Done() }

// Add accepts standard five-field specs and descriptors such as "@every 1m".
func (cr *Cron) Add(spec string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(spec, func() { job.Run(cr.ctx) })
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }
