// Package scheduler runs the periodic jobs that drive the stream: price
// ticks, market overview, sentiment, news and strategy updates.
//
// Each job owns one goroutine and one ticker. A failing or panicking run
// is logged and counted; the loop always continues with the next tick.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"coinstream/internal/logger"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	// RunAtStart fires the job once immediately instead of waiting a full
	// interval.
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Scheduler runs a fixed set of jobs until its context is cancelled.
type Scheduler struct {
	jobs []Job
	log  *slog.Logger
	wg   sync.WaitGroup

	// OnRun is called after every run with its duration and result (optional).
	OnRun func(job string, d time.Duration, err error)
}

// New creates an empty scheduler.
func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{log: log.With("component", "scheduler")}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(j Job) {
	if j.Interval <= 0 {
		panic(fmt.Sprintf("scheduler: job %q has non-positive interval %s", j.Name, j.Interval))
	}
	if j.Run == nil {
		panic(fmt.Sprintf("scheduler: job %q has no Run func", j.Name))
	}
	s.jobs = append(s.jobs, j)
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

// Start launches every job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.log.Info("scheduler started", "jobs", s.Jobs())
}

// Wait blocks until every job loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	if j.RunAtStart {
		s.runOnce(ctx, j)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

// runOnce executes one run of j, converting a panic into an error.
func (s *Scheduler) runOnce(ctx context.Context, j Job) (err error) {
	start := time.Now()
	ctx = logger.WithRunID(ctx, logger.NewRunID(j.Name, start))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, r)
			s.log.Error("job panic", append(logger.Attrs(ctx), "job", j.Name, "panic", r, "stack", string(debug.Stack()))...)
		}
		d := time.Since(start)
		if err != nil && ctx.Err() == nil {
			s.log.Warn("job failed", append(logger.Attrs(ctx), "job", j.Name, "error", err, "duration", d)...)
		}
		if s.OnRun != nil {
			s.OnRun(j.Name, d, err)
		}
	}()

	return j.Run(ctx)
}

// Job names, also used as metric labels.
const (
	JobPriceTick      = "price_tick"
	JobMarketOverview = "market_overview"
	JobSentiment      = "sentiment"
	JobNews           = "news"
	JobStrategy       = "strategy"
)

// Intervals are the periods of the standard jobs.
type Intervals struct {
	Price     time.Duration
	Overview  time.Duration
	Sentiment time.Duration
	News      time.Duration
	Strategy  time.Duration
}

// StandardJobs returns the five stream jobs. Only the price tick fires at
// start; the feeds wait one interval.
func StandardJobs(prices *PriceTicker, feeds *Feeds, iv Intervals) []Job {
	return []Job{
		{Name: JobPriceTick, Interval: iv.Price, RunAtStart: true, Run: prices.Run},
		{Name: JobMarketOverview, Interval: iv.Overview, Run: feeds.Overview},
		{Name: JobSentiment, Interval: iv.Sentiment, Run: feeds.Sentiment},
		{Name: JobNews, Interval: iv.News, Run: feeds.News},
		{Name: JobStrategy, Interval: iv.Strategy, Run: feeds.Strategy},
	}
}
