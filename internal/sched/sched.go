// Package sched drives the periodic application of accepted mutations.
// The scheduler only owns the timer; the sweep itself lives in the engine
// and stays directly invokable with an injected clock.
package sched

import (
	"context"
	"log"
	"time"

	"mutaline/internal/engine"
)

const defaultInterval = 24 * time.Hour

type Scheduler struct {
	Engine   engine.Engine
	Interval time.Duration
	Log      *log.Logger

	stop chan struct{}
	done chan struct{}
}

// New builds a scheduler with the interval from the engine config.
func New(e engine.Engine) *Scheduler {
	interval := defaultInterval
	if e.Config != nil && e.Config.Sweep.Interval != "" {
		if d, err := time.ParseDuration(e.Config.Sweep.Interval); err == nil && d > 0 {
			interval = d
		}
	}
	return &Scheduler{Engine: e, Interval: interval}
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.Log != nil {
		s.Log.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Start launches the sweep loop. No-op when the sweep is disabled.
func (s *Scheduler) Start() {
	if !s.Engine.SweepEnabled() {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run()
}

// Stop terminates the loop and waits for an in-flight sweep to reach its
// next iteration boundary.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			res, err := s.Engine.RunSweep(ctx)
			if err != nil {
				s.logf("sweep: %v", err)
				continue
			}
			s.logf("sweep: %d candidates, %d applied, %d failed", res.Candidates, res.Applied, res.Failed)
		}
	}
}
