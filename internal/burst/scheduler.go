// Package burst coordinates background completions for interactive
// surfaces. At most one burst runs at a time, and a burst started for text
// the user has since edited is reported stale so its result is dropped.
package burst

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samcharles93/charcomplete/internal/logger"
)

// Func produces a completion for input.
type Func func(ctx context.Context, input string) (string, error)

// Job is one burst handed out by Next.
type Job struct {
	Token uint64
	Input string
}

type Completion struct {
	Job
	Output   string
	Err      error
	Duration time.Duration
	// Stale is set when Update was called after the job was issued. The
	// output must not be applied.
	Stale bool
}

type Scheduler struct {
	fn  Func
	log logger.Logger

	mu       sync.Mutex
	input    string
	token    uint64
	dirty    bool
	inFlight bool
	cancel   context.CancelFunc
}

func New(fn Func, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{fn: fn, log: log}
}

// Update records the current input and requests a new burst. A burst still
// running is cancelled and its completion will be stale.
func (s *Scheduler) Update(input string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = input
	s.token++
	s.dirty = true
	if s.cancel != nil {
		s.cancel()
	}
	return s.token
}

// Next issues a job when input changed and nothing is in flight. Call it on
// every poll tick.
func (s *Scheduler) Next() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty || s.inFlight {
		return Job{}, false
	}
	s.dirty = false
	s.inFlight = true
	return Job{Token: s.token, Input: s.input}, true
}

// Run executes job. A failed, current burst leaves the input dirty so the
// next poll retries it.
func (s *Scheduler) Run(ctx context.Context, job Job) Completion {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if job.Token == s.token {
		s.cancel = cancel
	} else {
		cancel()
	}
	s.mu.Unlock()

	start := time.Now()
	out, err := s.fn(ctx, job.Input)
	c := Completion{Job: job, Output: out, Err: err, Duration: time.Since(start)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.cancel = nil
	c.Stale = job.Token != s.token
	switch {
	case c.Stale:
		s.log.Debug("dropping stale burst", "token", job.Token, "latest", s.token)
	case err != nil:
		s.dirty = true
		if !errors.Is(err, context.Canceled) {
			s.log.Warn("burst failed", "token", job.Token, "error", err)
		}
	}
	return c
}

// Latest is the token of the most recent Update.
func (s *Scheduler) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Scheduler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}
