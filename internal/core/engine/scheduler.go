package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medcityai/pubgate/internal/core"
)

// Published E-utilities rate tiers.
const (
	KeyedMinInterval     = 110 * time.Millisecond
	AnonymousMinInterval = 350 * time.Millisecond
)

// Job is a unit of deferred work run by the scheduler.
type Job func(ctx context.Context) ([]byte, error)

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Scheduler runs jobs one at a time in FIFO order and keeps consecutive
// dispatches at least MinInterval apart.
type Scheduler struct {
	MinInterval time.Duration
	Clock       func() time.Time
	Sleep       SleepFunc

	// OnDispatch, if set, is called with the time spent waiting for spacing.
	OnDispatch func(wait time.Duration)

	mu           sync.Mutex
	queue        []*scheduledJob
	running      bool
	lastDispatch time.Time
	dispatched   int64
}

type scheduledJob struct {
	ctx    context.Context
	fn     Job
	result []byte
	err    error
	done   chan struct{}
}

// MinIntervalFor returns the dispatch spacing for the configured credential.
func MinIntervalFor(apiKey string) time.Duration {
	if apiKey != "" {
		return KeyedMinInterval
	}
	return AnonymousMinInterval
}

// Submit enqueues fn and returns a channel that receives its outcome.
// The job runs with ctx stripped of cancellation; it is consumed exactly once.
func (s *Scheduler) Submit(ctx context.Context, fn Job) <-chan Outcome {
	if ctx == nil {
		ctx = context.Background()
	}

	job := &scheduledJob{
		ctx:  context.WithoutCancel(ctx),
		fn:   fn,
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.queue = append(s.queue, job)
	start := !s.running
	if start {
		s.running = true
	}
	s.mu.Unlock()

	if start {
		go s.run()
	}

	out := make(chan Outcome, 1)
	go func() {
		<-job.done
		out <- Outcome{Body: job.result, Err: job.err}
	}()
	return out
}

// Do submits fn and waits for its outcome or for ctx to end. A caller that
// stops waiting does not cancel the job.
func (s *Scheduler) Do(ctx context.Context, fn Job) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case outcome := <-s.Submit(ctx, fn):
		return outcome.Body, outcome.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outcome is the settled result of a job.
type Outcome struct {
	Body []byte
	Err  error
}

// State reports a snapshot of the scheduler.
func (s *Scheduler) State() core.DispatchState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := core.DispatchState{
		MinInterval: s.MinInterval,
		Dispatched:  s.dispatched,
		Queued:      len(s.queue),
		Running:     s.running,
	}
	if !s.lastDispatch.IsZero() {
		last := s.lastDispatch
		state.LastDispatch = &last
	}
	return state
}

func (s *Scheduler) run() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		last := s.lastDispatch
		s.mu.Unlock()

		var waited time.Duration
		if !last.IsZero() {
			if elapsed := s.now().Sub(last); elapsed < s.MinInterval {
				waited = s.MinInterval - elapsed
				_ = s.sleep(context.Background(), waited)
			}
		}

		s.mu.Lock()
		s.lastDispatch = s.now()
		s.dispatched++
		s.mu.Unlock()

		if s.OnDispatch != nil {
			s.OnDispatch(waited)
		}

		job.result, job.err = s.execute(job)
		close(job.done)
	}
}

func (s *Scheduler) execute(job *scheduledJob) (body []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			body = nil
			err = &RequestError{Kind: KindNetwork, Err: panicError{value: r}}
		}
	}()
	return job.fn(job.ctx)
}

func (s *Scheduler) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s != nil && s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("job panicked: %v", p.value)
}
