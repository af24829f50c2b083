// Package paymenttest provides deterministic timers and outcomes for tests
// of code built on the payment package.
package paymenttest

import (
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/topup/internal/payment"
)

// Scheduler is a manual clock. Tasks fire only when Advance moves time past
// their deadline.
type Scheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*task
}

type task struct {
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *task) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewScheduler starts the clock at a fixed instant.
func NewScheduler() *Scheduler {
	return &Scheduler{now: time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)}
}

// AfterFunc registers fn to run d after the current manual time.
func (s *Scheduler) AfterFunc(d time.Duration, fn func()) payment.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &task{at: s.now.Add(d), seq: s.seq, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// Now returns the manual time.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending reports the number of tasks that have neither fired nor stopped.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d and runs due tasks in deadline order.
// Tasks scheduled by a running task fire in the same call if they are due.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		next.fired = true
		s.now = next.at
		s.mu.Unlock()
		next.fn()
	}
}

func (s *Scheduler) nextDueLocked(target time.Time) *task {
	var due []*task
	for _, t := range s.tasks {
		if !t.fired && !t.stopped && !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

// Outcomes replays a fixed sequence of outcomes, then repeats the last one.
type Outcomes struct {
	mu    sync.Mutex
	seq   []payment.Outcome
	draws int
}

// NewOutcomes returns a simulator drawing seq in order.
func NewOutcomes(seq ...payment.Outcome) *Outcomes {
	if len(seq) == 0 {
		seq = []payment.Outcome{payment.OutcomeSuccess}
	}
	return &Outcomes{seq: seq}
}

// Draw returns the next outcome.
func (o *Outcomes) Draw() payment.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.draws
	if i >= len(o.seq) {
		i = len(o.seq) - 1
	}
	o.draws++
	return o.seq[i]
}

// Draws reports how many outcomes were drawn.
func (o *Outcomes) Draws() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.draws
}
