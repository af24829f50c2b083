package payment

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Outcome is the result of one simulated payment call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

// Simulator stands in for the remote payment backend.
type Simulator interface {
	Draw() Outcome
}

// SimulatorFunc adapts a function to Simulator.
type SimulatorFunc func() Outcome

// Draw calls f.
func (f SimulatorFunc) Draw() Outcome { return f() }

// DefaultSuccessThreshold is the probability of a successful draw.
const DefaultSuccessThreshold = 0.5

// RandomSimulator succeeds when a uniform draw in [0,1) falls below Threshold.
type RandomSimulator struct {
	Threshold float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomSimulator seeds a simulator from the current time.
func NewRandomSimulator(threshold float64) *RandomSimulator {
	seed := uint64(time.Now().UnixNano())
	return NewSeededSimulator(threshold, seed)
}

// NewSeededSimulator returns a reproducible simulator.
func NewSeededSimulator(threshold float64, seed uint64) *RandomSimulator {
	return &RandomSimulator{
		Threshold: threshold,
		rnd:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Draw samples an outcome.
func (s *RandomSimulator) Draw() Outcome {
	s.mu.Lock()
	v := s.rnd.Float64()
	s.mu.Unlock()
	return OutcomeFor(v, s.Threshold)
}

// OutcomeFor maps a drawn value to an outcome: success iff v < threshold.
func OutcomeFor(v, threshold float64) Outcome {
	if v < threshold {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
