package optim

import "math"

// Scheduler produces the learning rate for the current step. LR reports
// the rate to use now and Step advances the schedule, mirroring the usual
// optimizer-then-scheduler call order inside a training step.
type Scheduler interface {
	LR() float64
	Step()
}

// WarmupCosine ramps linearly from zero to the base rate over the warmup
// steps, then follows a half cosine down to the minimum rate at the
// horizon. Past the horizon the rate stays at the minimum.
type WarmupCosine struct {
	base   float64
	min    float64
	warmup int
	total  int
	step   int
}

// NewWarmupCosine builds a warmup plus cosine decay schedule over total
// steps. A warmup of zero starts directly on the cosine arc.
func NewWarmupCosine(base, min float64, warmup, total int) *WarmupCosine {
	if total < warmup {
		total = warmup
	}
	return &WarmupCosine{base: base, min: min, warmup: warmup, total: total}
}

func (s *WarmupCosine) LR() float64 {
	if s.warmup > 0 && s.step < s.warmup {
		return s.base * float64(s.step) / float64(s.warmup)
	}
	if s.step >= s.total {
		return s.min
	}
	span := s.total - s.warmup
	if span < 1 {
		span = 1
	}
	progress := float64(s.step-s.warmup) / float64(span)
	return s.min + 0.5*(s.base-s.min)*(1+math.Cos(math.Pi*progress))
}

func (s *WarmupCosine) Step() {
	s.step++
}

// Constant holds the base rate for every step.
type Constant struct {
	base float64
}

func NewConstant(base float64) *Constant {
	return &Constant{base: base}
}

func (s *Constant) LR() float64 { return s.base }

func (s *Constant) Step() {}
