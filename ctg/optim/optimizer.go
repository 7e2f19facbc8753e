package optim

import "math"

// Optimizer applies one update to its parameter set from the gradients
// accumulated since the last ZeroGrad. The learning rate is supplied per
// step so a schedule can vary it without reaching into the optimizer.
type Optimizer interface {
	Step(lr float64)
	ZeroGrad()
}

// SGD is stochastic gradient descent with optional classical momentum and
// L2 weight decay folded into the gradient.
type SGD struct {
	params      []*Parameter
	momentum    float64
	weightDecay float64
	velocity    [][]float64
}

// NewSGD builds an SGD optimizer over the given parameters. Momentum and
// weight decay of zero disable those terms.
func NewSGD(params []*Parameter, momentum, weightDecay float64) *SGD {
	velocity := make([][]float64, len(params))
	for i, p := range params {
		velocity[i] = make([]float64, len(p.Value.RawMatrix().Data))
	}
	return &SGD{
		params:      params,
		momentum:    momentum,
		weightDecay: weightDecay,
		velocity:    velocity,
	}
}

func (o *SGD) Step(lr float64) {
	for i, p := range o.params {
		value := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		vel := o.velocity[i]
		for j := range value {
			g := grad[j]
			if o.weightDecay > 0 {
				g += o.weightDecay * value[j]
			}
			if o.momentum > 0 {
				vel[j] = o.momentum*vel[j] + g
				g = vel[j]
			}
			value[j] -= lr * g
		}
	}
}

func (o *SGD) ZeroGrad() {
	ZeroGrads(o.params)
}

// AdamW is Adam with decoupled weight decay. Moment estimates are bias
// corrected by step count, so the same instance must drive every step of
// a run.
type AdamW struct {
	params      []*Parameter
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	m           [][]float64
	v           [][]float64
	t           int
}

// NewAdamW builds an AdamW optimizer over the given parameters.
func NewAdamW(params []*Parameter, beta1, beta2, eps, weightDecay float64) *AdamW {
	m := make([][]float64, len(params))
	v := make([][]float64, len(params))
	for i, p := range params {
		n := len(p.Value.RawMatrix().Data)
		m[i] = make([]float64, n)
		v[i] = make([]float64, n)
	}
	return &AdamW{
		params:      params,
		beta1:       beta1,
		beta2:       beta2,
		eps:         eps,
		weightDecay: weightDecay,
		m:           m,
		v:           v,
	}
}

func (o *AdamW) Step(lr float64) {
	o.t++
	bc1 := 1 - math.Pow(o.beta1, float64(o.t))
	bc2 := 1 - math.Pow(o.beta2, float64(o.t))
	for i, p := range o.params {
		value := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		m := o.m[i]
		v := o.v[i]
		for j := range value {
			g := grad[j]
			m[j] = o.beta1*m[j] + (1-o.beta1)*g
			v[j] = o.beta2*v[j] + (1-o.beta2)*g*g
			mHat := m[j] / bc1
			vHat := v[j] / bc2
			update := mHat / (math.Sqrt(vHat) + o.eps)
			if o.weightDecay > 0 {
				update += o.weightDecay * value[j]
			}
			value[j] -= lr * update
		}
	}
}

func (o *AdamW) ZeroGrad() {
	ZeroGrads(o.params)
}
