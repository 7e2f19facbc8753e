package optim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Parameter is one trainable weight matrix paired with its gradient
// accumulator. Value and Grad always share dimensions.
type Parameter struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// NewParameter allocates a zero-valued parameter of the given shape.
func NewParameter(name string, rows, cols int) *Parameter {
	return &Parameter{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// ZeroGrad clears the gradient accumulator.
func (p *Parameter) ZeroGrad() {
	p.Grad.Zero()
}

// Clone returns a deep copy with a fresh zero gradient.
func (p *Parameter) Clone() *Parameter {
	rows, cols := p.Value.Dims()
	clone := &Parameter{
		Name:  p.Name,
		Value: mat.DenseCopyOf(p.Value),
		Grad:  mat.NewDense(rows, cols, nil),
	}
	return clone
}

// ShareValue returns a parameter that aliases this parameter's value
// storage but accumulates into its own gradient buffer. Data-parallel
// replicas are built this way: concurrent forward passes read the shared
// weights while each replica's backward pass writes a private gradient.
func (p *Parameter) ShareValue() *Parameter {
	rows, cols := p.Value.Dims()
	return &Parameter{
		Name:  p.Name,
		Value: p.Value,
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// ZeroGrads clears every gradient in the set.
func ZeroGrads(params []*Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// GradNorm returns the global L2 norm across all parameter gradients.
func GradNorm(params []*Parameter) float64 {
	var sum float64
	for _, p := range params {
		data := p.Grad.RawMatrix().Data
		for _, g := range data {
			sum += g * g
		}
	}
	return math.Sqrt(sum)
}

// ClipGradNorm scales all gradients in place so their global norm does not
// exceed max. A non-positive max disables clipping. Returns the norm
// measured before any scaling.
func ClipGradNorm(params []*Parameter, max float64) float64 {
	norm := GradNorm(params)
	if max <= 0 || norm <= max {
		return norm
	}
	scale := max / (norm + 1e-6)
	for _, p := range params {
		data := p.Grad.RawMatrix().Data
		for i := range data {
			data[i] *= scale
		}
	}
	return norm
}
