// Package outputs converts estimator state snapshots into output representations. Every stage
// maps a value and propagates its covariance to first order as J·Σ·Jᵀ, where J is the
// Jacobian of the state mapping on the respective manifolds.
package outputs

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// jacobianStep is the finite difference step on the tangent space.
const jacobianStep = 1e-6

// Manifold is a value with a local tangent parametrization of dimension Dim.
type Manifold[T any] interface {
	Dim() int
	Plus(delta []float64) T
	Minus(ref T) []float64
}

// Stage is one output conversion: a state mapping paired with its covariance propagation.
type Stage[In, Out any] interface {
	TransformState(in In) Out
	TransformCovariance(in In, cov mat.Symmetric) (*mat.SymDense, error)
}

// Apply runs both halves of a stage.
func Apply[In, Out any](s Stage[In, Out], in In, cov mat.Symmetric) (Out, *mat.SymDense, error) {
	out := s.TransformState(in)
	outCov, err := s.TransformCovariance(in, cov)
	return out, outCov, err
}

// jacobian differentiates f at x with respect to the tangent coordinates listed in inputs;
// all other coordinates are held at zero. The result is Dim(f(x)) x len(inputs).
func jacobian[In Manifold[In], Out Manifold[Out]](f func(In) Out, x In, inputs []int) *mat.Dense {
	y0 := f(x)
	n := x.Dim()
	jac := mat.NewDense(y0.Dim(), len(inputs), nil)
	fd.Jacobian(jac, func(y, d []float64) {
		delta := make([]float64, n)
		for k, i := range inputs {
			delta[i] = d[k]
		}
		copy(y, f(x.Plus(delta)).Minus(y0))
	}, make([]float64, len(inputs)), &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    jacobianStep,
	})
	return jac
}

// propagate returns J·cov[inputs, inputs]·Jᵀ, symmetrized.
func propagate(jac mat.Matrix, cov mat.Symmetric, inputs []int) *mat.SymDense {
	sub := SubCovariance(cov, inputs)
	var tmp, full mat.Dense
	tmp.Mul(jac, sub)
	full.Mul(&tmp, jac.T())

	n, _ := full.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(full.At(i, j)+full.At(j, i)))
		}
	}
	return out
}

// SubCovariance gathers the rows and columns listed in idx.
func SubCovariance(cov mat.Symmetric, idx []int) *mat.SymDense {
	out := mat.NewSymDense(len(idx), nil)
	for a, i := range idx {
		for b := a; b < len(idx); b++ {
			out.SetSym(a, b, cov.At(i, idx[b]))
		}
	}
	return out
}

// Block returns the size x size diagonal block of cov starting at offset.
func Block(cov mat.Symmetric, offset, size int) *mat.SymDense {
	return SubCovariance(cov, span(offset, size))
}

func span(offset, size int) []int {
	idx := make([]int, size)
	for i := range idx {
		idx[i] = offset + i
	}
	return idx
}

func checkSquare(cov mat.Matrix, dim int, what string) error {
	if cov == nil {
		return errors.Errorf("%s covariance is nil", what)
	}
	r, c := cov.Dims()
	if r != dim || c != dim {
		return errors.Errorf("%s covariance is %dx%d, expected %dx%d", what, r, c, dim, dim)
	}
	return nil
}
