// Package spatialmath defines the rotation and vector helpers used by the filter state and the
// output transforms. Rotations are unit quaternions (gonum quat.Number, Real first) and vectors
// are r3.Vector.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// smallAngle is the rotation magnitude below which the exponential and logarithm maps switch
// to their Taylor expansions.
const smallAngle = 1e-8

// NewZeroQuaternion returns the identity rotation.
func NewZeroQuaternion() quat.Number {
	return quat.Number{Real: 1}
}

// Normalize returns q scaled to unit norm. The zero quaternion normalizes to the identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return NewZeroQuaternion()
	}
	return quat.Scale(1/n, q)
}

// Inverse returns the inverse of the unit quaternion q.
func Inverse(q quat.Number) quat.Number {
	return quat.Conj(Normalize(q))
}

// Rotate rotates v by the unit quaternion q.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// QuatFromRotationVector is the exponential map: the rotation of |v| radians about v.
func QuatFromRotationVector(v r3.Vector) quat.Number {
	theta := v.Norm()
	if theta < smallAngle {
		q := quat.Number{Real: 1, Imag: v.X / 2, Jmag: v.Y / 2, Kmag: v.Z / 2}
		return Normalize(q)
	}
	s := math.Sin(theta/2) / theta
	return quat.Number{Real: math.Cos(theta / 2), Imag: v.X * s, Jmag: v.Y * s, Kmag: v.Z * s}
}

// QuatToRotationVector is the logarithm map, the inverse of QuatFromRotationVector. The result
// has norm at most pi.
func QuatToRotationVector(q quat.Number) r3.Vector {
	q = Normalize(q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	n := v.Norm()
	if n < smallAngle {
		return v.Mul(2 / q.Real)
	}
	theta := 2 * math.Atan2(n, q.Real)
	return v.Mul(theta / n)
}

// QuaternionAlmostEqual reports whether a and b represent the same rotation within tol,
// treating q and -q as equal.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	same := math.Abs(a.Real-b.Real) < tol && math.Abs(a.Imag-b.Imag) < tol &&
		math.Abs(a.Jmag-b.Jmag) < tol && math.Abs(a.Kmag-b.Kmag) < tol
	flipped := math.Abs(a.Real+b.Real) < tol && math.Abs(a.Imag+b.Imag) < tol &&
		math.Abs(a.Jmag+b.Jmag) < tol && math.Abs(a.Kmag+b.Kmag) < tol
	return same || flipped
}

// BoxPlus perturbs q by the rotation vector delta applied on the left (in the outer frame).
func BoxPlus(q quat.Number, delta r3.Vector) quat.Number {
	return Normalize(quat.Mul(QuatFromRotationVector(delta), q))
}

// BoxMinus returns the rotation vector delta such that BoxPlus(ref, delta) == q.
func BoxMinus(q, ref quat.Number) r3.Vector {
	return QuatToRotationVector(quat.Mul(q, Inverse(ref)))
}
