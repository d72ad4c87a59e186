package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// TangentBasis returns two unit vectors spanning the plane orthogonal to the unit vector n.
// The basis is a deterministic function of n.
func TangentBasis(n r3.Vector) (r3.Vector, r3.Vector) {
	b1 := n.Ortho()
	b2 := n.Cross(b1).Normalize()
	return b1, b2
}

// RotationBetween returns the rotation vector of the shortest rotation taking the direction of
// a onto the direction of b.
func RotationBetween(a, b r3.Vector) r3.Vector {
	a, b = a.Normalize(), b.Normalize()
	axis := a.Cross(b)
	s := axis.Norm()
	c := a.Dot(b)
	if s < smallAngle {
		if c > 0 {
			return r3.Vector{}
		}
		// antiparallel, any orthogonal axis works
		return a.Ortho().Mul(math.Pi)
	}
	return axis.Mul(math.Atan2(s, c) / s)
}

// QuatFromGravity returns the world-from-body attitude that maps the measured specific force
// (body frame) onto the world +Z axis by the shortest rotation.
func QuatFromGravity(specificForce r3.Vector) quat.Number {
	if specificForce.Norm() == 0 {
		return NewZeroQuaternion()
	}
	return QuatFromRotationVector(RotationBetween(specificForce, r3.Vector{Z: 1}))
}
