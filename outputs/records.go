package outputs

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/ProjectArtemis/rovio/filterstate"
	"github.com/ProjectArtemis/rovio/spatialmath"
)

// OutputLayout names the tangent offsets of a StandardOutput.
type OutputLayout struct {
	Pos int
	Att int
	Vel int
	Ror int
	Dim int
}

// StandardLayout is the tangent layout used by StandardOutput.
var StandardLayout = OutputLayout{Pos: 0, Att: 3, Vel: 6, Ror: 9, Dim: 12}

// Validate checks that the four 3-blocks are in range and do not overlap.
func (ol OutputLayout) Validate() error {
	used := make([]bool, ol.Dim)
	for name, o := range map[string]int{"pos": ol.Pos, "att": ol.Att, "vel": ol.Vel, "ror": ol.Ror} {
		if o < 0 || o+3 > ol.Dim {
			return errors.Errorf("output layout: %s offset %d out of range for dimension %d", name, o, ol.Dim)
		}
		for i := o; i < o+3; i++ {
			if used[i] {
				return errors.Errorf("output layout: %s block overlaps at index %d", name, i)
			}
			used[i] = true
		}
	}
	return nil
}

// StandardOutput is the pose and twist of a sensor frame B in world. Attitude maps world
// vectors into B (qBW); Velocity and AngularRate are expressed in B.
type StandardOutput struct {
	Position    r3.Vector
	Attitude    quat.Number
	Velocity    r3.Vector
	AngularRate r3.Vector
}

// Dim implements Manifold.
func (so StandardOutput) Dim() int { return StandardLayout.Dim }

// Plus implements Manifold.
func (so StandardOutput) Plus(delta []float64) StandardOutput {
	l := StandardLayout
	return StandardOutput{
		Position:    so.Position.Add(vec(delta, l.Pos)),
		Attitude:    spatialmath.BoxPlus(so.Attitude, vec(delta, l.Att)),
		Velocity:    so.Velocity.Add(vec(delta, l.Vel)),
		AngularRate: so.AngularRate.Add(vec(delta, l.Ror)),
	}
}

// Minus implements Manifold.
func (so StandardOutput) Minus(ref StandardOutput) []float64 {
	l := StandardLayout
	delta := make([]float64, l.Dim)
	setVec(delta, l.Pos, so.Position.Sub(ref.Position))
	setVec(delta, l.Att, spatialmath.BoxMinus(so.Attitude, ref.Attitude))
	setVec(delta, l.Vel, so.Velocity.Sub(ref.Velocity))
	setVec(delta, l.Ror, so.AngularRate.Sub(ref.AngularRate))
	return delta
}

// AttitudeOutput is a bare rotation.
type AttitudeOutput struct {
	Rotation quat.Number
}

// Dim implements Manifold.
func (ao AttitudeOutput) Dim() int { return 3 }

// Plus implements Manifold.
func (ao AttitudeOutput) Plus(delta []float64) AttitudeOutput {
	return AttitudeOutput{Rotation: spatialmath.BoxPlus(ao.Rotation, vec(delta, 0))}
}

// Minus implements Manifold.
func (ao AttitudeOutput) Minus(ref AttitudeOutput) []float64 {
	d := spatialmath.BoxMinus(ao.Rotation, ref.Rotation)
	return []float64{d.X, d.Y, d.Z}
}

// YprOutput holds ZYX Euler angles. Its tangent order is yaw, pitch, roll.
type YprOutput struct {
	spatialmath.EulerAngles
}

// Dim implements Manifold.
func (yo YprOutput) Dim() int { return 3 }

// Plus implements Manifold.
func (yo YprOutput) Plus(delta []float64) YprOutput {
	return YprOutput{EulerAngles: spatialmath.EulerAngles{
		Yaw:   yo.Yaw + delta[0],
		Pitch: yo.Pitch + delta[1],
		Roll:  yo.Roll + delta[2],
	}}
}

// Minus implements Manifold.
func (yo YprOutput) Minus(ref YprOutput) []float64 {
	return []float64{
		spatialmath.WrapAngle(yo.Yaw - ref.Yaw),
		spatialmath.WrapAngle(yo.Pitch - ref.Pitch),
		spatialmath.WrapAngle(yo.Roll - ref.Roll),
	}
}

// FeatureOutput is a landmark as seen from one camera: a unit bearing and a depth parameter.
type FeatureOutput struct {
	Bearing  r3.Vector
	Distance filterstate.FeatureDistance
}

// Dim implements Manifold.
func (fo FeatureOutput) Dim() int { return filterstate.FeatureSize }

// Plus implements Manifold.
func (fo FeatureOutput) Plus(delta []float64) FeatureOutput {
	out := fo
	out.Bearing = filterstate.BearingPlus(fo.Bearing, delta[0], delta[1])
	out.Distance.P += delta[2]
	return out
}

// Minus implements Manifold.
func (fo FeatureOutput) Minus(ref FeatureOutput) []float64 {
	d0, d1 := filterstate.BearingMinus(fo.Bearing, ref.Bearing)
	return []float64{d0, d1, fo.Distance.P - ref.Distance.P}
}

// InFront reports whether the bearing points into the camera's viewing half space.
func (fo FeatureOutput) InFront() bool {
	return fo.Bearing.Z >= 0
}

// FeatureOutputReadable is a landmark as a plain bearing vector and euclidean distance.
type FeatureOutputReadable struct {
	Bearing  r3.Vector
	Distance float64
}

// Dim implements Manifold.
func (fr FeatureOutputReadable) Dim() int { return 4 }

// Plus implements Manifold.
func (fr FeatureOutputReadable) Plus(delta []float64) FeatureOutputReadable {
	return FeatureOutputReadable{Bearing: fr.Bearing.Add(vec(delta, 0)), Distance: fr.Distance + delta[3]}
}

// Minus implements Manifold.
func (fr FeatureOutputReadable) Minus(ref FeatureOutputReadable) []float64 {
	d := fr.Bearing.Sub(ref.Bearing)
	return []float64{d.X, d.Y, d.Z, fr.Distance - ref.Distance}
}

// Point returns the landmark position.
func (fr FeatureOutputReadable) Point() r3.Vector {
	return fr.Bearing.Mul(fr.Distance)
}

func vec(v []float64, o int) r3.Vector {
	return r3.Vector{X: v[o], Y: v[o+1], Z: v[o+2]}
}

func setVec(v []float64, o int, x r3.Vector) {
	v[o], v[o+1], v[o+2] = x.X, x.Y, x.Z
}
