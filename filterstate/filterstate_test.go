package filterstate

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/ProjectArtemis/rovio/spatialmath"
)

func TestLayout(t *testing.T) {
	_, err := NewLayout(0, 4)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewLayout(1, -1)
	test.That(t, err, test.ShouldNotBeNil)

	l, err := NewLayout(2, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l.Dim(), test.ShouldEqual, 15+12+12)
	test.That(t, l.Att(), test.ShouldEqual, 12)
	test.That(t, l.ExtrinsicPos(1), test.ShouldEqual, 21)
	test.That(t, l.ExtrinsicAtt(1), test.ShouldEqual, 24)
	test.That(t, l.Feature(0), test.ShouldEqual, 27)
	test.That(t, l.Feature(3)+FeatureSize, test.ShouldEqual, l.Dim())

	test.That(t, l.CheckCamera(2), test.ShouldNotBeNil)
	test.That(t, l.CheckFeature(3), test.ShouldBeNil)
	test.That(t, l.CheckFeature(4), test.ShouldNotBeNil)

	test.That(t, l.CheckCovariance(mat.NewSymDense(l.Dim(), nil)), test.ShouldBeNil)
	err = l.CheckCovariance(mat.NewSymDense(l.Dim()-1, nil))
	test.That(t, err, test.ShouldBeError, "covariance is 38x38, layout expects 39x39")
	test.That(t, l.CheckCovariance(nil), test.ShouldNotBeNil)
}

func TestFeatureDistance(t *testing.T) {
	for _, dt := range []DistanceType{DistanceRegular, DistanceInverse, DistanceLog, DistanceHyperbolic} {
		fd := NewFeatureDistance(dt, 4.5)
		test.That(t, fd.Distance(), test.ShouldAlmostEqual, 4.5)
	}
	test.That(t, FeatureDistance{Type: DistanceInverse, P: 0.5}.Distance(), test.ShouldEqual, 2)
	test.That(t, FeatureDistance{Type: DistanceInverse, P: -0.5}.Distance(), test.ShouldEqual, 2)
	test.That(t, FeatureDistance{Type: DistanceInverse}.Distance(), test.ShouldEqual, 1e6)

	dt, err := DistanceTypeFromString("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dt, test.ShouldEqual, DistanceInverse)
	dt, err = DistanceTypeFromString("Hyperbolic")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dt.String(), test.ShouldEqual, "hyperbolic")
	_, err = DistanceTypeFromString("metric")
	test.That(t, err, test.ShouldNotBeNil)
}

func testState(t *testing.T) *State {
	t.Helper()
	l, err := NewLayout(2, 3)
	test.That(t, err, test.ShouldBeNil)
	s := NewState(l)
	s.Position = r3.Vector{X: 1, Y: 2, Z: 3}
	s.Velocity = r3.Vector{X: 0.1}
	s.Attitude = spatialmath.QuatFromRotationVector(r3.Vector{X: 0.2, Y: -0.1, Z: 0.7})
	s.Extrinsics[1].Translation = r3.Vector{X: 0.05}
	s.Extrinsics[1].Rotation = spatialmath.QuatFromRotationVector(r3.Vector{Z: math.Pi / 2})
	s.Features[0] = Feature{Bearing: r3.Vector{X: 0.1, Y: 0.2, Z: 1}.Normalize(), Distance: NewFeatureDistance(DistanceInverse, 3)}
	s.Features[2] = Feature{CameraID: 1, Bearing: r3.Vector{Z: -1}, Distance: NewFeatureDistance(DistanceLog, 8)}
	return s
}

func TestStatePlusMinus(t *testing.T) {
	s := testState(t)
	test.That(t, s.Dim(), test.ShouldEqual, 36)

	delta := make([]float64, s.Dim())
	for i := range delta {
		delta[i] = 1e-3 * float64(i%7-3)
	}
	// the empty feature slot has no tangent plane
	l := s.Layout()
	for k := 0; k < 2; k++ {
		delta[l.Feature(1)+k] = 0
	}

	moved := s.Plus(delta)
	got := moved.Minus(s)
	test.That(t, got, test.ShouldHaveLength, len(delta))
	for i := range delta {
		test.That(t, got[i], test.ShouldAlmostEqual, delta[i], 1e-9)
	}
	test.That(t, moved.Features[0].Bearing.Norm(), test.ShouldAlmostEqual, 1)

	// Plus leaves the receiver untouched
	test.That(t, s.Position, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	for _, v := range s.Minus(s) {
		test.That(t, v, test.ShouldAlmostEqual, 0)
	}
}

func TestClone(t *testing.T) {
	s := testState(t)
	s.InertialPose = &Pose{Translation: r3.Vector{X: 1}, Rotation: spatialmath.NewZeroQuaternion()}
	c := s.Clone()
	c.Features[0].Distance.P = 42
	c.Extrinsics[0].Translation = r3.Vector{Y: 9}
	c.InertialPose.Translation = r3.Vector{}
	test.That(t, s.Features[0].Distance.P, test.ShouldNotEqual, 42)
	test.That(t, s.Extrinsics[0].Translation, test.ShouldResemble, r3.Vector{})
	test.That(t, s.InertialPose.Translation.X, test.ShouldEqual, 1)
	test.That(t, c.BodyPose, test.ShouldBeNil)
}

func TestFeaturePoint(t *testing.T) {
	f := Feature{Bearing: r3.Vector{Y: 1}, Distance: NewFeatureDistance(DistanceRegular, 2.5)}
	test.That(t, f.Point(), test.ShouldResemble, r3.Vector{Y: 2.5})
}
