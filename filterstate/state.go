package filterstate

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/ProjectArtemis/rovio/spatialmath"
)

// Pose is a rigid transform. Rotation maps vectors of the child frame into the parent frame.
type Pose struct {
	Translation r3.Vector
	Rotation    quat.Number
}

// Extrinsics places a camera C on the body M.
type Extrinsics struct {
	// Translation is the camera position in the body frame (MrMC).
	Translation r3.Vector
	// Rotation maps body vectors into the camera frame (qCM).
	Rotation quat.Number
}

// Feature is one landmark slot, expressed in the frame of the camera that holds it.
type Feature struct {
	CameraID int
	Bearing  r3.Vector
	Distance FeatureDistance
}

// Point returns the landmark position in its camera frame.
func (f Feature) Point() r3.Vector {
	return f.Bearing.Mul(f.Distance.Distance())
}

// State is the estimator state. Attitude maps body vectors into world (qWM) and Velocity is
// expressed in the body frame. AngularRate is the latest gyroscope reading and has no error
// coordinates.
type State struct {
	Position    r3.Vector
	Velocity    r3.Vector
	AccBias     r3.Vector
	GyrBias     r3.Vector
	Attitude    quat.Number
	AngularRate r3.Vector
	Extrinsics  []Extrinsics
	Features    []Feature

	// InertialPose is the world pose in the frame of an external pose reference, when one is
	// being estimated.
	InertialPose *Pose
	// BodyPose is the reference sensor pose relative to the body, when one is being estimated.
	BodyPose *Pose
}

// NewState returns the identity state sized for layout l.
func NewState(l Layout) *State {
	s := &State{
		Attitude:   spatialmath.NewZeroQuaternion(),
		Extrinsics: make([]Extrinsics, l.NumCameras),
		Features:   make([]Feature, l.MaxFeatures),
	}
	for i := range s.Extrinsics {
		s.Extrinsics[i].Rotation = spatialmath.NewZeroQuaternion()
	}
	for i := range s.Features {
		s.Features[i].Distance.Type = DistanceInverse
	}
	return s
}

// Layout returns the layout matching the state's camera and landmark counts.
func (s *State) Layout() Layout {
	return Layout{NumCameras: len(s.Extrinsics), MaxFeatures: len(s.Features)}
}

// Dim is the error-state dimension.
func (s *State) Dim() int {
	return s.Layout().Dim()
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	out := *s
	out.Extrinsics = append([]Extrinsics(nil), s.Extrinsics...)
	out.Features = append([]Feature(nil), s.Features...)
	if s.InertialPose != nil {
		p := *s.InertialPose
		out.InertialPose = &p
	}
	if s.BodyPose != nil {
		p := *s.BodyPose
		out.BodyPose = &p
	}
	return &out
}

// Plus returns s perturbed by the error-state vector delta. Rotations are perturbed on the
// left and bearings within their tangent plane.
func (s *State) Plus(delta []float64) *State {
	l := s.Layout()
	out := s.Clone()
	out.Position = s.Position.Add(vec(delta, l.Pos()))
	out.Velocity = s.Velocity.Add(vec(delta, l.Vel()))
	out.AccBias = s.AccBias.Add(vec(delta, l.AccBias()))
	out.GyrBias = s.GyrBias.Add(vec(delta, l.GyrBias()))
	out.Attitude = spatialmath.BoxPlus(s.Attitude, vec(delta, l.Att()))
	for c, ex := range s.Extrinsics {
		out.Extrinsics[c].Translation = ex.Translation.Add(vec(delta, l.ExtrinsicPos(c)))
		out.Extrinsics[c].Rotation = spatialmath.BoxPlus(ex.Rotation, vec(delta, l.ExtrinsicAtt(c)))
	}
	for i, f := range s.Features {
		o := l.Feature(i)
		out.Features[i].Bearing = BearingPlus(f.Bearing, delta[o], delta[o+1])
		out.Features[i].Distance.P = f.Distance.P + delta[o+2]
	}
	return out
}

// Minus returns the error-state vector delta such that ref.Plus(delta) equals s.
func (s *State) Minus(ref *State) []float64 {
	l := s.Layout()
	delta := make([]float64, l.Dim())
	setVec(delta, l.Pos(), s.Position.Sub(ref.Position))
	setVec(delta, l.Vel(), s.Velocity.Sub(ref.Velocity))
	setVec(delta, l.AccBias(), s.AccBias.Sub(ref.AccBias))
	setVec(delta, l.GyrBias(), s.GyrBias.Sub(ref.GyrBias))
	setVec(delta, l.Att(), spatialmath.BoxMinus(s.Attitude, ref.Attitude))
	for c, ex := range s.Extrinsics {
		setVec(delta, l.ExtrinsicPos(c), ex.Translation.Sub(ref.Extrinsics[c].Translation))
		setVec(delta, l.ExtrinsicAtt(c), spatialmath.BoxMinus(ex.Rotation, ref.Extrinsics[c].Rotation))
	}
	for i, f := range s.Features {
		o := l.Feature(i)
		delta[o], delta[o+1] = BearingMinus(f.Bearing, ref.Features[i].Bearing)
		delta[o+2] = f.Distance.P - ref.Features[i].Distance.P
	}
	return delta
}

// BearingPlus rotates the unit vector n by the tangent coordinates (d0, d1) expressed in
// spatialmath.TangentBasis(n).
func BearingPlus(n r3.Vector, d0, d1 float64) r3.Vector {
	if n.Norm() == 0 {
		return n
	}
	b1, b2 := spatialmath.TangentBasis(n)
	rv := b1.Mul(d0).Add(b2.Mul(d1))
	return spatialmath.Rotate(spatialmath.QuatFromRotationVector(rv), n).Normalize()
}

// BearingMinus returns the tangent coordinates at ref of the shortest rotation taking ref to n.
func BearingMinus(n, ref r3.Vector) (float64, float64) {
	if n.Norm() == 0 || ref.Norm() == 0 {
		return 0, 0
	}
	b1, b2 := spatialmath.TangentBasis(ref)
	rv := spatialmath.RotationBetween(ref, n)
	return rv.Dot(b1), rv.Dot(b2)
}

func vec(v []float64, o int) r3.Vector {
	return r3.Vector{X: v[o], Y: v[o+1], Z: v[o+2]}
}

func setVec(v []float64, o int, x r3.Vector) {
	v[o], v[o+1], v[o+2] = x.X, x.Y, x.Z
}
