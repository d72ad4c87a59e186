package outputs

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/ProjectArtemis/rovio/filterstate"
	"github.com/ProjectArtemis/rovio/spatialmath"
)

// CameraOutput maps the filter state to the pose and twist of one camera.
type CameraOutput struct {
	Layout   filterstate.Layout
	CameraID int
}

var _ Stage[*filterstate.State, StandardOutput] = CameraOutput{}

// TransformState implements Stage.
func (co CameraOutput) TransformState(s *filterstate.State) StandardOutput {
	ex := s.Extrinsics[co.CameraID]
	// bias corrected rate of the body
	ror := s.AngularRate.Sub(s.GyrBias)
	return StandardOutput{
		Position:    s.Position.Add(spatialmath.Rotate(s.Attitude, ex.Translation)),
		Attitude:    spatialmath.Normalize(quat.Mul(ex.Rotation, spatialmath.Inverse(s.Attitude))),
		Velocity:    spatialmath.Rotate(ex.Rotation, s.Velocity.Add(ror.Cross(ex.Translation))),
		AngularRate: spatialmath.Rotate(ex.Rotation, ror),
	}
}

// TransformCovariance implements Stage.
func (co CameraOutput) TransformCovariance(s *filterstate.State, cov mat.Symmetric) (*mat.SymDense, error) {
	if err := co.Layout.CheckCovariance(cov); err != nil {
		return nil, err
	}
	inputs := co.inputs()
	return propagate(jacobian(co.TransformState, s, inputs), cov, inputs), nil
}

func (co CameraOutput) inputs() []int {
	l := co.Layout
	var idx []int
	idx = append(idx, span(l.Pos(), 3)...)
	idx = append(idx, span(l.Vel(), 3)...)
	idx = append(idx, span(l.GyrBias(), 3)...)
	idx = append(idx, span(l.Att(), 3)...)
	idx = append(idx, span(l.ExtrinsicPos(co.CameraID), 3)...)
	idx = append(idx, span(l.ExtrinsicAtt(co.CameraID), 3)...)
	return idx
}
