package outputs

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ProjectArtemis/rovio/spatialmath"
)

// AttitudeToYpr converts a rotation into yaw, pitch and roll.
type AttitudeToYpr struct{}

var _ Stage[AttitudeOutput, YprOutput] = AttitudeToYpr{}

// TransformState implements Stage.
func (AttitudeToYpr) TransformState(ao AttitudeOutput) YprOutput {
	return YprOutput{EulerAngles: spatialmath.QuatToEulerZYX(ao.Rotation)}
}

// TransformCovariance implements Stage.
func (ay AttitudeToYpr) TransformCovariance(ao AttitudeOutput, cov mat.Symmetric) (*mat.SymDense, error) {
	if err := checkSquare(cov, ao.Dim(), "attitude"); err != nil {
		return nil, err
	}
	inputs := span(0, ao.Dim())
	return propagate(jacobian(ay.TransformState, ao, inputs), cov, inputs), nil
}
