package outputs

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/ProjectArtemis/rovio/filterstate"
	"github.com/ProjectArtemis/rovio/spatialmath"
)

// FeatureOutputCT expresses landmark FeatureID as a bearing and depth parameter in the frame
// of camera OutputCameraID.
type FeatureOutputCT struct {
	Layout         filterstate.Layout
	FeatureID      int
	OutputCameraID int
}

var _ Stage[*filterstate.State, FeatureOutput] = FeatureOutputCT{}

// TransformState implements Stage.
func (ft FeatureOutputCT) TransformState(s *filterstate.State) FeatureOutput {
	f := s.Features[ft.FeatureID]
	if f.CameraID == ft.OutputCameraID {
		return FeatureOutput{Bearing: f.Bearing, Distance: f.Distance}
	}
	src := s.Extrinsics[f.CameraID]
	dst := s.Extrinsics[ft.OutputCameraID]
	inBody := spatialmath.Rotate(spatialmath.Inverse(src.Rotation), f.Point()).Add(src.Translation)
	inCam := spatialmath.Rotate(dst.Rotation, inBody.Sub(dst.Translation))

	out := FeatureOutput{Bearing: inCam.Normalize(), Distance: filterstate.FeatureDistance{Type: f.Distance.Type}}
	out.Distance.SetDistance(inCam.Norm())
	return out
}

// TransformCovariance implements Stage.
func (ft FeatureOutputCT) TransformCovariance(s *filterstate.State, cov mat.Symmetric) (*mat.SymDense, error) {
	if err := ft.Layout.CheckCovariance(cov); err != nil {
		return nil, err
	}
	inputs := ft.inputs(s.Features[ft.FeatureID].CameraID)
	return propagate(jacobian(ft.TransformState, s, inputs), cov, inputs), nil
}

func (ft FeatureOutputCT) inputs(featureCam int) []int {
	l := ft.Layout
	idx := span(l.Feature(ft.FeatureID), filterstate.FeatureSize)
	if featureCam == ft.OutputCameraID {
		return idx
	}
	for _, c := range []int{featureCam, ft.OutputCameraID} {
		idx = append(idx, span(l.ExtrinsicPos(c), 3)...)
		idx = append(idx, span(l.ExtrinsicAtt(c), 3)...)
	}
	return idx
}

// FeatureOutputReadableCT converts a FeatureOutput into a bearing vector and distance.
type FeatureOutputReadableCT struct{}

var _ Stage[FeatureOutput, FeatureOutputReadable] = FeatureOutputReadableCT{}

// TransformState implements Stage.
func (FeatureOutputReadableCT) TransformState(fo FeatureOutput) FeatureOutputReadable {
	return FeatureOutputReadable{Bearing: fo.Bearing, Distance: fo.Distance.Distance()}
}

// TransformCovariance implements Stage.
func (fr FeatureOutputReadableCT) TransformCovariance(fo FeatureOutput, cov mat.Symmetric) (*mat.SymDense, error) {
	if err := checkSquare(cov, fo.Dim(), "feature"); err != nil {
		return nil, err
	}
	inputs := span(0, fo.Dim())
	return propagate(jacobian(fr.TransformState, fo, inputs), cov, inputs), nil
}

// flipAboutX is a half turn about the camera x axis.
var flipAboutX = quat.Number{Imag: 1}

// CanonicalizeBearing turns a bearing that points behind the camera by a half turn about the
// camera x axis. The covariance is carried through the same rotation. The returned flag
// reports whether the bearing was flipped.
func CanonicalizeBearing(fo FeatureOutput, cov mat.Symmetric) (FeatureOutput, *mat.SymDense, bool, error) {
	if err := checkSquare(cov, fo.Dim(), "feature"); err != nil {
		return fo, nil, false, err
	}
	if fo.InFront() {
		out := mat.NewSymDense(fo.Dim(), nil)
		out.CopySym(cov)
		return fo, out, false, nil
	}
	flip := func(in FeatureOutput) FeatureOutput {
		in.Bearing = spatialmath.Rotate(flipAboutX, in.Bearing)
		return in
	}
	inputs := span(0, fo.Dim())
	return flip(fo), propagate(jacobian(flip, fo, inputs), cov, inputs), true, nil
}
