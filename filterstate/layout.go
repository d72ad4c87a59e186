// Package filterstate describes the estimator's state vector: its error-state index layout,
// the state manifold with its box-plus/box-minus operators, and the landmark depth model.
package filterstate

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Block sizes of the error state.
const (
	Vec3Size    = 3
	FeatureSize = 3 // two bearing tangent coordinates followed by the distance parameter

	extrinsicSize = 2 * Vec3Size
	coreSize      = 5 * Vec3Size
)

// Layout maps named state fields to their offsets in the error-state vector and covariance.
// The order is pos, vel, acb, gyb, att, then per camera vep and vea, then one feature block per
// landmark slot.
type Layout struct {
	NumCameras  int
	MaxFeatures int
}

// NewLayout returns the layout for nCam cameras and nMax landmark slots.
func NewLayout(nCam, nMax int) (Layout, error) {
	if nCam < 1 {
		return Layout{}, errors.Errorf("number of cameras must be at least 1, got %d", nCam)
	}
	if nMax < 0 {
		return Layout{}, errors.Errorf("maximum feature count cannot be negative, got %d", nMax)
	}
	return Layout{NumCameras: nCam, MaxFeatures: nMax}, nil
}

// Dim is the dimension of the error state.
func (l Layout) Dim() int {
	return coreSize + extrinsicSize*l.NumCameras + FeatureSize*l.MaxFeatures
}

// Pos is the offset of the body position in world.
func (l Layout) Pos() int { return 0 }

// Vel is the offset of the body-frame velocity.
func (l Layout) Vel() int { return 3 }

// AccBias is the offset of the accelerometer bias.
func (l Layout) AccBias() int { return 6 }

// GyrBias is the offset of the gyroscope bias.
func (l Layout) GyrBias() int { return 9 }

// Att is the offset of the body attitude.
func (l Layout) Att() int { return 12 }

// ExtrinsicPos is the offset of the camera translation in the body frame.
func (l Layout) ExtrinsicPos(cam int) int { return coreSize + extrinsicSize*cam }

// ExtrinsicAtt is the offset of the camera rotation relative to the body.
func (l Layout) ExtrinsicAtt(cam int) int { return coreSize + extrinsicSize*cam + Vec3Size }

// Feature is the offset of landmark slot i.
func (l Layout) Feature(i int) int {
	return coreSize + extrinsicSize*l.NumCameras + FeatureSize*i
}

// CheckCamera returns an error if cam is not a camera of this layout.
func (l Layout) CheckCamera(cam int) error {
	if cam < 0 || cam >= l.NumCameras {
		return errors.Errorf("camera id %d out of range [0, %d)", cam, l.NumCameras)
	}
	return nil
}

// CheckFeature returns an error if i is not a landmark slot of this layout.
func (l Layout) CheckFeature(i int) error {
	if i < 0 || i >= l.MaxFeatures {
		return errors.Errorf("feature id %d out of range [0, %d)", i, l.MaxFeatures)
	}
	return nil
}

// CheckCovariance returns an error unless cov is square with the layout's dimension.
func (l Layout) CheckCovariance(cov mat.Matrix) error {
	if cov == nil {
		return errors.New("covariance is nil")
	}
	r, c := cov.Dims()
	if r != c || r != l.Dim() {
		return errors.Errorf("covariance is %dx%d, layout expects %dx%d", r, c, l.Dim(), l.Dim())
	}
	return nil
}
