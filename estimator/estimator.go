// Package estimator defines the contract of the filter behind the output stage and the gateway
// that feeds it measurements and pulls its safe state.
package estimator

import (
	"context"
	"image"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/ProjectArtemis/rovio/filterstate"
	"github.com/ProjectArtemis/rovio/framesync"
)

// InertialSample is one IMU reading in the body frame.
type InertialSample struct {
	// Acc is the measured specific force in m/s^2.
	Acc r3.Vector
	// Gyr is the measured angular rate in rad/s.
	Gyr r3.Vector
}

// PoseMeasurement is an external 6-DoF reference: the pose of the body in the frame of the
// reference system.
type PoseMeasurement struct {
	Pose filterstate.Pose
}

// SafeState is a consistent snapshot of the filter. It is never mutated after it is returned.
type SafeState struct {
	Timestamp  float64
	State      *filterstate.State
	Covariance *mat.SymDense
	// ValidFeatures has one entry per landmark slot.
	ValidFeatures []bool
	DebugImages   []image.Image
}

// Estimator is a visual-inertial filter.
type Estimator interface {
	// Layout describes the state vector indexing used by SafeState covariances.
	Layout() filterstate.Layout
	// InitializeFromGravity seeds the attitude from a specific force measurement.
	InitializeFromGravity(acc r3.Vector, t float64) error
	PushInertial(sample InertialSample, t float64) error
	PushImageBatch(batch *framesync.Batch, t float64) error
	PushPoseMeasurement(m PoseMeasurement, t float64) error
	// RefreshSafeState advances the safe state as far as the buffered measurements allow.
	RefreshSafeState(ctx context.Context) (*SafeState, error)
}
