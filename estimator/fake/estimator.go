// Package fake implements a deterministic estimator. Landmarks are known world points that are
// projected into the cameras whenever the safe state advances, and the covariance grows with
// elapsed time. It exercises the output stage without a real filter.
package fake

import (
	"context"
	"image"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/ProjectArtemis/rovio/estimator"
	"github.com/ProjectArtemis/rovio/filterstate"
	"github.com/ProjectArtemis/rovio/framesync"
	"github.com/ProjectArtemis/rovio/spatialmath"
)

const (
	defaultGravity         = 9.81
	defaultInitialVariance = 1e-2
	defaultProcessNoise    = 1e-3
	defaultBearingVariance = 1e-4
	defaultDistanceVar     = 1e-2
)

// Config describes the simulated world.
type Config struct {
	Layout filterstate.Layout
	// Landmarks are world points; landmark i occupies slot i and is observed by camera i mod
	// NumCameras. Points beyond MaxFeatures are ignored.
	Landmarks    []r3.Vector
	Extrinsics   []filterstate.Extrinsics
	DistanceType filterstate.DistanceType

	Gravity         float64
	InitialVariance float64
	ProcessNoise    float64
}

// Estimator is a fake estimator.Estimator.
type Estimator struct {
	mu  sync.Mutex
	cfg Config

	initialized   bool
	state         *filterstate.State
	cov           *mat.SymDense
	lastInertial  float64
	lastImage     float64
	haveImage     bool
	safeTime      float64
	images        []image.Image
	valid         []bool
	poseCount     int
	inertialCount int
}

var _ estimator.Estimator = (*Estimator)(nil)

// New returns a fake estimator for cfg.
func New(cfg Config) (*Estimator, error) {
	if _, err := filterstate.NewLayout(cfg.Layout.NumCameras, cfg.Layout.MaxFeatures); err != nil {
		return nil, err
	}
	if cfg.Extrinsics != nil && len(cfg.Extrinsics) != cfg.Layout.NumCameras {
		return nil, errors.Errorf("got %d extrinsics for %d cameras", len(cfg.Extrinsics), cfg.Layout.NumCameras)
	}
	if cfg.Gravity == 0 {
		cfg.Gravity = defaultGravity
	}
	if cfg.InitialVariance == 0 {
		cfg.InitialVariance = defaultInitialVariance
	}
	if cfg.ProcessNoise == 0 {
		cfg.ProcessNoise = defaultProcessNoise
	}

	state := filterstate.NewState(cfg.Layout)
	copy(state.Extrinsics, cfg.Extrinsics)
	for i := range state.Features {
		state.Features[i].Distance.Type = cfg.DistanceType
	}
	cov := mat.NewSymDense(cfg.Layout.Dim(), nil)
	for i := 0; i < cfg.Layout.Dim(); i++ {
		cov.SetSym(i, i, cfg.InitialVariance)
	}
	return &Estimator{
		cfg:   cfg,
		state: state,
		cov:   cov,
		valid: make([]bool, cfg.Layout.MaxFeatures),
	}, nil
}

// Layout implements estimator.Estimator.
func (e *Estimator) Layout() filterstate.Layout {
	return e.cfg.Layout
}

// InitializeFromGravity implements estimator.Estimator.
func (e *Estimator) InitializeFromGravity(acc r3.Vector, t float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}
	e.state.Attitude = spatialmath.QuatFromGravity(acc)
	e.lastInertial = t
	e.safeTime = t
	e.initialized = true
	return nil
}

// PushInertial implements estimator.Estimator. The sample is integrated right away.
func (e *Estimator) PushInertial(sample estimator.InertialSample, t float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return estimator.ErrNotInitialized
	}
	if t < e.lastInertial {
		return errors.Errorf("inertial sample at %v is older than %v", t, e.lastInertial)
	}
	dt := t - e.lastInertial
	s := e.state
	s.AngularRate = sample.Gyr

	vWorld := spatialmath.Rotate(s.Attitude, s.Velocity)
	accWorld := spatialmath.Rotate(s.Attitude, sample.Acc.Sub(s.AccBias)).Sub(r3.Vector{Z: e.cfg.Gravity})
	s.Position = s.Position.Add(vWorld.Mul(dt)).Add(accWorld.Mul(0.5 * dt * dt))
	vWorld = vWorld.Add(accWorld.Mul(dt))
	// the body rate acts on the right
	omega := sample.Gyr.Sub(s.GyrBias).Mul(dt)
	s.Attitude = spatialmath.Normalize(quat.Mul(s.Attitude, spatialmath.QuatFromRotationVector(omega)))
	s.Velocity = spatialmath.Rotate(spatialmath.Inverse(s.Attitude), vWorld)

	l := e.cfg.Layout
	for _, o := range []int{l.Pos(), l.Vel(), l.Att()} {
		for k := 0; k < 3; k++ {
			e.cov.SetSym(o+k, o+k, e.cov.At(o+k, o+k)+e.cfg.ProcessNoise*dt)
		}
	}
	e.lastInertial = t
	e.inertialCount++
	return nil
}

// PushImageBatch implements estimator.Estimator.
func (e *Estimator) PushImageBatch(batch *framesync.Batch, t float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return estimator.ErrNotInitialized
	}
	if len(batch.Slots) != e.cfg.Layout.NumCameras {
		return errors.Errorf("batch has %d slots for %d cameras", len(batch.Slots), e.cfg.Layout.NumCameras)
	}
	e.images = e.images[:0]
	for _, slot := range batch.Slots {
		if slot.Pyramid != nil {
			e.images = append(e.images, slot.Pyramid.Base())
		}
	}
	e.lastImage = t
	e.haveImage = true
	return nil
}

// PushPoseMeasurement implements estimator.Estimator. The measurement aligns the world with the
// reference frame.
func (e *Estimator) PushPoseMeasurement(m estimator.PoseMeasurement, t float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return estimator.ErrNotInitialized
	}
	// qIW = qIM * qWM^-1, IrIW = IrIM - qIW * WrWM
	qIW := spatialmath.Normalize(quat.Mul(m.Pose.Rotation, spatialmath.Inverse(e.state.Attitude)))
	e.state.InertialPose = &filterstate.Pose{
		Translation: m.Pose.Translation.Sub(spatialmath.Rotate(qIW, e.state.Position)),
		Rotation:    qIW,
	}
	e.poseCount++
	return nil
}

// RefreshSafeState implements estimator.Estimator. The safe time advances to the latest time
// covered by both inertial and image measurements.
func (e *Estimator) RefreshSafeState(ctx context.Context) (*estimator.SafeState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil, estimator.ErrNotInitialized
	}
	if e.haveImage {
		if candidate := math.Min(e.lastInertial, e.lastImage); candidate > e.safeTime {
			e.safeTime = candidate
			e.observeLandmarks()
		}
	}
	return e.snapshot(), nil
}

func (e *Estimator) observeLandmarks() {
	s := e.state
	l := e.cfg.Layout
	for i := range s.Features {
		o := l.Feature(i)
		e.valid[i] = false
		if i >= len(e.cfg.Landmarks) {
			continue
		}
		cam := i % l.NumCameras
		ex := s.Extrinsics[cam]
		inBody := spatialmath.Rotate(spatialmath.Inverse(s.Attitude), e.cfg.Landmarks[i].Sub(s.Position))
		inCam := spatialmath.Rotate(ex.Rotation, inBody.Sub(ex.Translation))
		if inCam.Z <= 0 {
			continue
		}
		s.Features[i] = filterstate.Feature{
			CameraID: cam,
			Bearing:  inCam.Normalize(),
			Distance: filterstate.NewFeatureDistance(e.cfg.DistanceType, inCam.Norm()),
		}
		e.cov.SetSym(o, o, defaultBearingVariance)
		e.cov.SetSym(o+1, o+1, defaultBearingVariance)
		e.cov.SetSym(o+2, o+2, defaultDistanceVar)
		e.valid[i] = true
	}
}

func (e *Estimator) snapshot() *estimator.SafeState {
	cov := mat.NewSymDense(e.cov.SymmetricDim(), nil)
	cov.CopySym(e.cov)
	return &estimator.SafeState{
		Timestamp:     e.safeTime,
		State:         e.state.Clone(),
		Covariance:    cov,
		ValidFeatures: append([]bool(nil), e.valid...),
		DebugImages:   append([]image.Image(nil), e.images...),
	}
}

// Counts returns the number of ingested inertial samples and pose measurements.
func (e *Estimator) Counts() (inertial, poses int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inertialCount, e.poseCount
}
