// Package artifacts renders the output chain results of one safe state into the messages the
// node publishes: camera pose, transforms, odometry, the extended summary, the landmark cloud
// and the landmark uncertainty rays.
package artifacts

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"
	"gonum.org/v1/gonum/mat"

	"github.com/ProjectArtemis/rovio/estimator"
	"github.com/ProjectArtemis/rovio/filterstate"
	"github.com/ProjectArtemis/rovio/logging"
	"github.com/ProjectArtemis/rovio/outputs"
	"github.com/ProjectArtemis/rovio/pointcloud"
	"github.com/ProjectArtemis/rovio/spatialmath"
)

const (
	// RayStretch is the number of standard deviations an uncertainty ray spans on each side.
	RayStretch = 3.0
	// MaxRayDistance bounds the ray end points.
	MaxRayDistance = 1000.0
	// RayWidth is the line width of the ray marker.
	RayWidth = 0.04
)

// Frames names the coordinate frames in published headers.
type Frames struct {
	Map    string `json:"map"`
	World  string `json:"world"`
	Camera string `json:"camera"`
	Imu    string `json:"imu"`
}

// DefaultFrames returns the conventional frame labels.
func DefaultFrames() Frames {
	return Frames{Map: "map", World: "world", Camera: "camera", Imu: "imu"}
}

// Option configures a Builder.
type Option func(*Builder)

// WithCameraID selects the camera the pose, odometry and extrinsics summary report.
func WithCameraID(cam int) Option {
	return func(b *Builder) {
		b.cameraID = cam
	}
}

// WithVerbose logs the pose alignments carried by every safe state.
func WithVerbose(verbose bool) Option {
	return func(b *Builder) {
		b.verbose = verbose
	}
}

// A Builder turns chain results into artifact sets with increasing sequence numbers.
// Build may be called from one goroutine at a time if the order of sequence numbers matters.
type Builder struct {
	layout   filterstate.Layout
	frames   Frames
	cameraID int
	verbose  bool
	seq      atomic.Uint32
	logger   logging.Logger
}

// NewBuilder returns a builder for states of the given layout.
func NewBuilder(layout filterstate.Layout, frames Frames, logger logging.Logger, opts ...Option) (*Builder, error) {
	if logger == nil {
		logger = logging.NewBlankLogger("artifacts")
	}
	b := &Builder{layout: layout, frames: frames, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	if err := layout.CheckCamera(b.cameraID); err != nil {
		return nil, errors.Wrap(err, "artifact builder")
	}
	return b, nil
}

// LastSeq returns the sequence number of the last built set, 0 before the first.
func (b *Builder) LastSeq() uint32 {
	return b.seq.Load()
}

// Build renders res, the chain output for safe, into a new artifact set.
func (b *Builder) Build(ctx context.Context, safe *estimator.SafeState, res *outputs.Result) (*Set, error) {
	_, span := trace.StartSpan(ctx, "artifacts::Builder::Build")
	defer span.End()

	if safe == nil || safe.State == nil || res == nil {
		return nil, errors.New("nothing to build")
	}
	s, cov := safe.State, safe.Covariance
	if got := s.Layout(); got != b.layout {
		return nil, errors.Errorf("state has %d cameras and %d features, builder expects %d and %d",
			got.NumCameras, got.MaxFeatures, b.layout.NumCameras, b.layout.MaxFeatures)
	}
	if err := b.layout.CheckCovariance(cov); err != nil {
		return nil, err
	}
	if len(safe.ValidFeatures) != b.layout.MaxFeatures {
		return nil, errors.Errorf("validity has %d slots, layout has %d", len(safe.ValidFeatures), b.layout.MaxFeatures)
	}

	if b.verbose {
		b.logAlignments(s)
	}

	set := &Set{Seq: b.seq.Inc(), Timestamp: safe.Timestamp}
	header := func(frame string) Header {
		return Header{Seq: set.Seq, Stamp: safe.Timestamp, FrameID: frame}
	}

	cam := res.Camera.Value
	camPose := Pose{
		Position:    NewVector3(cam.Position),
		Orientation: NewQuaternion(spatialmath.Inverse(cam.Attitude)),
	}
	set.Pose = PoseStamped{Header: header(b.frames.World), Pose: camPose}

	if s.InertialPose != nil {
		set.Transforms = append(set.Transforms, TransformStamped{
			Header:       header(b.frames.Map),
			ChildFrameID: b.frames.World,
			Translation:  NewVector3(s.InertialPose.Translation),
			Rotation:     NewQuaternion(s.InertialPose.Rotation),
		})
	}
	set.Transforms = append(set.Transforms,
		TransformStamped{
			Header:       header(b.frames.World),
			ChildFrameID: b.frames.Camera,
			Translation:  camPose.Position,
			Rotation:     camPose.Orientation,
		},
		TransformStamped{
			Header:       header(b.frames.World),
			ChildFrameID: b.frames.Imu,
			Translation:  NewVector3(s.Position),
			Rotation:     NewQuaternion(s.Attitude),
		},
	)

	l := outputs.StandardLayout
	set.Odometry = Odometry{
		Header:       header(b.frames.World),
		ChildFrameID: b.frames.Camera,
		Pose: PoseWithCovariance{
			Pose:       camPose,
			Covariance: Interleave(res.Camera.Covariance, l.Pos, l.Att),
		},
		Twist: TwistWithCovariance{
			Twist: Twist{
				Linear:  NewVector3(cam.Velocity),
				Angular: NewVector3(cam.AngularRate),
			},
			Covariance: Interleave(res.Camera.Covariance, l.Vel, l.Ror),
		},
	}

	set.Summary = b.summary(header(b.frames.World), set.Odometry, s, cov, res)

	cloud, err := b.cloud(s, safe.ValidFeatures, res.Features)
	if err != nil {
		return nil, err
	}
	set.Cloud = LandmarkCloud{Header: header(b.frames.Camera), Cloud: cloud}
	set.Rays = b.rays(header(b.frames.Camera), s, cov, safe.ValidFeatures)
	return set, nil
}

func (b *Builder) summary(h Header, odom Odometry, s *filterstate.State, cov mat.Symmetric, res *outputs.Result) ExtendedSummary {
	ext := s.Extrinsics[b.cameraID]
	return ExtendedSummary{
		Header:           h,
		Odometry:         odom,
		YprOdometry:      yprVector(res.CameraYpr.Value),
		YprOdometrySigma: diagonal(res.CameraYpr.Covariance, 0),
		AccBias:          NewVector3(s.AccBias),
		AccBiasSigma:     diagonal(cov, b.layout.AccBias()),
		GyrBias:          NewVector3(s.GyrBias),
		GyrBiasSigma:     diagonal(cov, b.layout.GyrBias()),
		Extrinsics: PoseWithCovariance{
			Pose: Pose{
				Position:    NewVector3(ext.Translation),
				Orientation: NewQuaternion(spatialmath.Inverse(ext.Rotation)),
			},
			Covariance: Interleave(cov, b.layout.ExtrinsicPos(b.cameraID), b.layout.ExtrinsicAtt(b.cameraID)),
		},
		YprExtrinsics:      yprVector(res.ExtrinsicsYpr.Value),
		YprExtrinsicsSigma: diagonal(res.ExtrinsicsYpr.Covariance, 0),
	}
}

// cloud places each valid landmark at its state bearing and distance in its own camera frame,
// with bearing, distance and covariance from the readable output.
func (b *Builder) cloud(s *filterstate.State, valid []bool, features []outputs.FeatureResult) (*pointcloud.LandmarkCloud, error) {
	readable := make(map[int]outputs.FeatureResult, len(features))
	for _, fr := range features {
		readable[fr.ID] = fr
	}
	cloud := pointcloud.NewLandmarkCloud(b.layout.MaxFeatures)
	for i, ok := range valid {
		if !ok {
			if err := cloud.SetInvalid(i); err != nil {
				return nil, err
			}
			continue
		}
		fr, found := readable[i]
		if !found {
			return nil, errors.Errorf("valid feature %d has no output", i)
		}
		frCov := fr.Readable.Covariance
		if err := cloud.Set(i, pointcloud.Landmark{
			Position:   s.Features[i].Point(),
			RGB:        pointcloud.GrayRGB,
			Bearing:    fr.Readable.Value.Bearing,
			Distance:   fr.Readable.Value.Distance,
			Covariance: pointcloud.CovarianceUpper(frCov.At),
		}); err != nil {
			return nil, err
		}
	}
	return cloud, nil
}

// rays draws one segment per valid landmark along its bearing, from the distance at p+3 sigma
// to the distance at p-3 sigma of its distance parameter.
func (b *Builder) rays(h Header, s *filterstate.State, cov mat.Symmetric, valid []bool) LineMarker {
	marker := LineMarker{
		Header: h,
		ID:     0,
		Type:   MarkerLineList,
		Action: MarkerAdd,
		Pose:   Pose{Orientation: Quaternion{W: 1}},
		Width:  RayWidth,
		Color:  Color{G: 1, A: 1},
		Points: []Vector3{},
	}
	for i, ok := range valid {
		if !ok {
			continue
		}
		f := s.Features[i]
		idx := b.layout.Feature(i) + 2
		near, far := RayDistances(f.Distance, math.Sqrt(cov.At(idx, idx)))
		marker.Points = append(marker.Points,
			NewVector3(f.Bearing.Mul(near)),
			NewVector3(f.Bearing.Mul(far)),
		)
	}
	return marker
}

// RayDistances returns the distances at p+3 sigma and p-3 sigma, each clamped to
// [0, MaxRayDistance]. Regular and hyperbolic parameters can cross zero; those endpoints stop at
// the camera center.
func RayDistances(fd filterstate.FeatureDistance, sigma float64) (float64, float64) {
	plus, minus := fd, fd
	plus.P += RayStretch * sigma
	minus.P -= RayStretch * sigma
	return clampRay(plus.Distance()), clampRay(minus.Distance())
}

func clampRay(d float64) float64 {
	return math.Max(0, math.Min(d, MaxRayDistance))
}

// Interleave extracts the 6x6 covariance of two 3-blocks as a row-major array: index i < 3
// maps to first+i and the rest to second+i-3.
func Interleave(cov mat.Symmetric, first, second int) [36]float64 {
	idx := func(i int) int {
		if i < 3 {
			return first + i
		}
		return second + i - 3
	}
	var out [36]float64
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			out[j+6*i] = cov.At(idx(i), idx(j))
		}
	}
	return out
}

func diagonal(cov mat.Symmetric, offset int) Vector3 {
	return Vector3{X: cov.At(offset, offset), Y: cov.At(offset+1, offset+1), Z: cov.At(offset+2, offset+2)}
}

func yprVector(y outputs.YprOutput) Vector3 {
	return Vector3{X: y.Yaw, Y: y.Pitch, Z: y.Roll}
}

func (b *Builder) logAlignments(s *filterstate.State) {
	if p := s.InertialPose; p != nil {
		b.logger.Infow("transformation between inertial frames", "IrIW", p.Translation, "qIW", p.Rotation)
	}
	if p := s.BodyPose; p != nil {
		b.logger.Infow("transformation between body frames", "MrMV", p.Translation, "qVM", p.Rotation)
	}
}
