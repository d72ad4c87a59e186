package outputs

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/ProjectArtemis/rovio/filterstate"
)

// Record is one output value with its propagated covariance.
type Record[T any] struct {
	Value      T
	Covariance *mat.SymDense
}

// FeatureResult holds the outputs of one valid landmark.
type FeatureResult struct {
	ID       int
	CameraID int
	Output   Record[FeatureOutput]
	Readable Record[FeatureOutputReadable]
	// Flipped is set when the bearing pointed behind the camera and was turned around.
	Flipped bool
}

// Result is the full set of outputs for one state snapshot.
type Result struct {
	Camera        Record[StandardOutput]
	CameraYpr     Record[YprOutput]
	ExtrinsicsYpr Record[YprOutput]
	Features      []FeatureResult
}

// Chain runs the output stages in order: camera output, its attitude as yaw/pitch/roll, the
// extrinsic rotation as yaw/pitch/roll, and then every valid landmark through the feature and
// readable feature stages.
type Chain struct {
	layout   filterstate.Layout
	camera   CameraOutput
	ypr      AttitudeToYpr
	readable FeatureOutputReadableCT
}

// NewChain returns a chain for states of the given layout, reporting poses of camera cameraID.
// Layout errors are configuration errors and are returned here rather than per evaluation.
func NewChain(layout filterstate.Layout, cameraID int) (*Chain, error) {
	if layout.NumCameras < 1 {
		return nil, errors.New("output chain: layout has no cameras")
	}
	if err := layout.CheckCamera(cameraID); err != nil {
		return nil, errors.Wrap(err, "output chain")
	}
	if err := StandardLayout.Validate(); err != nil {
		return nil, err
	}
	return &Chain{
		layout: layout,
		camera: CameraOutput{Layout: layout, CameraID: cameraID},
	}, nil
}

// Layout returns the state layout the chain was built for.
func (c *Chain) Layout() filterstate.Layout {
	return c.layout
}

// Evaluate runs every stage on the snapshot. valid marks the landmark slots to convert.
func (c *Chain) Evaluate(ctx context.Context, s *filterstate.State, cov mat.Symmetric, valid []bool) (*Result, error) {
	ctx, span := trace.StartSpan(ctx, "outputs::Chain::Evaluate")
	defer span.End()

	if err := c.check(s, cov); err != nil {
		return nil, err
	}
	if len(valid) != c.layout.MaxFeatures {
		return nil, errors.Errorf("validity has %d slots, layout has %d", len(valid), c.layout.MaxFeatures)
	}

	camOut, camCov, err := Apply[*filterstate.State, StandardOutput](c.camera, s, cov)
	if err != nil {
		return nil, errors.Wrap(err, "camera output")
	}
	res := &Result{Camera: Record[StandardOutput]{Value: camOut, Covariance: camCov}}

	res.CameraYpr, err = c.Ypr(AttitudeOutput{Rotation: camOut.Attitude}, Block(camCov, StandardLayout.Att, 3))
	if err != nil {
		return nil, errors.Wrap(err, "camera attitude")
	}
	// extrinsics of the reporting camera, qCM with its vea block
	cam := c.camera.CameraID
	res.ExtrinsicsYpr, err = c.Ypr(
		AttitudeOutput{Rotation: s.Extrinsics[cam].Rotation},
		Block(cov, c.layout.ExtrinsicAtt(cam), 3),
	)
	if err != nil {
		return nil, errors.Wrap(err, "extrinsics attitude")
	}

	features := make([]*FeatureResult, len(valid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, ok := range valid {
		if !ok {
			continue
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fr, err := c.Feature(s, cov, i, s.Features[i].CameraID)
			if err != nil {
				return err
			}
			features[i] = &fr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, fr := range features {
		if fr != nil {
			res.Features = append(res.Features, *fr)
		}
	}
	return res, nil
}

// Ypr runs the attitude stage on a rotation and its 3x3 covariance.
func (c *Chain) Ypr(ao AttitudeOutput, cov mat.Symmetric) (Record[YprOutput], error) {
	out, outCov, err := Apply[AttitudeOutput, YprOutput](c.ypr, ao, cov)
	return Record[YprOutput]{Value: out, Covariance: outCov}, err
}

// Feature runs the feature stages for landmark id as seen from camera outputCam.
func (c *Chain) Feature(s *filterstate.State, cov mat.Symmetric, id, outputCam int) (FeatureResult, error) {
	if err := c.layout.CheckFeature(id); err != nil {
		return FeatureResult{}, err
	}
	if err := c.layout.CheckCamera(outputCam); err != nil {
		return FeatureResult{}, err
	}
	if err := c.layout.CheckCamera(s.Features[id].CameraID); err != nil {
		return FeatureResult{}, errors.Wrapf(err, "feature %d", id)
	}
	stage := FeatureOutputCT{Layout: c.layout, FeatureID: id, OutputCameraID: outputCam}
	fo, foCov, err := Apply[*filterstate.State, FeatureOutput](stage, s, cov)
	if err != nil {
		return FeatureResult{}, errors.Wrapf(err, "feature %d", id)
	}
	fo, foCov, flipped, err := CanonicalizeBearing(fo, foCov)
	if err != nil {
		return FeatureResult{}, errors.Wrapf(err, "feature %d", id)
	}
	fr, frCov, err := Apply[FeatureOutput, FeatureOutputReadable](c.readable, fo, foCov)
	if err != nil {
		return FeatureResult{}, errors.Wrapf(err, "feature %d", id)
	}
	return FeatureResult{
		ID:       id,
		CameraID: outputCam,
		Output:   Record[FeatureOutput]{Value: fo, Covariance: foCov},
		Readable: Record[FeatureOutputReadable]{Value: fr, Covariance: frCov},
		Flipped:  flipped,
	}, nil
}

func (c *Chain) check(s *filterstate.State, cov mat.Symmetric) error {
	if s == nil {
		return errors.New("nil state")
	}
	if got := s.Layout(); got != c.layout {
		return errors.Errorf("state has %d cameras and %d features, chain expects %d and %d",
			got.NumCameras, got.MaxFeatures, c.layout.NumCameras, c.layout.MaxFeatures)
	}
	return c.layout.CheckCovariance(cov)
}
