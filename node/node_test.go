package node

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/ProjectArtemis/rovio/config"
	"github.com/ProjectArtemis/rovio/estimator"
	"github.com/ProjectArtemis/rovio/estimator/fake"
	"github.com/ProjectArtemis/rovio/filterstate"
	"github.com/ProjectArtemis/rovio/logging"
	"github.com/ProjectArtemis/rovio/spatialmath"
)

var atRest = estimator.InertialSample{Acc: r3.Vector{Z: 9.81}}

func newTestConfig(nCam, nMax int) *config.Config {
	cameras := make([]string, nCam)
	for i := range cameras {
		cameras[i] = "/cam"
	}
	cfg := &config.Config{
		NumCameras:  nCam,
		MaxFeatures: nMax,
		Topics:      config.Topics{Imu: "/imu0", Cameras: cameras},
	}
	return cfg
}

func newTestNode(t *testing.T, cfg *config.Config, opts ...Option) (*Node, *MemoryPublisher) {
	t.Helper()
	test.That(t, cfg.Validate("config"), test.ShouldBeNil)
	l, err := cfg.Layout()
	test.That(t, err, test.ShouldBeNil)
	est, err := fake.New(fake.Config{
		Layout:       l,
		Landmarks:    []r3.Vector{{X: 0.2, Y: 0.1, Z: 4}, {X: -1, Z: 2}, {Z: -3}},
		DistanceType: cfg.Distance(),
	})
	test.That(t, err, test.ShouldBeNil)
	pub := &MemoryPublisher{}
	n, err := New(cfg, est, pub, logging.NewTestLogger(t), opts...)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, n.Close(context.Background()), test.ShouldBeNil)
	})
	return n, pub
}

func frame() Image {
	return Image{Encoding: "mono8", Width: 8, Height: 8, Step: 8, Data: make([]byte, 64)}
}

func TestSingleCameraPublishesOnce(t *testing.T) {
	n, pub := newTestNode(t, newTestConfig(1, 3))
	ctx := context.Background()

	test.That(t, n.HandleInertial(ctx, atRest, 0), test.ShouldBeNil)
	test.That(t, n.gateway.State(), test.ShouldEqual, estimator.Initialized)
	test.That(t, n.HandleImage(ctx, 0, frame(), 0), test.ShouldBeNil)
	test.That(t, n.HandleInertial(ctx, atRest, 0.1), test.ShouldBeNil)
	test.That(t, pub.Sets(), test.ShouldHaveLength, 0)
	test.That(t, n.HandleImage(ctx, 0, frame(), 0.1), test.ShouldBeNil)

	sets := pub.Sets()
	test.That(t, sets, test.ShouldHaveLength, 1)
	set := sets[0]
	test.That(t, set.Seq, test.ShouldEqual, 1)
	test.That(t, set.Timestamp, test.ShouldEqual, 0.1)
	test.That(t, set.Pose.Header.Stamp, test.ShouldEqual, 0.1)
	test.That(t, set.Odometry.Header.Stamp, test.ShouldEqual, 0.1)
	test.That(t, set.Cloud.Header.Stamp, test.ShouldEqual, 0.1)
	test.That(t, set.Rays.Header.Stamp, test.ShouldEqual, 0.1)

	// the landmark behind the camera stays out of the cloud
	_, ok := set.Cloud.Cloud.At(0)
	test.That(t, ok, test.ShouldBeTrue)
	_, ok = set.Cloud.Cloud.At(2)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, set.Rays.Points, test.ShouldHaveLength, 4)

	stats := n.Stats()
	test.That(t, stats.Published, test.ShouldEqual, 1)
	test.That(t, stats.Sync.Dispatched, test.ShouldEqual, 2)

	timing, err := n.Timing()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, timing.Updates, test.ShouldEqual, 1)
}

func TestMissingFrameResyncs(t *testing.T) {
	n, pub := newTestNode(t, newTestConfig(2, 3))
	ctx := context.Background()

	test.That(t, n.HandleInertial(ctx, atRest, 4.9), test.ShouldBeNil)
	test.That(t, n.HandleImage(ctx, 0, frame(), 5.0), test.ShouldBeNil)
	ts, valid := n.sync.Partial()
	test.That(t, ts, test.ShouldEqual, 5.0)
	test.That(t, valid, test.ShouldEqual, 1)

	test.That(t, n.HandleImage(ctx, 0, frame(), 5.2), test.ShouldBeNil)
	stats := n.Stats()
	test.That(t, stats.Sync.SyncFailures, test.ShouldEqual, 1)
	test.That(t, stats.Sync.Dispatched, test.ShouldEqual, 0)
	ts, valid = n.sync.Partial()
	test.That(t, ts, test.ShouldEqual, 5.2)
	test.That(t, valid, test.ShouldEqual, 1)

	test.That(t, n.HandleInertial(ctx, atRest, 5.3), test.ShouldBeNil)
	test.That(t, n.HandleImage(ctx, 1, frame(), 5.2), test.ShouldBeNil)
	test.That(t, n.Stats().Sync.Dispatched, test.ShouldEqual, 1)
	test.That(t, n.Stats().Sync.SyncFailures, test.ShouldEqual, 1)
	sets := pub.Sets()
	test.That(t, sets, test.ShouldHaveLength, 1)
	test.That(t, sets[0].Timestamp, test.ShouldEqual, 5.2)
}

func TestIgnoredBeforeInitialization(t *testing.T) {
	n, pub := newTestNode(t, newTestConfig(1, 3))
	ctx := context.Background()

	test.That(t, n.HandleImage(ctx, 0, frame(), 0), test.ShouldBeNil)
	test.That(t, n.HandlePose(ctx, estimator.PoseMeasurement{}, 0), test.ShouldBeNil)
	test.That(t, n.Stats().Ignored, test.ShouldEqual, 2)
	_, valid := n.sync.Partial()
	test.That(t, valid, test.ShouldEqual, 0)
	test.That(t, pub.Sets(), test.ShouldHaveLength, 0)
}

func TestDecodeFailureDropsFrame(t *testing.T) {
	n, _ := newTestNode(t, newTestConfig(1, 3))
	ctx := context.Background()
	test.That(t, n.HandleInertial(ctx, atRest, 0), test.ShouldBeNil)

	bad := frame()
	bad.Data = bad.Data[:10]
	test.That(t, n.HandleImage(ctx, 0, bad, 0), test.ShouldBeNil)
	test.That(t, n.HandleImage(ctx, 0, Image{Compressed: true, Data: []byte("not a png")}, 0), test.ShouldBeNil)
	test.That(t, n.Stats().DecodeFailures, test.ShouldEqual, 2)
	test.That(t, n.Stats().Sync.Dispatched, test.ShouldEqual, 0)

	test.That(t, n.HandleImage(ctx, 3, frame(), 0), test.ShouldNotBeNil)
}

func TestPoseMeasurementAddsMapTransform(t *testing.T) {
	cfg := newTestConfig(1, 3)
	cfg.PoseTimeOffset = 0.5
	n, pub := newTestNode(t, cfg)
	ctx := context.Background()

	test.That(t, n.HandleInertial(ctx, atRest, 0), test.ShouldBeNil)
	pose := estimator.PoseMeasurement{Pose: filterstate.Pose{
		Translation: r3.Vector{X: 10},
		Rotation:    spatialmath.NewZeroQuaternion(),
	}}
	test.That(t, n.HandlePose(ctx, pose, 0), test.ShouldBeNil)
	// nothing new to publish yet
	test.That(t, pub.Sets(), test.ShouldHaveLength, 0)

	test.That(t, n.HandleInertial(ctx, atRest, 0.1), test.ShouldBeNil)
	test.That(t, n.HandleImage(ctx, 0, frame(), 0.1), test.ShouldBeNil)
	sets := pub.Sets()
	test.That(t, sets, test.ShouldHaveLength, 1)
	tfs := sets[0].Transforms
	test.That(t, tfs, test.ShouldHaveLength, 3)
	test.That(t, tfs[0].Header.FrameID, test.ShouldEqual, "map")
	test.That(t, tfs[0].Translation.X, test.ShouldAlmostEqual, 10)
}

func TestStaleBatchSweep(t *testing.T) {
	cfg := newTestConfig(2, 3)
	cfg.StaleTimeout = 1
	clk := clock.NewMock()
	n, _ := newTestNode(t, cfg, WithClock(clk))
	ctx := context.Background()

	test.That(t, n.HandleInertial(ctx, atRest, 0), test.ShouldBeNil)
	test.That(t, n.HandleImage(ctx, 0, frame(), 5.0), test.ShouldBeNil)

	for i := 0; i < 1000 && n.Stats().Sync.StaleDrops == 0; i++ {
		clk.Add(500 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	test.That(t, n.Stats().Sync.StaleDrops, test.ShouldEqual, 1)
	_, valid := n.sync.Partial()
	test.That(t, valid, test.ShouldEqual, 0)
	test.That(t, n.Stats().Sync.SyncFailures, test.ShouldEqual, 0)
}

func TestLayoutMismatch(t *testing.T) {
	cfg := newTestConfig(1, 3)
	test.That(t, cfg.Validate("config"), test.ShouldBeNil)
	l, err := filterstate.NewLayout(1, 5)
	test.That(t, err, test.ShouldBeNil)
	est, err := fake.New(fake.Config{Layout: l})
	test.That(t, err, test.ShouldBeNil)
	_, err = New(cfg, est, &MemoryPublisher{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "does not match")
}
