// Package node wires the frame synchronizer, the estimator gateway, the output chain and the
// artifact builder together behind sensor callbacks.
package node

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"

	"github.com/ProjectArtemis/rovio/artifacts"
	"github.com/ProjectArtemis/rovio/config"
	"github.com/ProjectArtemis/rovio/estimator"
	"github.com/ProjectArtemis/rovio/framesync"
	"github.com/ProjectArtemis/rovio/logging"
	"github.com/ProjectArtemis/rovio/outputs"
	"github.com/ProjectArtemis/rovio/rimage"
	"github.com/ProjectArtemis/rovio/utils"
)

// minSweepInterval bounds how often the staleness sweep runs.
const minSweepInterval = 10 * time.Millisecond

// Image is one camera frame as received. Compressed frames carry an encoded file in Data and
// ignore the raw fields.
type Image struct {
	Compressed bool
	Encoding   string
	Width      int
	Height     int
	Step       int
	Data       []byte
}

// Stats counts what the node did with its inputs.
type Stats struct {
	Published      int64
	DecodeFailures int64
	// Ignored counts images and pose measurements that arrived before initialization.
	Ignored int64
	Sync    framesync.Stats
}

// Option configures a Node.
type Option func(*Node)

// WithClock sets the clock of the staleness sweep and the update timing.
func WithClock(clk clock.Clock) Option {
	return func(n *Node) {
		n.clock = clk
	}
}

// Node handles sensor callbacks. All callbacks may be called concurrently.
type Node struct {
	// mu serializes access to the synchronizer and the gateway.
	mu sync.Mutex
	// publishMu keeps artifact sets in safe state order. It is taken before mu is released.
	publishMu sync.Mutex

	pyramidLevels int
	clock         clock.Clock
	sync          *framesync.Synchronizer
	gateway       *estimator.Gateway
	chain         *outputs.Chain
	builder       *artifacts.Builder
	publisher     Publisher
	workers       utils.StoppableWorkers
	logger        logging.Logger

	published      atomic.Int64
	decodeFailures atomic.Int64
	ignored        atomic.Int64
}

// New returns a node driving est. The estimator's layout must match the configured one.
func New(cfg *config.Config, est estimator.Estimator, pub Publisher, logger logging.Logger, opts ...Option) (*Node, error) {
	if logger == nil {
		logger = logging.NewBlankLogger("rovio")
	}
	layout, err := cfg.Layout()
	if err != nil {
		return nil, err
	}
	if est.Layout() != layout {
		return nil, errors.Errorf("estimator layout %+v does not match configured layout %+v", est.Layout(), layout)
	}

	n := &Node{
		pyramidLevels: cfg.PyramidLevels,
		clock:         clock.New(),
		publisher:     pub,
		logger:        logger,
	}
	if n.pyramidLevels < 1 {
		n.pyramidLevels = config.DefaultPyramidLevels
	}
	for _, opt := range opts {
		opt(n)
	}

	n.sync, err = framesync.NewSynchronizer(cfg.NumCameras, logger.Sublogger("framesync"),
		framesync.WithClock(n.clock), framesync.WithStaleAfter(cfg.StaleAfter()))
	if err != nil {
		return nil, err
	}
	n.gateway = estimator.NewGateway(est, logger.Sublogger("estimator"),
		estimator.WithPoseTimeOffset(cfg.PoseTimeOffset), estimator.WithGatewayClock(n.clock))
	if n.chain, err = outputs.NewChain(layout, 0); err != nil {
		return nil, err
	}
	if n.builder, err = artifacts.NewBuilder(layout, cfg.Frames, logger.Sublogger("artifacts"),
		artifacts.WithVerbose(cfg.Verbose)); err != nil {
		return nil, err
	}

	n.workers = utils.NewStoppableWorkers()
	if stale := cfg.StaleAfter(); stale > 0 {
		interval := stale / 2
		if interval < minSweepInterval {
			interval = minSweepInterval
		}
		n.workers.AddWorkers(utils.TickerWorker(n.clock, interval, n.sweep))
	}
	return n, nil
}

// HandleInertial feeds one IMU sample. The first sample initializes the filter; later samples
// may advance the safe state and publish.
func (n *Node) HandleInertial(ctx context.Context, sample estimator.InertialSample, t float64) error {
	n.mu.Lock()
	initialized, err := n.gateway.PushInertial(sample, t)
	if err != nil || initialized {
		n.mu.Unlock()
		return err
	}
	return n.refreshAndPublish(ctx)
}

// HandleImage feeds one frame of camera cam. Frames that fail to decode are dropped and logged.
func (n *Node) HandleImage(ctx context.Context, cam int, img Image, t float64) error {
	pyr, err := n.decode(img)
	if err != nil {
		n.decodeFailures.Inc()
		n.logger.Errorw("dropping frame", "camera", cam, "time", t, "error", err)
		return nil
	}

	n.mu.Lock()
	if n.gateway.State() == estimator.Uninitialized {
		n.mu.Unlock()
		n.ignored.Inc()
		return nil
	}
	status, batch, err := n.sync.Observe(cam, pyr, t)
	if err != nil || status != framesync.Complete {
		n.mu.Unlock()
		return err
	}
	if err := n.gateway.PushImageBatch(batch, batch.Timestamp); err != nil {
		n.mu.Unlock()
		return err
	}
	return n.refreshAndPublish(ctx)
}

// HandlePose feeds one external pose measurement.
func (n *Node) HandlePose(ctx context.Context, m estimator.PoseMeasurement, t float64) error {
	n.mu.Lock()
	if n.gateway.State() == estimator.Uninitialized {
		n.mu.Unlock()
		n.ignored.Inc()
		return nil
	}
	if err := n.gateway.PushPoseMeasurement(m, t); err != nil {
		n.mu.Unlock()
		return err
	}
	return n.refreshAndPublish(ctx)
}

// refreshAndPublish must be called with mu held and releases it.
func (n *Node) refreshAndPublish(ctx context.Context) error {
	safe, advanced, err := n.gateway.RefreshSafeState(ctx)
	if err != nil || !advanced {
		n.mu.Unlock()
		return err
	}
	n.publishMu.Lock()
	n.mu.Unlock()
	defer n.publishMu.Unlock()
	return n.publish(ctx, safe)
}

func (n *Node) publish(ctx context.Context, safe *estimator.SafeState) error {
	ctx, span := trace.StartSpan(ctx, "node::publish")
	defer span.End()

	res, err := n.chain.Evaluate(ctx, safe.State, safe.Covariance, safe.ValidFeatures)
	if err != nil {
		return errors.Wrapf(err, "cannot evaluate outputs at %v", safe.Timestamp)
	}
	set, err := n.builder.Build(ctx, safe, res)
	if err != nil {
		return errors.Wrapf(err, "cannot build artifacts at %v", safe.Timestamp)
	}
	if err := n.publisher.Publish(ctx, set); err != nil {
		return errors.Wrapf(err, "cannot publish artifacts %d", set.Seq)
	}
	n.published.Inc()
	return nil
}

func (n *Node) decode(img Image) (*rimage.Pyramid, error) {
	var (
		gray *image.Gray
		err  error
	)
	if img.Compressed {
		gray, err = rimage.DecodeCompressed(img.Data)
	} else {
		gray, err = rimage.Decode(img.Encoding, img.Width, img.Height, img.Step, img.Data)
	}
	if err != nil {
		return nil, err
	}
	return rimage.NewPyramid(gray, n.pyramidLevels)
}

func (n *Node) sweep(context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sync.DropStale()
}

// Stats returns the node counters.
func (n *Node) Stats() Stats {
	return Stats{
		Published:      n.published.Load(),
		DecodeFailures: n.decodeFailures.Load(),
		Ignored:        n.ignored.Load(),
		Sync:           n.sync.Stats(),
	}
}

// Timing returns the filter update statistics.
func (n *Node) Timing() (estimator.Timing, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gateway.Timing()
}

// Close stops the staleness sweep. The publisher is left open.
func (n *Node) Close(ctx context.Context) error {
	n.workers.Stop()
	timing, err := n.Timing()
	if err != nil {
		return err
	}
	n.logger.Infow("node closed", "published", n.published.Load(), "updates", timing.Updates,
		"mean_update_ms", timing.MeanMs, "p95_update_ms", timing.P95Ms)
	return nil
}
