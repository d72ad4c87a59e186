package estimator

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/ProjectArtemis/rovio/framesync"
	"github.com/ProjectArtemis/rovio/logging"
)

// timingWindow is the number of filter updates kept for timing statistics.
const timingWindow = 1000

var (
	// ErrNotInitialized is returned for measurements that arrive before the first inertial sample.
	ErrNotInitialized = errors.New("estimator is not initialized")
	// ErrIncompleteBatch is returned when a batch misses frames.
	ErrIncompleteBatch = errors.New("image batch is incomplete")
)

// InitState is the initialization state of the gateway.
type InitState int

// The gateway moves from Uninitialized to Initialized on the first inertial sample and never back.
const (
	Uninitialized InitState = iota
	Initialized
)

func (is InitState) String() string {
	if is == Initialized {
		return "initialized"
	}
	return "uninitialized"
}

// Timing summarizes filter update durations in milliseconds.
type Timing struct {
	Updates int
	Images  int
	MeanMs  float64
	P95Ms   float64
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithPoseTimeOffset shifts pose measurement timestamps by offset seconds.
func WithPoseTimeOffset(offset float64) GatewayOption {
	return func(g *Gateway) {
		g.poseOffset = offset
	}
}

// WithGatewayClock sets the clock used to time filter updates.
func WithGatewayClock(c clock.Clock) GatewayOption {
	return func(g *Gateway) {
		g.clock = c
	}
}

// Gateway forwards measurements to an Estimator and deduplicates its safe states.
type Gateway struct {
	mu           sync.Mutex
	est          Estimator
	poseOffset   float64
	state        InitState
	lastSafeTime float64
	imagesSince  int
	updateMs     []float64
	totalImages  int
	clock        clock.Clock
	logger       logging.Logger
}

// NewGateway wraps est.
func NewGateway(est Estimator, logger logging.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = logging.NewBlankLogger("estimator")
	}
	g := &Gateway{
		est:    est,
		clock:  clock.New(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the initialization state.
func (g *Gateway) State() InitState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// PushInertial forwards an IMU sample. The first sample initializes the estimator from gravity
// instead of being ingested; the returned flag reports that transition.
func (g *Gateway) PushInertial(sample InertialSample, t float64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Uninitialized {
		if err := g.est.InitializeFromGravity(sample.Acc, t); err != nil {
			return false, errors.Wrap(err, "cannot initialize from gravity")
		}
		g.state = Initialized
		g.lastSafeTime = t
		g.logger.Infow("filter initialized", "time", t, "acc", sample.Acc)
		return true, nil
	}
	return false, g.est.PushInertial(sample, t)
}

// PushImageBatch forwards a complete batch as one update measurement.
func (g *Gateway) PushImageBatch(batch *framesync.Batch, t float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Uninitialized {
		return ErrNotInitialized
	}
	if batch == nil || !batch.Complete() {
		return ErrIncompleteBatch
	}
	if err := g.est.PushImageBatch(batch, t); err != nil {
		return err
	}
	g.imagesSince++
	return nil
}

// PushPoseMeasurement forwards an external pose at t plus the configured offset.
func (g *Gateway) PushPoseMeasurement(m PoseMeasurement, t float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Uninitialized {
		return ErrNotInitialized
	}
	return g.est.PushPoseMeasurement(m, t+g.poseOffset)
}

// RefreshSafeState asks the estimator to advance. advanced is true iff the safe state timestamp
// is strictly greater than on the previous call; callers skip publishing otherwise.
func (g *Gateway) RefreshSafeState(ctx context.Context) (*SafeState, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Uninitialized {
		return nil, false, ErrNotInitialized
	}
	start := g.clock.Now()
	safe, err := g.est.RefreshSafeState(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot refresh safe state")
	}
	if safe == nil || safe.Timestamp <= g.lastSafeTime {
		return safe, false, nil
	}
	g.lastSafeTime = safe.Timestamp

	ms := float64(g.clock.Since(start).Microseconds()) / 1000
	g.updateMs = append(g.updateMs, ms)
	if len(g.updateMs) > timingWindow {
		g.updateMs = g.updateMs[len(g.updateMs)-timingWindow:]
	}
	g.totalImages += g.imagesSince
	g.logger.Debugw("filter update", "time", safe.Timestamp, "ms", ms, "images", g.imagesSince)
	g.imagesSince = 0
	return safe, true, nil
}

// LastSafeTime is the timestamp of the latest advanced safe state, or the initialization time.
func (g *Gateway) LastSafeTime() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSafeTime
}

// Timing returns update duration statistics over the recent updates.
func (g *Gateway) Timing() (Timing, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := Timing{Updates: len(g.updateMs), Images: g.totalImages}
	if len(g.updateMs) == 0 {
		return t, nil
	}
	data := stats.Float64Data(g.updateMs)
	var err error
	if t.MeanMs, err = stats.Mean(data); err != nil {
		return t, err
	}
	if t.P95Ms, err = stats.Percentile(data, 95); err != nil {
		return t, err
	}
	return t, nil
}
