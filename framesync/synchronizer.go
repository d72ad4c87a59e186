// Package framesync groups per-camera frames that share one timestamp into batches for the
// estimator. A batch is handed out as soon as every camera has delivered a frame for its
// timestamp; a frame for a different timestamp discards any partially filled batch.
package framesync

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/ProjectArtemis/rovio/logging"
	"github.com/ProjectArtemis/rovio/rimage"
)

// BatchStatus is the outcome of observing one frame.
type BatchStatus int

const (
	// Pending means the batch still misses frames from some cameras.
	Pending BatchStatus = iota
	// Complete means the observed frame completed the batch.
	Complete
	// Resynced means the frame started a new batch after discarding a partial one.
	Resynced
)

func (bs BatchStatus) String() string {
	switch bs {
	case Pending:
		return "pending"
	case Complete:
		return "complete"
	case Resynced:
		return "resynced"
	default:
		return "unknown"
	}
}

// ErrUnknownCamera is returned when a frame names a camera outside the configured range.
var ErrUnknownCamera = errors.New("unknown camera")

// CameraSlot holds the frame of one camera for the batch timestamp.
type CameraSlot struct {
	CameraID int
	Pyramid  *rimage.Pyramid
	Valid    bool
}

// Batch is one frame per camera for a shared timestamp.
type Batch struct {
	Timestamp float64
	Slots     []CameraSlot
}

func newBatch(numCameras int) *Batch {
	b := &Batch{Slots: make([]CameraSlot, numCameras)}
	for i := range b.Slots {
		b.Slots[i].CameraID = i
	}
	return b
}

// Complete reports whether every slot holds a frame.
func (b *Batch) Complete() bool {
	return lo.EveryBy(b.Slots, func(s CameraSlot) bool { return s.Valid })
}

// ValidCount is the number of slots holding a frame.
func (b *Batch) ValidCount() int {
	return lo.CountBy(b.Slots, func(s CameraSlot) bool { return s.Valid })
}

// Stats counts the synchronizer's outcomes since construction.
type Stats struct {
	Dispatched   int64
	SyncFailures int64
	StaleDrops   int64
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock sets the clock used to age partial batches.
func WithClock(c clock.Clock) Option {
	return func(s *Synchronizer) {
		s.clock = c
	}
}

// WithStaleAfter sets the age after which DropStale discards a partial batch. Zero disables it.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Synchronizer) {
		s.staleAfter = d
	}
}

// Synchronizer accumulates per-camera frames into batches.
type Synchronizer struct {
	mu           sync.Mutex
	numCameras   int
	batch        *Batch
	firstArrival time.Time
	clock        clock.Clock
	staleAfter   time.Duration
	stats        Stats
	logger       logging.Logger
}

// NewSynchronizer returns a synchronizer for numCameras cameras.
func NewSynchronizer(numCameras int, logger logging.Logger, opts ...Option) (*Synchronizer, error) {
	if logger == nil {
		logger = logging.NewBlankLogger("framesync")
	}
	if numCameras < 1 {
		return nil, errors.Errorf("need at least one camera, got %d", numCameras)
	}
	s := &Synchronizer{
		numCameras: numCameras,
		batch:      newBatch(numCameras),
		clock:      clock.New(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.staleAfter < 0 {
		return nil, errors.Errorf("stale timeout cannot be negative, got %v", s.staleAfter)
	}
	return s, nil
}

// Observe stores the frame of cameraID for timestamp t. On Complete the finished batch is
// returned and the synchronizer starts over with empty slots.
func (s *Synchronizer) Observe(cameraID int, pyr *rimage.Pyramid, t float64) (BatchStatus, *Batch, error) {
	if cameraID < 0 || cameraID >= s.numCameras {
		return Pending, nil, errors.Wrapf(ErrUnknownCamera, "camera %d of %d", cameraID, s.numCameras)
	}
	if pyr == nil {
		return Pending, nil, errors.Errorf("camera %d delivered no image", cameraID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status := Pending
	valid := s.batch.ValidCount()
	if valid > 0 && t != s.batch.Timestamp {
		s.stats.SyncFailures++
		s.logger.Warnw("sync failure, discarding partial batch",
			"camera", cameraID, "batch_time", s.batch.Timestamp, "time", t, "valid_slots", valid)
		s.reset()
		status = Resynced
		valid = 0
	}
	if valid == 0 {
		s.batch.Timestamp = t
		s.firstArrival = s.clock.Now()
	}

	slot := &s.batch.Slots[cameraID]
	if slot.Valid {
		s.logger.Debugw("replacing frame", "camera", cameraID, "time", t)
	}
	slot.Pyramid = pyr
	slot.Valid = true

	if !s.batch.Complete() {
		return status, nil, nil
	}
	out := s.batch
	s.reset()
	s.stats.Dispatched++
	return Complete, out, nil
}

// DropStale discards the partial batch if its first frame arrived at least the stale timeout
// ago, and reports whether it did.
func (s *Synchronizer) DropStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staleAfter == 0 {
		return false
	}
	valid := s.batch.ValidCount()
	if valid == 0 {
		return false
	}
	age := s.clock.Since(s.firstArrival)
	if age < s.staleAfter {
		return false
	}
	s.stats.StaleDrops++
	s.logger.Warnw("incomplete batch dropped",
		"batch_time", s.batch.Timestamp, "valid_slots", valid, "age", age)
	s.reset()
	return true
}

// Partial returns the timestamp and valid slot count of the batch being filled.
func (s *Synchronizer) Partial() (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch.Timestamp, s.batch.ValidCount()
}

// Stats returns the outcome counters.
func (s *Synchronizer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Synchronizer) reset() {
	s.batch = newBatch(s.numCameras)
	s.firstArrival = time.Time{}
}
