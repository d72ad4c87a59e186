package framesync

import (
	"image"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/ProjectArtemis/rovio/logging"
	"github.com/ProjectArtemis/rovio/rimage"
)

func testPyramid(t *testing.T) *rimage.Pyramid {
	t.Helper()
	p, err := rimage.NewPyramid(image.NewGray(image.Rect(0, 0, 4, 4)), 1)
	test.That(t, err, test.ShouldBeNil)
	return p
}

func TestSingleCameraCompletesImmediately(t *testing.T) {
	s, err := NewSynchronizer(1, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	for _, ts := range []float64{0.0, 0.1, 0.1, 0.2} {
		status, batch, err := s.Observe(0, testPyramid(t), ts)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, status, test.ShouldEqual, Complete)
		test.That(t, batch.Timestamp, test.ShouldEqual, ts)
		test.That(t, batch.Slots, test.ShouldHaveLength, 1)
		test.That(t, batch.Complete(), test.ShouldBeTrue)
	}
	test.That(t, s.Stats(), test.ShouldResemble, Stats{Dispatched: 4})
}

func TestTwoCameraBatch(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	s, err := NewSynchronizer(2, logger)
	test.That(t, err, test.ShouldBeNil)

	status, batch, err := s.Observe(1, testPyramid(t), 1.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, Pending)
	test.That(t, batch, test.ShouldBeNil)

	ts, valid := s.Partial()
	test.That(t, ts, test.ShouldEqual, 1.0)
	test.That(t, valid, test.ShouldEqual, 1)

	// a repeated frame replaces the slot without completing
	status, _, err = s.Observe(1, testPyramid(t), 1.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, Pending)
	test.That(t, logs.FilterMessage("replacing frame").Len(), test.ShouldEqual, 1)

	p0 := testPyramid(t)
	status, batch, err = s.Observe(0, p0, 1.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, Complete)
	test.That(t, batch.Timestamp, test.ShouldEqual, 1.0)
	test.That(t, batch.Slots[0].Pyramid, test.ShouldEqual, p0)
	test.That(t, batch.Slots[0].CameraID, test.ShouldEqual, 0)
	test.That(t, batch.Slots[1].CameraID, test.ShouldEqual, 1)

	// the synchronizer starts over after dispatch
	_, valid = s.Partial()
	test.That(t, valid, test.ShouldEqual, 0)
	test.That(t, batch.ValidCount(), test.ShouldEqual, 2)
}

func TestMissingFrameResyncs(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	s, err := NewSynchronizer(2, logger)
	test.That(t, err, test.ShouldBeNil)

	status, _, err := s.Observe(0, testPyramid(t), 5.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, Pending)

	// camera 1 never delivers 5.0
	status, batch, err := s.Observe(0, testPyramid(t), 5.2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, Resynced)
	test.That(t, batch, test.ShouldBeNil)
	ts, valid := s.Partial()
	test.That(t, ts, test.ShouldEqual, 5.2)
	test.That(t, valid, test.ShouldEqual, 1)

	status, batch, err = s.Observe(1, testPyramid(t), 5.2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, Complete)
	test.That(t, batch.Timestamp, test.ShouldEqual, 5.2)

	test.That(t, s.Stats(), test.ShouldResemble, Stats{Dispatched: 1, SyncFailures: 1})
	failures := logs.FilterMessage("sync failure, discarding partial batch").All()
	test.That(t, failures, test.ShouldHaveLength, 1)
	test.That(t, failures[0].ContextMap()["batch_time"], test.ShouldEqual, 5.0)
}

func TestNoStaleSlotSurvivesResync(t *testing.T) {
	s, err := NewSynchronizer(3, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_, _, err = s.Observe(0, testPyramid(t), 1.0)
	test.That(t, err, test.ShouldBeNil)
	_, _, err = s.Observe(1, testPyramid(t), 1.0)
	test.That(t, err, test.ShouldBeNil)

	status, _, err := s.Observe(2, testPyramid(t), 2.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, Resynced)

	// the old frames of cameras 0 and 1 must not complete the new batch
	status, _, err = s.Observe(0, testPyramid(t), 2.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, Pending)
	status, batch, err := s.Observe(1, testPyramid(t), 2.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, Complete)
	test.That(t, batch.Timestamp, test.ShouldEqual, 2.0)
}

func TestObserveErrors(t *testing.T) {
	_, err := NewSynchronizer(0, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewSynchronizer(1, logging.NewTestLogger(t), WithStaleAfter(-time.Second))
	test.That(t, err, test.ShouldNotBeNil)

	s, err := NewSynchronizer(2, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	status, batch, err := s.Observe(2, testPyramid(t), 1)
	test.That(t, errors.Is(err, ErrUnknownCamera), test.ShouldBeTrue)
	test.That(t, status, test.ShouldEqual, Pending)
	test.That(t, batch, test.ShouldBeNil)

	_, _, err = s.Observe(0, nil, 1)
	test.That(t, err, test.ShouldNotBeNil)
	_, valid := s.Partial()
	test.That(t, valid, test.ShouldEqual, 0)
}

func TestDropStale(t *testing.T) {
	mock := clock.NewMock()
	logger, logs := logging.NewObservedTestLogger(t)
	s, err := NewSynchronizer(2, logger, WithClock(mock), WithStaleAfter(100*time.Millisecond))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, s.DropStale(), test.ShouldBeFalse)

	_, _, err = s.Observe(0, testPyramid(t), 3.0)
	test.That(t, err, test.ShouldBeNil)
	mock.Add(50 * time.Millisecond)
	test.That(t, s.DropStale(), test.ShouldBeFalse)

	// a second frame for the same batch does not refresh its age
	_, _, err = s.Observe(0, testPyramid(t), 3.0)
	test.That(t, err, test.ShouldBeNil)
	mock.Add(50 * time.Millisecond)
	test.That(t, s.DropStale(), test.ShouldBeTrue)

	_, valid := s.Partial()
	test.That(t, valid, test.ShouldEqual, 0)
	test.That(t, s.Stats().StaleDrops, test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("incomplete batch dropped").Len(), test.ShouldEqual, 1)

	// a fresh frame after the drop starts a batch without a sync failure
	status, _, err := s.Observe(1, testPyramid(t), 3.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, Pending)
	test.That(t, s.Stats().SyncFailures, test.ShouldEqual, 0)
}

func TestDropStaleDisabled(t *testing.T) {
	mock := clock.NewMock()
	s, err := NewSynchronizer(2, logging.NewTestLogger(t), WithClock(mock))
	test.That(t, err, test.ShouldBeNil)
	_, _, err = s.Observe(0, testPyramid(t), 3.0)
	test.That(t, err, test.ShouldBeNil)
	mock.Add(time.Hour)
	test.That(t, s.DropStale(), test.ShouldBeFalse)
}

func TestBatchStatusString(t *testing.T) {
	test.That(t, Complete.String(), test.ShouldEqual, "complete")
	test.That(t, Resynced.String(), test.ShouldEqual, "resynced")
	test.That(t, BatchStatus(9).String(), test.ShouldEqual, "unknown")
}
