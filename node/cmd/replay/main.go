// Package main replays a rosbag through the node with the simulated estimator and records the
// resulting artifacts.
package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/ProjectArtemis/rovio/config"
	"github.com/ProjectArtemis/rovio/estimator"
	"github.com/ProjectArtemis/rovio/estimator/fake"
	"github.com/ProjectArtemis/rovio/filterstate"
	"github.com/ProjectArtemis/rovio/logging"
	"github.com/ProjectArtemis/rovio/node"
	"github.com/ProjectArtemis/rovio/ros"
	"github.com/ProjectArtemis/rovio/spatialmath"
)

var logger = logging.NewLogger("replay")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"0,required,usage=node config file"`
	Bag        string `flag:"bag,required,usage=rosbag to replay"`
	Out        string `flag:"out,usage=output directory, overrides the config"`
	Debug      bool   `flag:"debug"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg, err := config.Read(argsParsed.ConfigFile)
	if err != nil {
		return err
	}
	if argsParsed.Out != "" {
		cfg.Output.Dir = argsParsed.Out
	}
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return err
	}
	if argsParsed.Debug {
		level = logging.DEBUG
	}
	logger.SetLevel(level)

	est, err := newEstimator(cfg)
	if err != nil {
		return err
	}
	rec, err := node.NewFileRecorder(cfg.Output, logger.Sublogger("recorder"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, rec.Close())
	}()
	n, err := node.New(cfg, est, rec, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, n.Close(ctx))
	}()

	if err := replay(ctx, cfg, argsParsed.Bag, n); err != nil {
		return err
	}
	stats := n.Stats()
	logger.Infow("replay done", "published", stats.Published, "sync_failures", stats.Sync.SyncFailures,
		"stale_drops", stats.Sync.StaleDrops, "decode_failures", stats.DecodeFailures)
	return nil
}

func newEstimator(cfg *config.Config) (*fake.Estimator, error) {
	layout, err := cfg.Layout()
	if err != nil {
		return nil, err
	}
	var extrinsics []filterstate.Extrinsics
	for _, ex := range cfg.Simulation.Extrinsics {
		extrinsics = append(extrinsics, filterstate.Extrinsics{
			Translation: ex.Translation,
			Rotation:    spatialmath.QuatFromRotationVector(ex.RotationVector),
		})
	}
	return fake.New(fake.Config{
		Layout:       layout,
		Landmarks:    cfg.Simulation.Landmarks,
		Extrinsics:   extrinsics,
		DistanceType: cfg.Distance(),
		Gravity:      cfg.Simulation.Gravity,
	})
}

func replay(ctx context.Context, cfg *config.Config, bag string, n *node.Node) error {
	rb, err := ros.ReadBag(bag)
	if err != nil {
		return err
	}
	topics := append([]string{cfg.Topics.Imu}, cfg.Topics.Cameras...)
	if cfg.Topics.Pose != "" {
		topics = append(topics, cfg.Topics.Pose)
	}
	if err := ros.ParseTopics(rb, topics); err != nil {
		return err
	}
	records, err := ros.TopicRecords(rb, topics)
	if err != nil {
		return err
	}
	cameras := make(map[string]int, len(cfg.Topics.Cameras))
	for i, topic := range cfg.Topics.Cameras {
		cameras[topic] = i
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := dispatch(ctx, cfg, cameras, n, r); err != nil {
			return errors.Wrapf(err, "replaying %s at %v", r.Topic, r.Time)
		}
	}
	return nil
}

func dispatch(ctx context.Context, cfg *config.Config, cameras map[string]int, n *node.Node, r ros.Record) error {
	if cam, ok := cameras[r.Topic]; ok {
		if cfg.Topics.Compressed {
			msg, err := ros.Decode[ros.CompressedImageMessage](r)
			if err != nil {
				return err
			}
			img := node.Image{Compressed: true, Data: msg.Data.Data}
			return n.HandleImage(ctx, cam, img, msg.Data.Header.Stamp.Seconds())
		}
		msg, err := ros.Decode[ros.ImageMessage](r)
		if err != nil {
			return err
		}
		img := node.Image{
			Encoding: msg.Data.Encoding,
			Width:    msg.Data.Width,
			Height:   msg.Data.Height,
			Step:     msg.Data.Step,
			Data:     msg.Data.Data,
		}
		return n.HandleImage(ctx, cam, img, msg.Data.Header.Stamp.Seconds())
	}

	switch r.Topic {
	case cfg.Topics.Imu:
		msg, err := ros.Decode[ros.ImuMessage](r)
		if err != nil {
			return err
		}
		sample := estimator.InertialSample{
			Acc: msg.Data.LinearAcceleration.R3(),
			Gyr: msg.Data.AngularVelocity.R3(),
		}
		return n.HandleInertial(ctx, sample, msg.Data.Header.Stamp.Seconds())
	case cfg.Topics.Pose:
		msg, err := ros.Decode[ros.TransformStampedMessage](r)
		if err != nil {
			return err
		}
		m := estimator.PoseMeasurement{Pose: filterstate.Pose{
			Translation: msg.Data.Transform.Translation.R3(),
			Rotation:    msg.Data.Transform.Rotation.Quat(),
		}}
		return n.HandlePose(ctx, m, msg.Data.Header.Stamp.Seconds())
	}
	return nil
}
