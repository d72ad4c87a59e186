package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/ProjectArtemis/rovio/config"
	"github.com/ProjectArtemis/rovio/logging"
	"github.com/ProjectArtemis/rovio/node"
	"github.com/ProjectArtemis/rovio/ros"
)

func imuRecord(secs, nsecs int) ros.Record {
	line := fmt.Sprintf(`{"meta":{"secs":%d,"nsecs":%d},"data":{"header":{"stamp":{"secs":%d,"nsecs":%d}},`+
		`"angular_velocity":{"x":0,"y":0,"z":0},"linear_acceleration":{"x":0,"y":0,"z":9.81}}}`, secs, nsecs, secs, nsecs)
	return ros.Record{Topic: "/imu0", Raw: json.RawMessage(line)}
}

func imageRecord(secs, nsecs int) ros.Record {
	data := base64.StdEncoding.EncodeToString(make([]byte, 16))
	line := fmt.Sprintf(`{"meta":{"secs":%d,"nsecs":%d},"data":{"header":{"stamp":{"secs":%d,"nsecs":%d}},`+
		`"height":4,"width":4,"encoding":"mono8","step":4,"data":%q}}`, secs, nsecs, secs, nsecs, data)
	return ros.Record{Topic: "/cam0/image_raw", Raw: json.RawMessage(line)}
}

func TestDispatch(t *testing.T) {
	cfg := &config.Config{
		NumCameras:  1,
		MaxFeatures: 2,
		Topics:      config.Topics{Imu: "/imu0", Cameras: []string{"/cam0/image_raw"}},
		Simulation: config.Simulation{
			Landmarks:  []r3.Vector{{Z: 3}},
			Extrinsics: []config.Extrinsics{{}},
		},
	}
	test.That(t, cfg.Validate("config"), test.ShouldBeNil)
	est, err := newEstimator(cfg)
	test.That(t, err, test.ShouldBeNil)
	pub := &node.MemoryPublisher{}
	n, err := node.New(cfg, est, pub, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, n.Close(context.Background()), test.ShouldBeNil)
	}()

	cameras := map[string]int{"/cam0/image_raw": 0}
	ctx := context.Background()
	for _, r := range []ros.Record{
		imuRecord(0, 0), imageRecord(0, 0), imuRecord(0, 100000000), imageRecord(0, 100000000),
		{Topic: "/unrelated", Raw: json.RawMessage(`{}`)},
	} {
		test.That(t, dispatch(ctx, cfg, cameras, n, r), test.ShouldBeNil)
	}

	sets := pub.Sets()
	test.That(t, sets, test.ShouldHaveLength, 1)
	test.That(t, sets[0].Timestamp, test.ShouldAlmostEqual, 0.1)
	_, ok := sets[0].Cloud.Cloud.At(0)
	test.That(t, ok, test.ShouldBeTrue)

	bad := ros.Record{Topic: "/imu0", Raw: json.RawMessage(`{"data":`)}
	test.That(t, dispatch(ctx, cfg, cameras, n, bad), test.ShouldNotBeNil)
}
