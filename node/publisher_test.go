package node

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/ProjectArtemis/rovio/artifacts"
	"github.com/ProjectArtemis/rovio/config"
	"github.com/ProjectArtemis/rovio/logging"
	"github.com/ProjectArtemis/rovio/pointcloud"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	//nolint:gosec
	f, err := os.Open(path)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	test.That(t, scanner.Err(), test.ShouldBeNil)
	return lines
}

func TestFileRecorder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	out := config.Output{Dir: dir, Clouds: true}
	test.That(t, out.Validate("output"), test.ShouldBeNil)
	rec, err := NewFileRecorder(out, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	cloud := pointcloud.NewLandmarkCloud(2)
	set := &artifacts.Set{
		Seq:       7,
		Timestamp: 1.5,
		Pose:      artifacts.PoseStamped{Header: artifacts.Header{Seq: 7, Stamp: 1.5, FrameID: "world"}},
		Transforms: []artifacts.TransformStamped{
			{ChildFrameID: "camera"},
			{ChildFrameID: "imu"},
		},
		Cloud: artifacts.LandmarkCloud{Cloud: cloud},
		Rays:  artifacts.LineMarker{Type: artifacts.MarkerLineList},
	}
	test.That(t, rec.Publish(context.Background(), set), test.ShouldBeNil)
	test.That(t, rec.Close(), test.ShouldBeNil)

	lines := readLines(t, filepath.Join(dir, PoseFile))
	test.That(t, lines, test.ShouldHaveLength, 1)
	var pose artifacts.PoseStamped
	test.That(t, json.Unmarshal([]byte(lines[0]), &pose), test.ShouldBeNil)
	test.That(t, pose, test.ShouldResemble, set.Pose)

	test.That(t, readLines(t, filepath.Join(dir, TransformsFile)), test.ShouldHaveLength, 2)
	for _, name := range []string{OdometryFile, SummaryFile, RaysFile} {
		test.That(t, readLines(t, filepath.Join(dir, name)), test.ShouldHaveLength, 1)
	}

	//nolint:gosec
	f, err := os.Open(filepath.Join(dir, CloudFile(7)))
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	back, err := pointcloud.ReadPCD(f)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Size(), test.ShouldEqual, 2)
}

func TestFileRecorderNeedsDir(t *testing.T) {
	_, err := NewFileRecorder(config.Output{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCloudFile(t *testing.T) {
	test.That(t, CloudFile(12), test.ShouldEqual, "cloud_000012.pcd")
}
