// Package config defines the node configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/ProjectArtemis/rovio/artifacts"
	"github.com/ProjectArtemis/rovio/filterstate"
	"github.com/ProjectArtemis/rovio/logging"
)

// Defaults applied by Validate.
const (
	DefaultPyramidLevels = 4
	DefaultMaxSizeMB     = 100
	DefaultMaxBackups    = 3
)

// Config is the node configuration.
type Config struct {
	NumCameras  int `json:"num_cameras"`
	MaxFeatures int `json:"max_features"`
	// PoseTimeOffset is added to the timestamp of every external pose measurement, in seconds.
	PoseTimeOffset float64 `json:"pose_time_offset_sec"`
	// StaleTimeout drops a partial image batch after this many seconds. Zero keeps it forever.
	StaleTimeout  float64          `json:"stale_timeout_sec"`
	PyramidLevels int              `json:"pyramid_levels"`
	DistanceType  string           `json:"distance_type"`
	Frames        artifacts.Frames `json:"frames"`
	Verbose       bool             `json:"verbose"`
	LogLevel      string           `json:"log_level"`
	Topics        Topics           `json:"topics"`
	Output        Output           `json:"output"`
	Simulation    Simulation       `json:"simulation"`

	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-"`
}

// Topics names the bag topics replayed into the node.
type Topics struct {
	Imu     string   `json:"imu"`
	Cameras []string `json:"cameras"`
	Pose    string   `json:"pose,omitempty"`
	// Compressed marks the camera topics as sensor_msgs/CompressedImage.
	Compressed bool `json:"compressed"`
}

// Output configures the artifact recorder.
type Output struct {
	Dir        string `json:"dir"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	Clouds     bool   `json:"clouds"`
}

// Extrinsics places a camera on the body: translation in the body frame and the rotation
// vector of the body to camera rotation.
type Extrinsics struct {
	Translation    r3.Vector `json:"translation"`
	RotationVector r3.Vector `json:"rotation_vector"`
}

// Simulation configures the built-in estimator used for replay.
type Simulation struct {
	Landmarks  []r3.Vector  `json:"landmarks"`
	Extrinsics []Extrinsics `json:"extrinsics"`
	Gravity    float64      `json:"gravity"`
}

// Validate checks the config and fills in defaults.
func (c *Config) Validate(path string) error {
	if c.NumCameras < 1 {
		return utils.NewConfigValidationError(path, errors.New("num_cameras must be at least 1"))
	}
	if c.MaxFeatures < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_features cannot be negative"))
	}
	if c.StaleTimeout < 0 {
		return utils.NewConfigValidationError(path, errors.New("stale_timeout_sec cannot be negative"))
	}
	if c.PyramidLevels < 0 {
		return utils.NewConfigValidationError(path, errors.New("pyramid_levels cannot be negative"))
	}
	if c.PyramidLevels == 0 {
		c.PyramidLevels = DefaultPyramidLevels
	}
	if _, err := filterstate.DistanceTypeFromString(c.DistanceType); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	defaults := artifacts.DefaultFrames()
	for _, f := range []struct {
		val *string
		def string
	}{
		{&c.Frames.Map, defaults.Map},
		{&c.Frames.World, defaults.World},
		{&c.Frames.Camera, defaults.Camera},
		{&c.Frames.Imu, defaults.Imu},
	} {
		if *f.val == "" {
			*f.val = f.def
		}
	}
	if err := c.Topics.Validate(fmt.Sprintf("%s.%s", path, "topics"), c.NumCameras); err != nil {
		return err
	}
	if err := c.Output.Validate(fmt.Sprintf("%s.%s", path, "output")); err != nil {
		return err
	}
	return c.Simulation.Validate(fmt.Sprintf("%s.%s", path, "simulation"), c.NumCameras)
}

// Validate checks that there is an IMU topic and one topic per camera.
func (t *Topics) Validate(path string, numCameras int) error {
	if t.Imu == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "imu")
	}
	if len(t.Cameras) != numCameras {
		return utils.NewConfigValidationError(path,
			errors.Errorf("got %d camera topics for %d cameras", len(t.Cameras), numCameras))
	}
	for idx, topic := range t.Cameras {
		if topic == "" {
			return utils.NewConfigValidationFieldRequiredError(path, fmt.Sprintf("cameras.%d", idx))
		}
	}
	return nil
}

// Validate fills in the rotation defaults.
func (o *Output) Validate(path string) error {
	if o.MaxSizeMB < 0 || o.MaxBackups < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_size_mb and max_backups cannot be negative"))
	}
	if o.MaxSizeMB == 0 {
		o.MaxSizeMB = DefaultMaxSizeMB
	}
	if o.MaxBackups == 0 {
		o.MaxBackups = DefaultMaxBackups
	}
	return nil
}

// Validate checks the extrinsics count. Missing extrinsics mean identity for every camera.
func (s *Simulation) Validate(path string, numCameras int) error {
	if len(s.Extrinsics) != 0 && len(s.Extrinsics) != numCameras {
		return utils.NewConfigValidationError(path,
			errors.Errorf("got %d extrinsics for %d cameras", len(s.Extrinsics), numCameras))
	}
	if s.Gravity < 0 {
		return utils.NewConfigValidationError(path, errors.New("gravity cannot be negative"))
	}
	return nil
}

// Layout returns the state layout the config describes.
func (c *Config) Layout() (filterstate.Layout, error) {
	return filterstate.NewLayout(c.NumCameras, c.MaxFeatures)
}

// StaleAfter returns the staleness timeout as a duration.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleTimeout * float64(time.Second))
}

// Distance returns the configured landmark distance parameterization.
func (c *Config) Distance() filterstate.DistanceType {
	dt, err := filterstate.DistanceTypeFromString(c.DistanceType)
	if err != nil {
		return filterstate.DistanceInverse
	}
	return dt
}
