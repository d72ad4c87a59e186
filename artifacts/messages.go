package artifacts

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/ProjectArtemis/rovio/pointcloud"
)

// Header stamps every published message.
type Header struct {
	Seq     uint32  `json:"seq"`
	Stamp   float64 `json:"stamp"`
	FrameID string  `json:"frame_id"`
}

// Vector3 is a JSON friendly 3-vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NewVector3 converts an r3.Vector.
func NewVector3(v r3.Vector) Vector3 {
	return Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

// R3 converts back to an r3.Vector.
func (v Vector3) R3() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

// Quaternion is a JSON friendly rotation with the scalar part last.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// NewQuaternion converts a gonum quaternion.
func NewQuaternion(q quat.Number) Quaternion {
	return Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}

// Quat converts back to a gonum quaternion.
func (q Quaternion) Quat() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// Pose is a position and an orientation. The orientation rotates child frame vectors into the
// parent frame.
type Pose struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// PoseStamped is the camera pose in the world frame.
type PoseStamped struct {
	Header Header `json:"header"`
	Pose   Pose   `json:"pose"`
}

// TransformStamped places ChildFrameID in Header.FrameID.
type TransformStamped struct {
	Header       Header     `json:"header"`
	ChildFrameID string     `json:"child_frame_id"`
	Translation  Vector3    `json:"translation"`
	Rotation     Quaternion `json:"rotation"`
}

// PoseWithCovariance carries a row-major 6x6 covariance over position then attitude.
type PoseWithCovariance struct {
	Pose       Pose        `json:"pose"`
	Covariance [36]float64 `json:"covariance"`
}

// Twist is a linear and an angular velocity.
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// TwistWithCovariance carries a row-major 6x6 covariance over linear then angular velocity.
type TwistWithCovariance struct {
	Twist      Twist       `json:"twist"`
	Covariance [36]float64 `json:"covariance"`
}

// Odometry is the camera pose in the world frame and its twist in the camera frame.
type Odometry struct {
	Header       Header              `json:"header"`
	ChildFrameID string              `json:"child_frame_id"`
	Pose         PoseWithCovariance  `json:"pose"`
	Twist        TwistWithCovariance `json:"twist"`
}

// ExtendedSummary bundles odometry with attitude angles, IMU biases and the reporting camera's
// extrinsics. Ypr vectors hold yaw, pitch and roll in x, y and z. Sigma fields hold variances.
type ExtendedSummary struct {
	Header             Header             `json:"header"`
	Odometry           Odometry           `json:"odometry"`
	YprOdometry        Vector3            `json:"ypr_odometry"`
	YprOdometrySigma   Vector3            `json:"ypr_odometry_sigma"`
	AccBias            Vector3            `json:"acc_bias"`
	AccBiasSigma       Vector3            `json:"acc_bias_sigma"`
	GyrBias            Vector3            `json:"gyr_bias"`
	GyrBiasSigma       Vector3            `json:"gyr_bias_sigma"`
	Extrinsics         PoseWithCovariance `json:"extrinsics"`
	YprExtrinsics      Vector3            `json:"ypr_extrinsics"`
	YprExtrinsicsSigma Vector3            `json:"ypr_extrinsics_sigma"`
}

// Marker types and actions.
const (
	MarkerLineList = "LINE_LIST"
	MarkerAdd      = "ADD"
)

// Color is an RGBA color with components in [0, 1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// LineMarker is a visualization marker. For a line list each consecutive pair of points is one
// segment.
type LineMarker struct {
	Header Header    `json:"header"`
	ID     int       `json:"id"`
	Type   string    `json:"type"`
	Action string    `json:"action"`
	Pose   Pose      `json:"pose"`
	Width  float64   `json:"width"`
	Color  Color     `json:"color"`
	Points []Vector3 `json:"points"`
}

// LandmarkCloud is the stamped landmark point cloud. Points are in the frame of the camera
// that tracks them.
type LandmarkCloud struct {
	Header Header
	Cloud  *pointcloud.LandmarkCloud
}

// Set is everything published for one safe state. All headers share Seq.
type Set struct {
	Seq        uint32
	Timestamp  float64
	Pose       PoseStamped
	Transforms []TransformStamped
	Odometry   Odometry
	Summary    ExtendedSummary
	Cloud      LandmarkCloud
	Rays       LineMarker
}
