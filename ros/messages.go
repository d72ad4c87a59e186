package ros

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Time is a ROS timestamp.
type Time struct {
	Secs  int
	Nsecs int
}

// Seconds returns the timestamp in seconds.
func (t Time) Seconds() float64 {
	return float64(t.Secs) + float64(t.Nsecs)*1e-9
}

// Header is std_msgs/Header.
type Header struct {
	Seq     int
	Stamp   Time
	FrameID string `json:"frame_id"`
}

// Vector3 is geometry_msgs/Vector3.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// R3 converts the vector.
func (v Vector3) R3() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64
	Y float64
	Z float64
	W float64
}

// Quat converts the quaternion.
func (q Quaternion) Quat() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// ImuMessage is sensor_msgs/Imu as decoded from a bag.
type ImuMessage struct {
	Meta Time
	Data struct {
		Header                       Header
		Orientation                  Quaternion
		OrientationCovariance        [9]float64 `json:"orientation_covariance"`
		AngularVelocity              Vector3    `json:"angular_velocity"`
		AngularVelocityCovariance    [9]float64 `json:"angular_velocity_covariance"`
		LinearAcceleration           Vector3    `json:"linear_acceleration"`
		LinearAccelerationCovariance [9]float64 `json:"linear_acceleration_covariance"`
	}
}

// ImageMessage is sensor_msgs/Image as decoded from a bag.
type ImageMessage struct {
	Meta Time
	Data struct {
		Header      Header
		Height      int
		Width       int
		Encoding    string
		IsBigendian int `json:"is_bigendian"`
		Step        int
		Data        []byte
	}
}

// CompressedImageMessage is sensor_msgs/CompressedImage as decoded from a bag.
type CompressedImageMessage struct {
	Meta Time
	Data struct {
		Header Header
		Format string
		Data   []byte
	}
}

// TransformStampedMessage is geometry_msgs/TransformStamped as decoded from a bag.
type TransformStampedMessage struct {
	Meta Time
	Data struct {
		Header       Header
		ChildFrameID string `json:"child_frame_id"`
		Transform    struct {
			Translation Vector3
			Rotation    Quaternion
		}
	}
}
