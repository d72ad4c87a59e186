// Package pointcloud packs landmark estimates into a fixed-layout point cloud and reads and
// writes it as PCD.
package pointcloud

import (
	"encoding/binary"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// LandmarkFields are the per-point fields in storage order. The c_ij fields are the upper
// triangle of the 4x4 covariance of bearing and distance.
var LandmarkFields = []string{
	"x", "y", "z", "rgb",
	"b_x", "b_y", "b_z", "d",
	"c_00", "c_01", "c_02", "c_03", "c_11", "c_12", "c_13", "c_22", "c_23", "c_33",
}

const (
	fieldSize = 4
	numFields = 18
	rgbField  = 3
	covFields = 10

	// PointStep is the byte size of one point.
	PointStep = fieldSize * numFields
)

// GrayRGB is the packed color of landmark points.
const GrayRGB uint32 = 0xFFFFFF

// Landmark is one valid point of the cloud.
type Landmark struct {
	Position   r3.Vector
	RGB        uint32
	Bearing    r3.Vector
	Distance   float64
	Covariance [covFields]float64
}

// CovarianceUpper packs the upper triangle of a 4x4 symmetric matrix row by row.
func CovarianceUpper(at func(i, j int) float64) [covFields]float64 {
	var out [covFields]float64
	k := 0
	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			out[k] = at(i, j)
			k++
		}
	}
	return out
}

// LandmarkCloud is a fixed-capacity cloud with one point per landmark slot, stored as
// little-endian float32 fields. Empty slots hold NaN in every field.
type LandmarkCloud struct {
	data []byte
	size int
}

// NewLandmarkCloud returns a cloud of capacity slots, all empty.
func NewLandmarkCloud(capacity int) *LandmarkCloud {
	c := &LandmarkCloud{data: make([]byte, capacity*PointStep), size: capacity}
	for i := 0; i < capacity; i++ {
		c.fillNaN(i)
	}
	return c
}

// Size is the number of slots.
func (c *LandmarkCloud) Size() int {
	return c.size
}

// Data returns the packed point records.
func (c *LandmarkCloud) Data() []byte {
	return c.data
}

// IsDense is false since empty slots carry NaN.
func (c *LandmarkCloud) IsDense() bool {
	return false
}

// Set stores a landmark in slot i.
func (c *LandmarkCloud) Set(i int, l Landmark) error {
	if err := c.check(i); err != nil {
		return err
	}
	vals := []float64{
		l.Position.X, l.Position.Y, l.Position.Z, 0,
		l.Bearing.X, l.Bearing.Y, l.Bearing.Z, l.Distance,
	}
	vals = append(vals, l.Covariance[:]...)
	for f, v := range vals {
		c.putFloat(i, f, v)
	}
	binary.LittleEndian.PutUint32(c.field(i, rgbField), l.RGB)
	return nil
}

// SetInvalid marks slot i empty.
func (c *LandmarkCloud) SetInvalid(i int) error {
	if err := c.check(i); err != nil {
		return err
	}
	c.fillNaN(i)
	return nil
}

// At returns the landmark in slot i and whether the slot holds one.
func (c *LandmarkCloud) At(i int) (Landmark, bool) {
	if c.check(i) != nil || math.IsNaN(c.Float(i, 0)) {
		return Landmark{}, false
	}
	l := Landmark{
		Position: r3.Vector{X: c.Float(i, 0), Y: c.Float(i, 1), Z: c.Float(i, 2)},
		RGB:      binary.LittleEndian.Uint32(c.field(i, rgbField)),
		Bearing:  r3.Vector{X: c.Float(i, 4), Y: c.Float(i, 5), Z: c.Float(i, 6)},
		Distance: c.Float(i, 7),
	}
	for k := range l.Covariance {
		l.Covariance[k] = c.Float(i, 8+k)
	}
	return l, true
}

// Float reads field f of slot i as a float32.
func (c *LandmarkCloud) Float(i, f int) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(c.field(i, f))))
}

// Uint reads the raw bits of field f of slot i.
func (c *LandmarkCloud) Uint(i, f int) uint32 {
	return binary.LittleEndian.Uint32(c.field(i, f))
}

func (c *LandmarkCloud) field(i, f int) []byte {
	o := i*PointStep + f*fieldSize
	return c.data[o : o+fieldSize]
}

func (c *LandmarkCloud) putFloat(i, f int, v float64) {
	binary.LittleEndian.PutUint32(c.field(i, f), math.Float32bits(float32(v)))
}

func (c *LandmarkCloud) fillNaN(i int) {
	nan := float32(math.NaN())
	for f := range LandmarkFields {
		binary.LittleEndian.PutUint32(c.field(i, f), math.Float32bits(nan))
	}
}

func (c *LandmarkCloud) check(i int) error {
	if i < 0 || i >= c.size {
		return errors.Errorf("slot %d out of range [0, %d)", i, c.size)
	}
	return nil
}
