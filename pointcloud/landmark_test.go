package pointcloud

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func testLandmark() Landmark {
	return Landmark{
		Position: r3.Vector{X: 0.5, Y: -1, Z: 4},
		RGB:      GrayRGB,
		Bearing:  r3.Vector{X: 0.1, Y: -0.2, Z: 0.97},
		Distance: 4.2,
		Covariance: CovarianceUpper(func(i, j int) float64 {
			return float64(10*i + j)
		}),
	}
}

func TestLandmarkLayout(t *testing.T) {
	test.That(t, LandmarkFields, test.ShouldHaveLength, numFields)
	test.That(t, PointStep, test.ShouldEqual, 72)

	c := NewLandmarkCloud(3)
	test.That(t, c.Size(), test.ShouldEqual, 3)
	test.That(t, c.Data(), test.ShouldHaveLength, 3*72)
	test.That(t, c.IsDense(), test.ShouldBeFalse)
}

func TestCovarianceUpper(t *testing.T) {
	got := CovarianceUpper(func(i, j int) float64 { return float64(10*i + j) })
	test.That(t, got, test.ShouldResemble, [10]float64{0, 1, 2, 3, 11, 12, 13, 22, 23, 33})
}

func TestEmptySlotsAreNaN(t *testing.T) {
	c := NewLandmarkCloud(2)
	test.That(t, c.Set(1, testLandmark()), test.ShouldBeNil)
	test.That(t, c.SetInvalid(1), test.ShouldBeNil)
	for i := 0; i < 2; i++ {
		for f := range LandmarkFields {
			test.That(t, math.IsNaN(c.Float(i, f)), test.ShouldBeTrue)
		}
		_, ok := c.At(i)
		test.That(t, ok, test.ShouldBeFalse)
	}
}

func TestSetAndAt(t *testing.T) {
	c := NewLandmarkCloud(2)
	l := testLandmark()
	test.That(t, c.Set(0, l), test.ShouldBeNil)

	got, ok := c.At(0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got.RGB, test.ShouldEqual, GrayRGB)
	test.That(t, got.Position.Z, test.ShouldEqual, 4)
	test.That(t, got.Bearing.Y, test.ShouldAlmostEqual, -0.2, 1e-6)
	test.That(t, got.Distance, test.ShouldAlmostEqual, 4.2, 1e-6)
	test.That(t, got.Covariance[9], test.ShouldEqual, 33)
	test.That(t, c.Uint(0, rgbField), test.ShouldEqual, GrayRGB)

	// the neighbor slot stays empty
	_, ok = c.At(1)
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, c.Set(2, l), test.ShouldNotBeNil)
	test.That(t, c.SetInvalid(-1), test.ShouldNotBeNil)
}

func TestPCD(t *testing.T) {
	c := NewLandmarkCloud(2)
	test.That(t, c.Set(1, testLandmark()), test.ShouldBeNil)

	for _, format := range []PCDType{PCDBinary, PCDAscii} {
		var buf bytes.Buffer
		test.That(t, ToPCD(c, &buf, format), test.ShouldBeNil)
		test.That(t, strings.HasPrefix(buf.String(), "VERSION .7\nFIELDS x y z rgb b_x"), test.ShouldBeTrue)
		test.That(t, buf.String(), test.ShouldContainSubstring, "TYPE F F F U F")
		test.That(t, buf.String(), test.ShouldContainSubstring, "WIDTH 2\nHEIGHT 1\n")

		back, err := ReadPCD(&buf)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, back.Size(), test.ShouldEqual, 2)
		_, ok := back.At(0)
		test.That(t, ok, test.ShouldBeFalse)
		l, ok := back.At(1)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, l.RGB, test.ShouldEqual, GrayRGB)
		test.That(t, l.Distance, test.ShouldAlmostEqual, 4.2, 1e-6)
	}

	test.That(t, ToPCD(c, &bytes.Buffer{}, PCDType(7)), test.ShouldNotBeNil)
	_, err := ReadPCD(strings.NewReader("VERSION .6\n"))
	test.That(t, err, test.ShouldBeError, "unsupported pcd version .6")
}

func TestReadPCDBadSize(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, ToPCD(NewLandmarkCloud(2), &buf, PCDBinary), test.ShouldBeNil)
	header := buf.String()

	for _, tc := range []struct {
		from, to, err string
	}{
		{"WIDTH 2\n", "WIDTH -1\n", "negative WIDTH field -1"},
		{"HEIGHT 1\n", "HEIGHT -1\n", "negative HEIGHT field -1"},
		{"WIDTH 2\nHEIGHT 1\n", "WIDTH -1\nHEIGHT -1\n", "negative WIDTH field -1"},
		{"POINTS 2\n", "POINTS x\n", "invalid POINTS field x"},
	} {
		_, err := ReadPCD(strings.NewReader(strings.Replace(header, tc.from, tc.to, 1)))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
	}
}
