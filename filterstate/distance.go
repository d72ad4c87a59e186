package filterstate

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// DistanceType selects how the scalar parameter of a landmark maps to a euclidean distance.
type DistanceType int

// The supported distance parametrizations.
const (
	DistanceRegular DistanceType = iota
	DistanceInverse
	DistanceLog
	DistanceHyperbolic
)

// minInverseParameter bounds the inverse depth parameter away from zero.
const minInverseParameter = 1e-6

func (dt DistanceType) String() string {
	switch dt {
	case DistanceRegular:
		return "regular"
	case DistanceInverse:
		return "inverse"
	case DistanceLog:
		return "log"
	case DistanceHyperbolic:
		return "hyperbolic"
	default:
		return "unknown"
	}
}

// DistanceTypeFromString parses a distance type name. The empty string yields DistanceInverse.
func DistanceTypeFromString(s string) (DistanceType, error) {
	switch strings.ToLower(s) {
	case "", "inverse":
		return DistanceInverse, nil
	case "regular":
		return DistanceRegular, nil
	case "log":
		return DistanceLog, nil
	case "hyperbolic":
		return DistanceHyperbolic, nil
	default:
		return DistanceInverse, errors.Errorf("unknown distance type %q", s)
	}
}

// FeatureDistance is the depth parameter of a landmark along its bearing vector.
type FeatureDistance struct {
	Type DistanceType
	P    float64
}

// NewFeatureDistance returns the parameter of the given type encoding distance d.
func NewFeatureDistance(dt DistanceType, d float64) FeatureDistance {
	fd := FeatureDistance{Type: dt}
	fd.SetDistance(d)
	return fd
}

// Distance returns the euclidean distance encoded by the parameter.
func (fd FeatureDistance) Distance() float64 {
	switch fd.Type {
	case DistanceRegular:
		return fd.P
	case DistanceLog:
		return math.Exp(fd.P)
	case DistanceHyperbolic:
		return math.Sinh(fd.P)
	case DistanceInverse:
		fallthrough
	default:
		p := math.Abs(fd.P)
		if p < minInverseParameter {
			p = minInverseParameter
		}
		return 1 / p
	}
}

// SetDistance updates the parameter so that Distance returns d.
func (fd *FeatureDistance) SetDistance(d float64) {
	switch fd.Type {
	case DistanceRegular:
		fd.P = d
	case DistanceLog:
		fd.P = math.Log(d)
	case DistanceHyperbolic:
		fd.P = math.Asinh(d)
	case DistanceInverse:
		fallthrough
	default:
		fd.P = 1 / d
	}
}
