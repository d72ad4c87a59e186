package rimage

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Pyramid is a stack of gray images, each half the size of the previous one. Level 0 is the
// full resolution frame.
type Pyramid struct {
	Levels []*image.Gray
}

// NewPyramid builds up to levels levels from img. Levels that would be empty are not built.
func NewPyramid(img *image.Gray, levels int) (*Pyramid, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	if levels < 1 {
		return nil, errors.Errorf("pyramid needs at least one level, got %d", levels)
	}
	p := &Pyramid{Levels: []*image.Gray{ToGray(img)}}
	for len(p.Levels) < levels {
		prev := p.Levels[len(p.Levels)-1]
		w, h := prev.Bounds().Dx()/2, prev.Bounds().Dy()/2
		if w == 0 || h == 0 {
			break
		}
		p.Levels = append(p.Levels, ToGray(imaging.Resize(prev, w, h, imaging.Box)))
	}
	return p, nil
}

// Base returns the full resolution level.
func (p *Pyramid) Base() *image.Gray {
	return p.Levels[0]
}
