// Package rimage turns raw camera frames into grayscale images and image pyramids.
package rimage

import (
	"bytes"
	"image"
	// register decoders used by compressed frames.
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Raw image encodings understood by Decode.
const (
	EncodingMono8 = "mono8"
	Encoding8UC1  = "8UC1"
	EncodingRGB8  = "rgb8"
	EncodingBGR8  = "bgr8"
)

var (
	// ErrEmptyImage is returned for frames with no pixels.
	ErrEmptyImage = errors.New("image is empty")
	// ErrUnsupportedEncoding is returned for pixel encodings that cannot be converted to gray.
	ErrUnsupportedEncoding = errors.New("unsupported image encoding")
)

// Decode converts an uncompressed frame into a gray image. step is the row stride in bytes.
func Decode(encoding string, width, height, step int, data []byte) (*image.Gray, error) {
	if width <= 0 || height <= 0 || len(data) == 0 {
		return nil, ErrEmptyImage
	}
	channels := 0
	switch strings.ToLower(encoding) {
	case EncodingMono8, strings.ToLower(Encoding8UC1):
		channels = 1
	case EncodingRGB8, EncodingBGR8:
		channels = 3
	default:
		return nil, errors.Wrapf(ErrUnsupportedEncoding, "%q", encoding)
	}
	if step < width*channels {
		return nil, errors.Errorf("row step %d too small for %d pixels of %s", step, width, encoding)
	}
	if len(data) < step*(height-1)+width*channels {
		return nil, errors.Errorf("image data has %d bytes, %dx%d %s needs %d",
			len(data), width, height, encoding, step*(height-1)+width*channels)
	}

	if channels == 1 {
		img := image.NewGray(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+width], data[y*step:])
		}
		return img, nil
	}

	r, b := 0, 2
	if strings.ToLower(encoding) == EncodingBGR8 {
		r, b = 2, 0
	}
	rgba := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := data[y*step:]
		for x := 0; x < width; x++ {
			o := rgba.PixOffset(x, y)
			rgba.Pix[o] = row[3*x+r]
			rgba.Pix[o+1] = row[3*x+1]
			rgba.Pix[o+2] = row[3*x+b]
			rgba.Pix[o+3] = 0xff
		}
	}
	return ToGray(rgba), nil
}

// DecodeCompressed decodes a jpeg or png frame into a gray image.
func DecodeCompressed(data []byte) (*image.Gray, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode compressed image")
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return ToGray(img), nil
}

// ToGray converts any image into an *image.Gray with bounds starting at the origin.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
