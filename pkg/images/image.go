// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package images holds the feature side of the segmentation pipeline: normalized planar float32
// images, per-channel normalization statistics and the paired random crop of feature and label images.
package images

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// NumChannels of the feature images: R, G and B.
const NumChannels = 3

// Size of an image or crop, in pixels.
type Size struct {
	Height, Width int
}

// String implements fmt.Stringer.
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Height, s.Width)
}

// Fits returns whether s is at least as large as other in both dimensions.
func (s Size) Fits(other Size) bool {
	return s.Height >= other.Height && s.Width >= other.Width
}

// SizeOf returns the size of an image.Image.
func SizeOf(img image.Image) Size {
	b := img.Bounds()
	return Size{Height: b.Dy(), Width: b.Dx()}
}

// Image is a float32 planar image, shaped [NumChannels, Height, Width] (channel-major), as consumed by
// convolutional models.
type Image struct {
	Height, Width int
	Data          []float32
}

// New allocates a zero Image.
func New(height, width int) *Image {
	return &Image{Height: height, Width: width, Data: make([]float32, NumChannels*height*width)}
}

// Size of the image.
func (img *Image) Size() Size { return Size{Height: img.Height, Width: img.Width} }

// Shape returns the dimensions [NumChannels, Height, Width].
func (img *Image) Shape() []int { return []int{NumChannels, img.Height, img.Width} }

// At returns the value of channel c at row y and column x.
func (img *Image) At(c, y, x int) float32 {
	return img.Data[(c*img.Height+y)*img.Width+x]
}

// Channel returns the plane of channel c, shaped [Height, Width], sharing the underlying data.
func (img *Image) Channel(c int) []float32 {
	planeSize := img.Height * img.Width
	return img.Data[c*planeSize : (c+1)*planeSize]
}

// ToNRGBA returns img as *image.NRGBA with bounds starting at (0, 0). It returns img itself if it already
// is one, otherwise a converted copy.
func ToNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	return imaging.Clone(img)
}

// Normalize converts an 8-bit image to a normalized planar Image: `(v/255 - mean[c]) / std[c]` for each
// pixel and channel c. Alpha is dropped.
func Normalize(img image.Image, stats Stats) *Image {
	src := ToNRGBA(img)
	size := SizeOf(src)
	out := New(size.Height, size.Width)
	var scale, offset [NumChannels]float32
	for c := range NumChannels {
		scale[c] = 1 / (255 * stats.Std[c])
		offset[c] = stats.Mean[c] / stats.Std[c]
	}
	planeSize := size.Height * size.Width
	pos := 0
	for y := 0; y < size.Height; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+4*size.Width]
		for x := 0; x < size.Width; x++ {
			for c := range NumChannels {
				out.Data[c*planeSize+pos] = float32(row[4*x+c])*scale[c] - offset[c]
			}
			pos++
		}
	}
	return out
}

// Denormalize reverses Normalize, clamping values to [0, 255]. Useful to display crops.
func Denormalize(img *Image, stats Stats) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			var rgb [NumChannels]uint8
			for c := range NumChannels {
				v := (img.At(c, y, x)*stats.Std[c] + stats.Mean[c]) * 255
				rgb[c] = uint8(math.Round(float64(min(max(v, 0), 255))))
			}
			out.SetNRGBA(x, y, color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255})
		}
	}
	return out
}
