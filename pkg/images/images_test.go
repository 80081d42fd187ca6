// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package images

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformImage(height, width int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestNormalizeGray(t *testing.T) {
	img := Normalize(uniformImage(4, 6, color.NRGBA{R: 128, G: 128, B: 128, A: 255}), ImageNetStats)
	require.Equal(t, []int{3, 4, 6}, img.Shape())
	for c := range NumChannels {
		want := (128.0/255.0 - ImageNetStats.Mean[c]) / ImageNetStats.Std[c]
		for _, v := range img.Channel(c) {
			assert.InDelta(t, want, v, 1e-5, "channel %d", c)
		}
	}
}

func TestNormalizeLayout(t *testing.T) {
	// Tag every pixel with a distinct value per channel, and check the planar layout.
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			v := uint8(10 * (y*3 + x))
			src.SetNRGBA(x, y, color.NRGBA{R: v, G: v + 1, B: v + 2, A: 255})
		}
	}
	unit := Stats{Std: [NumChannels]float32{1, 1, 1}}
	img := Normalize(src, unit)
	for c := range NumChannels {
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				want := float32(10*(y*3+x)+c) / 255
				assert.InDelta(t, want, img.At(c, y, x), 1e-6)
			}
		}
	}

	// Denormalize round trip.
	back := Denormalize(Normalize(src, ImageNetStats), ImageNetStats)
	assert.Equal(t, src.Pix, back.Pix)
}

func TestComputeStats(t *testing.T) {
	imgs := []image.Image{
		uniformImage(2, 2, color.NRGBA{R: 0, G: 255, B: 51, A: 255}),
		uniformImage(2, 2, color.NRGBA{R: 255, G: 255, B: 51, A: 255}),
	}
	stats, err := ComputeStats(imgs)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, stats.Mean[0], 1e-6)
	assert.InDelta(t, 0.5, stats.Std[0], 1e-6)
	assert.InDelta(t, 1.0, stats.Mean[1], 1e-6)
	assert.InDelta(t, 1.0, stats.Std[1], 1e-6, "constant channel gets std=1")
	assert.InDelta(t, 0.2, stats.Mean[2], 1e-6)
	require.NoError(t, stats.Validate())

	_, err = ComputeStats(nil)
	require.Error(t, err)
	require.Error(t, Stats{}.Validate())
}

// taggedPair returns a feature Image and a label image of the given size where every pixel
// carries a unique marker derived from its position.
func taggedPair(size Size) (*Image, *image.NRGBA) {
	feature := New(size.Height, size.Width)
	label := image.NewNRGBA(image.Rect(0, 0, size.Width, size.Height))
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			marker := y*size.Width + x
			for c := range NumChannels {
				feature.Data[(c*size.Height+y)*size.Width+x] = float32(marker*NumChannels + c)
			}
			label.SetNRGBA(x, y, color.NRGBA{R: uint8(marker >> 8), G: uint8(marker), B: 7, A: 255})
		}
	}
	return feature, label
}

func TestPairedCropAlignment(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	srcSize := Size{Height: 17, Width: 23}
	crop := Size{Height: 5, Width: 8}
	feature, label := taggedPair(srcSize)
	seenOffsets := make(map[image.Point]bool)
	for range 200 {
		featureCrop, labelCrop, rect, err := PairedCrop(rng, feature, label, crop)
		require.NoError(t, err)
		require.Equal(t, crop, featureCrop.Size())
		require.Equal(t, crop, SizeOf(labelCrop))
		require.Equal(t, image.Point{}, labelCrop.Bounds().Min)
		require.True(t, rect.In(image.Rect(0, 0, srcSize.Width, srcSize.Height)))
		seenOffsets[rect.Min] = true
		for y := 0; y < crop.Height; y++ {
			for x := 0; x < crop.Width; x++ {
				lc := labelCrop.NRGBAAt(x, y)
				labelMarker := int(lc.R)<<8 | int(lc.G)
				featureMarker := int(featureCrop.At(0, y, x)) / NumChannels
				require.Equal(t, labelMarker, featureMarker, "crop %v at (y=%d, x=%d)", rect, y, x)
				require.Equal(t, (rect.Min.Y+y)*srcSize.Width+rect.Min.X+x, featureMarker)
				require.Equal(t, float32(featureMarker*NumChannels+2), featureCrop.At(2, y, x))
			}
		}
	}
	assert.Greater(t, len(seenOffsets), 20, "crops should be sampled at many different offsets")
}

func TestPairedCropSubImageLabel(t *testing.T) {
	feature, label := taggedPair(Size{Height: 6, Width: 6})
	sub := label.SubImage(image.Rect(2, 2, 6, 6)).(*image.NRGBA)
	subFeature := CropImage(feature, image.Rect(2, 2, 6, 6))
	rng := rand.New(rand.NewSource(1))
	for range 20 {
		featureCrop, labelCrop, _, err := PairedCrop(rng, subFeature, sub, Size{Height: 2, Width: 3})
		require.NoError(t, err)
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				lc := labelCrop.NRGBAAt(x, y)
				require.Equal(t, int(lc.R)<<8|int(lc.G), int(featureCrop.At(0, y, x))/NumChannels)
			}
		}
	}
}

func TestPairedCropErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	feature, _ := taggedPair(Size{Height: 10, Width: 10})
	_, otherLabel := taggedPair(Size{Height: 10, Width: 11})
	_, _, _, err := PairedCrop(rng, feature, otherLabel, Size{Height: 2, Width: 2})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	_, label := taggedPair(Size{Height: 10, Width: 10})
	_, _, _, err = PairedCrop(rng, feature, label, Size{Height: 11, Width: 2})
	assert.True(t, errors.Is(err, ErrCropTooLarge))

	_, _, _, err = PairedCrop(rng, feature, label, Size{Height: 0, Width: 2})
	require.Error(t, err)

	// Crop of the full image is always at the origin.
	featureCrop, _, rect, err := PairedCrop(rng, feature, label, Size{Height: 10, Width: 10})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), rect)
	assert.Equal(t, feature.Data, featureCrop.Data)
}

func TestCropPair(t *testing.T) {
	feature, label := taggedPair(Size{Height: 8, Width: 9})
	rect := image.Rect(2, 3, 7, 8)
	featureCrop, labelCrop, err := CropPair(feature, label, rect)
	require.NoError(t, err)
	assert.Equal(t, Size{Height: 5, Width: 5}, featureCrop.Size())
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			lc := labelCrop.NRGBAAt(x, y)
			require.Equal(t, (3+y)*9+2+x, int(lc.R)<<8|int(lc.G))
			require.Equal(t, (3+y)*9+2+x, int(featureCrop.At(0, y, x))/NumChannels)
		}
	}

	_, otherLabel := taggedPair(Size{Height: 8, Width: 10})
	_, _, err = CropPair(feature, otherLabel, rect)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	_, _, err = CropPair(feature, label, image.Rect(5, 5, 10, 8))
	assert.True(t, errors.Is(err, ErrCropTooLarge))
}
