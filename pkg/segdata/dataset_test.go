// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package segdata

import (
	"image"
	"image/color"
	"math/rand"
	"sync"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/vocseg/pkg/colormap"
	"github.com/gomlx/vocseg/pkg/images"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPalette = colormap.Palette{{0, 0, 0}, {128, 0, 0}, {0, 128, 0}, {128, 128, 0}}

func testTable(t *testing.T) *colormap.Table {
	table, err := colormap.NewTable(testPalette, []string{"background", "aeroplane", "bicycle", "bird"})
	require.NoError(t, err)
	return table
}

// makePair creates a feature image with a gradient and a label image whose class is
// (x + y) % len(testPalette) at each pixel, so the label can be predicted from the position.
func makePair(height, width int) (image.Image, image.Image) {
	feature := image.NewNRGBA(image.Rect(0, 0, width, height))
	label := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			feature.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
			c := testPalette[(x+y)%len(testPalette)]
			label.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
	return feature, label
}

func buildDataset(t *testing.T, sizes []images.Size, crop images.Size) *Dataset {
	features := make([]image.Image, len(sizes))
	labels := make([]image.Image, len(sizes))
	for ii, size := range sizes {
		features[ii], labels[ii] = makePair(size.Height, size.Width)
	}
	ds, err := NewConfig(testTable(t), crop.Height, crop.Width).WithName("test").WithSeed(7).Build(features, labels)
	require.NoError(t, err)
	return ds
}

func TestFilter(t *testing.T) {
	crop := images.Size{Height: 8, Width: 12}
	sizes := []images.Size{
		{Height: 10, Width: 20},
		{Height: 5, Width: 20}, // too short
		{Height: 8, Width: 12}, // exactly the crop size
		{Height: 7, Width: 30}, // too short
		{Height: 30, Width: 13},
	}
	ds := buildDataset(t, sizes, crop)
	require.Equal(t, 3, ds.Len())
	for idx, wantSource := range []int{0, 2, 4} {
		got, err := ds.SourceIndex(idx)
		require.NoError(t, err)
		assert.Equal(t, wantSource, got)
	}

	// Width is also filtered.
	ds = buildDataset(t, []images.Size{{Height: 20, Width: 11}, {Height: 20, Width: 12}}, crop)
	assert.Equal(t, 1, ds.Len())
}

func TestGetShapes(t *testing.T) {
	crop := images.Size{Height: 6, Width: 9}
	ds := buildDataset(t, []images.Size{{Height: 20, Width: 25}, {Height: 6, Width: 9}}, crop)
	require.Equal(t, 2, ds.Len())
	for range 50 {
		for idx := range ds.Len() {
			feature, labelMap, err := ds.Get(idx)
			require.NoError(t, err)
			assert.Equal(t, []int{3, 6, 9}, feature.Shape())
			assert.Equal(t, []int{6, 9}, labelMap.Shape())
			assert.Len(t, feature.Data, 3*6*9)
			assert.Len(t, labelMap.Data, 6*9)
			assert.Zero(t, labelMap.NumUnrecognized)
		}
	}
}

// checkAligned verifies that the cropped label matches the cropped feature: the feature encodes
// x and y in the R and G channels, and the label class is (x+y) % numClasses.
func checkAligned(t *testing.T, ds *Dataset, feature *images.Image, labelMap *colormap.LabelMap) {
	stats := ds.Stats()
	raw := images.Denormalize(feature, stats)
	for y := 0; y < labelMap.Height; y++ {
		for x := 0; x < labelMap.Width; x++ {
			px := raw.NRGBAAt(x, y)
			srcX, srcY := int(px.R), int(px.G)
			require.Equal(t, int32((srcX+srcY)%len(testPalette)), labelMap.At(y, x),
				"crop pixel (y=%d, x=%d) from source (y=%d, x=%d)", y, x, srcY, srcX)
		}
	}
}

func TestGetAlignedAndRandom(t *testing.T) {
	ds := buildDataset(t, []images.Size{{Height: 40, Width: 50}}, images.Size{Height: 5, Width: 7})
	offsets := make(map[[2]int]bool)
	for range 100 {
		feature, labelMap, err := ds.Get(0)
		require.NoError(t, err)
		checkAligned(t, ds, feature, labelMap)
		raw := images.Denormalize(feature, ds.Stats())
		origin := raw.NRGBAAt(0, 0)
		offsets[[2]int{int(origin.G), int(origin.R)}] = true
	}
	assert.Greater(t, len(offsets), 10, "Get should sample different crops for the same index")

	rng := rand.New(rand.NewSource(3))
	feature, labelMap, err := ds.GetWithRand(rng, 0)
	require.NoError(t, err)
	checkAligned(t, ds, feature, labelMap)
}

func TestGetIndexOutOfRange(t *testing.T) {
	ds := buildDataset(t, []images.Size{{Height: 10, Width: 10}}, images.Size{Height: 4, Width: 4})
	for _, idx := range []int{-1, 1, 100} {
		_, _, err := ds.Get(idx)
		assert.Truef(t, errors.Is(err, ErrIndexOutOfRange), "Get(%d): %v", idx, err)
		_, _, err = ds.GetWithRand(rand.New(rand.NewSource(0)), idx)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange))
		_, _, err = ds.Example(idx)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange))
	}

	err := exceptions.TryCatch[error](func() { ds.MustGet(1) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index out of range")
	assert.NotPanics(t, func() { ds.MustGet(0) })
}

func TestBuildErrors(t *testing.T) {
	table := testTable(t)
	feature, label := makePair(10, 10)
	otherFeature, _ := makePair(10, 11)

	_, err := NewConfig(table, 4, 4).Build([]image.Image{feature}, nil)
	assert.True(t, errors.Is(err, ErrPairCountMismatch))

	_, err = NewConfig(table, 0, 4).Build([]image.Image{feature}, []image.Image{label})
	assert.True(t, errors.Is(err, ErrInvalidCropSize))

	_, err = NewConfig(table, 4, 4).Build([]image.Image{otherFeature}, []image.Image{label})
	assert.True(t, errors.Is(err, images.ErrDimensionMismatch))

	_, err = NewConfig(nil, 4, 4).Build([]image.Image{feature}, []image.Image{label})
	require.Error(t, err)

	_, err = NewConfig(table, 4, 4).WithStats(images.Stats{}).Build([]image.Image{feature}, []image.Image{label})
	require.Error(t, err)
}

func TestNormalizedOnce(t *testing.T) {
	gray := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for ii := range gray.Pix {
		gray.Pix[ii] = 128
		if ii%4 == 3 {
			gray.Pix[ii] = 255
		}
	}
	_, label := makePair(4, 4)
	ds, err := NewConfig(testTable(t), 4, 4).Build([]image.Image{gray}, []image.Image{label})
	require.NoError(t, err)
	feature, _, err := ds.Example(0)
	require.NoError(t, err)
	for c := range images.NumChannels {
		want := (128.0/255.0 - images.ImageNetStats.Mean[c]) / images.ImageNetStats.Std[c]
		assert.InDelta(t, want, feature.At(c, 2, 3), 1e-5)
	}
	assert.Equal(t, int64(4*3*16+4*16), ds.MemoryUsage())
}

func TestUnrecognizedLabelColors(t *testing.T) {
	feature, _ := makePair(3, 3)
	label := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for ii := range label.Pix {
		label.Pix[ii] = 255 // white: not in the palette.
	}
	label.SetNRGBA(1, 1, color.NRGBA{R: 128, A: 255})

	for _, tc := range []struct {
		policy  colormap.UnknownPolicy
		unknown int32
	}{{colormap.UnknownAsBackground, 0}, {colormap.UnknownAsIgnore, colormap.IgnoreIndex}} {
		table := testTable(t).WithUnknownPolicy(tc.policy)
		ds, err := NewConfig(table, 3, 3).Build([]image.Image{feature}, []image.Image{label})
		require.NoError(t, err)
		_, labelMap, err := ds.Get(0)
		require.NoError(t, err)
		assert.Equal(t, 8, labelMap.NumUnrecognized)
		for ii, v := range labelMap.Data {
			if ii == 4 {
				assert.Equal(t, int32(1), v)
			} else {
				assert.Equal(t, tc.unknown, v)
			}
		}
	}
}

func TestConcurrentGet(t *testing.T) {
	ds := buildDataset(t, []images.Size{{Height: 30, Width: 30}, {Height: 25, Width: 40}}, images.Size{Height: 10, Width: 10})
	var wg sync.WaitGroup
	for worker := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))
			for ii := range 50 {
				idx := ii % ds.Len()
				var (
					feature  *images.Image
					labelMap *colormap.LabelMap
					err      error
				)
				if worker%2 == 0 {
					feature, labelMap, err = ds.Get(idx)
				} else {
					feature, labelMap, err = ds.GetWithRand(rng, idx)
				}
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, []int{3, 10, 10}, feature.Shape())
				assert.Equal(t, []int{10, 10}, labelMap.Shape())
			}
		}()
	}
	wg.Wait()
}

func TestBuildCopiesLabels(t *testing.T) {
	feature, label := makePair(4, 4)
	ds, err := NewConfig(testTable(t), 4, 4).Build([]image.Image{feature}, []image.Image{label})
	require.NoError(t, err)
	_, labelMap, err := ds.Get(0)
	require.NoError(t, err)
	require.Equal(t, int32(0), labelMap.At(0, 0))

	// Changing the caller's image after Build doesn't affect the dataset.
	c := testPalette[3]
	label.(*image.NRGBA).SetNRGBA(0, 0, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
	_, labelMap, err = ds.Get(0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), labelMap.At(0, 0))
	_, rawLabel, err := ds.Example(0)
	require.NoError(t, err)
	assert.NotSame(t, label, rawLabel)
}

func TestGetAndGetWithRandAgree(t *testing.T) {
	sizes := []images.Size{{Height: 30, Width: 41}}
	crop := images.Size{Height: 9, Width: 7}
	const seed = 7 // Same seed used by buildDataset.
	withLock := buildDataset(t, sizes, crop)
	withRand := buildDataset(t, sizes, crop)
	rng := rand.New(rand.NewSource(seed))
	for range 20 {
		feature0, labelMap0, err := withLock.Get(0)
		require.NoError(t, err)
		feature1, labelMap1, err := withRand.GetWithRand(rng, 0)
		require.NoError(t, err)
		require.Equal(t, feature0.Data, feature1.Data)
		require.Equal(t, labelMap0.Data, labelMap1.Data)
	}
}
