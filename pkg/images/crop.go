// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package images

import (
	"image"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

var (
	// ErrDimensionMismatch is returned when a feature image and its label image differ in size.
	ErrDimensionMismatch = errors.New("feature and label dimensions mismatch")

	// ErrCropTooLarge is returned when the crop doesn't fit in the source image.
	ErrCropTooLarge = errors.New("crop larger than image")
)

// RandomCropRect returns a rectangle of the crop size placed uniformly at random within an image of the
// given size: the top-left corner is drawn from y in [0, H-cropH] and x in [0, W-cropW].
func RandomCropRect(rng *rand.Rand, imgSize, crop Size) (image.Rectangle, error) {
	if crop.Height <= 0 || crop.Width <= 0 {
		return image.Rectangle{}, errors.Errorf("invalid crop size %s", crop)
	}
	if !imgSize.Fits(crop) {
		return image.Rectangle{}, errors.Wrapf(ErrCropTooLarge, "crop %s, image %s", crop, imgSize)
	}
	y := rng.Intn(imgSize.Height - crop.Height + 1)
	x := rng.Intn(imgSize.Width - crop.Width + 1)
	return image.Rect(x, y, x+crop.Width, y+crop.Height), nil
}

// CropImage returns a copy of the region rect of img. rect must be within the image.
func CropImage(img *Image, rect image.Rectangle) *Image {
	out := New(rect.Dy(), rect.Dx())
	for c := range NumChannels {
		src, dst := img.Channel(c), out.Channel(c)
		for y := 0; y < out.Height; y++ {
			srcStart := (rect.Min.Y+y)*img.Width + rect.Min.X
			copy(dst[y*out.Width:(y+1)*out.Width], src[srcStart:srcStart+out.Width])
		}
	}
	return out
}

// PairedCrop crops the feature image and its label image at the same randomly chosen region of the
// given size, so each cropped label pixel still describes the cropped feature pixel at the same position.
//
// It returns the cropped feature, the cropped label and the region used.
// It fails with ErrDimensionMismatch if feature and label differ in size, and ErrCropTooLarge if the
// crop doesn't fit.
func PairedCrop(rng *rand.Rand, feature *Image, label image.Image, crop Size) (
	*Image, *image.NRGBA, image.Rectangle, error) {
	if err := checkPair(feature, label); err != nil {
		return nil, nil, image.Rectangle{}, err
	}
	rect, err := RandomCropRect(rng, feature.Size(), crop)
	if err != nil {
		return nil, nil, image.Rectangle{}, err
	}
	featureCrop, labelCrop, err := CropPair(feature, label, rect)
	return featureCrop, labelCrop, rect, err
}

// CropPair crops the feature image and its label image at rect, given in coordinates relative to the
// images' top-left corner. rect must be within the images.
//
// It fails with ErrDimensionMismatch if feature and label differ in size, and ErrCropTooLarge if rect
// is not within them.
func CropPair(feature *Image, label image.Image, rect image.Rectangle) (*Image, *image.NRGBA, error) {
	if err := checkPair(feature, label); err != nil {
		return nil, nil, err
	}
	if !rect.In(image.Rect(0, 0, feature.Width, feature.Height)) {
		return nil, nil, errors.Wrapf(ErrCropTooLarge, "crop %v, image %s", rect, feature.Size())
	}
	// imaging.Crop works in the label's own coordinates.
	labelRect := rect.Add(label.Bounds().Min)
	return CropImage(feature, rect), imaging.Crop(label, labelRect), nil
}

func checkPair(feature *Image, label image.Image) error {
	if labelSize := SizeOf(label); feature.Size() != labelSize {
		return errors.Wrapf(ErrDimensionMismatch, "feature is %s, label is %s", feature.Size(), labelSize)
	}
	return nil
}
