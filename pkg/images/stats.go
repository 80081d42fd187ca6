// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Stats holds per-channel mean and standard deviation, for values scaled to [0, 1].
type Stats struct {
	Mean, Std [NumChannels]float32
}

// ImageNetStats are the statistics of the ImageNet training set, the usual convention for
// models pre-trained on it. They are used regardless of the statistics of the actual dataset.
var ImageNetStats = Stats{
	Mean: [NumChannels]float32{0.485, 0.456, 0.406},
	Std:  [NumChannels]float32{0.229, 0.224, 0.225},
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("mean=%.3f std=%.3f", s.Mean, s.Std)
}

// Validate checks that all standard deviations are positive.
func (s Stats) Validate() error {
	for c, std := range s.Std {
		if !(std > 0) {
			return errors.Errorf("standard deviation of channel %d must be > 0, got %g", c, std)
		}
	}
	return nil
}

// ComputeStats calculates the per-channel mean and standard deviation of the given images, with
// pixel values scaled to [0, 1]. All pixels of all images weigh the same.
//
// Channels that are constant get a standard deviation of 1, so they can still be used for normalization.
func ComputeStats(imgs []image.Image) (Stats, error) {
	var stats Stats
	if len(imgs) == 0 {
		return stats, errors.New("ComputeStats requires at least one image")
	}
	// Accumulate in float64: sums over a full dataset overflow float32 precision.
	var sum, sumSquares [NumChannels]float64
	var count int64
	for _, img := range imgs {
		src := ToNRGBA(img)
		size := SizeOf(src)
		for y := 0; y < size.Height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+4*size.Width]
			for x := 0; x < size.Width; x++ {
				for c := range NumChannels {
					v := float64(row[4*x+c]) / 255
					sum[c] += v
					sumSquares[c] += v * v
				}
			}
		}
		count += int64(size.Height * size.Width)
	}
	if count == 0 {
		return stats, errors.New("ComputeStats given only empty images")
	}
	for c := range NumChannels {
		mean := sum[c] / float64(count)
		variance := float32(sumSquares[c]/float64(count) - mean*mean)
		stats.Mean[c] = float32(mean)
		stats.Std[c] = math32.Sqrt(max(variance, 0))
		if stats.Std[c] < 1e-6 {
			stats.Std[c] = 1
		}
	}
	return stats, nil
}
