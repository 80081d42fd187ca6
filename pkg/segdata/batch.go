// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package segdata

import (
	"github.com/gomlx/vocseg/pkg/colormap"
	"github.com/gomlx/vocseg/pkg/images"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Batch of examples, stacked along a leading batch axis.
type Batch struct {
	// Size of each example in the batch.
	Size images.Size

	// Features shaped [len(Indices), images.NumChannels, Size.Height, Size.Width].
	Features []float32

	// Labels shaped [len(Indices), Size.Height, Size.Width].
	Labels []int32

	// Indices of the examples in the Source.
	Indices []int

	// NumUnrecognized is the total number of label pixels whose color was not in the palette.
	NumUnrecognized int
}

// newBatch allocates a batch for numExamples examples of the given size.
func newBatch(numExamples int, size images.Size) *Batch {
	planeSize := size.Height * size.Width
	return &Batch{
		Size:     size,
		Features: make([]float32, 0, numExamples*images.NumChannels*planeSize),
		Labels:   make([]int32, 0, numExamples*planeSize),
		Indices:  make([]int, 0, numExamples),
	}
}

// append adds one example to the batch. All examples must have the size of the batch.
func (b *Batch) append(idx int, feature *images.Image, labelMap *colormap.LabelMap) error {
	if feature.Size() != b.Size || labelMap.Height != b.Size.Height || labelMap.Width != b.Size.Width {
		return errors.Wrapf(images.ErrDimensionMismatch, "example %d has feature %s and label %dx%d, batch expects %s",
			idx, feature.Size(), labelMap.Height, labelMap.Width, b.Size)
	}
	b.Features = append(b.Features, feature.Data...)
	b.Labels = append(b.Labels, labelMap.Data...)
	b.Indices = append(b.Indices, idx)
	b.NumUnrecognized += labelMap.NumUnrecognized
	return nil
}

// Len returns the number of examples in the batch.
func (b *Batch) Len() int { return len(b.Indices) }

// FeaturesShape returns [batchSize, images.NumChannels, height, width].
func (b *Batch) FeaturesShape() []int {
	return []int{b.Len(), images.NumChannels, b.Size.Height, b.Size.Width}
}

// LabelsShape returns [batchSize, height, width].
func (b *Batch) LabelsShape() []int {
	return []int{b.Len(), b.Size.Height, b.Size.Width}
}

// Tensors returns the features and labels as dense tensors backed by the batch's data (no copies).
func (b *Batch) Tensors() (features, labels *tensor.Dense) {
	features = tensor.New(tensor.WithShape(b.FeaturesShape()...), tensor.WithBacking(b.Features))
	labels = tensor.New(tensor.WithShape(b.LabelsShape()...), tensor.WithBacking(b.Labels))
	return
}
